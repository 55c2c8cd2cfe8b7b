package service

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	fiberadaptor "github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/theapemachine/a2a-core/pkg/a2a"
)

/*
Server bundles both transports behind one listener: JSON-RPC on the root
POST endpoint, the REST routes under /v1 and agent-card discovery on the
well-known path.
*/
type Server struct {
	app     *fiber.App
	handler *RequestHandler
}

func NewServer(handler *RequestHandler) *Server {
	srv := &Server{
		app: fiber.New(fiber.Config{
			AppName:           handler.Card().Name,
			ServerHeader:      "A2A-Server",
			StreamRequestBody: true,
		}),
		handler: handler,
	}

	srv.app.Use(logger.New(logger.Config{
		// Streaming requests hold the connection open and would flood the
		// access log with long-lived entries.
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/v1/message:stream"
		},
	}), healthcheck.New())

	srv.app.Get(a2a.WellKnownCardPath, srv.handleAgentCard)

	rpc := NewJSONRPCServer(handler)
	srv.app.Post("/", func(ctx fiber.Ctx) error {
		return fiberadaptor.HTTPHandler(http.Handler(rpc))(ctx)
	})

	NewRESTServer(handler).Register(srv.app)

	return srv
}

// App exposes the underlying fiber app, mostly for tests.
func (srv *Server) App() *fiber.App {
	return srv.app
}

func (srv *Server) handleAgentCard(ctx fiber.Ctx) error {
	return ctx.JSON(srv.handler.Card())
}

// Start blocks serving on addr until the listener fails or is shut down.
func (srv *Server) Start(addr string) error {
	log.Info("starting server", "addr", addr, "agent", srv.handler.Card().Name)
	return srv.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown gracefully drains in-flight requests.
func (srv *Server) Shutdown() error {
	return srv.app.Shutdown()
}
