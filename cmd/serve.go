package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/theapemachine/a2a-core/pkg/a2a"
	"github.com/theapemachine/a2a-core/pkg/service"
	"github.com/theapemachine/a2a-core/pkg/stores"
	"github.com/theapemachine/a2a-core/pkg/stores/s3"
)

var (
	portFlag  int
	hostFlag  string
	agentFlag string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve an A2A agent over JSON-RPC and HTTP+REST",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			card := a2a.NewAgentCardFromConfig(agentFlag)

			taskStore, err := newTaskStore(cmd.Context())

			if err != nil {
				return err
			}

			handler := service.NewRequestHandler(
				*card,
				service.NewEchoExecutor(),
				taskStore,
				stores.NewInMemoryPushNotificationStore(),
			)

			if key := viper.GetString("push.signing_key"); key != "" {
				handler.SetPushSigningKey([]byte(key))
			}

			addr := fmt.Sprintf("%s:%d", hostFlag, portFlag)
			return service.NewServer(handler).Start(addr)
		},
	}
)

// newTaskStore builds the configured persistence backend: in-memory by
// default, S3-compatible object storage when configured.
func newTaskStore(ctx context.Context) (stores.TaskStore, error) {
	backend := viper.GetString("stores.backend")

	switch backend {
	case "", "memory":
		return stores.NewInMemoryTaskStore(), nil
	case "s3":
		conn, err := s3.NewConn(ctx, s3.ConnConfig{
			Endpoint:  viper.GetString("stores.s3.endpoint"),
			AccessKey: viper.GetString("stores.s3.access_key"),
			SecretKey: viper.GetString("stores.s3.secret_key"),
			Bucket:    viper.GetString("stores.s3.bucket"),
			UseSSL:    viper.GetBool("stores.s3.use_ssl"),
		})

		if err != nil {
			return nil, fmt.Errorf("failed to connect to s3: %w", err)
		}

		log.Info("using s3 task store", "bucket", viper.GetString("stores.s3.bucket"))
		return s3.NewStore(conn), nil
	}

	return nil, fmt.Errorf("unknown store backend %q", backend)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&portFlag, "port", "p", 3210, "Port to serve on")
	serveCmd.Flags().StringVarP(&hostFlag, "host", "H", "0.0.0.0", "Host address to bind to")
	serveCmd.Flags().StringVarP(&agentFlag, "agent", "a", "default", "Agent key in the config file")
}

var longServe = `
Serve an A2A agent over both transports on one listener: JSON-RPC on the
root POST endpoint and HTTP+JSON under /v1, with the agent card published
on the well-known path.

Examples:
  # Serve the default agent on port 8080
  a2a-core serve --port 8080

  # Serve a different agent definition from the config file
  a2a-core serve --agent research
`
