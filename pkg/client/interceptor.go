package client

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// CallInfo describes one outbound call for interceptors.
type CallInfo struct {
	Method string
	Params any
}

// CallFunc performs one unary call, decoding the result into out.
type CallFunc func(ctx context.Context, info CallInfo, out any) error

/*
Interceptor wraps a CallFunc, running before and after every unary call the
client makes. Interceptors compose in registration order: the first one
registered is the outermost.
*/
type Interceptor func(next CallFunc) CallFunc

func chain(base CallFunc, interceptors []Interceptor) CallFunc {
	wrapped := base

	for i := len(interceptors) - 1; i >= 0; i-- {
		wrapped = interceptors[i](wrapped)
	}

	return wrapped
}

// LoggingInterceptor logs every call with its duration and outcome.
func LoggingInterceptor() Interceptor {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, info CallInfo, out any) error {
			started := time.Now()
			err := next(ctx, info, out)

			if err != nil {
				log.Warn("call failed", "method", info.Method, "duration", time.Since(started), "error", err)
				return err
			}

			log.Debug("call completed", "method", info.Method, "duration", time.Since(started))
			return nil
		}
	}
}

// HeaderInterceptor is implemented at the transport level; interceptors
// needing per-call headers can stash them on the context with this key.
type headerContextKey struct{}

// WithHeaders returns a context carrying extra headers for one call.
func WithHeaders(ctx context.Context, headers map[string]string) context.Context {
	return context.WithValue(ctx, headerContextKey{}, headers)
}

func headersFromContext(ctx context.Context) map[string]string {
	headers, _ := ctx.Value(headerContextKey{}).(map[string]string)
	return headers
}
