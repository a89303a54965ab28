// Package httpapi exposes the api boundary as a JSON REST gateway.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/coursekeeper/internal/logging"
	"github.com/dmitrijs2005/coursekeeper/internal/server/api"
	"github.com/dmitrijs2005/coursekeeper/internal/server/auth"
	"github.com/dmitrijs2005/coursekeeper/internal/server/ratelimit"
)

const shutdownTimeout = 5 * time.Second

// HTTPServer serves the REST gateway over the api boundary.
type HTTPServer struct {
	address        string
	api            *api.API
	issuer         *auth.Issuer
	limiter        *ratelimit.Limiter
	allowedOrigins []string
	logger         logging.Logger
}

// NewHTTPServer builds the gateway. A nil limiter disables throttling.
func NewHTTPServer(a string, l logging.Logger, boundary *api.API, issuer *auth.Issuer, limiter *ratelimit.Limiter, allowedOrigins []string) *HTTPServer {
	return &HTTPServer{
		address:        a,
		api:            boundary,
		issuer:         issuer,
		limiter:        limiter,
		allowedOrigins: allowedOrigins,
		logger:         l.With("module", "http_server"),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *HTTPServer) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis until ctx is done, then shuts down
// gracefully.
func (s *HTTPServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
