package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"signalmirror/src/auth"
)

type tokenVerifier interface {
	Verify(token string) bool
}

// Routes are the operator endpoints of the query API.
type Routes struct {
	Executions http.HandlerFunc
	Positions  http.HandlerFunc
	TradeLogs    http.HandlerFunc
	MirrorStatus http.HandlerFunc
	Mirror       http.HandlerFunc
}

// NewRouter mounts the public health check and the operator routes.
func NewRouter(verifier tokenVerifier, routes Routes) http.Handler {
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("healthcheck write failed")
		}
	})

	// Operator routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireOperator(verifier))
		r.Get("/executions", routes.Executions)
		r.Get("/positions", routes.Positions)
		r.Get("/signals/{id}/trade-logs", routes.TradeLogs)
		r.Get("/signals/{id}/mirror-status", routes.MirrorStatus)
		r.Post("/signals/{id}/mirror", routes.Mirror)
	})

	return r
}

func newHTTPServer(cfg *Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.addr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// StartServer serves handler until SIGINT or SIGTERM.
func StartServer(cfg *Config, handler http.Handler) {
	srv := newHTTPServer(cfg, handler)

	go func() {
		logger.Infof("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.WithField("timeout", cfg.ShutdownTimeout).Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
