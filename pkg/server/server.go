package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravi-parthasarathy/fidi/pkg/config"
)

// Server owns the process-wide pieces of one mock node: the health state,
// the bounded caller pool, and the HTTP listener.
type Server struct {
	cfg     config.Server
	logger  zerolog.Logger
	health  *Health
	pool    *Pool
	handler *Handler
}

// New assembles a server from its configuration.
func New(cfg config.Server, logger zerolog.Logger) *Server {
	health := NewHealth()
	pool := NewPool(PoolMinWorkers, PoolMaxWorkers)
	exec := NewExecutor(logger, pool, health)
	return &Server{
		cfg:     cfg,
		logger:  logger,
		health:  health,
		pool:    pool,
		handler: NewHandler(logger, health, exec),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully. A bind
// failure is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.handler.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info().Msg("Fidi Server Started")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on :%d: %w", s.cfg.Port, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Fidi Server Shutting Down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.pool.Close()
	return nil
}
