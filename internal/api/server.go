// Package api serves the JSON HTTP interface over the transcript store and
// the exchange orchestrator.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/zulandar/momotalk/internal/models"
	"github.com/zulandar/momotalk/internal/store"
)

// Exchanger runs chat exchanges. AppendMessage stores a manual message
// serialized with any exchange on the same conversation.
type Exchanger interface {
	Exchange(ctx context.Context, incoming models.Turn, conversationID string) (models.Turn, error)
	AppendMessage(ctx context.Context, data store.MessageData) (*models.Message, error)
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Store     *store.Store
	Exchanger Exchanger
	Port      int
	Out       io.Writer

	// PollInterval is how often the message event stream checks for new
	// messages. Defaults to 2s.
	PollInterval time.Duration
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("api: store is required")
	}
	if opts.Exchanger == nil {
		return fmt.Errorf("api: exchanger is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := NewRouter(opts)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "API listening on http://localhost:%d\n", opts.Port)
	}
	log.Info().Int("port", opts.Port).Msg("api server started")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(opts StartOpts) *gin.Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	registerRoutes(router, opts)
	return router
}

// requestLogger logs each request through zerolog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	}
}
