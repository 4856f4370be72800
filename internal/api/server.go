package api

import (
	"context"
	"net/http"
	"time"

	"example.com/showtime/services/notifier/config"
	"example.com/showtime/services/notifier/internal/api/handlers"
	"example.com/showtime/services/notifier/internal/metrics"
	"example.com/showtime/services/notifier/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Server represents the operator HTTP server
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server
}

// Stores bundles the persistence surfaces the API reads and writes
type Stores struct {
	Events interface {
		handlers.EventLister
		handlers.DeliveryResetter
	}
	Artists  handlers.ArtistStore
	Statuses handlers.StatusStore
	Search   handlers.Searcher
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, stores Stores, m *metrics.Metrics, tracer tracing.Tracer) *Server {
	server := &Server{config: cfg}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	handlers.NewMetricsHandler(m, tracer).RegisterRoutes(router)
	handlers.NewStatusHandler(stores.Statuses, tracer).RegisterRoutes(router)
	handlers.NewArtistsHandler(stores.Artists, stores.Events, tracer).RegisterRoutes(router)
	handlers.NewEventsHandler(stores.Events, stores.Search, tracer).RegisterRoutes(router)

	server.router = router
	server.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Server.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
