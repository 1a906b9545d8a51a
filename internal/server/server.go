package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/storekit/storekit/internal/config"
	"github.com/storekit/storekit/internal/metrics"
	"github.com/storekit/storekit/internal/middleware"
	"github.com/storekit/storekit/internal/storage"
)

// Server exposes a storage module over HTTP
type Server struct {
	config     *config.Config
	httpServer *http.Server
	store      storage.Module[any]
	metrics    *metrics.Manager
	logger     *logrus.Logger
	startTime  time.Time
}

// New creates a server for store. metricsManager may be nil.
func New(cfg *config.Config, store storage.Module[any], metricsManager *metrics.Manager, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		config: cfg,
		httpServer: &http.Server{
			Addr:         cfg.Server.Listen,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:     store,
		metrics:   metricsManager,
		logger:    logger,
		startTime: time.Now(),
	}
	s.httpServer.Handler = s.routes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is cancelled, then shuts down and closes the store
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("address", s.config.Server.Listen).Info("Starting API server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			s.logger.WithError(err).Error("API server error")
			s.closeStore()
			return err
		}
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	s.logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to shutdown API server")
	}

	s.closeStore()
	return nil
}

func (s *Server) closeStore() {
	if err := s.store.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close storage")
	}
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()

	var recorder middleware.RequestRecorder
	if s.metrics != nil {
		recorder = s.metrics
	}
	router.Use(middleware.Tracing, middleware.Logging(s.logger, recorder))

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	router.HandleFunc("/items/{key:.+}", s.handleGetItem).Methods(http.MethodGet)
	router.HandleFunc("/items/{key:.+}", s.handleHasItem).Methods(http.MethodHead)
	router.HandleFunc("/items/{key:.+}", s.handleSetItem).Methods(http.MethodPut)
	router.HandleFunc("/items/{key:.+}", s.handleRemoveItem).Methods(http.MethodDelete)

	router.HandleFunc("/list", s.handleListItems).Methods(http.MethodGet)
	router.HandleFunc("/list/{key:.*}", s.handleListItems).Methods(http.MethodGet)

	router.HandleFunc("/writable", s.handleIsWritable).Methods(http.MethodGet)
	router.HandleFunc("/writable/{key:.*}", s.handleIsWritable).Methods(http.MethodGet)

	router.HandleFunc("/copy", s.handleCopy).Methods(http.MethodPost)
	router.HandleFunc("/move", s.handleMove).Methods(http.MethodPost)

	if s.metrics != nil {
		path := s.config.Server.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, s.metrics.Handler()).Methods(http.MethodGet)
	}

	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(router)
}
