package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"holders-backend/internal/history"
	"holders-backend/internal/models"
	"holders-backend/internal/utils"
)

// Config holds HTTP server configuration
type Config struct {
	Addr            string        `json:"addr" yaml:"addr"`                        // listen address (default: :8080)
	AllowedOrigins  []string      `json:"allowedOrigins" yaml:"allowed_origins"`   // CORS origins (default: *)
	ShutdownTimeout time.Duration `json:"shutdownTimeout" yaml:"shutdown_timeout"` // graceful shutdown limit (default: 10s)
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		AllowedOrigins:  []string{"*"},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Tracker is the pipeline surface exposed over HTTP
type Tracker interface {
	Subject() string
	SetSubject(subject string) error
	Cadence() string
	SetCadence(cadence string) error
	Status() models.Status
	Snapshot() []models.Sample
	Metadata() models.TokenMetadata
	History() *history.History
}

// Hub accepts WebSocket clients
type Hub interface {
	UpgradeConnection(w http.ResponseWriter, r *http.Request)
	GetClientCount() int
	Stats() utils.QueueStats
}

// Server represents the HTTP server
type Server struct {
	config  Config
	tracker Tracker
	hub     Hub
	started time.Time
}

// NewServer creates a new server for tracker and hub
func NewServer(config Config, tracker Tracker, hub Hub) *Server {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = DefaultConfig().AllowedOrigins
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	return &Server{
		config:  config,
		tracker: tracker,
		hub:     hub,
		started: time.Now(),
	}
}

// Router builds the route table
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/ws", s.hub.UpgradeConnection)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/series", s.handleSeries)
		r.Get("/metadata", s.handleMetadata)
		r.Get("/cadences", s.handleCadences)

		r.Get("/subject", s.handleGetSubject)
		r.Put("/subject", s.handleSetSubject)

		r.Get("/cadence", s.handleGetCadence)
		r.Put("/cadence", s.handleSetCadence)

		r.Get("/history", s.handleListHistory)
		r.Post("/history", s.handleAddHistory)
		r.Delete("/history", s.handleClearHistory)
	})

	// Health check endpoint (for compatibility)
	r.Get("/health", s.handleHealth)

	return r
}

// Start serves HTTP until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.ServerLogger.Info("HTTP server listening on %s", s.config.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	utils.ServerLogger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// requestLogger logs each request on the server component logger
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		utils.ServerLogger.Debug("%s %s %d %v [%s]",
			r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}
