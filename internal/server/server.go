package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/openveil/pii-gateway/internal/catalog"
	"github.com/openveil/pii-gateway/internal/classify"
	"github.com/openveil/pii-gateway/internal/config"
	"github.com/openveil/pii-gateway/internal/events"
	"github.com/openveil/pii-gateway/internal/gateway"
	"github.com/openveil/pii-gateway/internal/logger"
	"github.com/openveil/pii-gateway/internal/policy"
	"github.com/openveil/pii-gateway/internal/provider"
	"github.com/openveil/pii-gateway/internal/usage"
)

// Server wires the gateway pipeline behind an HTTP API.
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	gateway  *gateway.Gateway
	catalog  *catalog.Catalog
	store    *catalog.Store
	recorder usage.Recorder
	hub      *events.Hub
	limiter  *clientLimiter
	router   *mux.Router
	server   *http.Server
	started  time.Time
}

// New creates a gateway server. The initial catalog load happens here; a
// load failure aborts startup so the server never runs without patterns.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Server, error) {
	var (
		source catalog.Source
		store  *catalog.Store
	)
	switch cfg.Catalog.Source {
	case "postgres":
		var err error
		store, err = catalog.NewStore(&catalog.StoreConfig{
			DatabaseURL:     cfg.Catalog.DatabaseURL,
			MaxOpenConns:    cfg.Catalog.MaxOpenConns,
			MaxIdleConns:    cfg.Catalog.MaxIdleConns,
			ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
		}, log.WithComponent("catalog").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open catalog store: %w", err)
		}
		source = store
	default:
		source = &catalog.BuiltinSource{}
	}

	cat, err := catalog.New(ctx, source, cfg.Catalog.RefreshInterval, log.WithComponent("catalog"))
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	var recorder usage.Recorder = usage.NopRecorder{}
	if cfg.Usage.Enabled {
		recorder, err = usage.NewRedisRecorder(&usage.Config{
			RedisURL:       cfg.Usage.RedisURL,
			KeyPrefix:      cfg.Usage.KeyPrefix,
			RecordTTL:      cfg.Usage.RecordTTL,
			MaxConnections: cfg.Usage.MaxConnections,
			MinIdleConns:   cfg.Usage.MinIdleConns,
		}, log.WithComponent("usage").Logger)
		if err != nil {
			cat.Stop()
			if store != nil {
				store.Close()
			}
			return nil, fmt.Errorf("failed to create usage recorder: %w", err)
		}
	}

	var hub *events.Hub
	if cfg.WebSocket.Enabled {
		hub = events.NewHub(&events.HubConfig{
			BroadcastDetections: cfg.WebSocket.BroadcastDetections,
			BroadcastRoutes:     cfg.WebSocket.BroadcastRoutes,
			BroadcastSystem:     cfg.WebSocket.BroadcastSystem,
			MaxConnections:      cfg.WebSocket.MaxConnections,
		}, log)
	}

	gw := gateway.New(
		cat,
		classify.New(log.WithComponent("classify")),
		policy.NewEngine(cfg.Policy.TrustLocalProviders, log.WithComponent("policy")),
		provider.NewClient(cfg.Providers, log.WithComponent("provider")),
		recorder,
		hub,
		log,
	)

	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		gateway:  gw,
		catalog:  cat,
		store:    store,
		recorder: recorder,
		hub:      hub,
		limiter:  newClientLimiter(cfg.RateLimit),
		router:   mux.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.hub != nil {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.hub.HandleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/classify", s.handleClassify).Methods("POST")
	api.HandleFunc("/sanitize", s.handleSanitize).Methods("POST")
	api.HandleFunc("/reverse", s.handleReverse).Methods("POST")
	api.HandleFunc("/route", s.handleRoute).Methods("POST")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
}

// Start runs the HTTP server, the catalog refresher, and the event hub.
// It blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.started = time.Now()

	s.logger.Info("Starting gateway server",
		zap.Int("port", s.config.Server.Port),
		zap.String("catalog_source", s.config.Catalog.Source),
		zap.Bool("trust_local_providers", s.config.Policy.TrustLocalProviders),
	)

	s.catalog.StartRefresher()

	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			s.limiter.Cleanup(time.Hour)
		}
	}()

	if s.hub != nil {
		go s.hub.Run()
		go s.broadcastSystemStatus()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping gateway server")

	s.catalog.Stop()
	if s.hub != nil {
		s.hub.Stop()
	}
	if err := s.recorder.Close(); err != nil {
		s.logger.Warn("Failed to close usage recorder", zap.Error(err))
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("Failed to close catalog store", zap.Error(err))
		}
	}

	return s.server.Shutdown(ctx)
}

// ApplyConfig applies the hot-reloadable subset of a new configuration.
// Server, catalog, and provider changes require a restart.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.limiter.UpdateConfig(cfg.RateLimit)
	s.logger.Info("Configuration reloaded",
		zap.Bool("rate_limit_enabled", cfg.RateLimit.Enabled),
		zap.Float64("rate_limit_rps", cfg.RateLimit.RequestsPerSec),
		zap.Int("rate_limit_burst", cfg.RateLimit.Burst),
	)
}

// broadcastSystemStatus emits a periodic status event while the hub runs.
func (s *Server) broadcastSystemStatus() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		snap, ok := s.gateway.Snapshot()
		status := "healthy"
		patterns, dictSize := 0, 0
		if ok {
			patterns = len(snap.Patterns)
			dictSize = len(snap.Dictionary)
		} else {
			status = "degraded"
		}

		s.hub.BroadcastEvent(events.Event{
			Type:      events.EventTypeSystem,
			Timestamp: time.Now(),
			Data: events.SystemEvent{
				Status:           status,
				Uptime:           time.Since(s.started).Round(time.Second).String(),
				ActivePatterns:   patterns,
				DictionarySize:   dictSize,
				ConnectedClients: int(s.hub.GetStats().ActiveConnections),
			},
		})
	}
}
