// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/splitledger/internal/auth"
	"github.com/pendergraft/splitledger/internal/config"
	daoDomain "github.com/pendergraft/splitledger/internal/dao/domain"
	daoTransport "github.com/pendergraft/splitledger/internal/dao/transport"
	deploymentsDomain "github.com/pendergraft/splitledger/internal/deployments/domain"
	deploymentsTransport "github.com/pendergraft/splitledger/internal/deployments/transport"
	"github.com/pendergraft/splitledger/internal/events"
	"github.com/pendergraft/splitledger/internal/middleware/logging"
	"github.com/pendergraft/splitledger/internal/middleware/ratelimit"
	"github.com/pendergraft/splitledger/internal/middleware/realip"
	"github.com/pendergraft/splitledger/internal/middleware/security"
	"github.com/pendergraft/splitledger/internal/observability/metrics"
	recurringDomain "github.com/pendergraft/splitledger/internal/recurring/domain"
	recurringTransport "github.com/pendergraft/splitledger/internal/recurring/transport"
	splitsDomain "github.com/pendergraft/splitledger/internal/splits/domain"
	splitsTransport "github.com/pendergraft/splitledger/internal/splits/transport"
	"github.com/pendergraft/splitledger/internal/storage"
)

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	store  storage.Store
	logger *slog.Logger
	router *chi.Mux

	// ctx bounds background work started by middleware and Run
	ctx    context.Context
	cancel context.CancelFunc

	hub       *events.Hub
	publisher events.Publisher
	tokens    auth.TokenVerifier
	login     *auth.WalletLogin
	scheduler *recurringDomain.Scheduler

	// Services typed via transport interfaces
	splitsSvc      splitsTransport.Service
	daoSvc         daoTransport.Service
	plansSvc       recurringTransport.Service
	deploymentsSvc deploymentsTransport.Service
}

// New creates a new server. external receives every event in addition to the
// websocket hub and may be nil.
func New(cfg *config.Config, store storage.Store, external events.Publisher, logger *slog.Logger) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		router: chi.NewRouter(),
		ctx:    ctx,
		cancel: cancel,
		hub:    events.NewHub(logger),
	}
	s.publisher = events.Multi{s.hub, external}

	if err := s.setupAuth(); err != nil {
		cancel()
		return nil, err
	}

	authz := auth.NewAddressAuthorizer(cfg.Auth.Authorities, logger)
	if authz.Len() == 0 {
		logger.Warn("no DAO authorities configured; verification decisions and rejections are disabled")
	}
	timeout := cfg.Storage.Timeout

	// Create domain services
	daoImpl := daoDomain.NewService(store, authz, daoDomain.Options{
		Timeout:   timeout,
		Publisher: s.publisher,
		Logger:    logger,
	})
	daoSvc := daoDomain.LoggingMiddleware(logger)(daoImpl)

	splitsImpl := splitsDomain.NewService(store, daoSvc, authz, splitsDomain.Options{
		Timeout:   timeout,
		Publisher: s.publisher,
		Logger:    logger,
	})

	plansImpl := recurringDomain.NewService(store, recurringDomain.Options{
		Timeout:   timeout,
		Publisher: s.publisher,
		Logger:    logger,
	})

	deployImpl := deploymentsDomain.NewService(store, deploymentsDomain.Options{
		Timeout:   timeout,
		Publisher: s.publisher,
		Logger:    logger,
	})

	s.daoSvc = daoSvc
	s.splitsSvc = splitsDomain.LoggingMiddleware(logger)(splitsImpl)
	s.plansSvc = recurringDomain.LoggingMiddleware(logger)(plansImpl)
	s.deploymentsSvc = deploymentsDomain.LoggingMiddleware(logger)(deployImpl)

	if cfg.Recurring.Enabled {
		s.scheduler = recurringDomain.NewScheduler(store, recurringDomain.SchedulerOptions{
			Tick:      cfg.Recurring.Tick,
			Timeout:   timeout,
			Publisher: s.publisher,
			Logger:    logger,
		})
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// setupAuth enables wallet sign-in when a JWT secret is configured.
func (s *Server) setupAuth() error {
	if s.cfg.Auth.JWTSecret == "" {
		s.logger.Warn("JWT_SECRET not set; wallet sign-in is disabled")
		return nil
	}
	issuer, err := auth.NewIssuer(s.cfg.Auth.JWTSecret, s.cfg.Auth.JWTTTL)
	if err != nil {
		return fmt.Errorf("configuring session tokens: %w", err)
	}
	s.tokens = issuer
	s.login = auth.NewWalletLogin(auth.NewNonceStore(s.cfg.Auth.NonceTTL), issuer)
	return nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run runs background work (the recurring plan scheduler) until ctx is done.
func (s *Server) Run(ctx context.Context) {
	if s.scheduler == nil {
		<-ctx.Done()
		return
	}
	s.scheduler.Run(ctx)
}

// Close disconnects websocket clients and stops background middleware work.
func (s *Server) Close() {
	s.cancel()
	s.hub.Close()
}

func (s *Server) setupMiddleware() {
	// Order matters: the client address must be known before filtering and
	// rate limiting, and scanner traffic is dropped before anything is logged.
	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Proxy.TrustProxy,
		TrustedProxies: s.cfg.Proxy.TrustedProxies,
	}))
	s.router.Use(security.FilterMiddleware(s.cfg.Security.FilterEnabled))
	s.router.Use(security.MaxBodySize(s.cfg.Security.MaxBodySizeKB))
	s.router.Use(ratelimit.Middleware(s.ctx, ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		WritesPerMin:   s.cfg.RateLimit.WritesPerMin,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	}))

	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)

	// CORS
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-API-Key")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)

	if s.cfg.Metrics.Enabled {
		s.router.Handle("/metrics", metrics.Handler())
	}

	// Create HTTP handlers for each domain
	splitsHandler := splitsTransport.NewHandler(s.splitsSvc, s.logger)
	daoHandler := daoTransport.NewHandler(s.daoSvc, s.splitsSvc, s.logger)
	plansHandler := recurringTransport.NewHandler(s.plansSvc, s.logger)
	deploymentsHandler := deploymentsTransport.NewHandler(s.deploymentsSvc, s.logger)

	// Legacy dashboard endpoint
	s.router.Get("/api/dao", daoHandler.LegacyHandler())

	// Auth middleware for write operations
	requireAuth := func(r chi.Router) {
		if s.cfg.Auth.Type == "api-key" {
			r.Use(auth.Middleware(s.store, s.tokens, writeError))
		}
	}

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Session tokens identify the actor on every route, including
		// authority actions when API keys are not required.
		r.Use(auth.OptionalMiddleware(s.store, s.tokens))

		// Event stream is read-only and long-lived
		r.Handle("/events", s.hub)

		// Credential check for clients, authenticated in every auth mode
		r.With(auth.Middleware(s.store, s.tokens, writeError)).Get("/whoami", s.handleWhoami)

		if s.login != nil {
			r.Route("/auth", auth.NewHandler(s.login, s.logger).RegisterRoutes)
		}

		r.Route("/splits", func(r chi.Router) {
			splitsHandler.RegisterReadRoutes(r)
			r.Group(func(r chi.Router) {
				requireAuth(r)
				r.Use(security.RequireJSON)
				splitsHandler.RegisterWriteRoutes(r)
			})
		})

		r.Route("/dao", func(r chi.Router) {
			daoHandler.RegisterReadRoutes(r)
			r.Group(func(r chi.Router) {
				requireAuth(r)
				r.Use(security.RequireJSON)
				daoHandler.RegisterWriteRoutes(r)
			})
		})

		r.Route("/plans", func(r chi.Router) {
			plansHandler.RegisterReadRoutes(r)
			r.Group(func(r chi.Router) {
				requireAuth(r)
				r.Use(security.RequireJSON)
				plansHandler.RegisterWriteRoutes(r)
			})
		})

		r.Route("/deployments", func(r chi.Router) {
			deploymentsHandler.RegisterReadRoutes(r)
			r.Group(func(r chi.Router) {
				requireAuth(r)
				r.Use(security.RequireJSON)
				deploymentsHandler.RegisterWriteRoutes(r)
			})
		})
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the ledger store is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"eventSubscribers": s.hub.ClientCount(),
	})
}

// handleWhoami reports which credentials the request carried.
func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{}
	if key := auth.GetAPIKeyFromContext(r.Context()); key != nil {
		resp["apiKey"] = key.Name
	}
	if actor := auth.ActorFromContext(r.Context()); actor != "" {
		resp["address"] = actor
	}
	writeJSON(w, http.StatusOK, resp)
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
