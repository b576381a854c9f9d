/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires configuration, storage, the scheduling facade,
// and the HTTP surface into one process.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/skuld/internal/api"
	"github.com/friendsincode/skuld/internal/audit"
	"github.com/friendsincode/skuld/internal/cache"
	"github.com/friendsincode/skuld/internal/chain"
	"github.com/friendsincode/skuld/internal/config"
	"github.com/friendsincode/skuld/internal/db"
	"github.com/friendsincode/skuld/internal/eventbus"
	"github.com/friendsincode/skuld/internal/events"
	"github.com/friendsincode/skuld/internal/models"
	"github.com/friendsincode/skuld/internal/scheduler"
	"github.com/friendsincode/skuld/internal/scheduling"
	"github.com/friendsincode/skuld/internal/store"
	"github.com/friendsincode/skuld/internal/telemetry"
	"github.com/friendsincode/skuld/internal/version"
	"github.com/friendsincode/skuld/internal/webhooks"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db         *gorm.DB
	store      *store.Store
	cache      *cache.Cache
	mirror     *eventbus.Mirror
	bus        *events.Bus
	clock      chain.Clock
	scheduler  *scheduler.Service
	auditSvc   *audit.Service
	webhookSvc *webhooks.Service
	updates    *version.Checker
	api        *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	// Skip the request timeout for the websocket event feed.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		// WriteTimeout stays 0 for the websocket feed; the middleware
		// timeout covers the plain routes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	st, err := store.New(database, s.logger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	s.store = st

	blockTime := time.Duration(s.cfg.Network.BlockTime) * time.Second
	s.clock = chain.NewSystemClock(s.cfg.Network.Genesis, blockTime, s.cfg.Network.GasPrice)
	dispatcher := chain.NewLocalDispatcher(s.logger)
	validator := scheduling.NewValidator(s.clock, s.cfg.Network.GasCeiling, s.cfg.Network.ConfirmationBlocks, s.logger)

	var cacher scheduler.Cacher
	if s.cfg.CacheEnabled {
		snapCache, err := cache.New(cache.Config{
			RedisAddr:      s.cfg.RedisAddr,
			RedisPassword:  s.cfg.RedisPassword,
			RedisDB:        s.cfg.RedisDB,
			RequestTTL:     cache.DefaultRequestTTL,
			DisableOnError: true,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("init cache: %w", err)
		}
		s.cache = snapCache
		cacher = snapCache
		s.DeferClose(snapCache.Close)
	}

	s.scheduler = scheduler.New(validator, s.clock, dispatcher, s.bus, st, cacher, s.logger)

	// Rebuild in-memory state from the event log before serving.
	replayCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	applied, err := st.Replay(replayCtx, s.scheduler)
	if err != nil {
		return fmt.Errorf("replay event log: %w", err)
	}
	s.logger.Info().
		Int("events", applied).
		Int("known", s.scheduler.Known()).
		Int("discoverable", s.scheduler.Indexed()).
		Msg("scheduler state rebuilt")

	s.auditSvc = audit.NewService(database, s.bus, s.logger)

	if err := database.AutoMigrate(&models.WebhookTarget{}, &models.WebhookLog{}, &models.APIKey{}); err != nil {
		return fmt.Errorf("migrate auxiliary tables: %w", err)
	}
	s.webhookSvc = webhooks.NewService(database, s.bus, s.logger)

	if s.cfg.EventBusEnabled {
		mirrorCfg := eventbus.DefaultNATSConfig()
		mirrorCfg.URL = s.cfg.NATSURL
		mirrorCfg.NodeID = s.cfg.NodeID
		mirror, err := eventbus.NewMirror(mirrorCfg, s.bus, s.logger)
		if err != nil {
			return fmt.Errorf("init event mirror: %w", err)
		}
		s.mirror = mirror
		s.DeferClose(mirror.Close)
	}

	s.api = api.New(database, []byte(s.cfg.JWTSigningKey), s.scheduler, s.cache, s.auditSvc, s.webhookSvc, s.bus, s.clock, s.logger)
	return nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.auditSvc.Start(ctx)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.webhookSvc.Start(ctx)
	}()

	s.updates = version.NewChecker(s.logger)
	s.updates.Start(ctx)
	s.DeferClose(func() error {
		s.updates.Stop()
		return nil
	})
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.bgWG.Wait()
}

// HTTPServer returns the configured HTTP server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Scheduler returns the scheduling facade.
func (s *Server) Scheduler() *scheduler.Service {
	return s.scheduler
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}
