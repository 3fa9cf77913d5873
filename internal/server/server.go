// Package server assembles the WC reservation backend from its configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"wc-reservation-backend/config"
	"wc-reservation-backend/internal/api"
	"wc-reservation-backend/internal/avatar"
	"wc-reservation-backend/internal/db"
	"wc-reservation-backend/internal/engine"
	"wc-reservation-backend/internal/events"
	"wc-reservation-backend/internal/gateway"
	"wc-reservation-backend/internal/mw"
	"wc-reservation-backend/internal/notification"
	"wc-reservation-backend/internal/store"
)

// Server owns every long-lived component of the backend.
type Server struct {
	cfg *config.Config
	log zerolog.Logger

	db     *gorm.DB
	store  store.Store
	engine *engine.Engine
	hub    *gateway.Hub
	router *gin.Engine
	http   *http.Server

	cancel   context.CancelFunc
	stopOnce sync.Once
}

// Option tweaks a Server before it is started.
type Option func(*options)

type options struct {
	engineOpts []engine.Option
}

// WithEngineOptions forwards options to the reservation engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

// New opens storage, restores the reservation state and starts background
// workers. The returned server does not listen until Start is called.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Log.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	s := store.NewGormStore(gormDB)

	runCtx, cancel := context.WithCancel(context.Background())
	srv := &Server{cfg: cfg, log: log, db: gormDB, store: s, cancel: cancel}

	srv.engine = engine.New(s, append([]engine.Option{engine.WithLogger(log)}, o.engineOpts...)...)
	if err := srv.engine.Start(ctx); err != nil {
		srv.closeDB()
		cancel()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	var hooks []gateway.Hook
	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, s, webpushOptions, log)
		pool.Start(runCtx)
		hooks = append(hooks, pool)
		log.Info().Int("workers", cfg.WorkerPool.Size).Msg("push notifications enabled")
	} else {
		log.Warn().Msg("VAPID keys not configured, push notifications disabled")
	}

	if cfg.Events.Enabled {
		pub := events.NewPublisher(cfg.Events.URL, cfg.Events.Queue, log)
		go pub.Run(runCtx)
		hooks = append(hooks, pub)
		log.Info().Str("queue", cfg.Events.Queue).Msg("transition export enabled")
	}

	avatars, localAvatars, err := avatar.NewFromConfig(ctx, cfg.Avatar, log)
	if err != nil {
		srv.engine.Stop()
		srv.closeDB()
		cancel()
		return nil, fmt.Errorf("init avatar storage: %w", err)
	}

	limiter := mw.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)
	srv.hub = gateway.NewHub(cfg.Server.CORSOrigins, limiter, log)
	gw := gateway.New(srv.engine, s, srv.hub, log, hooks...)
	go gw.Run(runCtx)

	srv.router = api.NewRouter(api.Deps{
		Store:        s,
		Webpush:      webpushOptions,
		Avatars:      avatars,
		LocalAvatars: localAvatars,
		Hub:          srv.hub,
		Gateway:      gw,
		Limiter:      limiter,
		CacheTTL:     time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Log:          log,
	})
	srv.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv, nil
}

// Handler exposes the HTTP routes, for embedding in tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, disconnects clients and stops the
// engine. The open reservation stays in the database and is resumed by the
// next Start. Calls after the first are no-ops.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.log.Info().Msg("http server shutting down")
		err = s.http.Shutdown(ctx)
		s.hub.Close()
		s.engine.Stop()
		s.cancel()
		s.closeDB()
	})
	return err
}

func (s *Server) closeDB() {
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		s.log.Error().Err(err).Msg("close database")
	}
}
