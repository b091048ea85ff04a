// Package daemon assembles collabd: store, relay, hub, HTTP surface and the
// admin health socket, wired with fx.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/collab/internal/auth"
	"github.com/matheus3301/collab/internal/bus"
	"github.com/matheus3301/collab/internal/config"
	"github.com/matheus3301/collab/internal/httpapi"
	"github.com/matheus3301/collab/internal/hub"
	"github.com/matheus3301/collab/internal/lock"
	"github.com/matheus3301/collab/internal/logging"
	"github.com/matheus3301/collab/internal/profile"
	"github.com/matheus3301/collab/internal/relay"
	"github.com/matheus3301/collab/internal/store"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	SocketPath string         // optional override for testing; empty = use default
	Config     *config.Config // optional; nil = resolve from config.toml and environment
	Logger     *zap.Logger    // optional; nil = log to the profile's collabd.log
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideRelay,
			provideHub,
			provideRouter,
			provideHTTPServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg := p.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Resolve(profile.ConfigPath()); err != nil {
			return nil, err
		}
	}
	if err := cfg.Server.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(profile.LogPath(p.Profile, "collabd"), p.Profile, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is only opened by its owner.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRelay(p Params, cfg *config.Config, logger *zap.Logger) (relay.Relay, error) {
	if cfg.Server.NATSURL == "" {
		logger.Info("using in-process relay")
		return relay.NewLocal(), nil
	}
	host, _ := os.Hostname()
	r, err := relay.DialNATS(relay.NATSConfig{
		URL:     cfg.Server.NATSURL,
		Subject: cfg.Server.NATSSubject,
		Token:   cfg.Server.NATSToken,
		Name:    fmt.Sprintf("collabd-%s-%s", p.Profile, host),
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("using nats relay", zap.String("url", cfg.Server.NATSURL))
	return r, nil
}

func provideHub(cfg *config.Config, r relay.Relay, db *store.DB, b *bus.Bus, logger *zap.Logger) (*hub.Hub, error) {
	return hub.New(hub.Options{AllowedOrigins: cfg.Server.AllowedOrigins}, r, db, b, logger)
}

func provideRouter(cfg *config.Config, db *store.DB, h *hub.Hub, logger *zap.Logger) http.Handler {
	opts := httpapi.Options{
		Verifier:          auth.NewVerifier(cfg.Server.JWTSecret),
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RateLimitRequests: cfg.Server.RateLimitRequests,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
		HistoryLimit:      cfg.Server.HistoryLimit,
	}
	if cfg.Server.DevTokens {
		logger.Warn("development token endpoint enabled")
		opts.Issuer = auth.NewIssuer(cfg.Server.JWTSecret, cfg.Server.TokenTTL)
	}
	return httpapi.NewRouter(opts, db, h, logger)
}

func provideHTTPServer(cfg *config.Config, h http.Handler, logger *zap.Logger) (*HTTPServer, error) {
	return NewHTTPServer(cfg.Server.ListenAddr, h, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, admin *Server, web *HTTPServer, h *hub.Hub, r relay.Relay, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := admin.Start(); err != nil {
					logger.Error("admin server error", zap.Error(err))
				}
			}()
			go func() {
				if err := web.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
					admin.SetServing(false)
				}
			}()
			admin.SetServing(true)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			admin.SetServing(false)
			stopCtx := ctx
			if cfg.Server.ShutdownTimeout > 0 {
				var cancel context.CancelFunc
				stopCtx, cancel = context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
				defer cancel()
			}
			if err := web.Stop(stopCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			if err := h.Close(stopCtx); err != nil {
				logger.Warn("websocket sessions did not drain", zap.Error(err))
			}
			if err := r.Close(); err != nil {
				logger.Warn("relay close", zap.Error(err))
			}
			admin.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
