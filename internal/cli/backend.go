package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/regions"
	"github.com/aretw0/regions/internal/config"
	"github.com/aretw0/regions/pkg/adapters/memory"
	"github.com/aretw0/regions/pkg/adapters/redis"
	"github.com/aretw0/regions/pkg/domain"
	"github.com/aretw0/regions/pkg/persistence/middleware"
	"github.com/aretw0/regions/pkg/ports"
	"github.com/aretw0/regions/pkg/session"
)

// HooksFunc returns the lifecycle hooks for a new session.
type HooksFunc func(sessionID string) domain.LifecycleHooks

// Backend bundles the engine and stores selected by configuration.
type Backend struct {
	Engine *memory.Engine
	Store  ports.RecordStore
	Locker ports.DistributedLocker

	cfg     config.Config
	logger  *slog.Logger
	closers []func() error
}

// NewBackend initializes the headless engine and, when store.backend is
// "redis", a shared redis record store with a distributed locker.
func NewBackend(cfg config.Config, logger *slog.Logger) (*Backend, error) {
	b := &Backend{
		Engine: memory.NewEngine(),
		cfg:    cfg,
		logger: logger,
	}
	b.Store = b.Engine

	if cfg.Store.Backend == "redis" {
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
		)
		if err := store.Client().Ping(context.Background()).Err(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		b.Store = store
		if cfg.Store.EncryptionKey != "" {
			mw, err := encryption(cfg.Store)
			if err != nil {
				_ = store.Close()
				return nil, err
			}
			b.Store = mw(store)
		}
		b.Locker = redis.NewLocker(store.Client(), cfg.Redis.Prefix)
		b.closers = append(b.closers, store.Close)
		logger.Info("Using redis record store", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix,
			"encrypted", cfg.Store.EncryptionKey != "")
	}
	return b, nil
}

func encryption(cfg config.StoreConfig) (middleware.Middleware, error) {
	active, err := middleware.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("store.encryption_key: %w", err)
	}
	ec := middleware.EncryptionConfig{ActiveKey: active}
	for i, k := range cfg.FallbackKeys {
		key, err := middleware.ParseKey(k)
		if err != nil {
			return nil, fmt.Errorf("store.fallback_keys[%d]: %w", i, err)
		}
		ec.FallbackKeys = append(ec.FallbackKeys, key)
	}
	return middleware.NewEncryptionMiddleware(ec), nil
}

// Options returns the viewer options for one session.
func (b *Backend) Options(sessionID string, hooks domain.LifecycleHooks) []regions.Option {
	opts := []regions.Option{
		regions.WithRenderer(b.Engine),
		regions.WithImageSource(b.Engine),
		regions.WithRecordStore(b.Store),
		regions.WithSurface(sessionID),
		regions.WithTool(b.cfg.Tool.Name),
		regions.WithSettleWindow(b.cfg.Debounce.Window),
		regions.WithLegacyRemoval(b.cfg.Store.LegacyRemoval),
		regions.WithRedrawPasses(b.cfg.Store.RedrawPasses),
		regions.WithLogger(b.logger),
		regions.WithName(sessionID),
		regions.WithLifecycleHooks(domain.ComposeHooks(createDebugHooks(b.logger), hooks)),
	}
	if len(b.cfg.Store.IdentityFields) > 0 {
		opts = append(opts, regions.WithIdentityFields(b.cfg.Store.IdentityFields...))
	}
	return opts
}

// Factory returns a session factory building one viewer per session.
// hooks may be nil.
func (b *Backend) Factory(hooks HooksFunc) session.Factory {
	return func(ctx context.Context, sessionID string) (ports.Workspace, error) {
		var h domain.LifecycleHooks
		if hooks != nil {
			h = hooks(sessionID)
		}
		return regions.New(b.Options(sessionID, h)...)
	}
}

// SessionOptions returns the manager options matching the backend.
func (b *Backend) SessionOptions() []session.Option {
	opts := []session.Option{
		session.WithLogger(b.logger),
		session.WithLockTTL(b.cfg.Redis.LockTTL),
	}
	if b.Locker != nil {
		opts = append(opts, session.WithLocker(b.Locker))
	}
	return opts
}

// Close releases backend connections.
func (b *Backend) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
