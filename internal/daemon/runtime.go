package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/felixgeelhaar/benjudge/internal/cache"
	"github.com/felixgeelhaar/benjudge/internal/catalog"
	"github.com/felixgeelhaar/benjudge/internal/config"
	"github.com/felixgeelhaar/benjudge/internal/domain"
	"github.com/felixgeelhaar/benjudge/internal/judge"
	"github.com/felixgeelhaar/benjudge/internal/ledger"
	"github.com/felixgeelhaar/benjudge/internal/llm"
	"github.com/felixgeelhaar/benjudge/internal/metrics"
	"github.com/felixgeelhaar/benjudge/internal/queue"
	"github.com/felixgeelhaar/benjudge/internal/storage/postgres"
	"github.com/felixgeelhaar/benjudge/internal/storage/sqlite"
	"github.com/felixgeelhaar/benjudge/internal/verdict"
	"github.com/prometheus/client_golang/prometheus"
)

// Runtime holds the collaborators built from a Config. It is shared by the
// HTTP daemon and the MCP server.
type Runtime struct {
	Config   *config.Config
	Catalog  *catalog.Registry
	Store    domain.Store
	Cache    cache.Cache
	Registry *llm.Registry
	Judge    *judge.Service
	Metrics  *metrics.Metrics

	closers []io.Closer
	logger  *slog.Logger
}

// OpenStore opens the configured progress store, applies pending migrations
// and returns the resulting schema version.
func OpenStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (domain.Store, int, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, 0, err
		}
		version, err := postgres.Migrate(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, 0, fmt.Errorf("migrate postgres: %w", err)
		}
		return postgres.NewStore(pool), version, nil
	default:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, 0, err
		}
		version, err := db.Migrate(ctx, logger)
		if err != nil {
			db.Close()
			return nil, 0, fmt.Errorf("migrate sqlite: %w", err)
		}
		return sqlite.NewStore(db), version, nil
	}
}

// NewRuntime builds every collaborator described by cfg. reg receives the
// Prometheus collectors; nil uses the default registerer.
func NewRuntime(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (rt *Runtime, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt = &Runtime{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	rt.Metrics = metrics.New(reg)

	rt.Catalog = catalog.NewRegistry(catalog.NewLoader(cfg.Catalog.Path))
	if err := rt.Catalog.Load(); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("catalog loaded", "path", cfg.Catalog.Path, "problems", rt.Catalog.Count())

	var version int
	rt.Store, version, err = OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info("store ready", "driver", cfg.Storage.Driver, "schema_version", version)
	rt.closers = append(rt.closers, rt.Store)

	base, err := openCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, base)
	rt.Cache = cache.NewInstrumented(base, rt.Metrics)

	keyer, err := cache.NewKeyer(cfg.Cache.KeyMode)
	if err != nil {
		return nil, err
	}

	rt.Registry = llm.NewRegistry()
	if err := setupProviders(ctx, rt.Registry, cfg.Reasoning, logger); err != nil {
		return nil, fmt.Errorf("setup providers: %w", err)
	}
	provider, err := rt.Registry.Default()
	if err != nil {
		return nil, fmt.Errorf("reasoning provider: %w", err)
	}

	reviewer, err := verdict.New(cfg.Verdict.Mode, cfg.Verdict.LegacyFallback)
	if err != nil {
		return nil, err
	}

	ledgerOpts := []ledger.Option{ledger.WithLogger(logger)}
	if cfg.Queue.Enabled {
		conn, err := queue.NewConnection(cfg.Queue.URL, cfg.Queue.MessageTTL)
		if err != nil {
			return nil, fmt.Errorf("connect queue: %w", err)
		}
		rt.closers = append(rt.closers, conn)
		ledgerOpts = append(ledgerOpts, ledger.WithNotifier(queue.NewProducer(conn)))
	}
	led := ledger.New(rt.Store, cfg.Ledger.Rules, cfg.Ledger.Options(), ledgerOpts...)

	rt.Judge, err = judge.NewService(judge.Config{
		Problems:       rt.Catalog,
		Provider:       provider,
		Cache:          rt.Cache,
		Keyer:          keyer,
		Reviewer:       reviewer,
		Ledger:         led,
		Limits:         cfg.Reasoning.Limits,
		CollapseMisses: cfg.Cache.CollapseMisses,
		Observer:       rt.Metrics,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	return rt, nil
}

// Close releases every resource in reverse order of acquisition.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	if rt.Registry != nil {
		if err := rt.Registry.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openCache(cfg config.CacheConfig, logger *slog.Logger) (interface {
	cache.Cache
	io.Closer
}, error) {
	switch cfg.Backend {
	case "badger":
		c, err := cache.OpenBadger(cfg.Path, cfg.TTL, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("cache backend", "backend", "badger", "path", cfg.Path, "ttl", cfg.TTL)
		return c, nil
	default:
		logger.Info("cache backend", "backend", "memory", "ttl", cfg.TTL, "max_entries", cfg.MaxEntries)
		return cache.NewMemory(cache.MemoryConfig{
			TTL:           cfg.TTL,
			SweepInterval: cfg.SweepInterval,
			MaxEntries:    cfg.MaxEntries,
		}), nil
	}
}

// setupProviders registers every enabled provider that has credentials,
// each wrapped with the configured resilience policies.
func setupProviders(ctx context.Context, registry *llm.Registry, cfg config.ReasoningConfig, logger *slog.Logger) error {
	resilience := cfg.Resilience
	resilience.Logger = logger

	for name, providerCfg := range cfg.Providers {
		if !providerCfg.Enabled {
			continue
		}
		if providerCfg.APIKey == "" {
			logger.Debug("provider enabled but no API key set", "name", name)
			continue
		}

		var provider llm.Provider
		switch name {
		case config.ProviderGemini:
			p, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{
				APIKey:  providerCfg.APIKey,
				Model:   providerCfg.Model,
				BaseURL: providerCfg.URL,
			})
			if err != nil {
				return err
			}
			provider = p
		case config.ProviderClaude:
			provider = llm.NewClaudeProvider(llm.ClaudeConfig{
				APIKey:  providerCfg.APIKey,
				BaseURL: providerCfg.URL,
				Model:   providerCfg.Model,
			})
		case config.ProviderOpenAI:
			provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
				APIKey:  providerCfg.APIKey,
				BaseURL: providerCfg.URL,
				Model:   providerCfg.Model,
			})
		default:
			logger.Warn("unknown provider in config", "name", name)
			continue
		}

		registry.Register(name, llm.NewResilientProvider(provider, resilience))
		logger.Info("registered reasoning provider", "name", name, "model", providerCfg.Model)
	}

	if cfg.DefaultProvider != "" {
		if err := registry.SetDefault(cfg.DefaultProvider); err != nil {
			logger.Warn("default provider unavailable, falling back", "name", cfg.DefaultProvider, "error", err)
		}
	}
	return nil
}
