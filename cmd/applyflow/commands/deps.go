package commands

import (
	"context"
	"fmt"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/applyflow/applyflow/internal/engine"
	"github.com/applyflow/applyflow/internal/lease"
	leaseredis "github.com/applyflow/applyflow/internal/lease/redis"
	leasestore "github.com/applyflow/applyflow/internal/lease/store"
	"github.com/applyflow/applyflow/internal/metrics"
	"github.com/applyflow/applyflow/internal/notify"
	notifyredis "github.com/applyflow/applyflow/internal/notify/redis"
	"github.com/applyflow/applyflow/internal/portal"
	"github.com/applyflow/applyflow/internal/portal/breaker"
	"github.com/applyflow/applyflow/internal/portal/fake"
	"github.com/applyflow/applyflow/internal/portal/ratelimit"
	"github.com/applyflow/applyflow/internal/profile"
	"github.com/applyflow/applyflow/internal/resolver"
	"github.com/applyflow/applyflow/internal/storage"
	storageio "github.com/applyflow/applyflow/internal/storage/io"
	"github.com/applyflow/applyflow/internal/storage/memory"
	"github.com/applyflow/applyflow/internal/storage/postgres"
	"github.com/applyflow/applyflow/internal/storage/sqlite"
)

// repository is a storage backend that also stores the leases shared by processes.
type repository interface {
	storage.Repository
	storage.LeaseRepository
}

// newRepository returns the configured storage backend and its close function.
func (c RootCommand) newRepository(ctx context.Context) (repository, func(), error) {
	logger := c.Logger

	switch c.Storage {
	case StoragePostgres:
		if c.PostgresURL == "" {
			return nil, nil, fmt.Errorf("--postgres-url is required when using postgres storage")
		}
		repo, err := postgres.NewRepository(ctx, postgres.RepositoryConfig{
			DatabaseURL: c.PostgresURL,
			Logger:      logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create postgres repository: %w", err)
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				logger.Errorf("could not close postgres repository: %s", err)
			}
		}, nil

	case StorageMemory:
		repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: logger})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create memory repository: %w", err)
		}
		return repo, func() {}, nil
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.dbPath(),
		Logger: logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("could not create sqlite repository: %w", err)
	}
	return repo, func() {
		if err := repo.Close(); err != nil {
			logger.Errorf("could not close sqlite repository: %s", err)
		}
	}, nil
}

// newRegistry loads the company configs of the companies directory.
func (c RootCommand) newRegistry(ctx context.Context) (*resolver.Registry, error) {
	dir := c.companiesDir()
	loader := storageio.NewCompanyConfigYAMLRepository(os.DirFS(dir))
	cfgs, err := loader.ListConfigs(ctx, ".")
	if err != nil {
		return nil, fmt.Errorf("could not load company configs from %s: %w", dir, err)
	}

	reg, err := resolver.NewRegistry(resolver.RegistryConfig{
		Configs:    cfgs,
		FallbackID: c.FallbackCompany,
		Logger:     c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create company registry: %w", err)
	}

	return reg, nil
}

// coordination has the lease and notification components, backed by Redis when configured
// and by the repository leases otherwise.
type coordination struct {
	leaser   lease.Leaser
	notifier notify.Notifier
	close    func()
}

func (c RootCommand) newCoordination(ctx context.Context, leases storage.LeaseRepository) (*coordination, error) {
	if c.RedisAddr == "" {
		leaser, err := leasestore.NewLeaser(leasestore.LeaserConfig{Repository: leases, Logger: c.Logger})
		if err != nil {
			return nil, fmt.Errorf("could not create storage leaser: %w", err)
		}
		return &coordination{
			leaser:   leaser,
			notifier: notify.Noop,
			close:    func() {},
		}, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	closeClient := func() {
		if err := client.Close(); err != nil {
			c.Logger.Errorf("could not close redis client: %s", err)
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		closeClient()
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}

	leaser, err := leaseredis.NewLeaser(leaseredis.LeaserConfig{Client: client, Logger: c.Logger})
	if err != nil {
		closeClient()
		return nil, fmt.Errorf("could not create redis leaser: %w", err)
	}
	publisher, err := notifyredis.NewPublisher(notifyredis.PublisherConfig{Client: client, Logger: c.Logger})
	if err != nil {
		closeClient()
		return nil, fmt.Errorf("could not create redis publisher: %w", err)
	}

	return &coordination{leaser: leaser, notifier: publisher, close: closeClient}, nil
}

// newDriver returns the portal driver decorated with the per-domain rate limiter and circuit breaker.
func (c RootCommand) newDriver(rec metrics.Recorder) (portal.Driver, error) {
	base, err := fake.NewDriver(fake.DriverConfig{
		Latency: c.FakeLatency,
		Logger:  c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create portal driver: %w", err)
	}

	limited, err := ratelimit.NewDriver(ratelimit.DriverConfig{
		Driver:            base,
		RequestsPerSecond: c.PortalRPS,
		Burst:             c.PortalBurst,
		Logger:            c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create rate limited portal driver: %w", err)
	}

	breaking, err := breaker.NewDriver(breaker.DriverConfig{
		Driver:                 limited,
		MaxConsecutiveFailures: c.BreakerFailures,
		OpenTimeout:            c.BreakerOpenTimeout,
		OnStateChange: func(domain string, state gobreaker.State) {
			rec.SetPortalCircuitState(context.Background(), domain, int(state))
		},
		Logger: c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create circuit breaker portal driver: %w", err)
	}

	return breaking, nil
}

// runtime has everything required to run applications.
type runtime struct {
	repo     storage.Repository
	registry *resolver.Registry
	leaser   lease.Leaser
	notifier notify.Notifier
	engine   *engine.StepEngine
	closers  []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func (c RootCommand) newRuntime(ctx context.Context, rec metrics.Recorder) (_ *runtime, err error) {
	rt := &runtime{}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	repo, closeRepo, err := c.newRepository(ctx)
	if err != nil {
		return nil, err
	}
	rt.repo = repo
	rt.closers = append(rt.closers, closeRepo)

	rt.registry, err = c.newRegistry(ctx)
	if err != nil {
		return nil, err
	}

	coord, err := c.newCoordination(ctx, repo)
	if err != nil {
		return nil, err
	}
	rt.leaser = coord.leaser
	rt.notifier = coord.notifier
	rt.closers = append(rt.closers, coord.close)

	profiles, err := profile.NewAnswerMerger(profile.AnswerMergerConfig{
		Provider: storageio.NewProfileYAMLRepository(os.DirFS(c.profilesDir())),
		Answers:  repo,
		Logger:   c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create profile provider: %w", err)
	}

	driver, err := c.newDriver(rec)
	if err != nil {
		return nil, err
	}

	rt.engine, err = engine.NewStepEngine(engine.StepEngineConfig{
		Applications:   repo,
		Sessions:       repo,
		Log:            repo,
		History:        repo,
		Profiles:       profiles,
		Driver:         driver,
		Leaser:         rt.leaser,
		Notifier:       rt.notifier,
		Metrics:        rec,
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		StepTimeout:    c.StepTimeout,
		RunTimeout:     c.RunTimeout,
		Logger:         c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create step engine: %w", err)
	}

	return rt, nil
}
