package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/applyflow/applyflow/internal/lease"
	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
)

// Only the owner token holder can renew or delete the key.
var (
	renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)
	releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)
)

// LeaserConfig is the configuration for the Redis leaser.
type LeaserConfig struct {
	Client goredis.UniversalClient
	// KeyPrefix is prepended to every leased key.
	KeyPrefix string
	// TTL is the expiration of a lease that stops being renewed (e.g. the owner crashed).
	TTL time.Duration
	// RenewInterval is how often a held lease is renewed, must be lower than TTL.
	RenewInterval time.Duration
	Logger        log.Logger
}

func (c *LeaserConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("redis client is required")
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "applyflow:lease:"
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	if c.RenewInterval <= 0 {
		c.RenewInterval = c.TTL / 3
	}
	if c.RenewInterval >= c.TTL {
		return fmt.Errorf("renew interval must be lower than the ttl")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "lease.Redis"})
	return nil
}

// Leaser is a lease manager backed by Redis `SET NX PX`, shared by every engine process.
type Leaser struct {
	cfg    LeaserConfig
	logger log.Logger
}

var _ lease.Leaser = (*Leaser)(nil)

// NewLeaser creates a new Redis leaser.
func NewLeaser(cfg LeaserConfig) (*Leaser, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Leaser{cfg: cfg, logger: cfg.Logger}, nil
}

// Acquire acquires the lease of a key and keeps renewing it until released.
func (l *Leaser) Acquire(ctx context.Context, key string) (lease.Lease, error) {
	token := uuid.NewString()
	redisKey := l.cfg.KeyPrefix + key
	now := time.Now()

	ok, err := l.cfg.Client.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("could not acquire lease: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("key %s: %w", key, model.ErrLeaseHeld)
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	ls := &redisLease{
		key:         key,
		redisKey:    redisKey,
		token:       token,
		leaser:      l,
		lastRenewed: now,
		lost:        make(chan struct{}),
		stop:        cancel,
		stopped:     make(chan struct{}),
	}
	go ls.renew(renewCtx)

	l.logger.Debugf("Lease acquired: %s", key)
	return ls, nil
}

type redisLease struct {
	key         string
	redisKey    string
	token       string
	leaser      *Leaser
	lastRenewed time.Time
	lost        chan struct{}
	stop        func()
	stopped     chan struct{}
	once        sync.Once
}

func (r *redisLease) Key() string           { return r.key }
func (r *redisLease) Lost() <-chan struct{} { return r.lost }

func (r *redisLease) renew(ctx context.Context) {
	defer close(r.stopped)

	cfg := r.leaser.cfg
	t := time.NewTicker(cfg.RenewInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		now := time.Now()
		rctx, cancel := context.WithTimeout(ctx, cfg.RenewInterval)
		res, err := renewScript.Run(rctx, cfg.Client, []string{r.redisKey}, r.token, cfg.TTL.Milliseconds()).Int64()
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// The next renewal would happen after the key expired.
			if time.Since(r.lastRenewed) >= cfg.TTL-cfg.RenewInterval {
				r.leaser.logger.Warningf("Lease lost, could not renew it before its expiration: %s: %s", r.key, err)
				close(r.lost)
				return
			}
			r.leaser.logger.Warningf("could not renew lease %s: %s", r.key, err)
			continue
		}
		if res == 0 {
			r.leaser.logger.Warningf("Lease lost: %s", r.key)
			close(r.lost)
			return
		}
		r.lastRenewed = now
	}
}

func (r *redisLease) Release(ctx context.Context) error {
	var err error
	r.once.Do(func() {
		r.stop()
		<-r.stopped

		err = releaseScript.Run(ctx, r.leaser.cfg.Client, []string{r.redisKey}, r.token).Err()
		if err != nil {
			err = fmt.Errorf("could not release lease: %w", err)
			return
		}
		r.leaser.logger.Debugf("Lease released: %s", r.key)
	})
	return err
}
