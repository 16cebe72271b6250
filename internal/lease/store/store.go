package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/applyflow/applyflow/internal/lease"
	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/storage"
)

// LeaserConfig is the configuration for the storage backed leaser.
type LeaserConfig struct {
	Repository storage.LeaseRepository
	// TTL is the expiration of a lease that stops being renewed (e.g. the owner crashed).
	TTL time.Duration
	// RenewInterval is how often a held lease is renewed, must be lower than TTL.
	RenewInterval time.Duration
	Clock         clockwork.Clock
	Logger        log.Logger
}

func (c *LeaserConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("lease repository is required")
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
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "lease.Store"})
	return nil
}

// Leaser grants leases stored in the application database, so every process sharing
// the database sees the same owner.
type Leaser struct {
	cfg    LeaserConfig
	logger log.Logger
}

var _ lease.Leaser = (*Leaser)(nil)

// NewLeaser creates a new storage backed leaser.
func NewLeaser(cfg LeaserConfig) (*Leaser, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Leaser{cfg: cfg, logger: cfg.Logger}, nil
}

// Acquire acquires the lease of a key and keeps renewing it until released.
func (l *Leaser) Acquire(ctx context.Context, key string) (lease.Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	owner := uuid.NewString()
	now := l.cfg.Clock.Now()
	ok, err := l.cfg.Repository.AcquireLease(ctx, key, owner, now, l.cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("could not acquire lease: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("key %s: %w", key, model.ErrLeaseHeld)
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	ls := &storeLease{
		key:         key,
		owner:       owner,
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

type storeLease struct {
	key         string
	owner       string
	leaser      *Leaser
	lastRenewed time.Time
	lost        chan struct{}
	stop        func()
	stopped     chan struct{}
	once        sync.Once
}

func (s *storeLease) Key() string           { return s.key }
func (s *storeLease) Lost() <-chan struct{} { return s.lost }

func (s *storeLease) renew(ctx context.Context) {
	defer close(s.stopped)

	cfg := s.leaser.cfg
	t := cfg.Clock.NewTicker(cfg.RenewInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
		}

		now := cfg.Clock.Now()
		rctx, cancel := context.WithTimeout(ctx, cfg.RenewInterval)
		ok, err := cfg.Repository.RenewLease(rctx, s.key, s.owner, now, cfg.TTL)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// The next renewal would happen after the stored lease expired.
			if cfg.Clock.Since(s.lastRenewed) >= cfg.TTL-cfg.RenewInterval {
				s.leaser.logger.Warningf("Lease lost, could not renew it before its expiration: %s: %s", s.key, err)
				close(s.lost)
				return
			}
			s.leaser.logger.Warningf("could not renew lease %s: %s", s.key, err)
			continue
		}
		if !ok {
			s.leaser.logger.Warningf("Lease lost: %s", s.key)
			close(s.lost)
			return
		}
		s.lastRenewed = now
	}
}

func (s *storeLease) Release(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.stop()
		<-s.stopped

		if rerr := s.leaser.cfg.Repository.ReleaseLease(ctx, s.key, s.owner); rerr != nil {
			err = fmt.Errorf("could not release lease: %w", rerr)
			return
		}
		s.leaser.logger.Debugf("Lease released: %s", s.key)
	})
	return err
}
