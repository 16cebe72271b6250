package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/notify"
)

const (
	// StepsChannel is the pub/sub channel of the recorded step log entries.
	StepsChannel = "applyflow:steps"
	// ApplicationsChannel is the pub/sub channel of the application changes.
	ApplicationsChannel = "applyflow:applications"
)

// StepMessage is the published payload of a step log entry.
type StepMessage struct {
	ID             string    `json:"id"`
	ApplicationID  string    `json:"application_id"`
	Generation     int       `json:"generation"`
	StepID         string    `json:"step_id"`
	Attempt        int       `json:"attempt"`
	Status         string    `json:"status"`
	Details        string    `json:"details,omitempty"`
	RequiresAction bool      `json:"requires_action"`
	Timestamp      time.Time `json:"timestamp"`
}

// ApplicationMessage is the published payload of an application change.
type ApplicationMessage struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	RunState      string    `json:"run_state"`
	Progress      float64   `json:"progress"`
	BlockedReason string    `json:"blocked_reason,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PublisherConfig is the configuration for the Redis publisher.
type PublisherConfig struct {
	Client goredis.UniversalClient
	Logger log.Logger
}

func (c *PublisherConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("redis client is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "notify.Redis"})
	return nil
}

// Publisher publishes the notifications as JSON on Redis pub/sub channels.
type Publisher struct {
	client goredis.UniversalClient
	logger log.Logger
}

var _ notify.Notifier = (*Publisher)(nil)

// NewPublisher creates a new Redis publisher.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Publisher{client: cfg.Client, logger: cfg.Logger}, nil
}

func (p *Publisher) StepRecorded(ctx context.Context, s model.ApplicationStep) {
	p.publish(ctx, StepsChannel, StepMessage{
		ID:             s.ID,
		ApplicationID:  s.ApplicationID,
		Generation:     s.Generation,
		StepID:         s.StepID,
		Attempt:        s.Attempt,
		Status:         string(s.Status),
		Details:        s.Details,
		RequiresAction: s.RequiresAction,
		Timestamp:      s.Timestamp,
	})
}

func (p *Publisher) ApplicationChanged(ctx context.Context, a model.Application) {
	p.publish(ctx, ApplicationsChannel, ApplicationMessage{
		ID:            a.ID,
		UserID:        a.UserID,
		Status:        string(a.Status),
		RunState:      string(a.RunState),
		Progress:      a.Progress,
		BlockedReason: a.BlockedReason,
		UpdatedAt:     a.UpdatedAt,
	})
}

func (p *Publisher) publish(ctx context.Context, channel string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Errorf("could not marshal %s message: %s", channel, err)
		return
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.logger.Warningf("could not publish %s message: %s", channel, err)
	}
}
