package storage

import (
	"context"
	"time"

	"github.com/applyflow/applyflow/internal/model"
)

// ApplicationRepository is the interface for application persistence.
type ApplicationRepository interface {
	CreateApplication(ctx context.Context, a model.Application) error
	GetApplication(ctx context.Context, id string) (*model.Application, error)
	ListApplications(ctx context.Context, userID string) ([]model.Application, error)
	UpdateApplication(ctx context.Context, a model.Application) error
}

// SessionStore persists the resumable progress of in-flight applications.
// SaveSession overwrites the single record of the application atomically.
type SessionStore interface {
	LoadSession(ctx context.Context, applicationID string) (*model.SessionData, error)
	SaveSession(ctx context.Context, s model.SessionData) error
	DeleteSession(ctx context.Context, applicationID string) error
}

// StepLog is the append only sink of step execution outcomes.
type StepLog interface {
	RecordStep(ctx context.Context, s model.ApplicationStep) error
}

// StepLogReader reads the step log history of an application, in recording order.
type StepLogReader interface {
	ListSteps(ctx context.Context, applicationID string) ([]model.ApplicationStep, error)
}

// AnswerRepository is the question bank persistence.
type AnswerRepository interface {
	SaveAnswer(ctx context.Context, a model.QuestionAnswer) error
	ListAnswers(ctx context.Context, userID string) ([]model.QuestionAnswer, error)
}

// LeaseRepository stores key leases shared by every process using the same database.
// A lease is an owner token with an expiration, only the owner can renew or release it.
type LeaseRepository interface {
	// AcquireLease takes the key for the owner when it is free or expired at now,
	// it returns false when another owner holds it.
	AcquireLease(ctx context.Context, key, owner string, now time.Time, ttl time.Duration) (bool, error)
	// RenewLease extends the lease of the owner, it returns false when the owner lost it.
	RenewLease(ctx context.Context, key, owner string, now time.Time, ttl time.Duration) (bool, error)
	// ReleaseLease deletes the lease if the owner still holds it.
	ReleaseLease(ctx context.Context, key, owner string) error
}

//go:generate mockery --case underscore --output storagemock --outpkg storagemock --name Repository --structname MockRepository --filename mocks.go

// Repository groups all the persistence concerns of a storage backend.
type Repository interface {
	ApplicationRepository
	SessionStore
	StepLog
	StepLogReader
	AnswerRepository
}
