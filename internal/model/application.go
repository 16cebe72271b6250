package model

import (
	"fmt"
	"time"
)

// ApplicationStatus is the business status of a job application.
type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "pending"
	ApplicationStatusApplied   ApplicationStatus = "applied"
	ApplicationStatusInterview ApplicationStatus = "interview"
	ApplicationStatusRejected  ApplicationStatus = "rejected"
	ApplicationStatusOffer     ApplicationStatus = "offer"
)

// userTransitions are the status changes a user can make explicitly, the
// pending to applied transition is owned by the step engine.
var userTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationStatusApplied:   {ApplicationStatusInterview, ApplicationStatusRejected, ApplicationStatusOffer},
	ApplicationStatusInterview: {ApplicationStatusRejected, ApplicationStatusOffer},
}

// CanUserTransition returns true if a user is allowed to move the status from one value to another.
func (s ApplicationStatus) CanUserTransition(to ApplicationStatus) bool {
	for _, allowed := range userTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// RunState is the state of the automation run of an application.
type RunState string

const (
	RunStateNotStarted RunState = "not_started"
	RunStateRunning    RunState = "running"
	RunStateBlocked    RunState = "blocked"
	RunStateCompleted  RunState = "completed"
	RunStateFailed     RunState = "failed"
)

// Terminal returns true for states that don't accept further automatic progression.
func (r RunState) Terminal() bool {
	return r == RunStateCompleted || r == RunStateFailed
}

// Application is a job application driven by the step engine.
type Application struct {
	ID              string
	UserID          string
	JobURL          string
	CompanyName     string
	Position        string
	CompanyConfigID string
	// Template is the snapshot selected when the application was created (or
	// restarted), it doesn't change while the application progresses.
	Template ApplicationTemplate
	// Generation increases on every explicit restart, step log entries are
	// scoped to the generation they were executed in.
	Generation    int
	Status        ApplicationStatus
	RunState      RunState
	Progress      float64
	BlockedReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate validates the application.
func (a Application) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if a.UserID == "" {
		return fmt.Errorf("user id is required: %w", ErrNotValid)
	}
	if a.JobURL == "" {
		return fmt.Errorf("job url is required: %w", ErrNotValid)
	}
	if a.CompanyConfigID == "" {
		return fmt.Errorf("company config id is required: %w", ErrNotValid)
	}
	if len(a.Template.Steps) == 0 {
		return fmt.Errorf("template requires at least one step: %w", ErrNotValid)
	}
	return nil
}

// ProgressFor returns the progress ratio for a number of completed steps.
func (a Application) ProgressFor(completed int) float64 {
	total := len(a.Template.Steps)
	if total == 0 {
		return 0
	}
	if completed > total {
		completed = total
	}
	return float64(completed) / float64(total)
}
