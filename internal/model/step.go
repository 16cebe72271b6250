package model

import (
	"fmt"
	"time"
)

// StepStatus is the outcome recorded for a step attempt.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusCompleted StepStatus = "completed"
	StepStatusError     StepStatus = "error"
)

// ApplicationStep is an append only log entry of a step execution attempt.
type ApplicationStep struct {
	ID             string
	ApplicationID  string
	Generation     int
	StepID         string
	Attempt        int
	Status         StepStatus
	Timestamp      time.Time
	Details        string
	RequiresAction bool
}

// LatestByStep returns the authoritative (latest) entry for each step id of a
// generation. Entries must be in recording order.
func LatestByStep(entries []ApplicationStep, generation int) map[string]ApplicationStep {
	latest := map[string]ApplicationStep{}
	for _, e := range entries {
		if e.Generation != generation {
			continue
		}
		latest[e.StepID] = e
	}
	return latest
}

// CompletedSteps counts the distinct template steps whose latest entry is completed.
// Entries referencing steps outside of the template are a data integrity error.
func CompletedSteps(tmpl ApplicationTemplate, latest map[string]ApplicationStep) (int, error) {
	completed := 0
	for stepID, e := range latest {
		if tmpl.StepIndex(stepID) < 0 {
			return 0, fmt.Errorf("step %q: %w", stepID, ErrUnknownStep)
		}
		if e.Status == StepStatusCompleted {
			completed++
		}
	}
	return completed, nil
}
