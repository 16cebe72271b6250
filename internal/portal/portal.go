package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/applyflow/applyflow/internal/model"
)

// StepRequest is a single step execution request against a job portal.
type StepRequest struct {
	ApplicationID   string
	UserID          string
	JobURL          string
	CompanyConfigID string
	Step            model.StepDefinition
	// Attempt is the 1-based attempt number of this step execution.
	Attempt int
	Values  []model.FieldValue
	// Session is the opaque driver state saved after the previous completed step.
	Session []byte
}

// StepResult is the outcome of a successfully executed step.
type StepResult struct {
	// Session is the driver state to persist, nil keeps the previous one.
	Session []byte
	Details string
}

//go:generate mockery --case underscore --output portalmock --outpkg portalmock --name Driver --structname MockDriver --filename mocks.go

// Driver executes application steps against a job portal. Errors are classified
// with the typed errors of this package, any other error is unclassified.
type Driver interface {
	ExecuteStep(ctx context.Context, req StepRequest) (*StepResult, error)
}

// TransientError is a recoverable portal error (timeouts, rate limits, network errors).
type TransientError struct {
	Reason string
	Err    error
}

func (e *TransientError) Error() string { return joinReason("transient portal error", e.Reason, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError is a non recoverable portal error (e.g. the posting was closed).
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string { return joinReason("fatal portal error", e.Reason, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// NeedsUserInputError is returned when a step can't continue without data supplied by the user.
type NeedsUserInputError struct {
	Reason string
	// Fields are the form fields that need a user answer.
	Fields []string
}

func (e *NeedsUserInputError) Error() string {
	msg := joinReason("user input required", e.Reason, nil)
	if len(e.Fields) > 0 {
		msg += fmt.Sprintf(" (fields: %s)", strings.Join(e.Fields, ", "))
	}
	return msg
}

func joinReason(prefix, reason string, err error) string {
	msg := prefix
	if reason != "" {
		msg += ": " + reason
	}
	if err != nil {
		msg += ": " + err.Error()
	}
	return msg
}

// Class is the retry class of a step execution error.
type Class int

const (
	ClassUnknown Class = iota
	ClassTransient
	ClassNeedsUserInput
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassNeedsUserInput:
		return "needs_user_input"
	case ClassFatal:
		return "fatal"
	}
	return "unknown"
}

// Classify returns the class of a driver error. Needs user input has priority
// over fatal, and fatal over transient, when an error wraps more than one.
func Classify(err error) Class {
	var needsInput *NeedsUserInputError
	var fatal *FatalError
	var transient *TransientError

	switch {
	case err == nil:
		return ClassUnknown
	case errors.As(err, &needsInput):
		return ClassNeedsUserInput
	case errors.As(err, &fatal):
		return ClassFatal
	case errors.As(err, &transient):
		return ClassTransient
	}
	return ClassUnknown
}

// Domain returns the lowercase host of a job URL, used to scope per portal resources.
// Unparseable URLs are returned as they are.
func Domain(jobURL string) string {
	u, err := url.Parse(jobURL)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(jobURL)
	}
	return strings.ToLower(u.Hostname())
}
