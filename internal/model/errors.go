package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")

	// ErrConfiguration is the root of the company configuration errors, these are
	// fatal to starting a run and never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrNoConfigFound is returned when no company config matches a job URL.
	ErrNoConfigFound = fmt.Errorf("no company config found: %w", ErrConfiguration)
	// ErrAmbiguousConfig is returned when more than one company config matches with the same precedence.
	ErrAmbiguousConfig = fmt.Errorf("ambiguous company config: %w", ErrConfiguration)

	// ErrUnknownStep is returned when a step id is not part of the application template.
	ErrUnknownStep = errors.New("unknown step")
	// ErrLeaseHeld is returned when another executor is already running an application.
	ErrLeaseHeld = errors.New("application lease held by another executor")
)
