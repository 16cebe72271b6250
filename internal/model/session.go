package model

import "time"

// SessionData is the resumable progress of an in-flight application.
// There is a single record per application, overwritten on every completed step.
type SessionData struct {
	ApplicationID string
	// Cursor is the id of the last completed step, empty when no step completed yet.
	Cursor string
	// Blob is opaque portal driver state (cookies, tokens...).
	Blob      []byte
	UpdatedAt time.Time
}
