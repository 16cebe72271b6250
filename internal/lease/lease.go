package lease

import "context"

// Lease is the exclusive ownership of a key.
type Lease interface {
	Key() string
	// Lost is closed when the ownership is lost before Release is called
	// (e.g. the lease expired and was taken by someone else).
	Lost() <-chan struct{}
	// Release gives up the ownership. Releasing twice is a noop.
	Release(ctx context.Context) error
}

// Leaser grants exclusive leases over keys. Acquire returns model.ErrLeaseHeld
// when the key is already owned.
type Leaser interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}
