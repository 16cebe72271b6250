package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/storage"
)

var _ storage.LeaseRepository = (*Repository)(nil)

// AcquireLease inserts the lease or takes over an expired one in a single upsert.
func (r *Repository) AcquireLease(ctx context.Context, key, owner string, now time.Time, ttl time.Duration) (bool, error) {
	if key == "" || owner == "" {
		return false, fmt.Errorf("lease key and owner are required: %w", model.ErrNotValid)
	}

	query := `
		INSERT INTO leases (key, owner, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			owner = excluded.owner,
			expires_at = excluded.expires_at
		WHERE leases.expires_at <= ?
		RETURNING owner
	`

	var got string
	err := r.db.QueryRowContext(ctx, query, key, owner, now.Add(ttl).UnixMilli(), now.UnixMilli()).Scan(&got)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("could not acquire lease: %w", err)
	}

	return got == owner, nil
}

// RenewLease moves the expiration of a lease still held by the owner.
func (r *Repository) RenewLease(ctx context.Context, key, owner string, now time.Time, ttl time.Duration) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE leases SET expires_at = ? WHERE key = ? AND owner = ?`, now.Add(ttl).UnixMilli(), key, owner)
	if err != nil {
		return false, fmt.Errorf("could not renew lease: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get affected rows: %w", err)
	}

	return n == 1, nil
}

// ReleaseLease deletes the lease of the owner, leases taken by others are kept.
func (r *Repository) ReleaseLease(ctx context.Context, key, owner string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM leases WHERE key = ? AND owner = ?`, key, owner); err != nil {
		return fmt.Errorf("could not release lease: %w", err)
	}
	return nil
}
