package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

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
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			owner = EXCLUDED.owner,
			expires_at = EXCLUDED.expires_at
		WHERE leases.expires_at <= $4
		RETURNING owner
	`

	var got string
	err := r.pool.QueryRow(ctx, query, key, owner, now.Add(ttl).UnixMilli(), now.UnixMilli()).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("could not acquire lease: %w", err)
	}

	return got == owner, nil
}

// RenewLease moves the expiration of a lease still held by the owner.
func (r *Repository) RenewLease(ctx context.Context, key, owner string, now time.Time, ttl time.Duration) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE leases SET expires_at = $1 WHERE key = $2 AND owner = $3`, now.Add(ttl).UnixMilli(), key, owner)
	if err != nil {
		return false, fmt.Errorf("could not renew lease: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseLease deletes the lease of the owner, leases taken by others are kept.
func (r *Repository) ReleaseLease(ctx context.Context, key, owner string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM leases WHERE key = $1 AND owner = $2`, key, owner); err != nil {
		return fmt.Errorf("could not release lease: %w", err)
	}
	return nil
}
