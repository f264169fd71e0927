package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSelfReferral rejects users referring themselves.
var ErrSelfReferral = errors.New("cannot refer yourself")

// ReferralRepository stores who referred whom. A user's referrer is fixed
// on first write; later writes are ignored.
type ReferralRepository struct {
	pool *pgxpool.Pool
}

// NewReferralRepository creates a new ReferralRepository instance.
func NewReferralRepository(pool *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{pool: pool}
}

// Set records a referrer for a user. Returns true when the referral was
// newly recorded, false when the user already had one.
func (r *ReferralRepository) Set(ctx context.Context, userID, referrerUserID int64) (bool, error) {
	if userID == referrerUserID {
		return false, ErrSelfReferral
	}
	const query = `
		INSERT INTO referrals (user_id, referrer_user_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query, userID, referrerUserID)
	if err != nil {
		return false, fmt.Errorf("failed to set referral: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get returns the user's referrer, or nil when none is on file.
func (r *ReferralRepository) Get(ctx context.Context, q Querier, userID int64) (*int64, error) {
	const query = `SELECT referrer_user_id FROM referrals WHERE user_id = $1`
	var referrer int64
	err := q.QueryRow(ctx, query, userID).Scan(&referrer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get referral: %w", err)
	}
	return &referrer, nil
}
