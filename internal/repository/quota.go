package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wordpot/internal/model"
)

// quotaColumns is the scan list shared by every quota query.
const quotaColumns = `
	user_id, utc_date, free_base, free_bonus_holder, free_bonus_share,
	free_used, paid_credits, paid_packs_purchased, has_shared_today,
	wheel_start_index, created_at, updated_at`

// QuotaDefaults seeds a lazily created daily quota row. The holder bonus is
// resolved once from the external holder check and frozen on the row so a
// mid-day balance change never re-prices guesses already in flight.
type QuotaDefaults struct {
	FreeBase        int
	HolderBonus     int
	WheelStartIndex int
}

// QuotaRepository handles per-(user, UTC day) quota state.
type QuotaRepository struct {
	pool *pgxpool.Pool
}

// NewQuotaRepository creates a new QuotaRepository instance.
func NewQuotaRepository(pool *pgxpool.Pool) *QuotaRepository {
	return &QuotaRepository{pool: pool}
}

func scanQuota(row pgx.Row) (*model.DailyQuotaState, error) {
	var s model.DailyQuotaState
	err := row.Scan(
		&s.UserID, &s.UTCDate, &s.FreeBase, &s.FreeBonusHolder,
		&s.FreeBonusShare, &s.FreeUsed, &s.PaidCredits,
		&s.PaidPacksPurchased, &s.HasSharedToday, &s.WheelStartIndex,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOrCreateForUpdate returns today's quota row with the row locked for
// the rest of the transaction, creating it lazily on first touch of the
// day. The lock scopes contention to a single (user, day) pair.
func (r *QuotaRepository) GetOrCreateForUpdate(ctx context.Context, q Querier, userID int64, utcDate time.Time, defaults QuotaDefaults) (*model.DailyQuotaState, error) {
	const insert = `
		INSERT INTO daily_quota_states (
			user_id, utc_date, free_base, free_bonus_holder, free_bonus_share,
			free_used, paid_credits, paid_packs_purchased, has_shared_today,
			wheel_start_index, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, 0, 0, 0, 0, false, $5, NOW(), NOW())
		ON CONFLICT (user_id, utc_date) DO NOTHING
	`
	if _, err := q.Exec(ctx, insert, userID, utcDate, defaults.FreeBase, defaults.HolderBonus, defaults.WheelStartIndex); err != nil {
		return nil, fmt.Errorf("failed to create quota state: %w", err)
	}

	query := `SELECT` + quotaColumns + ` FROM daily_quota_states WHERE user_id = $1 AND utc_date = $2 FOR UPDATE`
	state, err := scanQuota(q.QueryRow(ctx, query, userID, utcDate))
	if err != nil {
		return nil, fmt.Errorf("failed to lock quota state: %w", err)
	}
	return state, nil
}

// Get returns a quota row without locking, or ErrQuotaNotFound.
func (r *QuotaRepository) Get(ctx context.Context, userID int64, utcDate time.Time) (*model.DailyQuotaState, error) {
	query := `SELECT` + quotaColumns + ` FROM daily_quota_states WHERE user_id = $1 AND utc_date = $2`
	state, err := scanQuota(r.pool.QueryRow(ctx, query, userID, utcDate))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuotaNotFound
		}
		return nil, fmt.Errorf("failed to get quota state: %w", err)
	}
	return state, nil
}

// ConsumeFree increments free_used, guarded so free_used can never exceed
// the total free allocation even if a caller raced past the in-memory peek.
func (r *QuotaRepository) ConsumeFree(ctx context.Context, q Querier, userID int64, utcDate time.Time) error {
	const query = `
		UPDATE daily_quota_states
		SET free_used = free_used + 1, updated_at = NOW()
		WHERE user_id = $1 AND utc_date = $2
		  AND free_used < free_base + free_bonus_holder + free_bonus_share
	`
	tag, err := q.Exec(ctx, query, userID, utcDate)
	if err != nil {
		return fmt.Errorf("failed to consume free quota: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotaNotFound
	}
	return nil
}

// ConsumePaid decrements paid_credits, guarded against going negative.
func (r *QuotaRepository) ConsumePaid(ctx context.Context, q Querier, userID int64, utcDate time.Time) error {
	const query = `
		UPDATE daily_quota_states
		SET paid_credits = paid_credits - 1, updated_at = NOW()
		WHERE user_id = $1 AND utc_date = $2 AND paid_credits > 0
	`
	tag, err := q.Exec(ctx, query, userID, utcDate)
	if err != nil {
		return fmt.Errorf("failed to consume paid credit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotaNotFound
	}
	return nil
}

// GrantShareBonus sets the share flag and adds the bonus exactly once per
// day. Zero rows affected means the bonus was already granted; callers
// treat that as a no-op success since the UI may retry.
func (r *QuotaRepository) GrantShareBonus(ctx context.Context, q Querier, userID int64, utcDate time.Time, bonus int) (bool, error) {
	const query = `
		UPDATE daily_quota_states
		SET has_shared_today = true,
		    free_bonus_share = free_bonus_share + $3,
		    updated_at = NOW()
		WHERE user_id = $1 AND utc_date = $2 AND NOT has_shared_today
	`
	tag, err := q.Exec(ctx, query, userID, utcDate, bonus)
	if err != nil {
		return false, fmt.Errorf("failed to grant share bonus: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordPackPurchase adds purchased credits, guarded by the daily pack
// limit. Zero rows affected means the purchase would exceed maxPacks.
func (r *QuotaRepository) RecordPackPurchase(ctx context.Context, q Querier, userID int64, utcDate time.Time, packCount, credits, maxPacks int) (bool, error) {
	const query = `
		UPDATE daily_quota_states
		SET paid_credits = paid_credits + $3,
		    paid_packs_purchased = paid_packs_purchased + $4,
		    updated_at = NOW()
		WHERE user_id = $1 AND utc_date = $2
		  AND paid_packs_purchased + $4 <= $5
	`
	tag, err := q.Exec(ctx, query, userID, utcDate, credits, packCount, maxPacks)
	if err != nil {
		return false, fmt.Errorf("failed to record pack purchase: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
