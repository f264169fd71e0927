package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"wordpot/internal/model"
)

// PayoutRepository handles payout rows and the payout-conservation audit.
type PayoutRepository struct {
	pool *pgxpool.Pool
}

// NewPayoutRepository creates a new PayoutRepository instance.
func NewPayoutRepository(pool *pgxpool.Pool) *PayoutRepository {
	return &PayoutRepository{pool: pool}
}

// InsertAll persists a round's full payout set. Always called inside the
// transaction that resolves the round: a round must never reach resolved
// status without its payouts.
func (r *PayoutRepository) InsertAll(ctx context.Context, q Querier, payouts []model.RoundPayout) error {
	const query = `
		INSERT INTO round_payouts (id, round_id, user_id, amount_eth, role, rank, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	for i := range payouts {
		p := &payouts[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if _, err := q.Exec(ctx, query, p.ID, p.RoundID, p.UserID, p.AmountEth, p.Role, p.Rank); err != nil {
			return fmt.Errorf("failed to insert %s payout: %w", p.Role, err)
		}
	}
	return nil
}

// ListByRound returns a round's payouts, largest first.
func (r *PayoutRepository) ListByRound(ctx context.Context, roundID uuid.UUID) ([]*model.RoundPayout, error) {
	const query = `
		SELECT id, round_id, user_id, amount_eth, role, rank, created_at
		FROM round_payouts
		WHERE round_id = $1
		ORDER BY amount_eth DESC, role ASC
	`
	rows, err := r.pool.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*model.RoundPayout
	for rows.Next() {
		var p model.RoundPayout
		err := rows.Scan(&p.ID, &p.RoundID, &p.UserID, &p.AmountEth, &p.Role, &p.Rank, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payouts: %w", err)
	}
	return payouts, nil
}

// SumByRound returns the total paid out for a round across all roles. The
// conservation audit compares it to the round's final pool.
func (r *PayoutRepository) SumByRound(ctx context.Context, roundID uuid.UUID) (decimal.Decimal, error) {
	const query = `
		SELECT COALESCE(SUM(amount_eth), 0)
		FROM round_payouts
		WHERE round_id = $1
	`
	var sum decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, roundID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payouts: %w", err)
	}
	return sum, nil
}
