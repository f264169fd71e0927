package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"wordpot/internal/model"
)

// PurchaseRepository handles pack purchase records.
type PurchaseRepository struct {
	pool *pgxpool.Pool
}

// NewPurchaseRepository creates a new PurchaseRepository instance.
func NewPurchaseRepository(pool *pgxpool.Pool) *PurchaseRepository {
	return &PurchaseRepository{pool: pool}
}

// Insert records a purchase with its price locked at purchase time.
func (r *PurchaseRepository) Insert(ctx context.Context, q Querier, p *model.PackPurchase) error {
	const query = `
		INSERT INTO pack_purchases (
			id, round_id, user_id, pack_count, credits_granted,
			price_per_pack, total_price_eth, guess_count_at_purchase, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := q.QueryRow(ctx, query,
		p.ID, p.RoundID, p.UserID, p.PackCount, p.CreditsGranted,
		p.PricePerPack, p.TotalPriceEth, p.GuessCountAtPurchase,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert pack purchase: %w", err)
	}
	return nil
}

// PurchaseTotal aggregates one user's spend in a round: the refund basis.
type PurchaseTotal struct {
	UserID      int64
	Total       decimal.Decimal
	PurchaseIDs []uuid.UUID
}

// TotalsByUser sums each purchaser's locked prices for a round, with the
// purchase ids the refund row must reference.
func (r *PurchaseRepository) TotalsByUser(ctx context.Context, q Querier, roundID uuid.UUID) ([]PurchaseTotal, error) {
	const query = `
		SELECT user_id, SUM(total_price_eth), array_agg(id ORDER BY created_at)
		FROM pack_purchases
		WHERE round_id = $1
		GROUP BY user_id
		ORDER BY user_id
	`
	rows, err := q.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate purchases: %w", err)
	}
	defer rows.Close()

	var totals []PurchaseTotal
	for rows.Next() {
		var t PurchaseTotal
		if err := rows.Scan(&t.UserID, &t.Total, &t.PurchaseIDs); err != nil {
			return nil, fmt.Errorf("failed to scan purchase total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchase totals: %w", err)
	}
	return totals, nil
}

// ListByRoundAndUser returns a user's purchases in one round, oldest first.
func (r *PurchaseRepository) ListByRoundAndUser(ctx context.Context, roundID uuid.UUID, userID int64) ([]*model.PackPurchase, error) {
	const query = `
		SELECT id, round_id, user_id, pack_count, credits_granted,
		       price_per_pack, total_price_eth, guess_count_at_purchase, created_at
		FROM pack_purchases
		WHERE round_id = $1 AND user_id = $2
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, roundID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []*model.PackPurchase
	for rows.Next() {
		var p model.PackPurchase
		err := rows.Scan(&p.ID, &p.RoundID, &p.UserID, &p.PackCount, &p.CreditsGranted,
			&p.PricePerPack, &p.TotalPriceEth, &p.GuessCountAtPurchase, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}
	return purchases, nil
}
