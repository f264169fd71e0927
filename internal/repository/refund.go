package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wordpot/internal/model"
)

// refundColumns is the scan list shared by every refund query.
const refundColumns = `
	id, round_id, user_id, amount_eth, purchase_ids, status, retry_count,
	last_error, tx_hash, created_at, updated_at`

// RefundRepository drives the refund state machine:
// pending -> processing -> sent | failed. Failed rows go back through
// processing on retry until retries are exhausted.
type RefundRepository struct {
	pool *pgxpool.Pool
}

// NewRefundRepository creates a new RefundRepository instance.
func NewRefundRepository(pool *pgxpool.Pool) *RefundRepository {
	return &RefundRepository{pool: pool}
}

func scanRefund(row pgx.Row) (*model.Refund, error) {
	var f model.Refund
	err := row.Scan(
		&f.ID, &f.RoundID, &f.UserID, &f.AmountEth, &f.PurchaseIDs,
		&f.Status, &f.RetryCount, &f.LastError, &f.TxHash,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// InsertAll persists the refunds computed at cancellation, all pending.
func (r *RefundRepository) InsertAll(ctx context.Context, q Querier, refunds []model.Refund) error {
	const query = `
		INSERT INTO refunds (id, round_id, user_id, amount_eth, purchase_ids, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', 0, NOW(), NOW())
	`
	for i := range refunds {
		f := &refunds[i]
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		if _, err := q.Exec(ctx, query, f.ID, f.RoundID, f.UserID, f.AmountEth, f.PurchaseIDs); err != nil {
			return fmt.Errorf("failed to insert refund: %w", err)
		}
	}
	return nil
}

// ListSendable returns pending and retryable failed refunds, oldest first.
// The worker applies its backoff schedule on top of this list.
func (r *RefundRepository) ListSendable(ctx context.Context, maxRetries, limit int) ([]*model.Refund, error) {
	query := `
		SELECT` + refundColumns + `
		FROM refunds
		WHERE status = 'pending'
		   OR (status = 'failed' AND retry_count < $1)
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sendable refunds: %w", err)
	}
	defer rows.Close()

	var refunds []*model.Refund
	for rows.Next() {
		f, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refund: %w", err)
		}
		refunds = append(refunds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refunds: %w", err)
	}
	return refunds, nil
}

// MarkProcessing moves a refund into processing. The conditional update
// keeps two worker ticks from sending the same refund twice.
func (r *RefundRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	const query = `
		UPDATE refunds
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'failed')
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark refund processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSent finalizes a refund with the payment transaction hash.
func (r *RefundRepository) MarkSent(ctx context.Context, id uuid.UUID, txHash string) error {
	const query = `
		UPDATE refunds
		SET status = 'sent', tx_hash = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`
	tag, err := r.pool.Exec(ctx, query, id, txHash)
	if err != nil {
		return fmt.Errorf("failed to mark refund sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRefundNotFound
	}
	return nil
}

// MarkFailed records a failed send attempt and bumps the retry count. The
// row stays queryable for manual intervention once retries run out.
func (r *RefundRepository) MarkFailed(ctx context.Context, id uuid.UUID, sendErr string) error {
	const query = `
		UPDATE refunds
		SET status = 'failed', retry_count = retry_count + 1,
		    last_error = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`
	tag, err := r.pool.Exec(ctx, query, id, sendErr)
	if err != nil {
		return fmt.Errorf("failed to mark refund failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRefundNotFound
	}
	return nil
}

// GetByID retrieves a refund by id.
func (r *RefundRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Refund, error) {
	query := `SELECT` + refundColumns + ` FROM refunds WHERE id = $1`
	f, err := scanRefund(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRefundNotFound
		}
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	return f, nil
}

// ListByRound returns a round's refunds.
func (r *RefundRepository) ListByRound(ctx context.Context, roundID uuid.UUID) ([]*model.Refund, error) {
	query := `SELECT` + refundColumns + ` FROM refunds WHERE round_id = $1 ORDER BY user_id`
	rows, err := r.pool.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	defer rows.Close()

	var refunds []*model.Refund
	for rows.Next() {
		f, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refund: %w", err)
		}
		refunds = append(refunds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refunds: %w", err)
	}
	return refunds, nil
}
