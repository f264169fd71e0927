package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"wordpot/internal/model"
)

// roundColumns is the scan list shared by every round query.
const roundColumns = `
	id, ruleset, answer_word, salt, commit_hash, prize_pool, creator_fees,
	seed_for_next_round, guess_count, wheel_words, status, winner_user_id,
	referrer_user_id, started_at, resolved_at, cancelled_at, cancelled_by,
	cancelled_reason`

// RoundRepository handles round persistence.
type RoundRepository struct {
	pool *pgxpool.Pool
}

// NewRoundRepository creates a new RoundRepository instance.
func NewRoundRepository(pool *pgxpool.Pool) *RoundRepository {
	return &RoundRepository{pool: pool}
}

func scanRound(row pgx.Row) (*model.Round, error) {
	var r model.Round
	err := row.Scan(
		&r.ID, &r.RulesetJSON, &r.AnswerWord, &r.Salt, &r.CommitHash,
		&r.PrizePool, &r.CreatorFees, &r.SeedForNextRound, &r.GuessCount,
		&r.WheelWords, &r.Status, &r.WinnerUserID, &r.ReferrerUserID,
		&r.StartedAt, &r.ResolvedAt, &r.CancelledAt, &r.CancelledBy,
		&r.CancelledReason,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Create inserts a new active round. The partial unique index on
// status='active' guarantees at most one active round exists; a second
// insert fails with ErrRoundNotActive so callers can retry a lookup.
func (r *RoundRepository) Create(ctx context.Context, q Querier, round *model.Round) error {
	const query = `
		INSERT INTO rounds (
			id, ruleset, answer_word, salt, commit_hash, prize_pool,
			creator_fees, seed_for_next_round, guess_count, wheel_words,
			status, started_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, $7, 'active', NOW())
		RETURNING started_at
	`
	err := q.QueryRow(ctx, query,
		round.ID, round.RulesetJSON, round.AnswerWord, round.Salt,
		round.CommitHash, round.PrizePool, round.WheelWords,
	).Scan(&round.StartedAt)
	if err != nil {
		if isUniqueViolation(err, "rounds_one_active") {
			return fmt.Errorf("another round is already active: %w", ErrRoundNotActive)
		}
		return fmt.Errorf("failed to create round: %w", err)
	}
	round.Status = model.RoundStatusActive
	return nil
}

// GetActive returns the single active round, or ErrNoActiveRound.
func (r *RoundRepository) GetActive(ctx context.Context, q Querier) (*model.Round, error) {
	query := `SELECT` + roundColumns + ` FROM rounds WHERE status = 'active'`
	round, err := scanRound(q.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveRound
		}
		return nil, fmt.Errorf("failed to get active round: %w", err)
	}
	return round, nil
}

// GetActiveForUpdate returns the active round with its row locked for the
// rest of the transaction. Pack pricing reads the live guess counter under
// this lock so a price quote can never go stale before the debit commits.
func (r *RoundRepository) GetActiveForUpdate(ctx context.Context, q Querier) (*model.Round, error) {
	query := `SELECT` + roundColumns + ` FROM rounds WHERE status = 'active' FOR UPDATE`
	round, err := scanRound(q.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveRound
		}
		return nil, fmt.Errorf("failed to lock active round: %w", err)
	}
	return round, nil
}

// GetByID retrieves a round by id.
func (r *RoundRepository) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*model.Round, error) {
	query := `SELECT` + roundColumns + ` FROM rounds WHERE id = $1`
	round, err := scanRound(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return round, nil
}

// LastClosedSeed returns the seed bucket of the most recently closed round,
// carried forward to fund the next round's pool. found is false when no
// round has ever closed, in which case the configured initial seed funds
// the pool instead.
func (r *RoundRepository) LastClosedSeed(ctx context.Context, q Querier) (seed decimal.Decimal, found bool, err error) {
	const query = `
		SELECT seed_for_next_round
		FROM rounds
		WHERE status != 'active'
		ORDER BY started_at DESC
		LIMIT 1
	`
	err = q.QueryRow(ctx, query).Scan(&seed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("failed to get carried seed: %w", err)
	}
	return seed, true, nil
}

// SetSeedForNextRound stamps the carried seed after cancellation, once the
// refund basis is known.
func (r *RoundRepository) SetSeedForNextRound(ctx context.Context, q Querier, roundID uuid.UUID, seed decimal.Decimal) error {
	const query = `UPDATE rounds SET seed_for_next_round = $2 WHERE id = $1`
	if _, err := q.Exec(ctx, query, roundID, seed); err != nil {
		return fmt.Errorf("failed to set carried seed: %w", err)
	}
	return nil
}

// BumpGuessCount assigns the next dense index_in_round by incrementing the
// round's guess counter under the row lock the update takes. It returns the
// fresh counter and pool figures so the caller never settles against stale
// money. Zero rows means the round closed since the caller looked it up.
func (r *RoundRepository) BumpGuessCount(ctx context.Context, q Querier, roundID uuid.UUID) (index int64, prizePool, creatorFees decimal.Decimal, err error) {
	const query = `
		UPDATE rounds
		SET guess_count = guess_count + 1
		WHERE id = $1 AND status = 'active'
		RETURNING guess_count, prize_pool, creator_fees
	`
	err = q.QueryRow(ctx, query, roundID).Scan(&index, &prizePool, &creatorFees)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, decimal.Zero, decimal.Zero, ErrRoundNotActive
		}
		return 0, decimal.Zero, decimal.Zero, fmt.Errorf("failed to bump guess count: %w", err)
	}
	return index, prizePool, creatorFees, nil
}

// Claim atomically transitions the round active -> resolved. It is the
// winner-determination exclusivity primitive: the WHERE status='active'
// predicate makes at most one claimant (or one cancellation) ever succeed.
// Returns false when the round was already resolved or cancelled.
func (r *RoundRepository) Claim(ctx context.Context, q Querier, roundID uuid.UUID, winnerUserID int64, referrerUserID *int64, seed decimal.Decimal) (bool, error) {
	const query = `
		UPDATE rounds
		SET status = 'resolved',
		    winner_user_id = $2,
		    referrer_user_id = $3,
		    seed_for_next_round = $4,
		    resolved_at = NOW()
		WHERE id = $1 AND status = 'active'
	`
	tag, err := q.Exec(ctx, query, roundID, winnerUserID, referrerUserID, seed)
	if err != nil {
		return false, fmt.Errorf("failed to claim round: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Cancel atomically transitions the round active -> cancelled. It contends
// on the same status='active' predicate as Claim, so cancellation and
// winning can never both succeed.
func (r *RoundRepository) Cancel(ctx context.Context, q Querier, roundID uuid.UUID, adminID int64, reason string, seed decimal.Decimal) (bool, error) {
	const query = `
		UPDATE rounds
		SET status = 'cancelled',
		    cancelled_at = NOW(),
		    cancelled_by = $2,
		    cancelled_reason = $3,
		    seed_for_next_round = $4
		WHERE id = $1 AND status = 'active'
	`
	tag, err := q.Exec(ctx, query, roundID, adminID, reason, seed)
	if err != nil {
		return false, fmt.Errorf("failed to cancel round: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AddPackRevenue credits a pack purchase's net revenue to the prize pool
// and accrues the creator fee. Conditional on the round still being active.
func (r *RoundRepository) AddPackRevenue(ctx context.Context, q Querier, roundID uuid.UUID, net, fee decimal.Decimal) error {
	const query = `
		UPDATE rounds
		SET prize_pool = prize_pool + $2,
		    creator_fees = creator_fees + $3
		WHERE id = $1 AND status = 'active'
	`
	tag, err := q.Exec(ctx, query, roundID, net, fee)
	if err != nil {
		return fmt.Errorf("failed to add pack revenue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoundNotActive
	}
	return nil
}

// ListClosed returns recently closed rounds for the archive endpoint,
// newest first.
func (r *RoundRepository) ListClosed(ctx context.Context, limit int) ([]*model.Round, error) {
	query := `
		SELECT` + roundColumns + `
		FROM rounds
		WHERE status != 'active'
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list closed rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*model.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rounds: %w", err)
	}
	return rounds, nil
}

// CountWinners is an audit query backing the at-most-one-winner invariant:
// the number of correct guesses recorded for a round.
func (r *RoundRepository) CountWinners(ctx context.Context, roundID uuid.UUID) (int, error) {
	const query = `SELECT COUNT(*) FROM guesses WHERE round_id = $1 AND is_correct`
	var n int
	if err := r.pool.QueryRow(ctx, query, roundID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count winners: %w", err)
	}
	return n, nil
}

// Pool exposes the underlying pool for transaction management by services.
func (r *RoundRepository) Pool() *pgxpool.Pool {
	return r.pool
}
