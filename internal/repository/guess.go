package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"wordpot/internal/model"
)

// GuessRepository handles the append-only guess audit trail.
type GuessRepository struct {
	pool *pgxpool.Pool
}

// NewGuessRepository creates a new GuessRepository instance.
func NewGuessRepository(pool *pgxpool.Pool) *GuessRepository {
	return &GuessRepository{pool: pool}
}

// Insert appends a guess row. The (round_id, word) unique constraint turns
// a lost duplicate race into ErrDuplicateWord, aborting the enclosing
// transaction so no quota is consumed for the loser.
func (r *GuessRepository) Insert(ctx context.Context, q Querier, g *model.Guess) error {
	const query = `
		INSERT INTO guesses (round_id, user_id, word, is_paid, is_correct, index_in_round, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`
	err := q.QueryRow(ctx, query,
		g.RoundID, g.UserID, g.Word, g.IsPaid, g.IsCorrect, g.IndexInRound,
	).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "guesses_round_word_key") {
			return ErrDuplicateWord
		}
		return fmt.Errorf("failed to insert guess: %w", err)
	}
	return nil
}

// WordExists reports whether any player already guessed this word in the
// round. Prior wrong guesses are public via the wheel, so the block is
// global, not per user.
func (r *GuessRepository) WordExists(ctx context.Context, q Querier, roundID uuid.UUID, word string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM guesses WHERE round_id = $1 AND word = $2)`
	var exists bool
	if err := q.QueryRow(ctx, query, roundID, word).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check word existence: %w", err)
	}
	return exists, nil
}

// TopGuessers returns the rank-payout eligibility list: distinct users whose
// first guess fell within the first topK guesses of the round, ordered by
// ascending total guess count, ties broken by earliest first index.
func (r *GuessRepository) TopGuessers(ctx context.Context, q Querier, roundID uuid.UUID, topK int) ([]model.TopGuesser, error) {
	const query = `
		SELECT user_id, COUNT(*) AS total_guesses, MIN(index_in_round) AS first_index
		FROM guesses
		WHERE round_id = $1
		GROUP BY user_id
		HAVING MIN(index_in_round) <= $2
		ORDER BY total_guesses ASC, first_index ASC
		LIMIT $2
	`
	rows, err := q.Query(ctx, query, roundID, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to rank top guessers: %w", err)
	}
	defer rows.Close()

	var ranked []model.TopGuesser
	for rows.Next() {
		var tg model.TopGuesser
		if err := rows.Scan(&tg.UserID, &tg.TotalGuesses, &tg.FirstIndex); err != nil {
			return nil, fmt.Errorf("failed to scan top guesser: %w", err)
		}
		ranked = append(ranked, tg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top guessers: %w", err)
	}
	return ranked, nil
}

// ListByRound returns a round's guesses in index order.
func (r *GuessRepository) ListByRound(ctx context.Context, roundID uuid.UUID) ([]*model.Guess, error) {
	const query = `
		SELECT id, round_id, user_id, word, is_paid, is_correct, index_in_round, created_at
		FROM guesses
		WHERE round_id = $1
		ORDER BY index_in_round ASC
	`
	rows, err := r.pool.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list guesses: %w", err)
	}
	defer rows.Close()

	var guesses []*model.Guess
	for rows.Next() {
		var g model.Guess
		err := rows.Scan(&g.ID, &g.RoundID, &g.UserID, &g.Word, &g.IsPaid, &g.IsCorrect, &g.IndexInRound, &g.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guess: %w", err)
		}
		guesses = append(guesses, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating guesses: %w", err)
	}
	return guesses, nil
}

// WrongWords returns the round's wrong guesses in index order; merged with
// the stored decoys they form the public wheel.
func (r *GuessRepository) WrongWords(ctx context.Context, roundID uuid.UUID, limit int) ([]string, error) {
	const query = `
		SELECT word
		FROM guesses
		WHERE round_id = $1 AND NOT is_correct
		ORDER BY index_in_round ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, roundID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list wrong words: %w", err)
	}
	defer rows.Close()

	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("failed to scan word: %w", err)
		}
		words = append(words, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating words: %w", err)
	}
	return words, nil
}

// CountByUserOnDate returns how many guesses a user committed during one
// UTC day, across rounds. Backs the quota-conservation audit.
func (r *GuessRepository) CountByUserOnDate(ctx context.Context, userID int64, utcDate string) (int64, error) {
	const query = `
		SELECT COUNT(*)
		FROM guesses
		WHERE user_id = $1 AND (created_at AT TIME ZONE 'UTC')::date = $2::date
	`
	var n int64
	if err := r.pool.QueryRow(ctx, query, userID, utcDate).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count user guesses: %w", err)
	}
	return n, nil
}
