package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"wordpot/internal/model"
	"wordpot/internal/pkg/commit"
	"wordpot/internal/pkg/metrics"
	"wordpot/internal/repository"
	"wordpot/internal/ruleset"
)

// Round lifecycle errors.
var (
	ErrRoundStillActive   = errors.New("round is still active")
	ErrRoundAlreadyActive = errors.New("a round is already active")
	ErrRoundAlreadyClosed = errors.New("round is already closed")
)

// Reveal is the post-round disclosure that lets anyone verify the answer
// was fixed before the first guess.
type Reveal struct {
	RoundID    uuid.UUID `json:"roundId"`
	AnswerWord string    `json:"answerWord"`
	Salt       string    `json:"salt"`
	CommitHash string    `json:"commitHash"`
}

// RoundService owns the round lifecycle: starting rounds with a committed
// answer, revealing closed ones, and the kill switch.
type RoundService struct {
	pool      *pgxpool.Pool
	rounds    *repository.RoundRepository
	purchases *repository.PurchaseRepository
	refunds   *repository.RefundRepository
	events    *repository.EventRepository
	registry  *ruleset.Registry
	words     WordProvider
	metrics   *metrics.Metrics

	initialSeed decimal.Decimal
	rulesetID   string
}

// NewRoundService creates a new RoundService instance.
func NewRoundService(
	pool *pgxpool.Pool,
	rounds *repository.RoundRepository,
	purchases *repository.PurchaseRepository,
	refunds *repository.RefundRepository,
	events *repository.EventRepository,
	registry *ruleset.Registry,
	words WordProvider,
	m *metrics.Metrics,
	initialSeed decimal.Decimal,
	rulesetID string,
) *RoundService {
	return &RoundService{
		pool:        pool,
		rounds:      rounds,
		purchases:   purchases,
		refunds:     refunds,
		events:      events,
		registry:    registry,
		words:       words,
		metrics:     m,
		initialSeed: initialSeed,
		rulesetID:   rulesetID,
	}
}

// StartRound opens a new round: picks an answer, commits to it, seeds the
// pool from the previous round's carry (or the configured initial seed for
// the first round ever) and snapshots the active ruleset onto the row.
// The answer word never leaves this function except inside the row.
func (s *RoundService) StartRound(ctx context.Context) (*model.Round, error) {
	rules, err := s.registry.Get(s.rulesetID)
	if err != nil {
		return nil, err
	}
	rulesJSON, err := rules.Marshal()
	if err != nil {
		return nil, err
	}

	answer, err := s.words.PickAnswer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pick answer word: %w", err)
	}
	answer = NormalizeWord(answer)
	if !WordShapeValid(answer) {
		return nil, fmt.Errorf("word provider returned unusable answer %q", answer)
	}

	salt, err := commit.NewSalt()
	if err != nil {
		return nil, err
	}
	hash, err := commit.Hash(salt, answer)
	if err != nil {
		return nil, err
	}
	decoys, err := s.words.Decoys(ctx, answer, rules.DecoyWordCount)
	if err != nil {
		return nil, fmt.Errorf("failed to pick wheel decoys: %w", err)
	}

	seed, found, err := s.rounds.LastClosedSeed(ctx, s.pool)
	if err != nil {
		return nil, err
	}
	if !found {
		seed = s.initialSeed
	}

	round := &model.Round{
		ID:          uuid.New(),
		RulesetJSON: rulesJSON,
		AnswerWord:  answer,
		Salt:        salt,
		CommitHash:  hash,
		PrizePool:   seed,
		WheelWords:  decoys,
	}
	if err := s.rounds.Create(ctx, s.pool, round); err != nil {
		if errors.Is(err, repository.ErrRoundNotActive) {
			return nil, ErrRoundAlreadyActive
		}
		return nil, err
	}

	s.metrics.RoundsStarted.Inc()
	s.events.Record(ctx, model.EventRoundStarted, &round.ID, nil, map[string]any{
		"commit_hash": round.CommitHash,
		"prize_pool":  round.PrizePool.String(),
		"ruleset_id":  rules.ID,
	})
	log.Info().
		Str("round_id", round.ID.String()).
		Str("commit_hash", round.CommitHash).
		Str("prize_pool", round.PrizePool.String()).
		Msg("Round started")
	return round, nil
}

// EnsureActive starts a round only when none is active. Used by the
// auto-start scheduler; a concurrent start is not an error.
func (s *RoundService) EnsureActive(ctx context.Context) error {
	_, err := s.rounds.GetActive(ctx, s.pool)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNoActiveRound) {
		return err
	}
	if _, err := s.StartRound(ctx); err != nil && !errors.Is(err, ErrRoundAlreadyActive) {
		return err
	}
	return nil
}

// RevealRound returns the answer and salt of a closed round so the commit
// hash can be verified. Active rounds never reveal.
func (s *RoundService) RevealRound(ctx context.Context, roundID uuid.UUID) (*Reveal, error) {
	round, err := s.rounds.GetByID(ctx, s.pool, roundID)
	if err != nil {
		return nil, err
	}
	if !round.Closed() {
		return nil, ErrRoundStillActive
	}
	return &Reveal{
		RoundID:    round.ID,
		AnswerWord: round.AnswerWord,
		Salt:       round.Salt,
		CommitHash: round.CommitHash,
	}, nil
}

// CancelRound is the kill switch. It closes the round before looking at any
// money: the conditional status flip takes the round-row lock, so purchases
// and guesses in flight either committed before the flip (and are refunded
// or kept in the audit log) or fail their own active-status checks after it.
// Every pack purchase is refunded at its locked purchase price; the carried
// seed is the pool minus the net pack revenue being handed back.
func (s *RoundService) CancelRound(ctx context.Context, roundID uuid.UUID, adminID int64, reason string) (refundsQueued int, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	cancelled, err := s.rounds.Cancel(ctx, tx, roundID, adminID, reason, decimal.Zero)
	if err != nil {
		return 0, err
	}
	if !cancelled {
		if _, err := s.rounds.GetByID(ctx, tx, roundID); err != nil {
			return 0, err
		}
		return 0, ErrRoundAlreadyClosed
	}

	round, err := s.rounds.GetByID(ctx, tx, roundID)
	if err != nil {
		return 0, err
	}
	totals, err := s.purchases.TotalsByUser(ctx, tx, roundID)
	if err != nil {
		return 0, err
	}

	gross := decimal.Zero
	refunds := make([]model.Refund, 0, len(totals))
	for _, t := range totals {
		gross = gross.Add(t.Total)
		refunds = append(refunds, model.Refund{
			ID:          uuid.New(),
			RoundID:     roundID,
			UserID:      t.UserID,
			AmountEth:   t.Total,
			PurchaseIDs: t.PurchaseIDs,
		})
	}

	// The pool holds the carried seed plus net pack revenue. Refunds return
	// the gross purchase amounts, the creator fee accrual is forfeited, and
	// whatever the purchases contributed leaves with them.
	netRevenue := gross.Sub(round.CreatorFees)
	seedCarry := round.PrizePool.Sub(netRevenue)
	if seedCarry.IsNegative() {
		return 0, fmt.Errorf("cancellation of round %s would carry negative seed %s", roundID, seedCarry)
	}
	if err := s.rounds.SetSeedForNextRound(ctx, tx, roundID, seedCarry); err != nil {
		return 0, err
	}
	if err := s.refunds.InsertAll(ctx, tx, refunds); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	s.metrics.RoundsCancelled.Inc()
	s.events.Record(ctx, model.EventRoundCancelled, &roundID, &adminID, map[string]any{
		"reason":         reason,
		"refunds_queued": len(refunds),
		"seed_carry":     seedCarry.String(),
	})
	log.Warn().
		Str("round_id", roundID.String()).
		Int64("admin_id", adminID).
		Str("reason", reason).
		Int("refunds_queued", len(refunds)).
		Msg("Round cancelled")
	return len(refunds), nil
}

// CurrentRound returns the active round, or ErrNoActiveRound.
func (s *RoundService) CurrentRound(ctx context.Context) (*model.Round, error) {
	return s.rounds.GetActive(ctx, s.pool)
}

// GetRound returns any round by id.
func (s *RoundService) GetRound(ctx context.Context, roundID uuid.UUID) (*model.Round, error) {
	return s.rounds.GetByID(ctx, s.pool, roundID)
}

// ListClosedRounds returns the archive of closed rounds, newest first.
func (s *RoundService) ListClosedRounds(ctx context.Context, limit int) ([]*model.Round, error) {
	return s.rounds.ListClosed(ctx, limit)
}
