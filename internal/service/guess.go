package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"wordpot/internal/model"
	"wordpot/internal/pkg/lock"
	"wordpot/internal/pkg/metrics"
	"wordpot/internal/repository"
	"wordpot/internal/ruleset"
)

// GuessStatus is the typed outcome of a submission. Only internal failures
// surface as errors; every game outcome is a status.
type GuessStatus string

// Submission outcomes.
const (
	GuessInvalidWord   GuessStatus = "invalid_word"
	GuessRoundClosed   GuessStatus = "round_closed"
	GuessDuplicate     GuessStatus = "duplicate_guess"
	GuessNoGuessesLeft GuessStatus = "no_guesses_left"
	GuessIncorrect     GuessStatus = "incorrect"
	GuessCorrect       GuessStatus = "correct"
	GuessWonByAnother  GuessStatus = "won_by_another"
)

// GuessResult is returned for every submission, accepted or not.
type GuessResult struct {
	Status         GuessStatus     `json:"status"`
	Word           string          `json:"word,omitempty"`
	IndexInRound   int64           `json:"indexInRound,omitempty"`
	TopTenEligible bool            `json:"topTenEligible,omitempty"`
	WinnerUserID   *int64          `json:"winnerUserId,omitempty"`
	AmountWon      decimal.Decimal `json:"amountWon,omitempty"`
	QuotaSource    string          `json:"quotaSource,omitempty"`
}

// errClaimLost aborts the settlement transaction when the round closed
// between lookup and index assignment.
var errClaimLost = errors.New("round closed during settlement")

// GuessService is the guess settlement engine. All coordination happens
// through the store: the round-row lock taken by the guess-counter bump
// serializes index assignment, winner claim and cancellation, so exactly
// one winner can ever be recorded no matter how many correct words arrive
// in the same instant.
type GuessService struct {
	pool      *pgxpool.Pool
	rounds    *repository.RoundRepository
	guesses   *repository.GuessRepository
	quotas    *repository.QuotaRepository
	payouts   *repository.PayoutRepository
	referrals *repository.ReferralRepository
	events    *repository.EventRepository
	quotaSvc  *QuotaService
	dict      Dictionary
	userLock  *lock.UserLock
	metrics   *metrics.Metrics
}

// NewGuessService creates a new GuessService instance.
func NewGuessService(
	pool *pgxpool.Pool,
	rounds *repository.RoundRepository,
	guesses *repository.GuessRepository,
	quotas *repository.QuotaRepository,
	payouts *repository.PayoutRepository,
	referrals *repository.ReferralRepository,
	events *repository.EventRepository,
	quotaSvc *QuotaService,
	dict Dictionary,
	userLock *lock.UserLock,
	m *metrics.Metrics,
) *GuessService {
	return &GuessService{
		pool:      pool,
		rounds:    rounds,
		guesses:   guesses,
		quotas:    quotas,
		payouts:   payouts,
		referrals: referrals,
		events:    events,
		quotaSvc:  quotaSvc,
		dict:      dict,
		userLock:  userLock,
		metrics:   m,
	}
}

// NormalizeWord upper-cases and trims a submission.
func NormalizeWord(word string) string {
	return strings.ToUpper(strings.TrimSpace(word))
}

// WordShapeValid reports whether the word is exactly five ASCII letters.
func WordShapeValid(word string) bool {
	if len(word) != 5 {
		return false
	}
	for _, c := range word {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// SubmitGuess validates, prices and settles one guess. Validation failures
// and quota exhaustion never consume quota; a transaction abort on any
// later step rolls the consumed unit back.
func (s *GuessService) SubmitGuess(ctx context.Context, userID int64, word string) (*GuessResult, error) {
	w := NormalizeWord(word)
	if !WordShapeValid(w) {
		return s.outcome(GuessInvalidWord, w), nil
	}
	ok, err := s.dict.IsValidWord(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("dictionary lookup failed: %w", err)
	}
	if !ok {
		return s.outcome(GuessInvalidWord, w), nil
	}

	// Peek at the active round before opening the transaction: the ruleset
	// snapshot decides the quota defaults, and rejecting early avoids the
	// holder-status call for dead submissions.
	current, err := s.rounds.GetActive(ctx, s.pool)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveRound) {
			// The round may have resolved an instant ago; a correct word
			// arriving now lost the race and must hear so, not just that
			// the round is closed.
			result, _, err := s.lostRace(ctx, userID, w)
			return result, err
		}
		return nil, err
	}
	rules, err := ruleset.Unmarshal(current.RulesetJSON)
	if err != nil {
		return nil, err
	}
	defaults, err := s.quotaSvc.DefaultsFor(ctx, userID, rules)
	if err != nil {
		return nil, err
	}

	s.userLock.Lock(userID)
	defer s.userLock.Unlock(userID)

	result, resolved, err := s.settle(ctx, userID, w, rules, defaults)
	if err != nil {
		return nil, err
	}

	s.metrics.GuessesTotal.WithLabelValues(string(result.Status)).Inc()
	if resolved != nil {
		s.metrics.RoundsResolved.Inc()
		s.events.Record(ctx, model.EventRoundResolved, &resolved.roundID, &userID, map[string]any{
			"word":   w,
			"index":  result.IndexInRound,
			"amount": result.AmountWon.String(),
		})
		log.Info().
			Str("round_id", resolved.roundID.String()).
			Int64("winner", userID).
			Int64("index", result.IndexInRound).
			Str("prize_pool", resolved.pool.String()).
			Msg("Round resolved")
	} else if result.Status == GuessIncorrect || result.Status == GuessCorrect {
		s.events.Record(ctx, model.EventGuessSubmitted, &current.ID, &userID, map[string]any{
			"index": result.IndexInRound,
			"paid":  result.QuotaSource == model.QuotaSourcePaid,
		})
	}
	return result, nil
}

// resolution carries post-commit reporting data out of settle.
type resolution struct {
	roundID uuid.UUID
	pool    decimal.Decimal
}

// settle runs the atomic part of a submission in one transaction.
func (s *GuessService) settle(ctx context.Context, userID int64, w string, rules ruleset.Ruleset, defaults repository.QuotaDefaults) (*GuessResult, *resolution, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	round, err := s.rounds.GetActive(ctx, tx)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveRound) {
			return s.lostRace(ctx, userID, w)
		}
		return nil, nil, err
	}

	state, err := s.quotas.GetOrCreateForUpdate(ctx, tx, userID, utcToday(), defaults)
	if err != nil {
		return nil, nil, err
	}
	if state.TotalRemaining() == 0 {
		return s.outcome(GuessNoGuessesLeft, w), nil, nil
	}

	exists, err := s.guesses.WordExists(ctx, tx, round.ID, w)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		// A correct word can only exist as the winner's row, so a
		// duplicate of the answer means the claim race was just lost.
		if w == round.AnswerWord {
			return s.lostRace(ctx, userID, w)
		}
		return s.outcome(GuessDuplicate, w), nil, nil
	}

	source, err := s.quotaSvc.ConsumeOne(ctx, tx, state)
	if err != nil {
		if errors.Is(err, ErrQuotaExhausted) {
			return s.outcome(GuessNoGuessesLeft, w), nil, nil
		}
		return nil, nil, err
	}

	// The counter bump takes the round-row lock held to commit: every
	// accepted guess, the winner claim and any cancellation serialize
	// here, which is what makes index_in_round dense and the winner
	// unique. Zero rows means the round closed while we waited.
	index, pool, fees, err := s.rounds.BumpGuessCount(ctx, tx, round.ID)
	if err != nil {
		if errors.Is(err, repository.ErrRoundNotActive) {
			return s.lostRace(ctx, userID, w)
		}
		return nil, nil, err
	}

	correct := w == round.AnswerWord
	guess := &model.Guess{
		RoundID:      round.ID,
		UserID:       userID,
		Word:         w,
		IsPaid:       source == model.QuotaSourcePaid,
		IsCorrect:    correct,
		IndexInRound: index,
	}
	if err := s.guesses.Insert(ctx, tx, guess); err != nil {
		if errors.Is(err, repository.ErrDuplicateWord) {
			return s.outcome(GuessDuplicate, w), nil, nil
		}
		return nil, nil, err
	}

	result := &GuessResult{
		Status:         GuessIncorrect,
		Word:           w,
		IndexInRound:   index,
		TopTenEligible: index <= int64(rules.TopK),
		QuotaSource:    source,
	}

	var res *resolution
	if correct {
		set, err := s.resolve(ctx, tx, round, rules, userID, pool, fees)
		if err != nil {
			return nil, nil, err
		}
		result.Status = GuessCorrect
		result.WinnerUserID = &userID
		result.AmountWon = set.WinnerAmount
		res = &resolution{roundID: round.ID, pool: pool}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit guess: %w", err)
	}
	return result, res, nil
}

// resolve claims the round for the winner and persists the payout set, all
// inside the settlement transaction: the round can never be resolved
// without its payouts.
func (s *GuessService) resolve(ctx context.Context, tx repository.Querier, round *model.Round, rules ruleset.Ruleset, winnerID int64, pool, fees decimal.Decimal) (*PayoutSet, error) {
	referrer, err := s.referrals.Get(ctx, tx, winnerID)
	if err != nil {
		return nil, err
	}
	ranked, err := s.guesses.TopGuessers(ctx, tx, round.ID, rules.TopK)
	if err != nil {
		return nil, err
	}

	set, err := ComputePayouts(PayoutInput{
		RoundID:        round.ID,
		Rules:          rules,
		Pool:           pool,
		CreatorFees:    fees,
		WinnerUserID:   winnerID,
		ReferrerUserID: referrer,
		Ranked:         ranked,
	})
	if err != nil {
		return nil, err
	}

	claimed, err := s.rounds.Claim(ctx, tx, round.ID, winnerID, referrer, set.Seed)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// We hold the round-row lock from the counter bump, so a failed
		// claim here is a concurrency-control bug, not a lost race.
		// Abort rather than patch the data.
		return nil, fmt.Errorf("round %s not claimable after index assignment: %w", round.ID, errClaimLost)
	}
	if err := s.payouts.InsertAll(ctx, tx, set.Payouts); err != nil {
		return nil, err
	}
	return &set, nil
}

// lostRace reports the right terminal status when the round closed under a
// submission: won_by_another when the word was in fact the answer of the
// round that just resolved, round_closed otherwise.
func (s *GuessService) lostRace(ctx context.Context, userID int64, w string) (*GuessResult, *resolution, error) {
	closed, err := s.rounds.ListClosed(ctx, 1)
	if err != nil {
		return nil, nil, err
	}
	if len(closed) == 0 {
		return s.outcome(GuessRoundClosed, w), nil, nil
	}
	last := closed[0]
	if last.Status == model.RoundStatusResolved && last.AnswerWord == w && last.WinnerUserID != nil && *last.WinnerUserID != userID {
		result := s.outcome(GuessWonByAnother, w)
		result.WinnerUserID = last.WinnerUserID
		return result, nil, nil
	}
	return s.outcome(GuessRoundClosed, w), nil, nil
}

func (s *GuessService) outcome(status GuessStatus, word string) *GuessResult {
	return &GuessResult{Status: status, Word: word}
}
