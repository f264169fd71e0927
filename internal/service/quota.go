package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"wordpot/internal/model"
	"wordpot/internal/pkg/lock"
	"wordpot/internal/pkg/metrics"
	"wordpot/internal/repository"
	"wordpot/internal/ruleset"
)

// Quota service errors.
var (
	ErrQuotaExhausted       = errors.New("no guesses left today")
	ErrDailyPackLimit       = errors.New("daily pack limit reached")
	ErrBadPackCount         = errors.New("pack count must be positive")
	ErrShareNotAllowed      = errors.New("trust score too low for share bonus")
	ErrNoActiveRoundForSale = errors.New("pack purchases require an active round")
)

// QuotaSummary is the per-user view of today's remaining guess budget.
type QuotaSummary struct {
	Free           int `json:"free"`
	HolderBonus    int `json:"holderBonus"`
	ShareBonus     int `json:"shareBonus"`
	Paid           int `json:"paid"`
	TotalRemaining int `json:"totalRemaining"`
}

// QuotaService owns the daily quota ledger: consumption ordering, the share
// bonus grant and pack purchases.
type QuotaService struct {
	pool      *pgxpool.Pool
	rounds    *repository.RoundRepository
	quotas    *repository.QuotaRepository
	purchases *repository.PurchaseRepository
	events    *repository.EventRepository
	holders   HolderStatusProvider
	trust     TrustScoreProvider
	registry  *ruleset.Registry
	defaultID string
	userLock  *lock.UserLock
	metrics   *metrics.Metrics

	// minShareTrust gates the share bonus on the external spam score.
	minShareTrust float64
}

// NewQuotaService creates a new QuotaService instance.
func NewQuotaService(
	pool *pgxpool.Pool,
	rounds *repository.RoundRepository,
	quotas *repository.QuotaRepository,
	purchases *repository.PurchaseRepository,
	events *repository.EventRepository,
	holders HolderStatusProvider,
	trust TrustScoreProvider,
	registry *ruleset.Registry,
	defaultRulesetID string,
	userLock *lock.UserLock,
	m *metrics.Metrics,
	minShareTrust float64,
) *QuotaService {
	return &QuotaService{
		pool:          pool,
		rounds:        rounds,
		quotas:        quotas,
		purchases:     purchases,
		events:        events,
		holders:       holders,
		trust:         trust,
		registry:      registry,
		defaultID:     defaultRulesetID,
		userLock:      userLock,
		metrics:       m,
		minShareTrust: minShareTrust,
	}
}

// utcToday returns the current UTC date truncated to midnight, the key of
// today's quota row.
func utcToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// activeRules returns the active round's snapshotted ruleset, falling back
// to the configured default when no round is live (quota is daily, not
// per-round, so the ledger keeps working between rounds).
func (s *QuotaService) activeRules(ctx context.Context) (ruleset.Ruleset, error) {
	round, err := s.rounds.GetActive(ctx, s.pool)
	if err == nil {
		return ruleset.Unmarshal(round.RulesetJSON)
	}
	if errors.Is(err, repository.ErrNoActiveRound) {
		return s.registry.Get(s.defaultID)
	}
	return ruleset.Ruleset{}, err
}

// DefaultsFor resolves the seed values for a lazily created quota row. The
// holder bonus is looked up from the external token-balance feed only when
// the row does not exist yet, so the check runs at most once per user per
// day.
func (s *QuotaService) DefaultsFor(ctx context.Context, userID int64, rules ruleset.Ruleset) (repository.QuotaDefaults, error) {
	defaults := repository.QuotaDefaults{
		FreeBase:        rules.FreeBasePerDay,
		WheelStartIndex: rand.Intn(64),
	}

	if _, err := s.quotas.Get(ctx, userID, utcToday()); err == nil {
		// Row already exists, the defaults are never applied.
		return defaults, nil
	} else if !errors.Is(err, repository.ErrQuotaNotFound) {
		return defaults, err
	}

	status, err := s.holders.GetHolderStatus(ctx, userID)
	if err != nil {
		// The bonus is best effort: a dead holder feed must not block
		// guessing, the user just starts without the bonus today.
		log.Warn().Err(err).Int64("user_id", userID).Msg("Holder status check failed, skipping bonus")
		return defaults, nil
	}
	if status.IsHolder {
		defaults.HolderBonus = rules.HolderBonusPerDay
	}
	return defaults, nil
}

// ConsumeOne decrements the first quota source with remaining balance, in
// the fixed order free-base, holder-bonus, share-bonus, paid-credits, so
// purchased credits are always preserved last. state must be the row
// locked by the enclosing transaction.
func (s *QuotaService) ConsumeOne(ctx context.Context, q repository.Querier, state *model.DailyQuotaState) (string, error) {
	if state.FreeRemaining() > 0 {
		var source string
		switch {
		case state.FreeUsed < state.FreeBase:
			source = model.QuotaSourceFreeBase
		case state.FreeUsed < state.FreeBase+state.FreeBonusHolder:
			source = model.QuotaSourceHolderBonus
		default:
			source = model.QuotaSourceShareBonus
		}
		if err := s.quotas.ConsumeFree(ctx, q, state.UserID, state.UTCDate); err != nil {
			return "", err
		}
		state.FreeUsed++
		return source, nil
	}
	if state.PaidCredits > 0 {
		if err := s.quotas.ConsumePaid(ctx, q, state.UserID, state.UTCDate); err != nil {
			return "", err
		}
		state.PaidCredits--
		return model.QuotaSourcePaid, nil
	}
	return "", ErrQuotaExhausted
}

// GrantShareBonus credits the daily share bonus exactly once. A repeat call
// the same day is a no-op success since the UI retries.
func (s *QuotaService) GrantShareBonus(ctx context.Context, userID int64) error {
	score, err := s.trust.GetTrustScore(ctx, userID)
	if err != nil {
		return fmt.Errorf("trust score lookup failed: %w", err)
	}
	if score < s.minShareTrust {
		return ErrShareNotAllowed
	}

	rules, err := s.activeRules(ctx)
	if err != nil {
		return err
	}
	defaults, err := s.DefaultsFor(ctx, userID, rules)
	if err != nil {
		return err
	}

	s.userLock.Lock(userID)
	defer s.userLock.Unlock(userID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	today := utcToday()
	if _, err := s.quotas.GetOrCreateForUpdate(ctx, tx, userID, today, defaults); err != nil {
		return err
	}
	granted, err := s.quotas.GrantShareBonus(ctx, tx, userID, today, rules.ShareBonusPerDay)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit share bonus: %w", err)
	}

	if granted {
		s.events.Record(ctx, model.EventShareBonusGranted, nil, &userID, map[string]any{
			"bonus": rules.ShareBonusPerDay,
		})
		log.Info().Int64("user_id", userID).Int("bonus", rules.ShareBonusPerDay).Msg("Share bonus granted")
	}
	return nil
}

// PurchasePack sells guess packs at the current ramp phase price, locked at
// purchase time. The price is quoted against the round's live guess counter
// while the round row is locked, inside the same transaction as the credit.
func (s *QuotaService) PurchasePack(ctx context.Context, userID int64, packCount int) (*model.PackPurchase, error) {
	if packCount <= 0 {
		return nil, ErrBadPackCount
	}

	s.userLock.Lock(userID)
	defer s.userLock.Unlock(userID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock order is quota row, then round row, matching guess settlement.
	// The unlocked read only supplies the quota defaults; the price quote
	// below comes from the locked row.
	peek, err := s.rounds.GetActive(ctx, tx)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveRound) {
			return nil, ErrNoActiveRoundForSale
		}
		return nil, err
	}
	peekRules, err := ruleset.Unmarshal(peek.RulesetJSON)
	if err != nil {
		return nil, err
	}
	defaults, err := s.DefaultsFor(ctx, userID, peekRules)
	if err != nil {
		return nil, err
	}

	today := utcToday()
	state, err := s.quotas.GetOrCreateForUpdate(ctx, tx, userID, today, defaults)
	if err != nil {
		return nil, err
	}

	round, err := s.rounds.GetActiveForUpdate(ctx, tx)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveRound) {
			return nil, ErrNoActiveRoundForSale
		}
		return nil, err
	}
	rules, err := ruleset.Unmarshal(round.RulesetJSON)
	if err != nil {
		return nil, err
	}
	if state.PaidPacksPurchased+packCount > rules.MaxPacksPerDay {
		return nil, ErrDailyPackLimit
	}

	quote := QuotePack(rules, round.GuessCount, packCount)

	ok, err := s.quotas.RecordPackPurchase(ctx, tx, userID, today, packCount, quote.Credits, rules.MaxPacksPerDay)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDailyPackLimit
	}

	purchase := &model.PackPurchase{
		RoundID:              round.ID,
		UserID:               userID,
		PackCount:            packCount,
		CreditsGranted:       quote.Credits,
		PricePerPack:         quote.PricePerPack,
		TotalPriceEth:        quote.Total,
		GuessCountAtPurchase: round.GuessCount,
	}
	if err := s.purchases.Insert(ctx, tx, purchase); err != nil {
		return nil, err
	}
	if err := s.rounds.AddPackRevenue(ctx, tx, round.ID, quote.NetToPool, quote.CreatorFee); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit pack purchase: %w", err)
	}

	s.metrics.PacksPurchased.Add(float64(packCount))
	s.events.Record(ctx, model.EventPackPurchased, &round.ID, &userID, map[string]any{
		"packs":   packCount,
		"credits": quote.Credits,
		"total":   quote.Total.String(),
	})
	log.Info().
		Int64("user_id", userID).
		Int("packs", packCount).
		Str("total_eth", quote.Total.String()).
		Msg("Pack purchase completed")

	return purchase, nil
}

// GetQuotaSummary returns the user's remaining budget per source, creating
// today's row lazily so the holder bonus shows up before the first guess.
func (s *QuotaService) GetQuotaSummary(ctx context.Context, userID int64) (*QuotaSummary, error) {
	rules, err := s.activeRules(ctx)
	if err != nil {
		return nil, err
	}
	defaults, err := s.DefaultsFor(ctx, userID, rules)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	state, err := s.quotas.GetOrCreateForUpdate(ctx, tx, userID, utcToday(), defaults)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quota read: %w", err)
	}

	return summarize(state), nil
}

// WheelStartIndex returns the user's wheel rotation offset for today.
// Users with no quota row yet see the unrotated wheel; the offset is
// assigned when the row is created, so a plain read must not create one.
func (s *QuotaService) WheelStartIndex(ctx context.Context, userID int64) (int, error) {
	state, err := s.quotas.Get(ctx, userID, utcToday())
	if err != nil {
		if errors.Is(err, repository.ErrQuotaNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return state.WheelStartIndex, nil
}

// summarize attributes the consumed count to sources in consumption order
// so each bucket shows what is actually left of it.
func summarize(state *model.DailyQuotaState) *QuotaSummary {
	used := state.FreeUsed

	freeLeft := state.FreeBase - used
	if freeLeft < 0 {
		used = -freeLeft
		freeLeft = 0
	} else {
		used = 0
	}

	holderLeft := state.FreeBonusHolder - used
	if holderLeft < 0 {
		used = -holderLeft
		holderLeft = 0
	} else {
		used = 0
	}

	shareLeft := state.FreeBonusShare - used
	if shareLeft < 0 {
		shareLeft = 0
	}

	return &QuotaSummary{
		Free:           freeLeft,
		HolderBonus:    holderLeft,
		ShareBonus:     shareLeft,
		Paid:           state.PaidCredits,
		TotalRemaining: state.TotalRemaining(),
	}
}
