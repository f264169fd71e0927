// Package model defines the data models for the word-jackpot backend.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Round statuses. Exactly one round is active at a time; resolved and
// cancelled are terminal.
const (
	RoundStatusActive    = "active"
	RoundStatusResolved  = "resolved"
	RoundStatusCancelled = "cancelled"
)

// Round represents one contest cycle from answer commitment to resolution
// or cancellation. The answer word is committed via commit_hash at creation
// and must never leave the backend while the round is active.
type Round struct {
	ID               uuid.UUID       `db:"id"`
	RulesetJSON      []byte          `db:"ruleset"`
	AnswerWord       string          `db:"answer_word"`
	Salt             string          `db:"salt"`
	CommitHash       string          `db:"commit_hash"`
	PrizePool        decimal.Decimal `db:"prize_pool"`
	CreatorFees      decimal.Decimal `db:"creator_fees"`
	SeedForNextRound decimal.Decimal `db:"seed_for_next_round"`
	GuessCount       int64           `db:"guess_count"`
	WheelWords       []string        `db:"wheel_words"`
	Status           string          `db:"status"`
	WinnerUserID     *int64          `db:"winner_user_id"`
	ReferrerUserID   *int64          `db:"referrer_user_id"`
	StartedAt        time.Time       `db:"started_at"`
	ResolvedAt       *time.Time      `db:"resolved_at"`
	CancelledAt      *time.Time      `db:"cancelled_at"`
	CancelledBy      *int64          `db:"cancelled_by"`
	CancelledReason  *string         `db:"cancelled_reason"`
}

// Closed reports whether the round can no longer accept guesses.
func (r *Round) Closed() bool {
	return r.Status != RoundStatusActive
}

// Guess is an append-only audit row. index_in_round is dense and assigned
// in commit order; at most one guess per round has is_correct true.
type Guess struct {
	ID           int64     `db:"id"`
	RoundID      uuid.UUID `db:"round_id"`
	UserID       int64     `db:"user_id"`
	Word         string    `db:"word"`
	IsPaid       bool      `db:"is_paid"`
	IsCorrect    bool      `db:"is_correct"`
	IndexInRound int64     `db:"index_in_round"`
	CreatedAt    time.Time `db:"created_at"`
}

// DailyQuotaState tracks one user's guess budget for one UTC day across the
// four quota sources. Created lazily, never deleted.
type DailyQuotaState struct {
	UserID             int64     `db:"user_id"`
	UTCDate            time.Time `db:"utc_date"`
	FreeBase           int       `db:"free_base"`
	FreeBonusHolder    int       `db:"free_bonus_holder"`
	FreeBonusShare     int       `db:"free_bonus_share"`
	FreeUsed           int       `db:"free_used"`
	PaidCredits        int       `db:"paid_credits"`
	PaidPacksPurchased int       `db:"paid_packs_purchased"`
	HasSharedToday     bool      `db:"has_shared_today"`
	WheelStartIndex    int       `db:"wheel_start_index"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// FreeRemaining returns the unused free allocation across all free sources.
func (q *DailyQuotaState) FreeRemaining() int {
	r := q.FreeBase + q.FreeBonusHolder + q.FreeBonusShare - q.FreeUsed
	if r < 0 {
		return 0
	}
	return r
}

// TotalRemaining returns the full remaining budget including paid credits.
func (q *DailyQuotaState) TotalRemaining() int {
	return q.FreeRemaining() + q.PaidCredits
}

// Quota sources in consumption priority order.
const (
	QuotaSourceFreeBase    = "free_base"
	QuotaSourceHolderBonus = "holder_bonus"
	QuotaSourceShareBonus  = "share_bonus"
	QuotaSourcePaid        = "paid"
)

// Payout roles.
const (
	PayoutRoleWinner     = "winner"
	PayoutRoleReferrer   = "referrer"
	PayoutRoleTopGuesser = "top_guesser"
	PayoutRoleSeed       = "seed"
	PayoutRoleCreator    = "creator"
)

// RoundPayout is one recipient's share of a resolved round's pool.
// The seed and creator rows have no user.
type RoundPayout struct {
	ID        uuid.UUID       `db:"id"`
	RoundID   uuid.UUID       `db:"round_id"`
	UserID    *int64          `db:"user_id"`
	AmountEth decimal.Decimal `db:"amount_eth"`
	Role      string          `db:"role"`
	Rank      *int            `db:"rank"`
	CreatedAt time.Time       `db:"created_at"`
}

// PackPurchase records a paid guess-pack purchase with the price locked at
// purchase time for refund accuracy.
type PackPurchase struct {
	ID                   uuid.UUID       `db:"id"`
	RoundID              uuid.UUID       `db:"round_id"`
	UserID               int64           `db:"user_id"`
	PackCount            int             `db:"pack_count"`
	CreditsGranted       int             `db:"credits_granted"`
	PricePerPack         decimal.Decimal `db:"price_per_pack"`
	TotalPriceEth        decimal.Decimal `db:"total_price_eth"`
	GuessCountAtPurchase int64           `db:"guess_count_at_purchase"`
	CreatedAt            time.Time       `db:"created_at"`
}

// Refund statuses. pending and failed rows are picked up by the refund
// worker; sent is terminal.
const (
	RefundStatusPending    = "pending"
	RefundStatusProcessing = "processing"
	RefundStatusSent       = "sent"
	RefundStatusFailed     = "failed"
)

// Refund reimburses a user's pack purchases after a round is cancelled.
type Refund struct {
	ID          uuid.UUID       `db:"id"`
	RoundID     uuid.UUID       `db:"round_id"`
	UserID      int64           `db:"user_id"`
	AmountEth   decimal.Decimal `db:"amount_eth"`
	PurchaseIDs []uuid.UUID     `db:"purchase_ids"`
	Status      string          `db:"status"`
	RetryCount  int             `db:"retry_count"`
	LastError   *string         `db:"last_error"`
	TxHash      *string         `db:"tx_hash"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// Settlement event types for the append-only fact log. The log is written
// after the settlement transaction commits and is never on the critical
// path for winner determination.
const (
	EventGuessSubmitted    = "guess_submitted"
	EventRoundStarted      = "round_started"
	EventRoundResolved     = "round_resolved"
	EventRoundCancelled    = "round_cancelled"
	EventPackPurchased     = "pack_purchased"
	EventShareBonusGranted = "share_bonus_granted"
)

// SettlementEvent is one row of the fact log.
type SettlementEvent struct {
	ID        int64      `db:"id"`
	RoundID   *uuid.UUID `db:"round_id"`
	UserID    *int64     `db:"user_id"`
	EventType string     `db:"event_type"`
	Payload   []byte     `db:"payload"`
	CreatedAt time.Time  `db:"created_at"`
}

// TopGuesser is one entry of the rank-payout eligibility list: a distinct
// user whose first guess landed inside the top-K window, with their total
// guess count for the round.
type TopGuesser struct {
	UserID       int64 `db:"user_id"`
	TotalGuesses int64 `db:"total_guesses"`
	FirstIndex   int64 `db:"first_index"`
}
