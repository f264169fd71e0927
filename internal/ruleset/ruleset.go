// Package ruleset defines the immutable per-round economics configuration.
// A ruleset is snapshotted onto the round row at start, so changing the
// global config never alters an in-flight round's economics.
package ruleset

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// BpsDenominator is the basis-point scale used by all split percentages.
const BpsDenominator = 10000

// PricePhase is one step of the pack-price ramp: the pack price once the
// round's global guess count reaches MinGuessCount.
type PricePhase struct {
	MinGuessCount int64           `json:"min_guess_count"`
	PackPriceEth  decimal.Decimal `json:"pack_price_eth"`
}

// Ruleset holds every tunable economic parameter of a round.
type Ruleset struct {
	ID string `json:"id"`

	// Daily quota sizes.
	FreeBasePerDay    int `json:"free_base_per_day"`
	HolderBonusPerDay int `json:"holder_bonus_per_day"`
	ShareBonusPerDay  int `json:"share_bonus_per_day"`

	// Paid packs.
	PackSize       int          `json:"pack_size"`
	MaxPacksPerDay int          `json:"max_packs_per_day"`
	PricePhases    []PricePhase `json:"price_phases"`

	// Prize split, in basis points of the distributable pool.
	WinnerBps   int `json:"winner_bps"`
	ReferrerBps int `json:"referrer_bps"`
	Top10Bps    int `json:"top10_bps"`

	// When the winner has no referrer on file, the referrer share is split
	// between the top-10 pool and the seed bucket by these two values,
	// which must sum to BpsDenominator.
	FallbackTop10Bps int `json:"fallback_top10_bps"`
	FallbackSeedBps  int `json:"fallback_seed_bps"`

	// Rank shares of the top-10 pool, in basis points; len must equal TopK
	// after expansion and sum to BpsDenominator.
	RankTableBps []int `json:"rank_table_bps"`

	// TopK is the top-10 lock: only users whose first guess lands within
	// the first TopK guesses of the round are rank-payout eligible.
	TopK int `json:"top_k"`

	// CreatorFeeBps is taken off each pack purchase before the remainder
	// joins the prize pool.
	CreatorFeeBps int `json:"creator_fee_bps"`

	// Cosmetic wheel decoys seeded at round start.
	DecoyWordCount int `json:"decoy_word_count"`
}

// Default returns the production ruleset matching the published game rules.
func Default() Ruleset {
	return Ruleset{
		ID:                "default",
		FreeBasePerDay:    3,
		HolderBonusPerDay: 2,
		ShareBonusPerDay:  1,
		PackSize:          5,
		MaxPacksPerDay:    4,
		PricePhases: []PricePhase{
			{MinGuessCount: 0, PackPriceEth: decimal.RequireFromString("0.0003")},
			{MinGuessCount: 100, PackPriceEth: decimal.RequireFromString("0.0005")},
			{MinGuessCount: 500, PackPriceEth: decimal.RequireFromString("0.001")},
		},
		WinnerBps:        8000,
		ReferrerBps:      1000,
		Top10Bps:         1000,
		FallbackTop10Bps: 10000,
		FallbackSeedBps:  0,
		RankTableBps:     []int{1900, 1600, 1400, 1100, 1000, 600, 600, 600, 600, 600},
		TopK:             10,
		CreatorFeeBps:    0,
		DecoyWordCount:   8,
	}
}

// Validation errors.
var (
	ErrBadSplit     = errors.New("winner, referrer and top10 shares must sum to 10000 bps")
	ErrBadFallback  = errors.New("referrer fallback shares must sum to 10000 bps")
	ErrBadRankTable = errors.New("rank table must have TopK entries summing to 10000 bps")
	ErrBadPhases    = errors.New("price phases must start at zero and ramp upward")
)

// Validate checks the internal consistency of a ruleset.
func (r Ruleset) Validate() error {
	if r.WinnerBps+r.ReferrerBps+r.Top10Bps != BpsDenominator {
		return ErrBadSplit
	}
	if r.FallbackTop10Bps+r.FallbackSeedBps != BpsDenominator {
		return ErrBadFallback
	}
	if r.TopK <= 0 || len(r.RankTableBps) != r.TopK {
		return ErrBadRankTable
	}
	sum := 0
	for _, bps := range r.RankTableBps {
		if bps < 0 {
			return ErrBadRankTable
		}
		sum += bps
	}
	if sum != BpsDenominator {
		return ErrBadRankTable
	}
	if len(r.PricePhases) == 0 || r.PricePhases[0].MinGuessCount != 0 {
		return ErrBadPhases
	}
	for i := 1; i < len(r.PricePhases); i++ {
		if r.PricePhases[i].MinGuessCount <= r.PricePhases[i-1].MinGuessCount {
			return ErrBadPhases
		}
	}
	if r.PackSize <= 0 || r.MaxPacksPerDay <= 0 {
		return fmt.Errorf("pack size and daily pack limit must be positive")
	}
	return nil
}

// PackPrice returns the per-pack price for the phase the given guess count
// falls into.
func (r Ruleset) PackPrice(guessCount int64) decimal.Decimal {
	price := r.PricePhases[0].PackPriceEth
	for _, p := range r.PricePhases {
		if guessCount >= p.MinGuessCount {
			price = p.PackPriceEth
		}
	}
	return price
}

// Marshal serializes the ruleset for the round-row snapshot.
func (r Ruleset) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal decodes a round-row snapshot back into a ruleset.
func Unmarshal(data []byte) (Ruleset, error) {
	var r Ruleset
	if err := json.Unmarshal(data, &r); err != nil {
		return Ruleset{}, fmt.Errorf("failed to decode ruleset snapshot: %w", err)
	}
	return r, nil
}
