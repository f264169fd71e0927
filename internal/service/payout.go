package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wordpot/internal/model"
	"wordpot/internal/ruleset"
)

// ethPlaces is the quantization of every computed payout. Sub-wei dust from
// truncation lands in the seed bucket, never gets dropped.
const ethPlaces = 18

// ErrNoWinner guards against computing payouts without a winner.
var ErrNoWinner = errors.New("payout computation requires a winner")

// PayoutInput is everything the calculator needs, captured inside the
// resolving transaction so the figures cannot move underneath it.
type PayoutInput struct {
	RoundID        uuid.UUID
	Rules          ruleset.Ruleset
	Pool           decimal.Decimal
	CreatorFees    decimal.Decimal
	WinnerUserID   int64
	ReferrerUserID *int64
	Ranked         []model.TopGuesser
}

// PayoutSet is the full payout list plus the seed carried to the next
// round. Sum of all payout amounts with role != creator equals the pool
// exactly; the creator row pays out the separately accrued pack fees.
type PayoutSet struct {
	Payouts      []model.RoundPayout
	Seed         decimal.Decimal
	WinnerAmount decimal.Decimal
}

// share returns bps basis points of amount, truncated to 18 decimals.
func share(amount decimal.Decimal, bps int) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(int64(bps))).Shift(-4).RoundDown(ethPlaces)
}

// ComputePayouts splits the final pool P into winner, referrer and ranked
// top-guesser payouts per the round's ruleset. When the winner has no
// referrer on file, the referrer share is reallocated between the top-10
// pool and the seed bucket by the ruleset's fallback percentages. Every
// rounding remainder and every unclaimed rank share accrues to the seed.
func ComputePayouts(in PayoutInput) (PayoutSet, error) {
	if in.WinnerUserID == 0 {
		return PayoutSet{}, ErrNoWinner
	}
	if err := in.Rules.Validate(); err != nil {
		return PayoutSet{}, fmt.Errorf("invalid ruleset at resolution: %w", err)
	}

	pool := in.Pool
	winnerAmt := share(pool, in.Rules.WinnerBps)
	referrerAmt := share(pool, in.Rules.ReferrerBps)
	topPool := share(pool, in.Rules.Top10Bps)

	var payouts []model.RoundPayout

	winnerID := in.WinnerUserID
	payouts = append(payouts, model.RoundPayout{
		RoundID:   in.RoundID,
		UserID:    &winnerID,
		AmountEth: winnerAmt,
		Role:      model.PayoutRoleWinner,
	})

	distributed := winnerAmt

	if in.ReferrerUserID != nil {
		refID := *in.ReferrerUserID
		payouts = append(payouts, model.RoundPayout{
			RoundID:   in.RoundID,
			UserID:    &refID,
			AmountEth: referrerAmt,
			Role:      model.PayoutRoleReferrer,
		})
		distributed = distributed.Add(referrerAmt)
	} else {
		// No referrer on file: the 10% falls back to the top-10 pool
		// and/or the seed per the ruleset. The seed part needs no
		// explicit credit here; whatever is never distributed below
		// ends up in the seed remainder.
		topPool = topPool.Add(share(referrerAmt, in.Rules.FallbackTop10Bps))
	}

	ranked := in.Ranked
	if len(ranked) > in.Rules.TopK {
		ranked = ranked[:in.Rules.TopK]
	}
	for i, tg := range ranked {
		amt := share(topPool, in.Rules.RankTableBps[i])
		rank := i + 1
		userID := tg.UserID
		payouts = append(payouts, model.RoundPayout{
			RoundID:   in.RoundID,
			UserID:    &userID,
			AmountEth: amt,
			Role:      model.PayoutRoleTopGuesser,
			Rank:      &rank,
		})
		distributed = distributed.Add(amt)
	}

	seed := pool.Sub(distributed)
	if seed.IsNegative() {
		return PayoutSet{}, fmt.Errorf("payout overflow: distributed %s exceeds pool %s", distributed, pool)
	}
	payouts = append(payouts, model.RoundPayout{
		RoundID:   in.RoundID,
		AmountEth: seed,
		Role:      model.PayoutRoleSeed,
	})

	if in.CreatorFees.IsPositive() {
		payouts = append(payouts, model.RoundPayout{
			RoundID:   in.RoundID,
			AmountEth: in.CreatorFees,
			Role:      model.PayoutRoleCreator,
		})
	}

	return PayoutSet{Payouts: payouts, Seed: seed, WinnerAmount: winnerAmt}, nil
}
