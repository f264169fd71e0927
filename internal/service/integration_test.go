// Service integration tests drive the full settlement pipeline against a
// real PostgreSQL container.
package service

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"wordpot/internal/model"
	"wordpot/internal/pkg/commit"
	"wordpot/internal/pkg/lock"
	"wordpot/internal/pkg/metrics"
	"wordpot/internal/repository"
	"wordpot/internal/ruleset"
	"wordpot/internal/wordlist"
)

func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return pool, cleanup
}

const testSchema = `
	CREATE TABLE IF NOT EXISTS rounds (
		id UUID PRIMARY KEY,
		ruleset JSONB NOT NULL,
		answer_word VARCHAR(5) NOT NULL,
		salt VARCHAR(64) NOT NULL,
		commit_hash VARCHAR(64) NOT NULL,
		prize_pool NUMERIC(30,18) NOT NULL DEFAULT 0,
		creator_fees NUMERIC(30,18) NOT NULL DEFAULT 0,
		seed_for_next_round NUMERIC(30,18) NOT NULL DEFAULT 0,
		guess_count BIGINT NOT NULL DEFAULT 0,
		wheel_words TEXT[] NOT NULL DEFAULT '{}',
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		winner_user_id BIGINT,
		referrer_user_id BIGINT,
		started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ,
		cancelled_by BIGINT,
		cancelled_reason TEXT
	);
	CREATE UNIQUE INDEX IF NOT EXISTS rounds_one_active ON rounds ((status)) WHERE status = 'active';

	CREATE TABLE IF NOT EXISTS guesses (
		id BIGSERIAL PRIMARY KEY,
		round_id UUID NOT NULL REFERENCES rounds(id),
		user_id BIGINT NOT NULL,
		word VARCHAR(5) NOT NULL,
		is_paid BOOLEAN NOT NULL DEFAULT FALSE,
		is_correct BOOLEAN NOT NULL DEFAULT FALSE,
		index_in_round BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT guesses_round_word_key UNIQUE (round_id, word),
		CONSTRAINT guesses_round_index_key UNIQUE (round_id, index_in_round)
	);

	CREATE TABLE IF NOT EXISTS daily_quota_states (
		user_id BIGINT NOT NULL,
		utc_date DATE NOT NULL,
		free_base INT NOT NULL,
		free_bonus_holder INT NOT NULL DEFAULT 0,
		free_bonus_share INT NOT NULL DEFAULT 0,
		free_used INT NOT NULL DEFAULT 0,
		paid_credits INT NOT NULL DEFAULT 0,
		paid_packs_purchased INT NOT NULL DEFAULT 0,
		has_shared_today BOOLEAN NOT NULL DEFAULT FALSE,
		wheel_start_index INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, utc_date)
	);

	CREATE TABLE IF NOT EXISTS pack_purchases (
		id UUID PRIMARY KEY,
		round_id UUID NOT NULL REFERENCES rounds(id),
		user_id BIGINT NOT NULL,
		pack_count INT NOT NULL,
		credits_granted INT NOT NULL,
		price_per_pack NUMERIC(30,18) NOT NULL,
		total_price_eth NUMERIC(30,18) NOT NULL,
		guess_count_at_purchase BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS round_payouts (
		id UUID PRIMARY KEY,
		round_id UUID NOT NULL REFERENCES rounds(id),
		user_id BIGINT,
		amount_eth NUMERIC(30,18) NOT NULL,
		role VARCHAR(20) NOT NULL,
		rank INT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS refunds (
		id UUID PRIMARY KEY,
		round_id UUID NOT NULL REFERENCES rounds(id),
		user_id BIGINT NOT NULL,
		amount_eth NUMERIC(30,18) NOT NULL,
		purchase_ids UUID[] NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		retry_count INT NOT NULL DEFAULT 0,
		last_error TEXT,
		tx_hash VARCHAR(80),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS referrals (
		user_id BIGINT PRIMARY KEY,
		referrer_user_id BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS settlement_events (
		id BIGSERIAL PRIMARY KEY,
		round_id UUID,
		user_id BIGINT,
		event_type VARCHAR(40) NOT NULL,
		payload JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

// fixedWords always picks the same answer so tests know it.
type fixedWords struct {
	answer string
}

func (f *fixedWords) PickAnswer(ctx context.Context) (string, error) { return f.answer, nil }

func (f *fixedWords) Decoys(ctx context.Context, answer string, n int) ([]string, error) {
	all := []string{"PLANE", "GRAPE", "MANGO", "OCEAN", "PEARL", "STONE", "TIGER", "WHALE", "LEMON", "FROST"}
	out := make([]string, 0, n)
	for _, w := range all {
		if len(out) == n {
			break
		}
		if w != answer {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeHolders struct {
	holders map[int64]bool
}

func (f *fakeHolders) GetHolderStatus(ctx context.Context, userID int64) (HolderStatus, error) {
	if f.holders[userID] {
		return HolderStatus{IsHolder: true, Balance: decimal.NewFromInt(1)}, nil
	}
	return HolderStatus{}, nil
}

type fakeTrust struct {
	score float64
}

func (f *fakeTrust) GetTrustScore(ctx context.Context, userID int64) (float64, error) {
	return f.score, nil
}

// testEnv bundles the wired services and repositories for a test run.
type testEnv struct {
	pool    *pgxpool.Pool
	rounds  *repository.RoundRepository
	guesses *repository.GuessRepository
	quotas  *repository.QuotaRepository
	payouts *repository.PayoutRepository
	refunds *repository.RefundRepository

	roundSvc *RoundService
	guessSvc *GuessService
	quotaSvc *QuotaService
}

func newTestEnv(t *testing.T, pool *pgxpool.Pool, holders map[int64]bool) *testEnv {
	t.Helper()

	roundRepo := repository.NewRoundRepository(pool)
	guessRepo := repository.NewGuessRepository(pool)
	quotaRepo := repository.NewQuotaRepository(pool)
	payoutRepo := repository.NewPayoutRepository(pool)
	purchaseRepo := repository.NewPurchaseRepository(pool)
	refundRepo := repository.NewRefundRepository(pool)
	referralRepo := repository.NewReferralRepository(pool)
	eventRepo := repository.NewEventRepository(pool)

	registry, err := ruleset.NewRegistry(ruleset.Default())
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	userLock := lock.NewUserLock()
	dict := wordlist.NewDictionary()

	quotaSvc := NewQuotaService(
		pool, roundRepo, quotaRepo, purchaseRepo, eventRepo,
		&fakeHolders{holders: holders}, &fakeTrust{score: 1.0},
		registry, "default", userLock, m, 0.5,
	)
	guessSvc := NewGuessService(
		pool, roundRepo, guessRepo, quotaRepo, payoutRepo,
		referralRepo, eventRepo, quotaSvc, dict, userLock, m,
	)
	roundSvc := NewRoundService(
		pool, roundRepo, purchaseRepo, refundRepo, eventRepo,
		registry, &fixedWords{answer: "CRANE"}, m,
		decimal.RequireFromString("0.01"), "default",
	)

	return &testEnv{
		pool:     pool,
		rounds:   roundRepo,
		guesses:  guessRepo,
		quotas:   quotaRepo,
		payouts:  payoutRepo,
		refunds:  refundRepo,
		roundSvc: roundSvc,
		guessSvc: guessSvc,
		quotaSvc: quotaSvc,
	}
}

func TestRoundCommitRevealCycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	env := newTestEnv(t, pool, nil)
	ctx := context.Background()

	round, err := env.roundSvc.StartRound(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.01").Equal(round.PrizePool))
	assert.Len(t, round.WheelWords, ruleset.Default().DecoyWordCount)
	assert.NotContains(t, round.WheelWords, "CRANE")

	// No reveal while active.
	_, err = env.roundSvc.RevealRound(ctx, round.ID)
	assert.ErrorIs(t, err, ErrRoundStillActive)

	// A second round cannot start underneath the active one.
	_, err = env.roundSvc.StartRound(ctx)
	assert.ErrorIs(t, err, ErrRoundAlreadyActive)

	res, err := env.guessSvc.SubmitGuess(ctx, 1, "crane")
	require.NoError(t, err)
	require.Equal(t, GuessCorrect, res.Status)
	assert.True(t, decimal.RequireFromString("0.008").Equal(res.AmountWon), "winner got %s", res.AmountWon)

	reveal, err := env.roundSvc.RevealRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, "CRANE", reveal.AnswerWord)
	assert.True(t, commit.Verify(reveal.Salt, reveal.AnswerWord, reveal.CommitHash))

	// The carried seed funds the next round: pool minus winner payout and
	// the unclaimed rank shares all land in seed_for_next_round.
	next, err := env.roundSvc.StartRound(ctx)
	require.NoError(t, err)
	closed, err := env.rounds.GetByID(ctx, pool, round.ID)
	require.NoError(t, err)
	assert.True(t, next.PrizePool.Equal(closed.SeedForNextRound))
}

func TestSubmitGuessOutcomes(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	env := newTestEnv(t, pool, nil)
	ctx := context.Background()

	res, err := env.guessSvc.SubmitGuess(ctx, 1, "PLANE")
	require.NoError(t, err)
	assert.Equal(t, GuessRoundClosed, res.Status)

	_, err = env.roundSvc.StartRound(ctx)
	require.NoError(t, err)

	res, err = env.guessSvc.SubmitGuess(ctx, 1, "PLAN")
	require.NoError(t, err)
	assert.Equal(t, GuessInvalidWord, res.Status)

	res, err = env.guessSvc.SubmitGuess(ctx, 1, "QQQQQ")
	require.NoError(t, err)
	assert.Equal(t, GuessInvalidWord, res.Status)

	res, err = env.guessSvc.SubmitGuess(ctx, 1, "PLANE")
	require.NoError(t, err)
	assert.Equal(t, GuessIncorrect, res.Status)
	assert.Equal(t, int64(1), res.IndexInRound)
	assert.True(t, res.TopTenEligible)
	assert.Equal(t, model.QuotaSourceFreeBase, res.QuotaSource)

	// Same word again, any user: duplicate, and the second user's quota is
	// untouched.
	res, err = env.guessSvc.SubmitGuess(ctx, 2, "PLANE")
	require.NoError(t, err)
	assert.Equal(t, GuessDuplicate, res.Status)

	summary, err := env.quotaSvc.GetQuotaSummary(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalRemaining)

	// Burn the rest of user 1's free quota, then hit the wall.
	for _, w := range []string{"GRAPE", "MANGO"} {
		res, err = env.guessSvc.SubmitGuess(ctx, 1, w)
		require.NoError(t, err)
		require.Equal(t, GuessIncorrect, res.Status)
	}
	res, err = env.guessSvc.SubmitGuess(ctx, 1, "OCEAN")
	require.NoError(t, err)
	assert.Equal(t, GuessNoGuessesLeft, res.Status)
}

func TestConcurrentGuessesSingleWinner(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	env := newTestEnv(t, pool, nil)
	ctx := context.Background()

	round, err := env.roundSvc.StartRound(ctx)
	require.NoError(t, err)

	wrongWords := []string{
		"ABOUT", "ALERT", "APPLE", "BEACH", "BRAVE", "BREAD", "BRICK", "BRINE",
		"CANDY", "CHAIR", "CHARM", "CHESS", "CLOUD", "CRISP", "DANCE", "DREAM",
		"DRIFT", "EAGLE", "EARTH", "FABLE", "FLAME", "FLOUR", "FROST", "GHOST",
		"GLIDE", "GRAPE", "GREEN", "HEART", "HONEY", "HOUSE", "IVORY", "JOLLY",
		"JUICE", "KNIFE", "LEMON", "LIGHT", "LUNAR", "MANGO", "MAPLE", "MIRTH",
		"NIGHT", "NOBLE", "OCEAN", "OLIVE", "PEACH", "PEARL", "PLANE",
	}

	type submission struct {
		userID int64
		word   string
	}
	subs := []submission{{1, "CRANE"}, {2, "CRANE"}, {3, "CRANE"}}
	for i, w := range wrongWords {
		subs = append(subs, submission{userID: int64(100 + i), word: w})
	}

	results := make([]*GuessResult, len(subs))
	errs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub submission) {
			defer wg.Done()
			results[i], errs[i] = env.guessSvc.SubmitGuess(ctx, sub.userID, sub.word)
		}(i, sub)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "submission %d (%s)", i, subs[i].word)
	}

	var correct, wonByAnother, incorrect, closed int
	var winnerUser int64
	for i, res := range results {
		switch res.Status {
		case GuessCorrect:
			correct++
			winnerUser = subs[i].userID
		case GuessWonByAnother:
			wonByAnother++
			require.NotNil(t, res.WinnerUserID)
		case GuessIncorrect:
			incorrect++
		case GuessRoundClosed:
			closed++
		default:
			t.Fatalf("unexpected status %s for %s", res.Status, subs[i].word)
		}
	}

	// Exactly one claimant wins; the other two correct submitters learn who
	// beat them.
	assert.Equal(t, 1, correct)
	assert.Equal(t, 2, wonByAnother)
	assert.Equal(t, len(wrongWords), incorrect+closed)

	winners, err := env.rounds.CountWinners(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, winners)

	resolved, err := env.rounds.GetByID(ctx, pool, round.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundStatusResolved, resolved.Status)
	require.NotNil(t, resolved.WinnerUserID)
	assert.Equal(t, winnerUser, *resolved.WinnerUserID)

	// index_in_round is dense: the recorded guesses carry exactly the
	// indices 1..n with no gaps, no matter how the races interleaved.
	recorded, err := env.guesses.ListByRound(ctx, round.ID)
	require.NoError(t, err)
	require.Equal(t, int(resolved.GuessCount), len(recorded))
	seen := make(map[int64]bool, len(recorded))
	for _, g := range recorded {
		require.False(t, seen[g.IndexInRound], "index %d assigned twice", g.IndexInRound)
		require.LessOrEqual(t, g.IndexInRound, int64(len(recorded)))
		require.GreaterOrEqual(t, g.IndexInRound, int64(1))
		seen[g.IndexInRound] = true
	}

	// Losing a won race consumes nothing.
	for _, loser := range []int64{1, 2, 3} {
		if loser == winnerUser {
			continue
		}
		summary, err := env.quotaSvc.GetQuotaSummary(ctx, loser)
		require.NoError(t, err)
		assert.Equal(t, 3, summary.TotalRemaining, "user %d lost quota to a lost race", loser)
	}

	// Payout conservation against the resolved pool.
	payouts, err := env.payouts.ListByRound(ctx, round.ID)
	require.NoError(t, err)
	total := decimal.Zero
	for _, p := range payouts {
		if p.Role == model.PayoutRoleCreator {
			continue
		}
		total = total.Add(p.AmountEth)
	}
	assert.True(t, total.Equal(resolved.PrizePool), "payouts %s, pool %s", total, resolved.PrizePool)
}

func TestHolderBonusAndPaidCreditsOrdering(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	env := newTestEnv(t, pool, map[int64]bool{7: true})
	ctx := context.Background()

	_, err := env.roundSvc.StartRound(ctx)
	require.NoError(t, err)

	summary, err := env.quotaSvc.GetQuotaSummary(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Free)
	assert.Equal(t, 2, summary.HolderBonus)
	assert.Equal(t, 5, summary.TotalRemaining)

	require.NoError(t, env.quotaSvc.GrantShareBonus(ctx, 7))
	// Second grant the same day is a no-op.
	require.NoError(t, env.quotaSvc.GrantShareBonus(ctx, 7))

	purchase, err := env.quotaSvc.PurchasePack(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, purchase.CreditsGranted)
	assert.True(t, decimal.RequireFromString("0.0003").Equal(purchase.TotalPriceEth))

	summary, err = env.quotaSvc.GetQuotaSummary(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 11, summary.TotalRemaining)

	// Pack revenue joins the pool immediately.
	round, err := env.roundSvc.CurrentRound(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.0103").Equal(round.PrizePool), "pool was %s", round.PrizePool)

	// Consumption order: 3 free base, 2 holder, 1 share, then paid.
	wantSources := []string{
		model.QuotaSourceFreeBase, model.QuotaSourceFreeBase, model.QuotaSourceFreeBase,
		model.QuotaSourceHolderBonus, model.QuotaSourceHolderBonus,
		model.QuotaSourceShareBonus,
		model.QuotaSourcePaid,
	}
	words := []string{"ABOUT", "ALERT", "APPLE", "BEACH", "BRAVE", "BREAD", "BRICK"}
	for i, w := range words {
		res, err := env.guessSvc.SubmitGuess(ctx, 7, w)
		require.NoError(t, err)
		require.Equal(t, GuessIncorrect, res.Status)
		assert.Equal(t, wantSources[i], res.QuotaSource, "guess %d", i+1)
	}
}

func TestCancelRoundQueuesRefunds(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	env := newTestEnv(t, pool, nil)
	ctx := context.Background()

	round, err := env.roundSvc.StartRound(ctx)
	require.NoError(t, err)

	// Two separate purchases at the locked phase-one price.
	_, err = env.quotaSvc.PurchasePack(ctx, 5, 1)
	require.NoError(t, err)
	_, err = env.quotaSvc.PurchasePack(ctx, 5, 1)
	require.NoError(t, err)

	queued, err := env.roundSvc.CancelRound(ctx, round.ID, 1000001, "suspicious activity")
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	// Idempotence: a second cancel reports the round already closed.
	_, err = env.roundSvc.CancelRound(ctx, round.ID, 1000001, "again")
	assert.ErrorIs(t, err, ErrRoundAlreadyClosed)

	refunds, err := env.refunds.ListByRound(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(5), refunds[0].UserID)
	assert.True(t, decimal.RequireFromString("0.0006").Equal(refunds[0].AmountEth), "refund was %s", refunds[0].AmountEth)
	assert.Len(t, refunds[0].PurchaseIDs, 2)
	assert.Equal(t, model.RefundStatusPending, refunds[0].Status)

	// The pack revenue leaves with the refunds; the original seed carries.
	cancelled, err := env.rounds.GetByID(ctx, pool, round.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundStatusCancelled, cancelled.Status)
	assert.True(t, decimal.RequireFromString("0.01").Equal(cancelled.SeedForNextRound), "carry was %s", cancelled.SeedForNextRound)

	// No guesses accepted after the kill switch.
	res, err := env.guessSvc.SubmitGuess(ctx, 6, "PLANE")
	require.NoError(t, err)
	assert.Equal(t, GuessRoundClosed, res.Status)
}

func TestWinnerPayoutWithReferrer(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	env := newTestEnv(t, pool, nil)
	ctx := context.Background()

	referralRepo := repository.NewReferralRepository(pool)
	recorded, err := referralRepo.Set(ctx, 1, 99)
	require.NoError(t, err)
	require.True(t, recorded)

	round, err := env.roundSvc.StartRound(ctx)
	require.NoError(t, err)

	res, err := env.guessSvc.SubmitGuess(ctx, 1, "CRANE")
	require.NoError(t, err)
	require.Equal(t, GuessCorrect, res.Status)

	payouts, err := env.payouts.ListByRound(ctx, round.ID)
	require.NoError(t, err)

	var sawReferrer bool
	for _, p := range payouts {
		if p.Role == model.PayoutRoleReferrer {
			sawReferrer = true
			require.NotNil(t, p.UserID)
			assert.Equal(t, int64(99), *p.UserID)
			assert.True(t, decimal.RequireFromString("0.001").Equal(p.AmountEth), "referrer got %s", p.AmountEth)
		}
	}
	assert.True(t, sawReferrer)

	resolved, err := env.rounds.GetByID(ctx, pool, round.ID)
	require.NoError(t, err)
	require.NotNil(t, resolved.ReferrerUserID)
	assert.Equal(t, int64(99), *resolved.ReferrerUserID)
}

func TestSubmitAfterResolutionOutcomes(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	env := newTestEnv(t, pool, nil)
	ctx := context.Background()

	_, err := env.roundSvc.StartRound(ctx)
	require.NoError(t, err)

	res, err := env.guessSvc.SubmitGuess(ctx, 1, "CRANE")
	require.NoError(t, err)
	require.Equal(t, GuessCorrect, res.Status)

	// A late wrong word sees round_closed, a late correct word sees who won.
	res, err = env.guessSvc.SubmitGuess(ctx, 2, "PLANE")
	require.NoError(t, err)
	assert.Equal(t, GuessRoundClosed, res.Status)

	res, err = env.guessSvc.SubmitGuess(ctx, 2, "CRANE")
	require.NoError(t, err)
	assert.Equal(t, GuessWonByAnother, res.Status)
	require.NotNil(t, res.WinnerUserID)
	assert.Equal(t, int64(1), *res.WinnerUserID)
}

func TestConcurrentPurchasesAndGuesses(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	env := newTestEnv(t, pool, nil)
	ctx := context.Background()

	round, err := env.roundSvc.StartRound(ctx)
	require.NoError(t, err)

	// Guess settlement and pack purchases contend on the same quota and
	// round rows; mixed at full concurrency they must all settle cleanly.
	words := []string{"ABOUT", "ALERT", "APPLE", "BEACH", "BRAVE", "BREAD"}
	guessErrs := make([]error, len(words))
	buyErrs := make([]error, len(words))
	var wg sync.WaitGroup
	for i := range words {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			res, err := env.guessSvc.SubmitGuess(ctx, int64(1+i), words[i])
			if err == nil && res.Status != GuessIncorrect {
				err = fmt.Errorf("guess %s settled as %s", words[i], res.Status)
			}
			guessErrs[i] = err
		}(i)
		go func(i int) {
			defer wg.Done()
			_, buyErrs[i] = env.quotaSvc.PurchasePack(ctx, int64(101+i), 1)
		}(i)
	}
	wg.Wait()
	for i := range words {
		require.NoError(t, guessErrs[i], "guess %d", i)
		require.NoError(t, buyErrs[i], "purchase %d", i)
	}

	after, err := env.rounds.GetByID(ctx, pool, round.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(words)), after.GuessCount)
	wantPool := decimal.RequireFromString("0.01").
		Add(decimal.RequireFromString("0.0003").Mul(decimal.NewFromInt(int64(len(words)))))
	assert.True(t, wantPool.Equal(after.PrizePool), "pool was %s", after.PrizePool)
}

func TestPackPriceLockedPerPurchase(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	env := newTestEnv(t, pool, nil)
	ctx := context.Background()

	round, err := env.roundSvc.StartRound(ctx)
	require.NoError(t, err)

	// Push the guess counter into phase two.
	_, err = pool.Exec(ctx, `UPDATE rounds SET guess_count = 150 WHERE id = $1`, round.ID)
	require.NoError(t, err)

	purchase, err := env.quotaSvc.PurchasePack(ctx, 9, 1)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.0005").Equal(purchase.PricePerPack), "price was %s", purchase.PricePerPack)
	assert.Equal(t, int64(150), purchase.GuessCountAtPurchase)

	// The daily limit counts packs, not purchases.
	_, err = env.quotaSvc.PurchasePack(ctx, 9, 4)
	assert.ErrorIs(t, err, ErrDailyPackLimit)

	_, err = env.quotaSvc.PurchasePack(ctx, 9, 0)
	assert.ErrorIs(t, err, ErrBadPackCount)
}

func TestRefundIgnoredWhenNoPurchases(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	env := newTestEnv(t, pool, nil)
	ctx := context.Background()

	round, err := env.roundSvc.StartRound(ctx)
	require.NoError(t, err)

	res, err := env.guessSvc.SubmitGuess(ctx, 1, "PLANE")
	require.NoError(t, err)
	require.Equal(t, GuessIncorrect, res.Status)

	// Free guesses are not refundable; cancelling a round nobody paid into
	// queues nothing.
	queued, err := env.roundSvc.CancelRound(ctx, round.ID, 1000001, "maintenance")
	require.NoError(t, err)
	assert.Equal(t, 0, queued)

	cancelled, err := env.rounds.GetByID(ctx, pool, round.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.01").Equal(cancelled.SeedForNextRound))
}
