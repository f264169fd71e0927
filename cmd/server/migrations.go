package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"wordpot/internal/pkg/db"
)

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: rounds. The partial unique index enforces at most one
	// active round; Claim and Cancel contend on status='active'.
	_, err := pool.Exec(ctx, `
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
		CREATE INDEX IF NOT EXISTS idx_rounds_started ON rounds(started_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: rounds table created")

	// Migration 2: guesses. The (round_id, word) key turns same-word races
	// into aborted transactions; (round_id, index_in_round) audits density.
	_, err = pool.Exec(ctx, `
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
		CREATE INDEX IF NOT EXISTS idx_guesses_round_user ON guesses(round_id, user_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: guesses table created")

	// Migration 3: daily quota ledger, one row per user per UTC day.
	_, err = pool.Exec(ctx, `
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
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: daily_quota_states table created")

	// Migration 4: pack purchases with the price locked at purchase time.
	_, err = pool.Exec(ctx, `
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
		CREATE INDEX IF NOT EXISTS idx_pack_purchases_round_user ON pack_purchases(round_id, user_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: pack_purchases table created")

	// Migration 5: payout rows written in the winning transaction.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS round_payouts (
			id UUID PRIMARY KEY,
			round_id UUID NOT NULL REFERENCES rounds(id),
			user_id BIGINT,
			amount_eth NUMERIC(30,18) NOT NULL,
			role VARCHAR(20) NOT NULL,
			rank INT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_round_payouts_round ON round_payouts(round_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: round_payouts table created")

	// Migration 6: refund queue for cancelled rounds.
	_, err = pool.Exec(ctx, `
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
		CREATE INDEX IF NOT EXISTS idx_refunds_status ON refunds(status, created_at);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 6: refunds table created")

	// Migration 7: referrals, first write wins.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS referrals (
			user_id BIGINT PRIMARY KEY,
			referrer_user_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 7: referrals table created")

	// Migration 8: settlement fact log.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS settlement_events (
			id BIGSERIAL PRIMARY KEY,
			round_id UUID,
			user_id BIGINT,
			event_type VARCHAR(40) NOT NULL,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_settlement_events_type ON settlement_events(event_type, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 8: settlement_events table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
