// Package provider ships development implementations of the external
// collaborator interfaces. Production deployments replace these with the
// real token-balance feed, spam scorer and payment rail.
package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"wordpot/internal/service"
)

// StaticHolders reports holder status from a fixed set of user ids.
type StaticHolders struct {
	holders map[int64]decimal.Decimal
}

// NewStaticHolders builds a holder feed from the given user ids.
func NewStaticHolders(userIDs ...int64) *StaticHolders {
	h := &StaticHolders{holders: make(map[int64]decimal.Decimal, len(userIDs))}
	for _, id := range userIDs {
		h.holders[id] = decimal.NewFromInt(1)
	}
	return h
}

// GetHolderStatus implements service.HolderStatusProvider.
func (h *StaticHolders) GetHolderStatus(ctx context.Context, userID int64) (service.HolderStatus, error) {
	balance, ok := h.holders[userID]
	if !ok {
		return service.HolderStatus{}, nil
	}
	return service.HolderStatus{IsHolder: true, Balance: balance}, nil
}

// StaticTrust reports the same trust score for every user.
type StaticTrust struct {
	Score float64
}

// GetTrustScore implements service.TrustScoreProvider.
func (t *StaticTrust) GetTrustScore(ctx context.Context, userID int64) (float64, error) {
	return t.Score, nil
}

// LogSender "sends" refunds by logging them and minting a deterministic
// pseudo transaction hash. It never fails.
type LogSender struct{}

// SendRefund implements service.PaymentSender.
func (s *LogSender) SendRefund(ctx context.Context, refundID uuid.UUID, amountEth decimal.Decimal, userID int64) (string, error) {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", refundID, amountEth, userID)))
	txHash := "0x" + hex.EncodeToString(sum[:])
	log.Info().
		Str("refund_id", refundID.String()).
		Int64("user_id", userID).
		Str("amount_eth", amountEth.String()).
		Str("tx_hash", txHash).
		Msg("Dev refund sent")
	return txHash, nil
}
