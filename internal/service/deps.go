// Package service provides business logic implementations.
package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Dictionary answers membership checks against the accepted word list.
// Membership is an external collaborator lookup; the backend only
// validates shape (5 alphabetic characters) itself.
type Dictionary interface {
	IsValidWord(ctx context.Context, word string) (bool, error)
}

// WordProvider supplies round answers and cosmetic wheel decoys.
type WordProvider interface {
	PickAnswer(ctx context.Context) (string, error)
	Decoys(ctx context.Context, answer string, n int) ([]string, error)
}

// HolderStatus is the external token-balance signal for a user.
type HolderStatus struct {
	IsHolder bool
	Balance  decimal.Decimal
}

// HolderStatusProvider reports whether a user qualifies for the daily
// holder bonus. Queried once per user per day; the result is frozen on the
// quota row.
type HolderStatusProvider interface {
	GetHolderStatus(ctx context.Context, userID int64) (HolderStatus, error)
}

// TrustScoreProvider reports the external spam/trust score for a user,
// in [0, 1].
type TrustScoreProvider interface {
	GetTrustScore(ctx context.Context, userID int64) (float64, error)
}

// PaymentSender performs the actual refund transfer. The refund worker
// drives the state machine; the sender resolves the user's destination
// wallet itself and returns the payment transaction hash.
type PaymentSender interface {
	SendRefund(ctx context.Context, refundID uuid.UUID, amountEth decimal.Decimal, userID int64) (txHash string, err error)
}
