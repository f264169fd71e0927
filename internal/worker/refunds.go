// Package worker runs the background refund sender.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"wordpot/internal/model"
	"wordpot/internal/pkg/metrics"
	"wordpot/internal/repository"
	"wordpot/internal/service"
)

// RefundWorker drains the refund queue on a schedule. Sends are at-least-
// once from the worker's point of view; the processing status gate in the
// store keeps overlapping ticks from double-sending a row.
type RefundWorker struct {
	refunds *repository.RefundRepository
	sender  service.PaymentSender
	metrics *metrics.Metrics

	maxRetries  int
	baseBackoff time.Duration
	batchSize   int
	now         func() time.Time
}

// NewRefundWorker creates a new RefundWorker instance.
func NewRefundWorker(
	refunds *repository.RefundRepository,
	sender service.PaymentSender,
	m *metrics.Metrics,
	maxRetries int,
	baseBackoff time.Duration,
	batchSize int,
) *RefundWorker {
	return &RefundWorker{
		refunds:     refunds,
		sender:      sender,
		metrics:     m,
		maxRetries:  maxRetries,
		baseBackoff: baseBackoff,
		batchSize:   batchSize,
		now:         time.Now,
	}
}

// Run processes one batch of sendable refunds. Individual send failures are
// recorded on the row and never abort the batch.
func (w *RefundWorker) Run(ctx context.Context) {
	refunds, err := w.refunds.ListSendable(ctx, w.maxRetries, w.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sendable refunds")
		return
	}
	for _, f := range refunds {
		if ctx.Err() != nil {
			return
		}
		if !w.due(f) {
			continue
		}
		w.process(ctx, f)
	}
}

// due applies exponential backoff to previously failed refunds. Pending
// rows are always due.
func (w *RefundWorker) due(f *model.Refund) bool {
	if f.Status != model.RefundStatusFailed || f.RetryCount < 1 {
		return true
	}
	shift := f.RetryCount - 1
	if shift > 10 {
		shift = 10
	}
	wait := w.baseBackoff << uint(shift)
	return w.now().After(f.UpdatedAt.Add(wait))
}

func (w *RefundWorker) process(ctx context.Context, f *model.Refund) {
	claimed, err := w.refunds.MarkProcessing(ctx, f.ID)
	if err != nil {
		log.Error().Err(err).Str("refund_id", f.ID.String()).Msg("Failed to claim refund")
		return
	}
	if !claimed {
		// Another tick got here first.
		return
	}

	txHash, err := w.sender.SendRefund(ctx, f.ID, f.AmountEth, f.UserID)
	if err != nil {
		w.metrics.RefundsFailed.Inc()
		log.Error().Err(err).
			Str("refund_id", f.ID.String()).
			Int64("user_id", f.UserID).
			Int("retry_count", f.RetryCount+1).
			Msg("Refund send failed")
		if markErr := w.refunds.MarkFailed(ctx, f.ID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Str("refund_id", f.ID.String()).Msg("Failed to record refund failure")
		}
		return
	}

	if err := w.refunds.MarkSent(ctx, f.ID, txHash); err != nil {
		// The payment went out but the row didn't settle. Surface loudly;
		// the next tick must not resend, and MarkSent's processing guard
		// plus this log are what an operator works from.
		log.Error().Err(err).
			Str("refund_id", f.ID.String()).
			Str("tx_hash", txHash).
			Msg("Refund sent but status update failed")
		return
	}
	w.metrics.RefundsSent.Inc()
	log.Info().
		Str("refund_id", f.ID.String()).
		Int64("user_id", f.UserID).
		Str("amount_eth", f.AmountEth.String()).
		Str("tx_hash", txHash).
		Msg("Refund sent")
}
