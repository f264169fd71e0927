// Package metrics exposes prometheus counters for the settlement core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the counters the services increment.
type Metrics struct {
	GuessesTotal    *prometheus.CounterVec
	RoundsResolved  prometheus.Counter
	RoundsCancelled prometheus.Counter
	RoundsStarted   prometheus.Counter
	PacksPurchased  prometheus.Counter
	RefundsSent     prometheus.Counter
	RefundsFailed   prometheus.Counter
}

// New registers the settlement counters on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		GuessesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wordpot_guesses_total",
			Help: "Guess submissions by outcome status.",
		}, []string{"status"}),
		RoundsResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "wordpot_rounds_resolved_total",
			Help: "Rounds resolved with a winner.",
		}),
		RoundsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "wordpot_rounds_cancelled_total",
			Help: "Rounds cancelled by an admin.",
		}),
		RoundsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "wordpot_rounds_started_total",
			Help: "Rounds started.",
		}),
		PacksPurchased: factory.NewCounter(prometheus.CounterOpts{
			Name: "wordpot_packs_purchased_total",
			Help: "Guess packs purchased.",
		}),
		RefundsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "wordpot_refunds_sent_total",
			Help: "Refunds successfully sent.",
		}),
		RefundsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "wordpot_refunds_failed_total",
			Help: "Refund send attempts that failed.",
		}),
	}
}
