// Package handler exposes the HTTP API. Callers are authenticated upstream;
// the gateway forwards the authenticated user id in the X-User-ID header.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"wordpot/internal/config"
	"wordpot/internal/repository"
	"wordpot/internal/service"
)

// Handler wires the HTTP routes to the services.
type Handler struct {
	cfg     *config.Config
	pool    *pgxpool.Pool
	guesses *service.GuessService
	rounds  *service.RoundService
	quotas  *service.QuotaService

	guessRepo    *repository.GuessRepository
	payoutRepo   *repository.PayoutRepository
	refundRepo   *repository.RefundRepository
	eventRepo    *repository.EventRepository
	referralRepo *repository.ReferralRepository

	registry prometheus.Gatherer
}

// New creates a new Handler instance.
func New(
	cfg *config.Config,
	pool *pgxpool.Pool,
	guesses *service.GuessService,
	rounds *service.RoundService,
	quotas *service.QuotaService,
	guessRepo *repository.GuessRepository,
	payoutRepo *repository.PayoutRepository,
	refundRepo *repository.RefundRepository,
	eventRepo *repository.EventRepository,
	referralRepo *repository.ReferralRepository,
	registry prometheus.Gatherer,
) *Handler {
	return &Handler{
		cfg:          cfg,
		pool:         pool,
		guesses:      guesses,
		rounds:       rounds,
		quotas:       quotas,
		guessRepo:    guessRepo,
		payoutRepo:   payoutRepo,
		refundRepo:   refundRepo,
		eventRepo:    eventRepo,
		referralRepo: referralRepo,
		registry:     registry,
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/guess", h.SubmitGuess)
		r.Post("/packs/purchase", h.PurchasePack)
		r.Post("/share-bonus", h.ShareBonus)
		r.Post("/referral", h.SetReferral)
		r.Get("/quota", h.GetQuota)

		r.Get("/round/current", h.CurrentRound)
		r.Get("/round/current/wheel", h.Wheel)
		r.Get("/round/closed", h.ClosedRounds)
		r.Get("/round/{roundID}", h.GetRound)
		r.Get("/round/{roundID}/top-guessers", h.TopGuessers)
		r.Get("/stats", h.Stats)

		r.Post("/admin/round/cancel", h.CancelRound)
		r.Get("/admin/round/{roundID}/refunds", h.RoundRefunds)
	})
	return r
}

// Health is the liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userID extracts the authenticated user id forwarded by the gateway.
func userID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondServiceError maps domain errors to HTTP statuses. Anything
// unmapped is an internal error and is logged rather than leaked.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNoActiveRound),
		errors.Is(err, repository.ErrRoundNotFound),
		errors.Is(err, repository.ErrRefundNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrRoundStillActive),
		errors.Is(err, service.ErrRoundAlreadyClosed),
		errors.Is(err, service.ErrDailyPackLimit),
		errors.Is(err, service.ErrShareNotAllowed),
		errors.Is(err, repository.ErrSelfReferral):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrBadPackCount),
		errors.Is(err, service.ErrNoActiveRoundForSale):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
