package handler

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wordpot/internal/model"
	"wordpot/internal/ruleset"
)

// roundView is the public projection of a round. The answer and salt are
// only filled in once the round is closed; while it is active nothing that
// could identify the answer leaves the backend.
type roundView struct {
	ID          uuid.UUID       `json:"id"`
	Status      string          `json:"status"`
	CommitHash  string          `json:"commitHash"`
	PrizePool   decimal.Decimal `json:"prizePool"`
	GuessCount  int64           `json:"guessCount"`
	WheelWords  []string        `json:"wheelWords"`
	PackPrice   decimal.Decimal `json:"packPrice"`
	StartedAt   time.Time       `json:"startedAt"`
	WinnerID    *int64          `json:"winnerUserId,omitempty"`
	ResolvedAt  *time.Time      `json:"resolvedAt,omitempty"`
	CancelledAt *time.Time      `json:"cancelledAt,omitempty"`
	AnswerWord  string          `json:"answerWord,omitempty"`
	Salt        string          `json:"salt,omitempty"`
}

func newRoundView(round *model.Round) (*roundView, error) {
	rules, err := ruleset.Unmarshal(round.RulesetJSON)
	if err != nil {
		return nil, err
	}
	v := &roundView{
		ID:          round.ID,
		Status:      round.Status,
		CommitHash:  round.CommitHash,
		PrizePool:   round.PrizePool,
		GuessCount:  round.GuessCount,
		WheelWords:  round.WheelWords,
		PackPrice:   rules.PackPrice(round.GuessCount),
		StartedAt:   round.StartedAt,
		WinnerID:    round.WinnerUserID,
		ResolvedAt:  round.ResolvedAt,
		CancelledAt: round.CancelledAt,
	}
	if round.Closed() {
		v.AnswerWord = round.AnswerWord
		v.Salt = round.Salt
	}
	return v, nil
}

// CurrentRound returns the active round's public state.
func (h *Handler) CurrentRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.rounds.CurrentRound(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	view, err := newRoundView(round)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// wheelWordLimit caps how many wrong guesses join the decoys on the wheel.
const wheelWordLimit = 256

// Wheel returns the public word wheel for the active round: the round's
// decoys merged with every wrong guess so far, sorted and then rotated by
// the caller's daily offset. The answer is never in the set, and the merge
// makes decoys indistinguishable from real wrong guesses.
func (h *Handler) Wheel(w http.ResponseWriter, r *http.Request) {
	round, err := h.rounds.CurrentRound(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	wrong, err := h.guessRepo.WrongWords(r.Context(), round.ID, wheelWordLimit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	seen := make(map[string]struct{}, len(round.WheelWords)+len(wrong))
	words := make([]string, 0, len(round.WheelWords)+len(wrong))
	for _, word := range append(append([]string{}, round.WheelWords...), wrong...) {
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		words = append(words, word)
	}
	sort.Strings(words)

	offset := 0
	if uid, ok := userID(r); ok {
		offset, err = h.quotas.WheelStartIndex(r.Context(), uid)
		if err != nil {
			respondServiceError(w, err)
			return
		}
	}
	if len(words) > 0 {
		offset %= len(words)
		words = append(words[offset:], words[:offset]...)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"roundId": round.ID,
		"words":   words,
	})
}

// GetRound returns any round; closed rounds include the reveal.
func (h *Handler) GetRound(w http.ResponseWriter, r *http.Request) {
	roundID, err := uuid.Parse(chi.URLParam(r, "roundID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	round, err := h.rounds.GetRound(r.Context(), roundID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	view, err := newRoundView(round)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// ClosedRounds returns the archive, newest first.
func (h *Handler) ClosedRounds(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			respondError(w, http.StatusBadRequest, "limit must be 1-100")
			return
		}
		limit = n
	}
	rounds, err := h.rounds.ListClosedRounds(r.Context(), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	views := make([]*roundView, 0, len(rounds))
	for _, round := range rounds {
		view, err := newRoundView(round)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		views = append(views, view)
	}
	respondJSON(w, http.StatusOK, views)
}

// TopGuessers returns a closed round's rank-payout results alongside the
// eligibility list.
func (h *Handler) TopGuessers(w http.ResponseWriter, r *http.Request) {
	roundID, err := uuid.Parse(chi.URLParam(r, "roundID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	round, err := h.rounds.GetRound(r.Context(), roundID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	rules, err := ruleset.Unmarshal(round.RulesetJSON)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	ranked, err := h.guessRepo.TopGuessers(r.Context(), h.pool, roundID, rules.TopK)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	payouts, err := h.payoutRepo.ListByRound(r.Context(), roundID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"roundId":     roundID,
		"topGuessers": ranked,
		"payouts":     payouts,
	})
}

// Stats aggregates the settlement fact log.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.eventRepo.CountByType(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": counts})
}

// RoundRefunds lets admins watch a cancelled round's refund queue drain.
func (h *Handler) RoundRefunds(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing or invalid X-User-ID")
		return
	}
	if !h.cfg.IsAdmin(uid) {
		respondError(w, http.StatusForbidden, "admin only")
		return
	}
	roundID, err := uuid.Parse(chi.URLParam(r, "roundID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	refunds, err := h.refundRepo.ListByRound(r.Context(), roundID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, refunds)
}

type cancelRequest struct {
	RoundID uuid.UUID `json:"roundId"`
	Reason  string    `json:"reason"`
}

// CancelRound is the admin kill switch: close the round and queue refunds.
func (h *Handler) CancelRound(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing or invalid X-User-ID")
		return
	}
	if !h.cfg.IsAdmin(uid) {
		respondError(w, http.StatusForbidden, "admin only")
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoundID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	queued, err := h.rounds.CancelRound(r.Context(), req.RoundID, uid, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"roundId":       req.RoundID,
		"refundsQueued": queued,
	})
}
