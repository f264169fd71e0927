package handler

import (
	"encoding/json"
	"net/http"
	"time"
)

type guessRequest struct {
	Word string `json:"word"`
}

// SubmitGuess settles one guess for the calling user. Game outcomes come
// back as 200 with a status field; only transport and identity problems are
// HTTP errors.
func (h *Handler) SubmitGuess(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing or invalid X-User-ID")
		return
	}
	var req guessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.guesses.SubmitGuess(r.Context(), uid, req.Word)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type purchaseRequest struct {
	PackCount int `json:"packCount"`
}

// PurchasePack buys guess packs at the current ramp price.
func (h *Handler) PurchasePack(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing or invalid X-User-ID")
		return
	}
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	purchase, err := h.quotas.PurchasePack(r.Context(), uid, req.PackCount)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"purchaseId":     purchase.ID,
		"packCount":      purchase.PackCount,
		"creditsGranted": purchase.CreditsGranted,
		"pricePerPack":   purchase.PricePerPack,
		"totalPriceEth":  purchase.TotalPriceEth,
	})
}

// ShareBonus grants the once-per-day share bonus guess.
func (h *Handler) ShareBonus(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing or invalid X-User-ID")
		return
	}
	if err := h.quotas.GrantShareBonus(r.Context(), uid); err != nil {
		respondServiceError(w, err)
		return
	}
	summary, err := h.quotas.GetQuotaSummary(r.Context(), uid)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

type referralRequest struct {
	ReferrerUserID int64 `json:"referrerUserId"`
}

// SetReferral records who referred the calling user. First write wins.
func (h *Handler) SetReferral(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing or invalid X-User-ID")
		return
	}
	var req referralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReferrerUserID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	recorded, err := h.referralRepo.Set(r.Context(), uid, req.ReferrerUserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"recorded": recorded})
}

// GetQuota returns the calling user's remaining guess budget for today,
// plus the committed-guess count the ledger is audited against.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing or invalid X-User-ID")
		return
	}
	summary, err := h.quotas.GetQuotaSummary(r.Context(), uid)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	guessesToday, err := h.guessRepo.CountByUserOnDate(r.Context(), uid, time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"quota":        summary,
		"guessesToday": guessesToday,
	})
}
