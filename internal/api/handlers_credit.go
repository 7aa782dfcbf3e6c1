/**
 * @description
 * This file contains the HTTP handlers for the credit-score endpoints:
 * profile reads, on-demand recalculation, the factor breakdown, score
 * history, and loan eligibility evaluation.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries.
 * - github.com/shopspring/decimal: Exact loan amounts.
 * - internal/app, internal/domain, internal/store.
 */

package api

import (
	"log"
	"net/http"

	"github.com/shopspring/decimal"
)

// CreditScoreHandler handles GET /credit-score/score, returning the full profile.
func (h *WalletHandlers) CreditScoreHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	profile, err := h.service.CreditProfile(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=credit_score outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, profile)
}

// RecalculateScoreHandler handles POST /credit-score/recalculate.
func (h *WalletHandlers) RecalculateScoreHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	result, err := h.service.RecalculateScore(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=recalculate_score outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to recalculate score")
		return
	}

	log.Printf("level=info component=api endpoint=recalculate_score outcome=accepted user_id=%s new_score=%d change=%d", userID, result.NewScore, result.Change)
	h.writeJSON(w, http.StatusOK, result)
}

// CreditFactorsHandler handles GET /credit-score/factors, exposing the live
// normalized factor breakdown that feeds the score.
func (h *WalletHandlers) CreditFactorsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	factors, err := h.service.CreditFactors(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=credit_factors outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, factors)
}

// ScoreHistoryHandler handles GET /credit-score/history.
func (h *WalletHandlers) ScoreHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	limit := parseIntQuery(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	history, err := h.service.ScoreHistory(r.Context(), userID, limit)
	if err != nil {
		log.Printf("level=error component=api endpoint=score_history outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

// LoanEligibilityHandler handles GET /credit-score/eligibility, evaluating a
// concrete loan amount and term (query parameters amount and termMonths)
// against the user's current score envelope.
func (h *WalletHandlers) LoanEligibilityHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil || !amount.IsPositive() {
		h.writeError(w, http.StatusBadRequest, "amount must be a positive decimal")
		return
	}
	termMonths := parseIntQuery(r, "termMonths", 0)
	if termMonths <= 0 {
		termMonths = parseIntQuery(r, "term_months", 0)
	}
	if termMonths <= 0 {
		h.writeError(w, http.StatusBadRequest, "termMonths must be greater than zero")
		return
	}

	result, err := h.service.LoanEligibility(r.Context(), userID, amount, termMonths)
	if err != nil {
		log.Printf("level=error component=api endpoint=loan_eligibility outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}
