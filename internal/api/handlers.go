/**
 * @description
 * This file contains the HTTP handlers for the wallet endpoints. Handlers are
 * responsible for parsing incoming requests, calling the appropriate methods
 * on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jasho/wallet-service/internal/app"
	"github.com/jasho/wallet-service/internal/domain"
	"github.com/jasho/wallet-service/internal/store"
)

// Rate limit scopes consumed by the handlers. The limits themselves live in
// config and are enforced by the service's Redis limiter.
const (
	RateLimitScopeVerifyPIN = "verify_pin"
	RateLimitScopeTransfer  = "transfer"
)

// WalletHandlers holds the application service that handlers will use.
type WalletHandlers struct {
	service *app.Service
}

// NewWalletHandlers creates a new instance of WalletHandlers.
func NewWalletHandlers(service *app.Service) *WalletHandlers {
	return &WalletHandlers{service: service}
}

// entryResponse is the response shape for a single settled entry, including
// the balance the entry's currency bucket ended at.
type entryResponse struct {
	Entry      *domain.LedgerEntry `json:"transaction"`
	NewBalance decimal.Decimal     `json:"new_balance"`
	Message    string              `json:"message"`
}

// newBalance fetches the post-mutation balance for a response. A lookup
// failure degrades to zero rather than failing an already-applied mutation.
func (h *WalletHandlers) newBalance(r *http.Request, userID uuid.UUID, currency string) decimal.Decimal {
	balance, err := h.service.Balance(r.Context(), userID, currency)
	if err != nil {
		log.Printf("level=warn component=api msg=\"post-mutation balance lookup failed\" user_id=%s currency=%s err=%v", userID, currency, err)
		return decimal.Zero
	}
	return balance
}

// DepositHandler handles POST /wallet/deposit.
func (h *WalletHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	var req domain.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=deposit outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	entry, err := h.service.Deposit(r.Context(), userID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=deposit outcome=failed user_id=%s err=%v", userID, err)
		h.writeWalletError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=deposit outcome=accepted user_id=%s amount=%s currency=%s", userID, req.Amount, entry.Currency)
	h.writeJSON(w, http.StatusCreated, entryResponse{
		Entry:      entry,
		NewBalance: h.newBalance(r, userID, entry.Currency),
		Message:    "Deposit completed",
	})
}

// WithdrawHandler handles POST /wallet/withdraw.
func (h *WalletHandlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	var req domain.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=withdraw outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	entry, err := h.service.Withdraw(r.Context(), userID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=withdraw outcome=failed user_id=%s err=%v", userID, err)
		h.writeWalletError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=withdraw outcome=accepted user_id=%s amount=%s currency=%s", userID, req.Amount, entry.Currency)
	h.writeJSON(w, http.StatusCreated, entryResponse{
		Entry:      entry,
		NewBalance: h.newBalance(r, userID, entry.Currency),
		Message:    "Withdrawal completed",
	})
}

// TransferHandler handles POST /wallet/transfer.
func (h *WalletHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}
	if !h.consumeRateLimit(w, r, RateLimitScopeTransfer, userID) {
		return
	}

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.Transfer(r.Context(), userID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=failed sender_id=%s err=%v", userID, err)
		h.writeWalletError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=transfer outcome=accepted sender_id=%s recipient_id=%s amount=%s currency=%s",
		userID, req.RecipientUserID, req.Amount, result.DebitEntry.Currency)
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"transaction": result.DebitEntry,
		"new_balance": h.newBalance(r, userID, result.DebitEntry.Currency),
		"message":     "Transfer completed",
	})
}

// ConvertHandler handles POST /wallet/convert.
func (h *WalletHandlers) ConvertHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	var req domain.ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=convert outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.Convert(r.Context(), userID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=convert outcome=failed user_id=%s err=%v", userID, err)
		h.writeWalletError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=convert outcome=accepted user_id=%s from=%s to=%s amount=%s rate=%s",
		userID, result.DebitEntry.Currency, result.CreditEntry.Currency, req.Amount, result.Rate)
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"transaction":      result.DebitEntry,
		"converted_amount": result.ConvertedAmount,
		"rate":             result.Rate,
		"new_balance":      h.newBalance(r, userID, result.DebitEntry.Currency),
		"message":          "Conversion completed",
	})
}

// SetPINHandler handles POST /wallet/pin.
func (h *WalletHandlers) SetPINHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	var req domain.SetPINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.SetPIN(r.Context(), userID, req.PIN); err != nil {
		if errors.Is(err, app.ErrMalformedPIN) {
			h.writeError(w, http.StatusBadRequest, "PIN must be 4 to 6 digits")
			return
		}
		log.Printf("level=error component=api endpoint=set_pin outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to set PIN")
		return
	}

	log.Printf("level=info component=api endpoint=set_pin outcome=accepted user_id=%s", userID)
	h.writeJSON(w, http.StatusOK, map[string]bool{"has_pin": true})
}

// VerifyPINHandler handles POST /wallet/verify-pin. Clients use it to
// pre-validate a PIN before starting a spend flow.
func (h *WalletHandlers) VerifyPINHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}
	if !h.consumeRateLimit(w, r, RateLimitScopeVerifyPIN, userID) {
		return
	}

	var req domain.VerifyPINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	verification, err := h.service.VerifyPIN(r.Context(), userID, req.PIN)
	if err != nil {
		if errors.Is(err, store.ErrPINNotSet) {
			h.writeError(w, http.StatusPreconditionFailed, "Transaction PIN is not set. Please create your PIN first.")
			return
		}
		if errors.Is(err, app.ErrPINLocked) {
			h.writeJSON(w, http.StatusLocked, verification)
			return
		}
		if errors.Is(err, app.ErrInvalidPIN) {
			h.writeJSON(w, http.StatusUnauthorized, verification)
			return
		}
		log.Printf("level=error component=api endpoint=verify_pin outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to verify PIN")
		return
	}

	h.writeJSON(w, http.StatusOK, verification)
}

// BalanceHandler handles GET /wallet/balance, returning the aggregate wallet
// summary, or a single currency's balance when ?currency= is given.
func (h *WalletHandlers) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	if currency := r.URL.Query().Get("currency"); currency != "" {
		balance, err := h.service.Balance(r.Context(), userID, currency)
		if err != nil {
			h.writeWalletError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"currency_code": currency, "amount": balance})
		return
	}

	summary, err := h.service.WalletSummary(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=balance outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// TransactionsHandler handles GET /wallet/transactions with limit/offset
// pagination and optional currency/type filters.
func (h *WalletHandlers) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	opts := domain.TransactionListOptions{
		Limit:    parseIntQuery(r, "limit", 50),
		Offset:   parseIntQuery(r, "offset", 0),
		Currency: r.URL.Query().Get("currency"),
		Type:     r.URL.Query().Get("type"),
	}
	if opts.Limit < 1 || opts.Limit > 200 {
		opts.Limit = 50
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	entries, err := h.service.Transactions(r.Context(), userID, opts)
	if err != nil {
		log.Printf("level=error component=api endpoint=transactions outcome=failed user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": entries,
		"limit":        opts.Limit,
		"offset":       opts.Offset,
	})
}

// TransactionByIDHandler handles GET /wallet/transactions/{transactionID}.
func (h *WalletHandlers) TransactionByIDHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUserID(w, r)
	if !ok {
		return
	}

	entryID, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction ID format")
		return
	}

	entry, err := h.service.TransactionByID(r.Context(), userID, entryID)
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			h.writeError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_transaction_by_id outcome=failed entry_id=%s user_id=%s err=%v", entryID, userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, entry)
}

// authedUserID pulls the authenticated UUID out of the request context.
func (h *WalletHandlers) authedUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return uuid.Nil, false
	}
	return userID, true
}

// consumeRateLimit applies the Redis window for the scope and writes a 429
// with Retry-After when exhausted.
func (h *WalletHandlers) consumeRateLimit(w http.ResponseWriter, r *http.Request, scope string, userID uuid.UUID) bool {
	retryAfter, err := h.service.ConsumeRateLimit(r.Context(), scope, userID.String())
	if errors.Is(err, app.ErrRateLimited) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many requests. Please wait and try again.")
		return false
	}
	return true
}

// writeWalletError maps the service's sentinel errors onto HTTP statuses.
func (h *WalletHandlers) writeWalletError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInsufficientBalance):
		h.writeError(w, http.StatusBadRequest, "Insufficient balance")
	case errors.Is(err, store.ErrPINNotSet):
		h.writeError(w, http.StatusPreconditionFailed, "Transaction PIN is not set. Please create your PIN first.")
	case errors.Is(err, app.ErrPINLocked):
		h.writeError(w, http.StatusLocked, "Too many incorrect PIN attempts. Please wait and try again.")
	case errors.Is(err, app.ErrInvalidPIN):
		h.writeError(w, http.StatusUnauthorized, "Invalid transaction PIN.")
	case errors.Is(err, app.ErrDailyLimitExceeded):
		h.writeError(w, http.StatusBadRequest, "Daily limit exceeded")
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrUnsupportedCurrency),
		errors.Is(err, app.ErrInvalidRecipient),
		errors.Is(err, app.ErrSameCurrency),
		errors.Is(err, app.ErrInvalidRate):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrAccountFrozen):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrRateUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "Exchange rate unavailable. Please try again.")
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func parseIntQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// writeJSON is a helper for writing JSON responses.
func (h *WalletHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *WalletHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
