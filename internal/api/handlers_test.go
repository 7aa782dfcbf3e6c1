package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jasho/wallet-service/internal/app"
	"github.com/jasho/wallet-service/internal/store"
)

func TestWriteWalletErrorStatusMapping(t *testing.T) {
	h := NewWalletHandlers(nil)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient balance", store.ErrInsufficientBalance, http.StatusBadRequest},
		{"daily limit exceeded", app.ErrDailyLimitExceeded, http.StatusBadRequest},
		{"invalid amount", app.ErrInvalidAmount, http.StatusBadRequest},
		{"unsupported currency", app.ErrUnsupportedCurrency, http.StatusBadRequest},
		{"self transfer", app.ErrInvalidRecipient, http.StatusBadRequest},
		{"same currency conversion", app.ErrSameCurrency, http.StatusBadRequest},
		{"invalid rate", app.ErrInvalidRate, http.StatusBadRequest},
		{"pin not set", store.ErrPINNotSet, http.StatusPreconditionFailed},
		{"pin locked", app.ErrPINLocked, http.StatusLocked},
		{"invalid pin", app.ErrInvalidPIN, http.StatusUnauthorized},
		{"frozen account", app.ErrAccountFrozen, http.StatusForbidden},
		{"rate unavailable", app.ErrRateUnavailable, http.StatusServiceUnavailable},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeWalletError(rec, tt.err)
			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
