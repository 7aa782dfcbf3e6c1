/**
 * @description
 * This file sets up the HTTP router for the wallet-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// WalletRoutes creates and returns a new router for the wallet service.
func WalletRoutes(h *WalletHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/balance", h.BalanceHandler)
			r.Get("/transactions", h.TransactionsHandler)
			r.Get("/transactions/{transactionID}", h.TransactionByIDHandler)

			r.Post("/deposit", h.DepositHandler)
			r.Post("/withdraw", h.WithdrawHandler)
			r.Post("/transfer", h.TransferHandler)
			r.Post("/convert", h.ConvertHandler)

			r.Post("/pin", h.SetPINHandler)
			r.Post("/verify-pin", h.VerifyPINHandler)
		})

		r.Route("/credit-score", func(r chi.Router) {
			r.Get("/score", h.CreditScoreHandler)
			r.Get("/factors", h.CreditFactorsHandler)
			r.Get("/history", h.ScoreHistoryHandler)
			r.Get("/eligibility", h.LoanEligibilityHandler)
			r.Post("/recalculate", h.RecalculateScoreHandler)
		})
	})

	return r
}
