/**
 * @description
 * This file defines the account-level domain models for the wallet-service:
 * the account record itself, per-currency balances, and the daily limit and
 * usage counters enforced by the security gate.
 *
 * @notes
 * - All monetary values use shopspring/decimal. Balances are exact fixed-point
 *   decimals and are never represented as floats anywhere in the service.
 * - A balance is a materialized fold over the completed ledger entries for the
 *   same user and currency; the store enforces that it can never go negative.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus enumerates the lifecycle states of a wallet account.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountFrozen AccountStatus = "frozen"
	AccountClosed AccountStatus = "closed"
)

// Account represents a user's wallet account.
type Account struct {
	UserID    uuid.UUID     `json:"user_id"`
	Status    AccountStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// CurrencyBalance is one currency bucket of an account.
type CurrencyBalance struct {
	UserID   uuid.UUID       `json:"user_id"`
	Currency string          `json:"currency_code"`
	Amount   decimal.Decimal `json:"amount"`
}

// OperationType identifies the limited wallet operations for daily-cap
// accounting.
type OperationType string

const (
	OpDeposit    OperationType = "deposit"
	OpWithdrawal OperationType = "withdrawal"
	OpTransfer   OperationType = "transfer"
)

// DailyLimit holds the configured per-operation caps for one currency.
type DailyLimit struct {
	Currency   string          `json:"currency_code"`
	Deposit    decimal.Decimal `json:"deposit"`
	Withdrawal decimal.Decimal `json:"withdrawal"`
	Transfer   decimal.Decimal `json:"transfer"`
}

// ForOperation returns the cap that applies to the given operation.
func (l DailyLimit) ForOperation(op OperationType) decimal.Decimal {
	switch op {
	case OpDeposit:
		return l.Deposit
	case OpWithdrawal:
		return l.Withdrawal
	case OpTransfer:
		return l.Transfer
	}
	return decimal.Zero
}

// DailyUsage tracks rolling 24-hour consumption against a DailyLimit. The
// window restarts whenever the current time has moved past
// WindowStart + 24h; the reset happens lazily on the next check.
type DailyUsage struct {
	UserID      uuid.UUID       `json:"user_id"`
	Currency    string          `json:"currency_code"`
	Operation   OperationType   `json:"operation"`
	Amount      decimal.Decimal `json:"amount"`
	WindowStart time.Time       `json:"window_start"`
}

// WalletSummary is the aggregate view returned by GET /wallet/balance.
type WalletSummary struct {
	Balances    map[string]decimal.Decimal `json:"balances"`
	HasPIN      bool                       `json:"has_pin"`
	IsPINLocked bool                       `json:"is_pin_locked"`
	DailyUsage  []DailyUsage               `json:"daily_usage"`
}
