/**
 * @description
 * This file defines the ledger entry model, the append-only record of every
 * balance-affecting event, together with the API request/response DTOs for
 * the wallet endpoints.
 *
 * @notes
 * - Entries are immutable once written. A reversal never rewrites an entry;
 *   it appends a compensating entry and flips the original's status to
 *   'reversed'.
 * - Amounts are always positive; Direction carries the sign for the balance
 *   fold.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType classifies a ledger entry by the operation that produced it.
type EntryType string

const (
	EntryDeposit    EntryType = "deposit"
	EntryWithdrawal EntryType = "withdrawal"
	EntryTransfer   EntryType = "transfer"
	EntryConvert    EntryType = "convert"
	EntryEarning    EntryType = "earning"
	EntrySaving     EntryType = "saving"
)

// EntryDirection carries the sign of an entry for the balance fold.
type EntryDirection string

const (
	DirectionCredit EntryDirection = "credit"
	DirectionDebit  EntryDirection = "debit"
)

// EntryStatus is the settlement state of a ledger entry.
type EntryStatus string

const (
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
	EntryReversed  EntryStatus = "reversed"
)

// LedgerEntry is the central append-only record for any money movement.
// The two legs of a transfer or conversion share a RelatedEntryID.
type LedgerEntry struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             uuid.UUID       `json:"user_id"`
	Type               EntryType       `json:"type"`
	Direction          EntryDirection  `json:"direction"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency_code"`
	CounterpartyUserID *uuid.UUID      `json:"counterparty_user_id,omitempty"`
	RelatedEntryID     *uuid.UUID      `json:"related_entry_id,omitempty"`
	Reference          *string         `json:"reference,omitempty"`
	Status             EntryStatus     `json:"status"`
	Description        string          `json:"description"`
	CreatedAt          time.Time       `json:"created_at"`
}

// SignedAmount returns the entry amount with the direction applied. Only
// completed entries participate in the balance fold.
func (e LedgerEntry) SignedAmount() decimal.Decimal {
	if e.Direction == DirectionDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// DepositRequest is the DTO for POST /wallet/deposit.
type DepositRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency_code"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
}

// WithdrawRequest is the DTO for POST /wallet/withdraw.
type WithdrawRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency_code"`
	Description string          `json:"description"`
	PIN         string          `json:"pin"`
	Reference   string          `json:"reference,omitempty"`
}

// TransferRequest is the DTO for POST /wallet/transfer.
type TransferRequest struct {
	RecipientUserID uuid.UUID       `json:"recipient_user_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency_code"`
	Description     string          `json:"description"`
	PIN             string          `json:"pin"`
	Reference       string          `json:"reference,omitempty"`
}

// ConvertRequest is the DTO for POST /wallet/convert. Rate is the
// to-currency-per-from-currency quote; when zero the service asks the FX
// rates provider.
type ConvertRequest struct {
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Amount       decimal.Decimal `json:"amount"`
	Rate         decimal.Decimal `json:"rate"`
	PIN          string          `json:"pin"`
	Reference    string          `json:"reference,omitempty"`
}

// SetPINRequest is the DTO for POST /wallet/pin.
type SetPINRequest struct {
	PIN string `json:"pin"`
}

// VerifyPINRequest is the DTO for POST /wallet/verify-pin.
type VerifyPINRequest struct {
	PIN string `json:"pin"`
}

// TransactionListOptions controls pagination and filtering for
// GET /wallet/transactions.
type TransactionListOptions struct {
	Limit    int
	Offset   int
	Currency string
	Type     string
}
