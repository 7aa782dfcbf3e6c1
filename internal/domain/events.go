package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionCompletedPayload is published to RabbitMQ after a ledger
// mutation settles. Downstream consumers (notifications, savings goals)
// react to it; the wallet never waits on them.
type TransactionCompletedPayload struct {
	EntryID        uuid.UUID       `json:"entry_id"`
	UserID         uuid.UUID       `json:"user_id"`
	Type           EntryType       `json:"type"`
	Direction      EntryDirection  `json:"direction"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency_code"`
	CounterpartyID *uuid.UUID      `json:"counterparty_user_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// ScoreRecalculatedPayload is published after a credit score recalculation.
type ScoreRecalculatedPayload struct {
	UserID        uuid.UUID `json:"user_id"`
	NewScore      int       `json:"new_score"`
	PreviousScore int       `json:"previous_score"`
	Timestamp     time.Time `json:"timestamp"`
}

// LoanRepaymentEvent is the inbound message shape for loan.repayment.*
// routing keys. The loan book lives outside this service; only repayment
// outcomes flow in, as credit scoring input.
type LoanRepaymentEvent struct {
	EventID    uuid.UUID       `json:"event_id"`
	UserID     uuid.UUID       `json:"user_id"`
	Outcome    string          `json:"outcome"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency_code"`
	OccurredAt time.Time       `json:"occurred_at"`
}
