package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jasho/wallet-service/internal/domain"
)

// LoanRepaymentConsumer ingests loan.repayment.* events from the loan book
// and records them for credit scoring. After a recorded outcome the user's
// score is recalculated immediately so the payment-history factor moves
// without waiting for the periodic refresh.
type LoanRepaymentConsumer struct {
	credit *CreditEngine
}

func NewLoanRepaymentConsumer(credit *CreditEngine) *LoanRepaymentConsumer {
	return &LoanRepaymentConsumer{credit: credit}
}

// HandleMessage processes one delivery. Returning false re-queues it;
// malformed payloads are acknowledged and dropped since a retry cannot fix
// them.
func (c *LoanRepaymentConsumer) HandleMessage(body []byte) bool {
	var event domain.LoanRepaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("loan-consumer: failed to unmarshal payload: %v", err)
		return true
	}

	if event.UserID == uuid.Nil {
		log.Printf("loan-consumer: missing user id in event %+v", event)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, event); err != nil {
		log.Printf("loan-consumer: processing error for event %s: %v", event.EventID, err)
		return false
	}

	return true
}

func (c *LoanRepaymentConsumer) processEvent(ctx context.Context, event domain.LoanRepaymentEvent) error {
	outcome, ok := normalizeOutcome(event.Outcome)
	if !ok {
		log.Printf("loan-consumer: unknown outcome %q for event %s; acknowledging", event.Outcome, event.EventID)
		return nil
	}

	id := event.EventID
	if id == uuid.Nil {
		id = uuid.New()
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	loanEvent := &domain.LoanEvent{
		ID:         id,
		UserID:     event.UserID,
		Outcome:    outcome,
		Amount:     event.Amount,
		Currency:   strings.ToUpper(strings.TrimSpace(event.Currency)),
		OccurredAt: occurredAt,
	}
	if err := c.credit.RecordLoanEvent(ctx, loanEvent); err != nil {
		return fmt.Errorf("record loan event: %w", err)
	}

	if _, err := c.credit.Recalculate(ctx, event.UserID); err != nil {
		// The event is stored; the periodic refresh will pick the score up.
		log.Printf("loan-consumer: recalculation warning for user %s: %v", event.UserID, err)
	}
	return nil
}

func normalizeOutcome(raw string) (domain.LoanRepaymentOutcome, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on_time", "ontime", "paid":
		return domain.RepaymentOnTime, true
	case "late":
		return domain.RepaymentLate, true
	case "missed", "default", "defaulted":
		return domain.RepaymentMissed, true
	}
	return "", false
}
