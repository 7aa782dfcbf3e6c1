/**
 * @description
 * This file defines the credit scoring domain models: the derived per-user
 * credit profile, the five weighted factors, the loan repayment events that
 * feed the payment-history factor, and the loan eligibility DTOs.
 *
 * @notes
 * - The credit engine only reads ledger state; it owns everything in this
 *   file and nothing else.
 * - Scores are bounded integers in [300, 850]. Each recalculation appends to
 *   ScoreHistory; prior snapshots are never rewritten.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ScoreSnapshot is one point in a user's score history.
type ScoreSnapshot struct {
	Score        int       `json:"score"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// FinancialProfile is the monthly income/expense snapshot taken at the last
// recalculation.
type FinancialProfile struct {
	MonthlyIncome  decimal.Decimal `json:"monthly_income"`
	MonthlyExpense decimal.Decimal `json:"monthly_expense"`
	SavingsRate    decimal.Decimal `json:"savings_rate"`
}

// PaymentPatterns aggregates loan repayment behaviour.
type PaymentPatterns struct {
	OnTimePayments int `json:"on_time_payments"`
	LatePayments   int `json:"late_payments"`
	MissedPayments int `json:"missed_payments"`
}

// EligibilityProfile is the derived loan-offer envelope for a score.
type EligibilityProfile struct {
	MaxLoanAmount decimal.Decimal `json:"max_loan_amount"`
	InterestRate  decimal.Decimal `json:"interest_rate"` // annual, percent
	MaxTermMonths int             `json:"max_term_months"`
}

// CreditProfile is the per-user derived scoring state.
type CreditProfile struct {
	UserID             uuid.UUID          `json:"user_id"`
	CurrentScore       int                `json:"current_score"`
	ScoreHistory       []ScoreSnapshot    `json:"score_history"`
	FinancialProfile   FinancialProfile   `json:"financial_profile"`
	PaymentPatterns    PaymentPatterns    `json:"payment_patterns"`
	EligibilityProfile EligibilityProfile `json:"eligibility_profile"`
	StaleAt            *time.Time         `json:"stale_at,omitempty"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// CreditFactors is the normalized 0-100 value of each weighted factor that
// feeds the final score.
type CreditFactors struct {
	PaymentHistory float64 `json:"payment_history"` // weight 0.35
	Utilization    float64 `json:"utilization"`     // weight 0.30
	HistoryLength  float64 `json:"history_length"`  // weight 0.15
	NewCredit      float64 `json:"new_credit"`      // weight 0.10
	CreditMix      float64 `json:"credit_mix"`      // weight 0.10
}

// LoanRepaymentOutcome classifies a single loan repayment event.
type LoanRepaymentOutcome string

const (
	RepaymentOnTime LoanRepaymentOutcome = "on_time"
	RepaymentLate   LoanRepaymentOutcome = "late"
	RepaymentMissed LoanRepaymentOutcome = "missed"
)

// LoanEvent is one externally sourced loan repayment record.
type LoanEvent struct {
	ID         uuid.UUID            `json:"id"`
	UserID     uuid.UUID            `json:"user_id"`
	Outcome    LoanRepaymentOutcome `json:"outcome"`
	Amount     decimal.Decimal      `json:"amount"`
	Currency   string               `json:"currency_code"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// LoanEligibilityResult is the response for GET /credit-score/eligibility.
// Reasons holds the rejection conditions and is empty when the request is
// eligible.
type LoanEligibilityResult struct {
	Eligible       bool            `json:"eligible"`
	MaxAmount      decimal.Decimal `json:"max_amount"`
	InterestRate   decimal.Decimal `json:"interest_rate"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	Reasons        []string        `json:"conditions,omitempty"`
}

// RecalculateResult is the response for POST /credit-score/recalculate.
type RecalculateResult struct {
	NewScore      int `json:"new_score"`
	PreviousScore int `json:"previous_score"`
	Change        int `json:"change"`
}
