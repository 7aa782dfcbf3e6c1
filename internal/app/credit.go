/**
 * @description
 * This file contains the credit scoring engine. It derives a bounded score
 * from the user's ledger history plus externally sourced loan repayment
 * events, through a pure pipeline: snapshot → factors → weighted blend →
 * clamp. The engine owns the credit profile and only ever reads ledger
 * state.
 *
 * Factor weights follow the classic model: payment history 35%, utilization
 * 30%, history length 15%, new credit 10%, credit mix 10%. Each factor is
 * normalized to 0-100 before weighting; the blend maps onto the 300-850
 * band.
 *
 * @dependencies
 * - context, errors, math, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Monetary aggregates.
 * - internal/domain, internal/store, pkg/rabbitmq.
 */

package app

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jasho/wallet-service/internal/domain"
	"github.com/jasho/wallet-service/internal/store"
	"github.com/jasho/wallet-service/pkg/rabbitmq"
	"github.com/shopspring/decimal"
)

const (
	scoreFloor = 300
	scoreCeil  = 850

	// Trailing ledger window feeding utilization and credit-mix factors.
	scoringWindowDays = 90
)

// Factor weights. They must sum to 1.
const (
	weightPaymentHistory = 0.35
	weightUtilization    = 0.30
	weightHistoryLength  = 0.15
	weightNewCredit      = 0.10
	weightCreditMix      = 0.10
)

// Loan eligibility rejection reasons, surfaced verbatim in API responses.
const (
	ReasonScoreTooLow      = "score_too_low"
	ReasonAmountExceedsMax = "amount_exceeds_max"
	ReasonTermExceedsMax   = "term_exceeds_max"
)

// CreditEngine computes and stores credit profiles.
type CreditEngine struct {
	repo             store.Repository
	producer         rabbitmq.Publisher
	minEligibleScore int
	now              func() time.Time
}

// NewCreditEngine creates the scoring engine. minEligibleScore gates loan
// offers entirely; below it every request is rejected.
func NewCreditEngine(repo store.Repository, producer rabbitmq.Publisher, minEligibleScore int) *CreditEngine {
	if minEligibleScore <= 0 {
		minEligibleScore = 600
	}
	return &CreditEngine{
		repo:             repo,
		producer:         producer,
		minEligibleScore: minEligibleScore,
		now:              time.Now,
	}
}

// scoringSnapshot is the fixed input set for one recalculation. Given the
// same snapshot the pipeline always produces the same score.
type scoringSnapshot struct {
	entries    []domain.LedgerEntry
	loans      []domain.LoanEvent
	accountAge time.Duration
	takenAt    time.Time
}

// Profile returns the user's credit profile, creating one at the floor score
// on first access.
func (e *CreditEngine) Profile(ctx context.Context, userID uuid.UUID) (*domain.CreditProfile, error) {
	profile, err := e.repo.GetCreditProfile(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, store.ErrCreditProfileNotFound) {
		return nil, err
	}

	now := e.now().UTC()
	profile = &domain.CreditProfile{
		UserID:             userID,
		CurrentScore:       scoreFloor,
		ScoreHistory:       []domain.ScoreSnapshot{{Score: scoreFloor, CalculatedAt: now}},
		EligibilityProfile: eligibilityProfileForScore(scoreFloor, decimal.Zero),
		UpdatedAt:          now,
	}
	if err := e.repo.SaveCreditProfile(ctx, profile, domain.ScoreSnapshot{Score: scoreFloor, CalculatedAt: now}); err != nil {
		return nil, err
	}
	return profile, nil
}

// Recalculate recomputes the user's score from a fresh snapshot and appends
// the result to the score history. It never deletes prior snapshots.
func (e *CreditEngine) Recalculate(ctx context.Context, userID uuid.UUID) (*domain.RecalculateResult, error) {
	previous, err := e.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot, err := e.gather(ctx, userID)
	if err != nil {
		// Input source unavailable: keep serving the stale score, marked as
		// such, rather than failing the profile entirely.
		staleAt := e.now().UTC()
		if markErr := e.repo.MarkCreditProfileStale(ctx, userID, staleAt); markErr != nil {
			log.Printf("level=error component=credit msg=\"stale marker persist failed\" user_id=%s err=%v", userID, markErr)
		}
		log.Printf("level=warn component=credit msg=\"snapshot gather failed; score marked stale\" user_id=%s err=%v", userID, err)
		return nil, err
	}

	factors := computeFactors(snapshot)
	newScore := blendScore(factors)
	now := snapshot.takenAt

	profile := &domain.CreditProfile{
		UserID:           userID,
		CurrentScore:     newScore,
		FinancialProfile: financialProfile(snapshot),
		PaymentPatterns:  paymentPatterns(snapshot.loans),
		UpdatedAt:        now,
	}
	profile.EligibilityProfile = eligibilityProfileForScore(newScore, profile.FinancialProfile.MonthlyIncome)

	if err := e.repo.SaveCreditProfile(ctx, profile, domain.ScoreSnapshot{Score: newScore, CalculatedAt: now}); err != nil {
		return nil, err
	}

	if e.producer != nil {
		payload := domain.ScoreRecalculatedPayload{
			UserID:        userID,
			NewScore:      newScore,
			PreviousScore: previous.CurrentScore,
			Timestamp:     now,
		}
		if err := e.producer.Publish(ctx, eventsExchange, "credit.score.recalculated", payload); err != nil {
			log.Printf("level=warn component=credit msg=\"score event publish failed\" user_id=%s err=%v", userID, err)
		}
	}

	return &domain.RecalculateResult{
		NewScore:      newScore,
		PreviousScore: previous.CurrentScore,
		Change:        newScore - previous.CurrentScore,
	}, nil
}

// Factors exposes the normalized factor breakdown for the API.
func (e *CreditEngine) Factors(ctx context.Context, userID uuid.UUID) (*domain.CreditFactors, error) {
	snapshot, err := e.gather(ctx, userID)
	if err != nil {
		return nil, err
	}
	factors := computeFactors(snapshot)
	return &factors, nil
}

// RecordLoanEvent stores one repayment outcome for future recalculations.
func (e *CreditEngine) RecordLoanEvent(ctx context.Context, event *domain.LoanEvent) error {
	return e.repo.InsertLoanEvent(ctx, event)
}

// EvaluateLoanEligibility applies the score gate and the offer envelope to a
// concrete amount and term.
func (e *CreditEngine) EvaluateLoanEligibility(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, termMonths int) (*domain.LoanEligibilityResult, error) {
	profile, err := e.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := evaluateEligibility(profile.CurrentScore, profile.EligibilityProfile, amount, termMonths, e.minEligibleScore)
	return result, nil
}

func (e *CreditEngine) gather(ctx context.Context, userID uuid.UUID) (*scoringSnapshot, error) {
	now := e.now().UTC()
	since := now.AddDate(0, 0, -scoringWindowDays)

	entries, err := e.repo.ListEntriesSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	loans, err := e.repo.ListLoanEvents(ctx, userID, now.AddDate(-2, 0, 0))
	if err != nil {
		return nil, err
	}

	var accountAge time.Duration
	if account, err := e.repo.FindAccountByUserID(ctx, userID); err == nil {
		accountAge = now.Sub(account.CreatedAt)
	} else if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, err
	}

	return &scoringSnapshot{entries: entries, loans: loans, accountAge: accountAge, takenAt: now}, nil
}

// computeFactors normalizes each weighted factor to 0-100. Pure.
func computeFactors(s *scoringSnapshot) domain.CreditFactors {
	return domain.CreditFactors{
		PaymentHistory: paymentHistoryScore(s.loans),
		Utilization:    utilizationScore(s.entries),
		HistoryLength:  historyLengthScore(s.accountAge),
		NewCredit:      newCreditScore(s.loans, s.takenAt),
		CreditMix:      creditMixScore(s.entries),
	}
}

// blendScore combines the factors into the bounded 300-850 band. Pure.
func blendScore(f domain.CreditFactors) int {
	weighted := f.PaymentHistory*weightPaymentHistory +
		f.Utilization*weightUtilization +
		f.HistoryLength*weightHistoryLength +
		f.NewCredit*weightNewCredit +
		f.CreditMix*weightCreditMix

	score := scoreFloor + int(math.Round(weighted/100*(scoreCeil-scoreFloor)))
	if score < scoreFloor {
		score = scoreFloor
	}
	if score > scoreCeil {
		score = scoreCeil
	}
	return score
}

// paymentHistoryScore rewards on-time repayment. Late counts half, missed
// counts zero. A user with no loan history sits at a neutral 65.
func paymentHistoryScore(loans []domain.LoanEvent) float64 {
	p := paymentPatterns(loans)
	total := p.OnTimePayments + p.LatePayments + p.MissedPayments
	if total == 0 {
		return 65
	}
	return 100 * (float64(p.OnTimePayments) + 0.5*float64(p.LatePayments)) / float64(total)
}

// utilizationScore compares outflow to inflow across the trailing window. A
// user spending everything they earn scores 0; one spending nothing scores
// 100. With no inflow at all the factor is a neutral 50.
func utilizationScore(entries []domain.LedgerEntry) float64 {
	income := decimal.Zero
	expense := decimal.Zero
	for _, e := range entries {
		if e.Status != domain.EntryCompleted {
			continue
		}
		if e.Direction == domain.DirectionCredit {
			income = income.Add(e.Amount)
		} else {
			expense = expense.Add(e.Amount)
		}
	}
	if !income.IsPositive() {
		return 50
	}
	ratio, _ := expense.Div(income).Float64()
	score := 100 * (1 - ratio)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// historyLengthScore saturates at two years of account age.
func historyLengthScore(age time.Duration) float64 {
	months := age.Hours() / (24 * 30)
	score := months / 24 * 100
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// newCreditScore penalizes recent borrowing: each loan event inside the last
// 30 days costs 25 points.
func newCreditScore(loans []domain.LoanEvent, now time.Time) float64 {
	cutoff := now.AddDate(0, 0, -30)
	recent := 0
	for _, l := range loans {
		if !l.OccurredAt.Before(cutoff) {
			recent++
		}
	}
	score := 100 - 25*float64(recent)
	if score < 0 {
		return 0
	}
	return score
}

// creditMixScore rewards variety in how the wallet is used: each distinct
// entry type in the window is worth 20 points.
func creditMixScore(entries []domain.LedgerEntry) float64 {
	types := make(map[domain.EntryType]bool)
	for _, e := range entries {
		if e.Status == domain.EntryCompleted {
			types[e.Type] = true
		}
	}
	score := float64(len(types)) * 20
	if score > 100 {
		return 100
	}
	return score
}

func paymentPatterns(loans []domain.LoanEvent) domain.PaymentPatterns {
	var p domain.PaymentPatterns
	for _, l := range loans {
		switch l.Outcome {
		case domain.RepaymentOnTime:
			p.OnTimePayments++
		case domain.RepaymentLate:
			p.LatePayments++
		case domain.RepaymentMissed:
			p.MissedPayments++
		}
	}
	return p
}

func financialProfile(s *scoringSnapshot) domain.FinancialProfile {
	income := decimal.Zero
	expense := decimal.Zero
	for _, e := range s.entries {
		if e.Status != domain.EntryCompleted {
			continue
		}
		if e.Direction == domain.DirectionCredit {
			income = income.Add(e.Amount)
		} else {
			expense = expense.Add(e.Amount)
		}
	}

	months := decimal.NewFromInt(scoringWindowDays).Div(decimal.NewFromInt(30))
	monthlyIncome := income.Div(months).Round(2)
	monthlyExpense := expense.Div(months).Round(2)

	savingsRate := decimal.Zero
	if monthlyIncome.IsPositive() {
		savingsRate = monthlyIncome.Sub(monthlyExpense).Div(monthlyIncome).Round(4)
		if savingsRate.IsNegative() {
			savingsRate = decimal.Zero
		}
	}
	return domain.FinancialProfile{
		MonthlyIncome:  monthlyIncome,
		MonthlyExpense: monthlyExpense,
		SavingsRate:    savingsRate,
	}
}

// eligibilityProfileForScore maps a score band onto the loan-offer envelope:
// interest rate, maximum term, and a max amount expressed as a multiple of
// monthly income.
func eligibilityProfileForScore(score int, monthlyIncome decimal.Decimal) domain.EligibilityProfile {
	var rate decimal.Decimal
	var multiple int64
	var maxTerm int

	switch {
	case score >= 750:
		rate, multiple, maxTerm = decimal.NewFromInt(8), 6, 24
	case score >= 700:
		rate, multiple, maxTerm = decimal.NewFromInt(10), 5, 18
	case score >= 650:
		rate, multiple, maxTerm = decimal.NewFromInt(13), 4, 12
	case score >= 600:
		rate, multiple, maxTerm = decimal.NewFromInt(16), 3, 6
	default:
		return domain.EligibilityProfile{MaxLoanAmount: decimal.Zero, InterestRate: decimal.Zero, MaxTermMonths: 0}
	}

	return domain.EligibilityProfile{
		MaxLoanAmount: monthlyIncome.Mul(decimal.NewFromInt(multiple)).Round(2),
		InterestRate:  rate,
		MaxTermMonths: maxTerm,
	}
}

// evaluateEligibility is pure arithmetic over the already-derived profile.
// Rejections carry explicit reasons instead of a bare boolean.
func evaluateEligibility(score int, envelope domain.EligibilityProfile, amount decimal.Decimal, termMonths int, minScore int) *domain.LoanEligibilityResult {
	result := &domain.LoanEligibilityResult{
		MaxAmount:    envelope.MaxLoanAmount,
		InterestRate: envelope.InterestRate,
	}

	if score < minScore {
		result.Reasons = append(result.Reasons, ReasonScoreTooLow)
	}
	if amount.GreaterThan(envelope.MaxLoanAmount) {
		result.Reasons = append(result.Reasons, ReasonAmountExceedsMax)
	}
	if termMonths > envelope.MaxTermMonths {
		result.Reasons = append(result.Reasons, ReasonTermExceedsMax)
	}
	if len(result.Reasons) > 0 {
		return result
	}

	result.Eligible = true
	result.MonthlyPayment = amortizedPayment(amount, envelope.InterestRate, termMonths)
	return result
}

// amortizedPayment computes the standard fixed monthly payment
// P*r / (1 - (1+r)^-n) for an annual percentage rate.
func amortizedPayment(principal decimal.Decimal, annualRatePercent decimal.Decimal, termMonths int) decimal.Decimal {
	if termMonths <= 0 {
		return decimal.Zero
	}
	p, _ := principal.Float64()
	annual, _ := annualRatePercent.Float64()
	r := annual / 100 / 12
	if r == 0 {
		return principal.Div(decimal.NewFromInt(int64(termMonths))).Round(2)
	}
	payment := p * r / (1 - math.Pow(1+r, -float64(termMonths)))
	return decimal.NewFromFloat(payment).Round(2)
}
