package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jasho/wallet-service/internal/domain"
	"github.com/jasho/wallet-service/internal/store"
	"github.com/shopspring/decimal"
)

// Credit-side repository methods for memRepo, used by the engine tests.

func (m *memRepo) GetCreditProfile(ctx context.Context, userID uuid.UUID) (*domain.CreditProfile, error) {
	if m.creditProfiles == nil {
		return nil, store.ErrCreditProfileNotFound
	}
	profile, ok := m.creditProfiles[userID]
	if !ok {
		return nil, store.ErrCreditProfileNotFound
	}
	copied := *profile
	return &copied, nil
}

func (m *memRepo) SaveCreditProfile(ctx context.Context, profile *domain.CreditProfile, snapshot domain.ScoreSnapshot) error {
	if m.creditProfiles == nil {
		m.creditProfiles = make(map[uuid.UUID]*domain.CreditProfile)
	}
	copied := *profile
	if existing, ok := m.creditProfiles[profile.UserID]; ok {
		copied.ScoreHistory = append(existing.ScoreHistory, snapshot)
	} else {
		copied.ScoreHistory = []domain.ScoreSnapshot{snapshot}
	}
	m.creditProfiles[profile.UserID] = &copied
	return nil
}

func (m *memRepo) MarkCreditProfileStale(ctx context.Context, userID uuid.UUID, staleAt time.Time) error {
	profile, ok := m.creditProfiles[userID]
	if !ok {
		return store.ErrCreditProfileNotFound
	}
	profile.StaleAt = &staleAt
	return nil
}

func (m *memRepo) ListScoreHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ScoreSnapshot, error) {
	profile, err := m.GetCreditProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	history := profile.ScoreHistory
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

func (m *memRepo) InsertLoanEvent(ctx context.Context, event *domain.LoanEvent) error {
	m.loanEvents = append(m.loanEvents, *event)
	return nil
}

func (m *memRepo) ListLoanEvents(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.LoanEvent, error) {
	var out []domain.LoanEvent
	for _, e := range m.loanEvents {
		if e.UserID == userID && !e.OccurredAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestBlendScoreStaysInBand(t *testing.T) {
	tests := []struct {
		name    string
		factors domain.CreditFactors
		want    int
	}{
		{
			name:    "all zero factors hit the floor",
			factors: domain.CreditFactors{},
			want:    300,
		},
		{
			name: "all perfect factors hit the ceiling",
			factors: domain.CreditFactors{
				PaymentHistory: 100, Utilization: 100, HistoryLength: 100, NewCredit: 100, CreditMix: 100,
			},
			want: 850,
		},
		{
			name: "weights follow the 35/30/15/10/10 split",
			factors: domain.CreditFactors{
				PaymentHistory: 100, // contributes 35 of 100
			},
			want: 300 + 193, // 0.35 * 550 = 192.5, rounded
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := blendScore(tt.factors); got != tt.want {
				t.Fatalf("expected score %d, got %d", tt.want, got)
			}
		})
	}
}

func TestPaymentHistoryScore(t *testing.T) {
	onTime := domain.LoanEvent{Outcome: domain.RepaymentOnTime}
	late := domain.LoanEvent{Outcome: domain.RepaymentLate}
	missed := domain.LoanEvent{Outcome: domain.RepaymentMissed}

	tests := []struct {
		name  string
		loans []domain.LoanEvent
		want  float64
	}{
		{"no history is neutral", nil, 65},
		{"all on time", []domain.LoanEvent{onTime, onTime}, 100},
		{"late counts half", []domain.LoanEvent{onTime, late}, 75},
		{"missed counts zero", []domain.LoanEvent{onTime, missed}, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := paymentHistoryScore(tt.loans); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestUtilizationScore(t *testing.T) {
	entry := func(direction domain.EntryDirection, amount int64) domain.LedgerEntry {
		return domain.LedgerEntry{
			Direction: direction,
			Amount:    decimal.NewFromInt(amount),
			Status:    domain.EntryCompleted,
		}
	}

	tests := []struct {
		name    string
		entries []domain.LedgerEntry
		want    float64
	}{
		{"no inflow is neutral", nil, 50},
		{"spends nothing", []domain.LedgerEntry{entry(domain.DirectionCredit, 1000)}, 100},
		{"spends everything", []domain.LedgerEntry{entry(domain.DirectionCredit, 1000), entry(domain.DirectionDebit, 1000)}, 0},
		{"spends half", []domain.LedgerEntry{entry(domain.DirectionCredit, 1000), entry(domain.DirectionDebit, 500)}, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := utilizationScore(tt.entries); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestUtilizationIgnoresReversedEntries(t *testing.T) {
	entries := []domain.LedgerEntry{
		{Direction: domain.DirectionCredit, Amount: decimal.NewFromInt(1000), Status: domain.EntryCompleted},
		{Direction: domain.DirectionDebit, Amount: decimal.NewFromInt(1000), Status: domain.EntryReversed},
	}
	if got := utilizationScore(entries); got != 100 {
		t.Fatalf("reversed debit must not count as spend, got %v", got)
	}
}

func TestHistoryLengthScoreSaturatesAtTwoYears(t *testing.T) {
	if got := historyLengthScore(0); got != 0 {
		t.Fatalf("new account should score 0, got %v", got)
	}
	if got := historyLengthScore(3 * 365 * 24 * time.Hour); got != 100 {
		t.Fatalf("three-year account should saturate at 100, got %v", got)
	}
	got := historyLengthScore(12 * 30 * 24 * time.Hour)
	if got != 50 {
		t.Fatalf("one-year account should score 50, got %v", got)
	}
}

func TestScoreIsDeterministicForFixedSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snapshot := &scoringSnapshot{
		entries: []domain.LedgerEntry{
			{Direction: domain.DirectionCredit, Amount: decimal.NewFromInt(60000), Status: domain.EntryCompleted, Type: domain.EntryDeposit},
			{Direction: domain.DirectionDebit, Amount: decimal.NewFromInt(20000), Status: domain.EntryCompleted, Type: domain.EntryWithdrawal},
		},
		loans: []domain.LoanEvent{
			{Outcome: domain.RepaymentOnTime, OccurredAt: now.AddDate(0, -3, 0)},
		},
		accountAge: 400 * 24 * time.Hour,
		takenAt:    now,
	}

	first := blendScore(computeFactors(snapshot))
	for i := 0; i < 5; i++ {
		if got := blendScore(computeFactors(snapshot)); got != first {
			t.Fatalf("score not deterministic: %d vs %d", first, got)
		}
	}
	if first < 300 || first > 850 {
		t.Fatalf("score %d out of band", first)
	}
}

func TestProfileCreatesFloorScoreOnFirstAccess(t *testing.T) {
	repo := newMemRepo()
	engine := NewCreditEngine(repo, nil, 600)
	userID := uuid.New()

	profile, err := engine.Profile(context.Background(), userID)
	if err != nil {
		t.Fatalf("profile failed: %v", err)
	}
	if profile.CurrentScore != 300 {
		t.Fatalf("expected floor score 300, got %d", profile.CurrentScore)
	}
	if len(profile.ScoreHistory) != 1 {
		t.Fatalf("expected one history snapshot, got %d", len(profile.ScoreHistory))
	}
}

func TestRecalculateAppendsHistoryAndReportsChange(t *testing.T) {
	repo := newMemRepo()
	ledger := testLedger(repo)
	engine := NewCreditEngine(repo, nil, 600)
	ctx := context.Background()
	userID := uuid.New()

	if _, _, err := ledger.Deposit(ctx, userID, decimal.NewFromInt(90000), "KES", "gig earnings", ""); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, _, err := ledger.Withdraw(ctx, userID, decimal.NewFromInt(20000), "KES", "", ""); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	repo.loanEvents = append(repo.loanEvents, domain.LoanEvent{
		UserID: userID, Outcome: domain.RepaymentOnTime, OccurredAt: time.Now().AddDate(0, -2, 0),
	})

	result, err := engine.Recalculate(ctx, userID)
	if err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	if result.PreviousScore != 300 {
		t.Fatalf("expected previous score 300, got %d", result.PreviousScore)
	}
	if result.NewScore < 300 || result.NewScore > 850 {
		t.Fatalf("score %d out of band", result.NewScore)
	}
	if result.Change != result.NewScore-result.PreviousScore {
		t.Fatalf("change %d inconsistent with %d -> %d", result.Change, result.PreviousScore, result.NewScore)
	}

	history, err := repo.ListScoreHistory(ctx, userID, 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history snapshots (creation + recalc), got %d", len(history))
	}
}

func TestRecalculateMarksProfileStaleWhenInputsUnavailable(t *testing.T) {
	repo := newMemRepo()
	ledger := testLedger(repo)
	engine := NewCreditEngine(repo, nil, 600)
	ctx := context.Background()
	userID := uuid.New()

	if _, _, err := ledger.Deposit(ctx, userID, decimal.NewFromInt(50000), "KES", "", ""); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := engine.Recalculate(ctx, userID); err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}

	// With the ledger history unreachable the prior score must survive, but
	// flagged as stale so consumers can tell it is not fresh.
	repo.failEntriesSince = errors.New("ledger history unavailable")
	if _, err := engine.Recalculate(ctx, userID); err == nil {
		t.Fatal("expected recalculation to fail")
	}
	profile, err := engine.Profile(ctx, userID)
	if err != nil {
		t.Fatalf("profile failed: %v", err)
	}
	if profile.StaleAt == nil {
		t.Fatal("expected stale marker on the stored profile")
	}

	// A successful recalculation clears the marker.
	repo.failEntriesSince = nil
	if _, err := engine.Recalculate(ctx, userID); err != nil {
		t.Fatalf("recalculate after recovery failed: %v", err)
	}
	profile, err = engine.Profile(ctx, userID)
	if err != nil {
		t.Fatalf("profile failed: %v", err)
	}
	if profile.StaleAt != nil {
		t.Fatalf("expected stale marker cleared, got %v", profile.StaleAt)
	}
}

func TestEvaluateEligibility(t *testing.T) {
	envelope := domain.EligibilityProfile{
		MaxLoanAmount: decimal.NewFromInt(80000),
		InterestRate:  decimal.NewFromInt(13),
		MaxTermMonths: 12,
	}

	t.Run("eligible request computes a payment", func(t *testing.T) {
		result := evaluateEligibility(650, envelope, decimal.NewFromInt(50000), 12, 600)
		if !result.Eligible {
			t.Fatalf("expected eligible, got reasons %v", result.Reasons)
		}
		if !result.MonthlyPayment.IsPositive() {
			t.Fatalf("expected positive monthly payment, got %s", result.MonthlyPayment)
		}
		// Total repaid must exceed principal at a positive rate.
		total := result.MonthlyPayment.Mul(decimal.NewFromInt(12))
		if !total.GreaterThan(decimal.NewFromInt(50000)) {
			t.Fatalf("total repayment %s should exceed principal", total)
		}
	})

	t.Run("low score is rejected with reason", func(t *testing.T) {
		result := evaluateEligibility(550, envelope, decimal.NewFromInt(10000), 6, 600)
		if result.Eligible {
			t.Fatal("expected ineligible")
		}
		if !containsReason(result.Reasons, ReasonScoreTooLow) {
			t.Fatalf("expected %s in %v", ReasonScoreTooLow, result.Reasons)
		}
	})

	t.Run("amount and term violations stack", func(t *testing.T) {
		result := evaluateEligibility(650, envelope, decimal.NewFromInt(100000), 24, 600)
		if result.Eligible {
			t.Fatal("expected ineligible")
		}
		if !containsReason(result.Reasons, ReasonAmountExceedsMax) || !containsReason(result.Reasons, ReasonTermExceedsMax) {
			t.Fatalf("expected both amount and term reasons, got %v", result.Reasons)
		}
	})
}

func TestAmortizedPayment(t *testing.T) {
	if got := amortizedPayment(decimal.NewFromInt(10000), decimal.Zero, 4); !got.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("zero-rate payment should be principal/term, got %s", got)
	}
	if got := amortizedPayment(decimal.NewFromInt(10000), decimal.NewFromInt(16), 0); !got.IsZero() {
		t.Fatalf("zero-term payment should be zero, got %s", got)
	}

	payment := amortizedPayment(decimal.NewFromInt(10000), decimal.NewFromInt(16), 6)
	// Six payments must cover principal plus some interest, but less than a
	// full year of 16%.
	total := payment.Mul(decimal.NewFromInt(6))
	if !total.GreaterThan(decimal.NewFromInt(10000)) {
		t.Fatalf("total %s should exceed principal", total)
	}
	if !total.LessThan(decimal.NewFromInt(11600)) {
		t.Fatalf("total %s should be below principal plus a full year of interest", total)
	}
}

func TestEligibilityProfileForScoreBands(t *testing.T) {
	income := decimal.NewFromInt(20000)

	tests := []struct {
		score       int
		wantRate    int64
		wantMax     int64
		wantMaxTerm int
	}{
		{780, 8, 120000, 24},
		{710, 10, 100000, 18},
		{660, 13, 80000, 12},
		{610, 16, 60000, 6},
		{590, 0, 0, 0},
	}

	for _, tt := range tests {
		envelope := eligibilityProfileForScore(tt.score, income)
		if !envelope.InterestRate.Equal(decimal.NewFromInt(tt.wantRate)) {
			t.Fatalf("score %d: expected rate %d, got %s", tt.score, tt.wantRate, envelope.InterestRate)
		}
		if !envelope.MaxLoanAmount.Equal(decimal.NewFromInt(tt.wantMax)) {
			t.Fatalf("score %d: expected max %d, got %s", tt.score, tt.wantMax, envelope.MaxLoanAmount)
		}
		if envelope.MaxTermMonths != tt.wantMaxTerm {
			t.Fatalf("score %d: expected max term %d, got %d", tt.score, tt.wantMaxTerm, envelope.MaxTermMonths)
		}
	}
}

func containsReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}
