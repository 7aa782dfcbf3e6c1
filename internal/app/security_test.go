package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jasho/wallet-service/internal/domain"
	"github.com/jasho/wallet-service/internal/store"
	"github.com/shopspring/decimal"
)

func testGate(repo *memRepo) *SecurityGate {
	limits := map[string]domain.DailyLimit{
		"KES": {
			Currency:   "KES",
			Deposit:    decimal.NewFromInt(100000),
			Withdrawal: decimal.NewFromInt(50000),
			Transfer:   decimal.NewFromInt(100000),
		},
	}
	return NewSecurityGate(repo, 3, 15*time.Minute, limits)
}

func TestSetPINValidatesFormat(t *testing.T) {
	gate := testGate(newMemRepo())
	ctx := context.Background()
	userID := uuid.New()

	for _, pin := range []string{"", "12", "123", "1234567", "12ab", "abcd"} {
		if err := gate.SetPIN(ctx, userID, pin); !errors.Is(err, ErrMalformedPIN) {
			t.Fatalf("pin %q: expected ErrMalformedPIN, got %v", pin, err)
		}
	}
	for _, pin := range []string{"1234", "123456", "0000"} {
		if err := gate.SetPIN(ctx, userID, pin); err != nil {
			t.Fatalf("pin %q: expected success, got %v", pin, err)
		}
	}
}

func TestVerifyPINSuccessResetsFailureCount(t *testing.T) {
	repo := newMemRepo()
	gate := testGate(repo)
	ctx := context.Background()
	userID := uuid.New()

	if err := gate.SetPIN(ctx, userID, "4321"); err != nil {
		t.Fatalf("set pin failed: %v", err)
	}

	if _, err := gate.VerifyPIN(ctx, userID, "9999"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected ErrInvalidPIN, got %v", err)
	}

	verification, err := gate.VerifyPIN(ctx, userID, "4321")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !verification.Verified {
		t.Fatal("expected verification to succeed")
	}
	if repo.credentials[userID].FailedAttempts != 0 {
		t.Fatalf("expected failure count reset, got %d", repo.credentials[userID].FailedAttempts)
	}
}

func TestThreeFailuresLockThePIN(t *testing.T) {
	repo := newMemRepo()
	gate := testGate(repo)
	ctx := context.Background()
	userID := uuid.New()

	if err := gate.SetPIN(ctx, userID, "4321"); err != nil {
		t.Fatalf("set pin failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		verification, err := gate.VerifyPIN(ctx, userID, "0000")
		if !errors.Is(err, ErrInvalidPIN) {
			t.Fatalf("attempt %d: expected ErrInvalidPIN, got %v", i+1, err)
		}
		if want := 2 - i; verification.AttemptsRemaining != want {
			t.Fatalf("attempt %d: expected %d attempts remaining, got %d", i+1, want, verification.AttemptsRemaining)
		}
	}

	verification, err := gate.VerifyPIN(ctx, userID, "0000")
	if !errors.Is(err, ErrPINLocked) {
		t.Fatalf("third failure: expected ErrPINLocked, got %v", err)
	}
	if verification.LockedUntil == nil {
		t.Fatal("expected a lockout deadline")
	}

	// The correct PIN is also rejected during the lock window.
	if _, err := gate.VerifyPIN(ctx, userID, "4321"); !errors.Is(err, ErrPINLocked) {
		t.Fatalf("expected ErrPINLocked during window, got %v", err)
	}
}

func TestLockExpiresAfterWindow(t *testing.T) {
	repo := newMemRepo()
	gate := testGate(repo)
	ctx := context.Background()
	userID := uuid.New()

	if err := gate.SetPIN(ctx, userID, "4321"); err != nil {
		t.Fatalf("set pin failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		gate.VerifyPIN(ctx, userID, "0000")
	}

	// Jump the gate's clock past the lockout deadline.
	gate.now = func() time.Time { return time.Now().Add(16 * time.Minute) }

	verification, err := gate.VerifyPIN(ctx, userID, "4321")
	if err != nil {
		t.Fatalf("expected success after lock expiry, got %v", err)
	}
	if !verification.Verified {
		t.Fatal("expected verification to succeed after lock expiry")
	}
}

func TestVerifyPINWithoutPINSet(t *testing.T) {
	gate := testGate(newMemRepo())

	_, err := gate.VerifyPIN(context.Background(), uuid.New(), "1234")
	if !errors.Is(err, store.ErrPINNotSet) {
		t.Fatalf("expected ErrPINNotSet, got %v", err)
	}
}

func TestSetPINOverwritesAndClearsFailures(t *testing.T) {
	repo := newMemRepo()
	gate := testGate(repo)
	ctx := context.Background()
	userID := uuid.New()

	if err := gate.SetPIN(ctx, userID, "1111"); err != nil {
		t.Fatalf("set pin failed: %v", err)
	}
	gate.VerifyPIN(ctx, userID, "0000")
	gate.VerifyPIN(ctx, userID, "0000")

	if err := gate.SetPIN(ctx, userID, "2222"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	verification, err := gate.VerifyPIN(ctx, userID, "2222")
	if err != nil || !verification.Verified {
		t.Fatalf("expected new pin to verify, got verified=%v err=%v", verification != nil && verification.Verified, err)
	}
	if _, err := gate.VerifyPIN(ctx, userID, "1111"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected old pin rejected, got %v", err)
	}
}

func TestDailyLimitBlocksExcessAndAllowsUpToCap(t *testing.T) {
	repo := newMemRepo()
	gate := testGate(repo)
	ctx := context.Background()
	userID := uuid.New()

	// 30000 + 15000 = 45000 fits under the 50000 withdrawal cap.
	if _, err := gate.ConsumeDailyLimit(ctx, userID, decimal.NewFromInt(30000), "KES", domain.OpWithdrawal); err != nil {
		t.Fatalf("first consume failed: %v", err)
	}
	if _, err := gate.ConsumeDailyLimit(ctx, userID, decimal.NewFromInt(15000), "KES", domain.OpWithdrawal); err != nil {
		t.Fatalf("second consume failed: %v", err)
	}

	// 45000 + 10000 would breach the cap.
	if _, err := gate.ConsumeDailyLimit(ctx, userID, decimal.NewFromInt(10000), "KES", domain.OpWithdrawal); !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("expected ErrDailyLimitExceeded, got %v", err)
	}

	// Exactly reaching the cap is allowed.
	if _, err := gate.ConsumeDailyLimit(ctx, userID, decimal.NewFromInt(5000), "KES", domain.OpWithdrawal); err != nil {
		t.Fatalf("exact-cap consume failed: %v", err)
	}
}

func TestConcurrentSpendsCannotExceedDailyCap(t *testing.T) {
	repo := newMemRepo()
	gate := testGate(repo)
	ctx := context.Background()
	userID := uuid.New()

	// Ten goroutines each try to reserve the full 50000 cap at once. Exactly
	// one may win; the rest must see the cap exhausted.
	const workers = 10
	results := make(chan error, workers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < workers; i++ {
		go func() {
			start.Wait()
			_, err := gate.ConsumeDailyLimit(ctx, userID, decimal.NewFromInt(50000), "KES", domain.OpWithdrawal)
			results <- err
		}()
	}
	start.Done()

	granted := 0
	for i := 0; i < workers; i++ {
		err := <-results
		switch {
		case err == nil:
			granted++
		case errors.Is(err, ErrDailyLimitExceeded):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if granted != 1 {
		t.Fatalf("expected exactly 1 reservation to win, got %d", granted)
	}

	usage, _ := repo.GetDailyUsage(ctx, userID, "KES", domain.OpWithdrawal)
	if usage == nil || !usage.Amount.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("expected usage pinned at the cap, got %+v", usage)
	}
}

func TestReleaseDailyLimitReturnsReservedBudget(t *testing.T) {
	repo := newMemRepo()
	gate := testGate(repo)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := gate.ConsumeDailyLimit(ctx, userID, decimal.NewFromInt(50000), "KES", domain.OpWithdrawal); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if _, err := gate.ConsumeDailyLimit(ctx, userID, decimal.NewFromInt(1), "KES", domain.OpWithdrawal); !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("expected cap exhausted, got %v", err)
	}

	if err := gate.ReleaseDailyLimit(ctx, userID, decimal.NewFromInt(50000), "KES", domain.OpWithdrawal); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := gate.ConsumeDailyLimit(ctx, userID, decimal.NewFromInt(50000), "KES", domain.OpWithdrawal); err != nil {
		t.Fatalf("expected full cap after release, got %v", err)
	}
}

func TestDailyLimitWindowResetsAfter24Hours(t *testing.T) {
	repo := newMemRepo()
	gate := testGate(repo)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := gate.ConsumeDailyLimit(ctx, userID, decimal.NewFromInt(50000), "KES", domain.OpWithdrawal); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if _, err := gate.ConsumeDailyLimit(ctx, userID, decimal.NewFromInt(1), "KES", domain.OpWithdrawal); !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("expected cap exhausted, got %v", err)
	}

	// 24 hours later the window restarts and the full cap is available.
	gate.now = func() time.Time { return time.Now().Add(24*time.Hour + time.Minute) }
	if _, err := gate.ConsumeDailyLimit(ctx, userID, decimal.NewFromInt(50000), "KES", domain.OpWithdrawal); err != nil {
		t.Fatalf("expected fresh window, got %v", err)
	}
}

func TestUnconfiguredCurrencyIsUncapped(t *testing.T) {
	gate := testGate(newMemRepo())

	consumed, err := gate.ConsumeDailyLimit(context.Background(), uuid.New(), decimal.NewFromInt(1000000), "USDT", domain.OpWithdrawal)
	if err != nil {
		t.Fatalf("expected no cap for USDT, got %v", err)
	}
	if consumed {
		t.Fatal("uncapped operation must not take a reservation")
	}
}
