/**
 * @description
 * This file contains the security gate: PIN hashing and verification with
 * lockout, and the rolling 24-hour daily limit counters. Every outbound
 * money movement passes through this gate before the ledger is touched.
 * Limit budget is consumed up front in one atomic reservation and released
 * if the ledger mutation behind it does not land.
 *
 * Lockout state machine: unlocked → (maxAttempts consecutive failures) →
 * locked until now + lockout duration → (time elapses) → unlocked with the
 * counter restarted. A correct PIN during the lock window still fails.
 *
 * @dependencies
 * - context, errors, regexp, time: Standard Go libraries.
 * - golang.org/x/crypto/bcrypt: PIN hashing.
 * - internal/domain, internal/store.
 */

package app

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jasho/wallet-service/internal/domain"
	"github.com/jasho/wallet-service/internal/store"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidPIN         = errors.New("invalid transaction pin")
	ErrPINLocked          = errors.New("transaction pin is locked")
	ErrMalformedPIN       = errors.New("pin must be 4 to 6 digits")
	ErrDailyLimitExceeded = errors.New("daily limit exceeded")
)

var pinPattern = regexp.MustCompile(`^[0-9]{4,6}$`)

// PINVerification reports the outcome of a VerifyPIN call, including the
// attempt budget the API exposes on rejection.
type PINVerification struct {
	Verified          bool       `json:"verified"`
	AttemptsRemaining int        `json:"attempts_remaining"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
}

// SecurityGate validates PINs and enforces daily usage caps.
type SecurityGate struct {
	repo            store.Repository
	maxAttempts     int
	lockoutDuration time.Duration
	defaultLimits   map[string]domain.DailyLimit
	now             func() time.Time
}

// NewSecurityGate creates the gate. defaultLimits supplies per-currency caps
// for users without explicit overrides in the daily_limits table.
func NewSecurityGate(repo store.Repository, maxAttempts int, lockoutDuration time.Duration, defaultLimits map[string]domain.DailyLimit) *SecurityGate {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if lockoutDuration <= 0 {
		lockoutDuration = 15 * time.Minute
	}
	return &SecurityGate{
		repo:            repo,
		maxAttempts:     maxAttempts,
		lockoutDuration: lockoutDuration,
		defaultLimits:   defaultLimits,
		now:             time.Now,
	}
}

// SetPIN hashes and stores the user's PIN. Overwriting an existing PIN is
// allowed and clears any failure state.
func (g *SecurityGate) SetPIN(ctx context.Context, userID uuid.UUID, pin string) error {
	if !pinPattern.MatchString(pin) {
		return ErrMalformedPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return g.repo.UpsertPINHash(ctx, userID, string(hash))
}

// HasPIN reports whether the user has a PIN configured.
func (g *SecurityGate) HasPIN(ctx context.Context, userID uuid.UUID) (bool, error) {
	_, err := g.repo.GetSecurityCredential(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrPINNotSet) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IsLocked reports whether the user's PIN is inside a lockout window.
func (g *SecurityGate) IsLocked(ctx context.Context, userID uuid.UUID) (bool, error) {
	credential, err := g.repo.GetSecurityCredential(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrPINNotSet) {
			return false, nil
		}
		return false, err
	}
	return credential.IsLocked(g.now()), nil
}

// VerifyPIN checks the PIN against the stored hash. It fails fast with
// ErrPINLocked while a lockout window is active, increments the failure
// counter on mismatch (locking at the threshold), and resets the counter on
// success.
func (g *SecurityGate) VerifyPIN(ctx context.Context, userID uuid.UUID, pin string) (*PINVerification, error) {
	credential, err := g.repo.GetSecurityCredential(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	if credential.IsLocked(now) {
		return &PINVerification{LockedUntil: credential.LockedUntil}, ErrPINLocked
	}

	if bcrypt.CompareHashAndPassword([]byte(credential.PINHash), []byte(pin)) != nil {
		updated, recErr := g.repo.RecordFailedPINAttempt(ctx, userID, g.maxAttempts, int(g.lockoutDuration.Seconds()))
		if recErr != nil {
			return nil, recErr
		}
		verification := &PINVerification{
			AttemptsRemaining: g.maxAttempts - updated.FailedAttempts,
			LockedUntil:       updated.LockedUntil,
		}
		if verification.AttemptsRemaining < 0 {
			verification.AttemptsRemaining = 0
		}
		if updated.IsLocked(now) {
			return verification, ErrPINLocked
		}
		return verification, ErrInvalidPIN
	}

	if err := g.repo.ResetPINFailureState(ctx, userID); err != nil {
		return nil, err
	}
	return &PINVerification{Verified: true, AttemptsRemaining: g.maxAttempts}, nil
}

// ConsumeDailyLimit reserves amount against the rolling 24-hour budget for
// the operation. The cap comparison, the lazy window reset, and the counter
// increment are one atomic repository operation, so two concurrent spends can
// never both pass on the same remaining headroom. It reports whether a capped
// reservation was taken; ReleaseDailyLimit hands it back when the guarded
// mutation afterwards fails or replays. Exceeding the cap is a hard failure,
// never a silent clamp.
func (g *SecurityGate) ConsumeDailyLimit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency string, op domain.OperationType) (bool, error) {
	limit, err := g.limitFor(ctx, userID, currency)
	if err != nil {
		return false, err
	}
	allowed := limit.ForOperation(op)
	if allowed.IsZero() {
		// No cap configured for this operation.
		return false, nil
	}
	if amount.GreaterThan(allowed) {
		return false, ErrDailyLimitExceeded
	}

	now := g.now()
	ok, err := g.repo.ConsumeDailyUsage(ctx, domain.DailyUsage{
		UserID:      userID,
		Currency:    currency,
		Operation:   op,
		Amount:      amount,
		WindowStart: now,
	}, allowed, now.Add(-24*time.Hour))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrDailyLimitExceeded
	}
	return true, nil
}

// ReleaseDailyLimit returns a previously consumed reservation to the window.
func (g *SecurityGate) ReleaseDailyLimit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency string, op domain.OperationType) error {
	return g.repo.ReleaseDailyUsage(ctx, userID, currency, op, amount)
}

// DailyUsage returns the user's usage counters with expired windows zeroed.
func (g *SecurityGate) DailyUsage(ctx context.Context, userID uuid.UUID) ([]domain.DailyUsage, error) {
	usages, err := g.repo.ListDailyUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := g.now()
	for i := range usages {
		if now.Sub(usages[i].WindowStart) >= 24*time.Hour {
			usages[i].Amount = decimal.Zero
			usages[i].WindowStart = now
		}
	}
	return usages, nil
}

func (g *SecurityGate) limitFor(ctx context.Context, userID uuid.UUID, currency string) (domain.DailyLimit, error) {
	limit, err := g.repo.GetDailyLimit(ctx, userID, currency)
	if err != nil {
		return domain.DailyLimit{}, err
	}
	if limit != nil {
		return *limit, nil
	}
	if fallback, ok := g.defaultLimits[currency]; ok {
		return fallback, nil
	}
	return domain.DailyLimit{Currency: currency}, nil
}
