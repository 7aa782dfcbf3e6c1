/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access required by the wallet-service. The interface keeps the ledger,
 * security gate, and credit engine decoupled from PostgreSQL so that tests
 * can substitute in-memory stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For user and entry identifiers.
 * - github.com/shopspring/decimal: Exact decimal amounts.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jasho/wallet-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account methods
	CreateAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	FindAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)

	// Ledger methods. AppendEntry applies the entry's signed amount to the
	// matching currency balance and inserts the entry in one database
	// transaction; a debit that would take the balance negative fails with
	// ErrInsufficientBalance and leaves no trace.
	AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error
	MarkEntryReversed(ctx context.Context, entryID uuid.UUID) error
	FindEntryByID(ctx context.Context, entryID uuid.UUID) (*domain.LedgerEntry, error)
	FindEntryByReference(ctx context.Context, userID uuid.UUID, reference string) (*domain.LedgerEntry, error)
	FindEntryByRelated(ctx context.Context, userID uuid.UUID, relatedID uuid.UUID, direction domain.EntryDirection) (*domain.LedgerEntry, error)
	ListEntriesByUser(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.LedgerEntry, error)
	ListEntriesSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.LedgerEntry, error)
	GetBalance(ctx context.Context, userID uuid.UUID, currency string) (decimal.Decimal, error)
	GetBalances(ctx context.Context, userID uuid.UUID) ([]domain.CurrencyBalance, error)

	// Security gate methods
	GetSecurityCredential(ctx context.Context, userID uuid.UUID) (*domain.UserSecurityCredential, error)
	UpsertPINHash(ctx context.Context, userID uuid.UUID, pinHash string) error
	RecordFailedPINAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutSeconds int) (*domain.UserSecurityCredential, error)
	ResetPINFailureState(ctx context.Context, userID uuid.UUID) error

	// Daily limit methods. ConsumeDailyUsage adds to the rolling window
	// counter atomically with both the cap comparison and the lazy window
	// reset, so concurrent spends cannot pass the check on the same remaining
	// headroom; it reports false when the addition would exceed the cap.
	// ReleaseDailyUsage hands a consumed amount back after a failed mutation.
	GetDailyLimit(ctx context.Context, userID uuid.UUID, currency string) (*domain.DailyLimit, error)
	GetDailyUsage(ctx context.Context, userID uuid.UUID, currency string, op domain.OperationType) (*domain.DailyUsage, error)
	ListDailyUsage(ctx context.Context, userID uuid.UUID) ([]domain.DailyUsage, error)
	ConsumeDailyUsage(ctx context.Context, usage domain.DailyUsage, limit decimal.Decimal, resetBefore time.Time) (bool, error)
	ReleaseDailyUsage(ctx context.Context, userID uuid.UUID, currency string, op domain.OperationType, amount decimal.Decimal) error

	// Credit profile methods
	GetCreditProfile(ctx context.Context, userID uuid.UUID) (*domain.CreditProfile, error)
	SaveCreditProfile(ctx context.Context, profile *domain.CreditProfile, snapshot domain.ScoreSnapshot) error
	MarkCreditProfileStale(ctx context.Context, userID uuid.UUID, staleAt time.Time) error
	ListScoreHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ScoreSnapshot, error)
	ListStaleCreditProfiles(ctx context.Context, olderThan time.Time, limit int) ([]uuid.UUID, error)

	// Loan event methods (credit scoring input, sourced from the loan book
	// via RabbitMQ)
	InsertLoanEvent(ctx context.Context, event *domain.LoanEvent) error
	ListLoanEvents(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.LoanEvent, error)
}
