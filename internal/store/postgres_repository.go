/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL needed for accounts, currency balances,
 * the append-only ledger, PIN security state, daily limits, credit profiles,
 * and loan events.
 *
 * Key invariant enforced here: a ledger entry and its balance adjustment are
 * applied inside a single database transaction, and a debit only succeeds
 * when the guarded UPDATE finds a row with sufficient funds. Balances can
 * therefore never go negative, and every balance is a fold over the
 * completed entries.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jasho/wallet-service/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountAlreadyExists  = errors.New("account already exists")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrEntryNotFound         = errors.New("ledger entry not found")
	ErrDuplicateReference    = errors.New("duplicate transaction reference")
	ErrPINNotSet             = errors.New("transaction pin not set")
	ErrCreditProfileNotFound = errors.New("credit profile not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAccount inserts a new active account for the user.
func (r *PostgresRepository) CreateAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `
		INSERT INTO accounts (user_id, status, created_at, updated_at)
		VALUES ($1, 'active', NOW(), NOW())
		RETURNING user_id, status, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(&account.UserID, &account.Status, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAccountAlreadyExists
		}
		return nil, err
	}
	return &account, nil
}

// FindAccountByUserID retrieves a user's account record.
func (r *PostgresRepository) FindAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT user_id, status, created_at, updated_at FROM accounts WHERE user_id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&account.UserID, &account.Status, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// AppendEntry applies the entry's signed amount to the currency balance and
// inserts the ledger row atomically.
func (r *PostgresRepository) AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if entry.Direction == domain.DirectionDebit {
		// Guarded debit: only succeeds when the row exists with enough funds.
		tag, err := tx.Exec(ctx, `
			UPDATE wallet_balances
			SET amount = amount - $3, updated_at = NOW()
			WHERE user_id = $1 AND currency_code = $2 AND amount >= $3
		`, entry.UserID, entry.Currency, entry.Amount)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientBalance
		}
	} else {
		_, err := tx.Exec(ctx, `
			INSERT INTO wallet_balances (user_id, currency_code, amount, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (user_id, currency_code)
			DO UPDATE SET amount = wallet_balances.amount + EXCLUDED.amount, updated_at = NOW()
		`, entry.UserID, entry.Currency, entry.Amount)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_entries
			(id, user_id, type, direction, amount, currency_code,
			 counterparty_user_id, related_entry_id, reference, status, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, entry.ID, entry.UserID, entry.Type, entry.Direction, entry.Amount, entry.Currency,
		entry.CounterpartyUserID, entry.RelatedEntryID, entry.Reference, entry.Status,
		entry.Description, entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return err
	}

	return tx.Commit(ctx)
}

// MarkEntryReversed flips an entry's status to 'reversed'. The compensating
// entry is appended separately by the caller; the original row is otherwise
// untouched.
func (r *PostgresRepository) MarkEntryReversed(ctx context.Context, entryID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE ledger_entries SET status = 'reversed' WHERE id = $1`, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

const entryColumns = `
	id, user_id, type, direction, amount, currency_code,
	counterparty_user_id, related_entry_id, reference, status, description, created_at
`

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := row.Scan(&e.ID, &e.UserID, &e.Type, &e.Direction, &e.Amount, &e.Currency,
		&e.CounterpartyUserID, &e.RelatedEntryID, &e.Reference, &e.Status, &e.Description, &e.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

// FindEntryByID retrieves a single ledger entry.
func (r *PostgresRepository) FindEntryByID(ctx context.Context, entryID uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1`
	return scanEntry(r.db.QueryRow(ctx, query, entryID))
}

// FindEntryByReference retrieves the entry previously written for a client
// idempotency reference, if any.
func (r *PostgresRepository) FindEntryByReference(ctx context.Context, userID uuid.UUID, reference string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE user_id = $1 AND reference = $2`
	return scanEntry(r.db.QueryRow(ctx, query, userID, reference))
}

// FindEntryByRelated retrieves the user's completed entry carrying the given
// saga link. Transfer and conversion legs share their link in
// related_entry_id, so a replayed first leg can resolve the second leg it
// settled with.
func (r *PostgresRepository) FindEntryByRelated(ctx context.Context, userID uuid.UUID, relatedID uuid.UUID, direction domain.EntryDirection) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries
		WHERE user_id = $1 AND related_entry_id = $2 AND direction = $3 AND status = 'completed'`
	return scanEntry(r.db.QueryRow(ctx, query, userID, relatedID, direction))
}

// ListEntriesByUser returns a page of the user's ledger history, newest first.
func (r *PostgresRepository) ListEntriesByUser(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE user_id = $1`
	args := []interface{}{userID}

	if c := strings.TrimSpace(opts.Currency); c != "" {
		args = append(args, c)
		query += fmt.Sprintf(" AND currency_code = $%d", len(args))
	}
	if t := strings.TrimSpace(opts.Type); t != "" {
		args = append(args, t)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}

	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListEntriesSince returns all of the user's entries created at or after the
// given time, oldest first. The credit engine uses this for its trailing
// window.
func (r *PostgresRepository) ListEntriesSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE user_id = $1 AND created_at >= $2 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Direction, &e.Amount, &e.Currency,
			&e.CounterpartyUserID, &e.RelatedEntryID, &e.Reference, &e.Status, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetBalance reads a single currency bucket. A missing row is a zero balance.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID uuid.UUID, currency string) (decimal.Decimal, error) {
	var amount decimal.Decimal
	query := `SELECT amount FROM wallet_balances WHERE user_id = $1 AND currency_code = $2`
	err := r.db.QueryRow(ctx, query, userID, currency).Scan(&amount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return amount, nil
}

// GetBalances reads every currency bucket for the user.
func (r *PostgresRepository) GetBalances(ctx context.Context, userID uuid.UUID) ([]domain.CurrencyBalance, error) {
	query := `SELECT user_id, currency_code, amount FROM wallet_balances WHERE user_id = $1 ORDER BY currency_code`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []domain.CurrencyBalance
	for rows.Next() {
		var b domain.CurrencyBalance
		if err := rows.Scan(&b.UserID, &b.Currency, &b.Amount); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// GetSecurityCredential fetches the user's PIN security state.
func (r *PostgresRepository) GetSecurityCredential(ctx context.Context, userID uuid.UUID) (*domain.UserSecurityCredential, error) {
	var credential domain.UserSecurityCredential
	query := `SELECT user_id, pin_hash, failed_attempts, locked_until FROM user_security_credentials WHERE user_id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&credential.UserID, &credential.PINHash, &credential.FailedAttempts, &credential.LockedUntil)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPINNotSet
		}
		return nil, err
	}
	if strings.TrimSpace(credential.PINHash) == "" {
		return nil, ErrPINNotSet
	}
	return &credential, nil
}

// UpsertPINHash stores a new PIN hash and clears any failure state.
func (r *PostgresRepository) UpsertPINHash(ctx context.Context, userID uuid.UUID, pinHash string) error {
	query := `
		INSERT INTO user_security_credentials (user_id, pin_hash, failed_attempts, locked_until, updated_at)
		VALUES ($1, $2, 0, NULL, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET pin_hash = EXCLUDED.pin_hash, failed_attempts = 0, locked_until = NULL, updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, userID, pinHash)
	return err
}

// RecordFailedPINAttempt atomically increments failed attempts and applies
// lockout when the threshold is reached. An attempt made after an expired
// lockout restarts the count at 1.
func (r *PostgresRepository) RecordFailedPINAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutSeconds int) (*domain.UserSecurityCredential, error) {
	var credential domain.UserSecurityCredential
	query := `
		UPDATE user_security_credentials
		SET
			failed_attempts = CASE
				WHEN locked_until IS NOT NULL AND locked_until <= NOW() THEN 1
				ELSE failed_attempts + 1
			END,
			locked_until = CASE
				WHEN (
					CASE
						WHEN locked_until IS NOT NULL AND locked_until <= NOW() THEN 1
						ELSE failed_attempts + 1
					END
				) >= $2 THEN NOW() + ($3 * INTERVAL '1 second')
				ELSE NULL
			END,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING user_id, pin_hash, failed_attempts, locked_until
	`
	err := r.db.QueryRow(ctx, query, userID, maxAttempts, lockoutSeconds).Scan(
		&credential.UserID, &credential.PINHash, &credential.FailedAttempts, &credential.LockedUntil)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPINNotSet
		}
		return nil, err
	}
	return &credential, nil
}

// ResetPINFailureState clears failed-attempt counters after a successful
// verification.
func (r *PostgresRepository) ResetPINFailureState(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE user_security_credentials
		SET failed_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE user_id = $1
	`
	result, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPINNotSet
	}
	return nil
}

// GetDailyLimit reads the configured caps for one currency. pgx.ErrNoRows is
// surfaced as a nil limit so the caller can fall back to configured defaults.
func (r *PostgresRepository) GetDailyLimit(ctx context.Context, userID uuid.UUID, currency string) (*domain.DailyLimit, error) {
	var limit domain.DailyLimit
	query := `
		SELECT currency_code, deposit_limit, withdrawal_limit, transfer_limit
		FROM daily_limits WHERE user_id = $1 AND currency_code = $2
	`
	err := r.db.QueryRow(ctx, query, userID, currency).Scan(
		&limit.Currency, &limit.Deposit, &limit.Withdrawal, &limit.Transfer)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &limit, nil
}

// GetDailyUsage reads the rolling usage counter for one operation.
func (r *PostgresRepository) GetDailyUsage(ctx context.Context, userID uuid.UUID, currency string, op domain.OperationType) (*domain.DailyUsage, error) {
	var usage domain.DailyUsage
	query := `
		SELECT user_id, currency_code, operation, amount, window_start
		FROM daily_usage WHERE user_id = $1 AND currency_code = $2 AND operation = $3
	`
	err := r.db.QueryRow(ctx, query, userID, currency, op).Scan(
		&usage.UserID, &usage.Currency, &usage.Operation, &usage.Amount, &usage.WindowStart)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &usage, nil
}

// ListDailyUsage reads every usage counter for the user.
func (r *PostgresRepository) ListDailyUsage(ctx context.Context, userID uuid.UUID) ([]domain.DailyUsage, error) {
	query := `
		SELECT user_id, currency_code, operation, amount, window_start
		FROM daily_usage WHERE user_id = $1 ORDER BY currency_code, operation
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usages []domain.DailyUsage
	for rows.Next() {
		var u domain.DailyUsage
		if err := rows.Scan(&u.UserID, &u.Currency, &u.Operation, &u.Amount, &u.WindowStart); err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

// ConsumeDailyUsage adds the amount to the operation's rolling counter in one
// guarded statement: the window reset, the cap comparison, and the increment
// all happen inside the upsert, so two concurrent spends can never both pass
// on the same remaining headroom. Zero rows affected means the addition would
// have breached the limit and nothing was written. A first-time insert is not
// cap-checked here; the caller rejects single amounts above the cap up front.
func (r *PostgresRepository) ConsumeDailyUsage(ctx context.Context, usage domain.DailyUsage, limit decimal.Decimal, resetBefore time.Time) (bool, error) {
	query := `
		INSERT INTO daily_usage (user_id, currency_code, operation, amount, window_start)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, currency_code, operation) DO UPDATE SET
			amount = CASE WHEN daily_usage.window_start <= $6 THEN EXCLUDED.amount
			              ELSE daily_usage.amount + EXCLUDED.amount END,
			window_start = CASE WHEN daily_usage.window_start <= $6 THEN EXCLUDED.window_start
			                    ELSE daily_usage.window_start END
		WHERE (CASE WHEN daily_usage.window_start <= $6 THEN EXCLUDED.amount
		            ELSE daily_usage.amount + EXCLUDED.amount END) <= $7
	`
	tag, err := r.db.Exec(ctx, query,
		usage.UserID, usage.Currency, usage.Operation, usage.Amount, usage.WindowStart, resetBefore, limit)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseDailyUsage subtracts a previously consumed amount, clamping at zero.
// Called when the ledger mutation after a consume fails or replays.
func (r *PostgresRepository) ReleaseDailyUsage(ctx context.Context, userID uuid.UUID, currency string, op domain.OperationType, amount decimal.Decimal) error {
	query := `
		UPDATE daily_usage
		SET amount = GREATEST(amount - $4, 0)
		WHERE user_id = $1 AND currency_code = $2 AND operation = $3
	`
	_, err := r.db.Exec(ctx, query, userID, currency, op, amount)
	return err
}

// GetCreditProfile reads the derived scoring state for a user.
func (r *PostgresRepository) GetCreditProfile(ctx context.Context, userID uuid.UUID) (*domain.CreditProfile, error) {
	var p domain.CreditProfile
	query := `
		SELECT user_id, current_score,
			monthly_income, monthly_expense, savings_rate,
			on_time_payments, late_payments, missed_payments,
			max_loan_amount, interest_rate, max_term_months,
			stale_at, updated_at
		FROM credit_profiles WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.CurrentScore,
		&p.FinancialProfile.MonthlyIncome, &p.FinancialProfile.MonthlyExpense, &p.FinancialProfile.SavingsRate,
		&p.PaymentPatterns.OnTimePayments, &p.PaymentPatterns.LatePayments, &p.PaymentPatterns.MissedPayments,
		&p.EligibilityProfile.MaxLoanAmount, &p.EligibilityProfile.InterestRate, &p.EligibilityProfile.MaxTermMonths,
		&p.StaleAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCreditProfileNotFound
		}
		return nil, err
	}

	history, err := r.ListScoreHistory(ctx, userID, 24)
	if err != nil {
		return nil, err
	}
	p.ScoreHistory = history
	return &p, nil
}

// SaveCreditProfile upserts the profile and appends the score snapshot in one
// transaction. History rows are never updated or deleted.
func (r *PostgresRepository) SaveCreditProfile(ctx context.Context, profile *domain.CreditProfile, snapshot domain.ScoreSnapshot) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO credit_profiles
			(user_id, current_score, monthly_income, monthly_expense, savings_rate,
			 on_time_payments, late_payments, missed_payments,
			 max_loan_amount, interest_rate, max_term_months, stale_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			current_score = EXCLUDED.current_score,
			monthly_income = EXCLUDED.monthly_income,
			monthly_expense = EXCLUDED.monthly_expense,
			savings_rate = EXCLUDED.savings_rate,
			on_time_payments = EXCLUDED.on_time_payments,
			late_payments = EXCLUDED.late_payments,
			missed_payments = EXCLUDED.missed_payments,
			max_loan_amount = EXCLUDED.max_loan_amount,
			interest_rate = EXCLUDED.interest_rate,
			max_term_months = EXCLUDED.max_term_months,
			stale_at = EXCLUDED.stale_at,
			updated_at = NOW()
	`, profile.UserID, profile.CurrentScore,
		profile.FinancialProfile.MonthlyIncome, profile.FinancialProfile.MonthlyExpense, profile.FinancialProfile.SavingsRate,
		profile.PaymentPatterns.OnTimePayments, profile.PaymentPatterns.LatePayments, profile.PaymentPatterns.MissedPayments,
		profile.EligibilityProfile.MaxLoanAmount, profile.EligibilityProfile.InterestRate, profile.EligibilityProfile.MaxTermMonths,
		profile.StaleAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO credit_score_history (user_id, score, calculated_at)
		VALUES ($1, $2, $3)
	`, profile.UserID, snapshot.Score, snapshot.CalculatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// MarkCreditProfileStale stamps the profile so reads can tell the score is
// being served from outdated inputs. The next successful save clears it.
func (r *PostgresRepository) MarkCreditProfileStale(ctx context.Context, userID uuid.UUID, staleAt time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE credit_profiles SET stale_at = $2 WHERE user_id = $1`, userID, staleAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCreditProfileNotFound
	}
	return nil
}

// ListScoreHistory returns the most recent score snapshots, newest first.
func (r *PostgresRepository) ListScoreHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ScoreSnapshot, error) {
	if limit <= 0 {
		limit = 24
	}
	query := `
		SELECT score, calculated_at FROM credit_score_history
		WHERE user_id = $1 ORDER BY calculated_at DESC LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.ScoreSnapshot
	for rows.Next() {
		var s domain.ScoreSnapshot
		if err := rows.Scan(&s.Score, &s.CalculatedAt); err != nil {
			return nil, err
		}
		history = append(history, s)
	}
	return history, rows.Err()
}

// ListStaleCreditProfiles returns users whose profile was last refreshed
// before the given cutoff. The periodic refresh job walks this list.
func (r *PostgresRepository) ListStaleCreditProfiles(ctx context.Context, olderThan time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT user_id FROM credit_profiles
		WHERE updated_at < $1 ORDER BY updated_at ASC LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertLoanEvent stores one repayment event. Redelivered events are dropped
// on the primary key.
func (r *PostgresRepository) InsertLoanEvent(ctx context.Context, event *domain.LoanEvent) error {
	query := `
		INSERT INTO loan_events (id, user_id, outcome, amount, currency_code, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, event.ID, event.UserID, event.Outcome, event.Amount, event.Currency, event.OccurredAt)
	return err
}

// ListLoanEvents returns the user's repayment events at or after the given
// time, oldest first.
func (r *PostgresRepository) ListLoanEvents(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.LoanEvent, error) {
	query := `
		SELECT id, user_id, outcome, amount, currency_code, occurred_at
		FROM loan_events WHERE user_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at ASC
	`
	rows, err := r.db.Query(ctx, query, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.LoanEvent
	for rows.Next() {
		var e domain.LoanEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Outcome, &e.Amount, &e.Currency, &e.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
