/**
 * @description
 * This file contains the currency ledger: per-user multi-currency balances
 * and the append-only transaction log. It is the unit of truth for how much
 * money exists where. Mutations on the same account are serialized through
 * the per-account lock manager; the balance adjustment and the entry append
 * happen in one repository transaction.
 *
 * The ledger deliberately knows nothing about PINs or daily limits; those
 * are the security gate's responsibility, enforced by the Service before a
 * ledger mutation is reached.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal.
 * - internal/domain, internal/store.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jasho/wallet-service/internal/domain"
	"github.com/jasho/wallet-service/internal/store"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrAccountFrozen       = errors.New("account is not active")
)

// Ledger owns account balances and the append-only entry log.
type Ledger struct {
	repo       store.Repository
	locks      *accountLocks
	currencies map[string]bool
	now        func() time.Time
}

// NewLedger creates the currency ledger. supportedCurrencies is the closed
// set of currency codes the wallet accepts (e.g., KES, USD, USDT).
func NewLedger(repo store.Repository, supportedCurrencies []string) *Ledger {
	set := make(map[string]bool, len(supportedCurrencies))
	for _, c := range supportedCurrencies {
		set[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	return &Ledger{
		repo:       repo,
		locks:      newAccountLocks(),
		currencies: set,
		now:        time.Now,
	}
}

// NormalizeCurrency upper-cases and validates a currency code.
func (l *Ledger) NormalizeCurrency(currency string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" || !l.currencies[c] {
		return "", ErrUnsupportedCurrency
	}
	return c, nil
}

// Deposit increases the user's balance and appends a deposit entry. The
// returned bool reports a replayed client reference: the original entry comes
// back and no balance moved.
func (l *Ledger) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, description, reference string) (*domain.LedgerEntry, bool, error) {
	unlock := l.locks.lock(userID)
	defer unlock()
	return l.append(ctx, userID, domain.EntryDeposit, domain.DirectionCredit, amount, currency, description, reference, nil, nil)
}

// Withdraw decreases the user's balance and appends a withdrawal entry. It
// fails with store.ErrInsufficientBalance when the balance cannot cover the
// amount. PIN and daily-limit checks are the security gate's job, performed
// by the caller before this point.
func (l *Ledger) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency, description, reference string) (*domain.LedgerEntry, bool, error) {
	unlock := l.locks.lock(userID)
	defer unlock()
	return l.append(ctx, userID, domain.EntryWithdrawal, domain.DirectionDebit, amount, currency, description, reference, nil, nil)
}

// GetBalance returns the user's balance in one currency.
func (l *Ledger) GetBalance(ctx context.Context, userID uuid.UUID, currency string) (decimal.Decimal, error) {
	c, err := l.NormalizeCurrency(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return l.repo.GetBalance(ctx, userID, c)
}

// Balances returns every currency bucket the user holds.
func (l *Ledger) Balances(ctx context.Context, userID uuid.UUID) ([]domain.CurrencyBalance, error) {
	return l.repo.GetBalances(ctx, userID)
}

// History returns a page of the user's ledger entries, newest first.
func (l *Ledger) History(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.LedgerEntry, error) {
	return l.repo.ListEntriesByUser(ctx, userID, opts)
}

// append validates and writes one ledger entry under an already-held account
// lock. Callers composing multi-leg operations hold every lock up front and
// use this directly. The bool reports a replayed client reference: the
// original entry is returned, no balance moved, and callers must not apply
// any follow-up effects (second legs, usage counters, events) a second time.
func (l *Ledger) append(ctx context.Context, userID uuid.UUID, entryType domain.EntryType, direction domain.EntryDirection, amount decimal.Decimal, currency, description, reference string, counterparty, related *uuid.UUID) (*domain.LedgerEntry, bool, error) {
	if !amount.IsPositive() {
		return nil, false, ErrInvalidAmount
	}
	c, err := l.NormalizeCurrency(currency)
	if err != nil {
		return nil, false, err
	}

	account, err := l.findOrCreateAccount(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if account.Status != domain.AccountActive {
		return nil, false, ErrAccountFrozen
	}

	// Idempotency: a replayed client reference returns the original entry
	// instead of double-applying.
	var ref *string
	if trimmed := strings.TrimSpace(reference); trimmed != "" {
		if existing, err := l.repo.FindEntryByReference(ctx, userID, trimmed); err == nil {
			return existing, true, nil
		} else if !errors.Is(err, store.ErrEntryNotFound) {
			return nil, false, err
		}
		ref = &trimmed
	}

	entry := &domain.LedgerEntry{
		ID:                 uuid.New(),
		UserID:             userID,
		Type:               entryType,
		Direction:          direction,
		Amount:             amount,
		Currency:           c,
		CounterpartyUserID: counterparty,
		RelatedEntryID:     related,
		Reference:          ref,
		Status:             domain.EntryCompleted,
		Description:        description,
		CreatedAt:          l.now().UTC(),
	}

	if err := l.repo.AppendEntry(ctx, entry); err != nil {
		if errors.Is(err, store.ErrDuplicateReference) && ref != nil {
			// Lost a race against a concurrent retry of the same reference.
			existing, findErr := l.repo.FindEntryByReference(ctx, userID, *ref)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, true, nil
		}
		return nil, false, err
	}
	return entry, false, nil
}

// compensate reverses a previously applied entry by appending the opposite
// leg and marking the original as reversed. It is the coordinator's escape
// hatch when the second leg of a transfer or conversion fails after the
// first has been applied.
func (l *Ledger) compensate(ctx context.Context, original *domain.LedgerEntry) error {
	direction := domain.DirectionCredit
	if original.Direction == domain.DirectionCredit {
		direction = domain.DirectionDebit
	}
	reversal := &domain.LedgerEntry{
		ID:                 uuid.New(),
		UserID:             original.UserID,
		Type:               original.Type,
		Direction:          direction,
		Amount:             original.Amount,
		Currency:           original.Currency,
		CounterpartyUserID: original.CounterpartyUserID,
		RelatedEntryID:     original.RelatedEntryID,
		Status:             domain.EntryReversed,
		Description:        fmt.Sprintf("reversal of %s", original.ID),
		CreatedAt:          l.now().UTC(),
	}
	if err := l.repo.AppendEntry(ctx, reversal); err != nil {
		log.Printf("level=error component=ledger msg=\"compensation append failed\" entry_id=%s err=%v", original.ID, err)
		return err
	}
	if err := l.repo.MarkEntryReversed(ctx, original.ID); err != nil {
		log.Printf("level=error component=ledger msg=\"reversed status update failed\" entry_id=%s err=%v", original.ID, err)
		return err
	}
	return nil
}

// findOrCreateAccount lazily provisions an account on first use, matching
// the original backend's create-wallet-on-demand behaviour.
func (l *Ledger) findOrCreateAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	account, err := l.repo.FindAccountByUserID(ctx, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, err
	}
	account, err = l.repo.CreateAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrAccountAlreadyExists) {
			return l.repo.FindAccountByUserID(ctx, userID)
		}
		return nil, err
	}
	return account, nil
}
