/**
 * @description
 * This file contains the transfer and conversion coordinator. Both
 * operations are two-leg sagas over the ledger: a debit leg followed by a
 * credit leg, with a compensating reversal of the first leg if the second
 * cannot be applied. The invariant is all-or-nothing: either both legs land
 * as completed entries, or the net balance effect is zero.
 *
 * The coordinator holds every involved account lock for the full saga, so
 * no other mutation can observe the half-applied intermediate state.
 *
 * @dependencies
 * - context, errors, fmt: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal.
 * - internal/domain.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jasho/wallet-service/internal/domain"
	"github.com/jasho/wallet-service/internal/store"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRecipient = errors.New("recipient must differ from sender")
	ErrSameCurrency     = errors.New("conversion currencies must differ")
	ErrInvalidRate      = errors.New("conversion rate must be greater than zero")
	ErrRateUnavailable  = errors.New("conversion rate unavailable")
)

// TransferResult carries both settled legs of a transfer. Replayed reports a
// retried client reference: the legs come from the original saga and no money
// moved on this call.
type TransferResult struct {
	DebitEntry  *domain.LedgerEntry `json:"debit_entry"`
	CreditEntry *domain.LedgerEntry `json:"credit_entry"`
	Replayed    bool                `json:"-"`
}

// ConversionResult carries both settled legs of a conversion plus the rate
// that was applied.
type ConversionResult struct {
	DebitEntry      *domain.LedgerEntry `json:"debit_entry"`
	CreditEntry     *domain.LedgerEntry `json:"credit_entry"`
	Rate            decimal.Decimal     `json:"rate"`
	ConvertedAmount decimal.Decimal     `json:"converted_amount"`
	Replayed        bool                `json:"-"`
}

// RateSource quotes the to-currency-per-from-currency exchange rate.
type RateSource interface {
	Rate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error)
}

// Coordinator runs the two-leg transfer and conversion sagas on top of the
// ledger.
type Coordinator struct {
	ledger *Ledger
	rates  RateSource
}

// NewCoordinator creates the saga coordinator. rates may be nil, in which
// case conversions require a client-supplied rate.
func NewCoordinator(ledger *Ledger, rates RateSource) *Coordinator {
	return &Coordinator{ledger: ledger, rates: rates}
}

// Transfer moves amount from sender to recipient in one currency. Both
// entries share a link id in RelatedEntryID so either leg resolves to the
// other. Self-transfers are rejected outright.
func (c *Coordinator) Transfer(ctx context.Context, senderID, recipientID uuid.UUID, amount decimal.Decimal, currency, description, reference string) (*TransferResult, error) {
	if senderID == recipientID {
		return nil, ErrInvalidRecipient
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	unlock := c.ledger.locks.lockMany(senderID, recipientID)
	defer unlock()

	link := uuid.New()

	debit, replayed, err := c.ledger.append(ctx, senderID, domain.EntryTransfer, domain.DirectionDebit,
		amount, currency, description, reference, &recipientID, &link)
	if err != nil {
		return nil, err
	}
	if replayed {
		// Retried reference: the saga already ran. Resolve the credit leg it
		// settled instead of crediting the recipient a second time.
		credit, err := c.linkedLeg(ctx, recipientID, debit, domain.DirectionCredit)
		if err != nil {
			return nil, fmt.Errorf("resolving credit leg of replayed transfer %s: %w", debit.ID, err)
		}
		return &TransferResult{DebitEntry: debit, CreditEntry: credit, Replayed: true}, nil
	}

	credit, _, err := c.ledger.append(ctx, recipientID, domain.EntryTransfer, domain.DirectionCredit,
		amount, currency, description, "", &senderID, &link)
	if err != nil {
		log.Printf("level=warn component=coordinator msg=\"transfer credit leg failed; compensating\" sender_id=%s recipient_id=%s err=%v", senderID, recipientID, err)
		if compErr := c.ledger.compensate(ctx, debit); compErr != nil {
			// The debit stands with no matching credit; this needs operator
			// attention, so log loudly and surface the original failure.
			log.Printf("level=error component=coordinator msg=\"transfer compensation failed\" debit_entry_id=%s err=%v", debit.ID, compErr)
		}
		return nil, err
	}

	return &TransferResult{DebitEntry: debit, CreditEntry: credit}, nil
}

// Convert exchanges amount from one of the user's currency buckets into
// another at the given rate (to-per-from). A zero rate is resolved through
// the rate source. The converted amount is amount * rate.
func (c *Coordinator) Convert(ctx context.Context, userID uuid.UUID, fromCurrency, toCurrency string, amount, rate decimal.Decimal, reference string) (*ConversionResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	from, err := c.ledger.NormalizeCurrency(fromCurrency)
	if err != nil {
		return nil, err
	}
	to, err := c.ledger.NormalizeCurrency(toCurrency)
	if err != nil {
		return nil, err
	}
	if from == to {
		return nil, ErrSameCurrency
	}

	rate, err = c.resolveRate(ctx, from, to, rate)
	if err != nil {
		return nil, err
	}
	converted := amount.Mul(rate).Round(2)
	if !converted.IsPositive() {
		return nil, ErrInvalidRate
	}

	unlock := c.ledger.locks.lock(userID)
	defer unlock()

	link := uuid.New()
	description := fmt.Sprintf("convert %s %s to %s at %s", amount, from, to, rate)

	debit, replayed, err := c.ledger.append(ctx, userID, domain.EntryConvert, domain.DirectionDebit,
		amount, from, description, reference, nil, &link)
	if err != nil {
		return nil, err
	}
	if replayed {
		credit, err := c.linkedLeg(ctx, userID, debit, domain.DirectionCredit)
		if err != nil {
			return nil, fmt.Errorf("resolving credit leg of replayed conversion %s: %w", debit.ID, err)
		}
		// Report the rate the original saga settled at, not this call's quote.
		return &ConversionResult{
			DebitEntry:      debit,
			CreditEntry:     credit,
			Rate:            credit.Amount.DivRound(debit.Amount, 8),
			ConvertedAmount: credit.Amount,
			Replayed:        true,
		}, nil
	}

	credit, _, err := c.ledger.append(ctx, userID, domain.EntryConvert, domain.DirectionCredit,
		converted, to, description, "", nil, &link)
	if err != nil {
		log.Printf("level=warn component=coordinator msg=\"conversion credit leg failed; compensating\" user_id=%s err=%v", userID, err)
		if compErr := c.ledger.compensate(ctx, debit); compErr != nil {
			log.Printf("level=error component=coordinator msg=\"conversion compensation failed\" debit_entry_id=%s err=%v", debit.ID, compErr)
		}
		return nil, err
	}

	return &ConversionResult{
		DebitEntry:      debit,
		CreditEntry:     credit,
		Rate:            rate,
		ConvertedAmount: converted,
	}, nil
}

// linkedLeg resolves the other completed leg of a settled saga through the
// link id both legs share.
func (c *Coordinator) linkedLeg(ctx context.Context, userID uuid.UUID, entry *domain.LedgerEntry, direction domain.EntryDirection) (*domain.LedgerEntry, error) {
	if entry.RelatedEntryID == nil {
		return nil, store.ErrEntryNotFound
	}
	return c.ledger.repo.FindEntryByRelated(ctx, userID, *entry.RelatedEntryID, direction)
}

func (c *Coordinator) resolveRate(ctx context.Context, from, to string, rate decimal.Decimal) (decimal.Decimal, error) {
	if rate.IsPositive() {
		return rate, nil
	}
	if !rate.IsZero() {
		return decimal.Zero, ErrInvalidRate
	}
	if c.rates == nil {
		return decimal.Zero, ErrRateUnavailable
	}
	quoted, err := c.rates.Rate(ctx, from, to)
	if err != nil {
		log.Printf("level=warn component=coordinator msg=\"rate lookup failed\" from=%s to=%s err=%v", from, to, err)
		return decimal.Zero, ErrRateUnavailable
	}
	if !quoted.IsPositive() {
		return decimal.Zero, ErrRateUnavailable
	}
	return quoted, nil
}
