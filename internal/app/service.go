/**
 * @description
 * This file contains the core business logic facade for the wallet-service.
 * The `Service` struct orchestrates the currency ledger, the security gate,
 * the transfer/conversion coordinator, and the credit scoring engine, and
 * publishes events to RabbitMQ after every settled money movement.
 *
 * Key features:
 * - Wallet use cases: deposit, withdraw, transfer, convert, balance, history.
 * - PIN-gated outbound flows: withdraw, transfer, and convert all verify the
 *   transaction PIN and (where capped) the rolling daily limit before any
 *   ledger mutation is attempted.
 * - Credit scoring: profile reads, recalculation, factor breakdown, and loan
 *   eligibility checks delegate to the scoring engine.
 * - Publishes events asynchronously; a publish failure never rolls back an
 *   applied ledger mutation.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jasho/wallet-service/internal/domain"
	"github.com/jasho/wallet-service/internal/store"
	"github.com/jasho/wallet-service/pkg/rabbitmq"
	"github.com/shopspring/decimal"
)

const eventsExchange = "jasho.events"

// ErrRateLimited is returned when a Redis window for the caller is exhausted.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig caps requests per subject inside a fixed window.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// Service provides the core business logic for the wallet and credit engine.
type Service struct {
	repo          store.Repository
	ledger        *Ledger
	gate          *SecurityGate
	coordinator   *Coordinator
	credit        *CreditEngine
	eventProducer rabbitmq.Publisher
	rateLimiter   *RedisRateLimiter
	rateLimits    map[string]RateLimitConfig
}

// NewService creates a new wallet service instance. producer and limiter may
// be nil; both degrade to no-ops.
func NewService(
	repo store.Repository,
	ledger *Ledger,
	gate *SecurityGate,
	coordinator *Coordinator,
	credit *CreditEngine,
	producer rabbitmq.Publisher,
	limiter *RedisRateLimiter,
	rateLimits map[string]RateLimitConfig,
) *Service {
	return &Service{
		repo:          repo,
		ledger:        ledger,
		gate:          gate,
		coordinator:   coordinator,
		credit:        credit,
		eventProducer: producer,
		rateLimiter:   limiter,
		rateLimits:    rateLimits,
	}
}

// ConsumeRateLimit enforces the named scope's window for the subject. It
// returns the retry-after horizon in seconds alongside ErrRateLimited when
// the window is exhausted. Unknown scopes and limiter outages are open:
// availability over strictness for everything except the PIN itself, which
// has its own lockout.
func (s *Service) ConsumeRateLimit(ctx context.Context, scope, subject string) (int, error) {
	cfg, ok := s.rateLimits[scope]
	if !ok || s.rateLimiter == nil {
		return 0, nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, scope, subject, cfg.Limit, cfg.Window)
	if err != nil {
		log.Printf("level=warn component=service msg=\"rate limiter unavailable; failing open\" scope=%s err=%v", scope, err)
		return 0, nil
	}
	if count > cfg.Limit {
		return retryAfter, ErrRateLimited
	}
	return 0, nil
}

// Deposit credits the user's wallet. Deposits are not PIN-gated but do count
// against the deposit daily limit.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, req domain.DepositRequest) (*domain.LedgerEntry, error) {
	currency, err := s.ledger.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	consumed, err := s.gate.ConsumeDailyLimit(ctx, userID, req.Amount, currency, domain.OpDeposit)
	if err != nil {
		return nil, err
	}

	entry, replayed, err := s.ledger.Deposit(ctx, userID, req.Amount, currency, req.Description, req.Reference)
	if err != nil || replayed {
		// Nothing moved on this call; hand the reservation back. A replay
		// already counted when the original request landed.
		s.releaseDailyLimit(ctx, consumed, userID, req.Amount, currency, domain.OpDeposit)
	}
	if err != nil {
		return nil, err
	}
	if !replayed {
		s.publishTransactionCompleted(ctx, entry)
	}
	return entry, nil
}

// Withdraw debits the user's wallet after PIN verification and the daily
// withdrawal limit check.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, req domain.WithdrawRequest) (*domain.LedgerEntry, error) {
	currency, err := s.ledger.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	if err := s.verifyPINForSpend(ctx, userID, req.PIN); err != nil {
		return nil, err
	}
	consumed, err := s.gate.ConsumeDailyLimit(ctx, userID, req.Amount, currency, domain.OpWithdrawal)
	if err != nil {
		return nil, err
	}

	entry, replayed, err := s.ledger.Withdraw(ctx, userID, req.Amount, currency, req.Description, req.Reference)
	if err != nil || replayed {
		s.releaseDailyLimit(ctx, consumed, userID, req.Amount, currency, domain.OpWithdrawal)
	}
	if err != nil {
		return nil, err
	}
	if !replayed {
		s.publishTransactionCompleted(ctx, entry)
	}
	return entry, nil
}

// Transfer moves money between two users, PIN-gated and capped by the
// sender's daily transfer limit.
func (s *Service) Transfer(ctx context.Context, senderID uuid.UUID, req domain.TransferRequest) (*TransferResult, error) {
	currency, err := s.ledger.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	if senderID == req.RecipientUserID {
		return nil, ErrInvalidRecipient
	}
	if err := s.verifyPINForSpend(ctx, senderID, req.PIN); err != nil {
		return nil, err
	}
	consumed, err := s.gate.ConsumeDailyLimit(ctx, senderID, req.Amount, currency, domain.OpTransfer)
	if err != nil {
		return nil, err
	}

	result, err := s.coordinator.Transfer(ctx, senderID, req.RecipientUserID, req.Amount, currency, req.Description, req.Reference)
	if err != nil {
		s.releaseDailyLimit(ctx, consumed, senderID, req.Amount, currency, domain.OpTransfer)
		return nil, err
	}
	if result.Replayed {
		s.releaseDailyLimit(ctx, consumed, senderID, req.Amount, currency, domain.OpTransfer)
	}
	if !result.Replayed {
		s.publishTransactionCompleted(ctx, result.DebitEntry)
		s.publishTransactionCompleted(ctx, result.CreditEntry)
	}
	return result, nil
}

// Convert exchanges between two of the user's currency buckets, PIN-gated.
// Conversions move money within one wallet, so no daily limit applies.
func (s *Service) Convert(ctx context.Context, userID uuid.UUID, req domain.ConvertRequest) (*ConversionResult, error) {
	if err := s.verifyPINForSpend(ctx, userID, req.PIN); err != nil {
		return nil, err
	}

	result, err := s.coordinator.Convert(ctx, userID, req.FromCurrency, req.ToCurrency, req.Amount, req.Rate, req.Reference)
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		s.publishTransactionCompleted(ctx, result.DebitEntry)
		s.publishTransactionCompleted(ctx, result.CreditEntry)
	}
	return result, nil
}

// releaseDailyLimit hands a consumed reservation back, logging instead of
// failing: the caller is already on an error or replay path.
func (s *Service) releaseDailyLimit(ctx context.Context, consumed bool, userID uuid.UUID, amount decimal.Decimal, currency string, op domain.OperationType) {
	if !consumed {
		return
	}
	if err := s.gate.ReleaseDailyLimit(ctx, userID, amount, currency, op); err != nil {
		log.Printf("level=warn component=service msg=\"daily limit release failed\" user_id=%s op=%s err=%v", userID, op, err)
	}
}

// SetPIN configures or replaces the user's transaction PIN.
func (s *Service) SetPIN(ctx context.Context, userID uuid.UUID, pin string) error {
	return s.gate.SetPIN(ctx, userID, pin)
}

// VerifyPIN checks the PIN without moving money; the API exposes it so
// clients can pre-validate before a spend flow.
func (s *Service) VerifyPIN(ctx context.Context, userID uuid.UUID, pin string) (*PINVerification, error) {
	return s.gate.VerifyPIN(ctx, userID, pin)
}

// WalletSummary aggregates balances, PIN state, and daily usage for
// GET /wallet/balance.
func (s *Service) WalletSummary(ctx context.Context, userID uuid.UUID) (*domain.WalletSummary, error) {
	balances, err := s.ledger.Balances(ctx, userID)
	if err != nil {
		return nil, err
	}
	hasPIN, err := s.gate.HasPIN(ctx, userID)
	if err != nil {
		return nil, err
	}
	locked, err := s.gate.IsLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	usage, err := s.gate.DailyUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &domain.WalletSummary{
		Balances:    make(map[string]decimal.Decimal, len(balances)),
		HasPIN:      hasPIN,
		IsPINLocked: locked,
		DailyUsage:  usage,
	}
	for _, b := range balances {
		summary.Balances[b.Currency] = b.Amount
	}
	return summary, nil
}

// Balance returns the user's balance in one currency.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID, currency string) (decimal.Decimal, error) {
	return s.ledger.GetBalance(ctx, userID, currency)
}

// Transactions returns a page of the user's ledger history, newest first.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.LedgerEntry, error) {
	return s.ledger.History(ctx, userID, opts)
}

// TransactionByID returns one of the user's own ledger entries. An entry
// owned by another user is indistinguishable from a missing one.
func (s *Service) TransactionByID(ctx context.Context, userID, entryID uuid.UUID) (*domain.LedgerEntry, error) {
	entry, err := s.repo.FindEntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, store.ErrEntryNotFound
	}
	return entry, nil
}

// CreditProfile returns the user's credit profile, creating a floor-score
// profile on first access.
func (s *Service) CreditProfile(ctx context.Context, userID uuid.UUID) (*domain.CreditProfile, error) {
	return s.credit.Profile(ctx, userID)
}

// RecalculateScore recomputes the user's credit score from current inputs.
func (s *Service) RecalculateScore(ctx context.Context, userID uuid.UUID) (*domain.RecalculateResult, error) {
	return s.credit.Recalculate(ctx, userID)
}

// CreditFactors returns the live normalized factor breakdown.
func (s *Service) CreditFactors(ctx context.Context, userID uuid.UUID) (*domain.CreditFactors, error) {
	return s.credit.Factors(ctx, userID)
}

// ScoreHistory returns the user's recorded score snapshots, newest first.
func (s *Service) ScoreHistory(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ScoreSnapshot, error) {
	return s.repo.ListScoreHistory(ctx, userID, limit)
}

// LoanEligibility evaluates a concrete loan amount and term against the
// user's current score envelope.
func (s *Service) LoanEligibility(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, termMonths int) (*domain.LoanEligibilityResult, error) {
	return s.credit.EvaluateLoanEligibility(ctx, userID, amount, termMonths)
}

// verifyPINForSpend runs PIN verification for an outbound money movement.
// A missing PIN is surfaced as store.ErrPINNotSet so the API can tell the
// client to configure one first.
func (s *Service) verifyPINForSpend(ctx context.Context, userID uuid.UUID, pin string) error {
	verification, err := s.gate.VerifyPIN(ctx, userID, pin)
	if err != nil {
		return err
	}
	if !verification.Verified {
		return ErrInvalidPIN
	}
	return nil
}

func (s *Service) publishTransactionCompleted(ctx context.Context, entry *domain.LedgerEntry) {
	if s.eventProducer == nil || entry == nil {
		return
	}
	payload := domain.TransactionCompletedPayload{
		EntryID:        entry.ID,
		UserID:         entry.UserID,
		Type:           entry.Type,
		Direction:      entry.Direction,
		Amount:         entry.Amount,
		Currency:       entry.Currency,
		CounterpartyID: entry.CounterpartyUserID,
		Timestamp:      entry.CreatedAt,
	}
	routingKey := "wallet.transaction.completed"
	if err := s.eventProducer.Publish(ctx, eventsExchange, routingKey, payload); err != nil {
		log.Printf("level=warn component=service msg=\"event publish failed\" routing_key=%s entry_id=%s err=%v", routingKey, entry.ID, err)
	}
}
