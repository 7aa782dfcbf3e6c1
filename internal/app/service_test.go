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

func testService(repo *memRepo) *Service {
	ledger := testLedger(repo)
	gate := testGate(repo)
	coordinator := NewCoordinator(ledger, nil)
	credit := NewCreditEngine(repo, nil, 600)
	return NewService(repo, ledger, gate, coordinator, credit, nil, nil, nil)
}

func TestWithdrawRequiresPIN(t *testing.T) {
	repo := newMemRepo()
	service := testService(repo)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := service.Deposit(ctx, userID, domain.DepositRequest{Amount: decimal.NewFromInt(1000), Currency: "KES"}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	_, err := service.Withdraw(ctx, userID, domain.WithdrawRequest{Amount: decimal.NewFromInt(100), Currency: "KES", PIN: "1234"})
	if !errors.Is(err, store.ErrPINNotSet) {
		t.Fatalf("expected ErrPINNotSet, got %v", err)
	}
}

func TestWithdrawFlowEnforcesGateBeforeLedger(t *testing.T) {
	repo := newMemRepo()
	service := testService(repo)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := service.Deposit(ctx, userID, domain.DepositRequest{Amount: decimal.NewFromInt(60000), Currency: "KES"}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := service.SetPIN(ctx, userID, "1234"); err != nil {
		t.Fatalf("set pin failed: %v", err)
	}

	// Wrong PIN: nothing moves.
	if _, err := service.Withdraw(ctx, userID, domain.WithdrawRequest{Amount: decimal.NewFromInt(100), Currency: "KES", PIN: "0000"}); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected ErrInvalidPIN, got %v", err)
	}
	balance, _ := repo.GetBalance(ctx, userID, "KES")
	if !balance.Equal(decimal.NewFromInt(60000)) {
		t.Fatalf("expected untouched balance, got %s", balance)
	}

	// Over the 50000 daily withdrawal cap: rejected before the ledger.
	if _, err := service.Withdraw(ctx, userID, domain.WithdrawRequest{Amount: decimal.NewFromInt(55000), Currency: "KES", PIN: "1234"}); !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("expected ErrDailyLimitExceeded, got %v", err)
	}

	// Within cap and balance: succeeds and records usage.
	entry, err := service.Withdraw(ctx, userID, domain.WithdrawRequest{Amount: decimal.NewFromInt(30000), Currency: "KES", PIN: "1234"})
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if entry.Type != domain.EntryWithdrawal {
		t.Fatalf("unexpected entry type %s", entry.Type)
	}

	// Remaining cap is 20000; 25000 must be rejected even though the
	// balance covers it.
	if _, err := service.Withdraw(ctx, userID, domain.WithdrawRequest{Amount: decimal.NewFromInt(25000), Currency: "KES", PIN: "1234"}); !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("expected ErrDailyLimitExceeded on second withdrawal, got %v", err)
	}
}

func TestWithdrawRetryDoesNotDoubleCountUsage(t *testing.T) {
	repo := newMemRepo()
	service := testService(repo)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := service.Deposit(ctx, userID, domain.DepositRequest{Amount: decimal.NewFromInt(60000), Currency: "KES"}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := service.SetPIN(ctx, userID, "1234"); err != nil {
		t.Fatalf("set pin failed: %v", err)
	}

	req := domain.WithdrawRequest{Amount: decimal.NewFromInt(30000), Currency: "KES", PIN: "1234", Reference: "wd-001"}
	first, err := service.Withdraw(ctx, userID, req)
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	second, err := service.Withdraw(ctx, userID, req)
	if err != nil {
		t.Fatalf("retried withdraw failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("expected the original entry on retry")
	}

	balance, _ := repo.GetBalance(ctx, userID, "KES")
	if !balance.Equal(decimal.NewFromInt(30000)) {
		t.Fatalf("expected balance 30000 after retry, got %s", balance)
	}
	usage, _ := repo.GetDailyUsage(ctx, userID, "KES", domain.OpWithdrawal)
	if usage == nil || !usage.Amount.Equal(decimal.NewFromInt(30000)) {
		t.Fatalf("expected withdrawal usage 30000 after retry, got %+v", usage)
	}
}

func TestFailedWithdrawReleasesDailyBudget(t *testing.T) {
	repo := newMemRepo()
	service := testService(repo)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := service.Deposit(ctx, userID, domain.DepositRequest{Amount: decimal.NewFromInt(100), Currency: "KES"}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := service.SetPIN(ctx, userID, "1234"); err != nil {
		t.Fatalf("set pin failed: %v", err)
	}

	// Under the cap but over the balance: the ledger rejects it, and the
	// budget it reserved must come back.
	if _, err := service.Withdraw(ctx, userID, domain.WithdrawRequest{Amount: decimal.NewFromInt(500), Currency: "KES", PIN: "1234"}); !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	usage, _ := repo.GetDailyUsage(ctx, userID, "KES", domain.OpWithdrawal)
	if usage != nil && !usage.Amount.IsZero() {
		t.Fatalf("expected no usage after failed withdrawal, got %+v", usage)
	}
}

func TestTransferRetryKeepsBalancesAndUsage(t *testing.T) {
	repo := newMemRepo()
	service := testService(repo)
	ctx := context.Background()
	sender := uuid.New()
	recipient := uuid.New()

	if _, err := service.Deposit(ctx, sender, domain.DepositRequest{Amount: decimal.NewFromInt(1000), Currency: "KES"}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := service.SetPIN(ctx, sender, "1234"); err != nil {
		t.Fatalf("set pin failed: %v", err)
	}

	req := domain.TransferRequest{
		RecipientUserID: recipient,
		Amount:          decimal.NewFromInt(400),
		Currency:        "KES",
		Reference:       "xfer-001",
		PIN:             "1234",
	}
	first, err := service.Transfer(ctx, sender, req)
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	second, err := service.Transfer(ctx, sender, req)
	if err != nil {
		t.Fatalf("retried transfer failed: %v", err)
	}
	if second.DebitEntry.ID != first.DebitEntry.ID || second.CreditEntry.ID != first.CreditEntry.ID {
		t.Fatal("expected the original legs on retry")
	}

	senderBalance, _ := repo.GetBalance(ctx, sender, "KES")
	recipientBalance, _ := repo.GetBalance(ctx, recipient, "KES")
	if !senderBalance.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("expected sender balance 600 after retry, got %s", senderBalance)
	}
	if !recipientBalance.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected recipient balance 400 after retry, got %s", recipientBalance)
	}
	usage, _ := repo.GetDailyUsage(ctx, sender, "KES", domain.OpTransfer)
	if usage == nil || !usage.Amount.Equal(decimal.NewFromInt(400)) {
		t.Fatalf("expected transfer usage 400 after retry, got %+v", usage)
	}
}

func TestTransferFlowRejectsSelfBeforePINCheck(t *testing.T) {
	repo := newMemRepo()
	service := testService(repo)
	userID := uuid.New()

	_, err := service.Transfer(context.Background(), userID, domain.TransferRequest{
		RecipientUserID: userID,
		Amount:          decimal.NewFromInt(10),
		Currency:        "KES",
		PIN:             "1234",
	})
	if !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
}

func TestTransferFlowEndToEnd(t *testing.T) {
	repo := newMemRepo()
	service := testService(repo)
	ctx := context.Background()
	sender := uuid.New()
	recipient := uuid.New()

	if _, err := service.Deposit(ctx, sender, domain.DepositRequest{Amount: decimal.NewFromInt(5000), Currency: "KES"}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := service.SetPIN(ctx, sender, "1234"); err != nil {
		t.Fatalf("set pin failed: %v", err)
	}

	result, err := service.Transfer(ctx, sender, domain.TransferRequest{
		RecipientUserID: recipient,
		Amount:          decimal.NewFromInt(2000),
		Currency:        "KES",
		Description:     "boda fare split",
		PIN:             "1234",
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	senderBalance, _ := repo.GetBalance(ctx, sender, "KES")
	recipientBalance, _ := repo.GetBalance(ctx, recipient, "KES")
	if !senderBalance.Equal(decimal.NewFromInt(3000)) || !recipientBalance.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("unexpected balances: sender=%s recipient=%s", senderBalance, recipientBalance)
	}

	// Usage recorded against the sender's transfer cap.
	usage, _ := repo.GetDailyUsage(ctx, sender, "KES", domain.OpTransfer)
	if usage == nil || !usage.Amount.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("expected transfer usage 2000, got %+v", usage)
	}
	if result.DebitEntry.Status != domain.EntryCompleted || result.CreditEntry.Status != domain.EntryCompleted {
		t.Fatal("expected both legs completed")
	}
}

func TestWalletSummaryAggregatesState(t *testing.T) {
	repo := newMemRepo()
	service := testService(repo)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := service.Deposit(ctx, userID, domain.DepositRequest{Amount: decimal.NewFromInt(100), Currency: "KES"}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := service.Deposit(ctx, userID, domain.DepositRequest{Amount: decimal.NewFromInt(5), Currency: "USD"}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if err := service.SetPIN(ctx, userID, "1234"); err != nil {
		t.Fatalf("set pin failed: %v", err)
	}

	summary, err := service.WalletSummary(ctx, userID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if !summary.HasPIN || summary.IsPINLocked {
		t.Fatalf("unexpected pin state: %+v", summary)
	}
	if !summary.Balances["KES"].Equal(decimal.NewFromInt(100)) || !summary.Balances["USD"].Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unexpected balances: %+v", summary.Balances)
	}
}

func TestTransactionByIDHidesOtherUsersEntries(t *testing.T) {
	repo := newMemRepo()
	service := testService(repo)
	ctx := context.Background()
	owner := uuid.New()
	other := uuid.New()

	entry, err := service.Deposit(ctx, owner, domain.DepositRequest{Amount: decimal.NewFromInt(100), Currency: "KES"})
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	if _, err := service.TransactionByID(ctx, owner, entry.ID); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if _, err := service.TransactionByID(ctx, other, entry.ID); !errors.Is(err, store.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound for foreign entry, got %v", err)
	}
}

func TestConsumerRecordsLoanEventAndRecalculates(t *testing.T) {
	repo := newMemRepo()
	credit := NewCreditEngine(repo, nil, 600)
	consumer := NewLoanRepaymentConsumer(credit)
	userID := uuid.New()

	body := []byte(`{"event_id":"` + uuid.NewString() + `","user_id":"` + userID.String() + `","outcome":"on_time","amount":"1500","currency_code":"KES","occurred_at":"` + time.Now().UTC().Format(time.RFC3339) + `"}`)
	if !consumer.HandleMessage(body) {
		t.Fatal("expected message to be acknowledged")
	}

	if len(repo.loanEvents) != 1 {
		t.Fatalf("expected 1 loan event, got %d", len(repo.loanEvents))
	}
	if repo.loanEvents[0].Outcome != domain.RepaymentOnTime {
		t.Fatalf("unexpected outcome %s", repo.loanEvents[0].Outcome)
	}
	profile, err := credit.Profile(context.Background(), userID)
	if err != nil {
		t.Fatalf("profile failed: %v", err)
	}
	if len(profile.ScoreHistory) < 2 {
		t.Fatalf("expected recalculation snapshot after event, got %d", len(profile.ScoreHistory))
	}
}

func TestConsumerDropsMalformedPayloads(t *testing.T) {
	consumer := NewLoanRepaymentConsumer(NewCreditEngine(newMemRepo(), nil, 600))

	if !consumer.HandleMessage([]byte("not json")) {
		t.Fatal("malformed payload should be acknowledged, not re-queued")
	}
	if !consumer.HandleMessage([]byte(`{"outcome":"on_time"}`)) {
		t.Fatal("payload without user id should be acknowledged")
	}
}
