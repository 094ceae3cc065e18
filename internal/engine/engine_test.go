package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/fraud"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/locking"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models/events"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/notify"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TransactionCompleted
	keys   []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(events.TransactionCompleted))
	p.keys = append(p.keys, key)
	return nil
}

type fixture struct {
	store     *memory.Store
	engine    *Engine
	publisher *recordingPublisher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := memory.NewStore()
	router := notify.NewRouter(store, store, notify.NewResolver(store, store))
	pub := &recordingPublisher{}
	all := append([]Option{
		WithClock(func() time.Time { return now }),
		WithPublisher(pub, "txn-events"),
	}, opts...)
	return &fixture{
		store:     store,
		engine:    NewEngine(store, locking.NewMutexes(), router, all...),
		publisher: pub,
	}
}

func (f *fixture) account(t *testing.T, id, name, balance string) {
	t.Helper()
	require.NoError(t, f.store.SaveAccount(context.Background(), models.Account{
		ID: id, HolderName: name, AccountNumber: "ACC-" + id, Balance: dec(balance),
	}))
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	b, err := f.engine.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) notifications(t *testing.T, id string) []models.Notification {
	t.Helper()
	ns, err := f.store.ListNotifications(context.Background(), id, false)
	require.NoError(t, err)
	return ns
}

func (f *fixture) history(t *testing.T, senderID, description, amount string, at time.Time) {
	t.Helper()
	require.NoError(t, f.store.SaveTransaction(context.Background(), models.Transaction{
		ID: fmt.Sprintf("seed-%s-%d", senderID, at.Unix()), SenderID: senderID, Amount: dec(amount),
		Type: models.TypeWithdrawal, Status: models.StatusCompleted, Description: description, Timestamp: at,
	}))
}

func TestTransferCompletes(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "500.00")
	f.account(t, "bob", "Bob", "50.00")

	tx, err := f.engine.Transfer(context.Background(), "alice", "bob", dec("200.00"), "Rent share")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, tx.Status)
	assert.True(t, f.balance(t, "alice").Equal(dec("300.00")))
	assert.True(t, f.balance(t, "bob").Equal(dec("250.00")))
	require.True(t, tx.BalanceAfter.Valid)
	assert.True(t, tx.BalanceAfter.Decimal.Equal(dec("300.00")))
	assert.Regexp(t, regexp.MustCompile(`^TXN[0-9A-F]{8}$`), tx.ReferenceNumber)
	assert.Equal(t, now, tx.Timestamp)

	stored, err := f.engine.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)

	senderNotes := f.notifications(t, "alice")
	require.Len(t, senderNotes, 1)
	assert.Equal(t, "Transfer of 200.00 was completed", senderNotes[0].Message)
	assert.Equal(t, tx.ID, senderNotes[0].ReferenceID)

	recipientNotes := f.notifications(t, "bob")
	require.Len(t, recipientNotes, 1)
	assert.Equal(t, "You received 200.00 from Alice", recipientNotes[0].Message)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, tx.ID, f.publisher.events[0].TransactionID)
	assert.True(t, f.publisher.events[0].BalanceAfter.Equal(dec("300.00")))
	assert.Equal(t, []string{"alice"}, f.publisher.keys)
}

func TestTransferInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "100.00")
	f.account(t, "bob", "Bob", "0")

	tx, err := f.engine.Transfer(context.Background(), "alice", "bob", dec("150.00"), "Laptop")
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, tx.Status)
	assert.Equal(t, models.InsufficientFundsDescription, tx.Description)
	assert.False(t, tx.BalanceAfter.Valid)
	assert.True(t, f.balance(t, "alice").Equal(dec("100.00")))
	assert.True(t, f.balance(t, "bob").IsZero())

	notes := f.notifications(t, "alice")
	require.Len(t, notes, 1)
	assert.Equal(t, models.SeverityWarning, notes[0].Severity)
	assert.Equal(t, models.CategoryTransaction, notes[0].Category)
	assert.Empty(t, f.notifications(t, "bob"))
	assert.Empty(t, f.publisher.events)

	stored, err := f.engine.GetTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
}

func TestTransferFlaggedForUnusualAmount(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "1000.00")
	f.account(t, "bob", "Bob", "0")
	f.history(t, "alice", "Coffee", "20.00", now.AddDate(0, 0, -10))

	tx, err := f.engine.Transfer(context.Background(), "alice", "bob", dec("100.00"), "Gift")
	require.NoError(t, err)

	assert.Equal(t, models.StatusFlagged, tx.Status)
	assert.True(t, tx.IsFraudSuspected)
	assert.Equal(t, fraud.ReasonUnusualAmount, tx.FraudReason)
	assert.True(t, f.balance(t, "alice").Equal(dec("1000.00")))
	assert.True(t, f.balance(t, "bob").IsZero())

	notes := f.notifications(t, "alice")
	require.Len(t, notes, 1)
	assert.Equal(t, models.CategorySecurity, notes[0].Category)
	assert.Equal(t, models.SeverityCritical, notes[0].Severity)
	assert.Equal(t, msgFlagged, notes[0].Message)
	assert.Empty(t, f.notifications(t, "bob"))
}

func TestRecurringDetection(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "100.00")
	f.history(t, "alice", "Netflix", "15.99", now.AddDate(0, 0, -45))
	f.history(t, "alice", "Netflix", "15.99", now.AddDate(0, 0, -15))

	tx, err := f.engine.Withdraw(context.Background(), "alice", dec("15.99"), "Netflix")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, tx.Status)
	assert.True(t, tx.IsRecurring)
	assert.Equal(t, models.RecurringMonthly, tx.RecurringPattern)
	assert.Equal(t, "ENTERTAINMENT", tx.Category)
	assert.Equal(t, "Netflix", tx.MerchantName)
}

func TestRecurringIgnoresOldMatches(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "100.00")
	f.history(t, "alice", "Netflix", "15.99", now.AddDate(0, -3, 0))
	f.history(t, "alice", "Netflix", "15.99", now.AddDate(0, 0, -15))

	tx, err := f.engine.Withdraw(context.Background(), "alice", dec("15.99"), "Netflix")
	require.NoError(t, err)
	assert.False(t, tx.IsRecurring)
}

func TestDepositAndWithdraw(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "10.00")

	tx, err := f.engine.Deposit(context.Background(), "alice", dec("40.00"), "Salary")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, tx.Status)
	assert.True(t, tx.BalanceAfter.Decimal.Equal(dec("50.00")))

	tx, err = f.engine.Withdraw(context.Background(), "alice", dec("60.00"), "ATM")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, tx.Status)
	assert.True(t, f.balance(t, "alice").Equal(dec("50.00")))

	tx, err = f.engine.Withdraw(context.Background(), "alice", dec("50.00"), "ATM")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, tx.Status)
	assert.True(t, f.balance(t, "alice").IsZero())
}

func TestExecuteValidation(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "100.00")
	f.account(t, "bob", "Bob", "0")

	cases := map[string]Request{
		"zero amount":       {SenderID: "alice", RecipientID: "bob", Amount: decimal.Zero, Type: models.TypeTransfer},
		"negative amount":   {SenderID: "alice", RecipientID: "bob", Amount: dec("-5"), Type: models.TypeTransfer},
		"missing recipient": {SenderID: "alice", Amount: dec("5"), Type: models.TypeTransfer},
		"self transfer":     {SenderID: "alice", RecipientID: "alice", Amount: dec("5"), Type: models.TypeTransfer},
		"unknown type":      {SenderID: "alice", Amount: dec("5"), Type: "REFUND"},
		"deposit recipient": {SenderID: "alice", RecipientID: "bob", Amount: dec("5"), Type: models.TypeDeposit},
		"missing sender":    {RecipientID: "bob", Amount: dec("5"), Type: models.TypeTransfer},
		"sub-cent amount":   {SenderID: "alice", Amount: dec("1.005"), Type: models.TypeWithdrawal},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.Execute(context.Background(), req)
			assert.ErrorIs(t, err, ErrValidation)
			assert.False(t, IsRetryable(err))
		})
	}

	all, err := f.store.FindWithFilter(context.Background(), models.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.True(t, f.balance(t, "alice").Equal(dec("100.00")))
}

func TestExecuteUnknownAccounts(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "100.00")

	_, err := f.engine.Transfer(context.Background(), "ghost", "alice", dec("1"), "x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.Transfer(context.Background(), "alice", "ghost", dec("1"), "x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.GetBalance(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.True(t, f.balance(t, "alice").Equal(dec("100.00")))
	assert.Empty(t, f.notifications(t, "alice"))
}

func TestDispute(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "500.00")
	f.account(t, "bob", "Bob", "0")
	ctx := context.Background()

	completed, err := f.engine.Transfer(ctx, "alice", "bob", dec("10.00"), "Dinner")
	require.NoError(t, err)

	disputed, err := f.engine.Dispute(ctx, completed.ID, "  not recognised ")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDisputed, disputed.Status)
	assert.True(t, disputed.IsDisputed)
	assert.Equal(t, "not recognised", disputed.DisputeReason)
	assert.Equal(t, models.DisputePending, disputed.DisputeStatus)
	require.NotNil(t, disputed.DisputeDate)
	assert.Equal(t, now, *disputed.DisputeDate)
	assert.True(t, disputed.Amount.Equal(completed.Amount))

	notes := f.notifications(t, "alice")
	require.Len(t, notes, 2)
	assert.Equal(t, msgDisputeReceived, notes[0].Message)

	_, err = f.engine.Dispute(ctx, completed.ID, "again")
	assert.ErrorIs(t, err, ErrIllegalStateTransition)

	_, err = f.engine.Dispute(ctx, "missing", "reason")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.Dispute(ctx, completed.ID, " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDisputeRejectsNonCompleted(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		status models.TransactionStatus
	}{
		{"failed", "10.00", models.StatusFailed},
		{"flagged", "100.00", models.StatusFlagged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.account(t, "alice", "Alice", "5.00")
			f.account(t, "bob", "Bob", "0")
			f.history(t, "alice", "Coffee", "20.00", now.AddDate(0, 0, -10))
			ctx := context.Background()

			tx, err := f.engine.Transfer(ctx, "alice", "bob", dec(tc.amount), "Gift")
			require.NoError(t, err)
			require.Equal(t, tc.status, tx.Status)

			_, err = f.engine.Dispute(ctx, tx.ID, "mistake")
			assert.ErrorIs(t, err, ErrIllegalStateTransition)
			assert.False(t, IsRetryable(err))

			stored, err := f.engine.GetTransaction(ctx, tx.ID)
			require.NoError(t, err)
			assert.Equal(t, tx, stored)
			assert.False(t, stored.IsDisputed)
			assert.Nil(t, stored.DisputeDate)
		})
	}
}

func TestExecuteRejectsSubCentAmounts(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "10.00")
	f.account(t, "bob", "Bob", "0.00")
	ctx := context.Background()

	for _, amount := range []string{"0.005", "0.001", "9.999"} {
		_, err := f.engine.Transfer(ctx, "alice", "bob", dec(amount), "Split")
		assert.ErrorIs(t, err, ErrValidation, amount)
	}
	_, err := f.engine.Deposit(ctx, "bob", dec("0.001"), "Interest")
	assert.ErrorIs(t, err, ErrValidation)

	assert.True(t, f.balance(t, "alice").Equal(dec("10.00")))
	assert.True(t, f.balance(t, "bob").IsZero())
	all, err := f.store.FindWithFilter(ctx, models.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	tx, err := f.engine.Transfer(ctx, "alice", "bob", dec("0.010"), "Split")
	require.NoError(t, err, "trailing zeros beyond two places are still whole cents")
	assert.Equal(t, models.StatusCompleted, tx.Status)
}

func TestIdempotentRequestIsReplayed(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "500.00")
	f.account(t, "bob", "Bob", "0")
	ctx := context.Background()
	req := Request{
		SenderID: "alice", RecipientID: "bob", Amount: dec("200.00"),
		Type: models.TypeTransfer, Description: "Rent share", IdempotencyKey: "rent-2026-03",
	}

	first, err := f.engine.Execute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, first.Status)
	assert.False(t, first.Replayed)
	assert.Equal(t, "rent-2026-03", first.IdempotencyKey)

	second, err := f.engine.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ReferenceNumber, second.ReferenceNumber)

	assert.True(t, f.balance(t, "alice").Equal(dec("300.00")))
	assert.True(t, f.balance(t, "bob").Equal(dec("200.00")))
	assert.Len(t, f.notifications(t, "alice"), 1)
	assert.Len(t, f.notifications(t, "bob"), 1)
	assert.Len(t, f.publisher.events, 1)

	stored, err := f.engine.GetTransaction(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, stored.Replayed)

	// keys are scoped to the sender
	other, err := f.engine.Execute(ctx, Request{
		SenderID: "bob", Amount: dec("5.00"), Type: models.TypeDeposit, IdempotencyKey: "rent-2026-03",
	})
	require.NoError(t, err)
	assert.False(t, other.Replayed)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestIdempotentReplayOfFailedTransaction(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "5.00")
	ctx := context.Background()
	req := Request{SenderID: "alice", Amount: dec("10.00"), Type: models.TypeWithdrawal, IdempotencyKey: "atm-1"}

	first, err := f.engine.Execute(ctx, req)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, first.Status)

	require.NoError(t, f.store.SaveAccount(ctx, models.Account{ID: "alice", HolderName: "Alice", Balance: dec("50.00")}))

	again, err := f.engine.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, models.StatusFailed, again.Status)
	assert.True(t, f.balance(t, "alice").Equal(dec("50.00")))
	assert.Len(t, f.notifications(t, "alice"), 1)
}

func TestConcurrentIdempotentRequestsSettleOnce(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "0")
	req := Request{SenderID: "alice", Amount: dec("25.00"), Type: models.TypeDeposit, IdempotencyKey: "payroll"}

	const workers = 8
	results := make([]models.Transaction, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := f.engine.Execute(context.Background(), req)
			assert.NoError(t, err)
			results[i] = tx
		}(i)
	}
	wg.Wait()

	fresh := 0
	for _, tx := range results {
		assert.Equal(t, results[0].ID, tx.ID)
		if !tx.Replayed {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.True(t, f.balance(t, "alice").Equal(dec("25.00")))
	assert.Len(t, f.publisher.events, 1)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "500.00")
	f.account(t, "bob", "Bob", "0")
	f.account(t, "carol", "Carol", "0")
	ctx := context.Background()

	sent, err := f.engine.Transfer(ctx, "alice", "bob", dec("20.00"), "Lunch")
	require.NoError(t, err)
	received, err := f.engine.Transfer(ctx, "bob", "alice", dec("5.00"), "Coffee")
	require.NoError(t, err)
	_, err = f.engine.Deposit(ctx, "carol", dec("10.00"), "Salary")
	require.NoError(t, err)

	txs, err := f.engine.History(ctx, models.TransactionFilter{AccountID: "alice"})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	ids := []string{txs[0].ID, txs[1].ID}
	assert.ElementsMatch(t, []string{sent.ID, received.ID}, ids)

	txs, err = f.engine.History(ctx, models.TransactionFilter{AccountID: "alice", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	_, err = f.engine.History(ctx, models.TransactionFilter{AccountID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)

	low, high := dec("10"), dec("1")
	invalid := []models.TransactionFilter{
		{},
		{AccountID: "alice", Limit: -1},
		{AccountID: "alice", MinAmount: &low, MaxAmount: &high},
		{AccountID: "alice", Type: "REFUND"},
	}
	for _, filter := range invalid {
		_, err := f.engine.History(ctx, filter)
		assert.ErrorIs(t, err, ErrValidation)
	}
}

func TestRecategorize(t *testing.T) {
	f := newFixture(t)
	f.account(t, "alice", "Alice", "500.00")
	f.account(t, "bob", "Bob", "0")
	ctx := context.Background()

	tx, err := f.engine.Transfer(ctx, "alice", "bob", dec("20.00"), "Netflix")
	require.NoError(t, err)
	require.Equal(t, "ENTERTAINMENT", tx.Category)

	disputed, err := f.engine.Dispute(ctx, tx.ID, "not me")
	require.NoError(t, err)

	updated, err := f.engine.Recategorize(ctx, tx.ID, " shopping ")
	require.NoError(t, err)
	assert.Equal(t, "SHOPPING", updated.Category)
	assert.Equal(t, models.StatusDisputed, updated.Status)

	stored, err := f.engine.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "SHOPPING", stored.Category)
	assert.Equal(t, disputed.DisputeReason, stored.DisputeReason)
	assert.True(t, f.balance(t, "alice").Equal(dec("480.00")))

	_, err = f.engine.Recategorize(ctx, tx.ID, " ")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.engine.Recategorize(ctx, "missing", "FOOD")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentTransfersConserveBalance(t *testing.T) {
	never := fraud.Rule{Reason: "never", Check: func(context.Context, interfaces.TransactionHistory, fraud.Candidate) (bool, error) {
		return false, nil
	}}
	f := newFixture(t)
	f.engine.scorer = fraud.NewScorer(f.store, never)
	f.account(t, "alice", "Alice", "100.00")
	f.account(t, "bob", "Bob", "100.00")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := "alice", "bob"
			if i%2 == 1 {
				from, to = to, from
			}
			_, err := f.engine.Transfer(context.Background(), from, to, dec("7.00"), "Split bill")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	a, b := f.balance(t, "alice"), f.balance(t, "bob")
	assert.True(t, a.Add(b).Equal(dec("200.00")), "total %s", a.Add(b))
	assert.False(t, a.IsNegative())
	assert.False(t, b.IsNegative())

	completed, err := f.store.FindByStatus(context.Background(), models.StatusCompleted)
	require.NoError(t, err)
	moved := decimal.Zero
	for _, tx := range completed {
		if tx.SenderID == "alice" {
			moved = moved.Sub(tx.Amount)
		} else {
			moved = moved.Add(tx.Amount)
		}
	}
	assert.True(t, a.Equal(dec("100.00").Add(moved)))
}

type failingTransactions struct {
	interfaces.TransactionStore
}

func (failingTransactions) SaveTransaction(context.Context, models.Transaction) error {
	return errors.New("disk full")
}

type failingRepos struct {
	interfaces.Repositories
}

func (r failingRepos) Transactions() interfaces.TransactionStore {
	return failingTransactions{r.Repositories.Transactions()}
}

type failingStore struct {
	*memory.Store
}

func (s failingStore) WithinTx(ctx context.Context, fn func(context.Context, interfaces.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		return fn(ctx, failingRepos{repos})
	})
}

func TestPersistenceFailureLeavesNoPartialWrite(t *testing.T) {
	store := memory.NewStore()
	router := notify.NewRouter(store, store, notify.NewResolver(store, store))
	e := NewEngine(failingStore{store}, locking.NewMutexes(), router, WithClock(func() time.Time { return now }))
	require.NoError(t, store.SaveAccount(context.Background(), models.Account{ID: "alice", Balance: dec("500")}))
	require.NoError(t, store.SaveAccount(context.Background(), models.Account{ID: "bob", Balance: dec("50")}))

	_, err := e.Transfer(context.Background(), "alice", "bob", dec("200"), "Rent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInfrastructure)
	assert.True(t, IsRetryable(err))

	alice, _ := store.GetAccount(context.Background(), "alice")
	bob, _ := store.GetAccount(context.Background(), "bob")
	assert.True(t, alice.Balance.Equal(dec("500")))
	assert.True(t, bob.Balance.Equal(dec("50")))

	all, err := store.FindWithFilter(context.Background(), models.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	notes, err := store.ListNotifications(context.Background(), "alice", false)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

type brokenLocker struct{}

func (brokenLocker) Lock(context.Context, ...string) (func(), error) {
	return nil, errors.New("redis unreachable")
}

func TestLockFailureIsRetryable(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.SaveAccount(context.Background(), models.Account{ID: "alice", Balance: dec("10")}))
	e := NewEngine(store, brokenLocker{}, nil)

	_, err := e.Deposit(context.Background(), "alice", dec("1"), "Top up")
	assert.True(t, IsRetryable(err))
}

type failingNotifier struct{}

func (failingNotifier) Dispatch(context.Context, models.NotificationEvent) (models.Notification, error) {
	return models.Notification{}, errors.New("notification store down")
}

func TestNotificationFailureDoesNotFailTransaction(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := memory.NewStore()
	require.NoError(t, store.SaveAccount(context.Background(), models.Account{ID: "alice", Balance: dec("10")}))
	e := NewEngine(store, locking.NewMutexes(), failingNotifier{}, WithLogger(zap.New(core)))

	tx, err := e.Deposit(context.Background(), "alice", dec("5"), "Refund")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, tx.Status)
	assert.Equal(t, 1, logs.FilterMessage("notification dispatch failed").Len())

	acct, err := store.GetAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(dec("15")))
}
