package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func tx(id, sender string, amount string, at time.Time) models.Transaction {
	return models.Transaction{
		ID:          id,
		SenderID:    sender,
		Amount:      decimal.RequireFromString(amount),
		Timestamp:   at,
		Status:      models.StatusCompleted,
		Type:        models.TypeTransfer,
		Description: "Netflix",
	}
}

func TestGetAccountNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.GetAccount(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAccountLookups(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.SaveAccount(ctx, models.Account{ID: "a", Username: "alice", AccountNumber: "ACC1"}))

	byName, err := s.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "a", byName.ID)

	byNumber, err := s.FindByAccountNumber(ctx, "ACC1")
	require.NoError(t, err)
	assert.Equal(t, "a", byNumber.ID)

	_, err = s.FindByUsername(ctx, "bob")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAverageAmountFor(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, n, err := s.AverageAmountFor(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.SaveTransaction(ctx, tx("1", "a", "10", base)))
	require.NoError(t, s.SaveTransaction(ctx, tx("2", "a", "30", base)))
	require.NoError(t, s.SaveTransaction(ctx, tx("3", "b", "1000", base)))

	avg, n, err := s.AverageAmountFor(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, avg.Equal(decimal.NewFromInt(20)), avg.String())
}

func TestFindSimilarAndSenderAfter(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.SaveTransaction(ctx, tx("1", "a", "15.99", base.AddDate(0, -1, 0))))
	require.NoError(t, s.SaveTransaction(ctx, tx("2", "a", "15.99", base.AddDate(0, -3, 0))))
	require.NoError(t, s.SaveTransaction(ctx, tx("3", "a", "16.00", base.Add(-time.Minute))))

	got, err := s.FindSimilar(ctx, "a", "Netflix", decimal.RequireFromString("15.99"), base.AddDate(0, -2, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)

	recent, err := s.FindBySenderAfter(ctx, "a", base.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "3", recent[0].ID)
}

func TestFindWithFilterUnboundedAndBounded(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	t1 := tx("1", "a", "10", base.Add(-2*time.Hour))
	t1.MerchantName = "Starbucks"
	t2 := tx("2", "b", "50", base.Add(-time.Hour))
	t2.RecipientID = "a"
	t3 := tx("3", "c", "70", base)
	for _, item := range []models.Transaction{t1, t2, t3} {
		require.NoError(t, s.SaveTransaction(ctx, item))
	}

	all, err := s.FindWithFilter(ctx, models.TransactionFilter{AccountID: "a"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].ID, "newest first")

	minAmount := decimal.NewFromInt(20)
	from := base.Add(-90 * time.Minute)
	bounded, err := s.FindWithFilter(ctx, models.TransactionFilter{MinAmount: &minAmount, From: &from})
	require.NoError(t, err)
	assert.Len(t, bounded, 2)

	search, err := s.FindWithFilter(ctx, models.TransactionFilter{Search: "starbucks"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, "1", search[0].ID)

	paged, err := s.FindWithFilter(ctx, models.TransactionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "2", paged[0].ID)
}

func TestWithinTxCommitsAllOrNothing(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.SaveAccount(ctx, models.Account{ID: "a", Balance: decimal.NewFromInt(10)}))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		acc, err := repos.Accounts().GetAccount(ctx, "a")
		require.NoError(t, err)
		acc.Balance = decimal.Zero
		require.NoError(t, repos.Accounts().SaveAccount(ctx, acc))

		staged, err := repos.Accounts().GetAccount(ctx, "a")
		require.NoError(t, err)
		assert.True(t, staged.Balance.IsZero(), "writes are visible inside the unit")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acc, err := s.GetAccount(ctx, "a")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(10)))

	err = s.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		acc, _ := repos.Accounts().GetAccount(ctx, "a")
		acc.Balance = decimal.NewFromInt(3)
		if err := repos.Accounts().SaveAccount(ctx, acc); err != nil {
			return err
		}
		return repos.Transactions().SaveTransaction(ctx, tx("t", "a", "7", base))
	})
	require.NoError(t, err)

	acc, _ = s.GetAccount(ctx, "a")
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(3)))
	_, err = s.GetTransaction(ctx, "t")
	assert.NoError(t, err)
}

func TestGetOrCreatePreferenceConcurrent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]models.NotificationPreference, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pref, err := s.GetOrCreatePreference(ctx, models.DefaultPreference("a"))
			assert.NoError(t, err)
			results[i] = pref
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, s.PreferenceCount("a"))
	for _, r := range results {
		assert.Equal(t, results[0].CreatedAt, r.CreatedAt)
	}
}

func TestNotificationsMarkReadAndList(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.SaveNotification(ctx, models.Notification{ID: "n1", AccountID: "a"}))
	require.NoError(t, s.SaveNotification(ctx, models.Notification{ID: "n2", AccountID: "a"}))
	require.NoError(t, s.MarkNotificationRead(ctx, "n1"))

	unread, err := s.ListNotifications(ctx, "a", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "n2", unread[0].ID)

	assert.ErrorIs(t, s.MarkNotificationRead(ctx, "missing"), storage.ErrNotFound)
}

func TestIdempotencyKeyIsUniquePerSender(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first := tx("t1", "a", "10.00", base)
	first.IdempotencyKey = "k1"
	require.NoError(t, s.SaveTransaction(ctx, first))

	got, err := s.FindByIdempotencyKey(ctx, "a", "k1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)

	_, err = s.FindByIdempotencyKey(ctx, "b", "k1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.FindByIdempotencyKey(ctx, "a", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// re-saving the same transaction is an update, not a conflict
	first.Category = "FOOD"
	require.NoError(t, s.SaveTransaction(ctx, first))

	dup := tx("t2", "a", "10.00", base)
	dup.IdempotencyKey = "k1"
	assert.ErrorIs(t, s.SaveTransaction(ctx, dup), storage.ErrAlreadyExists)

	err = s.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		staged, err := repos.Transactions().FindByIdempotencyKey(ctx, "a", "k1")
		require.NoError(t, err)
		assert.Equal(t, "t1", staged.ID)
		return repos.Transactions().SaveTransaction(ctx, dup)
	})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	_, err = s.GetTransaction(ctx, "t2")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	other := tx("t3", "b", "10.00", base)
	other.IdempotencyKey = "k1"
	require.NoError(t, s.SaveTransaction(ctx, other))
}
