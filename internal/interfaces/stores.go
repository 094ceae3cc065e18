package interfaces

import (
	"context"
	"time"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
	"github.com/shopspring/decimal"
)

type AccountStore interface {
	GetAccount(ctx context.Context, id string) (models.Account, error)
	SaveAccount(ctx context.Context, account models.Account) error
	FindByUsername(ctx context.Context, username string) (models.Account, error)
	FindByAccountNumber(ctx context.Context, accountNumber string) (models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
}

// TransactionHistory is the read side of the transaction ledger.
type TransactionHistory interface {
	GetTransaction(ctx context.Context, id string) (models.Transaction, error)
	// FindByIdempotencyKey returns storage.ErrNotFound when the sender has
	// no transaction recorded under key.
	FindByIdempotencyKey(ctx context.Context, senderID, key string) (models.Transaction, error)
	FindBySenderAfter(ctx context.Context, accountID string, since time.Time) ([]models.Transaction, error)
	FindByStatus(ctx context.Context, status models.TransactionStatus) ([]models.Transaction, error)
	// AverageAmountFor returns the mean outgoing amount and how many
	// transactions contributed to it. A zero count means no history.
	AverageAmountFor(ctx context.Context, accountID string) (decimal.Decimal, int, error)
	FindSimilar(ctx context.Context, accountID, description string, amount decimal.Decimal, since time.Time) ([]models.Transaction, error)
	FindWithFilter(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
}

type TransactionStore interface {
	TransactionHistory
	SaveTransaction(ctx context.Context, tx models.Transaction) error
}

// Repositories groups the stores bound to a single unit of work.
type Repositories interface {
	Accounts() AccountStore
	Transactions() TransactionStore
}

// UnitOfWork runs fn atomically: either every write made through repos
// becomes visible, or none does.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type NotificationStore interface {
	SaveNotification(ctx context.Context, n models.Notification) error
	GetNotification(ctx context.Context, id string) (models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	ListNotifications(ctx context.Context, accountID string, unreadOnly bool) ([]models.Notification, error)
}

type PreferenceStore interface {
	// GetOrCreatePreference inserts defaults only when no row exists for the
	// account and returns the stored row either way.
	GetOrCreatePreference(ctx context.Context, defaults models.NotificationPreference) (models.NotificationPreference, error)
	UpdatePreference(ctx context.Context, pref models.NotificationPreference) error
}

// Store is everything a backend provides.
type Store interface {
	Repositories
	UnitOfWork
	NotificationStore
	PreferenceStore
}
