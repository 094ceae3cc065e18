package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/storage"
	"github.com/shopspring/decimal"
)

// Store is an in-memory implementation of interfaces.Store.
// It is safe for concurrent use; reads return copies so callers can't
// modify internal state.
type Store struct {
	mu            sync.RWMutex
	accounts      map[string]models.Account
	transactions  map[string]models.Transaction
	txOrder       []string
	idempotency   map[string]string // sender + key -> transaction id
	notifications map[string]models.Notification
	notifOrder    []string
	preferences   map[string]models.NotificationPreference
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		accounts:      make(map[string]models.Account),
		transactions:  make(map[string]models.Transaction),
		idempotency:   make(map[string]string),
		notifications: make(map[string]models.Notification),
		preferences:   make(map[string]models.NotificationPreference),
		now:           time.Now,
	}
}

func (m *Store) Accounts() interfaces.AccountStore         { return m }
func (m *Store) Transactions() interfaces.TransactionStore { return m }

func (m *Store) GetAccount(ctx context.Context, id string) (models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accounts[id]
	if !ok {
		return models.Account{}, storage.ErrNotFound
	}
	return acc, nil
}

func (m *Store) SaveAccount(ctx context.Context, account models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts[account.ID] = account
	return nil
}

func (m *Store) FindByUsername(ctx context.Context, username string) (models.Account, error) {
	return m.findAccount(func(a models.Account) bool { return a.Username == username })
}

func (m *Store) FindByAccountNumber(ctx context.Context, accountNumber string) (models.Account, error) {
	return m.findAccount(func(a models.Account) bool { return a.AccountNumber == accountNumber })
}

func (m *Store) findAccount(match func(models.Account) bool) (models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.accounts {
		if match(a) {
			return a, nil
		}
	}
	return models.Account{}, storage.ErrNotFound
}

func (m *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[id]
	if !ok {
		return models.Transaction{}, storage.ErrNotFound
	}
	return tx, nil
}

func (m *Store) SaveTransaction(ctx context.Context, tx models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkIdempotency(tx); err != nil {
		return err
	}
	m.putTransaction(tx)
	return nil
}

func idempotencyIndex(senderID, key string) string {
	return senderID + "\x00" + key
}

// checkIdempotency must be called with mu held.
func (m *Store) checkIdempotency(tx models.Transaction) error {
	if tx.IdempotencyKey == "" {
		return nil
	}
	if id, ok := m.idempotency[idempotencyIndex(tx.SenderID, tx.IdempotencyKey)]; ok && id != tx.ID {
		return fmt.Errorf("%w: idempotency key %q", storage.ErrAlreadyExists, tx.IdempotencyKey)
	}
	return nil
}

// putTransaction must be called with mu held.
func (m *Store) putTransaction(tx models.Transaction) {
	if _, exists := m.transactions[tx.ID]; !exists {
		m.txOrder = append(m.txOrder, tx.ID)
	}
	tx.Replayed = false
	m.transactions[tx.ID] = tx
	if tx.IdempotencyKey != "" {
		m.idempotency[idempotencyIndex(tx.SenderID, tx.IdempotencyKey)] = tx.ID
	}
}

func (m *Store) FindByIdempotencyKey(ctx context.Context, senderID, key string) (models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.idempotency[idempotencyIndex(senderID, key)]
	if !ok || key == "" {
		return models.Transaction{}, storage.ErrNotFound
	}
	return m.transactions[id], nil
}

// snapshot returns every transaction in insertion order.
func (m *Store) snapshot() []models.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Transaction, 0, len(m.txOrder))
	for _, id := range m.txOrder {
		out = append(out, m.transactions[id])
	}
	return out
}

func (m *Store) FindBySenderAfter(ctx context.Context, accountID string, since time.Time) ([]models.Transaction, error) {
	return bySenderAfter(m.snapshot(), accountID, since), nil
}

func (m *Store) FindByStatus(ctx context.Context, status models.TransactionStatus) ([]models.Transaction, error) {
	return byStatus(m.snapshot(), status), nil
}

func (m *Store) AverageAmountFor(ctx context.Context, accountID string) (decimal.Decimal, int, error) {
	avg, n := averageFor(m.snapshot(), accountID)
	return avg, n, nil
}

func (m *Store) FindSimilar(ctx context.Context, accountID, description string, amount decimal.Decimal, since time.Time) ([]models.Transaction, error) {
	return similar(m.snapshot(), accountID, description, amount, since), nil
}

func (m *Store) FindWithFilter(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	return applyFilter(m.snapshot(), filter), nil
}

func (m *Store) SaveNotification(ctx context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.notifications[n.ID]; !exists {
		m.notifOrder = append(m.notifOrder, n.ID)
	}
	m.notifications[n.ID] = n
	return nil
}

func (m *Store) GetNotification(ctx context.Context, id string) (models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.notifications[id]
	if !ok {
		return models.Notification{}, storage.ErrNotFound
	}
	return n, nil
}

func (m *Store) MarkNotificationRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok {
		return storage.ErrNotFound
	}
	n.Read = true
	m.notifications[id] = n
	return nil
}

// ListNotifications returns newest first.
func (m *Store) ListNotifications(ctx context.Context, accountID string, unreadOnly bool) ([]models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Notification
	for i := len(m.notifOrder) - 1; i >= 0; i-- {
		n := m.notifications[m.notifOrder[i]]
		if n.AccountID != accountID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *Store) GetOrCreatePreference(ctx context.Context, defaults models.NotificationPreference) (models.NotificationPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pref, ok := m.preferences[defaults.AccountID]; ok {
		return pref, nil
	}
	now := m.now()
	defaults.CreatedAt = now
	defaults.UpdatedAt = now
	m.preferences[defaults.AccountID] = defaults
	return defaults, nil
}

func (m *Store) UpdatePreference(ctx context.Context, pref models.NotificationPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.preferences[pref.AccountID]
	if !ok {
		return storage.ErrNotFound
	}
	pref.CreatedAt = existing.CreatedAt
	pref.UpdatedAt = m.now()
	m.preferences[pref.AccountID] = pref
	return nil
}

// PreferenceCount is used by tests asserting get-or-create uniqueness.
func (m *Store) PreferenceCount(accountID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.preferences[accountID]; ok {
		return 1
	}
	return 0
}

func bySenderAfter(all []models.Transaction, accountID string, since time.Time) []models.Transaction {
	var out []models.Transaction
	for _, t := range all {
		if t.SenderID == accountID && t.Timestamp.After(since) {
			out = append(out, t)
		}
	}
	return out
}

func byStatus(all []models.Transaction, status models.TransactionStatus) []models.Transaction {
	var out []models.Transaction
	for _, t := range all {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

func averageFor(all []models.Transaction, accountID string) (decimal.Decimal, int) {
	sum := decimal.Zero
	n := 0
	for _, t := range all {
		if t.SenderID == accountID {
			sum = sum.Add(t.Amount)
			n++
		}
	}
	if n == 0 {
		return decimal.Zero, 0
	}
	return sum.Div(decimal.NewFromInt(int64(n))), n
}

func similar(all []models.Transaction, accountID, description string, amount decimal.Decimal, since time.Time) []models.Transaction {
	var out []models.Transaction
	for _, t := range all {
		if t.SenderID == accountID && t.Description == description &&
			t.Amount.Equal(amount) && !t.Timestamp.Before(since) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func applyFilter(all []models.Transaction, f models.TransactionFilter) []models.Transaction {
	search := strings.ToLower(strings.TrimSpace(f.Search))

	var out []models.Transaction
	for _, t := range all {
		if f.AccountID != "" && t.SenderID != f.AccountID && t.RecipientID != f.AccountID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Description), search) &&
			!strings.Contains(strings.ToLower(t.MerchantName), search) {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.From != nil && t.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && t.Timestamp.After(*f.To) {
			continue
		}
		if f.MinAmount != nil && t.Amount.LessThan(*f.MinAmount) {
			continue
		}
		if f.MaxAmount != nil && t.Amount.GreaterThan(*f.MaxAmount) {
			continue
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Compile-time check: ensure Store implements interfaces.Store
var _ interfaces.Store = (*Store)(nil)
