package memory

import (
	"context"
	"time"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/storage"
	"github.com/shopspring/decimal"
)

// WithinTx stages every write made through repos and applies them under a
// single lock only when fn succeeds. Concurrent readers see either none or
// all of the writes.
func (m *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos interfaces.Repositories) error) error {
	st := &staged{
		base:         m,
		accounts:     make(map[string]models.Account),
		transactions: make(map[string]models.Transaction),
	}

	if err := fn(ctx, st); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range st.txOrder {
		if err := m.checkIdempotency(st.transactions[id]); err != nil {
			return err
		}
	}
	for _, id := range st.accountOrder {
		m.accounts[id] = st.accounts[id]
	}
	for _, id := range st.txOrder {
		m.putTransaction(st.transactions[id])
	}
	return nil
}

type staged struct {
	base         *Store
	accounts     map[string]models.Account
	accountOrder []string
	transactions map[string]models.Transaction
	txOrder      []string
}

func (s *staged) Accounts() interfaces.AccountStore         { return s }
func (s *staged) Transactions() interfaces.TransactionStore { return s }

func (s *staged) GetAccount(ctx context.Context, id string) (models.Account, error) {
	if acc, ok := s.accounts[id]; ok {
		return acc, nil
	}
	return s.base.GetAccount(ctx, id)
}

func (s *staged) SaveAccount(ctx context.Context, account models.Account) error {
	if _, ok := s.accounts[account.ID]; !ok {
		s.accountOrder = append(s.accountOrder, account.ID)
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *staged) FindByUsername(ctx context.Context, username string) (models.Account, error) {
	return s.findAccount(ctx, func(a models.Account) bool { return a.Username == username })
}

func (s *staged) FindByAccountNumber(ctx context.Context, accountNumber string) (models.Account, error) {
	return s.findAccount(ctx, func(a models.Account) bool { return a.AccountNumber == accountNumber })
}

func (s *staged) findAccount(ctx context.Context, match func(models.Account) bool) (models.Account, error) {
	all, err := s.ListAccounts(ctx)
	if err != nil {
		return models.Account{}, err
	}
	for _, a := range all {
		if match(a) {
			return a, nil
		}
	}
	return models.Account{}, storage.ErrNotFound
}

func (s *staged) ListAccounts(ctx context.Context) ([]models.Account, error) {
	all, err := s.base.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(all))
	for i, a := range all {
		if over, ok := s.accounts[a.ID]; ok {
			all[i] = over
		}
		seen[a.ID] = true
	}
	for _, id := range s.accountOrder {
		if !seen[id] {
			all = append(all, s.accounts[id])
		}
	}
	return all, nil
}

func (s *staged) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	if tx, ok := s.transactions[id]; ok {
		return tx, nil
	}
	return s.base.GetTransaction(ctx, id)
}

func (s *staged) SaveTransaction(ctx context.Context, tx models.Transaction) error {
	if _, ok := s.transactions[tx.ID]; !ok {
		s.txOrder = append(s.txOrder, tx.ID)
	}
	s.transactions[tx.ID] = tx
	return nil
}

func (s *staged) FindByIdempotencyKey(ctx context.Context, senderID, key string) (models.Transaction, error) {
	for _, id := range s.txOrder {
		tx := s.transactions[id]
		if key != "" && tx.SenderID == senderID && tx.IdempotencyKey == key {
			return tx, nil
		}
	}
	return s.base.FindByIdempotencyKey(ctx, senderID, key)
}

// view overlays staged transactions on the committed ones.
func (s *staged) view() []models.Transaction {
	all := s.base.snapshot()
	seen := make(map[string]bool, len(all))
	for i, t := range all {
		if over, ok := s.transactions[t.ID]; ok {
			all[i] = over
		}
		seen[t.ID] = true
	}
	for _, id := range s.txOrder {
		if !seen[id] {
			all = append(all, s.transactions[id])
		}
	}
	return all
}

func (s *staged) FindBySenderAfter(ctx context.Context, accountID string, since time.Time) ([]models.Transaction, error) {
	return bySenderAfter(s.view(), accountID, since), nil
}

func (s *staged) FindByStatus(ctx context.Context, status models.TransactionStatus) ([]models.Transaction, error) {
	return byStatus(s.view(), status), nil
}

func (s *staged) AverageAmountFor(ctx context.Context, accountID string) (decimal.Decimal, int, error) {
	avg, n := averageFor(s.view(), accountID)
	return avg, n, nil
}

func (s *staged) FindSimilar(ctx context.Context, accountID, description string, amount decimal.Decimal, since time.Time) ([]models.Transaction, error) {
	return similar(s.view(), accountID, description, amount, since), nil
}

func (s *staged) FindWithFilter(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	return applyFilter(s.view(), filter), nil
}

var _ interfaces.Repositories = (*staged)(nil)
