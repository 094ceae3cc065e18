package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/storage"
	"github.com/shopspring/decimal"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db   *sql.DB
	q    queryer
	inTx bool
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
		q:  db,
	}
}

// Open connects with the lib/pq driver, pings and migrates.
func Open(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	p := NewPostgresStore(db)
	if err := p.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func (p *PostgresStore) Accounts() interfaces.AccountStore         { return p }
func (p *PostgresStore) Transactions() interfaces.TransactionStore { return p }

// WithinTx runs fn inside one database transaction. Account reads made
// through the bound repositories take row locks until commit.
func (p *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos interfaces.Repositories) error) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	err = fn(ctx, &PostgresStore{db: p.db, q: dbTx, inTx: true})
	if err != nil {
		return err
	}

	err = dbTx.Commit()
	return err
}

const accountColumns = `id, account_number, holder_name, username, email, phone, balance,
	last_login_ip, last_login_at, last_login_device, failed_login_attempts, locked, created_at`

func (p *PostgresStore) GetAccount(ctx context.Context, id string) (models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if p.inTx {
		query += ` FOR UPDATE`
	}
	return scanAccount(p.q.QueryRowContext(ctx, query, id))
}

func (p *PostgresStore) SaveAccount(ctx context.Context, a models.Account) error {
	const query = `INSERT INTO accounts (` + accountColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	ON CONFLICT (id) DO UPDATE SET
		account_number = EXCLUDED.account_number,
		holder_name = EXCLUDED.holder_name,
		username = EXCLUDED.username,
		email = EXCLUDED.email,
		phone = EXCLUDED.phone,
		balance = EXCLUDED.balance,
		last_login_ip = EXCLUDED.last_login_ip,
		last_login_at = EXCLUDED.last_login_at,
		last_login_device = EXCLUDED.last_login_device,
		failed_login_attempts = EXCLUDED.failed_login_attempts,
		locked = EXCLUDED.locked`

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := p.q.ExecContext(ctx, query,
		a.ID, a.AccountNumber, a.HolderName, a.Username, a.Email, a.Phone, a.Balance,
		a.LastLoginIP, nullTime(a.LastLoginAt), a.LastLoginDevice, a.FailedLoginAttempts, a.Locked, createdAt)
	return mapError(err)
}

func (p *PostgresStore) FindByUsername(ctx context.Context, username string) (models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return scanAccount(p.q.QueryRowContext(ctx, query, username))
}

func (p *PostgresStore) FindByAccountNumber(ctx context.Context, accountNumber string) (models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return scanAccount(p.q.QueryRowContext(ctx, query, accountNumber))
}

func (p *PostgresStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts ORDER BY id`

	rows, err := p.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

const transactionColumns = `id, reference_number, sender_id, recipient_id, amount, created_at, status, type,
	description, category, merchant_name, ip_address, device_info, is_fraud_suspected, fraud_reason,
	is_recurring, recurring_pattern, is_disputed, dispute_reason, dispute_date, dispute_status, balance_after, idempotency_key`

func (p *PostgresStore) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if p.inTx {
		query += ` FOR UPDATE`
	}
	return scanTransaction(p.q.QueryRowContext(ctx, query, id))
}

// SaveTransaction inserts the record or overwrites its mutable fields.
func (p *PostgresStore) SaveTransaction(ctx context.Context, t models.Transaction) error {
	const query = `INSERT INTO transactions (` + transactionColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		description = EXCLUDED.description,
		category = EXCLUDED.category,
		is_fraud_suspected = EXCLUDED.is_fraud_suspected,
		fraud_reason = EXCLUDED.fraud_reason,
		is_recurring = EXCLUDED.is_recurring,
		recurring_pattern = EXCLUDED.recurring_pattern,
		is_disputed = EXCLUDED.is_disputed,
		dispute_reason = EXCLUDED.dispute_reason,
		dispute_date = EXCLUDED.dispute_date,
		dispute_status = EXCLUDED.dispute_status,
		balance_after = EXCLUDED.balance_after`

	_, err := p.q.ExecContext(ctx, query,
		t.ID, t.ReferenceNumber, t.SenderID, nullString(t.RecipientID), t.Amount, t.Timestamp,
		string(t.Status), string(t.Type), t.Description, t.Category, t.MerchantName, t.IPAddress,
		t.DeviceInfo, t.IsFraudSuspected, t.FraudReason, t.IsRecurring, t.RecurringPattern,
		t.IsDisputed, t.DisputeReason, nullTime(t.DisputeDate), t.DisputeStatus, t.BalanceAfter, t.IdempotencyKey)
	return mapError(err)
}

func (p *PostgresStore) FindByIdempotencyKey(ctx context.Context, senderID, key string) (models.Transaction, error) {
	if key == "" {
		return models.Transaction{}, storage.ErrNotFound
	}
	const query = `SELECT ` + transactionColumns + ` FROM transactions WHERE sender_id = $1 AND idempotency_key = $2`
	return scanTransaction(p.q.QueryRowContext(ctx, query, senderID, key))
}

func (p *PostgresStore) FindBySenderAfter(ctx context.Context, accountID string, since time.Time) ([]models.Transaction, error) {
	const query = `SELECT ` + transactionColumns + ` FROM transactions
	WHERE sender_id = $1 AND created_at > $2 ORDER BY created_at`
	return p.queryTransactions(ctx, query, accountID, since)
}

func (p *PostgresStore) FindByStatus(ctx context.Context, status models.TransactionStatus) ([]models.Transaction, error) {
	const query = `SELECT ` + transactionColumns + ` FROM transactions WHERE status = $1 ORDER BY created_at`
	return p.queryTransactions(ctx, query, string(status))
}

func (p *PostgresStore) AverageAmountFor(ctx context.Context, accountID string) (decimal.Decimal, int, error) {
	const query = `SELECT COALESCE(AVG(amount), 0), COUNT(*) FROM transactions WHERE sender_id = $1`

	var avg decimal.Decimal
	var count int
	if err := p.q.QueryRowContext(ctx, query, accountID).Scan(&avg, &count); err != nil {
		return decimal.Zero, 0, err
	}
	return avg, count, nil
}

func (p *PostgresStore) FindSimilar(ctx context.Context, accountID, description string, amount decimal.Decimal, since time.Time) ([]models.Transaction, error) {
	const query = `SELECT ` + transactionColumns + ` FROM transactions
	WHERE sender_id = $1 AND description = $2 AND amount = $3 AND created_at >= $4
	ORDER BY created_at DESC`
	return p.queryTransactions(ctx, query, accountID, description, amount, since)
}

// FindWithFilter treats every empty or nil filter field as unbounded.
func (p *PostgresStore) FindWithFilter(ctx context.Context, f models.TransactionFilter) ([]models.Transaction, error) {
	const query = `SELECT ` + transactionColumns + ` FROM transactions
	WHERE ($1::text = '' OR sender_id = $1 OR recipient_id = $1)
	AND ($2::text = '' OR LOWER(description) LIKE '%' || LOWER($2) || '%' OR LOWER(merchant_name) LIKE '%' || LOWER($2) || '%')
	AND ($3::text = '' OR type = $3)
	AND ($4::text = '' OR status = $4)
	AND ($5::text = '' OR category = $5)
	AND ($6::timestamptz IS NULL OR created_at >= $6::timestamptz)
	AND ($7::timestamptz IS NULL OR created_at <= $7::timestamptz)
	AND ($8::numeric IS NULL OR amount >= $8::numeric)
	AND ($9::numeric IS NULL OR amount <= $9::numeric)
	ORDER BY created_at DESC
	LIMIT NULLIF($10::int, 0) OFFSET $11`

	return p.queryTransactions(ctx, query,
		f.AccountID, f.Search, string(f.Type), string(f.Status), f.Category,
		nullTime(f.From), nullTime(f.To), nullDecimal(f.MinAmount), nullDecimal(f.MaxAmount),
		f.Limit, f.Offset)
}

func (p *PostgresStore) queryTransactions(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (models.Account, error) {
	var a models.Account
	var lastLogin sql.NullTime
	err := row.Scan(&a.ID, &a.AccountNumber, &a.HolderName, &a.Username, &a.Email, &a.Phone, &a.Balance,
		&a.LastLoginIP, &lastLogin, &a.LastLoginDevice, &a.FailedLoginAttempts, &a.Locked, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Account{}, storage.ErrNotFound
		}
		return models.Account{}, err
	}
	if lastLogin.Valid {
		a.LastLoginAt = &lastLogin.Time
	}
	return a, nil
}

func scanTransaction(row scanner) (models.Transaction, error) {
	var t models.Transaction
	var recipient sql.NullString
	var disputeDate sql.NullTime
	var status, txType string
	err := row.Scan(&t.ID, &t.ReferenceNumber, &t.SenderID, &recipient, &t.Amount, &t.Timestamp, &status, &txType,
		&t.Description, &t.Category, &t.MerchantName, &t.IPAddress, &t.DeviceInfo, &t.IsFraudSuspected, &t.FraudReason,
		&t.IsRecurring, &t.RecurringPattern, &t.IsDisputed, &t.DisputeReason, &disputeDate, &t.DisputeStatus, &t.BalanceAfter, &t.IdempotencyKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Transaction{}, storage.ErrNotFound
		}
		return models.Transaction{}, err
	}
	t.RecipientID = recipient.String
	t.Status = models.TransactionStatus(status)
	t.Type = models.TransactionType(txType)
	if disputeDate.Valid {
		t.DisputeDate = &disputeDate.Time
	}
	return t, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", storage.ErrAlreadyExists, pqErr.Constraint)
		case "23503":
			return fmt.Errorf("%w: %s", storage.ErrNotFound, pqErr.Constraint)
		}
	}
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}

var _ interfaces.Repositories = (*PostgresStore)(nil)
