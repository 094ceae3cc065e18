package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/storage"
)

const notificationColumns = `id, account_id, message, category, severity, is_read, reference_id, reference_type, created_at`

func (p *PostgresStore) SaveNotification(ctx context.Context, n models.Notification) error {
	const query = `INSERT INTO notifications (` + notificationColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	ON CONFLICT (id) DO UPDATE SET is_read = EXCLUDED.is_read`

	_, err := p.q.ExecContext(ctx, query, n.ID, n.AccountID, n.Message, string(n.Category), string(n.Severity),
		n.Read, n.ReferenceID, n.ReferenceType, n.CreatedAt)
	return mapError(err)
}

func (p *PostgresStore) GetNotification(ctx context.Context, id string) (models.Notification, error) {
	const query = `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	return scanNotification(p.q.QueryRowContext(ctx, query, id))
}

func (p *PostgresStore) MarkNotificationRead(ctx context.Context, id string) error {
	const query = `UPDATE notifications SET is_read = TRUE WHERE id = $1`

	res, err := p.q.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListNotifications(ctx context.Context, accountID string, unreadOnly bool) ([]models.Notification, error) {
	const query = `SELECT ` + notificationColumns + ` FROM notifications
	WHERE account_id = $1 AND (NOT $2 OR NOT is_read)
	ORDER BY created_at DESC`

	rows, err := p.q.QueryContext(ctx, query, accountID, unreadOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

const preferenceColumns = `account_id, enable_real_time, enable_email, email_for_transactions, email_for_security,
	email_for_system, email_transaction_threshold, enable_sms, sms_for_transactions, sms_for_security,
	sms_for_system, sms_transaction_threshold, created_at, updated_at`

// GetOrCreatePreference relies on the primary key on account_id: concurrent
// callers race on the insert and all read back the single winning row.
func (p *PostgresStore) GetOrCreatePreference(ctx context.Context, d models.NotificationPreference) (models.NotificationPreference, error) {
	const insert = `INSERT INTO notification_preferences (` + preferenceColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW())
	ON CONFLICT (account_id) DO NOTHING`

	_, err := p.q.ExecContext(ctx, insert, d.AccountID, d.EnableRealTime, d.EnableEmail, d.EmailForTransactions,
		d.EmailForSecurity, d.EmailForSystem, d.EmailTransactionThreshold, d.EnableSMS, d.SMSForTransactions,
		d.SMSForSecurity, d.SMSForSystem, d.SMSTransactionThreshold)
	if err != nil {
		return models.NotificationPreference{}, mapError(err)
	}

	const query = `SELECT ` + preferenceColumns + ` FROM notification_preferences WHERE account_id = $1`
	return scanPreference(p.q.QueryRowContext(ctx, query, d.AccountID))
}

func (p *PostgresStore) UpdatePreference(ctx context.Context, pref models.NotificationPreference) error {
	const query = `UPDATE notification_preferences SET
		enable_real_time = $2, enable_email = $3, email_for_transactions = $4, email_for_security = $5,
		email_for_system = $6, email_transaction_threshold = $7, enable_sms = $8, sms_for_transactions = $9,
		sms_for_security = $10, sms_for_system = $11, sms_transaction_threshold = $12, updated_at = NOW()
	WHERE account_id = $1`

	res, err := p.q.ExecContext(ctx, query, pref.AccountID, pref.EnableRealTime, pref.EnableEmail,
		pref.EmailForTransactions, pref.EmailForSecurity, pref.EmailForSystem, pref.EmailTransactionThreshold,
		pref.EnableSMS, pref.SMSForTransactions, pref.SMSForSecurity, pref.SMSForSystem, pref.SMSTransactionThreshold)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanNotification(row scanner) (models.Notification, error) {
	var n models.Notification
	var category, severity string
	err := row.Scan(&n.ID, &n.AccountID, &n.Message, &category, &severity, &n.Read, &n.ReferenceID, &n.ReferenceType, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Notification{}, storage.ErrNotFound
		}
		return models.Notification{}, err
	}
	n.Category = models.Category(category)
	n.Severity = models.Severity(severity)
	return n, nil
}

func scanPreference(row scanner) (models.NotificationPreference, error) {
	var p models.NotificationPreference
	err := row.Scan(&p.AccountID, &p.EnableRealTime, &p.EnableEmail, &p.EmailForTransactions, &p.EmailForSecurity,
		&p.EmailForSystem, &p.EmailTransactionThreshold, &p.EnableSMS, &p.SMSForTransactions, &p.SMSForSecurity,
		&p.SMSForSystem, &p.SMSTransactionThreshold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.NotificationPreference{}, storage.ErrNotFound
		}
		return models.NotificationPreference{}, err
	}
	return p, nil
}

var _ interfaces.Store = (*PostgresStore)(nil)
