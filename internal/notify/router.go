package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidEvent = errors.New("invalid notification event")

const (
	channelRealtime = "realtime"
	channelEmail    = "email"
	channelSMS      = "sms"
)

// Router records every notification and fans it out to the channels the
// account's preferences allow. Channel failures are logged and never
// undo the recorded notification or stop the other channels.
type Router struct {
	accounts      interfaces.AccountStore
	notifications interfaces.NotificationStore
	resolver      *Resolver

	realtime interfaces.RealtimeChannel
	email    interfaces.EmailChannel
	sms      interfaces.SMSChannel

	newID  func() string
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Router. Channels left unset are skipped.
type Option func(*Router)

func WithRealtime(c interfaces.RealtimeChannel) Option { return func(r *Router) { r.realtime = c } }
func WithEmail(c interfaces.EmailChannel) Option       { return func(r *Router) { r.email = c } }
func WithSMS(c interfaces.SMSChannel) Option           { return func(r *Router) { r.sms = c } }
func WithClock(now func() time.Time) Option            { return func(r *Router) { r.now = now } }
func WithIDGenerator(f func() string) Option           { return func(r *Router) { r.newID = f } }

func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter builds a router with no delivery channels; add them with
// WithRealtime, WithEmail and WithSMS.
func NewRouter(accounts interfaces.AccountStore, notifications interfaces.NotificationStore, resolver *Resolver, opts ...Option) *Router {
	r := &Router{
		accounts:      accounts,
		notifications: notifications,
		resolver:      resolver,
		newID:         uuid.NewString,
		now:           time.Now,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch persists the notification and delivers it. The returned error is
// non-nil only when the event is invalid, the account is unknown, or the
// notification could not be recorded.
func (r *Router) Dispatch(ctx context.Context, ev models.NotificationEvent) (models.Notification, error) {
	if ev.AccountID == "" || strings.TrimSpace(ev.Message) == "" {
		return models.Notification{}, fmt.Errorf("%w: account and message are required", ErrInvalidEvent)
	}

	account, err := r.accounts.GetAccount(ctx, ev.AccountID)
	if err != nil {
		return models.Notification{}, fmt.Errorf("account %s: %w", ev.AccountID, err)
	}

	n := models.Notification{
		ID:        r.newID(),
		AccountID: account.ID,
		Message:   ev.Message,
		Category:  ev.Category,
		Severity:  ev.Severity,
		CreatedAt: r.now().UTC(),
	}
	if ev.TransactionID != "" {
		n.ReferenceID = ev.TransactionID
		n.ReferenceType = models.ReferenceTransaction
	}
	if err := r.notifications.SaveNotification(ctx, n); err != nil {
		return models.Notification{}, fmt.Errorf("save notification: %w", err)
	}

	pref, err := r.resolver.Resolve(ctx, account.ID)
	if err != nil {
		r.logger.Error("resolve notification preferences",
			zap.String("account_id", account.ID), zap.String("notification_id", n.ID), zap.Error(err))
		return n, nil
	}

	if pref.EnableRealTime && r.realtime != nil {
		r.deliver(channelRealtime, n, func() error {
			return r.realtime.Publish(ctx, account.ID, n)
		})
	}

	if r.email != nil && ShouldEmail(pref, ev.Category, ev.Amount) && validEmail(account.Email) {
		subject := "Bank Notification: " + string(ev.Category)
		r.deliver(channelEmail, n, func() error {
			return r.email.Send(ctx, account.Email, subject, ev.Message)
		})
	}

	if r.sms != nil && ShouldSMS(pref, ev.Category, ev.Severity) && strings.TrimSpace(account.Phone) != "" {
		r.deliver(channelSMS, n, func() error {
			return r.sms.Send(ctx, account.Phone, ev.Message)
		})
	}

	return n, nil
}

func (r *Router) deliver(channel string, n models.Notification, send func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("notification channel panicked",
				zap.String("channel", channel), zap.String("account_id", n.AccountID),
				zap.String("notification_id", n.ID), zap.Any("panic", rec))
		}
	}()

	if err := send(); err != nil {
		r.logger.Warn("notification delivery failed",
			zap.String("channel", channel), zap.String("account_id", n.AccountID),
			zap.String("notification_id", n.ID), zap.Error(err))
		return
	}
	r.logger.Debug("notification delivered",
		zap.String("channel", channel), zap.String("account_id", n.AccountID), zap.String("notification_id", n.ID))
}

// ShouldEmail applies the email preference rules. For TRANSACTION events a
// missing amount always sends; otherwise the amount must reach the threshold.
func ShouldEmail(pref models.NotificationPreference, category models.Category, amount *decimal.Decimal) bool {
	if !pref.EnableEmail {
		return false
	}
	switch category {
	case models.CategoryTransaction:
		if !pref.EmailForTransactions {
			return false
		}
		return amount == nil || amount.GreaterThanOrEqual(pref.EmailTransactionThreshold)
	case models.CategorySecurity:
		return pref.EmailForSecurity
	case models.CategorySystem:
		return pref.EmailForSystem
	}
	return false
}

func ShouldSMS(pref models.NotificationPreference, category models.Category, severity models.Severity) bool {
	if !pref.EnableSMS {
		return false
	}
	return (severity == models.SeverityCritical && pref.SMSForSecurity) ||
		(category == models.CategoryTransaction && pref.SMSForTransactions)
}

func validEmail(address string) bool {
	if strings.TrimSpace(address) == "" {
		return false
	}
	_, err := mail.ParseAddress(address)
	return err == nil
}

func (r *Router) MarkRead(ctx context.Context, notificationID string) error {
	return r.notifications.MarkNotificationRead(ctx, notificationID)
}

func (r *Router) List(ctx context.Context, accountID string, unreadOnly bool) ([]models.Notification, error) {
	if _, err := r.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, fmt.Errorf("account %s: %w", accountID, err)
	}
	return r.notifications.ListNotifications(ctx, accountID, unreadOnly)
}

var _ interfaces.Notifier = (*Router)(nil)
