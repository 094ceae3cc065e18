package interfaces

import (
	"context"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
)

// Delivery channels. Only the notification router calls these.
type RealtimeChannel interface {
	Publish(ctx context.Context, accountID string, n models.Notification) error
}

type EmailChannel interface {
	Send(ctx context.Context, address, subject, body string) error
}

type SMSChannel interface {
	Send(ctx context.Context, phoneNumber, body string) error
}

type Notifier interface {
	Dispatch(ctx context.Context, ev models.NotificationEvent) (models.Notification, error)
}

// Locker serializes work on a set of keys. Keys are acquired in ascending
// order; the returned func releases all of them.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}
