// Package sweep holds the scheduled, read-only passes over stored
// transactions. Sweeps never take the engine's account locks.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	SummaryWindow   = 24 * time.Hour
	reminderMessage = "You have a flagged transaction that requires attention"
)

type Sweeper struct {
	accounts    interfaces.AccountStore
	history     interfaces.TransactionHistory
	notifier    interfaces.Notifier
	reminderAge time.Duration
	logger      *zap.Logger
}

// NewSweeper builds a sweeper that reminds about FLAGGED transactions older
// than reminderAge.
func NewSweeper(accounts interfaces.AccountStore, history interfaces.TransactionHistory, notifier interfaces.Notifier, reminderAge time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		accounts:    accounts,
		history:     history,
		notifier:    notifier,
		reminderAge: reminderAge,
		logger:      logger,
	}
}

// DailySummaries alerts every account that sent money in the trailing
// window. It returns how many summaries were dispatched.
func (s *Sweeper) DailySummaries(ctx context.Context, now time.Time) (int, error) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	sent := 0
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		recent, err := s.history.FindBySenderAfter(ctx, account.ID, now.Add(-SummaryWindow))
		if err != nil {
			return sent, fmt.Errorf("history for %s: %w", account.ID, err)
		}
		if len(recent) == 0 {
			continue
		}

		total := decimal.Zero
		for _, tx := range recent {
			total = total.Add(tx.Amount)
		}
		ok := s.dispatch(ctx, models.NotificationEvent{
			AccountID: account.ID,
			Message:   fmt.Sprintf("Daily Summary: %d transactions totaling %s", len(recent), total.StringFixed(2)),
			Category:  models.CategorySummary,
			Severity:  models.SeverityInfo,
			Amount:    &total,
		})
		if ok {
			sent++
		}
	}
	return sent, nil
}

// FlaggedReminders nudges the sender of every FLAGGED transaction older
// than the reminder age.
func (s *Sweeper) FlaggedReminders(ctx context.Context, now time.Time) (int, error) {
	flagged, err := s.history.FindByStatus(ctx, models.StatusFlagged)
	if err != nil {
		return 0, fmt.Errorf("flagged transactions: %w", err)
	}

	cutoff := now.Add(-s.reminderAge)
	sent := 0
	for _, tx := range flagged {
		if !tx.Timestamp.Before(cutoff) {
			continue
		}
		ok := s.dispatch(ctx, models.NotificationEvent{
			AccountID:     tx.SenderID,
			Message:       reminderMessage,
			Category:      models.CategoryTransaction,
			Severity:      models.SeverityWarning,
			TransactionID: tx.ID,
		})
		if ok {
			sent++
		}
	}
	return sent, nil
}

func (s *Sweeper) dispatch(ctx context.Context, ev models.NotificationEvent) bool {
	if _, err := s.notifier.Dispatch(ctx, ev); err != nil {
		s.logger.Warn("sweep notification failed",
			zap.String("account_id", ev.AccountID), zap.String("transaction_id", ev.TransactionID), zap.Error(err))
		return false
	}
	return true
}
