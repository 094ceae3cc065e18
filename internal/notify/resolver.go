package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
)

var ErrInvalidPreference = errors.New("invalid notification preference")

// Resolver maps an account to its delivery preferences, creating the
// defaults on first access.
type Resolver struct {
	prefs    interfaces.PreferenceStore
	accounts interfaces.AccountStore
}

// NewResolver reads preferences from prefs and checks account existence
// against accounts.
func NewResolver(prefs interfaces.PreferenceStore, accounts interfaces.AccountStore) *Resolver {
	return &Resolver{prefs: prefs, accounts: accounts}
}

// Resolve is safe to call concurrently for the same account; the store's
// get-or-create guarantees a single row. Unknown accounts get no row.
func (r *Resolver) Resolve(ctx context.Context, accountID string) (models.NotificationPreference, error) {
	if _, err := r.accounts.GetAccount(ctx, accountID); err != nil {
		return models.NotificationPreference{}, fmt.Errorf("account %s: %w", accountID, err)
	}
	return r.prefs.GetOrCreatePreference(ctx, models.DefaultPreference(accountID))
}

// Update replaces the account's preferences.
func (r *Resolver) Update(ctx context.Context, pref models.NotificationPreference) (models.NotificationPreference, error) {
	if pref.EmailTransactionThreshold.IsNegative() || pref.SMSTransactionThreshold.IsNegative() {
		return models.NotificationPreference{}, fmt.Errorf("%w: thresholds must not be negative", ErrInvalidPreference)
	}
	if _, err := r.Resolve(ctx, pref.AccountID); err != nil {
		return models.NotificationPreference{}, err
	}
	if err := r.prefs.UpdatePreference(ctx, pref); err != nil {
		return models.NotificationPreference{}, err
	}
	return r.Resolve(ctx, pref.AccountID)
}
