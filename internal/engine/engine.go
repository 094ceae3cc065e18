// Package engine executes money movements end to end: fraud scoring, the
// atomic balance update, the transaction record and the notifications that
// follow a settled transaction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/categorize"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/fraud"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models/events"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultEventsTopic = "transaction_completed"

	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200

	recurringLookbackMonths = 2
	recurringMinMatches     = 2
)

const (
	msgFlagged         = "Suspicious transaction detected and blocked. Please contact support."
	msgFailed          = "Transaction failed: " + models.InsufficientFundsDescription
	msgDisputeReceived = "Your transaction dispute has been submitted and is under review"
)

// Store is the persistence the engine needs: plain repositories for
// lookups and a unit of work for settlement.
type Store interface {
	interfaces.Repositories
	interfaces.UnitOfWork
}

// Request describes one money movement. RecipientID is set only for
// transfers. A request carrying an IdempotencyKey the sender already used
// returns the earlier transaction instead of executing again.
type Request struct {
	SenderID       string
	RecipientID    string
	Amount         decimal.Decimal
	Type           models.TransactionType
	Description    string
	IPAddress      string
	DeviceInfo     string
	IdempotencyKey string
}

func (r Request) validate() error {
	if strings.TrimSpace(r.SenderID) == "" {
		return validation("sender account is required")
	}
	if !r.Amount.IsPositive() {
		return validation("amount must be positive, got %s", r.Amount)
	}
	if !r.Amount.Equal(r.Amount.Round(models.MoneyScale)) {
		return validation("amount %s has more than %d decimal places", r.Amount, models.MoneyScale)
	}
	switch r.Type {
	case models.TypeTransfer:
		if r.RecipientID == "" {
			return validation("transfer requires a recipient")
		}
		if r.RecipientID == r.SenderID {
			return validation("cannot transfer to the same account")
		}
	case models.TypeDeposit, models.TypeWithdrawal:
		if r.RecipientID != "" {
			return validation("%s does not take a recipient", r.Type)
		}
	default:
		return validation("unknown transaction type %q", r.Type)
	}
	return nil
}

// Engine is the orchestrator for money movements. It holds the stores, the
// account locker and the notifier that settled transactions are reported to.
type Engine struct {
	store    Store
	locker   interfaces.Locker
	scorer   *fraud.Scorer
	notifier interfaces.Notifier

	publisher   interfaces.EventPublisher
	eventsTopic string

	now          func() time.Time
	newID        func() string
	newReference func() string
	logger       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithScorer replaces the default fraud rule chain.
func WithScorer(s *fraud.Scorer) Option { return func(e *Engine) { e.scorer = s } }

// WithPublisher enables TransactionCompleted events on the given topic.
func WithPublisher(p interfaces.EventPublisher, topic string) Option {
	return func(e *Engine) {
		e.publisher = p
		if topic != "" {
			e.eventsTopic = topic
		}
	}
}

func WithClock(now func() time.Time) Option         { return func(e *Engine) { e.now = now } }
func WithIDGenerator(f func() string) Option        { return func(e *Engine) { e.newID = f } }
func WithReferenceGenerator(f func() string) Option { return func(e *Engine) { e.newReference = f } }

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine builds an engine over store. Fraud scoring defaults to the
// standard rules over the store's transaction history.
func NewEngine(store Store, locker interfaces.Locker, notifier interfaces.Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		locker:       locker,
		notifier:     notifier,
		eventsTopic:  DefaultEventsTopic,
		now:          time.Now,
		newID:        uuid.NewString,
		newReference: NewReferenceNumber,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.scorer == nil {
		e.scorer = fraud.NewScorer(store.Transactions())
	}
	return e
}

// NewReferenceNumber returns a customer-facing reference such as TXN1A2B3C4D.
func NewReferenceNumber() string {
	return "TXN" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Transfer moves amount from senderID to recipientID.
func (e *Engine) Transfer(ctx context.Context, senderID, recipientID string, amount decimal.Decimal, description string) (models.Transaction, error) {
	return e.Execute(ctx, Request{
		SenderID: senderID, RecipientID: recipientID, Amount: amount,
		Type: models.TypeTransfer, Description: description,
	})
}

// Deposit credits accountID.
func (e *Engine) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (models.Transaction, error) {
	return e.Execute(ctx, Request{SenderID: accountID, Amount: amount, Type: models.TypeDeposit, Description: description})
}

// Withdraw debits accountID. A withdrawal above the balance is recorded FAILED.
func (e *Engine) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, description string) (models.Transaction, error) {
	return e.Execute(ctx, Request{SenderID: accountID, Amount: amount, Type: models.TypeWithdrawal, Description: description})
}

// Execute runs one request to a terminal status. Fraud and insufficient
// funds are outcomes, not errors: the returned transaction is FLAGGED or
// FAILED and no balance moved. An error means nothing was recorded.
func (e *Engine) Execute(ctx context.Context, req Request) (models.Transaction, error) {
	if err := req.validate(); err != nil {
		return models.Transaction{}, err
	}

	if req.IdempotencyKey != "" {
		existing, err := e.store.Transactions().FindByIdempotencyKey(ctx, req.SenderID, req.IdempotencyKey)
		switch {
		case err == nil:
			return e.replay(existing), nil
		case !errors.Is(err, ErrNotFound):
			return models.Transaction{}, classify("idempotency lookup", err)
		}
	}

	sender, err := e.store.Accounts().GetAccount(ctx, req.SenderID)
	if err != nil {
		return models.Transaction{}, classify("load sender", fmt.Errorf("sender %s: %w", req.SenderID, err))
	}
	if req.RecipientID != "" {
		if _, err := e.store.Accounts().GetAccount(ctx, req.RecipientID); err != nil {
			return models.Transaction{}, classify("load recipient", fmt.Errorf("recipient %s: %w", req.RecipientID, err))
		}
	}

	now := e.now().UTC()
	tx := models.Transaction{
		ID:              e.newID(),
		ReferenceNumber: e.newReference(),
		SenderID:        req.SenderID,
		RecipientID:     req.RecipientID,
		Amount:          req.Amount,
		Timestamp:       now,
		Status:          models.StatusPending,
		Type:            req.Type,
		Description:     req.Description,
		Category:        categorize.Category(req.Description),
		MerchantName:    categorize.Merchant(req.Description),
		IPAddress:       req.IPAddress,
		DeviceInfo:      req.DeviceInfo,
		IdempotencyKey:  req.IdempotencyKey,
	}

	verdict, err := e.scorer.Evaluate(ctx, fraud.Candidate{Transaction: tx, Sender: sender, Now: now})
	if err != nil {
		return models.Transaction{}, classify("fraud scoring", err)
	}

	unlock, err := e.locker.Lock(ctx, tx.SenderID, tx.RecipientID)
	if err != nil {
		return models.Transaction{}, classify("lock accounts", err)
	}
	var earlier *models.Transaction
	err = e.store.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		if tx.IdempotencyKey != "" {
			prev, err := repos.Transactions().FindByIdempotencyKey(ctx, tx.SenderID, tx.IdempotencyKey)
			if err == nil {
				earlier = &prev
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		return e.settle(ctx, repos, &tx, verdict)
	})
	unlock()
	if err == nil && earlier != nil {
		return e.replay(*earlier), nil
	}
	if errors.Is(err, storage.ErrAlreadyExists) && tx.IdempotencyKey != "" {
		if prev, lookupErr := e.store.Transactions().FindByIdempotencyKey(ctx, tx.SenderID, tx.IdempotencyKey); lookupErr == nil {
			return e.replay(prev), nil
		}
	}
	if err != nil {
		e.logger.Error("transaction aborted",
			zap.String("transaction_id", tx.ID), zap.String("account_id", tx.SenderID), zap.Error(err))
		return models.Transaction{}, classify("settle transaction", err)
	}

	e.logger.Info("transaction settled",
		zap.String("transaction_id", tx.ID), zap.String("reference", tx.ReferenceNumber),
		zap.String("type", string(tx.Type)), zap.String("status", string(tx.Status)))

	e.announce(ctx, tx, sender)
	return tx, nil
}

// replay marks a previously recorded transaction as the answer to a
// repeated request. Nothing is settled or announced again.
func (e *Engine) replay(tx models.Transaction) models.Transaction {
	e.logger.Info("idempotent replay",
		zap.String("transaction_id", tx.ID), zap.String("idempotency_key", tx.IdempotencyKey))
	tx.Replayed = true
	return tx
}

// settle runs inside the unit of work. Balances are re-read under the lock
// and the transaction record is always the last write.
func (e *Engine) settle(ctx context.Context, repos interfaces.Repositories, tx *models.Transaction, verdict fraud.Verdict) error {
	if verdict.Suspected {
		tx.Status = models.StatusFlagged
		tx.IsFraudSuspected = true
		tx.FraudReason = verdict.Reason
		return repos.Transactions().SaveTransaction(ctx, *tx)
	}

	sender, err := repos.Accounts().GetAccount(ctx, tx.SenderID)
	if err != nil {
		return fmt.Errorf("sender %s: %w", tx.SenderID, err)
	}

	if tx.Type == models.TypeDeposit {
		sender.Balance = sender.Balance.Add(tx.Amount)
	} else {
		if sender.Balance.LessThan(tx.Amount) {
			tx.Status = models.StatusFailed
			tx.Description = models.InsufficientFundsDescription
			return repos.Transactions().SaveTransaction(ctx, *tx)
		}
		sender.Balance = sender.Balance.Sub(tx.Amount)
	}
	if err := repos.Accounts().SaveAccount(ctx, sender); err != nil {
		return fmt.Errorf("save sender: %w", err)
	}

	if tx.HasRecipient() {
		recipient, err := repos.Accounts().GetAccount(ctx, tx.RecipientID)
		if err != nil {
			return fmt.Errorf("recipient %s: %w", tx.RecipientID, err)
		}
		recipient.Balance = recipient.Balance.Add(tx.Amount)
		if err := repos.Accounts().SaveAccount(ctx, recipient); err != nil {
			return fmt.Errorf("save recipient: %w", err)
		}
	}

	tx.BalanceAfter = decimal.NewNullDecimal(sender.Balance)
	tx.Status = models.StatusCompleted

	since := tx.Timestamp.AddDate(0, -recurringLookbackMonths, 0)
	similar, err := repos.Transactions().FindSimilar(ctx, tx.SenderID, tx.Description, tx.Amount, since)
	if err != nil {
		return fmt.Errorf("recurring lookup: %w", err)
	}
	if len(similar) >= recurringMinMatches {
		tx.IsRecurring = true
		tx.RecurringPattern = models.RecurringMonthly
	}

	return repos.Transactions().SaveTransaction(ctx, *tx)
}

// announce runs after commit. Nothing here can fail the transaction.
func (e *Engine) announce(ctx context.Context, tx models.Transaction, sender models.Account) {
	amount := tx.Amount

	switch tx.Status {
	case models.StatusFlagged:
		e.notify(ctx, models.NotificationEvent{
			AccountID: tx.SenderID, Message: msgFlagged,
			Category: models.CategorySecurity, Severity: models.SeverityCritical, TransactionID: tx.ID,
		})

	case models.StatusFailed:
		e.notify(ctx, models.NotificationEvent{
			AccountID: tx.SenderID, Message: msgFailed,
			Category: models.CategoryTransaction, Severity: models.SeverityWarning,
			Amount: &amount, TransactionID: tx.ID,
		})

	case models.StatusCompleted:
		e.notify(ctx, models.NotificationEvent{
			AccountID: tx.SenderID,
			Message:   fmt.Sprintf("%s of %s was completed", label(tx.Type), money(tx.Amount)),
			Category:  models.CategoryTransaction, Severity: models.SeverityInfo,
			Amount: &amount, TransactionID: tx.ID,
		})
		if tx.HasRecipient() {
			e.notify(ctx, models.NotificationEvent{
				AccountID: tx.RecipientID,
				Message:   fmt.Sprintf("You received %s from %s", money(tx.Amount), displayName(sender)),
				Category:  models.CategoryTransaction, Severity: models.SeverityInfo,
				Amount: &amount, TransactionID: tx.ID,
			})
		}
		e.publishCompleted(ctx, tx)
	}
}

func (e *Engine) notify(ctx context.Context, ev models.NotificationEvent) {
	if e.notifier == nil {
		return
	}
	if _, err := e.notifier.Dispatch(ctx, ev); err != nil {
		e.logger.Warn("notification dispatch failed",
			zap.String("account_id", ev.AccountID), zap.String("transaction_id", ev.TransactionID), zap.Error(err))
	}
}

func (e *Engine) publishCompleted(ctx context.Context, tx models.Transaction) {
	if e.publisher == nil {
		return
	}
	ev := events.TransactionCompleted{
		TransactionID:   tx.ID,
		ReferenceNumber: tx.ReferenceNumber,
		Type:            string(tx.Type),
		FromAccount:     tx.SenderID,
		ToAccount:       tx.RecipientID,
		Amount:          tx.Amount,
		BalanceAfter:    tx.BalanceAfter.Decimal,
		Category:        tx.Category,
		Recurring:       tx.IsRecurring,
		OccurredAt:      tx.Timestamp,
	}
	if err := e.publisher.Publish(ctx, e.eventsTopic, tx.SenderID, ev); err != nil {
		e.logger.Warn("publish transaction event failed",
			zap.String("transaction_id", tx.ID), zap.String("topic", e.eventsTopic), zap.Error(err))
	}
}

// Dispute moves a COMPLETED transaction to DISPUTED. Any other starting
// status is rejected and leaves the record untouched.
func (e *Engine) Dispute(ctx context.Context, transactionID, reason string) (models.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if transactionID == "" {
		return models.Transaction{}, validation("transaction id is required")
	}
	if reason == "" {
		return models.Transaction{}, validation("dispute reason is required")
	}

	current, err := e.store.Transactions().GetTransaction(ctx, transactionID)
	if err != nil {
		return models.Transaction{}, classify("load transaction", fmt.Errorf("transaction %s: %w", transactionID, err))
	}

	unlock, err := e.locker.Lock(ctx, current.SenderID)
	if err != nil {
		return models.Transaction{}, classify("lock accounts", err)
	}
	var disputed models.Transaction
	err = e.store.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		tx, err := repos.Transactions().GetTransaction(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("transaction %s: %w", transactionID, err)
		}
		if tx.Status != models.StatusCompleted {
			return fmt.Errorf("%w: cannot dispute %s transaction %s", ErrIllegalStateTransition, tx.Status, tx.ID)
		}

		now := e.now().UTC()
		tx.Status = models.StatusDisputed
		tx.IsDisputed = true
		tx.DisputeReason = reason
		tx.DisputeDate = &now
		tx.DisputeStatus = models.DisputePending
		if err := repos.Transactions().SaveTransaction(ctx, tx); err != nil {
			return err
		}
		disputed = tx
		return nil
	})
	unlock()
	if err != nil {
		return models.Transaction{}, classify("dispute transaction", err)
	}

	e.logger.Info("transaction disputed", zap.String("transaction_id", disputed.ID))
	e.notify(ctx, models.NotificationEvent{
		AccountID: disputed.SenderID, Message: msgDisputeReceived,
		Category: models.CategoryTransaction, Severity: models.SeverityInfo, TransactionID: disputed.ID,
	})
	return disputed, nil
}

// GetBalance returns the account's current balance.
func (e *Engine) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	account, err := e.store.Accounts().GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, classify("load account", fmt.Errorf("account %s: %w", accountID, err))
	}
	return account.Balance, nil
}

// GetTransaction returns one transaction by id.
func (e *Engine) GetTransaction(ctx context.Context, transactionID string) (models.Transaction, error) {
	tx, err := e.store.Transactions().GetTransaction(ctx, transactionID)
	if err != nil {
		return models.Transaction{}, classify("load transaction", fmt.Errorf("transaction %s: %w", transactionID, err))
	}
	return tx, nil
}

// History lists the account's transactions, sent or received, newest
// first. Limit defaults to DefaultHistoryLimit and is capped at
// MaxHistoryLimit.
func (e *Engine) History(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	if filter.AccountID == "" {
		return nil, validation("account id is required")
	}
	if filter.Offset < 0 || filter.Limit < 0 {
		return nil, validation("limit and offset must not be negative")
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, validation("from must not be after to")
	}
	if filter.MinAmount != nil && filter.MaxAmount != nil && filter.MinAmount.GreaterThan(*filter.MaxAmount) {
		return nil, validation("min amount must not exceed max amount")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, validation("unknown transaction type %q", filter.Type)
	}
	switch {
	case filter.Limit == 0:
		filter.Limit = DefaultHistoryLimit
	case filter.Limit > MaxHistoryLimit:
		filter.Limit = MaxHistoryLimit
	}
	filter.Category = strings.ToUpper(strings.TrimSpace(filter.Category))

	if _, err := e.store.Accounts().GetAccount(ctx, filter.AccountID); err != nil {
		return nil, classify("load account", fmt.Errorf("account %s: %w", filter.AccountID, err))
	}
	txs, err := e.store.Transactions().FindWithFilter(ctx, filter)
	if err != nil {
		return nil, classify("transaction history", err)
	}
	return txs, nil
}

// Recategorize overrides the derived spending category. Category is
// metadata, so it may change in any status.
func (e *Engine) Recategorize(ctx context.Context, transactionID, category string) (models.Transaction, error) {
	category = strings.ToUpper(strings.TrimSpace(category))
	if transactionID == "" {
		return models.Transaction{}, validation("transaction id is required")
	}
	if category == "" {
		return models.Transaction{}, validation("category is required")
	}

	current, err := e.store.Transactions().GetTransaction(ctx, transactionID)
	if err != nil {
		return models.Transaction{}, classify("load transaction", fmt.Errorf("transaction %s: %w", transactionID, err))
	}

	unlock, err := e.locker.Lock(ctx, current.SenderID)
	if err != nil {
		return models.Transaction{}, classify("lock accounts", err)
	}
	var updated models.Transaction
	err = e.store.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		tx, err := repos.Transactions().GetTransaction(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("transaction %s: %w", transactionID, err)
		}
		tx.Category = category
		if err := repos.Transactions().SaveTransaction(ctx, tx); err != nil {
			return err
		}
		updated = tx
		return nil
	})
	unlock()
	if err != nil {
		return models.Transaction{}, classify("recategorize transaction", err)
	}

	e.logger.Info("transaction recategorized",
		zap.String("transaction_id", updated.ID), zap.String("category", updated.Category))
	return updated, nil
}

func label(t models.TransactionType) string {
	switch t {
	case models.TypeDeposit:
		return "Deposit"
	case models.TypeWithdrawal:
		return "Withdrawal"
	}
	return "Transfer"
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func displayName(a models.Account) string {
	switch {
	case a.HolderName != "":
		return a.HolderName
	case a.AccountNumber != "":
		return a.AccountNumber
	}
	return a.ID
}
