package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
	StatusFlagged   TransactionStatus = "FLAGGED"
	StatusDisputed  TransactionStatus = "DISPUTED"
)

// Terminal reports whether no automatic transition leaves this status.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusFlagged, StatusDisputed:
		return true
	}
	return false
}

type TransactionType string

const (
	TypeTransfer   TransactionType = "TRANSFER"
	TypeDeposit    TransactionType = "DEPOSIT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeTransfer, TypeDeposit, TypeWithdrawal:
		return true
	}
	return false
}

const (
	DisputePending = "PENDING"

	RecurringMonthly = "MONTHLY"

	InsufficientFundsDescription = "Insufficient funds"

	// MoneyScale is the number of decimal places amounts and balances carry.
	MoneyScale = 2
)

// Transaction represents one attempted movement of money and its outcome.
// RecipientID is empty for deposits and withdrawals. IdempotencyKey is
// unique per sender when set. Replayed is not stored; it marks a result
// returned for a request that had already been processed.
type Transaction struct {
	ID               string              `json:"id"`
	ReferenceNumber  string              `json:"reference_number"`
	IdempotencyKey   string              `json:"idempotency_key,omitempty"`
	SenderID         string              `json:"sender_id"`
	RecipientID      string              `json:"recipient_id,omitempty"`
	Amount           decimal.Decimal     `json:"amount"`
	Timestamp        time.Time           `json:"timestamp"`
	Status           TransactionStatus   `json:"status"`
	Type             TransactionType     `json:"type"`
	Description      string              `json:"description"`
	Category         string              `json:"category"`
	MerchantName     string              `json:"merchant_name,omitempty"`
	IPAddress        string              `json:"ip_address,omitempty"`
	DeviceInfo       string              `json:"device_info,omitempty"`
	IsFraudSuspected bool                `json:"is_fraud_suspected"`
	FraudReason      string              `json:"fraud_reason,omitempty"`
	IsRecurring      bool                `json:"is_recurring"`
	RecurringPattern string              `json:"recurring_pattern,omitempty"`
	IsDisputed       bool                `json:"is_disputed"`
	DisputeReason    string              `json:"dispute_reason,omitempty"`
	DisputeDate      *time.Time          `json:"dispute_date,omitempty"`
	DisputeStatus    string              `json:"dispute_status,omitempty"`
	BalanceAfter     decimal.NullDecimal `json:"balance_after"`
	Replayed         bool                `json:"replayed,omitempty"`
}

// HasRecipient reports whether the transaction credits a second account.
func (t Transaction) HasRecipient() bool {
	return t.RecipientID != ""
}

// TransactionFilter narrows a history query. Zero values and nil pointers
// leave the corresponding dimension unbounded.
type TransactionFilter struct {
	AccountID string
	Search    string
	Type      TransactionType
	Status    TransactionStatus
	Category  string
	From      *time.Time
	To        *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Limit     int
	Offset    int
}
