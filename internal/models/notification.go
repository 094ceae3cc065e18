package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryTransaction Category = "TRANSACTION"
	CategorySecurity    Category = "SECURITY"
	CategorySystem      Category = "SYSTEM"
	CategorySummary     Category = "SUMMARY"
)

type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

const ReferenceTransaction = "TRANSACTION"

// Notification is the persisted history row of an alert sent to an account.
type Notification struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	Message       string    `json:"message"`
	Category      Category  `json:"category"`
	Severity      Severity  `json:"severity"`
	Read          bool      `json:"read"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	ReferenceType string    `json:"reference_type,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NotificationEvent is a request to alert an account. Amount is optional and
// only consulted for TRANSACTION email thresholds.
type NotificationEvent struct {
	AccountID     string
	Message       string
	Category      Category
	Severity      Severity
	Amount        *decimal.Decimal
	TransactionID string
}

// NotificationPreference holds the per-account delivery settings.
type NotificationPreference struct {
	AccountID string `json:"account_id"`

	EnableRealTime bool `json:"enable_real_time"`

	EnableEmail               bool            `json:"enable_email"`
	EmailForTransactions      bool            `json:"email_for_transactions"`
	EmailForSecurity          bool            `json:"email_for_security"`
	EmailForSystem            bool            `json:"email_for_system"`
	EmailTransactionThreshold decimal.Decimal `json:"email_transaction_threshold"`

	EnableSMS               bool            `json:"enable_sms"`
	SMSForTransactions      bool            `json:"sms_for_transactions"`
	SMSForSecurity          bool            `json:"sms_for_security"`
	SMSForSystem            bool            `json:"sms_for_system"`
	SMSTransactionThreshold decimal.Decimal `json:"sms_transaction_threshold"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultPreference returns the settings applied on first access.
func DefaultPreference(accountID string) NotificationPreference {
	return NotificationPreference{
		AccountID:                 accountID,
		EnableRealTime:            true,
		EnableEmail:               true,
		EmailForTransactions:      true,
		EmailForSecurity:          true,
		EmailForSystem:            false,
		EmailTransactionThreshold: decimal.NewFromInt(100),
		EnableSMS:                 true,
		SMSForTransactions:        true,
		SMSForSecurity:            true,
		SMSForSystem:              false,
		SMSTransactionThreshold:   decimal.NewFromInt(500),
	}
}
