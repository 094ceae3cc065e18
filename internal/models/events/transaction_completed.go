package events

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionCompleted struct {
	TransactionID   string          `json:"transaction_id"`
	ReferenceNumber string          `json:"reference_number"`
	Type            string          `json:"type"`
	FromAccount     string          `json:"from_account"`
	ToAccount       string          `json:"to_account,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	BalanceAfter    decimal.Decimal `json:"balance_after"`
	Category        string          `json:"category"`
	Recurring       bool            `json:"recurring"`
	OccurredAt      time.Time       `json:"occurred_at"`
}
