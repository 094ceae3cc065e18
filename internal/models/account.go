package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds balance, identity and contact details of an account holder.
type Account struct {
	ID                  string          `json:"id"`
	AccountNumber       string          `json:"account_number"`
	HolderName          string          `json:"holder_name"`
	Username            string          `json:"username"`
	Email               string          `json:"email,omitempty"`
	Phone               string          `json:"phone,omitempty"`
	Balance             decimal.Decimal `json:"balance"`
	LastLoginIP         string          `json:"last_login_ip,omitempty"`
	LastLoginAt         *time.Time      `json:"last_login_at,omitempty"`
	LastLoginDevice     string          `json:"last_login_device,omitempty"`
	FailedLoginAttempts int             `json:"failed_login_attempts"`
	Locked              bool            `json:"locked"`
	CreatedAt           time.Time       `json:"created_at"`
}
