// Package analytics reports on an account's spending. Everything here is
// read-only.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
	"github.com/shopspring/decimal"
)

const defaultLookbackMonths = 6

type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

type MonthTotal struct {
	Month string          `json:"month"`
	Total decimal.Decimal `json:"total"`
}

type Summary struct {
	AccountID  string          `json:"account_id"`
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	Count      int             `json:"count"`
	Total      decimal.Decimal `json:"total"`
	Average    decimal.Decimal `json:"average"`
	Categories []CategoryTotal `json:"categories"`
	Monthly    []MonthTotal    `json:"monthly"`
}

type RecurringGroup struct {
	Description  string          `json:"description"`
	MerchantName string          `json:"merchant_name"`
	Amount       decimal.Decimal `json:"amount"`
	Occurrences  int             `json:"occurrences"`
	LastSeen     time.Time       `json:"last_seen"`
}

type Service struct {
	history interfaces.TransactionHistory
	now     func() time.Time
}

func NewService(history interfaces.TransactionHistory) *Service {
	return &Service{history: history, now: time.Now}
}

// Summarize aggregates money that left the account between from and to.
// A nil from means six months back; a nil to means now.
func (s *Service) Summarize(ctx context.Context, accountID string, from, to *time.Time) (Summary, error) {
	end := s.now().UTC()
	if to != nil {
		end = *to
	}
	start := end.AddDate(0, -defaultLookbackMonths, 0)
	if from != nil {
		start = *from
	}

	spent, err := s.spending(ctx, accountID, &start, &end)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{AccountID: accountID, From: start, To: end, Total: decimal.Zero, Average: decimal.Zero}
	byCategory := map[string]*CategoryTotal{}
	byMonth := map[string]decimal.Decimal{}
	for _, tx := range spent {
		sum.Count++
		sum.Total = sum.Total.Add(tx.Amount)

		cat := byCategory[tx.Category]
		if cat == nil {
			cat = &CategoryTotal{Category: tx.Category, Total: decimal.Zero}
			byCategory[tx.Category] = cat
		}
		cat.Total = cat.Total.Add(tx.Amount)
		cat.Count++

		month := tx.Timestamp.Format("2006-01")
		byMonth[month] = byMonth[month].Add(tx.Amount)
	}
	if sum.Count > 0 {
		sum.Average = sum.Total.Div(decimal.NewFromInt(int64(sum.Count)))
	}

	for _, c := range byCategory {
		sum.Categories = append(sum.Categories, *c)
	}
	sort.Slice(sum.Categories, func(i, j int) bool {
		if cmp := sum.Categories[i].Total.Cmp(sum.Categories[j].Total); cmp != 0 {
			return cmp > 0
		}
		return sum.Categories[i].Category < sum.Categories[j].Category
	})

	for month, total := range byMonth {
		sum.Monthly = append(sum.Monthly, MonthTotal{Month: month, Total: total})
	}
	sort.Slice(sum.Monthly, func(i, j int) bool { return sum.Monthly[i].Month < sum.Monthly[j].Month })

	return sum, nil
}

// RecurringCandidates groups outgoing payments by description, amount and
// merchant and returns the groups seen at least minOccurrences times.
func (s *Service) RecurringCandidates(ctx context.Context, accountID string, since time.Time, minOccurrences int) ([]RecurringGroup, error) {
	if minOccurrences < 1 {
		minOccurrences = 1
	}
	end := s.now().UTC()
	spent, err := s.spending(ctx, accountID, &since, &end)
	if err != nil {
		return nil, err
	}

	type key struct{ description, amount, merchant string }
	groups := map[key]*RecurringGroup{}
	for _, tx := range spent {
		k := key{tx.Description, tx.Amount.StringFixed(2), tx.MerchantName}
		g := groups[k]
		if g == nil {
			g = &RecurringGroup{Description: tx.Description, MerchantName: tx.MerchantName, Amount: tx.Amount}
			groups[k] = g
		}
		g.Occurrences++
		if tx.Timestamp.After(g.LastSeen) {
			g.LastSeen = tx.Timestamp
		}
	}

	var out []RecurringGroup
	for _, g := range groups {
		if g.Occurrences >= minOccurrences {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Description < out[j].Description
	})
	return out, nil
}

// spending returns settled outflows: transfers and withdrawals the account
// sent that completed, including ones disputed later.
func (s *Service) spending(ctx context.Context, accountID string, from, to *time.Time) ([]models.Transaction, error) {
	all, err := s.history.FindWithFilter(ctx, models.TransactionFilter{AccountID: accountID, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", accountID, err)
	}

	var out []models.Transaction
	for _, tx := range all {
		if tx.SenderID != accountID || tx.Type == models.TypeDeposit {
			continue
		}
		if tx.Status != models.StatusCompleted && tx.Status != models.StatusDisputed {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}
