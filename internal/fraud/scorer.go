// Package fraud scores candidate transactions against the sender's history.
// Scoring is advisory: it reads history and never writes.
package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
	"github.com/shopspring/decimal"
)

const (
	ReasonUnusualAmount   = "Unusual transaction amount"
	ReasonUnusualLocation = "Unusual transaction location"
	ReasonRapidSuccession = "Multiple rapid transactions"
)

const (
	AmountMultiplier = 3
	RapidWindow      = 5 * time.Minute
	RapidThreshold   = 3
)

// Candidate is a transaction about to be executed together with the data
// the rules inspect.
type Candidate struct {
	Transaction models.Transaction
	Sender      models.Account
	Now         time.Time
}

type Verdict struct {
	Suspected bool
	Reason    string
}

// Rule is one heuristic. Check reports whether the candidate trips it.
type Rule struct {
	Reason string
	Check  func(ctx context.Context, history interfaces.TransactionHistory, c Candidate) (bool, error)
}

// Scorer evaluates rules in order; the first rule that matches decides.
type Scorer struct {
	history interfaces.TransactionHistory
	rules   []Rule
}

func NewScorer(history interfaces.TransactionHistory, rules ...Rule) *Scorer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Scorer{history: history, rules: rules}
}

func DefaultRules() []Rule {
	return []Rule{
		{Reason: ReasonUnusualAmount, Check: unusualAmount},
		{Reason: ReasonUnusualLocation, Check: unusualLocation},
		{Reason: ReasonRapidSuccession, Check: rapidSuccession},
	}
}

func (s *Scorer) Evaluate(ctx context.Context, c Candidate) (Verdict, error) {
	for _, rule := range s.rules {
		hit, err := rule.Check(ctx, s.history, c)
		if err != nil {
			return Verdict{}, fmt.Errorf("fraud rule %q: %w", rule.Reason, err)
		}
		if hit {
			return Verdict{Suspected: true, Reason: rule.Reason}, nil
		}
	}
	return Verdict{}, nil
}

// unusualAmount trips when the amount exceeds three times the sender's
// average. No history means no average and never trips.
func unusualAmount(ctx context.Context, history interfaces.TransactionHistory, c Candidate) (bool, error) {
	avg, n, err := history.AverageAmountFor(ctx, c.Transaction.SenderID)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	return c.Transaction.Amount.GreaterThan(avg.Mul(decimal.NewFromInt(AmountMultiplier))), nil
}

// unusualLocation trips when a last-login origin is on file and the request
// came from a different one.
func unusualLocation(_ context.Context, _ interfaces.TransactionHistory, c Candidate) (bool, error) {
	last := c.Sender.LastLoginIP
	return last != "" && last != c.Transaction.IPAddress, nil
}

func rapidSuccession(ctx context.Context, history interfaces.TransactionHistory, c Candidate) (bool, error) {
	recent, err := history.FindBySenderAfter(ctx, c.Transaction.SenderID, c.Now.Add(-RapidWindow))
	if err != nil {
		return false, err
	}
	return len(recent) >= RapidThreshold, nil
}
