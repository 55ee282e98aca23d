package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

var ErrInvalidThreshold = errors.New("thresholds must be non-negative")

// ExitRule closes a position once the price moved ProfitPct up or LossPct down
// from entry. Both boundaries are inclusive.
type ExitRule struct {
	ProfitPct decimal.Decimal
	LossPct   decimal.Decimal
}

// Validate rejects negative thresholds.
func (r ExitRule) Validate() error {
	if r.ProfitPct.IsNegative() || r.LossPct.IsNegative() {
		return fmt.Errorf("exit rule: %w: profit %s%%, loss %s%%",
			ErrInvalidThreshold, r.ProfitPct, r.LossPct)
	}
	return nil
}

// Evaluate decides whether a position entered at entry must close at current.
//
// The comparison is done as (current-entry)*100 against threshold*entry so the
// boundary is exact: entry 10 closes at 16 with a 60% profit rule, not at 16.0000001.
func (r ExitRule) Evaluate(entry, current decimal.Decimal) (ExitReason, bool) {
	if !entry.IsPositive() {
		return "", false
	}
	move := current.Sub(entry).Mul(hundred)
	if move.GreaterThanOrEqual(r.ProfitPct.Mul(entry)) {
		return ExitTakeProfit, true
	}
	if move.LessThanOrEqual(r.LossPct.Mul(entry).Neg()) {
		return ExitStopLoss, true
	}
	return "", false
}

// ChangePct is (current-entry)/entry*100. Zero when entry is not positive.
func ChangePct(entry, current decimal.Decimal) decimal.Decimal {
	if !entry.IsPositive() {
		return decimal.Zero
	}
	return current.Sub(entry).Div(entry).Mul(hundred)
}
