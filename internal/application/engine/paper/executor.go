package paper

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/raybot/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Executor simulates fills with wallet arithmetic only.
//
// SlippagePct is a fixed haircut: on BUY the quantity received shrinks, on
// SELL the proceeds shrink. Zero gives exact amount/price and quantity*price.
type Executor struct {
	slippage decimal.Decimal // fraction, 0.01 = 1%
}

// NewExecutor creates a simulated executor.
func NewExecutor(slippagePct decimal.Decimal) (*Executor, error) {
	if slippagePct.IsNegative() || slippagePct.GreaterThanOrEqual(hundred) {
		return nil, fmt.Errorf("paper.NewExecutor: slippage must be in [0, 100): %s", slippagePct)
	}
	return &Executor{slippage: slippagePct.Div(hundred)}, nil
}

// Name implements ports.TradeExecutor.
func (e *Executor) Name() string { return "paper" }

// Buy implements ports.TradeExecutor.
func (e *Executor) Buy(ctx context.Context, pair domain.Pair, amount decimal.Decimal) (domain.Fill, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fill{}, err
	}
	if !pair.Price.IsPositive() {
		return domain.Fill{}, fmt.Errorf("paper.Buy %s: %w: price %s", pair.Name, domain.ErrInvalidAmount, pair.Price)
	}
	if !amount.IsPositive() {
		return domain.Fill{}, fmt.Errorf("paper.Buy %s: %w: amount %s", pair.Name, domain.ErrInvalidAmount, amount)
	}
	qty := amount.Div(pair.Price)
	if !e.slippage.IsZero() {
		qty = qty.Mul(decimal.NewFromInt(1).Sub(e.slippage))
	}
	return domain.Fill{Quantity: qty, Price: pair.Price, Value: amount}, nil
}

// Sell implements ports.TradeExecutor.
func (e *Executor) Sell(ctx context.Context, pos domain.Position, price decimal.Decimal) (domain.Fill, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fill{}, err
	}
	if price.IsNegative() {
		return domain.Fill{}, fmt.Errorf("paper.Sell %s: %w: price %s", pos.Name, domain.ErrInvalidAmount, price)
	}
	proceeds := pos.Quantity.Mul(price)
	if !e.slippage.IsZero() {
		proceeds = proceeds.Mul(decimal.NewFromInt(1).Sub(e.slippage))
	}
	return domain.Fill{Quantity: pos.Quantity, Price: price, Value: proceeds}, nil
}
