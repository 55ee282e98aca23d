package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/raybot/internal/domain"
)

// TradeExecutor carries out the buys and sells decided by the position engine.
// The engine owns wallet, positions and ledger; an executor only reports fills.
type TradeExecutor interface {
	// Name identifies the backend in logs ("paper", "onchain").
	Name() string

	// Buy spends exactly amount on pair. On error nothing was bought.
	Buy(ctx context.Context, pair domain.Pair, amount decimal.Decimal) (domain.Fill, error)

	// Sell disposes of the whole position at roughly price. On error the
	// position is still held.
	Sell(ctx context.Context, pos domain.Position, price decimal.Decimal) (domain.Fill, error)
}
