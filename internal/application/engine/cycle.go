package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/alejandrodnm/raybot/internal/domain"
	"github.com/alejandrodnm/raybot/internal/ports"
)

// RunOnce executes a single cycle. It never panics and never returns an
// error: every failure is logged and reflected in the report.
func (e *Engine) RunOnce(ctx context.Context) (report ports.CycleReport) {
	e.cycle++
	report.Cycle = e.cycle
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: cycle panicked",
				"cycle", report.Cycle,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			report.PersistErr = e.safePersist(ctx)
		}

		report.Cash = e.state.Wallet.Cash()
		report.Positions = e.state.Positions.Snapshot()
		slog.Info("engine: cycle complete",
			"cycle", report.Cycle,
			"discovered", report.Discovered,
			"opened", report.Opened,
			"skipped", report.Skipped,
			"sold", report.Sold,
			"open_positions", len(report.Positions),
			"cash", report.Cash.StringFixed(2),
			"duration", time.Since(start).Round(time.Millisecond),
		)
		e.notify(func(r ports.Reporter) { r.ReportCycle(report) })
	}()

	pairs := e.discover(ctx, &report)
	e.openPositions(ctx, e.state, pairs, &report)
	e.monitorPositions(ctx, e.state, &report)
	report.PersistErr = e.safePersist(ctx)
	return report
}

// discover fetches newly listed pairs. A feed failure counts as "nothing new".
func (e *Engine) discover(ctx context.Context, report *ports.CycleReport) []domain.Pair {
	pairs, err := e.feed.NewlyListed(ctx, e.cfg.ListingWindow)
	if err != nil {
		slog.Warn("engine: listing unavailable, skipping discovery this cycle",
			"op", "newlyListed",
			"err", err,
		)
		report.FeedErr = err
		return nil
	}
	report.Discovered = len(pairs)
	if len(pairs) > 0 {
		names := make([]string, len(pairs))
		for i, p := range pairs {
			names[i] = p.Name
		}
		slog.Info("engine: new pairs found", "count", len(pairs), "pairs", names)
	} else {
		slog.Debug("engine: no new pairs in window", "window", e.cfg.ListingWindow)
	}
	return pairs
}

// openPositions buys every unheld pair it can afford, in feed order.
func (e *Engine) openPositions(ctx context.Context, st *State, pairs []domain.Pair, report *ports.CycleReport) {
	alloc := e.cfg.Allocation

	for _, pair := range pairs {
		if ctx.Err() != nil {
			slog.Info("engine: open phase interrupted", "remaining", pair.Name)
			return
		}

		key := pair.Key()
		if st.Positions.Has(key) {
			continue
		}
		if !pair.Price.IsPositive() {
			slog.Warn("engine: pair without usable price, skipping", "token", pair.Name, "price", pair.Price.String())
			continue
		}
		if !st.Wallet.CanAfford(alloc) {
			report.Skipped++
			slog.Info("engine: insufficient funds, skipping buy",
				"token", pair.Name,
				"cash", st.Wallet.Cash().StringFixed(2),
				"allocation", alloc.String(),
			)
			continue
		}

		fill, err := e.executor.Buy(ctx, pair, alloc)
		if err != nil {
			slog.Warn("engine: buy failed", "op", "buy", "token", pair.Name, "executor", e.executor.Name(), "err", err)
			continue
		}
		if !fill.Quantity.IsPositive() {
			slog.Warn("engine: buy filled nothing", "token", pair.Name, "quantity", fill.Quantity.String())
			continue
		}

		if err := st.Wallet.Debit(alloc); err != nil {
			slog.Error("engine: debit failed after buy", "token", pair.Name, "err", err)
			continue
		}
		pos := domain.Position{
			Token:       key,
			Name:        pair.Name,
			BaseMint:    pair.BaseMint,
			EntryPrice:  pair.Price,
			Quantity:    fill.Quantity,
			OpenedAt:    time.Now(),
			OpenedCycle: e.cycle,
		}
		if err := st.Positions.Open(pos); err != nil {
			// unreachable while Has() is checked above; undo the debit anyway
			_ = st.Wallet.Credit(alloc)
			slog.Error("engine: open position failed", "token", pair.Name, "err", err)
			continue
		}

		tx := st.Ledger.Append(domain.Transaction{
			Token:        pair.Name,
			Kind:         domain.TxBuy,
			Quantity:     fill.Quantity,
			Price:        pair.Price,
			USDValue:     alloc,
			BalanceAfter: st.Wallet.Cash(),
			Signature:    fill.Signature,
		})
		report.Opened++
		slog.Info("engine: BUY",
			"token", pair.Name,
			"amount", tx.Quantity.StringFixed(6),
			"price", tx.Price.StringFixed(6),
			"usd_value", tx.USDValue.StringFixed(2),
			"balance", tx.BalanceAfter.StringFixed(2),
		)
	}
}

// monitorPositions applies the exit rule to every position opened in an
// earlier cycle.
func (e *Engine) monitorPositions(ctx context.Context, st *State, report *ports.CycleReport) {
	for _, pos := range st.Positions.Snapshot() {
		if ctx.Err() != nil {
			slog.Info("engine: monitor phase interrupted", "remaining", pos.Name)
			return
		}
		if pos.OpenedCycle == e.cycle {
			continue
		}

		quote := e.feed.CurrentPrice(ctx, pos.Name)
		if !quote.Available() {
			report.Unavailable++
			slog.Warn("engine: price unavailable, keeping position",
				"op", "currentPrice",
				"token", pos.Name,
				"status", quote.Status.String(),
				"err", quote.Err,
			)
			continue
		}

		slog.Info("engine: monitoring",
			"token", pos.Name,
			"entry", pos.EntryPrice.StringFixed(6),
			"current", quote.Price.StringFixed(6),
			"change_pct", pos.ChangePct(quote.Price).StringFixed(2),
		)

		reason, exit := e.cfg.Exit.Evaluate(pos.EntryPrice, quote.Price)
		if !exit {
			continue
		}

		fill, err := e.executor.Sell(ctx, pos, quote.Price)
		if err != nil {
			slog.Warn("engine: sell failed, position stays open",
				"op", "sell", "token", pos.Name, "reason", reason, "err", err)
			continue
		}
		if err := st.Wallet.Credit(fill.Value); err != nil {
			slog.Error("engine: credit failed after sell", "token", pos.Name, "err", err)
			continue
		}
		if _, err := st.Positions.Close(pos.Token); err != nil {
			slog.Error("engine: close position failed", "token", pos.Name, "err", err)
			continue
		}

		tx := st.Ledger.Append(domain.Transaction{
			Token:        pos.Name,
			Kind:         domain.TxSell,
			Quantity:     pos.Quantity,
			Price:        quote.Price,
			USDValue:     fill.Value,
			BalanceAfter: st.Wallet.Cash(),
			Reason:       reason,
			Signature:    fill.Signature,
		})
		report.Sold++
		slog.Info("engine: SELL",
			"token", pos.Name,
			"reason", string(reason),
			"amount", tx.Quantity.StringFixed(6),
			"price", tx.Price.StringFixed(6),
			"usd_value", tx.USDValue.StringFixed(2),
			"balance", tx.BalanceAfter.StringFixed(2),
		)
	}
}
