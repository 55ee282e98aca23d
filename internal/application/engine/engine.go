package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/raybot/internal/domain"
	"github.com/alejandrodnm/raybot/internal/ports"
)

const (
	DefaultListingWindow = 10 * time.Minute
	DefaultCycleDelay    = 60 * time.Second
	persistTimeout       = 15 * time.Second
)

// DefaultAllocation is the cash committed to each new position.
var DefaultAllocation = decimal.NewFromInt(10)

// Config holds the engine settings. Immutable for the lifetime of a run.
type Config struct {
	Allocation    decimal.Decimal
	Exit          domain.ExitRule
	ListingWindow time.Duration
	CycleDelay    time.Duration
}

// State is everything the engine mutates. Only the engine's goroutine touches it.
type State struct {
	Wallet    *domain.Wallet
	Positions *domain.PositionBook
	Ledger    *domain.Ledger
	initial   decimal.Decimal
}

// NewState creates the state for a run with the given starting cash.
func NewState(initialCash decimal.Decimal) (*State, error) {
	w, err := domain.NewWallet(initialCash)
	if err != nil {
		return nil, fmt.Errorf("engine.NewState: %w", err)
	}
	return &State{
		Wallet:    w,
		Positions: domain.NewPositionBook(),
		Ledger:    domain.NewLedger(),
		initial:   initialCash,
	}, nil
}

// Engine runs the discover → open → monitor → persist loop.
type Engine struct {
	feed     ports.MarketFeed
	executor ports.TradeExecutor
	sink     ports.LedgerSink
	reporter ports.Reporter
	cfg      Config
	state    *State
	cycle    int64
}

// New creates an engine. sink and reporter may be nil.
func New(
	cfg Config,
	state *State,
	feed ports.MarketFeed,
	executor ports.TradeExecutor,
	sink ports.LedgerSink,
	reporter ports.Reporter,
) (*Engine, error) {
	if cfg.Allocation.IsZero() {
		cfg.Allocation = DefaultAllocation
	}
	if !cfg.Allocation.IsPositive() {
		return nil, fmt.Errorf("engine.New: allocation must be positive: %s", cfg.Allocation)
	}
	if err := cfg.Exit.Validate(); err != nil {
		return nil, fmt.Errorf("engine.New: %w", err)
	}
	if cfg.ListingWindow <= 0 {
		cfg.ListingWindow = DefaultListingWindow
	}
	if cfg.CycleDelay <= 0 {
		cfg.CycleDelay = DefaultCycleDelay
	}
	if state == nil || feed == nil || executor == nil {
		return nil, fmt.Errorf("engine.New: state, feed and executor are required")
	}
	return &Engine{
		feed:     feed,
		executor: executor,
		sink:     sink,
		reporter: reporter,
		cfg:      cfg,
		state:    state,
	}, nil
}

// Run executes cycles until ctx is cancelled, then persists the ledger one
// last time and returns the run summary.
func (e *Engine) Run(ctx context.Context) domain.Summary {
	slog.Info("engine starting",
		"executor", e.executor.Name(),
		"cash", e.state.Wallet.Cash().StringFixed(2),
		"allocation", e.cfg.Allocation.String(),
		"profit_pct", e.cfg.Exit.ProfitPct.String(),
		"loss_pct", e.cfg.Exit.LossPct.String(),
		"interval", e.cfg.CycleDelay,
	)

	for ctx.Err() == nil {
		e.RunOnce(ctx)
		if !e.wait(ctx) {
			break
		}
	}
	return e.Shutdown(ctx)
}

// wait sleeps for the cycle delay. false means ctx was cancelled.
func (e *Engine) wait(ctx context.Context) bool {
	timer := time.NewTimer(e.cfg.CycleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Shutdown performs the final persist and reports the summary. Safe to call
// with an already cancelled context.
func (e *Engine) Shutdown(ctx context.Context) domain.Summary {
	if err := e.safePersist(ctx); err != nil {
		slog.Error("engine: final persist failed", "err", err)
	}
	s := e.Summary()
	slog.Info("engine stopped",
		"final_balance", s.FinalCash.StringFixed(2),
		"total_trades", s.TotalTrades,
		"open_positions", len(s.OpenPositions),
		"cycles", s.Cycles,
	)
	e.notify(func(r ports.Reporter) { r.ReportSummary(s) })
	return s
}

// Summary describes the run so far.
func (e *Engine) Summary() domain.Summary {
	records := e.state.Ledger.Records()
	s := domain.Summary{
		InitialCash:   e.state.initial,
		FinalCash:     e.state.Wallet.Cash(),
		TotalTrades:   len(records),
		Cycles:        e.cycle,
		OpenPositions: e.state.Positions.Snapshot(),
		Realized:      domain.RealizedPnL(records),
		StoppedAt:     time.Now(),
	}
	for _, r := range records {
		switch r.Kind {
		case domain.TxBuy:
			s.Buys++
		case domain.TxSell:
			s.Sells++
		}
	}
	return s
}

// safePersist es persist con su propio recover: un sink que hace panic se
// trata como un persist fallido y el loop sigue.
func (e *Engine) safePersist(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: sink panicked", "op", "persist", "panic", fmt.Sprint(r))
			err = fmt.Errorf("engine.persist: sink panicked: %v", r)
		}
	}()
	return e.persist(ctx)
}

// notify llama al reporter si hay uno. Un panic del reporter se loguea y se
// descarta.
func (e *Engine) notify(fn func(ports.Reporter)) {
	if e.reporter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: reporter panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn(e.reporter)
}

// persist hands the full ledger to the sink. It runs on a context detached
// from cancellation so the final flush still happens during shutdown.
func (e *Engine) persist(ctx context.Context) error {
	if e.sink == nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	records := e.state.Ledger.Records()
	if err := e.sink.Persist(pctx, records); err != nil {
		slog.Error("engine: persist failed, ledger kept in memory",
			"op", "persist",
			"records", len(records),
			"err", err,
		)
		return err
	}
	slog.Debug("engine: ledger persisted", "records", len(records))
	return nil
}
