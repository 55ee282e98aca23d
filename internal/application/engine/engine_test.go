package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/raybot/internal/application/engine"
	"github.com/alejandrodnm/raybot/internal/application/engine/paper"
	"github.com/alejandrodnm/raybot/internal/domain"
	"github.com/alejandrodnm/raybot/internal/ports"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// scriptedFeed returns listings[i] on the i-th NewlyListed call (empty after
// the script runs out) and whatever is in prices for CurrentPrice.
type scriptedFeed struct {
	mu         sync.Mutex
	listings   [][]domain.Pair
	listErr    []error
	prices     map[string]domain.PriceQuote
	calls      int
	onList     func(call int)
	panicOnCal int
}

func newFeed(listings ...[]domain.Pair) *scriptedFeed {
	return &scriptedFeed{listings: listings, prices: map[string]domain.PriceQuote{}}
}

func (f *scriptedFeed) NewlyListed(_ context.Context, _ time.Duration) ([]domain.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	call := f.calls
	if f.onList != nil {
		f.onList(call)
	}
	if f.panicOnCal == call {
		panic("feed exploded")
	}
	if call-1 < len(f.listErr) && f.listErr[call-1] != nil {
		return nil, f.listErr[call-1]
	}
	if call-1 < len(f.listings) {
		return f.listings[call-1], nil
	}
	return []domain.Pair{}, nil
}

func (f *scriptedFeed) CurrentPrice(_ context.Context, name string) domain.PriceQuote {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.prices[name]
	if !ok {
		return domain.NotListed()
	}
	return q
}

func (f *scriptedFeed) setPrice(name, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[name] = domain.Quoted(dec(price))
}

type memorySink struct {
	mu       sync.Mutex
	fail     int // fail the next n calls
	calls    int
	last     []domain.Transaction
	lastCtxE error
}

func (s *memorySink) Persist(ctx context.Context, records []domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastCtxE = ctx.Err()
	if s.fail > 0 {
		s.fail--
		return errors.New("disk full")
	}
	s.last = append([]domain.Transaction(nil), records...)
	return nil
}

type captureReporter struct {
	cycles  []ports.CycleReport
	summary *domain.Summary
}

func (r *captureReporter) ReportCycle(c ports.CycleReport) { r.cycles = append(r.cycles, c) }
func (r *captureReporter) ReportSummary(s domain.Summary)  { r.summary = &s }

// hookExecutor wraps the paper executor and lets tests fail or observe calls.
type hookExecutor struct {
	inner    *paper.Executor
	buyErr   error
	sellErr  error
	afterBuy func()
	buys     int
	sells    int
}

func (h *hookExecutor) Name() string { return "hook" }

func (h *hookExecutor) Buy(ctx context.Context, pair domain.Pair, amount decimal.Decimal) (domain.Fill, error) {
	h.buys++
	if h.buyErr != nil {
		return domain.Fill{}, h.buyErr
	}
	fill, err := h.inner.Buy(ctx, pair, amount)
	if h.afterBuy != nil {
		h.afterBuy()
	}
	return fill, err
}

func (h *hookExecutor) Sell(ctx context.Context, pos domain.Position, price decimal.Decimal) (domain.Fill, error) {
	h.sells++
	if h.sellErr != nil {
		return domain.Fill{}, h.sellErr
	}
	return h.inner.Sell(ctx, pos, price)
}

func newHook(t *testing.T) *hookExecutor {
	t.Helper()
	ex, err := paper.NewExecutor(decimal.Zero)
	require.NoError(t, err)
	return &hookExecutor{inner: ex}
}

func pair(name, price string) domain.Pair {
	return domain.Pair{Name: name, BaseMint: name + "-mint", Price: dec(price)}
}

func defaultCfg() engine.Config {
	return engine.Config{
		Allocation: dec("10"),
		Exit:       domain.ExitRule{ProfitPct: dec("60"), LossPct: dec("60")},
		CycleDelay: time.Millisecond,
	}
}

type harness struct {
	eng      *engine.Engine
	state    *engine.State
	feed     *scriptedFeed
	exec     *hookExecutor
	sink     *memorySink
	reporter *captureReporter
}

func newHarness(t *testing.T, cash string, feed *scriptedFeed) *harness {
	t.Helper()
	st, err := engine.NewState(dec(cash))
	require.NoError(t, err)
	h := &harness{state: st, feed: feed, exec: newHook(t), sink: &memorySink{}, reporter: &captureReporter{}}
	h.eng, err = engine.New(defaultCfg(), st, feed, h.exec, h.sink, h.reporter)
	require.NoError(t, err)
	return h
}

func TestNew_Validation(t *testing.T) {
	st, err := engine.NewState(dec("100"))
	require.NoError(t, err)
	feed := newFeed()
	ex := newHook(t)

	cfg := defaultCfg()
	cfg.Allocation = dec("-1")
	_, err = engine.New(cfg, st, feed, ex, nil, nil)
	assert.Error(t, err)

	cfg = defaultCfg()
	cfg.Exit.LossPct = dec("-5")
	_, err = engine.New(cfg, st, feed, ex, nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidThreshold)

	_, err = engine.New(defaultCfg(), st, nil, ex, nil, nil)
	assert.Error(t, err)

	_, err = engine.NewState(dec("-1"))
	assert.Error(t, err)
}

func TestRunOnce_BuyDebitsAllocation(t *testing.T) {
	h := newHarness(t, "100", newFeed([]domain.Pair{pair("AAA-SOL", "10")}))

	rep := h.eng.RunOnce(context.Background())

	assert.Equal(t, 1, rep.Opened)
	assert.True(t, dec("90").Equal(h.state.Wallet.Cash()))
	pos, ok := h.state.Positions.Get("AAA-SOL")
	require.True(t, ok)
	assert.True(t, dec("1").Equal(pos.Quantity))
	assert.True(t, dec("10").Equal(pos.EntryPrice))

	recs := h.state.Ledger.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.TxBuy, recs[0].Kind)
	assert.True(t, dec("10").Equal(recs[0].USDValue))
	assert.True(t, dec("90").Equal(recs[0].BalanceAfter))
}

func TestRunOnce_BuyConsumesAllCash(t *testing.T) {
	h := newHarness(t, "10", newFeed([]domain.Pair{pair("AAA-SOL", "10")}))

	h.eng.RunOnce(context.Background())

	assert.True(t, h.state.Wallet.Cash().IsZero())
	recs := h.state.Ledger.Records()
	require.Len(t, recs, 1)
	assert.True(t, dec("1").Equal(recs[0].Quantity))
	assert.True(t, recs[0].BalanceAfter.IsZero())
}

func TestRunOnce_InsufficientFundsSkipsInOrder(t *testing.T) {
	h := newHarness(t, "10", newFeed([]domain.Pair{pair("FIRST-SOL", "1"), pair("SECOND-SOL", "1")}))

	rep := h.eng.RunOnce(context.Background())

	assert.Equal(t, 1, rep.Opened)
	assert.Equal(t, 1, rep.Skipped)
	assert.True(t, h.state.Positions.Has("FIRST-SOL"))
	assert.False(t, h.state.Positions.Has("SECOND-SOL"))
	assert.True(t, h.state.Wallet.Cash().IsZero())
}

func TestRunOnce_FeedFailureIsContained(t *testing.T) {
	feed := newFeed([]domain.Pair{pair("AAA-SOL", "10")})
	feed.listErr = []error{nil, errors.New("connection refused")}
	h := newHarness(t, "100", feed)
	ctx := context.Background()

	h.eng.RunOnce(ctx)
	feed.setPrice("AAA-SOL", "16")

	rep := h.eng.RunOnce(ctx)

	assert.Error(t, rep.FeedErr)
	assert.Zero(t, rep.Opened)
	// monitoring still ran and closed the position
	assert.Equal(t, 1, rep.Sold)
	assert.False(t, h.state.Positions.Has("AAA-SOL"))
	assert.True(t, dec("106").Equal(h.state.Wallet.Cash()))
}

func TestRunOnce_ExitBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		price  string
		sold   bool
		reason domain.ExitReason
	}{
		{"profit exactly at threshold", "16.0", true, domain.ExitTakeProfit},
		{"just below profit", "15.99", false, ""},
		{"loss exactly at threshold", "4.0", true, domain.ExitStopLoss},
		{"just above loss", "4.01", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := newFeed([]domain.Pair{pair("AAA-SOL", "10")})
			h := newHarness(t, "100", feed)
			ctx := context.Background()

			h.eng.RunOnce(ctx)
			feed.setPrice("AAA-SOL", tt.price)
			rep := h.eng.RunOnce(ctx)

			if !tt.sold {
				assert.Zero(t, rep.Sold)
				assert.True(t, h.state.Positions.Has("AAA-SOL"))
				return
			}
			assert.Equal(t, 1, rep.Sold)
			recs := h.state.Ledger.Records()
			require.Len(t, recs, 2)
			assert.Equal(t, domain.TxSell, recs[1].Kind)
			assert.Equal(t, tt.reason, recs[1].Reason)
			assert.True(t, dec(tt.price).Equal(recs[1].Price))
			assert.True(t, dec(tt.price).Equal(recs[1].USDValue))
		})
	}
}

func TestRunOnce_NoSellInOpeningCycle(t *testing.T) {
	feed := newFeed([]domain.Pair{pair("AAA-SOL", "10")})
	feed.setPrice("AAA-SOL", "100") // would trigger take-profit immediately
	h := newHarness(t, "100", feed)

	rep := h.eng.RunOnce(context.Background())

	assert.Equal(t, 1, rep.Opened)
	assert.Zero(t, rep.Sold)
	assert.Zero(t, h.exec.sells)
	assert.True(t, h.state.Positions.Has("AAA-SOL"))

	rep = h.eng.RunOnce(context.Background())
	assert.Equal(t, 1, rep.Sold)
}

func TestRunOnce_UnavailablePriceKeepsPosition(t *testing.T) {
	feed := newFeed([]domain.Pair{pair("AAA-SOL", "10"), pair("BBB-SOL", "10")})
	h := newHarness(t, "100", feed)
	ctx := context.Background()
	h.eng.RunOnce(ctx)

	feed.mu.Lock()
	feed.prices["AAA-SOL"] = domain.QuoteFailure(errors.New("timeout"))
	feed.mu.Unlock()
	// BBB-SOL not listed at all

	rep := h.eng.RunOnce(ctx)

	assert.Equal(t, 2, rep.Unavailable)
	assert.Equal(t, 2, h.state.Positions.Len())
	assert.Equal(t, 2, h.state.Ledger.Len())
}

func TestRunOnce_AlreadyHeldIsNotBoughtTwice(t *testing.T) {
	feed := newFeed(
		[]domain.Pair{pair("AAA-SOL", "10"), pair("aaa-sol", "10")},
		[]domain.Pair{pair("AAA-SOL", "10")},
	)
	feed.setPrice("AAA-SOL", "10")
	h := newHarness(t, "100", feed)

	h.eng.RunOnce(context.Background())
	h.eng.RunOnce(context.Background())

	assert.Equal(t, 1, h.exec.buys)
	assert.Equal(t, 1, h.state.Positions.Len())
	assert.True(t, dec("90").Equal(h.state.Wallet.Cash()))
}

func TestRunOnce_NonPositivePriceSkipped(t *testing.T) {
	h := newHarness(t, "100", newFeed([]domain.Pair{pair("ZERO-SOL", "0")}))

	rep := h.eng.RunOnce(context.Background())

	assert.Zero(t, rep.Opened)
	assert.Zero(t, h.exec.buys)
	assert.True(t, dec("100").Equal(h.state.Wallet.Cash()))
}

func TestRunOnce_ExecutorFailuresCommitNothing(t *testing.T) {
	feed := newFeed([]domain.Pair{pair("AAA-SOL", "10")})
	h := newHarness(t, "100", feed)
	ctx := context.Background()

	h.exec.buyErr = errors.New("swap rejected")
	h.eng.RunOnce(ctx)
	assert.Zero(t, h.state.Positions.Len())
	assert.Zero(t, h.state.Ledger.Len())
	assert.True(t, dec("100").Equal(h.state.Wallet.Cash()))

	// discovery retries the same pair on the next cycle
	feed.listings = append(feed.listings, []domain.Pair{pair("AAA-SOL", "10")})
	h.exec.buyErr = nil
	h.eng.RunOnce(ctx)
	require.True(t, h.state.Positions.Has("AAA-SOL"))

	feed.setPrice("AAA-SOL", "20")
	h.exec.sellErr = errors.New("rpc down")
	h.eng.RunOnce(ctx)
	assert.True(t, h.state.Positions.Has("AAA-SOL"))
	assert.Equal(t, 1, h.state.Ledger.Len())
	assert.True(t, dec("90").Equal(h.state.Wallet.Cash()))
}

func TestRunOnce_PersistFailureRetriedNextCycle(t *testing.T) {
	h := newHarness(t, "100", newFeed([]domain.Pair{pair("AAA-SOL", "10")}))
	h.sink.fail = 1
	ctx := context.Background()

	rep := h.eng.RunOnce(ctx)
	assert.Error(t, rep.PersistErr)
	assert.Nil(t, h.sink.last)
	assert.Equal(t, 1, h.state.Ledger.Len(), "ledger stays in memory")

	rep = h.eng.RunOnce(ctx)
	assert.NoError(t, rep.PersistErr)
	require.Len(t, h.sink.last, 1)
	assert.Equal(t, "AAA-SOL", h.sink.last[0].Token)
}

func TestRunOnce_PanicRecoveredAtCycleBoundary(t *testing.T) {
	feed := newFeed([]domain.Pair{pair("AAA-SOL", "10")})
	feed.panicOnCal = 2
	h := newHarness(t, "100", feed)
	ctx := context.Background()

	h.eng.RunOnce(ctx)
	assert.NotPanics(t, func() { h.eng.RunOnce(ctx) })
	assert.Equal(t, 2, h.sink.calls, "persist still attempted after panic")

	rep := h.eng.RunOnce(ctx)
	assert.Equal(t, int64(3), rep.Cycle)
	require.Len(t, h.reporter.cycles, 3)
}

func TestRunOnce_CancelledMidOpenCommitsCompletedBuysOnly(t *testing.T) {
	feed := newFeed([]domain.Pair{pair("A-SOL", "1"), pair("B-SOL", "1"), pair("C-SOL", "1")})
	h := newHarness(t, "100", feed)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.exec.afterBuy = cancel

	h.eng.RunOnce(ctx)

	assert.Equal(t, 1, h.exec.buys)
	assert.Equal(t, 1, h.state.Positions.Len())
	assert.True(t, dec("90").Equal(h.state.Wallet.Cash()))
	// persist runs on a detached context
	require.Len(t, h.sink.last, 1)
	assert.NoError(t, h.sink.lastCtxE)
}

func TestRun_StopsOnCancelAndFlushes(t *testing.T) {
	feed := newFeed(
		[]domain.Pair{pair("AAA-SOL", "10")},
		[]domain.Pair{pair("BBB-SOL", "5")},
	)
	feed.setPrice("AAA-SOL", "20")
	h := newHarness(t, "100", feed)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.onList = func(call int) {
		if call == 3 {
			cancel()
		}
	}

	done := make(chan domain.Summary, 1)
	go func() { done <- h.eng.Run(ctx) }()

	var s domain.Summary
	select {
	case s = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	assert.Equal(t, 3, s.TotalTrades) // BUY AAA, BUY BBB, SELL AAA
	assert.Equal(t, 2, s.Buys)
	assert.Equal(t, 1, s.Sells)
	assert.True(t, dec("100").Equal(s.InitialCash))
	assert.True(t, dec("100").Equal(s.FinalCash)) // 100 - 10 - 10 + 20
	require.Len(t, s.OpenPositions, 1)
	assert.Equal(t, "BBB-SOL", s.OpenPositions[0].Name)
	require.Len(t, s.Realized, 1)
	assert.True(t, dec("10").Equal(s.RealizedTotal()))

	require.NotNil(t, h.reporter.summary)
	require.Len(t, h.sink.last, 3)
	assert.NoError(t, h.sink.lastCtxE, "final persist must not see the cancelled context")
}

func TestRun_InvariantsHoldOverRandomWalk(t *testing.T) {
	names := []string{"A-SOL", "B-SOL", "C-SOL", "D-SOL", "E-SOL"}
	var listings [][]domain.Pair
	for i := 0; i < 20; i++ {
		n := names[i%len(names)]
		listings = append(listings, []domain.Pair{pair(n, "2"), pair(names[(i+2)%len(names)], "3")})
	}
	feed := newFeed(listings...)
	walk := []string{"1", "3.2", "0.8", "2", "4.8", "1.2", "5"}
	h := newHarness(t, "30", feed)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		for j, n := range names {
			feed.setPrice(n, walk[(i+j)%len(walk)])
		}
		h.eng.RunOnce(ctx)

		assert.False(t, h.state.Wallet.Cash().IsNegative())
		recs := h.state.Ledger.Records()
		held := map[string]bool{}
		for k, r := range recs {
			assert.Equal(t, k+1, r.Seq)
			if k > 0 {
				assert.False(t, r.Timestamp.Before(recs[k-1].Timestamp))
			}
			key := domain.TokenKey(r.Token)
			switch r.Kind {
			case domain.TxBuy:
				assert.False(t, held[key], "double buy of %s", key)
				held[key] = true
			case domain.TxSell:
				assert.True(t, held[key], "sell without position for %s", key)
				held[key] = false
			}
		}
		open := 0
		for _, v := range held {
			if v {
				open++
			}
		}
		assert.Equal(t, open, h.state.Positions.Len())
	}
}

type explodingSink struct{ calls int }

func (s *explodingSink) Persist(context.Context, []domain.Transaction) error {
	s.calls++
	panic("sink exploded")
}

type explodingReporter struct{}

func (explodingReporter) ReportCycle(ports.CycleReport) { panic("reporter exploded") }
func (explodingReporter) ReportSummary(domain.Summary)  { panic("reporter exploded") }

func TestRunOnce_PanickingSinkIsContained(t *testing.T) {
	st, err := engine.NewState(dec("100"))
	require.NoError(t, err)
	sink := &explodingSink{}
	eng, err := engine.New(defaultCfg(), st, newFeed([]domain.Pair{pair("AAA-SOL", "10")}), newHook(t), sink, nil)
	require.NoError(t, err)

	var rep ports.CycleReport
	require.NotPanics(t, func() { rep = eng.RunOnce(context.Background()) })

	assert.Error(t, rep.PersistErr)
	assert.Equal(t, 1, rep.Opened)
	assert.Equal(t, 1, st.Ledger.Len(), "ledger stays in memory")

	// un panic en otra fase + sink roto tampoco escapa
	feed := newFeed()
	feed.panicOnCal = 1
	eng, err = engine.New(defaultCfg(), st, feed, newHook(t), sink, nil)
	require.NoError(t, err)
	require.NotPanics(t, func() { eng.RunOnce(context.Background()) })
	assert.Equal(t, 2, sink.calls)

	require.NotPanics(t, func() { eng.Shutdown(context.Background()) })
	assert.Equal(t, 3, sink.calls)
}

func TestRunOnce_PanickingReporterIsContained(t *testing.T) {
	st, err := engine.NewState(dec("100"))
	require.NoError(t, err)
	sink := &memorySink{}
	eng, err := engine.New(defaultCfg(), st, newFeed([]domain.Pair{pair("AAA-SOL", "10")}), newHook(t), sink, explodingReporter{})
	require.NoError(t, err)

	require.NotPanics(t, func() { eng.RunOnce(context.Background()) })
	require.Len(t, sink.last, 1)

	var s domain.Summary
	require.NotPanics(t, func() { s = eng.Shutdown(context.Background()) })
	assert.Equal(t, 1, s.TotalTrades)
}
