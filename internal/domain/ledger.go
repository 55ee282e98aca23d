package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxKind is the direction of a committed trade.
type TxKind string

const (
	TxBuy  TxKind = "BUY"
	TxSell TxKind = "SELL"
)

// ExitReason says which threshold closed a position.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
)

// Transaction is one ledger entry. Entries are never modified once appended.
type Transaction struct {
	ID           string
	Seq          int // 1-based insertion index
	Timestamp    time.Time
	Token        string // display name
	Kind         TxKind
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	USDValue     decimal.Decimal
	BalanceAfter decimal.Decimal
	Reason       ExitReason // SELL only
	Signature    string     // on-chain executions only
}

// Ledger is the append-only audit trail of committed trades.
type Ledger struct {
	records []Transaction
	now     func() time.Time
}

// NewLedger creates an empty ledger stamped with the wall clock.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// NewLedgerWithClock is NewLedger with an injectable clock, for tests.
func NewLedgerWithClock(now func() time.Time) *Ledger {
	return &Ledger{now: now}
}

// Append stamps tx with ID, sequence and timestamp and stores it.
// Timestamps never go backwards, even if the clock does.
func (l *Ledger) Append(tx Transaction) Transaction {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.Seq = len(l.records) + 1
	if tx.Timestamp.IsZero() {
		tx.Timestamp = l.now()
	}
	if n := len(l.records); n > 0 && tx.Timestamp.Before(l.records[n-1].Timestamp) {
		tx.Timestamp = l.records[n-1].Timestamp
	}
	l.records = append(l.records, tx)
	return tx
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Records returns a copy of all entries in insertion order.
func (l *Ledger) Records() []Transaction {
	out := make([]Transaction, len(l.records))
	copy(out, l.records)
	return out
}

// TokenPnL is the realised result of the closed trades on one token.
type TokenPnL struct {
	Token    string
	Trades   int // round trips
	Invested decimal.Decimal
	Returned decimal.Decimal
}

// PnL is Returned - Invested.
func (t TokenPnL) PnL() decimal.Decimal {
	return t.Returned.Sub(t.Invested)
}

// RealizedPnL pairs every SELL with the preceding BUY of the same token and
// aggregates per token, in order of first close. Open buys are not counted.
func RealizedPnL(records []Transaction) []TokenPnL {
	openCost := make(map[string]decimal.Decimal)
	byToken := make(map[string]*TokenPnL)
	var order []string

	for _, r := range records {
		key := TokenKey(r.Token)
		switch r.Kind {
		case TxBuy:
			openCost[key] = r.USDValue
		case TxSell:
			cost, ok := openCost[key]
			if !ok {
				continue
			}
			delete(openCost, key)
			agg, seen := byToken[key]
			if !seen {
				agg = &TokenPnL{Token: r.Token}
				byToken[key] = agg
				order = append(order, key)
			}
			agg.Trades++
			agg.Invested = agg.Invested.Add(cost)
			agg.Returned = agg.Returned.Add(r.USDValue)
		}
	}

	out := make([]TokenPnL, 0, len(order))
	for _, key := range order {
		out = append(out, *byToken[key])
	}
	return out
}
