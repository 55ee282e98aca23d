package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is what a trade executor reports back after a buy or sell.
type Fill struct {
	Quantity  decimal.Decimal // token amount bought or sold
	Price     decimal.Decimal // execution price per token
	Value     decimal.Decimal // cash spent (BUY) or received (SELL)
	Signature string          // tx signature, empty for simulated fills
}

// Summary is the end-of-run report.
type Summary struct {
	InitialCash   decimal.Decimal
	FinalCash     decimal.Decimal
	TotalTrades   int
	Buys          int
	Sells         int
	Cycles        int64
	OpenPositions []Position
	Realized      []TokenPnL
	StoppedAt     time.Time
}

// RealizedTotal sums the realised P&L across tokens.
func (s Summary) RealizedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, t := range s.Realized {
		total = total.Add(t.PnL())
	}
	return total
}
