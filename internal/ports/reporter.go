package ports

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/raybot/internal/domain"
)

// CycleReport is what one engine cycle produced.
type CycleReport struct {
	Cycle       int64
	Discovered  int
	Opened      int
	Skipped     int // insufficient funds
	Sold        int
	Unavailable int // open positions without a price this cycle
	Cash        decimal.Decimal
	Positions   []domain.Position
	FeedErr     error
	PersistErr  error
}

// Reporter presenta el estado del engine al usuario.
type Reporter interface {
	ReportCycle(r CycleReport)
	ReportSummary(s domain.Summary)
}
