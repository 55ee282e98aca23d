package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/raybot/internal/domain"
	"github.com/alejandrodnm/raybot/internal/ports"
)

// Console implementa ports.Reporter.
type Console struct {
	out   io.Writer
	table bool
	now   func() time.Time
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table, now: time.Now}
}

// NewConsoleWriter crea un reporter para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table, now: time.Now}
}

// ReportCycle imprime una línea por ciclo y, con --table, las posiciones abiertas.
func (c *Console) ReportCycle(r ports.CycleReport) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] cycle %d | new:%d bought:%d skipped:%d sold:%d | cash $%s | open %d",
		c.now().Format("15:04:05"), r.Cycle,
		r.Discovered, r.Opened, r.Skipped, r.Sold,
		r.Cash.StringFixed(2), len(r.Positions))
	if r.Unavailable > 0 {
		fmt.Fprintf(&sb, " | no price %d", r.Unavailable)
	}
	if r.FeedErr != nil {
		sb.WriteString(" | feed down")
	}
	if r.PersistErr != nil {
		sb.WriteString(" | persist FAILED")
	}
	fmt.Fprintln(c.out, sb.String())

	if c.table && len(r.Positions) > 0 {
		c.printPositions(r.Positions)
	}
}

// printPositions imprime la tabla de posiciones abiertas.
func (c *Console) printPositions(positions []domain.Position) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Token", "Entry", "Qty", "Cost$", "Opened")

	for i, p := range positions {
		table.Append(
			fmt.Sprintf("%d", i+1),
			p.Name,
			p.EntryPrice.StringFixed(6),
			p.Quantity.StringFixed(6),
			p.CostBasis().StringFixed(2),
			p.OpenedAt.Format("15:04:05"),
		)
	}

	table.Render()
}

// ReportSummary imprime el resumen final de la sesión.
func (c *Console) ReportSummary(s domain.Summary) {
	fmt.Fprintf(c.out, "\n")
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  SESSION SUMMARY (%d cycles)\n", s.Cycles)
	fmt.Fprintf(c.out, "========================================================\n\n")

	delta := s.FinalCash.Sub(s.InitialCash)
	fmt.Fprintf(c.out, "  Initial balance:  $%s\n", s.InitialCash.StringFixed(2))
	fmt.Fprintf(c.out, "  Final balance:    $%s (%s)\n", s.FinalCash.StringFixed(2), signed(delta))
	fmt.Fprintf(c.out, "  Total trades:     %d (%d buys, %d sells)\n", s.TotalTrades, s.Buys, s.Sells)
	fmt.Fprintf(c.out, "  Realized P&L:     %s\n", signed(s.RealizedTotal()))

	if len(s.Realized) > 0 {
		fmt.Fprintf(c.out, "\n  --- CLOSED ---\n")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Token", "Trades", "Invested$", "Returned$", "P&L$")
		for _, t := range s.Realized {
			tbl.Append(
				t.Token,
				fmt.Sprintf("%d", t.Trades),
				t.Invested.StringFixed(2),
				t.Returned.StringFixed(2),
				signed(t.PnL()),
			)
		}
		tbl.Render()
	}

	fmt.Fprintf(c.out, "\n  --- STILL OPEN (%d) ---\n", len(s.OpenPositions))
	if len(s.OpenPositions) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}
	c.printPositions(s.OpenPositions)
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "+$" + d.StringFixed(2)
}
