package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alejandrodnm/raybot/internal/domain"
)

// TimestampLayout es el formato de la primera columna del export.
const TimestampLayout = "2006-01-02 15:04:05.000000"

var csvHeader = []string{"timestamp", "token", "type", "amount", "price", "usd_value", "wallet_balance"}

// CSVExporter escribe el ledger completo a un CSV, sobreescribiendo el
// archivo en cada llamada.
type CSVExporter struct {
	path string
}

// NewCSVExporter crea un exporter hacia path.
func NewCSVExporter(path string) *CSVExporter {
	return &CSVExporter{path: path}
}

// Path devuelve la ruta destino.
func (e *CSVExporter) Path() string {
	return e.path
}

// Persist implementa ports.LedgerSink. Escribe a un temporal en el mismo
// directorio y lo renombra: el archivo destino nunca queda a medias.
func (e *CSVExporter) Persist(ctx context.Context, records []domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("storage.CSVExporter: %w", err)
	}

	dir := filepath.Dir(e.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(e.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage.CSVExporter: create temp: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("storage.CSVExporter: write header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(csvRow(r)); err != nil {
			return fmt.Errorf("storage.CSVExporter: write row %d: %w", r.Seq, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("storage.CSVExporter: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage.CSVExporter: close temp: %w", err)
	}
	if err := os.Rename(tmpName, e.path); err != nil {
		return fmt.Errorf("storage.CSVExporter: rename: %w", err)
	}
	committed = true
	return nil
}

func csvRow(r domain.Transaction) []string {
	return []string{
		r.Timestamp.Format(TimestampLayout),
		r.Token,
		string(r.Kind),
		r.Quantity.StringFixed(6),
		r.Price.StringFixed(6),
		r.USDValue.StringFixed(2),
		r.BalanceAfter.StringFixed(2),
	}
}
