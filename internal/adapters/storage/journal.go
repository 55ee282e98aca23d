package storage

// journal.go: copia append-only del ledger en SQLite.
//
// Estrategia:
//   - `transactions`: una fila por registro del ledger, clave = ID del registro.
//     INSERT OR IGNORE: persistir el ledger acumulado varias veces es idempotente
//     y nunca modifica filas existentes.
//   - Cada proceso es un `run` (uuid). seq es único dentro del run.
//   - Watermark en memoria: solo se insertan los registros nuevos desde el
//     último Persist exitoso.
//   - Decimales como TEXT para no perder precisión.

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/raybot/internal/domain"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS runs (
    id         TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    executor   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
    id             TEXT PRIMARY KEY,
    run_id         TEXT    NOT NULL,
    seq            INTEGER NOT NULL,
    ts             TEXT    NOT NULL,
    token          TEXT    NOT NULL,
    kind           TEXT    NOT NULL,
    quantity       TEXT    NOT NULL,
    price          TEXT    NOT NULL,
    usd_value      TEXT    NOT NULL,
    balance_after  TEXT    NOT NULL,
    reason         TEXT    NOT NULL DEFAULT '',
    signature      TEXT    NOT NULL DEFAULT '',
    UNIQUE (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_tx_run   ON transactions(run_id, seq);
CREATE INDEX IF NOT EXISTS idx_tx_token ON transactions(token);
`

// Journal implementa ports.LedgerSink sobre SQLite (pure Go, sin CGo).
type Journal struct {
	db        *sql.DB
	runID     string
	mu        sync.Mutex
	watermark int // último seq persistido
}

// NewJournal abre (o crea) la base de datos en path y registra un run nuevo.
func NewJournal(path, executor string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewJournal: apply schema: %w", err)
	}

	j := &Journal{db: db, runID: uuid.New().String()}
	if _, err := db.Exec(`INSERT INTO runs (id, started_at, executor) VALUES (?, ?, ?)`,
		j.runID, time.Now().UTC().Format(time.RFC3339Nano), executor,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewJournal: register run: %w", err)
	}
	return j, nil
}

// RunID identifica el run actual.
func (j *Journal) RunID() string {
	return j.runID
}

// Persist implementa ports.LedgerSink.
func (j *Journal) Persist(ctx context.Context, records []domain.Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	pending := make([]domain.Transaction, 0, len(records))
	for _, r := range records {
		if r.Seq > j.watermark {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Journal: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions
			(id, run_id, seq, ts, token, kind, quantity, price, usd_value,
			 balance_after, reason, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.Journal: prepare: %w", err)
	}
	defer stmt.Close()

	maxSeq := j.watermark
	for _, r := range pending {
		if _, err := stmt.ExecContext(ctx,
			r.ID,
			j.runID,
			r.Seq,
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			r.Token,
			string(r.Kind),
			r.Quantity.String(),
			r.Price.String(),
			r.USDValue.String(),
			r.BalanceAfter.String(),
			string(r.Reason),
			r.Signature,
		); err != nil {
			return fmt.Errorf("storage.Journal: insert seq %d: %w", r.Seq, err)
		}
		maxSeq = max(maxSeq, r.Seq)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Journal: commit: %w", err)
	}
	j.watermark = maxSeq
	return nil
}

// Load devuelve los registros del run actual ordenados por seq.
func (j *Journal) Load(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, seq, ts, token, kind, quantity, price, usd_value,
		       balance_after, reason, signature
		FROM transactions
		WHERE run_id = ?
		ORDER BY seq
	`, j.runID)
	if err != nil {
		return nil, fmt.Errorf("storage.Journal.Load: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			r                                 domain.Transaction
			ts, kind, reason                  string
			qty, price, usdValue, balanceAfter string
		)
		if err := rows.Scan(&r.ID, &r.Seq, &ts, &r.Token, &kind, &qty, &price,
			&usdValue, &balanceAfter, &reason, &r.Signature); err != nil {
			return nil, fmt.Errorf("storage.Journal.Load: scan row: %w", err)
		}
		r.Kind = domain.TxKind(kind)
		r.Reason = domain.ExitReason(reason)
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("storage.Journal.Load: seq %d timestamp: %w", r.Seq, err)
		}
		if r.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("storage.Journal.Load: seq %d quantity: %w", r.Seq, err)
		}
		if r.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("storage.Journal.Load: seq %d price: %w", r.Seq, err)
		}
		if r.USDValue, err = decimal.NewFromString(usdValue); err != nil {
			return nil, fmt.Errorf("storage.Journal.Load: seq %d usd_value: %w", r.Seq, err)
		}
		if r.BalanceAfter, err = decimal.NewFromString(balanceAfter); err != nil {
			return nil, fmt.Errorf("storage.Journal.Load: seq %d balance: %w", r.Seq, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (j *Journal) Close() error {
	return j.db.Close()
}
