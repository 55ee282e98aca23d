package ports

import (
	"context"

	"github.com/alejandrodnm/raybot/internal/domain"
)

// LedgerSink persists the transaction ledger.
type LedgerSink interface {
	// Persist receives the full ledger every time. Implementations must be
	// safe to call repeatedly with a growing slice.
	Persist(ctx context.Context, records []domain.Transaction) error
}
