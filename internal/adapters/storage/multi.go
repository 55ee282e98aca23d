package storage

import (
	"context"
	"errors"

	"github.com/alejandrodnm/raybot/internal/domain"
	"github.com/alejandrodnm/raybot/internal/ports"
)

// Multi reparte el ledger a varios sinks. Intenta todos aunque alguno falle.
type Multi []ports.LedgerSink

// Persist implementa ports.LedgerSink.
func (m Multi) Persist(ctx context.Context, records []domain.Transaction) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Persist(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
