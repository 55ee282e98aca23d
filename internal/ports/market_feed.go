package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/raybot/internal/domain"
)

// MarketFeed es la fuente externa de precios y listados del DEX.
// No guarda estado: cada llamada es una consulta nueva, sin reintentos.
type MarketFeed interface {
	// CurrentPrice busca el par por display name (sin distinguir mayúsculas).
	// Nunca devuelve error: los fallos se expresan en el status del quote.
	CurrentPrice(ctx context.Context, name string) domain.PriceQuote

	// NewlyListed devuelve los pares listados dentro de la ventana que cotizan
	// contra el activo nativo. Slice vacío si no hay nada; error solo si la
	// llamada en sí falla.
	NewlyListed(ctx context.Context, window time.Duration) ([]domain.Pair, error)
}
