package raydium

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/raybot/internal/domain"
)

const pairsPath = "/v2/main/pairs"

// fetchPairs descarga el listado completo de pares.
func (c *Client) fetchPairs(ctx context.Context) ([]pairDTO, error) {
	var raw []json.RawMessage
	if err := c.get(ctx, c.baseURL+pairsPath, &raw); err != nil {
		return nil, fmt.Errorf("raydium.fetchPairs: %w", err)
	}
	return decodePairs(raw), nil
}

// CurrentPrice implementa ports.MarketFeed.
func (c *Client) CurrentPrice(ctx context.Context, name string) domain.PriceQuote {
	pairs, err := c.fetchPairs(ctx)
	if err != nil {
		return domain.QuoteFailure(err)
	}

	for _, p := range pairs {
		if !strings.EqualFold(p.Name, name) {
			continue
		}
		price, ok := parsePrice(p.Price)
		if !ok {
			return domain.QuoteFailure(fmt.Errorf("raydium.CurrentPrice: malformed price for %q: %s", name, string(p.Price)))
		}
		return domain.Quoted(price)
	}
	return domain.NotListed()
}

// NewlyListed implementa ports.MarketFeed.
// Ventana inclusiva en ambos extremos: [now-window, now].
func (c *Client) NewlyListed(ctx context.Context, window time.Duration) ([]domain.Pair, error) {
	pairs, err := c.fetchPairs(ctx)
	if err != nil {
		return nil, err
	}

	now := c.now()
	from := now.Add(-window)

	result := make([]domain.Pair, 0)
	for _, raw := range pairs {
		if !strings.Contains(raw.Name, c.quoteMarker) {
			continue
		}
		listedAt, ok := parseCreatedAt(raw.CreatedAt)
		if !ok {
			continue
		}
		if listedAt.Before(from) || listedAt.After(now) {
			continue
		}
		pair, ok := mapPair(raw)
		if !ok {
			slog.Debug("raydium: new pair without usable price", "pair", raw.Name)
			continue
		}
		result = append(result, pair)
	}

	slog.Debug("raydium: newly listed",
		"total", len(pairs),
		"matched", len(result),
		"window", window,
	)
	return result, nil
}
