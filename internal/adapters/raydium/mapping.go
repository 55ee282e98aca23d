package raydium

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/raybot/internal/domain"
)

// decodePairs decodifica cada elemento por separado y descarta los que no
// encajan en pairDTO (p.ej. name numérico).
func decodePairs(raw []json.RawMessage) []pairDTO {
	out := make([]pairDTO, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		var p pairDTO
		if err := json.Unmarshal(r, &p); err != nil || p.Name == "" {
			skipped++
			continue
		}
		out = append(out, p)
	}
	if skipped > 0 {
		slog.Debug("raydium: skipped undecodable pairs", "count", skipped)
	}
	return out
}

// mapPair convierte el DTO a domain.Pair. ok=false si el precio no es un
// número positivo.
func mapPair(p pairDTO) (domain.Pair, bool) {
	price, ok := parsePrice(p.Price)
	if !ok {
		return domain.Pair{}, false
	}
	pair := domain.Pair{
		Name:      p.Name,
		AmmID:     p.AmmID,
		BaseMint:  p.BaseMint,
		QuoteMint: p.QuoteMint,
		Price:     price,
	}
	if liq, ok := parseNumber(p.Liquidity); ok {
		pair.Liquidity, _ = liq.Float64()
	}
	if listed, ok := parseCreatedAt(p.CreatedAt); ok {
		pair.ListedAt = listed
	}
	return pair, true
}

// parsePrice acepta solo números JSON positivos.
func parsePrice(raw json.RawMessage) (decimal.Decimal, bool) {
	price, ok := parseNumber(raw)
	if !ok || !price.IsPositive() {
		return decimal.Decimal{}, false
	}
	return price, true
}

// parseNumber parsea un número JSON literal. Strings, null y ausencia no cuentan.
func parseNumber(raw json.RawMessage) (decimal.Decimal, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !isNumberStart(raw[0]) {
		return decimal.Decimal{}, false
	}
	v, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}

// parseCreatedAt interpreta createdAt como segundos Unix (entero o fraccional).
func parseCreatedAt(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !isNumberStart(raw[0]) {
		return time.Time{}, false
	}
	secs, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || secs <= 0 || math.IsInf(secs, 0) || math.IsNaN(secs) {
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), true
}

func isNumberStart(b byte) bool {
	return b == '-' || (b >= '0' && b <= '9')
}
