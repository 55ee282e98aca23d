package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pair es un par recién listado en el DEX, tal como lo entrega el feed.
// El engine nunca lo modifica.
type Pair struct {
	Name      string // display name, p.ej. "BONK-SOL"
	AmmID     string
	BaseMint  string
	QuoteMint string
	Price     decimal.Decimal
	Liquidity float64
	ListedAt  time.Time
}

// Key devuelve el identificador de posición del par.
func (p Pair) Key() string {
	return TokenKey(p.Name)
}

// TokenKey normaliza un display name. El feed compara nombres sin distinguir
// mayúsculas, así que dos grafías del mismo nombre son el mismo token.
func TokenKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
