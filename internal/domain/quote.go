package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// QuoteStatus clasifica el resultado de una consulta de precio.
type QuoteStatus int

const (
	QuoteAvailable QuoteStatus = iota
	QuoteNotListed             // el nombre no aparece en el feed
	QuoteFailed                // la llamada falló o la respuesta no es válida
)

func (s QuoteStatus) String() string {
	switch s {
	case QuoteAvailable:
		return "available"
	case QuoteNotListed:
		return "not_listed"
	case QuoteFailed:
		return "failed"
	default:
		return fmt.Sprintf("QuoteStatus(%d)", int(s))
	}
}

// PriceQuote es el resultado explícito de currentPrice: nunca un panic ni un
// error que el caller tenga que propagar.
type PriceQuote struct {
	Price  decimal.Decimal
	Status QuoteStatus
	Err    error // solo con QuoteFailed
}

// Quoted construye un precio disponible.
func Quoted(price decimal.Decimal) PriceQuote {
	return PriceQuote{Price: price, Status: QuoteAvailable}
}

// NotListed indica que el token no está en el listado actual.
func NotListed() PriceQuote {
	return PriceQuote{Status: QuoteNotListed}
}

// QuoteFailure envuelve el error de la consulta.
func QuoteFailure(err error) PriceQuote {
	return PriceQuote{Status: QuoteFailed, Err: err}
}

// Available reports whether Price can be used.
func (q PriceQuote) Available() bool {
	return q.Status == QuoteAvailable
}
