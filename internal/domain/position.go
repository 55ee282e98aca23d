package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrPositionExists   = errors.New("position already open")
	ErrPositionNotFound = errors.New("position not found")
)

// Position is an open holding of a token.
type Position struct {
	Token       string // key, see TokenKey
	Name        string // display name as listed
	BaseMint    string
	EntryPrice  decimal.Decimal
	Quantity    decimal.Decimal
	OpenedAt    time.Time
	OpenedCycle int64
}

// CostBasis is entryPrice * quantity.
func (p Position) CostBasis() decimal.Decimal {
	return p.EntryPrice.Mul(p.Quantity)
}

// ChangePct returns the percentage change of current against the entry price.
func (p Position) ChangePct(current decimal.Decimal) decimal.Decimal {
	return ChangePct(p.EntryPrice, current)
}

// PositionBook is the set of open positions, at most one per token.
// Iteration follows opening order.
type PositionBook struct {
	byToken map[string]Position
	order   []string
}

// NewPositionBook creates an empty book.
func NewPositionBook() *PositionBook {
	return &PositionBook{byToken: make(map[string]Position)}
}

// Open adds a position. It fails if the token already has one.
func (b *PositionBook) Open(p Position) error {
	if p.Token == "" {
		p.Token = TokenKey(p.Name)
	}
	if _, ok := b.byToken[p.Token]; ok {
		return fmt.Errorf("positions.Open %q: %w", p.Name, ErrPositionExists)
	}
	b.byToken[p.Token] = p
	b.order = append(b.order, p.Token)
	return nil
}

// Has reports whether token has an open position.
func (b *PositionBook) Has(token string) bool {
	_, ok := b.byToken[token]
	return ok
}

// Get returns the open position for token.
func (b *PositionBook) Get(token string) (Position, bool) {
	p, ok := b.byToken[token]
	return p, ok
}

// Close removes and returns the position for token.
func (b *PositionBook) Close(token string) (Position, error) {
	p, ok := b.byToken[token]
	if !ok {
		return Position{}, fmt.Errorf("positions.Close %q: %w", token, ErrPositionNotFound)
	}
	delete(b.byToken, token)
	if i := slices.Index(b.order, token); i >= 0 {
		b.order = slices.Delete(b.order, i, i+1)
	}
	return p, nil
}

// Len returns the number of open positions.
func (b *PositionBook) Len() int {
	return len(b.byToken)
}

// Snapshot returns a copy of the open positions in opening order.
func (b *PositionBook) Snapshot() []Position {
	out := make([]Position, 0, len(b.order))
	for _, token := range b.order {
		out = append(out, b.byToken[token])
	}
	return out
}
