package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Wallet holds the free cash available for new positions.
// The balance never goes below zero: Debit refuses rather than overdrawing.
type Wallet struct {
	cash decimal.Decimal
}

// NewWallet creates a wallet seeded with the initial balance.
func NewWallet(initial decimal.Decimal) (*Wallet, error) {
	if initial.IsNegative() {
		return nil, fmt.Errorf("domain.NewWallet: %w: initial balance %s", ErrInvalidAmount, initial)
	}
	return &Wallet{cash: initial}, nil
}

// Cash returns the current free balance.
func (w *Wallet) Cash() decimal.Decimal {
	return w.cash
}

// CanAfford reports whether amount can be debited.
func (w *Wallet) CanAfford(amount decimal.Decimal) bool {
	return w.cash.GreaterThanOrEqual(amount)
}

// Debit removes amount from the balance.
func (w *Wallet) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("wallet.Debit: %w: %s", ErrInvalidAmount, amount)
	}
	if !w.CanAfford(amount) {
		return fmt.Errorf("wallet.Debit: %w: have %s, need %s", ErrInsufficientFunds, w.cash, amount)
	}
	w.cash = w.cash.Sub(amount)
	return nil
}

// Credit adds proceeds to the balance. Zero is allowed (a token sold at 0).
func (w *Wallet) Credit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("wallet.Credit: %w: %s", ErrInvalidAmount, amount)
	}
	w.cash = w.cash.Add(amount)
	return nil
}
