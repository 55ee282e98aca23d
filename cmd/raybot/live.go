package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/raybot/config"
	"github.com/alejandrodnm/raybot/internal/adapters/onchain"
	"github.com/alejandrodnm/raybot/internal/application/engine/paper"
	"github.com/alejandrodnm/raybot/internal/ports"
)

var errAborted = errors.New("aborted")

const abortWindow = 5 * time.Second

// buildExecutor devuelve el executor del modo configurado y el saldo inicial
// con el que arranca la wallet del engine.
func buildExecutor(ctx context.Context, cfg *config.Config) (ports.TradeExecutor, decimal.Decimal, error) {
	if cfg.Engine.Mode != config.ModeLive {
		ex, err := paper.NewExecutor(cfg.Engine.SlippagePct)
		if err != nil {
			return nil, decimal.Zero, err
		}
		return ex, cfg.Engine.InitialBalance, nil
	}
	return buildLiveExecutor(ctx, cfg)
}

// buildLiveExecutor conecta la wallet real. El saldo del engine es el menor
// entre el saldo on-chain y initial_balance: el bot nunca opera más de lo
// configurado aunque la wallet tenga más.
func buildLiveExecutor(ctx context.Context, cfg *config.Config) (ports.TradeExecutor, decimal.Decimal, error) {
	ex, err := onchain.NewExecutor(
		cfg.Live.PrivateKey,
		onchain.NewRPC(cfg.Live.RPCEndpoint),
		onchain.NewSwapClient(cfg.Live.SwapAPI, cfg.Live.SlippageBps),
	)
	if err != nil {
		return nil, decimal.Zero, err
	}

	balance, err := ex.Balance(ctx)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("read wallet balance: %w", err)
	}
	initial := decimal.Min(balance, cfg.Engine.InitialBalance)

	slog.Info("=== LIVE TRADING MODE (REAL FUNDS) ===",
		"wallet", ex.PublicKey().String(),
		"sol_balance", balance.String(),
		"engine_balance", initial.String(),
		"allocation", cfg.Engine.Allocation.String(),
	)
	fmt.Printf("\n⚠️  LIVE TRADING MODE: real swaps will be signed with %s\n", ex.PublicKey())
	fmt.Printf("   Engine balance: %s SOL | Allocation: %s SOL per position\n",
		initial.StringFixed(4), cfg.Engine.Allocation.String())
	fmt.Printf("   Press Ctrl+C within 5 seconds to abort...\n\n")

	abortTimer := time.NewTimer(abortWindow)
	defer abortTimer.Stop()
	select {
	case <-abortTimer.C:
	case <-ctx.Done():
		return nil, decimal.Zero, errAborted
	}
	return ex, initial, nil
}
