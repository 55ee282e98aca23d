package onchain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/raybot/internal/domain"
)

// WrappedSOL es el mint que usa el swap API para SOL nativo.
const WrappedSOL = "So11111111111111111111111111111111111111112"

const (
	solDecimals = 9

	defaultConfirmAttempts = 15
	defaultConfirmEvery    = 2 * time.Second
)

// RPC es el subconjunto de rpc.Client que usa el executor.
type RPC interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenSupply(ctx context.Context, mint solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Swapper obtiene cotizaciones y transacciones de swap sin firmar.
type Swapper interface {
	Quote(ctx context.Context, inputMint, outputMint, amount string) (*Quote, error)
	SwapTransaction(ctx context.Context, quote *Quote, user solana.PublicKey) ([]byte, error)
}

// Executor ejecuta las compras y ventas del engine como swaps firmados.
// Solo firma transacciones de swap pedidas por el engine; nunca transfiere
// fondos a otra cuenta.
type Executor struct {
	key       solana.PrivateKey
	rpc       RPC
	swap      Swapper
	quoteMint string

	confirmAttempts int
	confirmEvery    time.Duration

	mu       sync.Mutex
	decimals map[string]uint8 // mint → decimales, cacheado
}

// NewExecutor crea el executor a partir de una clave privada en base58.
func NewExecutor(privateKey string, rpcClient RPC, swap Swapper) (*Executor, error) {
	key, err := solana.PrivateKeyFromBase58(privateKey)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewExecutor: private key: %w", err)
	}
	if rpcClient == nil || swap == nil {
		return nil, fmt.Errorf("onchain.NewExecutor: rpc and swap clients are required")
	}
	return &Executor{
		key:       key,
		rpc:       rpcClient,
		swap:      swap,
		quoteMint: WrappedSOL,
		decimals:  map[string]uint8{WrappedSOL: solDecimals},

		confirmAttempts: defaultConfirmAttempts,
		confirmEvery:    defaultConfirmEvery,
	}, nil
}

// SetConfirmation ajusta cuántas veces y cada cuánto se consulta el estado de
// un swap enviado.
func (e *Executor) SetConfirmation(attempts int, every time.Duration) {
	if attempts > 0 {
		e.confirmAttempts = attempts
	}
	if every >= 0 {
		e.confirmEvery = every
	}
}

// NewRPC crea un rpc.Client de solana-go contra endpoint.
func NewRPC(endpoint string) *rpc.Client {
	if endpoint == "" {
		endpoint = rpc.MainNetBeta_RPC
	}
	return rpc.New(endpoint)
}

func (e *Executor) Name() string { return "onchain" }

// PublicKey devuelve la dirección de la wallet.
func (e *Executor) PublicKey() solana.PublicKey { return e.key.PublicKey() }

// Balance lee el saldo SOL de la wallet.
func (e *Executor) Balance(ctx context.Context) (decimal.Decimal, error) {
	res, err := e.rpc.GetBalance(ctx, e.key.PublicKey(), rpc.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("onchain.Balance: %w", err)
	}
	return decimal.NewFromUint64(res.Value).Shift(-solDecimals), nil
}

// Buy cambia amount SOL por el token base del par.
func (e *Executor) Buy(ctx context.Context, pair domain.Pair, amount decimal.Decimal) (domain.Fill, error) {
	if !amount.IsPositive() {
		return domain.Fill{}, fmt.Errorf("onchain.Buy: %w: %s", domain.ErrInvalidAmount, amount)
	}
	if pair.BaseMint == "" {
		return domain.Fill{}, fmt.Errorf("onchain.Buy: %s has no base mint", pair.Name)
	}
	tokenDecimals, err := e.mintDecimals(ctx, pair.BaseMint)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("onchain.Buy: %w", err)
	}

	lamports := amount.Shift(solDecimals).Truncate(0)
	out, sig, err := e.execute(ctx, e.quoteMint, pair.BaseMint, lamports.String())
	if err != nil {
		return domain.Fill{}, fmt.Errorf("onchain.Buy %s: %w", pair.Name, err)
	}
	qty := out.Shift(-int32(tokenDecimals))

	fill := domain.Fill{
		Quantity:  qty,
		Price:     amount.DivRound(qty, 12),
		Value:     amount,
		Signature: sig.String(),
	}
	slog.Info("onchain: swap sent", "side", "buy", "token", pair.Name, "sol", amount.String(), "out", qty.String(), "sig", fill.Signature)
	return fill, nil
}

// Sell cambia toda la posición de vuelta a SOL.
func (e *Executor) Sell(ctx context.Context, pos domain.Position, _ decimal.Decimal) (domain.Fill, error) {
	if !pos.Quantity.IsPositive() {
		return domain.Fill{}, fmt.Errorf("onchain.Sell: %w: %s", domain.ErrInvalidAmount, pos.Quantity)
	}
	if pos.BaseMint == "" {
		return domain.Fill{}, fmt.Errorf("onchain.Sell: %s has no base mint", pos.Name)
	}
	tokenDecimals, err := e.mintDecimals(ctx, pos.BaseMint)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("onchain.Sell: %w", err)
	}

	raw := pos.Quantity.Shift(int32(tokenDecimals)).Truncate(0)
	out, sig, err := e.execute(ctx, pos.BaseMint, e.quoteMint, raw.String())
	if err != nil {
		return domain.Fill{}, fmt.Errorf("onchain.Sell %s: %w", pos.Name, err)
	}
	value := out.Shift(-solDecimals)

	fill := domain.Fill{
		Quantity:  pos.Quantity,
		Price:     value.DivRound(pos.Quantity, 12),
		Value:     value,
		Signature: sig.String(),
	}
	slog.Info("onchain: swap sent", "side", "sell", "token", pos.Name, "qty", pos.Quantity.String(), "sol", value.String(), "sig", fill.Signature)
	return fill, nil
}

// execute cotiza, pide la transacción, la firma, la envía y espera la
// confirmación. Devuelve el out amount cotizado en unidades mínimas.
// Todo lo que puede fallar sin tocar la cadena se valida antes de enviar.
func (e *Executor) execute(ctx context.Context, inputMint, outputMint, amount string) (decimal.Decimal, solana.Signature, error) {
	quote, err := e.swap.Quote(ctx, inputMint, outputMint, amount)
	if err != nil {
		return decimal.Zero, solana.Signature{}, err
	}
	out, err := quote.Out()
	if err != nil {
		return decimal.Zero, solana.Signature{}, err
	}
	raw, err := e.swap.SwapTransaction(ctx, quote, e.key.PublicKey())
	if err != nil {
		return decimal.Zero, solana.Signature{}, err
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return decimal.Zero, solana.Signature{}, fmt.Errorf("decode transaction: %w", err)
	}
	if err := e.sign(tx); err != nil {
		return decimal.Zero, solana.Signature{}, err
	}

	// no enviar nada si el engine ya se está parando
	if err := ctx.Err(); err != nil {
		return decimal.Zero, solana.Signature{}, err
	}
	sig, err := e.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return decimal.Zero, solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}

	confirmed, err := e.confirm(ctx, sig)
	if err != nil {
		return decimal.Zero, solana.Signature{}, err
	}
	if !confirmed {
		// ya está en la red: se registra al monto cotizado y con la firma,
		// para poder conciliarlo después
		slog.Warn("onchain: swap not confirmed in time, recording quoted amount",
			"sig", sig.String(), "attempts", e.confirmAttempts)
	}
	return out, sig, nil
}

// confirm consulta el estado de sig hasta verlo confirmado. Un error on-chain
// (p.ej. slippage excedido) significa que el swap no ocurrió. Corre sobre un
// contexto desacoplado: la tx ya salió y hay que saber qué pasó con ella.
func (e *Executor) confirm(ctx context.Context, sig solana.Signature) (bool, error) {
	cctx := context.WithoutCancel(ctx)
	for attempt := 0; attempt < e.confirmAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(e.confirmEvery)
		}
		res, err := e.rpc.GetSignatureStatuses(cctx, false, sig)
		if err != nil {
			slog.Debug("onchain: signature status failed", "sig", sig.String(), "err", err)
			continue
		}
		if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
			continue
		}
		st := res.Value[0]
		if st.Err != nil {
			return false, fmt.Errorf("transaction %s failed on-chain: %v", sig, st.Err)
		}
		switch st.ConfirmationStatus {
		case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
			return true, nil
		}
	}
	return false, nil
}

// sign firma tx con la clave de la wallet. Rechaza transacciones que piden
// otros firmantes.
func (e *Executor) sign(tx *solana.Transaction) error {
	pub := e.key.PublicKey()
	_, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(pub) {
			return &e.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	return nil
}

func (e *Executor) mintDecimals(ctx context.Context, mint string) (uint8, error) {
	e.mu.Lock()
	d, ok := e.decimals[mint]
	e.mu.Unlock()
	if ok {
		return d, nil
	}

	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("mint %q: %w", mint, err)
	}
	res, err := e.rpc.GetTokenSupply(ctx, pk, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("token supply %s: %w", mint, err)
	}
	if res == nil || res.Value == nil {
		return 0, fmt.Errorf("token supply %s: empty response", mint)
	}

	e.mu.Lock()
	e.decimals[mint] = res.Value.Decimals
	e.mu.Unlock()
	return res.Value.Decimals, nil
}
