package onchain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	defaultSwapAPI     = "https://quote-api.jup.ag/v6"
	defaultSwapTimeout = 15 * time.Second
	defaultSlippageBps = 500

	swapRatePerSec = 2
	swapBurst      = 1

	maxErrorBody = 512
)

// Quote es la respuesta de /quote. Raw se reenvía tal cual a /swap.
type Quote struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`

	Raw json.RawMessage `json:"-"`
}

// Out devuelve OutAmount en unidades mínimas. Tiene que ser un entero positivo.
func (q *Quote) Out() (decimal.Decimal, error) {
	if q.OutAmount == "" || q.OutAmount == "0" {
		return decimal.Zero, errors.New("no route")
	}
	out, err := decimal.NewFromString(q.OutAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("out amount %q: %w", q.OutAmount, err)
	}
	if !out.IsPositive() || !out.Equal(out.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("out amount %q is not a positive integer", q.OutAmount)
	}
	return out, nil
}

type swapRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// SwapClient habla con la API de quote/swap de Jupiter.
// Un único intento por llamada: un swap fallido no se reintenta a ciegas.
type SwapClient struct {
	http        *http.Client
	baseURL     string
	slippageBps int
	limiter     *rate.Limiter
}

// NewSwapClient crea el cliente. Valores cero usan los defaults.
func NewSwapClient(baseURL string, slippageBps int) *SwapClient {
	if baseURL == "" {
		baseURL = defaultSwapAPI
	}
	if slippageBps <= 0 {
		slippageBps = defaultSlippageBps
	}
	return &SwapClient{
		http:        &http.Client{Timeout: defaultSwapTimeout},
		baseURL:     baseURL,
		slippageBps: slippageBps,
		limiter:     rate.NewLimiter(rate.Limit(swapRatePerSec), swapBurst),
	}
}

// Quote pide una cotización para vender amount (unidades mínimas) de inputMint.
func (c *SwapClient) Quote(ctx context.Context, inputMint, outputMint, amount string) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", amount)
	q.Set("slippageBps", strconv.Itoa(c.slippageBps))

	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("onchain.Quote: %w", err)
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("onchain.Quote: decode: %w", err)
	}
	if _, err := quote.Out(); err != nil {
		return nil, fmt.Errorf("onchain.Quote: %s -> %s: %w", inputMint, outputMint, err)
	}
	quote.Raw = body
	return &quote, nil
}

// SwapTransaction pide a la API la transacción serializada (sin firmar) para quote.
func (c *SwapClient) SwapTransaction(ctx context.Context, quote *Quote, user solana.PublicKey) ([]byte, error) {
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:    quote.Raw,
		UserPublicKey:    user.String(),
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return nil, fmt.Errorf("onchain.SwapTransaction: marshal: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/swap", payload)
	if err != nil {
		return nil, fmt.Errorf("onchain.SwapTransaction: %w", err)
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("onchain.SwapTransaction: decode: %w", err)
	}
	if resp.SwapTransaction == "" {
		return nil, fmt.Errorf("onchain.SwapTransaction: empty transaction")
	}
	raw, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("onchain.SwapTransaction: base64: %w", err)
	}
	return raw, nil
}

func (c *SwapClient) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		slog.Warn("rate limited by swap API", "url", endpoint)
		return nil, fmt.Errorf("rate limited (429)")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	slog.Debug("swap API request complete", "method", method, "duration", time.Since(start).Round(time.Millisecond))
	return body, nil
}
