package raydium

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL     = "https://api.raydium.io"
	defaultTimeout     = 10 * time.Second
	defaultQuoteMarker = "SOL"

	// /v2/main/pairs devuelve varios MB; no tiene sentido pedirlo más de unas
	// pocas veces por segundo aunque haya muchas posiciones abiertas.
	defaultRatePerSec = 5
	defaultBurst      = 2

	maxErrorBody = 512
)

// Options ajusta el Client. Los valores cero usan los defaults.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	QuoteMarker       string
	Now               func() time.Time
}

// Client es el HTTP client de la API pública de Raydium con rate limiting.
// Sin retries: la política de reintento es del caller (el siguiente ciclo).
type Client struct {
	http        *http.Client
	baseURL     string
	limiter     *rate.Limiter
	quoteMarker string
	now         func() time.Time
}

// NewClient crea un Client. Si baseURL está vacío usa el de producción.
func NewClient(baseURL string, opts Options) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRatePerSec
	}
	if opts.QuoteMarker == "" {
		opts.QuoteMarker = defaultQuoteMarker
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		http:        &http.Client{Timeout: opts.Timeout},
		baseURL:     baseURL,
		limiter:     rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), defaultBurst),
		quoteMarker: opts.QuoteMarker,
		now:         opts.Now,
	}
}

// get hace un único GET con rate limiting y decodifica el JSON en out.
func (c *Client) get(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		slog.Warn("rate limited by API", "url", url)
		return fmt.Errorf("rate limited (429)")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	slog.Debug("raydium request complete", "url", url, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}
