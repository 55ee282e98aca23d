package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Config es la configuración completa del bot.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Feed   FeedConfig   `yaml:"feed"`
	Export ExportConfig `yaml:"export"`
	Health HealthConfig `yaml:"health"`
	Live   LiveConfig   `yaml:"live"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig controla el ciclo de trading.
type EngineConfig struct {
	InitialBalance       decimal.Decimal `yaml:"initial_balance"`
	Allocation           decimal.Decimal `yaml:"allocation"` // por posición
	ProfitPct            decimal.Decimal `yaml:"profit_pct"`
	LossPct              decimal.Decimal `yaml:"loss_pct"`
	CycleSeconds         int             `yaml:"cycle_seconds"`
	ListingWindowMinutes int             `yaml:"listing_window_minutes"`
	SlippagePct          decimal.Decimal `yaml:"slippage_pct"` // solo executor simulado
	Mode                 string          `yaml:"mode"`         // paper | live
}

// FeedConfig apunta a la API de pares de Raydium.
type FeedConfig struct {
	BaseURL           string  `yaml:"base_url"`
	QuoteMarker       string  `yaml:"quote_marker"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// ExportConfig controla dónde se persiste el ledger.
type ExportConfig struct {
	CSVPath    string `yaml:"csv_path"`
	JournalDSN string `yaml:"journal_dsn"` // ruta SQLite; vacío desactiva el journal
}

// HealthConfig controla el endpoint de liveness.
type HealthConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LiveConfig solo se usa con mode=live. La clave privada nunca va en el YAML.
type LiveConfig struct {
	RPCEndpoint string `yaml:"rpc_endpoint"`
	SwapAPI     string `yaml:"swap_api"`
	SlippageBps int    `yaml:"slippage_bps"`
	PrivateKey  string `yaml:"-"` // RAYBOT_PRIVATE_KEY
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
// Si path no existe se usan solo env + defaults.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	cfg := preset()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	return &cfg, nil
}

// CycleDelay devuelve la pausa entre ciclos como time.Duration.
func (c *Config) CycleDelay() time.Duration {
	return time.Duration(c.Engine.CycleSeconds) * time.Second
}

// ListingWindow devuelve la ventana de "recién listado".
func (c *Config) ListingWindow() time.Duration {
	return time.Duration(c.Engine.ListingWindowMinutes) * time.Minute
}

// FeedTimeout devuelve el timeout HTTP del feed.
func (c *Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feed.TimeoutSeconds) * time.Second
}

// HealthEnabled indica si hay que levantar el endpoint /ping.
func (c *Config) HealthEnabled() bool {
	return c.Health.Enabled == nil || *c.Health.Enabled
}

// Validate rechaza combinaciones que no tienen sentido antes de arrancar.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.ProfitPct.IsNegative() {
		errs = append(errs, fmt.Errorf("profit_pct must be >= 0, got %s", c.Engine.ProfitPct))
	}
	if c.Engine.LossPct.IsNegative() {
		errs = append(errs, fmt.Errorf("loss_pct must be >= 0, got %s", c.Engine.LossPct))
	}
	if !c.Engine.Allocation.IsPositive() {
		errs = append(errs, fmt.Errorf("allocation must be > 0, got %s", c.Engine.Allocation))
	}
	if c.Engine.InitialBalance.IsNegative() {
		errs = append(errs, fmt.Errorf("initial_balance must be >= 0, got %s", c.Engine.InitialBalance))
	}
	if c.Engine.SlippagePct.IsNegative() || c.Engine.SlippagePct.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		errs = append(errs, fmt.Errorf("slippage_pct must be in [0, 100), got %s", c.Engine.SlippagePct))
	}
	switch c.Engine.Mode {
	case ModePaper:
	case ModeLive:
		if c.Live.PrivateKey == "" {
			errs = append(errs, errors.New("live mode requires RAYBOT_PRIVATE_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModePaper, ModeLive, c.Engine.Mode))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config.Validate: %w", errors.Join(errs...))
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("RAYBOT_MODE"); v != "" {
		cfg.Engine.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("RAYBOT_PRIVATE_KEY"); v != "" {
		cfg.Live.PrivateKey = v
	}
	if v := os.Getenv("RAYBOT_PROFIT_PCT"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("RAYBOT_PROFIT_PCT: %w", err)
		}
		cfg.Engine.ProfitPct = d
	}
	if v := os.Getenv("RAYBOT_LOSS_PCT"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("RAYBOT_LOSS_PCT: %w", err)
		}
		cfg.Engine.LossPct = d
	}
	// los hosts tipo Replit/Heroku fijan PORT
	if v := os.Getenv("PORT"); v != "" {
		host, _, err := net.SplitHostPort(cfg.Health.Addr)
		if err != nil || cfg.Health.Addr == "" {
			host = "0.0.0.0"
		}
		cfg.Health.Addr = net.JoinHostPort(host, v)
	}
	return nil
}

// preset devuelve los defaults de los campos donde cero es un valor válido
// (0% de umbral, saldo 0). yaml.Unmarshal solo pisa las keys presentes.
func preset() Config {
	return Config{
		Engine: EngineConfig{
			InitialBalance: decimal.NewFromInt(100),
			ProfitPct:      decimal.NewFromInt(60),
			LossPct:        decimal.NewFromInt(60),
		},
		Export: ExportConfig{JournalDSN: "raybot.db"},
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Engine.Allocation.IsZero() {
		cfg.Engine.Allocation = decimal.NewFromInt(10)
	}
	if cfg.Engine.CycleSeconds <= 0 {
		cfg.Engine.CycleSeconds = 60
	}
	if cfg.Engine.ListingWindowMinutes <= 0 {
		cfg.Engine.ListingWindowMinutes = 10
	}
	if cfg.Engine.Mode == "" {
		cfg.Engine.Mode = ModePaper
	}
	if cfg.Feed.BaseURL == "" {
		cfg.Feed.BaseURL = "https://api.raydium.io"
	}
	if cfg.Feed.QuoteMarker == "" {
		cfg.Feed.QuoteMarker = "SOL"
	}
	if cfg.Feed.TimeoutSeconds <= 0 {
		cfg.Feed.TimeoutSeconds = 10
	}
	if cfg.Feed.RequestsPerSecond <= 0 {
		cfg.Feed.RequestsPerSecond = 5
	}
	if cfg.Export.CSVPath == "" {
		cfg.Export.CSVPath = "trading_simulation_results.csv"
	}
	if cfg.Health.Addr == "" {
		cfg.Health.Addr = "0.0.0.0:5000"
	}
	if cfg.Live.RPCEndpoint == "" {
		cfg.Live.RPCEndpoint = "https://api.mainnet-beta.solana.com"
	}
	if cfg.Live.SwapAPI == "" {
		cfg.Live.SwapAPI = "https://quote-api.jup.ag/v6"
	}
	if cfg.Live.SlippageBps <= 0 {
		cfg.Live.SlippageBps = 500
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
