package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/futarchy/internal/domain"
)

// Config es la configuración completa del front-end de futarchy.
type Config struct {
	Chain   ChainConfig           `yaml:"chain"`
	Market  domain.MarketMetadata `yaml:"market"`
	Swap    SwapConfig            `yaml:"swap"`
	Trades  TradesConfig          `yaml:"trades"`
	Storage StorageConfig         `yaml:"storage"`
	Log     LogConfig             `yaml:"log"`
}

// ChainConfig describe la red y el wallet.
type ChainConfig struct {
	Name       string `yaml:"name"` // gnosis | mainnet | polygon | ... (para los links del explorer)
	ChainID    int64  `yaml:"chain_id"`
	RPCURL     string `yaml:"rpc_url"`
	Router     string `yaml:"router"`      // futarchy router: splitPosition / mergePositions
	User       string `yaml:"user"`        // dirección a consultar en modo solo-lectura
	PrivateKey string `yaml:"private_key"` // mejor vía FUTARCHY_PRIVATE_KEY en .env
}

// SwapConfig controla el orquestador.
type SwapConfig struct {
	AutoSplit           bool             `yaml:"auto_split"`
	SplitTimeoutSeconds int              `yaml:"split_timeout_seconds"`
	SettlingDelayMS     int              `yaml:"settling_delay_ms"` // negativo = sin espera
	BalanceCacheSeconds int              `yaml:"balance_cache_seconds"`
	Strategies          []StrategyConfig `yaml:"strategies"`
}

// StrategyConfig es un router de swap disponible.
type StrategyConfig struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Kind        string `yaml:"kind"` // algebra | uniswap_v3
	Router      string `yaml:"router"`
	Fee         uint32 `yaml:"fee"` // solo uniswap_v3
	GasLimit    uint64 `yaml:"gas_limit"`
}

// TradesConfig controla el read path de trades.
type TradesConfig struct {
	SubgraphURL     string       `yaml:"subgraph_url"`
	WSURL           string       `yaml:"ws_url"`
	Pools           []PoolConfig `yaml:"pools"`
	IntervalSeconds int          `yaml:"interval_seconds"`
	LookbackHours   int          `yaml:"lookback_hours"`
	Workers         int          `yaml:"workers"`
}

// PoolConfig es un pool observado. Token0/Token1 solo los necesita el feed websocket.
type PoolConfig struct {
	Address string `yaml:"address"`
	Token0  string `yaml:"token0"`
	Token1  string `yaml:"token1"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// PollInterval devuelve el intervalo de polling de trades.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Trades.IntervalSeconds) * time.Second
}

// Lookback devuelve la ventana del primer fetch.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.Trades.LookbackHours) * time.Hour
}

// SplitTimeout devuelve el timeout de la fase de colateral.
func (c *Config) SplitTimeout() time.Duration {
	return time.Duration(c.Swap.SplitTimeoutSeconds) * time.Second
}

// SettlingDelay devuelve la espera tras un split. Negativo desactiva la espera.
func (c *Config) SettlingDelay() time.Duration {
	return time.Duration(c.Swap.SettlingDelayMS) * time.Millisecond
}

// BalanceTTL devuelve la vida de la caché de balances.
func (c *Config) BalanceTTL() time.Duration {
	return time.Duration(c.Swap.BalanceCacheSeconds) * time.Second
}

// PoolAddresses devuelve solo las direcciones de los pools.
func (c *Config) PoolAddresses() []string {
	out := make([]string, 0, len(c.Trades.Pools))
	for _, p := range c.Trades.Pools {
		out = append(out, p.Address)
	}
	return out
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("FUTARCHY_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("FUTARCHY_PRIVATE_KEY"); v != "" {
		cfg.Chain.PrivateKey = v
	}
	if v := os.Getenv("FUTARCHY_USER"); v != "" {
		cfg.Chain.User = v
	}
	if v := os.Getenv("FUTARCHY_SUBGRAPH_URL"); v != "" {
		cfg.Trades.SubgraphURL = v
	}
	if v := os.Getenv("FUTARCHY_WS_URL"); v != "" {
		cfg.Trades.WSURL = v
	}
	if v := os.Getenv("FUTARCHY_AUTO_SPLIT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Swap.AutoSplit = b
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Chain.Name == "" {
		cfg.Chain.Name = "gnosis"
	}
	if cfg.Chain.ChainID == 0 {
		cfg.Chain.ChainID = 100
	}
	if cfg.Chain.RPCURL == "" {
		cfg.Chain.RPCURL = "https://rpc.gnosischain.com"
	}
	if cfg.Market.Chain == "" {
		cfg.Market.Chain = cfg.Chain.Name
	}
	if cfg.Swap.SplitTimeoutSeconds <= 0 {
		cfg.Swap.SplitTimeoutSeconds = 60
	}
	if cfg.Swap.SettlingDelayMS == 0 {
		cfg.Swap.SettlingDelayMS = 2000
	}
	if cfg.Swap.BalanceCacheSeconds <= 0 {
		cfg.Swap.BalanceCacheSeconds = 15
	}
	for i := range cfg.Swap.Strategies {
		if cfg.Swap.Strategies[i].DisplayName == "" {
			cfg.Swap.Strategies[i].DisplayName = cfg.Swap.Strategies[i].Name
		}
	}
	if cfg.Trades.IntervalSeconds <= 0 {
		cfg.Trades.IntervalSeconds = 30
	}
	if cfg.Trades.LookbackHours <= 0 {
		cfg.Trades.LookbackHours = 24
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "futarchy.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate rechaza configuraciones que romperían en runtime.
func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Swap.Strategies))
	for _, s := range c.Swap.Strategies {
		if s.Name == "" {
			return fmt.Errorf("swap.strategies: entry without name")
		}
		if seen[s.Name] {
			return fmt.Errorf("swap.strategies: duplicate name %q", s.Name)
		}
		seen[s.Name] = true
	}
	for _, p := range c.Trades.Pools {
		if p.Address == "" {
			return fmt.Errorf("trades.pools: entry without address")
		}
	}
	return nil
}
