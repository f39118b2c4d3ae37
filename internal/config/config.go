// Package config extends the core bot configuration with the trading
// sections: database, ledger RPC, providers, session storage, cache and ops.
package config

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/tradebot/core/config"
	coredatabase "github.com/m3rciful/tradebot/core/database"
)

const (
	SessionBackendMemory   = "memory"
	SessionBackendPostgres = "postgres"
)

const (
	DefaultRPCURL            = "https://api.mainnet-beta.solana.com"
	DefaultSessionTTLSeconds = 3600
	DefaultConfirmSeconds    = 60
	DefaultJupiterSeconds    = 10
	DefaultJupiterRetries    = 2
	DefaultTokenTTLSeconds   = 3600
	DefaultCachePath         = "data/tokens.db"
)

type SolanaConfig struct {
	RPCURL                string `yaml:"rpc_url" envconfig:"SOLANA_RPC_URL"`
	Commitment            string `yaml:"commitment" envconfig:"SOLANA_COMMITMENT"`
	ConfirmTimeoutSeconds int    `yaml:"confirm_timeout_seconds" envconfig:"SOLANA_CONFIRM_TIMEOUT_SECONDS"`
}

type JupiterConfig struct {
	APIKey         string `yaml:"api_key" envconfig:"JUPITER_API_KEY"`
	UltraURL       string `yaml:"ultra_url" envconfig:"JUPITER_ULTRA_URL"`
	TriggerURL     string `yaml:"trigger_url" envconfig:"JUPITER_TRIGGER_URL"`
	TokensURL      string `yaml:"tokens_url" envconfig:"JUPITER_TOKENS_URL"`
	PriceURL       string `yaml:"price_url" envconfig:"JUPITER_PRICE_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"JUPITER_TIMEOUT_SECONDS"`
	Retries        int    `yaml:"retries" envconfig:"JUPITER_RETRIES"`
}

type PrivyConfig struct {
	AppID            string `yaml:"app_id" envconfig:"PRIVY_APP_ID"`
	AppSecret        string `yaml:"app_secret" envconfig:"PRIVY_APP_SECRET"`
	AuthorizationKey string `yaml:"authorization_key" envconfig:"PRIVY_AUTHORIZATION_KEY"`
	SignerID         string `yaml:"signer_id" envconfig:"PRIVY_SIGNER_ID"`
}

type HeliusConfig struct {
	APIKey string `yaml:"api_key" envconfig:"HELIUS_API_KEY"`
	URL    string `yaml:"url" envconfig:"HELIUS_URL"`
}

type SessionConfig struct {
	Backend    string `yaml:"backend" envconfig:"SESSION_BACKEND"`
	TTLSeconds int    `yaml:"ttl_seconds" envconfig:"SESSION_TTL_SECONDS"`
}

type CacheConfig struct {
	Path            string `yaml:"path" envconfig:"CACHE_PATH"`
	LockPath        string `yaml:"lock_path" envconfig:"CACHE_LOCK_PATH"`
	TokenTTLSeconds int    `yaml:"token_ttl_seconds" envconfig:"CACHE_TOKEN_TTL_SECONDS"`
}

// OpsConfig enables /health and /metrics when Listen is set.
type OpsConfig struct {
	Listen string `yaml:"listen" envconfig:"OPS_LISTEN"`
}

type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Solana   SolanaConfig        `yaml:"solana"`
	Jupiter  JupiterConfig       `yaml:"jupiter"`
	Privy    PrivyConfig         `yaml:"privy"`
	Helius   HeliusConfig        `yaml:"helius"`
	Session  SessionConfig       `yaml:"session"`
	Cache    CacheConfig         `yaml:"cache"`
	Ops      OpsConfig           `yaml:"ops"`
}

// CoreConfig exposes the embedded core section to the shared runner.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// Load reads the YAML file, overlays the environment and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Read(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the core section, then the trading sections, filling
// defaults along the way.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}
	if cfg.Database.Enabled() {
		cfg.Database.Normalize()
	}

	if cfg.Solana.RPCURL == "" {
		cfg.Solana.RPCURL = DefaultRPCURL
	}
	cfg.Solana.Commitment = strings.ToLower(strings.TrimSpace(cfg.Solana.Commitment))
	switch cfg.Solana.Commitment {
	case "":
		cfg.Solana.Commitment = "confirmed"
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("invalid solana.commitment %q; allowed: processed, confirmed, finalized", cfg.Solana.Commitment)
	}
	if cfg.Solana.ConfirmTimeoutSeconds <= 0 {
		cfg.Solana.ConfirmTimeoutSeconds = DefaultConfirmSeconds
	}

	if cfg.Jupiter.TimeoutSeconds <= 0 {
		cfg.Jupiter.TimeoutSeconds = DefaultJupiterSeconds
	}
	if cfg.Jupiter.Retries < 0 {
		return fmt.Errorf("jupiter.retries must be >= 0")
	}
	if cfg.Jupiter.Retries == 0 {
		cfg.Jupiter.Retries = DefaultJupiterRetries
	}

	if strings.TrimSpace(cfg.Privy.AppID) == "" || strings.TrimSpace(cfg.Privy.AppSecret) == "" {
		return fmt.Errorf("privy.app_id and privy.app_secret are required")
	}

	cfg.Session.Backend = strings.ToLower(strings.TrimSpace(cfg.Session.Backend))
	switch cfg.Session.Backend {
	case "":
		cfg.Session.Backend = SessionBackendMemory
	case SessionBackendMemory:
	case SessionBackendPostgres:
		if !cfg.Database.Enabled() {
			return fmt.Errorf("session.backend 'postgres' requires database.host")
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, postgres", cfg.Session.Backend)
	}
	if cfg.Session.TTLSeconds <= 0 {
		cfg.Session.TTLSeconds = DefaultSessionTTLSeconds
	}

	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath
	}
	if cfg.Cache.TokenTTLSeconds <= 0 {
		cfg.Cache.TokenTTLSeconds = DefaultTokenTTLSeconds
	}
	return nil
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Solana.ConfirmTimeoutSeconds) * time.Second
}

func (c *Config) JupiterTimeout() time.Duration {
	return time.Duration(c.Jupiter.TimeoutSeconds) * time.Second
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Cache.TokenTTLSeconds) * time.Second
}
