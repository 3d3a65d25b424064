package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"agentregistry/internal/ledger/retry"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrConfiguration marks settings that disable the sync scheduler without stopping the process
var ErrConfiguration = errors.New("configuration error")

// Store drivers
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Ledger drivers
const (
	LedgerLocal   = "local"
	LedgerStellar = "stellar"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	APIPort  int    `env:"API_PORT" envDefault:"8080"`

	// Identity store ( memory or postgres )
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Transport the scheduler submits through ( local or stellar )
	LedgerDriver string `env:"LEDGER_DRIVER" envDefault:"local"`
	LocalFee     int64  `env:"LOCAL_FEE" envDefault:"100"`

	Stellar StellarConfig
	Sync    SyncConfig
	Stats   StatsConfig
	Retry   retry.Config `envPrefix:"RETRY_"`
}

// StellarConfig holds the Soroban transport settings
type StellarConfig struct {
	RPCServerURL      string        `env:"RPC_SERVER_URL" envDefault:"https://soroban-testnet.stellar.org"`
	NetworkPassphrase string        `env:"NETWORK_PASSPHRASE" envDefault:"Test SDF Network ; September 2015"`
	ContractID        string        `env:"REGISTRY_CONTRACT_ID"`
	SignerSecret      string        `env:"SIGNER_SECRET"`
	Function          string        `env:"REGISTRY_FUNCTION" envDefault:"set_uri"`
	ConfirmAttempts   int           `env:"CONFIRM_ATTEMPTS" envDefault:"30"`
	PollInterval      time.Duration `env:"CONFIRM_POLL_INTERVAL" envDefault:"2s"`
}

// SyncConfig describes the identity the scheduler keeps fresh
type SyncConfig struct {
	Enabled         bool    `env:"SYNC_ENABLED" envDefault:"true"`
	IntervalHours   float64 `env:"SYNC_INTERVAL_HOURS" envDefault:"24"`
	WarmupSeconds   int     `env:"SYNC_WARMUP_SECONDS" envDefault:"30"`
	IdentityID      uint64  `env:"SYNC_IDENTITY_ID"`
	BasePointer     string  `env:"SYNC_BASE_POINTER"`
	Caller          string  `env:"SYNC_CALLER"`
	MaxFee          int64   `env:"SYNC_MAX_FEE" envDefault:"10000"`
	MaxInstructions uint32  `env:"SYNC_MAX_INSTRUCTIONS" envDefault:"10000000"`
}

// StatsConfig configures the live figures shown in descriptors
type StatsConfig struct {
	URL        string `env:"STATS_URL"`
	TTLSeconds int    `env:"STATS_TTL_SECONDS" envDefault:"300"`
	AgentName  string `env:"AGENT_NAME" envDefault:"agent"`
}

// Load reads .env when present, then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks settings the process cannot start without
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for store driver %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	switch c.LedgerDriver {
	case LedgerLocal:
	case LedgerStellar:
		if c.Stellar.RPCServerURL == "" {
			return fmt.Errorf("RPC_SERVER_URL is required for ledger driver %q", c.LedgerDriver)
		}
		if c.Stellar.NetworkPassphrase == "" {
			return fmt.Errorf("NETWORK_PASSPHRASE is required for ledger driver %q", c.LedgerDriver)
		}
	default:
		return fmt.Errorf("unknown ledger driver %q", c.LedgerDriver)
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid API_PORT %d", c.APIPort)
	}
	return nil
}

// CheckSync reports why the scheduler cannot run, wrapping ErrConfiguration.
// A nil result means the credential and target identity are both present.
func (c *Config) CheckSync() error {
	var missing []string

	if !c.Sync.Enabled {
		return fmt.Errorf("%w: SYNC_ENABLED is false", ErrConfiguration)
	}
	if c.Sync.IdentityID == 0 {
		missing = append(missing, "SYNC_IDENTITY_ID")
	}
	if c.Sync.BasePointer == "" {
		missing = append(missing, "SYNC_BASE_POINTER")
	}

	switch c.LedgerDriver {
	case LedgerStellar:
		if c.Stellar.SignerSecret == "" {
			missing = append(missing, "SIGNER_SECRET")
		}
		if c.Stellar.ContractID == "" {
			missing = append(missing, "REGISTRY_CONTRACT_ID")
		}
	default:
		if c.Sync.Caller == "" {
			missing = append(missing, "SYNC_CALLER")
		}
	}

	if c.Sync.IntervalHours <= 0 {
		return fmt.Errorf("%w: SYNC_INTERVAL_HOURS must be positive", ErrConfiguration)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// Interval converts SYNC_INTERVAL_HOURS to a duration
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalHours * float64(time.Hour))
}

// Warmup converts SYNC_WARMUP_SECONDS to a duration
func (s SyncConfig) Warmup() time.Duration {
	return time.Duration(s.WarmupSeconds) * time.Second
}

// TTL converts STATS_TTL_SECONDS to a duration
func (s StatsConfig) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}
