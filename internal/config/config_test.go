package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, LedgerLocal, cfg.LedgerDriver)
	assert.Equal(t, "set_uri", cfg.Stellar.Function)
	assert.Equal(t, 24*time.Hour, cfg.Sync.Interval())
	assert.Equal(t, 30*time.Second, cfg.Sync.Warmup())
	assert.Equal(t, 5*time.Minute, cfg.Stats.TTL())
	assert.True(t, cfg.Retry.Enabled)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("LEDGER_DRIVER", "stellar")
	t.Setenv("REGISTRY_CONTRACT_ID", "CCONTRACT")
	t.Setenv("SYNC_INTERVAL_HOURS", "0.5")
	t.Setenv("SYNC_IDENTITY_ID", "7")
	t.Setenv("SYNC_MAX_INSTRUCTIONS", "250000")
	t.Setenv("RETRY_MAX_RETRIES", "5")
	t.Setenv("RETRY_MAX_DELAY", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, LedgerStellar, cfg.LedgerDriver)
	assert.Equal(t, "CCONTRACT", cfg.Stellar.ContractID)
	assert.Equal(t, 30*time.Minute, cfg.Sync.Interval())
	assert.Equal(t, uint64(7), cfg.Sync.IdentityID)
	assert.Equal(t, uint32(250000), cfg.Sync.MaxInstructions)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("SYNC_IDENTITY_ID", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		APIPort:      8080,
		StoreDriver:  StoreMemory,
		LedgerDriver: LedgerLocal,
		Stellar: StellarConfig{
			RPCServerURL:      "https://soroban-testnet.stellar.org",
			NetworkPassphrase: "Test SDF Network ; September 2015",
		},
		Sync: SyncConfig{
			Enabled:       true,
			IntervalHours: 24,
			IdentityID:    1,
			BasePointer:   "https://agent.example/card.json",
			Caller:        "GOWNER",
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"postgres without url", func(c *Config) { c.StoreDriver = StorePostgres }, true},
		{"postgres with url", func(c *Config) {
			c.StoreDriver = StorePostgres
			c.DatabaseURL = "postgres://localhost/registry"
		}, false},
		{"unknown store", func(c *Config) { c.StoreDriver = "sqlite" }, true},
		{"unknown ledger", func(c *Config) { c.LedgerDriver = "ethereum" }, true},
		{"stellar without rpc", func(c *Config) {
			c.LedgerDriver = LedgerStellar
			c.Stellar.RPCServerURL = ""
		}, true},
		{"bad port", func(c *Config) { c.APIPort = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckSync(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		missing string
	}{
		{"complete local", func(c *Config) {}, ""},
		{"disabled", func(c *Config) { c.Sync.Enabled = false }, "SYNC_ENABLED"},
		{"no identity", func(c *Config) { c.Sync.IdentityID = 0 }, "SYNC_IDENTITY_ID"},
		{"no base pointer", func(c *Config) { c.Sync.BasePointer = "" }, "SYNC_BASE_POINTER"},
		{"no local caller", func(c *Config) { c.Sync.Caller = "" }, "SYNC_CALLER"},
		{"stellar without secret", func(c *Config) {
			c.LedgerDriver = LedgerStellar
			c.Stellar.ContractID = "CCONTRACT"
		}, "SIGNER_SECRET"},
		{"stellar without contract", func(c *Config) {
			c.LedgerDriver = LedgerStellar
			c.Stellar.SignerSecret = "SSECRET"
		}, "REGISTRY_CONTRACT_ID"},
		{"stellar complete", func(c *Config) {
			c.LedgerDriver = LedgerStellar
			c.Stellar.SignerSecret = "SSECRET"
			c.Stellar.ContractID = "CCONTRACT"
			c.Sync.Caller = ""
		}, ""},
		{"zero interval", func(c *Config) { c.Sync.IntervalHours = 0 }, "SYNC_INTERVAL_HOURS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.CheckSync()
			if tt.missing == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrConfiguration)
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}
