package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentregistry/internal/api"
	"agentregistry/internal/config"
	"agentregistry/internal/ledger"
	"agentregistry/internal/ledger/retry"
	"agentregistry/internal/orchestrator"
	"agentregistry/internal/registry"
	"agentregistry/internal/scheduler"
	"agentregistry/internal/services"
	"agentregistry/internal/stats"
	"agentregistry/internal/storage"
	"agentregistry/internal/submitter"
)

func main() {
	fmt.Println("Starting Agent Identity Registry...")

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Configure logger
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Configuration loaded",
		"store", cfg.StoreDriver,
		"ledger", cfg.LedgerDriver,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize identity storage
	repository, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer repository.Close()

	// 4. Create orchestrator with services and the identity store on top of it
	orch := orchestrator.New([]services.Service{
		services.NewEventLogService(repository),
		services.NewMetricsService(),
	})
	store := registry.NewStore(repository, orch)
	slog.Info("Identity store ready", "services", len(orch.Services()))

	// 5. Pointer refresh scheduler
	sched := newScheduler(ctx, cfg, store)
	sched.Start(ctx)

	// 6. Stats cache for descriptors
	var statsCache api.Stats
	if cfg.Stats.URL != "" {
		statsCache = stats.NewCache(stats.NewHTTPSource(cfg.Stats.URL, nil), cfg.Stats.TTL())
	}

	// 7. Start API server
	server := api.NewServer(cfg.APIPort, api.Dependencies{
		Identities: store,
		Events:     repository,
		Sync:       sched,
		Stats:      statsCache,
		AgentName:  cfg.Stats.AgentName,
	})
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	// 8. Wait for interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	slog.Warn("Interrupt received, shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error stopping API server", "error", err)
	}
	cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		slog.Error("Error stopping scheduler", "error", err)
	}

	slog.Info("Registry stopped")
}

func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	if cfg.StoreDriver != config.StorePostgres {
		slog.Info("Using in-memory store")
		return storage.NewMemoryRepository(), nil
	}

	repository, err := storage.NewPostgresRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(ctx); err != nil {
		repository.Close()
		return nil, err
	}
	slog.Info("Database connected and migrated")
	return repository, nil
}

// newScheduler builds the refresh pipeline. Missing sync settings disable the
// scheduler without stopping the process. The reason is logged once, by Start.
func newScheduler(ctx context.Context, cfg *config.Config, store *registry.Store) *scheduler.Scheduler {
	if err := cfg.CheckSync(); err != nil {
		return scheduler.Disabled(err)
	}

	transport, caller, err := newLedger(cfg, store)
	if err != nil {
		return scheduler.Disabled(fmt.Errorf("%w: %w", config.ErrConfiguration, err))
	}

	if cfg.LedgerDriver == config.LedgerLocal {
		if err := bootstrapIdentity(ctx, store, cfg.Sync); err != nil {
			return scheduler.Disabled(fmt.Errorf("%w: %w", config.ErrConfiguration, err))
		}
	}

	refresher := submitter.New(transport, submitter.Config{
		IdentityID:      cfg.Sync.IdentityID,
		BasePointer:     cfg.Sync.BasePointer,
		Caller:          caller,
		MaxFee:          cfg.Sync.MaxFee,
		MaxInstructions: cfg.Sync.MaxInstructions,
	})

	return scheduler.New(refresher, scheduler.Config{
		Interval: cfg.Sync.Interval(),
		Warmup:   cfg.Sync.Warmup(),
	})
}

func newLedger(cfg *config.Config, store *registry.Store) (ledger.Ledger, string, error) {
	if cfg.LedgerDriver != config.LedgerStellar {
		return ledger.NewLocal(store, cfg.LocalFee), cfg.Sync.Caller, nil
	}

	transport, err := ledger.NewStellar(ledger.StellarConfig{
		RPCServerURL:      cfg.Stellar.RPCServerURL,
		NetworkPassphrase: cfg.Stellar.NetworkPassphrase,
		ContractID:        cfg.Stellar.ContractID,
		SignerSecret:      cfg.Stellar.SignerSecret,
		Function:          cfg.Stellar.Function,
		ConfirmAttempts:   cfg.Stellar.ConfirmAttempts,
		PollInterval:      cfg.Stellar.PollInterval,
	}, retry.NewStrategy(cfg.Retry))
	if err != nil {
		return nil, "", err
	}

	caller := cfg.Sync.Caller
	if caller == "" {
		caller = transport.Address()
	} else if !ledger.ValidAccountID(caller) {
		return nil, "", fmt.Errorf("SYNC_CALLER %q is not a Stellar account", caller)
	}

	slog.Info("Stellar transport ready",
		"rpc_server", cfg.Stellar.RPCServerURL,
		"contract", cfg.Stellar.ContractID,
		"signer", transport.Address(),
	)
	return transport, caller, nil
}

// bootstrapIdentity creates the target identity in a fresh local store so the
// scheduler has a record to refresh
func bootstrapIdentity(ctx context.Context, store *registry.Store, sync config.SyncConfig) error {
	_, err := store.Get(ctx, sync.IdentityID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, registry.ErrNotFound) {
		return err
	}

	next, err := store.NextID(ctx)
	if err != nil {
		return err
	}
	if next != sync.IdentityID {
		return fmt.Errorf("identity %d does not exist and the next id is %d", sync.IdentityID, next)
	}

	id, err := store.Create(ctx, sync.Caller, sync.BasePointer)
	if err != nil {
		return err
	}
	slog.Info("Bootstrapped sync identity", "identity_id", id, "owner", sync.Caller)
	return nil
}
