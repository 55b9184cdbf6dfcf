package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"latchain/config"
	"latchain/core"
	nativecommon "latchain/native/common"
	"latchain/native/rewards"
	"latchain/observability/logging"
	"latchain/observability/otel"
	"latchain/rpc"
	"latchain/services/indexer"
	"latchain/services/webhook"
	"latchain/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the configuration")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides config GenesisFile)")
	allowMigrateFlag := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if trimmed := strings.TrimSpace(*genesisFlag); trimmed != "" {
		cfg.GenesisFile = trimmed
	}

	logger := logging.Setup("latd", cfg.Logging.Env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.CompressFiles,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *allowMigrateFlag); err != nil {
		logger.Error("latd exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// loadEnvFile applies a dotenv file when present. Existing variables win.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, allowMigrate bool) error {
	shutdownTelemetry, err := otel.Init(ctx, otel.Config{
		ServiceName: "latd",
		Environment: cfg.Logging.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	programID, err := cfg.ProgramID()
	if err != nil {
		return err
	}
	clock, err := buildClock(cfg)
	if err != nil {
		return err
	}

	node, err := core.NewNode(db, core.Options{
		ProgramID:    programID,
		Network:      cfg.NetworkName,
		Clock:        clock,
		Pauses:       nativecommon.NewStaticPauses(cfg.PausedModules),
		Logger:       logger,
		AllowMigrate: allowMigrate,
	})
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	var history rpc.HistoryService
	var idx *indexer.Indexer
	if cfg.Indexer.Enabled {
		idx, err = indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := idx.Close(); err != nil {
				logger.Warn("indexer close failed", slog.Any("error", err))
			}
		}()
		node.AddSink(idx)
		history = idx
	}
	if len(cfg.Webhooks) > 0 {
		dispatcher := webhook.New(webhookSubscriptions(cfg.Webhooks), webhook.WithLogger(logger))
		node.AddSink(dispatcher)
		go dispatcher.Run(ctx)
	}

	if err := applyGenesis(ctx, node, cfg.GenesisFile, logger); err != nil {
		return err
	}
	if err := node.RefreshMetrics(); err != nil && !errors.Is(err, rewards.ErrNotInitialized) {
		logger.Warn("initial metrics refresh failed", slog.Any("error", err))
	}

	exportDir := ""
	if idx != nil {
		exportDir = cfg.Indexer.ExportDir
	}
	server := rpc.NewServer(node, history, rpc.Config{
		AuthToken:          os.Getenv(cfg.RPC.AuthTokenEnv),
		JWTSecret:          os.Getenv(cfg.RPC.JWTSecretEnv),
		JWTIssuer:          cfg.RPC.JWTIssuer,
		RateLimitPerMinute: cfg.RPC.RateLimitPerMinute,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		MaxBodyBytes:       cfg.RPC.MaxBodyBytes,
		ReadTimeout:        time.Duration(cfg.RPC.ReadTimeoutSecs) * time.Second,
		WriteTimeout:       time.Duration(cfg.RPC.WriteTimeoutSecs) * time.Second,
		ExportDir:          exportDir,
		Logger:             logger,
	})

	scheduler, err := newScheduler(ctx, node, idx, cfg.Indexer, logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ListenAddress)
	}()
	logger.Info("latd started",
		slog.String("listen", cfg.ListenAddress),
		slog.String("network", cfg.NetworkName),
		slog.String("programId", programID.String()),
		slog.Bool("indexer", idx != nil),
		slog.Int("webhooks", len(cfg.Webhooks)))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc shutdown: %w", err)
	}
	return <-errCh
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Database {
	case config.DatabaseMemory:
		return storage.NewMemDB(), nil
	case config.DatabaseLevelDB, "":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
		return storage.NewLevelDB(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unsupported database %q", cfg.Database)
	}
}

func buildClock(cfg *config.Config) (rewards.Clock, error) {
	fixed, ok, err := cfg.FixedClock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return rewards.SystemClock{}, nil
	}
	return rewards.ClockFunc(func() int64 { return fixed }), nil
}

// applyGenesis bootstraps an empty state from path. A state that already holds
// a program is left untouched.
func applyGenesis(ctx context.Context, node *core.Node, path string, logger *slog.Logger) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	gen, err := config.LoadGenesis(path)
	if err != nil {
		return err
	}
	receipt, err := node.Bootstrap(ctx, gen)
	if errors.Is(err, core.ErrGenesisApplied) {
		logger.Info("genesis already applied", slog.String("genesis", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("genesis bootstrap complete",
		slog.String("genesis", path),
		slog.String("stateRoot", receipt.StateRoot))
	return nil
}

func webhookSubscriptions(hooks []config.WebhookConfig) []webhook.Subscription {
	subs := make([]webhook.Subscription, 0, len(hooks))
	for _, hook := range hooks {
		sub := webhook.Subscription{
			Name:       strings.TrimSpace(hook.Name),
			URL:        strings.TrimSpace(hook.URL),
			Operations: hook.Operations,
			RateLimit:  hook.RateLimit,
		}
		if hook.SecretEnv != "" {
			sub.Secret = os.Getenv(hook.SecretEnv)
		}
		subs = append(subs, sub)
	}
	return subs
}
