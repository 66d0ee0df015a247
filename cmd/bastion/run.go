package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"sentra-hq/bastion/pkg/config"
	"sentra-hq/bastion/pkg/events"
	"sentra-hq/bastion/pkg/geo"
	"sentra-hq/bastion/pkg/limits/ratelimit"
	"sentra-hq/bastion/pkg/server"
	"sentra-hq/bastion/pkg/telemetry/logging"
	"sentra-hq/bastion/pkg/telemetry/metrics"
	"sentra-hq/bastion/pkg/waf"
	"sentra-hq/bastion/pkg/waf/catalog"
	"sentra-hq/bastion/pkg/waf/engine"
	"sentra-hq/bastion/pkg/waf/engine/source"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	policyPath    string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Bastion admin server",
	Long: `Start the rule evaluation engine with its admin server.

The engine loads the configured policy and managed rule catalogs, watches
the policy file for changes, and serves metrics, health and policy
endpoints on the configured address.

Examples:
  # Start with default config
  bastion run

  # Start with custom config
  bastion run --config /etc/bastion/config.yaml

  # Override listen address
  bastion run --listen 0.0.0.0:9090

  # Validate config without starting the server
  bastion run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVarP(&runFlags.policyPath, "policy", "p", "", "override policy file path")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.policyPath != "" {
		cfg.Policy.Path = runFlags.policyPath
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.SetDefault(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		if cfg.Policy.Path != "" {
			if _, err := waf.LoadPolicy(cfg.Policy.Path); err != nil {
				return fmt.Errorf("policy invalid: %w", err)
			}
		}
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Bastion v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	// Metrics
	metricsEnabled := cfg.Telemetry.Metrics.Enabled == nil || *cfg.Telemetry.Metrics.Enabled
	collector, registry := metrics.NewCollector(&metrics.Config{
		Enabled:   metricsEnabled,
		Namespace: cfg.Telemetry.Metrics.Namespace,
		Subsystem: cfg.Telemetry.Metrics.Subsystem,
	}, nil)

	// Managed rule catalog
	var cat *catalog.Catalog
	if len(cfg.Catalog.Paths) > 0 {
		cat, err = catalog.Load(cfg.Catalog.Paths...)
		if err != nil {
			return fmt.Errorf("failed to load rule catalog: %w", err)
		}
		fmt.Printf("✓ Rule catalog loaded (%d rule sets)\n", len(cat.RuleSets()))
	} else {
		cat = catalog.New()
		slog.Warn("no managed rule catalogs configured")
	}

	// GeoIP resolver (optional)
	var resolver *geo.Resolver
	if cfg.Geo.DatabasePath != "" {
		resolver, err = geo.Open(cfg.Geo.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open geo database: %w", err)
		}
		defer resolver.Close()
		fmt.Println("✓ GeoIP database loaded")
	}

	// Rate limit store and limiter
	var store ratelimit.Store
	switch cfg.Limits.Store {
	case "sqlite":
		store, err = ratelimit.NewSQLiteStoreWithConfig(ratelimit.SQLiteStoreConfig{
			Path:            cfg.Limits.SQLitePath,
			CleanupInterval: cfg.Limits.SweepInterval,
			IdleRetention:   cfg.Limits.IdleRetention,
		})
		if err != nil {
			return fmt.Errorf("failed to open rate limit store: %w", err)
		}
		fmt.Println("✓ Rate limit store initialized")
	default:
		store = ratelimit.NewMemoryStoreWithConfig(ratelimit.MemoryStoreConfig{
			SweepInterval: cfg.Limits.SweepInterval,
			IdleRetention: cfg.Limits.IdleRetention,
		})
	}
	defer store.Close()

	limiter, err := ratelimit.NewLimiter(store, ratelimit.FailureMode(cfg.Limits.FailureMode), logger)
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}

	// Event sink and emitter
	var sink events.Sink
	var scheduler *events.Scheduler
	switch cfg.Events.Sink {
	case "sqlite":
		sqliteSink, err := events.NewSQLiteSink(cfg.Events.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open event store: %w", err)
		}
		defer sqliteSink.Close()

		pruner := events.NewPruner(sqliteSink, cfg.Events.Retention.MaxAge, logger)
		scheduler = events.NewScheduler(pruner, cfg.Events.Retention.PruneSchedule)
		if err := scheduler.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start retention scheduler: %w", err)
		}
		defer scheduler.Stop()

		sink = sqliteSink
		fmt.Println("✓ Event store initialized")
	default:
		sink = events.NewLogSink(logger)
	}

	emitter := events.NewEmitter(sink, &events.Config{BufferSize: cfg.Events.BufferSize}, logger)
	defer emitter.Close()

	// Policy source and engine
	var policySource engine.PolicySource
	if cfg.Policy.Path != "" {
		if cfg.Policy.Watch == nil || *cfg.Policy.Watch {
			policySource = source.NewFileSource(cfg.Policy.Path, logger)
		} else {
			policySource = source.NewStaticFileSource(cfg.Policy.Path)
		}
	}

	eng, err := engine.New(&engine.Config{
		FailureAction:       waf.Action(cfg.Policy.FailureAction),
		EmitExcludedMatches: cfg.Policy.EmitExcludedMatches,
	}, policySource, engine.Options{
		Catalog:  cat,
		Limiter:  limiter,
		Emitter:  emitter,
		Metrics:  collector,
		Resolver: resolver,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close()

	if policy := eng.ActivePolicy(); policy != nil {
		fmt.Printf("✓ Policy loaded (version %s, mode %s)\n", policy.Version, policy.Settings.Mode)
	} else {
		slog.Warn("no policy configured, engine starts empty")
	}

	var metricsHandler = metrics.Handler(registry)
	if !metricsEnabled {
		metricsHandler = nil
	}
	srv := server.NewServer(&cfg.Server, eng, metricsHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Admin server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/healthz\n", cfg.Server.ListenAddress)
	if metricsEnabled {
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.Server.ListenAddress)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
			return err
		}

		fmt.Println("✓ Server stopped")
		return nil
	}
}
