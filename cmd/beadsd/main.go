// =============================================================================
// beadsd — the beads coordinator daemon
// =============================================================================
// Wires config -> storage -> stores -> scheduler and runs the background
// maintenance loops (stale reaper, retry sweep, message expiry, lease
// sweep) until interrupted. Agent worker processes connect through the
// same storage and register themselves; beadsd itself executes no tasks.
//
// Usage:
//
//	beadsd serve [--config config.yaml]   # run the coordinator
//	beadsd migrate [--config config.yaml] # apply schema migrations and exit
//	beadsd version                        # print version info
//
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/beadswarm/beads/bus"
	"github.com/beadswarm/beads/config"
	"github.com/beadswarm/beads/internal/metrics"
	"github.com/beadswarm/beads/internal/migration"
	"github.com/beadswarm/beads/internal/telemetry"
	"github.com/beadswarm/beads/lease"
	"github.com/beadswarm/beads/registry"
	"github.com/beadswarm/beads/scheduler"
	"github.com/beadswarm/beads/storage"
	"github.com/beadswarm/beads/task"
)

// Build-time injected.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		fmt.Printf("beadsd %s (%s)\n", Version, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`beadsd — multi-agent task orchestration coordinator

Commands:
  serve     run the coordinator loops
  migrate   apply schema migrations and exit
  version   print version info`)
}

func loadConfig(args []string) *config.Config {
	fs := flag.NewFlagSet("beadsd", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	_ = fs.Parse(args)

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func runMigrate(args []string) {
	cfg := loadConfig(args)

	m, err := migration.NewMigratorFromStorageConfig(cfg.Storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize migrator: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	ctx := context.Background()
	if err := m.Up(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	info, err := m.Info(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read migration state: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("schema at version %d (%d/%d applied)\n",
		info.CurrentVersion, info.AppliedMigrations, info.TotalMigrations)
}

func runServe(args []string) {
	cfg := loadConfig(args)

	logger, err := config.BuildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	engine, err := storage.Open(cfg.Storage, nil, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer engine.Close()

	tasks := task.NewGormStore(engine, logger)
	leases := lease.NewSQLManager(engine, logger)
	msgs := bus.NewGormBus(engine, logger)
	reg := registry.NewGormRegistry(engine, logger)
	reaper := registry.NewReaper(reg, leases, tasks, logger)
	collector := metrics.NewCollector("beads", logger)

	sched := scheduler.New(scheduler.Options{
		Tasks:     tasks,
		Leases:    leases,
		Bus:       msgs,
		Registry:  reg,
		Reaper:    reaper,
		Scheduler: cfg.Scheduler,
		Lease:     cfg.Lease,
		BusCfg:    cfg.Bus,
		Logger:    logger,
		Metrics:   collector,
	})

	logger.Info("beadsd started",
		zap.String("version", Version),
		zap.String("driver", cfg.Storage.Driver),
		zap.Duration("heartbeat_interval", cfg.Scheduler.HeartbeatInterval))

	if err := sched.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal("scheduler exited", zap.Error(err))
	}
	logger.Info("beadsd stopped")
}
