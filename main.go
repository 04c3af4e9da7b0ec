package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pthm-cable/gridfield/config"
	"github.com/pthm-cable/gridfield/sim"
	"github.com/pthm-cable/gridfield/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Int("stats-window", 0, "Ticks per stats record (0 = use config)")
	snapshotEvery := flag.Int("snapshot-interval", -1, "Ticks between cell dumps (-1 = use config, 0 = off)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for bookmark snapshot files")
	resume := flag.String("resume", "", "Snapshot file to resume from")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	workers := flag.Int("workers", -1, "Update workers (-1 = use config, 0 = GOMAXPROCS)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// CLI overrides
	if *statsWindow > 0 {
		cfg.Telemetry.StatsWindow = *statsWindow
	}
	if *snapshotEvery >= 0 {
		cfg.Telemetry.SnapshotInterval = *snapshotEvery
	}
	if *workers >= 0 {
		cfg.Workers.Count = *workers
	}

	s, err := sim.New(cfg, sim.Options{
		OutputDir:   *outputDir,
		SnapshotDir: *snapshotDir,
		LogStats:    *logStats,
	})
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}

	if *resume != "" {
		snap, err := telemetry.LoadSnapshot(*resume)
		if err == nil {
			err = s.Restore(snap)
		}
		if err != nil {
			slog.Error("failed to resume", "path", *resume, "error", err)
			s.Close()
			os.Exit(1)
		}
		slog.Info("resumed from snapshot", "path", *resume, "tick", s.Tick())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting simulation",
		"config", *configPath,
		"max_ticks", *maxTicks,
		"stats_window", cfg.Telemetry.StatsWindow,
		"output_dir", *outputDir,
	)

	runErr := s.Run(ctx, *maxTicks)
	s.LogSummary()
	if err := s.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
	if runErr != nil {
		slog.Error("simulation failed", "tick", s.Tick(), "error", runErr)
		os.Exit(1)
	}
}
