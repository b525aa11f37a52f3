package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fortuna/gridiron/internal/config"
	"github.com/fortuna/gridiron/internal/features"
	"github.com/fortuna/gridiron/internal/logging"
	"github.com/fortuna/gridiron/internal/runner"
	"github.com/fortuna/gridiron/internal/store"
	"github.com/fortuna/gridiron/internal/store/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	appName    = "gridiron-features"
	appVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	var (
		dsn       = flag.String("dsn", cfg.DatabaseURL, "Feature store DSN (postgres URL or sqlite3://path)")
		stats     = flag.String("stats", strings.Join(cfg.Stats, ","), "Comma separated stats to aggregate (default: all)")
		windows   = flag.String("windows", joinInts(cfg.Windows), "Comma separated rolling window sizes")
		exportDir = flag.String("export-dir", cfg.ExportDir, "Directory for parquet exports (empty: no export)")
		dryRun    = flag.Bool("dry-run", false, "Build every table without writing to the database")
		season    = flag.Int("season", 0, "Target season for the train/test export")
		week      = flag.Int("week", 0, "Target week for the train/test export")
		logLevel  = flag.String("log-level", cfg.LogLevel, "Log level")
	)
	flag.Parse()

	log := logging.Init(*logLevel, cfg.LogFormat)
	log.Infof("=== %s v%s ===", appName, appVersion)

	spec, err := buildSpec(*stats, *windows, *exportDir, *dryRun, *season, *week)
	if err != nil {
		log.WithError(err).Fatal("invalid arguments")
	}

	db, err := store.NewDatabase(*dsn, log)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.NewRunner(repository.NewSourceRepository(db), repository.NewFeatureRepository(db), log)
	if _, err := r.Run(ctx, uuid.NewString(), spec, &consoleReporter{log: log}); err != nil {
		log.WithError(err).Error("feature build failed")
		db.Close()
		os.Exit(1)
	}
}

func buildSpec(stats, windows, exportDir string, dryRun bool, season, week int) (runner.RunSpec, error) {
	opts := features.DefaultOptions()
	if list := config.ParseList(stats); len(list) > 0 {
		opts.Stats = list
	}
	ws, err := config.ParseWindows(windows)
	if err != nil {
		return runner.RunSpec{}, err
	}
	if len(ws) > 0 {
		opts.Windows = ws
	}
	if err := opts.Validate(); err != nil {
		return runner.RunSpec{}, err
	}

	if (season > 0) != (week > 0) {
		return runner.RunSpec{}, fmt.Errorf("--season and --week must be given together")
	}
	if season > 0 && exportDir == "" {
		return runner.RunSpec{}, fmt.Errorf("--season/--week need --export-dir")
	}

	return runner.RunSpec{
		Options:      opts,
		DryRun:       dryRun,
		ExportDir:    exportDir,
		TargetSeason: season,
		TargetWeek:   week,
	}, nil
}

type consoleReporter struct {
	log logrus.FieldLogger
}

func (c *consoleReporter) OnRunStart(runID string, spec runner.RunSpec) {
	c.log.WithFields(logrus.Fields{
		"run_id":  runID,
		"stats":   len(spec.Options.Stats),
		"windows": spec.Options.Windows,
		"dry_run": spec.DryRun,
	}).Info("Starting feature build")
}

func (c *consoleReporter) OnStageComplete(stage string, rows, columns int, elapsed time.Duration) {
	c.log.Infof("✓ %-18s %7d rows %4d columns (%v)", stage, rows, columns, elapsed.Round(time.Millisecond))
}

func (c *consoleReporter) OnTableWritten(table string, rows int) {
	c.log.Infof("✓ wrote %s (%d rows)", table, rows)
}

func (c *consoleReporter) OnRunComplete(summary *runner.Summary) {
	c.log.Infof("Build complete: %d rows in, %d rows out, %d dropped, %d columns in %v",
		summary.RowsIn, summary.RowsOut, summary.RowsDropped, summary.Columns, summary.Duration().Round(time.Millisecond))
	for _, path := range summary.Exports {
		c.log.Infof("  exported %s", path)
	}
}

func (c *consoleReporter) OnRunError(_ string, err error) {
	c.log.WithError(err).Error("Build failed")
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}
