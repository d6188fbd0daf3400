package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/BTreeMap/FormCadence/internal/api"
	"github.com/BTreeMap/FormCadence/internal/config"
	"github.com/BTreeMap/FormCadence/internal/export"
	"github.com/BTreeMap/FormCadence/internal/lockfile"
	"github.com/BTreeMap/FormCadence/internal/metrics"
	"github.com/BTreeMap/FormCadence/internal/scheduler"
	"github.com/BTreeMap/FormCadence/internal/store"
	"github.com/BTreeMap/FormCadence/internal/study"
	"github.com/BTreeMap/FormCadence/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for FormCadence state data
	DefaultStateDir = "/var/lib/formcadence"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "formcadence.db"
	// DefaultExportCron runs exports once a day when a sink is configured
	DefaultExportCron = "@daily"
	// InMemoryDSN selects the ephemeral in-memory store
	InMemoryDSN = "memory"
)

func main() {
	initializeLogger()

	cfg := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], cfg)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping FormCadence")
	if err := run(ctx, flags); err != nil {
		slog.Error("FormCadence failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("FormCadence exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir           string
	DatabaseURL        string
	APIAddr            string
	StudyConfig        string
	MaxAnchorCycleDays int
	ExportCron         string
	ExportDir          string
	S3                 export.S3Config
	MetricsEnabled     bool
}

// Flags holds resolved command line values
type Flags struct {
	StateDir           string
	DBDSN              string
	APIAddr            string
	StudyConfig        string
	MaxAnchorCycleDays int
	ExportCron         string
	ExportDir          string
	S3                 export.S3Config
	MetricsEnabled     bool
}

// initializeLogger installs a text handler at LOG_LEVEL (default info).
func initializeLogger() {
	level := slog.LevelInfo
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			level = slog.LevelInfo
		}
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	cfg := Config{
		StateDir:           util.GetenvDefault("FORMCADENCE_STATE_DIR", DefaultStateDir),
		DatabaseURL:        util.GetenvDefault("DATABASE_URL", ""),
		APIAddr:            util.GetenvDefault("API_ADDR", api.DefaultAddr),
		StudyConfig:        util.GetenvDefault("STUDY_CONFIG", ""),
		MaxAnchorCycleDays: util.ParseIntEnv("MAX_ANCHOR_CYCLE_DAYS", 0),
		ExportCron:         util.GetenvDefault("EXPORT_CRON", DefaultExportCron),
		ExportDir:          util.GetenvDefault("EXPORT_DIR", ""),
		S3: export.S3Config{
			Bucket:    util.GetenvDefault("EXPORT_S3_BUCKET", ""),
			Region:    util.GetenvDefault("EXPORT_S3_REGION", ""),
			Endpoint:  util.GetenvDefault("EXPORT_S3_ENDPOINT", ""),
			Prefix:    util.GetenvDefault("EXPORT_S3_PREFIX", ""),
			PathStyle: util.ParseBoolEnv("EXPORT_S3_PATH_STYLE", false),
		},
		MetricsEnabled: util.ParseBoolEnv("METRICS_ENABLED", true),
	}

	slog.Debug("environment variables loaded",
		"FORMCADENCE_STATE_DIR", cfg.StateDir,
		"DATABASE_URL_SET", cfg.DatabaseURL != "",
		"API_ADDR", cfg.APIAddr,
		"STUDY_CONFIG", cfg.StudyConfig,
		"MAX_ANCHOR_CYCLE_DAYS", cfg.MaxAnchorCycleDays,
		"EXPORT_CRON", cfg.ExportCron,
		"EXPORT_DIR", cfg.ExportDir,
		"EXPORT_S3_BUCKET", cfg.S3.Bucket,
		"METRICS_ENABLED", cfg.MetricsEnabled)
	return cfg
}

// parseCommandLineFlags parses args with environment values as defaults. The
// SQLite DSN follows -state-dir unless a DSN is given explicitly.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, cfg Config) (Flags, error) {
	f := Flags{S3: cfg.S3}
	fs.StringVar(&f.StateDir, "state-dir", cfg.StateDir, "state directory for FormCadence data (overrides $FORMCADENCE_STATE_DIR)")
	fs.StringVar(&f.DBDSN, "db-dsn", cfg.DatabaseURL, "PostgreSQL URL, SQLite path or \"memory\" (overrides $DATABASE_URL)")
	fs.StringVar(&f.APIAddr, "api-addr", cfg.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&f.StudyConfig, "study-config", cfg.StudyConfig, "YAML study definition; the clinical trial preset when empty (overrides $STUDY_CONFIG)")
	fs.IntVar(&f.MaxAnchorCycleDays, "max-anchor-cycle-days", cfg.MaxAnchorCycleDays, "anchor cycle ceiling; 0 keeps the study's value (overrides $MAX_ANCHOR_CYCLE_DAYS)")
	fs.StringVar(&f.ExportCron, "export-cron", cfg.ExportCron, "cron schedule for ledger exports (overrides $EXPORT_CRON)")
	fs.StringVar(&f.ExportDir, "export-dir", cfg.ExportDir, "directory sink for ledger exports (overrides $EXPORT_DIR)")
	fs.StringVar(&f.S3.Bucket, "export-s3-bucket", cfg.S3.Bucket, "S3 bucket for ledger exports (overrides $EXPORT_S3_BUCKET)")
	fs.BoolVar(&f.MetricsEnabled, "metrics", cfg.MetricsEnabled, "serve Prometheus metrics on /metrics (overrides $METRICS_ENABLED)")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if f.DBDSN == "" {
		f.DBDSN = filepath.Join(f.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", f.DBDSN)
	}
	slog.Debug("flags parsed",
		"stateDir", f.StateDir,
		"dbDSN_set", f.DBDSN != "",
		"apiAddr", f.APIAddr,
		"studyConfig", f.StudyConfig,
		"exportCron", f.ExportCron,
		"metrics", f.MetricsEnabled)
	return f, nil
}

// loadStudy reads the study definition, falling back to the preset.
func loadStudy(f Flags) (*config.StudyConfig, error) {
	var cfg *config.StudyConfig
	if f.StudyConfig == "" {
		slog.Info("No study definition given, using the clinical trial preset")
		cfg = config.ClinicalTrialPreset()
	} else {
		loaded, err := config.Load(f.StudyConfig)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if f.MaxAnchorCycleDays > 0 {
		cfg.MaxAnchorCycleDays = f.MaxAnchorCycleDays
	}
	return cfg, nil
}

// openStore opens the backend the DSN names.
func openStore(dsn string) (store.Store, error) {
	switch {
	case dsn == InMemoryDSN:
		slog.Warn("Using the in-memory store; ledgers are lost on exit")
		return store.NewInMemoryStore(), nil
	case store.DetectDSNType(dsn) == "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", dsn)
		return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	}
}

// usesStateDir reports whether the process writes into the state directory.
func usesStateDir(f Flags) bool {
	if f.DBDSN == InMemoryDSN || store.DetectDSNType(f.DBDSN) == "postgres" {
		return f.ExportDir != "" && strings.HasPrefix(filepath.Clean(f.ExportDir), filepath.Clean(f.StateDir))
	}
	return true
}

// buildSink picks the export destination: S3 when a bucket is set, else a
// directory, else none.
func buildSink(ctx context.Context, f Flags) (export.Sink, error) {
	switch {
	case f.S3.Bucket != "":
		return export.NewS3Sink(ctx, f.S3)
	case f.ExportDir != "":
		return export.NewFSSink(f.ExportDir)
	default:
		return nil, nil
	}
}

// run wires every component and serves until ctx is cancelled.
func run(ctx context.Context, f Flags) error {
	studyCfg, err := loadStudy(f)
	if err != nil {
		return fmt.Errorf("failed to load study definition: %w", err)
	}

	if usesStateDir(f) {
		lock, err := lockfile.Acquire(f.StateDir, studyCfg.ID)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := openStore(f.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	var svcOpts []study.Option
	var apiOpts []api.Option
	var exportOpts []export.Option
	if f.MetricsEnabled {
		m := metrics.New(metrics.WithPhases(studyCfg.PhaseNames()...))
		svcOpts = append(svcOpts, study.WithObserver(m))
		exportOpts = append(exportOpts, export.WithRecorder(m))
		apiOpts = append(apiOpts, api.WithMetricsHandler(m.Handler()))
	}
	apiOpts = append(apiOpts, api.WithAddr(f.APIAddr))

	svc, err := study.New(studyCfg, st, svcOpts...)
	if err != nil {
		return fmt.Errorf("failed to start study %s: %w", studyCfg.ID, err)
	}
	slog.Info("Study loaded", "studyID", studyCfg.ID, "durationDays", studyCfg.DurationDays,
		"anchorCycleDays", svc.Schedule().AnchorCycleDays)

	sink, err := buildSink(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to configure export sink: %w", err)
	}
	if sink != nil && f.ExportCron != "" {
		sched := scheduler.NewScheduler()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), scheduler.DefaultExportTimeout)
			defer cancel()
			if err := sched.Stop(stopCtx); errors.Is(err, context.DeadlineExceeded) {
				slog.Warn("Scheduler stopped before a running export finished", "error", err)
			}
		}()
		exporter := export.NewExporter(studyCfg.ID, st, sink, exportOpts...)
		id, err := sched.ScheduleExport(f.ExportCron, exporter)
		if err != nil {
			return fmt.Errorf("failed to schedule exports: %w", err)
		}
		slog.Info("Ledger exports scheduled", "sink", sink.Name(), "cron", f.ExportCron, "next", sched.Next(id))
	}

	return api.NewServer(svc, apiOpts...).Run(ctx)
}
