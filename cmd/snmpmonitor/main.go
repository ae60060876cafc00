// Command snmpmonitor is the SNMP monitor binary.
//
// It loads the YAML configuration (overridable from the environment and an
// optional .env file), opens the store and either runs the monitor until
// interrupted (SIGINT / SIGTERM) or performs one operation.
//
// Usage:
//
//	snmpmonitor [global flags] <command> [command flags]
//
// Commands:
//
//	run              poll, aggregate and evaluate alarms until interrupted
//	collect          poll one device once            (-device N)
//	discover         enumerate a device's interfaces (-device N)
//	test-connection  open a session and read the system group
//	backfill         aggregate a past range          (-tier hourly|daily -from -to)
//	cleanup          apply the retention policy once
//	seed             upsert devices from a YAML directory (-devices DIR)
//	migrate          create or update the schema
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vpbank/snmp_monitor/models"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/app"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/config"
	"github.com/vpbank/snmp_monitor/pkg/snmpmonitor/poller"
	"github.com/vpbank/snmp_monitor/storage/gormstore"
)

const usage = `usage: snmpmonitor [global flags] <command> [command flags]

commands: run, collect, discover, test-connection, backfill, cleanup, seed, migrate
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "snmpmonitor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ── Global flags ─────────────────────────────────────────────────────
	var (
		cfgPath    string
		envFile    string
		logLevel   string
		logFmt     string
		logFile    string
		logMaxSize int
		logBackups int
		logMaxAge  int
	)
	flag.StringVar(&cfgPath, "config", os.Getenv("SNMPMON_CONFIG"), "Path to the YAML configuration file")
	flag.StringVar(&envFile, "env.file", ".env", "Optional .env file loaded before the environment is read")
	flag.StringVar(&logLevel, "log.level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&logFmt, "log.fmt", "json", "Log format: json, text")
	flag.StringVar(&logFile, "log.file", "", "Write logs to this rotating file instead of stderr")
	flag.IntVar(&logMaxSize, "log.max.size", 100, "Max log file size in MB before rotation")
	flag.IntVar(&logBackups, "log.max.backups", 5, "Max rotated log files to keep (0=unlimited)")
	flag.IntVar(&logMaxAge, "log.max.age", 30, "Max age in days of rotated log files (0=unlimited)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("missing command")
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	// ── Environment ──────────────────────────────────────────────────────
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	// ── Logger ───────────────────────────────────────────────────────────
	var out io.Writer = os.Stderr
	if logFile != "" {
		lj := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    logMaxSize,
			MaxBackups: logBackups,
			MaxAge:     logMaxAge,
		}
		defer lj.Close()
		out = lj
	}
	logger, err := buildLogger(out, logLevel, logFmt)
	if err != nil {
		return err
	}

	// ── Config ───────────────────────────────────────────────────────────
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	switch cmd {
	case "migrate":
		return migrate(cfg, logger)
	case "run":
		return runMonitor(cfg, logger)
	case "collect":
		return collect(cfg, logger, args)
	case "discover":
		return discover(cfg, logger, args)
	case "test-connection":
		return testConnection(cfg, logger, args)
	case "backfill":
		return backfill(cfg, logger, args)
	case "cleanup":
		return cleanup(cfg, logger)
	case "seed":
		return seed(cfg, logger, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────────────────────────────────────

func migrate(cfg config.Config, logger *slog.Logger) error {
	db, err := gormstore.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.Debug)
	if err != nil {
		return err
	}
	store := gormstore.New(db)
	defer store.Close()
	if err := gormstore.Migrate(db); err != nil {
		return err
	}
	logger.Info("snmpmonitor: schema migrated", "driver", cfg.Database.Driver)
	return nil
}

func runMonitor(cfg config.Config, logger *slog.Logger) error {
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("snmpmonitor: running, press Ctrl-C to stop")
	return a.Run(ctx)
}

func collect(cfg config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	id := fs.Uint("device", 0, "Device ID")
	_ = fs.Parse(args)
	if *id == 0 {
		return errors.New("collect: -device is required")
	}
	return withApp(cfg, logger, func(ctx context.Context, a *app.App) error {
		res := a.Collect(ctx, uint(*id))
		printJSON(map[string]interface{}{
			"device_id":   res.DeviceID,
			"device":      res.DeviceName,
			"success":     res.Success,
			"samples":     res.SampleCount,
			"vendor":      res.Vendor,
			"duration_ms": res.Duration.Milliseconds(),
		})
		return res.Err
	})
}

func discover(cfg config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	id := fs.Uint("device", 0, "Device ID")
	_ = fs.Parse(args)
	if *id == 0 {
		return errors.New("discover: -device is required")
	}
	return withApp(cfg, logger, func(ctx context.Context, a *app.App) error {
		ifaces, err := a.Discover(ctx, uint(*id))
		if err != nil {
			return err
		}
		printJSON(ifaces)
		return nil
	})
}

func testConnection(cfg config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("test-connection", flag.ExitOnError)
	var t poller.Target
	var port uint
	fs.StringVar(&t.Address, "address", "", "Agent address")
	fs.UintVar(&port, "port", uint(cfg.SNMP.Port), "Agent UDP port")
	fs.StringVar(&t.Version, "version", cfg.SNMP.Version, "SNMP version: 1, 2c, 3")
	fs.StringVar(&t.Community, "community", cfg.SNMP.Community, "Community string (v1/v2c)")
	fs.StringVar(&t.Username, "username", "", "v3 security name")
	fs.StringVar(&t.AuthProtocol, "auth.protocol", "", "v3 auth protocol")
	fs.StringVar(&t.AuthKey, "auth.key", "", "v3 auth passphrase")
	fs.StringVar(&t.PrivProtocol, "priv.protocol", "", "v3 privacy protocol")
	fs.StringVar(&t.PrivKey, "priv.key", "", "v3 privacy passphrase")
	_ = fs.Parse(args)
	t.Port = uint16(port)
	if err := t.Validate(); err != nil {
		return err
	}
	return withApp(cfg, logger, func(ctx context.Context, a *app.App) error {
		info, err := a.TestConnection(ctx, t)
		if err != nil {
			return err
		}
		printJSON(info)
		return nil
	})
}

func backfill(cfg config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	tier := fs.String("tier", "hourly", "Tier to aggregate: hourly or daily")
	from := fs.String("from", "", "Range start, RFC 3339 or YYYY-MM-DD (UTC)")
	to := fs.String("to", "", "Range end, exclusive; default now")
	_ = fs.Parse(args)

	start, err := parseTime(*from)
	if err != nil {
		return fmt.Errorf("backfill: -from: %w", err)
	}
	end := time.Now().UTC()
	if *to != "" {
		if end, err = parseTime(*to); err != nil {
			return fmt.Errorf("backfill: -to: %w", err)
		}
	}
	return withApp(cfg, logger, func(ctx context.Context, a *app.App) error {
		rep, err := a.Backfill(ctx, models.Tier(*tier), start, end)
		printJSON(rep)
		return err
	})
}

func cleanup(cfg config.Config, logger *slog.Logger) error {
	return withApp(cfg, logger, func(ctx context.Context, a *app.App) error {
		rep, err := a.Cleanup(ctx)
		printJSON(rep)
		return err
	})
}

func seed(cfg config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	dir := fs.String("devices", "/etc/snmp_monitor/devices", "Directory of device YAML files")
	_ = fs.Parse(args)

	seeds, loadErr := config.LoadDevices(*dir, cfg.SNMP, logger)
	if loadErr != nil {
		logger.Warn("snmpmonitor: some device files were rejected", "error", loadErr.Error())
	}
	if len(seeds) == 0 {
		if loadErr != nil {
			return loadErr
		}
		return fmt.Errorf("seed: no devices found under %s", *dir)
	}
	return withApp(cfg, logger, func(ctx context.Context, a *app.App) error {
		n, err := a.Seed(ctx, seeds)
		logger.Info("snmpmonitor: seed complete", "devices", n)
		return errors.Join(loadErr, err)
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// withApp builds the app, runs fn under a signal-aware context and closes
// the app.
func withApp(cfg config.Config, logger *slog.Logger, fn func(context.Context, *app.App) error) error {
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a)
}

func buildLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}

	return slog.New(handler), nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("value is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
