package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/futarchy/config"
	"github.com/alejandrodnm/futarchy/internal/adapters/notify"
	"github.com/alejandrodnm/futarchy/internal/adapters/storage"
)

const usage = `usage: futarchy [flags] <command> [args]

commands:
  trades                          poll pool swaps, classify, persist and print
  follow                          stream swaps over websocket as they happen
  history   [-hours N]            summarize stored trades
  analyze   <token> <amount>      check whether the wallet can sell <amount> of <token>
  swap      [-strategy s] [-auto-split] [-yes] <tokenIn> <tokenOut> <amount>
  split     <company|currency> <amount>
  merge     <company|currency> <amount>
  executions [-limit N]           list past swap attempts
`

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one trades cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full trades table + summary (default: compact 1-line)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	cmd, args := flag.Arg(0), flag.Args()[1:]
	slog.Info("futarchy starting",
		"config", *configPath,
		"command", cmd,
		"chain", cfg.Chain.Name,
		"market", cfg.Market.MarketID,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	notifier := notify.NewConsole(*table)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := &app{cfg: cfg, store: store, console: notifier, once: *once}

	switch cmd {
	case "trades":
		err = app.runTrades(ctx)
	case "follow":
		err = app.runFollow(ctx)
	case "history":
		err = app.runHistory(ctx, args)
	case "analyze":
		err = app.runAnalyze(ctx, args)
	case "swap":
		err = app.runSwap(ctx, args)
	case "split":
		err = app.runPosition(ctx, args, false)
	case "merge":
		err = app.runPosition(ctx, args, true)
	case "executions":
		err = app.runExecutions(ctx, args)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("command failed", "command", cmd, "err", err)
		os.Exit(1)
	}
	slog.Info("futarchy stopped cleanly")
}

// app bundles what every command needs.
type app struct {
	cfg     *config.Config
	store   *storage.SQLiteStorage
	console *notify.Console
	once    bool
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
