package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/slyncl12/luckyvault/config"
	"github.com/slyncl12/luckyvault/internal/adapters/navi"
	"github.com/slyncl12/luckyvault/internal/adapters/notify"
	"github.com/slyncl12/luckyvault/internal/adapters/storage"
	"github.com/slyncl12/luckyvault/internal/adapters/sui"
	"github.com/slyncl12/luckyvault/internal/application/draws"
	"github.com/slyncl12/luckyvault/internal/application/fulfiller"
	"github.com/slyncl12/luckyvault/internal/application/keeper"
	"github.com/slyncl12/luckyvault/internal/application/reconciler"
	"github.com/slyncl12/luckyvault/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one tick of every component and exit")
	report := flag.Bool("report", false, "print a status report and exit (read-only)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

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

	privateKey := os.Getenv("KEEPER_PRIVATE_KEY")
	if privateKey == "" {
		slog.Error("KEEPER_PRIVATE_KEY is not set")
		os.Exit(1)
	}
	signer, err := sui.NewSigner(privateKey)
	if err != nil {
		slog.Error("failed to load keeper key", "err", err)
		os.Exit(1)
	}

	slog.Info("luckyvault keeper starting",
		"config", *configPath,
		"address", signer.Address(),
		"rebalance_interval", cfg.RebalanceInterval(),
		"fulfill_interval", cfg.FulfillInterval(),
		"once", *once,
	)

	client := sui.NewClient(cfg.Ledger.RPCURL)
	exec := sui.NewExecutor(client, signer, cfg.Ledger.GasBudget, cfg.SubmitTimeout())
	ledger := sui.NewLedger(client, exec, cfg.Ledger)
	lending := navi.New(client, exec, cfg.Lending, cfg.Ledger.CoinType)

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *report {
		if err := printReport(ctx, ledger, lending, store, cfg); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	var alerts ports.Alerter
	if token := cfg.Alerts.TelegramToken(); token != "" && cfg.Alerts.TelegramChatID != "" {
		alerts = notify.NewTelegram(token, cfg.Alerts.TelegramChatID)
	} else {
		slog.Warn("telegram not configured, alerts go to the log only")
		alerts = notify.NewLog()
	}

	rec := reconciler.New(ledger, lending, alerts, reconciler.Config{Band: cfg.Band()})
	ful := fulfiller.New(ledger, lending, store, fulfiller.Config{
		Lookback:      cfg.EventLookback(),
		CursorOverlap: cfg.CursorOverlap(),
	})
	sched, err := draws.New(ctx, ledger, lending, store, alerts, draws.Config{
		Shares:        cfg.YieldShares(),
		DustThreshold: cfg.DustThreshold(),
	})
	if err != nil {
		slog.Error("failed to build draw scheduler", "err", err)
		os.Exit(1)
	}

	k := keeper.New(sched,
		&keeper.Component{
			Name:     "reconciler",
			Interval: cfg.RebalanceInterval(),
			Tick: func(ctx context.Context) error {
				_, err := rec.RunOnce(ctx)
				return err
			},
		},
		&keeper.Component{
			Name:     "fulfiller",
			Interval: cfg.FulfillInterval(),
			Tick: func(ctx context.Context) error {
				_, err := ful.RunOnce(ctx)
				return err
			},
		},
	)

	if *once {
		k.RunOnce(ctx)
		return
	}

	if err := k.Run(ctx); err != nil {
		slog.Error("keeper exited with error", "err", err)
		os.Exit(1)
	}
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
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
