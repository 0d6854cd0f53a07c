package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cross_arb/internal/app"
	"cross_arb/internal/infra"
	"cross_arb/internal/infra/storage"

	"github.com/urfave/cli/v2"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	cliApp := &cli.App{
		Name:  "cross_arb",
		Usage: "cross-market arbitrage between two order books",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/config.yaml",
				Usage:   "path to the YAML configuration",
				EnvVars: []string{"ARB_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "start the arbitrage loop",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "pprof",
						Usage: "pprof listen address, e.g. localhost:6060",
					},
				},
				Action: run,
			},
			{
				Name:   "validate",
				Usage:  "load and validate the configuration",
				Action: validate,
			},
			{
				Name:  "journal",
				Usage: "show recent trades and unsettled orders from the journal",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "number of trades"},
					&cli.StringFlag{Name: "order", Usage: "show a single order by id"},
				},
				Action: showJournal,
			},
		},
		DefaultCommand: "run",
	}

	if err := cliApp.Run(os.Args); err != nil {
		slog.Error("❌ Exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if addr := c.String("pprof"); addr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", addr))
			if err := http.ListenAndServe(addr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	bootstrap := app.NewBootstrap(c.String("config"))
	if err := bootstrap.Initialize(); err != nil {
		return fmt.Errorf("bootstrapping failed: %w", err)
	}

	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Start(ctx); err != nil {
		bootstrap.Shutdown()
		return err
	}
	bootstrap.Logger.InfoContext(ctx, "✨ Arbitrage loop running. Press Ctrl+C to exit.")

	bootstrap.Run(ctx)

	bootstrap.Logger.Info("👋 Shutting down gracefully...")
	bootstrap.Shutdown()
	return nil
}

func validate(c *cli.Context) error {
	cfg, err := infra.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	fmt.Printf("ok: %d markets, %d pairs\n", len(cfg.Markets), len(cfg.Pairs))
	return nil
}

func showJournal(c *cli.Context) error {
	cfg, err := infra.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if !cfg.Storage.Enabled {
		return fmt.Errorf("storage is disabled in %s", c.String("config"))
	}
	j, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer j.Close()
	return app.PrintJournal(c.Context, os.Stdout, j, c.Int("limit"), c.String("order"))
}
