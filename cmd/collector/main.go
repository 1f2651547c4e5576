package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"CPITracker/internal/app"
	"CPITracker/internal/config"
	"CPITracker/internal/logging"
)

func main() {
	cliApp := &cli.App{
		Name:  "collector",
		Usage: "record today's price for every tracked product and export recent prices",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{"CPI_TRACKER_CONFIG"}},
			&cli.StringFlag{Name: "products", Aliases: []string{"p"}, Usage: "product list (JSON or YAML)"},
			&cli.StringFlag{Name: "export", Usage: "CSV export destination"},
			&cli.DurationFlag{Name: "pause", Usage: "delay between page requests"},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(app.ExitConfiguration)
	}
}

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFrom(c.String("config"))
	if err != nil {
		return cli.Exit(err, app.ExitConfiguration)
	}
	if v := c.String("export"); v != "" {
		cfg.Export.Path = v
	}
	if c.IsSet("pause") {
		cfg.Collector.Pause = c.Duration("pause")
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", "error", err)
		return cli.Exit(err, app.ExitCode(err))
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	if err := application.Collect(ctx, c.String("products"), c.App.Writer); err != nil {
		logger.Error("collection failed", "error", err)
		return cli.Exit(err, app.ExitCode(err))
	}
	return nil
}
