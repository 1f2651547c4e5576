package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"CPITracker/internal/app"
	"CPITracker/internal/config"
	"CPITracker/internal/logging"
)

func main() {
	cliApp := &cli.App{
		Name:  "analysis",
		Usage: "compare the earliest and latest recorded baskets and print the price index",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{"CPI_TRACKER_CONFIG"}},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(app.ExitConfiguration)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.LoadFrom(c.String("config"))
	if err != nil {
		return cli.Exit(err, app.ExitConfiguration)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(c.Context, cfg, logger)
	if err != nil {
		logger.Error("open store", "error", err)
		return cli.Exit(err, app.ExitCode(err))
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	if err := application.Analyze(c.Context, c.App.Writer); err != nil {
		code := app.ExitCode(err)
		if code != app.ExitNoIndex {
			logger.Error("analysis failed", "error", err)
		}
		return cli.Exit("", code)
	}
	return nil
}
