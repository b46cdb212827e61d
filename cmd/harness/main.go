package main

import (
	"context"
	"fmt"
	"os"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/log"
	"github.com/solquant/harness/signaler"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		interrupt := signaler.WaitForInterrupt()
		s := <-interrupt
		log.Warnf(log.Global, "captured %v, shutting down", s)
		cancel()
	}()

	err := newApp().RunContext(ctx, os.Args)
	cancel()
	if err != nil {
		log.Errorf(log.Global, "%v", err)
		fmt.Fprintln(os.Stderr, err)
	}
	if closeErr := log.CloseLogger(); closeErr != nil {
		fmt.Fprintln(os.Stderr, closeErr)
	}
	os.Exit(common.ExitCode(err))
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "harness"
	app.Usage = "backtest and live trade bar driven strategies"
	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enables debug logging",
		},
		&cli.StringFlag{
			Name:  "logfile",
			Usage: "also writes logs to this file",
		},
	}
	app.Before = setupLogger
	app.Commands = []*cli.Command{
		newHistoricalCommand(),
		newLiveCommand(),
	}
	return app
}

func setupLogger(c *cli.Context) error {
	lc := log.GenDefaultSettings()
	// stdout carries command output
	lc.Output = "stderr"
	if c.Bool("verbose") {
		lc.Level = "INFO|WARN|ERROR|DEBUG"
	}
	if f := c.String("logfile"); f != "" {
		lc.FileName = f
		lc.Output = "stderr|file"
	}
	if err := log.SetupGlobalLogger(&lc); err != nil {
		return fmt.Errorf("%w logger %w", common.ErrConfiguration, err)
	}
	return nil
}
