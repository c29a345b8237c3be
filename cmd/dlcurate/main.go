// Command dlcurate runs the dataset curation workflow against the platform.
// Credentials and settings are read from DATALOOP_* environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	dataloop "github.com/dataloop-tools/dataloop-go"
	"github.com/dataloop-tools/dataloop-go/config"
	"github.com/dataloop-tools/dataloop-go/logger"
	"github.com/dataloop-tools/dataloop-go/trace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dlcurate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := cfg.IsValid(); err != nil {
		return err
	}

	log := logger.New(os.Stderr, cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tp, err := trace.NewProvider(ctx, cfg.Trace, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("trace shutdown failed", "error", err)
		}
	}()

	if err := dataloop.Run(ctx, cfg,
		dataloop.WithLogger(log),
		dataloop.WithTracerProvider(tp),
		dataloop.WithOutput(os.Stdout)); err != nil {
		return err
	}
	log.Info("curation finished", "project", cfg.Project, "dataset", cfg.Dataset)
	return nil
}
