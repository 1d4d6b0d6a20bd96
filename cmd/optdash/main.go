package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"options-dashboard/internal/cli"
	"options-dashboard/internal/config"
	"options-dashboard/internal/logging"
	"options-dashboard/internal/tracing"
)

func main() {
	cfg, err := config.Load(os.Getenv("OPTDASH_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithConfig(cfg.Logging)
	if err := tracing.Init(cfg.Tracing); err != nil {
		logger.Warn().Err(err).Msg("Tracing disabled")
	}

	err = cli.NewRootCmd(cfg, logger).Execute()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := tracing.Shutdown(ctx); serr != nil {
		logger.Warn().Err(serr).Msg("Tracing shutdown failed")
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
