package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"moviemigrate/internal/app"
	"moviemigrate/internal/logging"
)

// main is the entry point for the moviemigrate application.
func main() {
	// SIGINT/SIGTERM stop every entity at its next page boundary.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := app.NewAppRunner()
	err := runner.RunContext(ctx, os.Args[1:])
	if err == nil {
		return
	}

	if errors.Is(err, app.ErrUsage) || errors.Is(err, app.ErrConfigNotFound) {
		fmt.Fprintln(os.Stderr, "")
		runner.Usage(os.Stderr)
	}

	// Make sure the failure is visible even with -loglevel=none.
	if logging.GetLevel() < logging.Error {
		logging.SetLevel(logging.Error)
	}
	logging.Logf(logging.Error, "Migration failed: %v", err)
	stop()
	os.Exit(1)
}
