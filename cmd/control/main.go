package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/openfroyo/control/cmd/control/commands"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	// Cancel the run on interrupt so the session is closed and the journal
	// records the outcome.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := commands.Execute(ctx, os.Args[1:], Version, Commit, BuildDate)
	stop()
	os.Exit(code)
}
