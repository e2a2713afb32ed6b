package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lance13c/roster/cmd"
)

var version = "dev"

func main() {
	// Ctrl+C cancels the run; deferred cleanup still closes Chrome
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.SetVersion(version)
	cmd.Execute(ctx)
}
