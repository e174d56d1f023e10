package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/axescan/axescan/internal/app"
	"github.com/axescan/axescan/internal/logging"
)

func main() {
	// Load environment variables from .env files if present. This helps local dev.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	configPath := flag.String("config", os.Getenv("AXESCAN_CONFIG"), "path to a YAML config file")
	flag.Parse()

	logger := logging.NewStdoutLogger("axescan")

	cfg, err := app.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "axescan: %v\n", err)
		os.Exit(1)
	}
}
