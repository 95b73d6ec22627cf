package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ziembor/gomailtesttool/internal/common/logger"
	"github.com/ziembor/gomailtesttool/internal/common/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := setupSignalHandling()
	defer cancel()

	config := parseAndConfigureFlags()

	if config.ShowVersion {
		fmt.Printf("POP3 Connectivity Testing Tool - Version %s\n", version.Get())
		fmt.Println("Repository: https://github.com/ziembor/gomailtesttool")
		return nil
	}

	if err := validateConfiguration(config); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	slogLogger := logger.SetupLogger(config.VerboseMode, config.LogLevel)
	logger.LogInfo(slogLogger, "POP3 Connectivity Testing Tool started", "action", config.Action, "host", config.Host, "port", config.Port)

	runLogger, err := newRunLogger(config)
	if err != nil {
		return fmt.Errorf("failed to initialize run logger: %w", err)
	}
	defer runLogger.Close()

	if err := executeAction(ctx, config, runLogger, slogLogger); err != nil {
		logger.LogError(slogLogger, "Action failed", "error", err)
		return err
	}

	logger.LogInfo(slogLogger, "Action completed successfully")
	return nil
}

// newRunLogger selects CSV or JSON Lines output for the per-row run
// log based on -logformat.
func newRunLogger(config *Config) (logger.RunLogger, error) {
	if config.LogFormat == "json" {
		return logger.NewJSONLogger("pop3tool", config.Action)
	}
	return logger.NewCSVLogger("pop3tool", config.Action)
}

// setupSignalHandling sets up graceful shutdown on SIGINT/SIGTERM.
func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\n\nReceived interrupt signal. Shutting down gracefully...")
		cancel()
	}()

	return ctx, cancel
}
