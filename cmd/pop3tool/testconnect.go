package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ziembor/gomailtesttool/internal/common/logger"
	"github.com/ziembor/gomailtesttool/internal/common/ratelimit"
)

// testConnect dials the server, runs the greeting/CAPA handshake (and a
// STLS upgrade when -starttls is set), and reports what it found.
func testConnect(ctx context.Context, config *Config, runLogger logger.RunLogger, slogLogger *slog.Logger) error {
	fmt.Printf("Testing POP3 connection to %s:%d...\n", config.Host, config.Port)

	columns := []string{"Action", "Status", "Server", "Port", "Connected", "Capabilities", "TLS", "Error"}
	if shouldWrite, _ := runLogger.ShouldWriteHeader(); shouldWrite {
		_ = runLogger.WriteHeader(columns)
	}

	client := newSession(nil, slogLogger, nil)
	limiter := ratelimit.New(config.RateLimit)

	if err := connectClient(ctx, config, client, limiter); err != nil {
		logger.LogError(slogLogger, "Connection failed", "error", err, "host", config.Host, "port", config.Port)
		_ = runLogger.WriteRow([]string{
			config.Action, "FAILURE", config.Host, strconv.Itoa(config.Port),
			"false", "", "", err.Error(),
		})
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	fmt.Printf("✓ Connected to %s:%d\n", config.Host, config.Port)

	tlsState := "plaintext"
	if client.TLSActive() {
		tlsState = "TLS " + config.TLSVersion
	}
	fmt.Printf("  TLS: %s\n", tlsState)

	caps := client.Capabilities()
	capsStr := caps.String()
	fmt.Printf("  Capabilities: %s\n", capsStr)
	if impl := caps.Implementation; impl != "" {
		fmt.Printf("    Implementation: %s\n", impl)
	}
	if len(caps.AuthMechanisms) > 0 {
		mechs := make([]string, 0, len(caps.AuthMechanisms))
		for m := range caps.AuthMechanisms {
			mechs = append(mechs, m)
		}
		fmt.Printf("    SASL mechanisms: %v\n", mechs)
	}

	logger.LogInfo(slogLogger, "Connection test successful",
		"host", config.Host, "port", config.Port, "tls", tlsState, "capabilities", capsStr)

	_ = runLogger.WriteRow([]string{
		config.Action, "SUCCESS", config.Host, strconv.Itoa(config.Port),
		"true", capsStr, tlsState, "",
	})

	fmt.Println("\n✓ Connection test successful")
	return nil
}
