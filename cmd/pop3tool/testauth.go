package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ziembor/gomailtesttool/internal/common/logger"
	"github.com/ziembor/gomailtesttool/internal/common/ratelimit"
	"github.com/ziembor/gomailtesttool/internal/common/security"
)

// testAuth connects and runs the configured authentication flow,
// without fetching any mail.
func testAuth(ctx context.Context, config *Config, runLogger logger.RunLogger, slogLogger *slog.Logger) error {
	fmt.Printf("Testing POP3 authentication to %s:%d...\n", config.Host, config.Port)

	columns := []string{"Action", "Status", "Server", "Port", "Username", "Auth_Method", "Error"}
	if shouldWrite, _ := runLogger.ShouldWriteHeader(); shouldWrite {
		_ = runLogger.WriteHeader(columns)
	}

	maskedUser := security.MaskUsername(config.Username)
	client := newSession(nil, slogLogger, nil)
	limiter := ratelimit.New(config.RateLimit)

	if err := connectClient(ctx, config, client, limiter); err != nil {
		logger.LogError(slogLogger, "Connection failed", "error", err, "host", config.Host, "port", config.Port)
		_ = runLogger.WriteRow([]string{
			config.Action, "FAILURE", config.Host, strconv.Itoa(config.Port), maskedUser, "", err.Error(),
		})
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	fmt.Printf("✓ Connected to %s:%d\n", config.Host, config.Port)

	method, err := authenticate(ctx, config, client)
	if err != nil {
		logger.LogError(slogLogger, "Authentication failed", "error", err, "username", maskedUser, "method", method)
		_ = runLogger.WriteRow([]string{
			config.Action, "FAILURE", config.Host, strconv.Itoa(config.Port), maskedUser, method, err.Error(),
		})
		return fmt.Errorf("authentication failed: %w", err)
	}

	logger.LogInfo(slogLogger, "Authentication successful", "username", maskedUser, "method", method)
	_ = runLogger.WriteRow([]string{
		config.Action, "SUCCESS", config.Host, strconv.Itoa(config.Port), maskedUser, method, "",
	})

	fmt.Printf("\n✓ Authentication successful (method: %s)\n", method)
	return nil
}
