package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ziembor/gomailtesttool/internal/common/logger"
	"github.com/ziembor/gomailtesttool/internal/common/ratelimit"
)

// fetchMail connects, authenticates, and retrieves every message up to
// -maxmessages via a single pipelined GetMessages call, optionally
// deleting each one afterward. A message is only deleted once its RETR
// and, if requested, its write to -outputdir have both succeeded; DELE
// marks are pipelined into a single flush and only take effect once
// QUIT is sent on Disconnect.
func fetchMail(ctx context.Context, config *Config, runLogger logger.RunLogger, slogLogger *slog.Logger) error {
	fmt.Printf("Fetching mail from %s:%d...\n", config.Host, config.Port)

	columns := []string{"Action", "Status", "Server", "Port", "Message_Number", "Message_Size", "Saved_To", "Error"}
	if shouldWrite, _ := runLogger.ShouldWriteHeader(); shouldWrite {
		_ = runLogger.WriteHeader(columns)
	}

	if config.OutputDir != "" {
		if err := os.MkdirAll(config.OutputDir, 0700); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	client := newSession(nil, slogLogger, nil)
	limiter := ratelimit.New(config.RateLimit)

	if err := connectClient(ctx, config, client, limiter); err != nil {
		logger.LogError(slogLogger, "Connection failed", "error", err, "host", config.Host, "port", config.Port)
		_ = runLogger.WriteRow([]string{config.Action, "FAILURE", config.Host, strconv.Itoa(config.Port), "", "", "", err.Error()})
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	fmt.Printf("✓ Connected to %s:%d\n", config.Host, config.Port)

	method, err := authenticate(ctx, config, client)
	if err != nil {
		logger.LogError(slogLogger, "Authentication failed", "error", err, "method", method)
		_ = runLogger.WriteRow([]string{config.Action, "FAILURE", config.Host, strconv.Itoa(config.Port), "", "", "", err.Error()})
		return fmt.Errorf("authentication failed: %w", err)
	}
	fmt.Printf("✓ Authentication successful (method: %s)\n", method)

	count, err := client.GetMessageCount(ctx)
	if err != nil {
		logger.LogError(slogLogger, "STAT failed", "error", err)
		_ = runLogger.WriteRow([]string{config.Action, "FAILURE", config.Host, strconv.Itoa(config.Port), "", "", "", err.Error()})
		return fmt.Errorf("STAT failed: %w", err)
	}

	fetchCount := count
	if config.MaxMessages > 0 && fetchCount > config.MaxMessages {
		fetchCount = config.MaxMessages
	}
	fmt.Printf("Fetching %d of %d messages\n", fetchCount, count)

	positions := make([]int, fetchCount)
	for i := range positions {
		positions[i] = i
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	bodies, err := client.GetMessages(ctx, positions)
	if err != nil {
		logger.LogError(slogLogger, "pipelined RETR failed", "error", err, "count", fetchCount)
		_ = runLogger.WriteRow([]string{config.Action, "FAILURE", config.Host, strconv.Itoa(config.Port), "", "", "", err.Error()})
		return fmt.Errorf("RETR failed: %w", err)
	}

	var toDelete []int
	var fetched, failed int

	for i, body := range bodies {
		num := i + 1

		data, err := io.ReadAll(body)
		if err != nil {
			failed++
			logger.LogError(slogLogger, "reading RETR body failed", "error", err, "message", num)
			_ = runLogger.WriteRow([]string{config.Action, "FAILURE", config.Host, strconv.Itoa(config.Port), strconv.Itoa(num), "", "", err.Error()})
			continue
		}

		savedTo := ""
		if config.OutputDir != "" {
			savedTo = filepath.Join(config.OutputDir, fmt.Sprintf("%d.eml", num))
			if err := os.WriteFile(savedTo, data, 0600); err != nil {
				failed++
				logger.LogError(slogLogger, "writing message failed", "error", err, "message", num)
				_ = runLogger.WriteRow([]string{config.Action, "FAILURE", config.Host, strconv.Itoa(config.Port), strconv.Itoa(num), strconv.Itoa(len(data)), "", err.Error()})
				continue
			}
		}

		fetched++
		fmt.Printf("  RETR %d (%d bytes)%s\n", num, len(data), fetchSuffix(savedTo))
		_ = runLogger.WriteRow([]string{config.Action, "SUCCESS", config.Host, strconv.Itoa(config.Port), strconv.Itoa(num), strconv.Itoa(len(data)), savedTo, ""})

		if config.DeleteAfter {
			toDelete = append(toDelete, num)
		}
	}

	if len(toDelete) > 0 {
		if err := client.DeleteMessages(ctx, toDelete); err != nil {
			logger.LogError(slogLogger, "DELE failed", "error", err)
			return fmt.Errorf("deleting fetched messages: %w", err)
		}
		fmt.Printf("Marked %d messages for deletion\n", len(toDelete))
	}

	logger.LogInfo(slogLogger, "Fetch mail completed", "host", config.Host, "fetched", fetched, "failed", failed, "deleted", len(toDelete))
	fmt.Printf("\n✓ Fetch mail completed: %d fetched, %d failed\n", fetched, failed)

	if failed > 0 {
		return fmt.Errorf("%d of %d messages failed to fetch", failed, fetchCount)
	}
	return nil
}

func fetchSuffix(savedTo string) string {
	if savedTo == "" {
		return ""
	}
	return " -> " + savedTo
}
