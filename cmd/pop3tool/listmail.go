package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ziembor/gomailtesttool/internal/common/logger"
	"github.com/ziembor/gomailtesttool/internal/common/ratelimit"
	"github.com/ziembor/gomailtesttool/pop3"
)

// listMail connects, authenticates, and lists the mailbox via STAT,
// LIST, and (if supported) UIDL.
func listMail(ctx context.Context, config *Config, runLogger logger.RunLogger, slogLogger *slog.Logger) error {
	fmt.Printf("Listing messages on %s:%d...\n", config.Host, config.Port)

	columns := []string{"Action", "Status", "Server", "Port", "Total_Messages", "Message_Number", "Message_Size", "UIDL", "Error"}
	if shouldWrite, _ := runLogger.ShouldWriteHeader(); shouldWrite {
		_ = runLogger.WriteHeader(columns)
	}

	client := newSession(nil, slogLogger, nil)
	limiter := ratelimit.New(config.RateLimit)

	if err := connectClient(ctx, config, client, limiter); err != nil {
		logger.LogError(slogLogger, "Connection failed", "error", err, "host", config.Host, "port", config.Port)
		_ = runLogger.WriteRow([]string{config.Action, "FAILURE", config.Host, strconv.Itoa(config.Port), "", "", "", "", err.Error()})
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	fmt.Printf("✓ Connected to %s:%d\n", config.Host, config.Port)

	method, err := authenticate(ctx, config, client)
	if err != nil {
		logger.LogError(slogLogger, "Authentication failed", "error", err, "method", method)
		_ = runLogger.WriteRow([]string{config.Action, "FAILURE", config.Host, strconv.Itoa(config.Port), "", "", "", "", err.Error()})
		return fmt.Errorf("authentication failed: %w", err)
	}
	fmt.Printf("✓ Authentication successful (method: %s)\n", method)

	count, err := client.GetMessageCount(ctx)
	if err != nil {
		logger.LogError(slogLogger, "STAT failed", "error", err)
		_ = runLogger.WriteRow([]string{config.Action, "FAILURE", config.Host, strconv.Itoa(config.Port), "", "", "", "", err.Error()})
		return fmt.Errorf("STAT failed: %w", err)
	}
	fmt.Printf("\nMailbox contains %d messages\n", count)

	if count == 0 {
		_ = runLogger.WriteRow([]string{config.Action, "SUCCESS", config.Host, strconv.Itoa(config.Port), "0", "", "", "", ""})
		return nil
	}

	sizes, err := client.GetMessageSizes(ctx)
	if err != nil {
		logger.LogError(slogLogger, "LIST failed", "error", err)
		_ = runLogger.WriteRow([]string{config.Action, "FAILURE", config.Host, strconv.Itoa(config.Port), strconv.Itoa(count), "", "", "", err.Error()})
		return fmt.Errorf("LIST failed: %w", err)
	}

	uidlByNum := map[int]string{}
	uids, err := client.GetMessageUids(ctx)
	if err != nil {
		if _, notSupported := err.(*pop3.NotSupported); !notSupported {
			logger.LogWarn(slogLogger, "UIDL failed", "error", err)
		}
	} else {
		for _, u := range uids {
			uidlByNum[u.Number] = u.Uid
		}
	}

	displayCount := len(sizes)
	if config.MaxMessages > 0 && displayCount > config.MaxMessages {
		displayCount = config.MaxMessages
	}

	fmt.Printf("\nMessages (showing %d of %d):\n", displayCount, len(sizes))
	fmt.Println("  Num    Size       UIDL")
	fmt.Println("  ---    ----       ----")

	for i := 0; i < displayCount; i++ {
		msg := sizes[i]
		uidl := uidlByNum[msg.Number]
		fmt.Printf("  %3d    %8d   %s\n", msg.Number, msg.Size, uidl)
		_ = runLogger.WriteRow([]string{
			config.Action, "SUCCESS", config.Host, strconv.Itoa(config.Port),
			strconv.Itoa(count), strconv.Itoa(msg.Number), strconv.Itoa(msg.Size), uidl, "",
		})
	}

	if len(sizes) > displayCount {
		fmt.Printf("\n  ... and %d more messages (use -maxmessages to show more)\n", len(sizes)-displayCount)
	}

	logger.LogInfo(slogLogger, "List mail completed", "host", config.Host, "total_messages", count)
	fmt.Println("\n✓ List mail completed")
	return nil
}
