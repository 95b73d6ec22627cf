package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ziembor/gomailtesttool/internal/common/logger"
)

// executeAction dispatches to the appropriate action handler.
func executeAction(ctx context.Context, config *Config, runLogger logger.RunLogger, slogLogger *slog.Logger) error {
	switch config.Action {
	case ActionTestConnect:
		return testConnect(ctx, config, runLogger, slogLogger)
	case ActionTestAuth:
		return testAuth(ctx, config, runLogger, slogLogger)
	case ActionListMail:
		return listMail(ctx, config, runLogger, slogLogger)
	case ActionFetchMail:
		return fetchMail(ctx, config, runLogger, slogLogger)
	default:
		return fmt.Errorf("unknown action: %s", config.Action)
	}
}
