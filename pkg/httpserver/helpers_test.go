package httpserver_test

import (
	"log/slog"

	"github.com/dmitrymomot/subscription-api/pkg/logger"
)

func discardLogger() *slog.Logger { return logger.Discard() }
