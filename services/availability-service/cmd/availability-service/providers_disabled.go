//go:build !protogen

package main

import (
	"log/slog"

	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/calendars"
)

func grpcCalendarProviders(_ *slog.Logger) []calendars.Provider {
	return nil
}
