//go:build protogen

package main

import (
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/meetsync/libs/runtime"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/calendars"
)

func grpcCalendarProviders(logger *slog.Logger) []calendars.Provider {
	addr := strings.TrimSpace(runtime.Getenv("CALENDAR_BRIDGE_GRPC_ADDR", ""))
	if addr == "" {
		return nil
	}
	var providers []calendars.Provider
	for _, name := range []string{"google", "outlook"} {
		p, err := calendars.NewGRPCProvider(name, addr)
		if err != nil {
			logger.Error("calendar bridge grpc dial failed", "provider", name, "err", err)
			continue
		}
		providers = append(providers, p)
		logger.Info("calendar bridge grpc configured", "provider", name)
	}
	return providers
}
