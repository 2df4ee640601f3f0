package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/meetsync/libs/config"
	"github.com/md-rashed-zaman/meetsync/libs/db"
	"github.com/md-rashed-zaman/meetsync/libs/httpx"
	"github.com/md-rashed-zaman/meetsync/libs/kafkax"
	otelx "github.com/md-rashed-zaman/meetsync/libs/otel"
	"github.com/md-rashed-zaman/meetsync/libs/runtime"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/calendars"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/cursor"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/handlers"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/inbox"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func calendarProviders(logger *slog.Logger) []calendars.Provider {
	var providers []calendars.Provider
	for _, p := range []struct{ name, envKey string }{
		{"google", "GOOGLE_BRIDGE_URL"},
		{"outlook", "OUTLOOK_BRIDGE_URL"},
	} {
		url := strings.TrimSpace(config.String(p.envKey, ""))
		if url == "" {
			continue
		}
		providers = append(providers, calendars.NewHTTPProvider(p.name, url, 5*time.Second))
		logger.Info("calendar bridge configured", "provider", p.name)
	}
	return append(providers, grpcCalendarProviders(logger)...)
}

func main() {
	service := config.String("SERVICE_NAME", "availability-service")
	port, err := config.Port("PORT", "8086")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, service)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	scheduleRepo := storage.NewScheduleRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool)
	providers := calendarProviders(logger)

	var rdb *redis.Client
	var cursorStore *cursor.Store
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		cursorStore = cursor.NewStore(rdb, config.String("CURSOR_KEY_PREFIX", "rr-cursor"), 0)
	} else {
		logger.Warn("redis not configured; round-robin rotation starts from the top on every request")
	}

	// The booking path owns the cursor commit: only a confirmed booking
	// advances the rotation, proposals from slot reads never do.
	if cursorStore != nil && config.String("KAFKA_BROKERS", "") != "" {
		inboxRepo := inbox.NewRepository(pool)
		bookedConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "availability-service"),
			Topic:   config.String("KAFKA_CONSUME_TOPIC", "booking.appointment.booked.v1"),
		}, func(ctx context.Context, msg kafka.Message) error {
			var payload struct {
				EventTypeID      string `json:"event_type_id"`
				AssignedMemberID string `json:"assigned_member_id"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid booked event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.EventTypeID == "" || payload.AssignedMemberID == "" {
				// Single-host bookings carry no assignee; nothing to commit.
				return nil
			}
			return cursorStore.Commit(ctx, payload.EventTypeID, payload.AssignedMemberID)
		})
		go bookedConsumer.Run(ctx)

		retention := time.Duration(config.Int("INBOX_RETENTION_HOURS", 72)) * time.Hour
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n, err := inboxRepo.Prune(ctx, retention); err != nil {
						logger.Warn("inbox prune failed", "err", err)
					} else if n > 0 {
						logger.Info("inbox pruned", "rows", n)
					}
				}
			}
		}()
	}

	var cursorSource handlers.CursorSource
	if cursorStore != nil {
		cursorSource = cursorStore
	}
	slotsHandler := handlers.NewSlotsHandler(bookingRepo, scheduleRepo, bookingRepo, providers, cursorSource, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: cursor.ReadyCheck(rdb)})
	}
	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/public/slots", slotsHandler.HostSlots)
	mux.HandleFunc("/api/v1/public/team-slots", slotsHandler.TeamSlots)

	// Public endpoints sit behind a shared counting store when redis is
	// available, so rate limits hold across replicas.
	var rateLimit httpx.Middleware
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if rdb != nil {
		rateLimit = httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "rl:slots").Middleware(logger, true)
	} else {
		rateLimit = httpx.NewRateLimiter(limit, time.Minute).Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		rateLimit,
		httpx.WithTimeout(10*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
