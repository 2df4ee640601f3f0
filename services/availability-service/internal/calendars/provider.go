package calendars

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/interval"
)

// Provider fetches busy intervals for one connected calendar account.
// Implementations must be independently fallible: an error from one provider
// never aborts the overall availability calculation.
type Provider interface {
	Name() string
	BusyIntervals(ctx context.Context, userID string, from, to time.Time) ([]interval.Interval, error)
}

// FetchAll queries every provider concurrently and merges whatever succeeded.
// Failures are logged and treated as "no busy data from that provider".
func FetchAll(ctx context.Context, providers []Provider, userID string, from, to time.Time, logger *slog.Logger) []interval.Interval {
	lists := make([][]interval.Interval, len(providers))

	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			ivs, err := p.BusyIntervals(ctx, userID, from, to)
			if err != nil {
				logger.Warn("calendar provider failed; ignoring its busy data",
					"provider", p.Name(), "user_id", userID, "err", err)
				return
			}
			lists[i] = ivs
		}(i, p)
	}
	wg.Wait()

	var all []interval.Interval
	for _, l := range lists {
		all = append(all, l...)
	}
	return interval.Merge(all)
}
