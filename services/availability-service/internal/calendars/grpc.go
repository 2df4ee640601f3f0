//go:build protogen

package calendars

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/meetsync/libs/grpcx"
	calendarsv1 "github.com/md-rashed-zaman/meetsync/protos/gen/calendars/v1"

	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/interval"
)

// grpcProvider fetches busy intervals from the calendar-bridge over gRPC.
// Requires generated proto stubs; build with -tags protogen after `make proto`.
type grpcProvider struct {
	name   string
	client calendarsv1.CalendarBridgeClient
}

func NewGRPCProvider(name, addr string) (Provider, error) {
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{name: name, client: calendarsv1.NewCalendarBridgeClient(conn)}, nil
}

func (p *grpcProvider) Name() string { return p.name }

func (p *grpcProvider) BusyIntervals(ctx context.Context, userID string, from, to time.Time) ([]interval.Interval, error) {
	resp, err := p.client.GetBusyIntervals(ctx, &calendarsv1.BusyIntervalsRequest{
		Provider: p.name,
		UserId:   userID,
		FromUtc:  from.UTC().Format(time.RFC3339),
		ToUtc:    to.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	var out []interval.Interval
	for _, b := range resp.GetBusy() {
		iv, err := interval.Parse(b.GetStartUtc(), b.GetEndUtc())
		if err != nil {
			continue
		}
		out = append(out, iv)
	}
	return out, nil
}
