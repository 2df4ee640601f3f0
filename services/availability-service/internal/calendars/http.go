package calendars

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/interval"
)

// httpProvider talks to a calendar-bridge sidecar that proxies one external
// calendar (Google, Outlook). The bridge owns OAuth tokens and provider quirks;
// this client only speaks the busy-list contract.
type httpProvider struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(name, baseURL string, timeout time.Duration) Provider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpProvider{
		name:    name,
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (p *httpProvider) Name() string { return p.name }

type busyEntry struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type busyResponse struct {
	Busy []busyEntry `json:"busy"`
}

func (p *httpProvider) BusyIntervals(ctx context.Context, userID string, from, to time.Time) ([]interval.Interval, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/busy?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s bridge request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s bridge returned status %d", p.name, resp.StatusCode)
	}

	var payload busyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%s bridge returned invalid body: %w", p.name, err)
	}

	var out []interval.Interval
	for _, e := range payload.Busy {
		iv, err := interval.Parse(e.Start, e.End)
		if err != nil {
			// One malformed entry should not discard the rest of the feed.
			continue
		}
		out = append(out, iv)
	}
	return out, nil
}
