package inbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/meetsync/libs/db"
	otelx "github.com/md-rashed-zaman/meetsync/libs/otel"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record inserts the event id once; a duplicate returns (false, nil) so the
// consumer can skip redelivered messages. The trace context is stored with
// the row to correlate cursor commits with the booking that caused them.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type, traceparent, tracestate)
		VALUES ($1, $2, $3, $4)
	`, eventID, eventType, traceparent, tracestate)
	if err == nil {
		return true, nil
	}

	if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
		return false, nil
	}

	return false, err
}

// Prune drops dedup rows older than the retention window. Kafka retention is
// shorter than any sane window, so redeliveries cannot outlive these rows.
func (r *Repository) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM inbox_events
		WHERE received_at < now() - ($1 * interval '1 second')
	`, int64(retention.Seconds()))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
