package cursor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists the round-robin rotation cursor per event type.
//
// The aggregator reads the cursor before calculating and only proposes a next
// value. Commit runs on the booking-confirmed path, after a slot is actually
// booked against a member; the calculator never writes.
type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewStore(rdb *redis.Client, prefix string, ttl time.Duration) *Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rr-cursor"
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Last returns the last committed assignee for an event type, or "" when no
// assignment has ever been committed.
func (s *Store) Last(ctx context.Context, eventTypeID string) (string, error) {
	v, err := s.rdb.Get(ctx, s.key(eventTypeID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// Commit durably records memberID as the last assigned member.
func (s *Store) Commit(ctx context.Context, eventTypeID, memberID string) error {
	return s.rdb.Set(ctx, s.key(eventTypeID), memberID, s.ttl).Err()
}

func (s *Store) key(eventTypeID string) string {
	return s.prefix + ":" + eventTypeID
}

// ReadyCheck pings redis for /readyz.
func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
