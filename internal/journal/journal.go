// internal/journal/journal.go
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// QueueName is the Redis list lobby events are pushed onto for out-of-band
// consumers (analytics, moderation). This is an append-only side log, not
// lobby state: the service never reads it back.
const QueueName = "blanks_events"

// EventRecord is one journaled lobby event.
type EventRecord struct {
	Lobby     string                 `json:"lobby"`
	Event     string                 `json:"event"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Journal pushes lobby events to Redis, fire-and-forget. A nil Journal or a
// Journal without a client silently drops records, so callers never guard.
type Journal struct {
	rdb *redis.Client
}

// New connects a journal from a Redis URL. An empty URL disables journaling.
func New(redisURL string) (*Journal, error) {
	if redisURL == "" {
		return &Journal{}, nil
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &Journal{rdb: redis.NewClient(opt)}, nil
}

// Record enqueues one event. Marshaling and the push happen off the caller's
// goroutine so lobby mutations never wait on Redis.
func (j *Journal) Record(lobbyCode, event string, payload map[string]interface{}) {
	if j == nil || j.rdb == nil {
		return
	}
	rec := EventRecord{
		Lobby:     lobbyCode,
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}
	go func() {
		data, err := json.Marshal(rec)
		if err != nil {
			logrus.Warnf("journal: failed to marshal %s event: %v", event, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := j.rdb.LPush(ctx, QueueName, data).Err(); err != nil {
			logrus.Warnf("journal: failed to push %s event: %v", event, err)
		}
	}()
}

// Close releases the Redis client.
func (j *Journal) Close() error {
	if j == nil || j.rdb == nil {
		return nil
	}
	return j.rdb.Close()
}
