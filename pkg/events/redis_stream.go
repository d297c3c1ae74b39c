package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"trendscribe/internal/util"
)

const (
	defaultStream    = "trendscribe:events"
	defaultStreamLen = 10000
)

// RedisStreamConfig configures RedisStreamPublisher.
type RedisStreamConfig struct {
	Stream string
	MaxLen int64
}

// RedisStreamPublisher appends events to a capped Redis stream.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamPublisher(client *redis.Client, cfg RedisStreamConfig) (*RedisStreamPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = defaultStream
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultStreamLen
	}
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}, nil
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = util.NewID()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"type":       e.Type,
			"project_id": e.ProjectID,
			"payload":    string(payload),
		},
	}).Err()
}

// Close is a no-op; the redis client is owned by the caller.
func (p *RedisStreamPublisher) Close() error { return nil }

// Read returns up to count events after lastID ("0" reads from the start,
// "$" only new entries) and the id to resume from. block <= 0 does not wait.
func (p *RedisStreamPublisher) Read(ctx context.Context, lastID string, count int64, block time.Duration) ([]Event, string, error) {
	if strings.TrimSpace(lastID) == "" {
		lastID = "0"
	}
	if count <= 0 {
		count = 100
	}
	if block <= 0 {
		block = -1
	}
	streams, err := p.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{p.stream, lastID},
		Count:   count,
		Block:   block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, lastID, nil
	}
	if err != nil {
		return nil, lastID, err
	}
	var out []Event
	for _, s := range streams {
		for _, msg := range s.Messages {
			lastID = msg.ID
			raw, _ := msg.Values["payload"].(string)
			var e Event
			if err := json.Unmarshal([]byte(raw), &e); err != nil {
				util.LoggerFromContext(ctx).Warn("skip undecodable event", "stream", p.stream, "id", msg.ID, "err", err)
				continue
			}
			out = append(out, e)
		}
	}
	return out, lastID, nil
}
