package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"trendscribe/pkg/domain"
)

func TestRedisStreamPublishAndRead(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	pub, err := NewRedisStreamPublisher(client, RedisStreamConfig{Stream: "test:events"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	completed := FromProject(domain.Project{ID: "p1", UserID: "u1", Type: domain.ProjectDraft, Status: domain.StatusCompleted, KeywordSource: domain.KeywordsFallback, UsedFallbackContent: true}, now)
	failed := FromProject(domain.Project{ID: "p2", UserID: "u1", Type: domain.ProjectModify, Status: domain.StatusFailed}, now)
	for _, e := range []Event{completed, failed} {
		if err := pub.Publish(ctx, e); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	got, lastID, err := pub.Read(ctx, "0", 10, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != TypeProjectCompleted || !got[0].UsedFallback || got[0].ID == "" {
		t.Fatalf("unexpected first event %+v", got[0])
	}
	if got[1].Type != TypeProjectFailed || got[1].ProjectID != "p2" {
		t.Fatalf("unexpected second event %+v", got[1])
	}

	more, _, err := pub.Read(ctx, lastID, 10, 0)
	if err != nil || len(more) != 0 {
		t.Fatalf("expected no further events, got %d / %v", len(more), err)
	}
}

func TestNewRedisStreamPublisherRequiresClient(t *testing.T) {
	if _, err := NewRedisStreamPublisher(nil, RedisStreamConfig{}); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
