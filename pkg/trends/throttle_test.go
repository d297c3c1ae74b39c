package trends

import (
	"context"
	"errors"
	"testing"
	"time"

	"trendscribe/pkg/domain"
)

func TestThrottledSourceBacksOffAfterRateLimit(t *testing.T) {
	calls := 0
	upstream := SourceFunc(func(context.Context, string, string, int) ([]domain.RawTrendRecord, error) {
		calls++
		return nil, &ProviderError{Provider: "test", Kind: KindRateLimit, RetryAfter: 30 * time.Second, Err: errors.New("429")}
	})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	src := NewThrottledSource(upstream, 100, 10)
	src.now = func() time.Time { return now }

	if _, err := src.FetchRawTrends(context.Background(), "", "us", 24); KindOf(err) != KindRateLimit {
		t.Fatalf("expected rate limit, got %v", err)
	}
	_, err := src.FetchRawTrends(context.Background(), "", "us", 24)
	if !errors.Is(err, ErrBackoff) {
		t.Fatalf("expected fast backoff failure, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("upstream must not be called during backoff, got %d calls", calls)
	}

	now = now.Add(31 * time.Second)
	_, _ = src.FetchRawTrends(context.Background(), "", "us", 24)
	if calls != 2 {
		t.Fatalf("expected upstream call after backoff, got %d calls", calls)
	}
}

func TestThrottledSourcePassesThroughSuccess(t *testing.T) {
	upstream := SourceFunc(func(context.Context, string, string, int) ([]domain.RawTrendRecord, error) {
		return []domain.RawTrendRecord{{Query: "a", Popularity: pop(1)}}, nil
	})
	records, err := NewThrottledSource(upstream, 10, 1).FetchRawTrends(context.Background(), "", "us", 24)
	if err != nil || len(records) != 1 {
		t.Fatalf("unexpected result %v / %v", records, err)
	}
}

type dualSource struct {
	SourceFunc
	RelatedSourceFunc
}

func TestThrottledRelatedTopicsShareBackoff(t *testing.T) {
	trendCalls := 0
	upstream := dualSource{
		SourceFunc: func(context.Context, string, string, int) ([]domain.RawTrendRecord, error) {
			trendCalls++
			return nil, nil
		},
		RelatedSourceFunc: func(context.Context, string, string, int) ([]RawRelatedTopic, error) {
			return nil, &ProviderError{Provider: "test", Kind: KindRateLimit, Err: errors.New("429")}
		},
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	src := NewThrottledSource(upstream, 100, 10)
	src.now = func() time.Time { return now }

	if _, err := src.FetchRelatedTopics(context.Background(), "toys", "us", 30); KindOf(err) != KindRateLimit {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if _, err := src.FetchRawTrends(context.Background(), "", "us", 24); !errors.Is(err, ErrBackoff) {
		t.Fatalf("related rate limit should open the shared backoff, got %v", err)
	}
	if trendCalls != 0 {
		t.Fatalf("trend upstream called during backoff")
	}

	plain := NewThrottledSource(SourceFunc(func(context.Context, string, string, int) ([]domain.RawTrendRecord, error) {
		return nil, nil
	}), 10, 1)
	if _, err := plain.FetchRelatedTopics(context.Background(), "toys", "us", 30); KindOf(err) != KindEmpty {
		t.Fatalf("expected empty kind without a related upstream, got %v", err)
	}
}
