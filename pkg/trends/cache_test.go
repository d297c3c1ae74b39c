package trends

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"trendscribe/pkg/domain"
)

func countingSource(calls *int32, err error) Source {
	return SourceFunc(func(context.Context, string, string, int) ([]domain.RawTrendRecord, error) {
		atomic.AddInt32(calls, 1)
		if err != nil {
			return nil, err
		}
		return []domain.RawTrendRecord{{Query: "lego", Popularity: pop(10), Categories: []string{"toys"}}}, nil
	})
}

func TestCachedSourceWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var calls int32
	src := NewCachedSource(countingSource(&calls, nil), NewRedisCache(client, ""), time.Minute)

	for i := 0; i < 3; i++ {
		records, err := src.FetchRawTrends(context.Background(), "Toys", "jp", 24)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if len(records) != 1 || records[0].Query != "lego" || *records[0].Popularity != 10 {
			t.Fatalf("unexpected records %#v", records)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one upstream call, got %d", calls)
	}
	if !mr.Exists("trendscribe:trends:toys|jp|24") {
		t.Fatalf("expected cache key in redis, have %v", mr.Keys())
	}

	mr.FastForward(2 * time.Minute)
	if _, err := src.FetchRawTrends(context.Background(), "toys", "jp", 24); err != nil {
		t.Fatalf("fetch after expiry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", calls)
	}
}

func TestCachedSourceDoesNotCacheErrors(t *testing.T) {
	var calls int32
	failure := &ProviderError{Provider: "test", Kind: KindNetwork, Err: errors.New("down")}
	src := NewCachedSource(countingSource(&calls, failure), NewMemoryCache(time.Minute), time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := src.FetchRawTrends(context.Background(), "toys", "jp", 24); KindOf(err) != KindNetwork {
			t.Fatalf("expected provider error, got %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("errors must not be cached, got %d calls", calls)
	}
}

func TestCachedSourceBypassesBrokenCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	var calls int32
	src := NewCachedSource(countingSource(&calls, nil), NewRedisCache(client, "t:"), time.Minute)
	records, err := src.FetchRawTrends(context.Background(), "toys", "jp", 24)
	if err != nil || len(records) != 1 {
		t.Fatalf("expected upstream result despite cache failure, got %v / %v", records, err)
	}
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	in := []domain.RawTrendRecord{{Query: "kite", Popularity: pop(3), Categories: []string{"toys"}}}
	if err := c.Set(context.Background(), "k", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	in[0].Query = "mutated"
	got, ok, err := c.Get(context.Background(), "k")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got[0].Query != "kite" {
		t.Fatalf("cache shares memory with caller: %#v", got)
	}
}
