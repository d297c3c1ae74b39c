package trends

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestSerpAPI(t *testing.T, handler http.HandlerFunc) *SerpAPISource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	src, err := NewSerpAPISource(SerpAPIConfig{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	return src
}

func TestSerpAPITrendingNowShape(t *testing.T) {
	src := newTestSerpAPI(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("engine") != "google_trends_trending_now" || q.Get("geo") != "DE" || q.Get("hours") != "168" || q.Get("category_id") != "2" || q.Get("api_key") != "k" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"trending_searches":[
			{"query":"wide leg &amp; <b>jeans</b>","search_volume":5000,"categories":[{"id":2,"name":"Beauty and Fashion"}]},
			{"query":"bundesliga","search_volume":90000,"categories":[{"id":17,"name":"Sports"}]},
			{"query":"no volume","categories":[{"id":2,"name":"Beauty and Fashion"}]}
		]}`))
	})

	records, err := src.FetchRawTrends(context.Background(), "fashion", "de", 100)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Query != "wide leg & jeans" {
		t.Fatalf("markup not cleaned: %q", records[0].Query)
	}
	if !hasLabel(records[0].Categories, "fashion") || !hasLabel(records[0].Categories, "beauty and fashion") {
		t.Fatalf("expected canonical and provider labels, got %v", records[0].Categories)
	}
	if records[2].Popularity != nil {
		t.Fatalf("missing volume must stay nil")
	}

	keywords := Normalize(records, "fashion", "Germany", 5)
	if len(keywords) != 1 || keywords[0].Term != "wide leg & jeans" || keywords[0].Score != 5000 {
		t.Fatalf("unexpected normalized keywords %#v", keywords)
	}
}

func TestSerpAPIDailyShape(t *testing.T) {
	src := newTestSerpAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"trendingSearchesDays":[{"trendingSearches":[
			{"title":{"query":"robot kit"},"formattedTraffic":"200K+"},
			{"title":"board games","formattedTraffic":"2,000+"},
			{"title":"mystery","formattedTraffic":"lots"}
		]}]}`))
	})

	records, err := src.FetchRawTrends(context.Background(), "toys", "us", 24)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Query != "robot kit" || records[0].Popularity == nil || *records[0].Popularity != 200000 {
		t.Fatalf("unexpected first record %#v", records[0])
	}
	if *records[1].Popularity != 2000 {
		t.Fatalf("unexpected traffic %v", *records[1].Popularity)
	}
	if records[2].Popularity != nil {
		t.Fatalf("unparseable traffic must be nil")
	}
	if !hasLabel(records[0].Categories, "toys") {
		t.Fatalf("daily records should carry the requested category, got %v", records[0].Categories)
	}
}

func TestSerpAPIErrorKinds(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"Invalid API key."}`, KindAuth},
		{"rate limited", http.StatusTooManyRequests, `{"error":"limit"}`, KindRateLimit},
		{"server error", http.StatusBadGateway, `oops`, KindNetwork},
		{"malformed", http.StatusOK, `{"trending_searches":`, KindMalformed},
		{"provider says empty", http.StatusOK, `{"error":"Google Trends hasn't returned any results for this query."}`, KindEmpty},
		{"no list", http.StatusOK, `{}`, KindEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := newTestSerpAPI(t, func(w http.ResponseWriter, r *http.Request) {
				if tc.status == http.StatusTooManyRequests {
					w.Header().Set("Retry-After", "7")
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := src.FetchRawTrends(context.Background(), "", "us", 24)
			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if pe.Kind != tc.kind {
				t.Fatalf("expected kind %q, got %q (%v)", tc.kind, pe.Kind, err)
			}
			if tc.kind == KindRateLimit && pe.RetryAfter != 7*time.Second {
				t.Fatalf("expected Retry-After to be parsed, got %v", pe.RetryAfter)
			}
		})
	}
}

func TestSerpAPITimeout(t *testing.T) {
	src := newTestSerpAPI(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := src.FetchRawTrends(ctx, "", "us", 24)
	if KindOf(err) != KindTimeout {
		t.Fatalf("expected timeout kind, got %v", err)
	}
}

func TestNewSerpAPISourceRequiresKey(t *testing.T) {
	if _, err := NewSerpAPISource(SerpAPIConfig{}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestWindowBucket(t *testing.T) {
	cases := map[int]int{0: 24, 3: 4, 4: 4, 5: 24, 30: 48, 49: 168, 1000: 168}
	for in, want := range cases {
		if got := windowBucket(in); got != want {
			t.Fatalf("windowBucket(%d) = %d, want %d", in, got, want)
		}
	}
}
