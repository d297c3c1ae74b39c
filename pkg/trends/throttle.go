package trends

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"trendscribe/pkg/domain"
)

const defaultRateLimitBackoff = 60 * time.Second

// ThrottledSource applies a token bucket to an upstream Source. A provider
// rate-limit response opens a backoff window during which calls fail fast.
type ThrottledSource struct {
	next    Source
	limiter *rate.Limiter

	mu      sync.Mutex
	retryAt time.Time
	now     func() time.Time
}

func NewThrottledSource(next Source, requestsPerSecond float64, burst int) *ThrottledSource {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &ThrottledSource{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		now:     time.Now,
	}
}

func (s *ThrottledSource) FetchRawTrends(ctx context.Context, category, regionCode string, windowHours int) ([]domain.RawTrendRecord, error) {
	if err := s.admit(ctx); err != nil {
		return nil, err
	}
	records, err := s.next.FetchRawTrends(ctx, category, regionCode, windowHours)
	s.observe(err)
	return records, err
}

// FetchRelatedTopics shares the token bucket and backoff window with
// FetchRawTrends. The upstream must also be a RelatedSource.
func (s *ThrottledSource) FetchRelatedTopics(ctx context.Context, keyword, regionCode string, days int) ([]RawRelatedTopic, error) {
	related, ok := s.next.(RelatedSource)
	if !ok {
		return nil, &ProviderError{Provider: "throttle", Kind: KindEmpty, Err: errors.New("upstream has no related topics")}
	}
	if err := s.admit(ctx); err != nil {
		return nil, err
	}
	topics, err := related.FetchRelatedTopics(ctx, keyword, regionCode, days)
	s.observe(err)
	return topics, err
}

func (s *ThrottledSource) admit(ctx context.Context) error {
	s.mu.Lock()
	retryAt := s.retryAt
	s.mu.Unlock()
	if now := s.now(); now.Before(retryAt) {
		return &ProviderError{Provider: "throttle", Kind: KindRateLimit, RetryAfter: retryAt.Sub(now), Err: ErrBackoff}
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return transportError("throttle", err)
	}
	return nil
}

func (s *ThrottledSource) observe(err error) {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind == KindRateLimit {
		s.recordRateLimit(pe.RetryAfter)
	}
}

func (s *ThrottledSource) recordRateLimit(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = defaultRateLimitBackoff
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryAt = s.now().Add(retryAfter)
}
