package trends

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"trendscribe/internal/util"
	"trendscribe/pkg/domain"
	"trendscribe/pkg/result"
)

const (
	// MaxRelatedTopics caps a related-topics answer.
	MaxRelatedTopics   = 10
	defaultRelatedDays = 30
	relatedValueMin    = 20
	relatedValueSpread = 80
	unknownValueSpread = 100
)

// RawRelatedTopic is a provider topic. Value is nil when the provider gave
// no interest figure.
type RawRelatedTopic struct {
	Topic string
	Value *int
}

// RelatedSource looks up topics searched together with keyword.
type RelatedSource interface {
	FetchRelatedTopics(ctx context.Context, keyword, regionCode string, days int) ([]RawRelatedTopic, error)
}

// RelatedSourceFunc adapts a function to RelatedSource.
type RelatedSourceFunc func(ctx context.Context, keyword, regionCode string, days int) ([]RawRelatedTopic, error)

func (f RelatedSourceFunc) FetchRelatedTopics(ctx context.Context, keyword, regionCode string, days int) ([]RawRelatedTopic, error) {
	return f(ctx, keyword, regionCode, days)
}

// RelatedTopics is the answer for one category and location.
type RelatedTopics struct {
	Keyword string
	Topics  []domain.RelatedTopic
	Source  domain.KeywordSource
	Err     error
}

// RelatedFinder resolves the lead term of a category and asks the provider
// for its related topics. Provider failures yield templated topics.
type RelatedFinder struct {
	source  RelatedSource
	intn    func(int) int
	days    int
	timeout time.Duration
}

type RelatedOption func(*RelatedFinder)

func WithRelatedIntN(intn func(int) int) RelatedOption {
	return func(f *RelatedFinder) {
		if intn != nil {
			f.intn = intn
		}
	}
}

func WithRelatedDays(days int) RelatedOption {
	return func(f *RelatedFinder) {
		if days > 0 {
			f.days = days
		}
	}
}

func NewRelatedFinder(source RelatedSource, opts ...RelatedOption) *RelatedFinder {
	f := &RelatedFinder{
		source:  source,
		intn:    rand.Intn,
		days:    defaultRelatedDays,
		timeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Find never fails. Err carries the provider failure when the templated
// topics were used.
func (f *RelatedFinder) Find(ctx context.Context, category, location string) RelatedTopics {
	category = strings.TrimSpace(category)
	keyword := SeedFor(category)[0]
	if f.source == nil {
		return f.fallback(keyword, category, nil)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	fetched := result.From(f.source.FetchRelatedTopics(fetchCtx, keyword, RegionCode(location), f.days))
	return result.Fold(fetched,
		func(raw []RawRelatedTopic) RelatedTopics {
			topics := make([]domain.RelatedTopic, 0, min(len(raw), MaxRelatedTopics))
			for _, t := range raw {
				if len(topics) == MaxRelatedTopics {
					break
				}
				value := f.intn(unknownValueSpread)
				if t.Value != nil {
					value = *t.Value
				}
				topics = append(topics, domain.RelatedTopic{Topic: t.Topic, Value: value})
			}
			return RelatedTopics{Keyword: keyword, Topics: topics, Source: domain.KeywordsLive}
		},
		func(err error) RelatedTopics {
			util.LoggerFromContext(ctx).Warn("related topics provider failed, using templates",
				"category", category, "location", location, "kind", KindOf(err), "err", err)
			return f.fallback(keyword, category, err)
		},
	)
}

func (f *RelatedFinder) fallback(keyword, category string, cause error) RelatedTopics {
	subject := category
	if subject == "" {
		subject = keyword
	}
	patterns := []string{"trending %s", "popular %s", "best %s", "new %s", "%s trends"}
	topics := make([]domain.RelatedTopic, 0, len(patterns))
	for _, p := range patterns {
		topics = append(topics, domain.RelatedTopic{
			Topic: fmt.Sprintf(p, subject),
			Value: relatedValueMin + f.intn(relatedValueSpread),
		})
	}
	return RelatedTopics{Keyword: keyword, Topics: topics, Source: domain.KeywordsFallback, Err: cause}
}
