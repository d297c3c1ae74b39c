package trends

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"time"

	"trendscribe/internal/util"
	"trendscribe/pkg/domain"
	"trendscribe/pkg/result"
)

const (
	fallbackScoreMin    = 30
	fallbackScoreSpread = 50
	defaultWindowHours  = 168
	defaultFetchTimeout = 15 * time.Second
	defaultCandidates   = 20
)

// Query describes one keyword selection request.
type Query struct {
	Category    string
	Location    string
	Language    string
	WindowHours int
}

// Selection is the outcome of Select. Keywords is never empty. Err holds the
// provider failure that forced the fallback path, if any.
type Selection struct {
	Keywords []domain.Keyword
	Source   domain.KeywordSource
	Err      error
}

// Selector chains the trend source, the normalizer, the optional reranker
// and the static catalog.
type Selector struct {
	source       Source
	reranker     *Reranker
	topN         int
	candidates   int
	window       int
	fetchTimeout time.Duration
	intn         func(int) int
}

type SelectorOption func(*Selector)

func WithReranker(r *Reranker) SelectorOption {
	return func(s *Selector) { s.reranker = r }
}

// WithTopN lowers the keyword cap. Values outside 1..DefaultTopN are ignored.
func WithTopN(n int) SelectorOption {
	return func(s *Selector) {
		if n > 0 {
			s.topN = min(n, DefaultTopN)
		}
	}
}

// WithRerankCandidates sets how many normalized keywords are offered to the reranker.
func WithRerankCandidates(n int) SelectorOption {
	return func(s *Selector) {
		if n > 0 {
			s.candidates = n
		}
	}
}

// WithIntN replaces the random source used for fallback scores.
func WithIntN(intn func(int) int) SelectorOption {
	return func(s *Selector) {
		if intn != nil {
			s.intn = intn
		}
	}
}

func WithDefaultWindow(hours int) SelectorOption {
	return func(s *Selector) {
		if hours > 0 {
			s.window = hours
		}
	}
}

func WithFetchTimeout(d time.Duration) SelectorOption {
	return func(s *Selector) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

func NewSelector(source Source, opts ...SelectorOption) *Selector {
	s := &Selector{
		source:       source,
		topN:         DefaultTopN,
		candidates:   defaultCandidates,
		window:       defaultWindowHours,
		fetchTimeout: defaultFetchTimeout,
		intn:         rand.Intn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns a non-empty keyword set for q. Provider and reranker
// failures are absorbed here.
func (s *Selector) Select(ctx context.Context, q Query) Selection {
	if s.source == nil {
		return s.fallback(q, nil)
	}
	window := q.WindowHours
	if window <= 0 {
		window = s.window
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	fetched := result.From(s.source.FetchRawTrends(fetchCtx, q.Category, RegionCode(q.Location), window))
	cancel()

	return result.Fold(fetched,
		func(raw []domain.RawTrendRecord) Selection {
			return s.fromLive(ctx, q, raw)
		},
		func(err error) Selection {
			util.LoggerFromContext(ctx).Warn("trend provider failed, using catalog",
				"category", q.Category, "location", q.Location, "kind", KindOf(err), "err", err)
			return s.fallback(q, err)
		},
	)
}

func (s *Selector) fromLive(ctx context.Context, q Query, raw []domain.RawTrendRecord) Selection {
	limit := s.topN
	if s.reranker != nil && s.candidates > limit {
		limit = s.candidates
	}
	keywords := Normalize(raw, q.Category, q.Location, limit)
	if len(keywords) == 0 {
		return s.fallback(q, nil)
	}
	if s.reranker == nil || len(keywords) < rerankSize {
		return Selection{Keywords: truncate(keywords, s.topN), Source: domain.KeywordsLive}
	}

	reranked := result.From(s.reranker.Rerank(ctx, q, keywords))
	return result.Fold(reranked,
		func(picked []domain.Keyword) Selection {
			return Selection{Keywords: picked, Source: domain.KeywordsReranked}
		},
		func(err error) Selection {
			util.LoggerFromContext(ctx).Warn("keyword rerank failed, using normalized set",
				"category", q.Category, "err", err)
			return Selection{Keywords: truncate(keywords, s.topN), Source: domain.KeywordsLive}
		},
	)
}

// fallback scores the catalog seeds in [30,79] and returns them by score.
func (s *Selector) fallback(q Query, cause error) Selection {
	seeds := SeedFor(q.Category)
	keywords := make([]domain.Keyword, 0, len(seeds))
	for _, term := range seeds {
		keywords = append(keywords, domain.Keyword{
			Term:   term,
			Score:  float64(fallbackScoreMin + s.intn(fallbackScoreSpread)),
			Region: q.Location,
		})
	}
	sort.SliceStable(keywords, func(i, j int) bool { return keywords[i].Score > keywords[j].Score })
	return Selection{Keywords: truncate(keywords, s.topN), Source: domain.KeywordsFallback, Err: cause}
}

func truncate(keywords []domain.Keyword, n int) []domain.Keyword {
	if n > 0 && len(keywords) > n {
		return keywords[:n]
	}
	return keywords
}

// Terms returns the keyword terms in order.
func Terms(keywords []domain.Keyword) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		out = append(out, strings.TrimSpace(k.Term))
	}
	return out
}
