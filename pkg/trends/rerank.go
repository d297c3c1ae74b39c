package trends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"trendscribe/pkg/ai"
	"trendscribe/pkg/domain"
	"trendscribe/pkg/prompt"
)

const (
	rerankSize           = 3
	defaultRerankTimeout = 20 * time.Second
)

// ErrRerankRejected marks model output that could not be used.
var ErrRerankRejected = errors.New("trends: rerank output rejected")

// Reranker asks a text model to pick the three most relevant keywords.
type Reranker struct {
	gen     ai.TextGenerator
	model   string
	timeout time.Duration
}

func NewReranker(gen ai.TextGenerator, model string, timeout time.Duration) *Reranker {
	if timeout <= 0 {
		timeout = defaultRerankTimeout
	}
	return &Reranker{gen: gen, model: model, timeout: timeout}
}

// Rerank returns exactly three distinct keywords taken from candidates,
// sorted by score descending.
func (r *Reranker) Rerank(ctx context.Context, q Query, candidates []domain.Keyword) ([]domain.Keyword, error) {
	if r == nil || r.gen == nil {
		return nil, errors.New("trends: reranker not configured")
	}
	if len(candidates) < rerankSize {
		return nil, fmt.Errorf("%w: need %d candidates, have %d", ErrRerankRejected, rerankSize, len(candidates))
	}
	instruction := prompt.RerankInstruction(q.Category, q.Location, q.Language, Terms(candidates), rerankSize)

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	text, err := r.gen.GenerateText(callCtx, r.model, instruction)
	if err != nil {
		return nil, err
	}
	terms, err := parseTermList(text)
	if err != nil {
		return nil, err
	}
	return pickCandidates(terms, candidates)
}

// parseTermList decodes a JSON array of strings, tolerating a markdown fence
// or prose around it.
func parseTermList(text string) ([]string, error) {
	s := strings.TrimSpace(text)
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no json array", ErrRerankRejected)
	}
	var terms []string
	if err := json.Unmarshal([]byte(s[start:end+1]), &terms); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRerankRejected, err)
	}
	return terms, nil
}

func pickCandidates(terms []string, candidates []domain.Keyword) ([]domain.Keyword, error) {
	if len(terms) != rerankSize {
		return nil, fmt.Errorf("%w: got %d terms, want %d", ErrRerankRejected, len(terms), rerankSize)
	}
	byTerm := make(map[string]domain.Keyword, len(candidates))
	for _, k := range candidates {
		byTerm[strings.ToLower(strings.TrimSpace(k.Term))] = k
	}
	picked := make([]domain.Keyword, 0, rerankSize)
	used := make(map[string]struct{}, rerankSize)
	for _, term := range terms {
		key := strings.ToLower(strings.TrimSpace(term))
		k, ok := byTerm[key]
		if !ok {
			return nil, fmt.Errorf("%w: unknown term %q", ErrRerankRejected, term)
		}
		if _, dup := used[key]; dup {
			return nil, fmt.Errorf("%w: duplicate term %q", ErrRerankRejected, term)
		}
		used[key] = struct{}{}
		picked = append(picked, k)
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Score > picked[j].Score })
	return picked, nil
}
