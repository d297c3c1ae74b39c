package trends

import (
	"sort"
	"strings"

	"trendscribe/pkg/domain"
)

// DefaultTopN is the keyword cap when no explicit limit is configured.
const DefaultTopN = 5

// Normalize turns raw provider records into ranked keywords.
//
// Records without popularity are dropped. A non-empty category keeps only
// records labelled with it; no match yields an empty result rather than the
// unfiltered set. The survivors are stable-sorted by popularity, cut to topN
// and deduplicated case-insensitively, keeping the highest score.
func Normalize(raw []domain.RawTrendRecord, category, region string, topN int) []domain.Keyword {
	if topN <= 0 {
		topN = DefaultTopN
	}
	category = strings.TrimSpace(category)

	kept := make([]domain.RawTrendRecord, 0, len(raw))
	for _, rec := range raw {
		if rec.Popularity == nil || *rec.Popularity < 0 {
			continue
		}
		if strings.TrimSpace(rec.Query) == "" {
			continue
		}
		if category != "" && !hasLabel(rec.Categories, category) {
			continue
		}
		kept = append(kept, rec)
	}
	if len(kept) == 0 {
		return []domain.Keyword{}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return *kept[i].Popularity > *kept[j].Popularity
	})
	if len(kept) > topN {
		kept = kept[:topN]
	}

	out := make([]domain.Keyword, 0, len(kept))
	seen := make(map[string]struct{}, len(kept))
	for _, rec := range kept {
		term := strings.TrimSpace(rec.Query)
		key := strings.ToLower(term)
		// Sorted input: the first occurrence carries the highest score.
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, domain.Keyword{Term: term, Score: *rec.Popularity, Region: region})
	}
	return out
}

func hasLabel(labels []string, category string) bool {
	for _, label := range labels {
		if strings.EqualFold(strings.TrimSpace(label), category) {
			return true
		}
	}
	return false
}
