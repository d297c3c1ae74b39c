package trends

import (
	"testing"

	"trendscribe/pkg/domain"
)

func pop(v float64) *float64 { return &v }

func TestNormalizeEmptyInput(t *testing.T) {
	for _, category := range []string{"", "fashion", "unknown"} {
		got := Normalize(nil, category, "Germany", 5)
		if got == nil || len(got) != 0 {
			t.Fatalf("expected empty non-nil slice for %q, got %#v", category, got)
		}
	}
}

func TestNormalizeDeduplicatesCaseInsensitive(t *testing.T) {
	raw := []domain.RawTrendRecord{
		{Query: "Wide Leg Jeans", Popularity: pop(50)},
		{Query: "wide leg jeans", Popularity: pop(80)},
	}
	got := Normalize(raw, "", "Germany", 5)
	if len(got) != 1 {
		t.Fatalf("expected one keyword, got %#v", got)
	}
	if got[0].Term != "wide leg jeans" || got[0].Score != 80 {
		t.Fatalf("expected highest scoring occurrence, got %#v", got[0])
	}
}

func TestNormalizeFiltersSortsAndTruncates(t *testing.T) {
	raw := []domain.RawTrendRecord{
		{Query: "no volume", Popularity: nil, Categories: []string{"fashion"}},
		{Query: "sneakers", Popularity: pop(100), Categories: []string{"Fashion"}},
		{Query: "football", Popularity: pop(900), Categories: []string{"sports"}},
		{Query: "scarf", Popularity: pop(300), Categories: []string{"fashion"}},
		{Query: "boots", Popularity: pop(300), Categories: []string{"fashion"}},
		{Query: "belt", Popularity: pop(10), Categories: []string{"fashion"}},
	}
	got := Normalize(raw, "fashion", "Germany", 3)
	want := []string{"scarf", "boots", "sneakers"}
	if len(got) != len(want) {
		t.Fatalf("unexpected keywords: %#v", got)
	}
	for i, term := range want {
		if got[i].Term != term {
			t.Fatalf("position %d: got %q want %q", i, got[i].Term, term)
		}
		if got[i].Region != "Germany" {
			t.Fatalf("unexpected region %q", got[i].Region)
		}
	}
}

func TestNormalizeNoCategoryMatchIsEmpty(t *testing.T) {
	raw := []domain.RawTrendRecord{
		{Query: "football", Popularity: pop(900), Categories: []string{"sports"}},
	}
	if got := Normalize(raw, "books", "us", 5); len(got) != 0 {
		t.Fatalf("expected empty result on category miss, got %#v", got)
	}
}

func TestNormalizeDefaultTopN(t *testing.T) {
	var raw []domain.RawTrendRecord
	for i := 0; i < 8; i++ {
		raw = append(raw, domain.RawTrendRecord{Query: string(rune('a' + i)), Popularity: pop(float64(i))})
	}
	if got := Normalize(raw, "", "us", 0); len(got) != DefaultTopN {
		t.Fatalf("expected %d keywords, got %d", DefaultTopN, len(got))
	}
}
