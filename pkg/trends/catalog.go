package trends

import (
	"sort"
	"strings"
)

var seedCatalog = map[string][]string{
	"luxury":      {"luxury goods", "premium products", "high-end"},
	"apparel":     {"clothing", "fashion", "apparel", "style"},
	"electronics": {"electronics", "gadgets", "technology", "smart devices"},
	"technology":  {"technology", "gadgets", "smart devices", "software"},
	"fashion":     {"fashion", "style", "trendy", "clothing"},
	"toys":        {"toys", "games", "children", "kids"},
	"home-garden": {"home decor", "garden", "furniture", "interior"},
	"sports":      {"sports", "fitness", "outdoor", "athletic"},
	"beauty":      {"beauty", "cosmetics", "skincare", "makeup"},
	"automotive":  {"cars", "automotive", "vehicles", "auto"},
	"books":       {"books", "reading", "literature", "education"},
}

const blankCategorySeed = "trending"

// SeedFor returns the static seed terms for category. Lookup ignores case.
// Unknown categories yield the category itself. The returned slice is a copy.
func SeedFor(category string) []string {
	key := strings.ToLower(strings.TrimSpace(category))
	if key == "" {
		return []string{blankCategorySeed}
	}
	seeds, ok := seedCatalog[key]
	if !ok {
		return []string{strings.TrimSpace(category)}
	}
	out := make([]string, len(seeds))
	copy(out, seeds)
	return out
}

// Categories lists the catalog keys in sorted order.
func Categories() []string {
	out := make([]string, 0, len(seedCatalog))
	for key := range seedCatalog {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
