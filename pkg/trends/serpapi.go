package trends

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"trendscribe/pkg/domain"
)

const (
	serpAPIProvider       = "serpapi"
	defaultSerpAPIBaseURL = "https://serpapi.com/search.json"
	serpAPIEngine         = "google_trends_trending_now"
	serpAPIRelatedEngine  = "google_trends"
	defaultSerpAPITimeout = 15 * time.Second
	maxSerpAPIBody        = 4 << 20
)

// Provider category ids mapped onto catalog categories.
var providerCategoryLabels = map[int][]string{
	1:  {"automotive"},
	2:  {"beauty", "fashion", "apparel", "luxury"},
	6:  {"toys"},
	8:  {"toys", "home-garden", "books"},
	9:  {"books"},
	16: {"luxury", "apparel", "fashion", "home-garden", "electronics"},
	17: {"sports"},
	18: {"technology", "electronics"},
}

var categoryProviderID = map[string]int{
	"automotive":  1,
	"beauty":      2,
	"fashion":     2,
	"apparel":     2,
	"luxury":      16,
	"toys":        6,
	"home-garden": 8,
	"books":       9,
	"sports":      17,
	"technology":  18,
	"electronics": 18,
}

// SerpAPIConfig configures SerpAPISource.
type SerpAPIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// SerpAPISource reads the Google Trends "trending now" list through SerpAPI.
type SerpAPISource struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewSerpAPISource(cfg SerpAPIConfig) (*SerpAPISource, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("serpapi api key required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultSerpAPIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSerpAPITimeout
	}
	return &SerpAPISource{
		apiKey:     cfg.APIKey,
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type serpResponse struct {
	Error                string               `json:"error"`
	TrendingSearches     []serpTrendingSearch `json:"trending_searches"`
	TrendingSearchesDays []struct {
		TrendingSearches []serpDailySearch `json:"trendingSearches"`
	} `json:"trendingSearchesDays"`
}

type serpTrendingSearch struct {
	Query        string         `json:"query"`
	SearchVolume *float64       `json:"search_volume"`
	Categories   []serpCategory `json:"categories"`
}

type serpCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type serpDailySearch struct {
	Title            json.RawMessage `json:"title"`
	FormattedTraffic string          `json:"formattedTraffic"`
}

func (s *SerpAPISource) FetchRawTrends(ctx context.Context, category, regionCode string, windowHours int) ([]domain.RawTrendRecord, error) {
	params := url.Values{}
	params.Set("engine", serpAPIEngine)
	params.Set("geo", strings.ToUpper(strings.TrimSpace(regionCode)))
	params.Set("hours", strconv.Itoa(windowBucket(windowHours)))
	params.Set("api_key", s.apiKey)
	categoryKey := strings.ToLower(strings.TrimSpace(category))
	if id, ok := categoryProviderID[categoryKey]; ok {
		params.Set("category_id", strconv.Itoa(id))
	}

	body, status, err := s.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var parsed serpResponse
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&parsed); err != nil {
		return nil, &ProviderError{Provider: serpAPIProvider, Kind: KindMalformed, Status: status, Err: err}
	}
	if parsed.Error != "" {
		return nil, &ProviderError{Provider: serpAPIProvider, Kind: KindEmpty, Status: status, Err: errors.New(parsed.Error)}
	}

	var records []domain.RawTrendRecord
	switch {
	case len(parsed.TrendingSearches) > 0:
		records = trendingNowRecords(parsed.TrendingSearches)
	case len(parsed.TrendingSearchesDays) > 0:
		// The daily shape has no per-record categories; the request was
		// already scoped by category_id.
		var labels []string
		if _, ok := categoryProviderID[categoryKey]; ok {
			labels = []string{categoryKey}
		}
		records = dailyRecords(parsed.TrendingSearchesDays[0].TrendingSearches, labels)
	}
	if len(records) == 0 {
		return nil, &ProviderError{Provider: serpAPIProvider, Kind: KindEmpty, Status: status, Err: errors.New("no trending searches in response")}
	}
	return records, nil
}

type serpRelatedResponse struct {
	Error         string `json:"error"`
	RelatedTopics struct {
		Top    []serpRelatedTopic `json:"top"`
		Rising []serpRelatedTopic `json:"rising"`
	} `json:"related_topics"`
}

type serpRelatedTopic struct {
	Topic struct {
		Title string `json:"title"`
	} `json:"topic"`
	Query          string `json:"query"`
	ExtractedValue *int   `json:"extracted_value"`
}

// FetchRelatedTopics reads the related-topics panel for keyword over the
// last days days. Top topics are preferred over rising ones.
func (s *SerpAPISource) FetchRelatedTopics(ctx context.Context, keyword, regionCode string, days int) ([]RawRelatedTopic, error) {
	if days <= 0 {
		days = defaultRelatedDays
	}
	params := url.Values{}
	params.Set("engine", serpAPIRelatedEngine)
	params.Set("data_type", "RELATED_TOPICS")
	params.Set("q", keyword)
	params.Set("geo", strings.ToUpper(strings.TrimSpace(regionCode)))
	params.Set("date", relatedDateRange(days))
	params.Set("api_key", s.apiKey)

	body, status, err := s.get(ctx, params)
	if err != nil {
		return nil, err
	}
	var parsed serpRelatedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ProviderError{Provider: serpAPIProvider, Kind: KindMalformed, Status: status, Err: err}
	}
	if parsed.Error != "" {
		return nil, &ProviderError{Provider: serpAPIProvider, Kind: KindEmpty, Status: status, Err: errors.New(parsed.Error)}
	}
	items := parsed.RelatedTopics.Top
	if len(items) == 0 {
		items = parsed.RelatedTopics.Rising
	}
	out := make([]RawRelatedTopic, 0, len(items))
	for _, item := range items {
		title := cleanTerm(item.Topic.Title)
		if title == "" {
			title = cleanTerm(item.Query)
		}
		if title == "" {
			continue
		}
		out = append(out, RawRelatedTopic{Topic: title, Value: item.ExtractedValue})
	}
	if len(out) == 0 {
		return nil, &ProviderError{Provider: serpAPIProvider, Kind: KindEmpty, Status: status, Err: errors.New("no related topics in response")}
	}
	return out, nil
}

// get performs one search call and returns the body of a successful reply.
func (s *SerpAPISource) get(ctx context.Context, params url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, &ProviderError{Provider: serpAPIProvider, Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, transportError(serpAPIProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSerpAPIBody))
	if err != nil {
		return nil, resp.StatusCode, transportError(serpAPIProvider, err)
	}
	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, statusError(resp, body)
	}
	return body, resp.StatusCode, nil
}

// relatedDateRange maps a day count onto the provider's range presets.
func relatedDateRange(days int) string {
	switch {
	case days <= 1:
		return "now 1-d"
	case days <= 7:
		return "now 7-d"
	case days <= 30:
		return "today 1-m"
	case days <= 90:
		return "today 3-m"
	default:
		return "today 12-m"
	}
}

func trendingNowRecords(searches []serpTrendingSearch) []domain.RawTrendRecord {
	out := make([]domain.RawTrendRecord, 0, len(searches))
	for i, search := range searches {
		query := cleanTerm(search.Query)
		if query == "" {
			continue
		}
		var labels []string
		for _, c := range search.Categories {
			if name := strings.ToLower(strings.TrimSpace(c.Name)); name != "" {
				labels = append(labels, name)
			}
			labels = append(labels, providerCategoryLabels[c.ID]...)
		}
		out = append(out, domain.RawTrendRecord{
			Query:      query,
			Popularity: search.SearchVolume,
			Categories: labels,
			Position:   i,
		})
	}
	return out
}

func dailyRecords(searches []serpDailySearch, labels []string) []domain.RawTrendRecord {
	out := make([]domain.RawTrendRecord, 0, len(searches))
	for i, search := range searches {
		query := cleanTerm(dailyTitle(search.Title))
		if query == "" {
			continue
		}
		out = append(out, domain.RawTrendRecord{
			Query:      query,
			Popularity: parseTraffic(search.FormattedTraffic),
			Categories: append([]string(nil), labels...),
			Position:   i,
		})
	}
	return out
}

// dailyTitle accepts both a bare string and an object with a query field.
func dailyTitle(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var title string
	if err := json.Unmarshal(raw, &title); err == nil {
		return title
	}
	var obj struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Query
	}
	return ""
}

// parseTraffic reads values like "200K+", "1M+" or "2,000+". Unparseable
// input yields nil.
func parseTraffic(raw string) *float64 {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "+")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return nil
	}
	multiplier := 1.0
	switch strings.ToUpper(s[len(s)-1:]) {
	case "K":
		multiplier = 1e3
		s = s[:len(s)-1]
	case "M":
		multiplier = 1e6
		s = s[:len(s)-1]
	case "B":
		multiplier = 1e9
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || n < 0 {
		return nil
	}
	v := n * multiplier
	return &v
}

// cleanTerm strips markup and entities from a provider title.
func cleanTerm(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return strings.Join(strings.Fields(raw), " ")
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}

// windowBucket rounds a window up to one the provider supports.
func windowBucket(hours int) int {
	switch {
	case hours <= 0:
		return 24
	case hours <= 4:
		return 4
	case hours <= 24:
		return 24
	case hours <= 48:
		return 48
	default:
		return 168
	}
}

func statusError(resp *http.Response, body []byte) *ProviderError {
	kind := KindNetwork
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	case http.StatusTooManyRequests:
		kind = KindRateLimit
	}
	msg := strings.TrimSpace(string(body))
	var parsed serpResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		msg = parsed.Error
	}
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return &ProviderError{
		Provider:   serpAPIProvider,
		Kind:       kind,
		Status:     resp.StatusCode,
		RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		Err:        fmt.Errorf("status %d: %s", resp.StatusCode, msg),
	}
}

func retryAfter(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
