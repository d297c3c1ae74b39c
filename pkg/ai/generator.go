package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TextGenerator generates text for a single prompt. Implementations make
// exactly one attempt and report failures as *GenerationError.
type TextGenerator interface {
	GenerateText(ctx context.Context, model, prompt string) (string, error)
}

// ProviderConfig selects and configures a generation backend.
type ProviderConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// NewGenerator builds the TextGenerator named by cfg.Provider.
func NewGenerator(cfg ProviderConfig) (TextGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "gemini"
	}
	switch provider {
	case "gemini":
		client, err := NewGeminiClient(cfg.APIKey)
		if err != nil {
			return nil, err
		}
		if cfg.BaseURL != "" {
			client.baseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		if cfg.Timeout > 0 {
			client.httpClient.Timeout = cfg.Timeout
		}
		return client, nil
	case "ollama":
		client := NewOllamaClient(cfg.BaseURL)
		if cfg.Timeout > 0 {
			client.httpClient.Timeout = cfg.Timeout
		}
		return client, nil
	case "openai", "openai-compat":
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("openai-compat base URL required")
		}
		client := NewOpenAICompatClient(cfg.BaseURL, cfg.APIKey)
		if cfg.Timeout > 0 {
			client.httpClient.Timeout = cfg.Timeout
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", provider)
	}
}

// postJSON sends payload and decodes a successful response into out.
// errMessage extracts a provider error message from a failed response body.
func postJSON(ctx context.Context, httpClient *http.Client, provider, url string, headers map[string]string, payload, out any, errMessage func([]byte) string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &GenerationError{Provider: provider, Kind: KindProvider, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &GenerationError{Provider: provider, Kind: KindProvider, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return transportError(provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := ""
		if errMessage != nil {
			msg = errMessage(raw)
		}
		if msg == "" {
			msg = resp.Status
		}
		return statusError(provider, resp.StatusCode, fmt.Sprintf("%s api error: %s", provider, msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &GenerationError{Provider: provider, Kind: KindProvider, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
