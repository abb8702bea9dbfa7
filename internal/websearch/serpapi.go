package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/model"
)

const defaultSerpBaseURL = "https://serpapi.com/search"

type SerpConfig struct {
	APIKey     string `json:"api_key"`
	BaseURL    string `json:"base_url"`
	Engine     string `json:"engine"`
	MaxResults int    `json:"max_results"`
	TimeoutSec int    `json:"timeout_sec"`
}

type serpSearcher struct {
	cfg    SerpConfig
	client *http.Client
}

// NewSerpSearcher builds a Searcher over a SerpAPI-compatible endpoint.
func NewSerpSearcher(cfg SerpConfig) Searcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSerpBaseURL
	}
	if cfg.Engine == "" {
		cfg.Engine = "google"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &serpSearcher{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type serpResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

func (s *serpSearcher) Search(ctx context.Context, query string) ([]model.WebSnippet, error) {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, ErrUnavailable
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("engine", s.cfg.Engine)
	params.Set("api_key", s.cfg.APIKey)
	params.Set("num", fmt.Sprintf("%d", s.cfg.MaxResults))

	endpoint := s.cfg.BaseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %s", ErrUnavailable, resp.Status)
	}
	var out serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, out.Error)
	}
	snippets := make([]model.WebSnippet, 0, len(out.OrganicResults))
	for _, item := range out.OrganicResults {
		if len(snippets) >= s.cfg.MaxResults {
			break
		}
		snippets = append(snippets, model.WebSnippet{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
		})
	}
	logutil.GetLogger(ctx).Debug("web search done", zap.Int("results", len(snippets)))
	return snippets, nil
}
