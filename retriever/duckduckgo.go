package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bambooai/panda-gateway/common/httpx"
	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/schema"
)

// DuckDuckGoEngine queries the DuckDuckGo Instant Answer API. No key needed.
type DuckDuckGoEngine struct {
	Endpoint  string
	UserAgent string
	Client    *httpx.Client
}

func (d *DuckDuckGoEngine) Name() string { return "duckduckgo" }

func (d *DuckDuckGoEngine) Search(ctx context.Context, query string, maxResults int) ([]schema.WebResult, error) {
	endpoint := "https://api.duckduckgo.com/"
	if d.Endpoint != "" {
		endpoint = d.Endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}

	if d.Client == nil {
		d.Client = httpx.NewFromConfig(nil)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("duckduckgo api returned status %d", resp.StatusCode)
	}

	var ddgResp struct {
		AbstractText   string `json:"AbstractText"`
		AbstractSource string `json:"AbstractSource"`
		AbstractURL    string `json:"AbstractURL"`
		RelatedTopics  []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ddgResp); err != nil {
		return nil, err
	}

	results := make([]schema.WebResult, 0, maxResults)
	if ddgResp.AbstractText != "" {
		results = append(results, schema.WebResult{
			Title:   ddgResp.AbstractSource,
			URL:     ddgResp.AbstractURL,
			Snippet: ddgResp.AbstractText,
		})
	}
	for _, topic := range ddgResp.RelatedTopics {
		if len(results) >= maxResults {
			break
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		// Title is usually the text before " - "
		title := topic.Text
		if len(title) > 100 {
			title = title[:100]
		}
		results = append(results, schema.WebResult{
			Title:   title,
			URL:     topic.FirstURL,
			Snippet: topic.Text,
		})
	}

	logger.Infof("retriever: duckduckgo returned %d results for query: %s", len(results), query)
	return results, nil
}
