package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bambooai/panda-gateway/common/httpx"
	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/schema"
)

// BraveEngine queries the Brave Search API.
type BraveEngine struct {
	Endpoint string
	APIKey   string
	Client   *httpx.Client
}

func (b *BraveEngine) Name() string { return "brave" }

func (b *BraveEngine) Search(ctx context.Context, query string, maxResults int) ([]schema.WebResult, error) {
	if b.APIKey == "" {
		return nil, fmt.Errorf("brave search requires api key")
	}
	endpoint := "https://api.search.brave.com/res/v1/web/search"
	if b.Endpoint != "" {
		endpoint = b.Endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(maxResults))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	if b.Client == nil {
		b.Client = httpx.NewFromConfig(nil)
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("brave api returned status %d", resp.StatusCode)
	}

	var braveResp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&braveResp); err != nil {
		return nil, err
	}

	results := make([]schema.WebResult, 0, len(braveResp.Web.Results))
	for _, v := range braveResp.Web.Results {
		if len(results) >= maxResults {
			break
		}
		results = append(results, schema.WebResult{
			Title:   v.Title,
			URL:     v.URL,
			Snippet: v.Description,
		})
	}

	logger.Infof("retriever: brave returned %d results for query: %s", len(results), query)
	return results, nil
}
