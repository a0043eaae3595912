package post

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/bambooai/panda-gateway/common/httpx"
	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/config"
	"github.com/bambooai/panda-gateway/schema"
)

// Reranker reorders candidates, typically using an external cross-encoder
// service. Implementations degrade to the input order on failure; reranking
// is an improvement step, never a gate.
type Reranker interface {
	Rerank(ctx context.Context, query string, in []schema.SearchResult, topN int) ([]schema.SearchResult, error)
}

// ModelReranker calls a dedicated reranking model service (BGE-reranker,
// Cohere rerank and compatible APIs).
// Request:  {"query":"...","documents":["..."],"model":"...","top_n":10}
// Response: {"results":[{"index":0,"relevance_score":0.93}]}
type ModelReranker struct {
	Endpoint string
	Model    string
	APIKey   string
	Client   *httpx.Client
}

func NewModelReranker(cfg config.RerankConfig, client *httpx.Client) *ModelReranker {
	if client == nil {
		client = httpx.NewFromConfig(nil)
	}
	return &ModelReranker{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		Client:   client,
	}
}

type modelRerankReq struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopN      int      `json:"top_n,omitempty"`
}

type modelRerankResp struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func truncate(in []schema.SearchResult, topN int) []schema.SearchResult {
	if topN > 0 && len(in) > topN {
		return append([]schema.SearchResult(nil), in[:topN]...)
	}
	return in
}

func (m *ModelReranker) Rerank(ctx context.Context, query string, in []schema.SearchResult, topN int) ([]schema.SearchResult, error) {
	if m.Endpoint == "" || len(in) == 0 {
		return truncate(in, topN), nil
	}

	documents := make([]string, len(in))
	for i, result := range in {
		documents[i] = result.Document.Content
	}
	bs, _ := json.Marshal(modelRerankReq{
		Query:     query,
		Documents: documents,
		Model:     m.Model,
		TopN:      topN,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(bs))
	if err != nil {
		return truncate(in, topN), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if m.APIKey != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.APIKey))
	}

	resp, err := m.Client.Do(httpReq)
	if err != nil {
		logger.Warnf("rerank: request failed: %v, using original order", err)
		return truncate(in, topN), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warnf("rerank: server returned status %d, using original order", resp.StatusCode)
		return truncate(in, topN), nil
	}

	var rr modelRerankResp
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil || len(rr.Results) == 0 {
		logger.Warnf("rerank: unusable response (err=%v), using original order", err)
		return truncate(in, topN), nil
	}

	out := make([]schema.SearchResult, 0, len(rr.Results))
	for _, result := range rr.Results {
		if result.Index >= 0 && result.Index < len(in) {
			c := in[result.Index]
			c.Score = result.RelevanceScore
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}
