package post

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bambooai/panda-gateway/common/httpx"
	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/schema"
)

func init() { logger.Disable() }

func candidates(contents ...string) []schema.SearchResult {
	out := make([]schema.SearchResult, len(contents))
	for i, c := range contents {
		out[i] = schema.SearchResult{Document: schema.Document{ID: c, Content: c}, Score: 0.5}
	}
	return out
}

func TestModelRerankerReorders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req modelRerankReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Documents) != 2 || req.Query != "q" {
			t.Errorf("bad request: %+v", req)
		}
		io.WriteString(w, `{"results":[{"index":1,"relevance_score":0.9},{"index":0,"relevance_score":0.2}]}`)
	}))
	defer srv.Close()

	m := &ModelReranker{Endpoint: srv.URL, Client: httpx.New(httpx.Options{Timeout: time.Second})}
	out, err := m.Rerank(context.Background(), "q", candidates("a", "b"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].Document.ID != "b" {
		t.Errorf("order: %+v", out)
	}
	if out[0].Score != 0.9 {
		t.Errorf("score not applied: %v", out[0].Score)
	}
}

func TestModelRerankerPassthroughOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := &ModelReranker{Endpoint: srv.URL, Client: httpx.New(httpx.Options{Timeout: time.Second})}
	out, err := m.Rerank(context.Background(), "q", candidates("a", "b", "c"), 2)
	if err != nil {
		t.Fatal(err)
	}
	// Original order, trimmed to topN.
	if len(out) != 2 || out[0].Document.ID != "a" {
		t.Errorf("passthrough failed: %+v", out)
	}
}

func TestModelRerankerNoEndpoint(t *testing.T) {
	m := &ModelReranker{}
	out, err := m.Rerank(context.Background(), "q", candidates("a", "b"), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Document.ID != "a" {
		t.Errorf("got %+v", out)
	}
}

func TestFilterThresholdDedupCap(t *testing.T) {
	in := []schema.SearchResult{
		{Document: schema.Document{ID: "1", Content: "The  Quick Brown Fox"}, Score: 0.9},
		{Document: schema.Document{ID: "2", Content: "the quick brown fox"}, Score: 0.8}, // dup after normalization
		{Document: schema.Document{ID: "3", Content: "below threshold"}, Score: 0.1},
		{Document: schema.Document{ID: "4", Content: "second unique"}, Score: 0.7},
		{Document: schema.Document{ID: "5", Content: "third unique"}, Score: 0.6},
	}
	out := Filter(in, 0.5, 2)
	if len(out) != 2 {
		t.Fatalf("got %d results", len(out))
	}
	if out[0].Document.ID != "1" || out[1].Document.ID != "4" {
		t.Errorf("unexpected survivors: %+v", out)
	}
}

func TestFilterEmptyInput(t *testing.T) {
	if out := Filter(nil, 0.5, 3); out != nil {
		t.Errorf("got %+v, want nil", out)
	}
}
