// Mock rerank service for local development. Speaks the BGE/Cohere-style
// wire format the gateway's reranker client uses.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sort"
)

type rerankReq struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopN      int      `json:"top_n,omitempty"`
}

type result struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResp struct {
	Results []result `json:"results"`
}

func handleRerank(w http.ResponseWriter, r *http.Request) {
	var req rerankReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Longer documents score higher; good enough to exercise ordering.
	out := rerankResp{}
	for i, d := range req.Documents {
		out.Results = append(out.Results, result{Index: i, RelevanceScore: float64(len(d)) / 1000})
	}
	sort.Slice(out.Results, func(i, j int) bool {
		return out.Results[i].RelevanceScore > out.Results[j].RelevanceScore
	})
	if req.TopN > 0 && len(out.Results) > req.TopN {
		out.Results = out.Results[:req.TopN]
	}
	_ = json.NewEncoder(w).Encode(out)
}

func main() {
	addr := ":8082"
	if v := os.Getenv("RERANK_ADDR"); v != "" {
		addr = v
	}
	http.HandleFunc("POST /rerank", handleRerank)
	log.Printf("Reranker mock listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
