package augment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/config"
	"github.com/bambooai/panda-gateway/embedding"
	"github.com/bambooai/panda-gateway/metrics"
	"github.com/bambooai/panda-gateway/post"
	"github.com/bambooai/panda-gateway/schema"
	"github.com/bambooai/panda-gateway/vectordb"
)

const contextHeader = "Context from the user's previous interactions. Use it only when it is relevant to the current question:"

// ContextAugmenter splices previously stored documents into a request as a
// system message. It degrades to a no-op on any failure: generation must
// never be blocked by the vector store or the reranker.
type ContextAugmenter struct {
	store    vectordb.Store
	embedder embedding.Provider
	reranker post.Reranker
	cfg      config.RAGConfig
}

func NewContextAugmenter(store vectordb.Store, embedder embedding.Provider, reranker post.Reranker, cfg config.RAGConfig) *ContextAugmenter {
	return &ContextAugmenter{store: store, embedder: embedder, reranker: reranker, cfg: cfg}
}

// Augment searches the caller's partition with the active turn's text and,
// when anything relevant is found, injects one system message before the
// active turn. It returns whether the request was modified.
func (a *ContextAugmenter) Augment(ctx context.Context, req *schema.ChatRequest, userID string) bool {
	if a == nil || a.store == nil || a.embedder == nil {
		return false
	}
	if len(req.Messages) == 0 {
		return false
	}
	query := strings.TrimSpace(req.ActiveTurn().Text())
	if query == "" {
		return false
	}

	vec, err := a.embedder.GetEmbedding(ctx, query)
	if err != nil {
		logger.Warnf("augment: embedding failed, skipping context: %v", err)
		return false
	}

	partition := vectordb.PartitionName(userID)
	start := time.Now()
	results, err := a.store.SearchDocs(ctx, partition, vec, schema.SearchOptions{
		TopK:      a.cfg.TopK,
		Partition: partition,
	})
	if err != nil {
		logger.Warnf("augment: vector search in %s failed, skipping context: %v", partition, err)
		return false
	}
	metrics.ObserveVectorSearch(start)
	if len(results) == 0 {
		return false
	}

	if a.reranker != nil {
		results, err = a.reranker.Rerank(ctx, query, results, a.cfg.TopK)
		if err != nil {
			logger.Warnf("augment: rerank failed, using store order: %v", err)
		}
	}

	results = post.Filter(results, a.cfg.Threshold, a.cfg.MaxContextDocs)
	if len(results) == 0 {
		return false
	}

	var b strings.Builder
	b.WriteString(contextHeader)
	for i, r := range results {
		fmt.Fprintf(&b, "\n\n[%d] %s", i+1, strings.TrimSpace(r.Document.Content))
	}
	req.InjectBeforeActiveTurn(schema.SystemMessage(b.String()))
	logger.Debugf("augment: injected %d context documents for partition %s", len(results), partition)
	return true
}
