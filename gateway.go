// Package gateway assembles the request-processing components of the
// chat-completion gateway from configuration.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/bambooai/panda-gateway/actions"
	"github.com/bambooai/panda-gateway/augment"
	"github.com/bambooai/panda-gateway/auth"
	"github.com/bambooai/panda-gateway/cache"
	"github.com/bambooai/panda-gateway/common/httpx"
	"github.com/bambooai/panda-gateway/config"
	"github.com/bambooai/panda-gateway/embedding"
	"github.com/bambooai/panda-gateway/llm"
	"github.com/bambooai/panda-gateway/metrics"
	"github.com/bambooai/panda-gateway/pdfparse"
	"github.com/bambooai/panda-gateway/post"
	"github.com/bambooai/panda-gateway/prompts"
	"github.com/bambooai/panda-gateway/retriever"
	"github.com/bambooai/panda-gateway/summarize"
	"github.com/bambooai/panda-gateway/textsplitter"
	"github.com/bambooai/panda-gateway/vectordb"
)

// Gateway holds every wired component. The server package drives it; tests
// construct partial instances directly.
type Gateway struct {
	Config     *config.Config
	Auth       *auth.Authenticator
	Dispatcher *actions.Dispatcher
	Search     *actions.SearchRunner
	PDF        *actions.PDFRunner
	Context    *augment.ContextAugmenter
	Persister  *augment.Persister
	Relay      *llm.Relay
	Summarizer *summarize.Summarizer
	Library    *prompts.Library
	ModelCache cache.Cache[[]byte]

	store vectordb.Store
}

// New wires the gateway from validated configuration. Optional subsystems
// (vector store, classifier) come up nil-safe: a missing vector store
// disables persistence and context augmentation, nothing else.
func New(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	g := &Gateway{Config: cfg}
	metrics.MustRegister()

	authenticator, err := auth.New(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("create authenticator failed, err: %w", err)
	}
	g.Auth = authenticator

	client := httpx.NewFromConfig(cfg.HTTP)
	g.Library = prompts.NewLibrary(cfg.Prompts, client)
	g.ModelCache = cache.NewLRU[[]byte](8, time.Minute)
	g.Relay = llm.NewRelay(cfg.Backend)

	var provider llm.Provider
	var classifier llm.ToolClassifier
	if cfg.LLM.Provider != "" {
		p := llm.NewOpenAIProvider(cfg.LLM)
		provider = p
		classifier = p
	}
	g.Dispatcher = actions.NewDispatcher(classifier)
	g.Summarizer = summarize.New(provider, g.Library, cfg.Summarize, cfg.LLM.Model)

	splitter := textsplitter.NewRecursiveSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)

	var embedder embedding.Provider
	if cfg.Embedding.Provider != "" {
		embedder = embedding.NewOpenAIProvider(cfg.Embedding)
	}

	switch cfg.VectorDB.Provider {
	case "milvus":
		store, err := vectordb.NewMilvusStore(ctx, cfg.VectorDB, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("create vector store failed, err: %w", err)
		}
		g.store = store
	case "memory":
		g.store = vectordb.NewMemoryStore()
	}

	g.Persister = augment.NewPersister(g.store, embedder, splitter)

	reranker := post.NewModelReranker(cfg.Rerank, client)
	g.Context = augment.NewContextAugmenter(g.store, embedder, reranker, cfg.RAG)

	engines, err := retriever.EnginesFromConfig(cfg.Search, client)
	if err != nil {
		return nil, fmt.Errorf("create search engines failed, err: %w", err)
	}
	fetcher := retriever.NewFetcher(cfg.Search, client)
	g.Search = actions.NewSearchRunner(engines, fetcher, g.Persister, g.Summarizer, g.Library, provider, cfg.Search, cfg.LLM.Model, cfg.Summarize.SearchTargetWords)

	parser := pdfparse.New(cfg.PDF, client)
	g.PDF = actions.NewPDFRunner(parser, g.Persister, g.Summarizer, g.Library, cfg.LLM.Model, cfg.Summarize.PDFTargetWords)

	return g, nil
}

// Close drains background persistence and releases the vector store.
func (g *Gateway) Close() error {
	g.Persister.Wait()
	if g.store != nil {
		return g.store.Close()
	}
	return nil
}
