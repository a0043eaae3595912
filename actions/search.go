package actions

import (
	"context"
	"errors"
	"strings"

	"github.com/bambooai/panda-gateway/augment"
	"github.com/bambooai/panda-gateway/auth"
	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/config"
	"github.com/bambooai/panda-gateway/llm"
	"github.com/bambooai/panda-gateway/prompts"
	"github.com/bambooai/panda-gateway/retriever"
	"github.com/bambooai/panda-gateway/schema"
	"github.com/bambooai/panda-gateway/summarize"
	"github.com/bambooai/panda-gateway/vectordb"
)

const (
	searchSummaryWords = 1000
	maxKeywords        = 5
)

// ErrNoQuery is returned when a search was requested but the active turn
// carries no text to search for.
var ErrNoQuery = errors.New("search: no text in the active turn")

// SearchRunner augments a request with summarized web results. Every failure
// past query extraction degrades to plain generation: the request is left
// unmodified and the caller forwards it as-is.
type SearchRunner struct {
	engines    []retriever.Engine
	fetcher    *retriever.Fetcher
	persister  *augment.Persister
	summarizer *summarize.Summarizer
	library    *prompts.Library
	provider    llm.Provider
	model       string
	maxResults  int
	targetWords int
}

func NewSearchRunner(
	engines []retriever.Engine,
	fetcher *retriever.Fetcher,
	persister *augment.Persister,
	summarizer *summarize.Summarizer,
	library *prompts.Library,
	provider llm.Provider,
	cfg config.SearchConfig,
	model string,
	targetWords int,
) *SearchRunner {
	if targetWords <= 0 {
		targetWords = searchSummaryWords
	}
	return &SearchRunner{
		engines:     engines,
		fetcher:     fetcher,
		persister:   persister,
		summarizer:  summarizer,
		library:     library,
		provider:    provider,
		model:       model,
		maxResults:  cfg.MaxResults,
		targetWords: targetWords,
	}
}

// Run resolves the query, searches, fetches, persists and injects two system
// messages before the active turn. A nil return with no injection means the
// pipeline degraded; only a missing query is an error. notify, when non-nil,
// receives progress events for streaming clients.
func (s *SearchRunner) Run(ctx context.Context, req *schema.ChatRequest, ident auth.Identity, query string, notify func(schema.ProcessEvent)) error {
	if query == "" {
		query = strings.TrimSpace(req.ActiveTurn().Text())
	}
	if query == "" {
		return ErrNoQuery
	}

	ev := schema.Progress("Searching the web")
	if kw := s.extractKeywords(ctx, query); kw != "" {
		logger.Debugf("search: extracted keywords: %s", kw)
		ev.Data = map[string]interface{}{"keywords": kw}
	}
	if notify != nil {
		notify(ev)
	}

	results := retriever.MultiSearch(ctx, s.engines, query, s.maxResults)
	if len(results) == 0 {
		logger.Infof("search: no results for %q, forwarding unaugmented", query)
		return nil
	}

	docs := s.fetcher.FetchAll(ctx, results)
	if len(docs) == 0 {
		logger.Warnf("search: all %d result fetches failed, forwarding unaugmented", len(results))
		return nil
	}

	s.persister.StoreAsync(ctx, vectordb.PartitionName(ident.UserID), docs)

	contents := make([]string, 0, len(docs))
	for _, d := range docs {
		contents = append(contents, d.Content)
	}
	summary, err := s.summarizer.Summarize(ctx, strings.Join(contents, "\n\n"), s.targetWords)
	if err != nil || summary == "" {
		logger.Warnf("search: summarization failed, forwarding unaugmented: %v", err)
		return nil
	}

	req.InjectBeforeActiveTurn(
		schema.SystemMessage(s.library.SearchSystem(ctx, s.model)),
		schema.SystemMessage(s.library.SearchInformation(ctx, s.model, summary)),
	)
	return nil
}

// extractKeywords asks the model for the key terms of a query. Failures are
// harmless: keywords only feed logging and progress events.
func (s *SearchRunner) extractKeywords(ctx context.Context, query string) string {
	if s.provider == nil {
		return ""
	}
	out, err := s.provider.GenerateCompletion(ctx, s.library.Keywords(ctx, s.model, maxKeywords, query))
	if err != nil {
		logger.Debugf("search: keyword extraction failed: %v", err)
		return ""
	}
	return strings.TrimSpace(out)
}
