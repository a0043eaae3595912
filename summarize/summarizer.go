package summarize

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/config"
	"github.com/bambooai/panda-gateway/llm"
	"github.com/bambooai/panda-gateway/metrics"
	"github.com/bambooai/panda-gateway/prompts"
	"github.com/bambooai/panda-gateway/textsplitter"
)

const (
	// Rough chars-per-token for mixed prose. Used to size chunks so one
	// chunk plus the prompt fits the summarization model's context.
	charsPerToken = 3

	promptOverheadTokens = 150
	minChunkWords        = 50
	chunkSeparator       = "\n\n---\n\n"

	// One condensation pass runs when the joined summary overshoots the
	// target by more than this factor.
	condenseTrigger = 1.2

	chunkOverlapChars = 50
)

// ErrAllChunksFailed reports that no chunk produced a usable summary.
var ErrAllChunksFailed = errors.New("summarization failed for every chunk")

// Summarizer reduces long retrieved text to a target word count with a
// map-reduce pass over the summarization model.
type Summarizer struct {
	provider    llm.Provider
	library     *prompts.Library
	model       string
	ctxTokens   int
	concurrency int64
}

func New(provider llm.Provider, library *prompts.Library, cfg config.SummarizeConfig, model string) *Summarizer {
	ctxTokens := cfg.ContextTokens
	if ctxTokens <= 0 {
		ctxTokens = 4096
	}
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = 5
	}
	return &Summarizer{
		provider:    provider,
		library:     library,
		model:       model,
		ctxTokens:   ctxTokens,
		concurrency: int64(conc),
	}
}

// Summarize reduces text to roughly targetWords words.
func (s *Summarizer) Summarize(ctx context.Context, text string, targetWords int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	if textsplitter.TokenCount(text)+promptOverheadTokens <= s.ctxTokens {
		return s.summarizeOne(ctx, text, targetWords)
	}

	chunkChars := (s.ctxTokens - promptOverheadTokens) * charsPerToken
	splitter := textsplitter.NewRecursiveSplitter(chunkChars, chunkOverlapChars)
	chunks := splitter.Split(text)
	if len(chunks) == 1 {
		return s.summarizeOne(ctx, chunks[0], targetWords)
	}

	perChunk := targetWords / len(chunks)
	if perChunk < minChunkWords {
		perChunk = minChunkWords
	}

	summaries := make([]string, len(chunks))
	sem := semaphore.NewWeighted(s.concurrency)
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, chunk string) {
			defer wg.Done()
			defer sem.Release(1)
			out, err := s.summarizeOne(ctx, chunk, perChunk)
			if err != nil {
				// Failed chunks are dropped, not retried.
				logger.Warnf("summarize: chunk %d/%d failed: %v", i+1, len(chunks), err)
				metrics.IncSummaryChunk("failed")
				return
			}
			if strings.TrimSpace(out) == "" {
				metrics.IncSummaryChunk("empty")
			} else {
				metrics.IncSummaryChunk("ok")
			}
			summaries[i] = out
		}(i, chunk)
	}
	wg.Wait()

	kept := make([]string, 0, len(summaries))
	for _, out := range summaries {
		if strings.TrimSpace(out) != "" {
			kept = append(kept, out)
		}
	}
	if len(kept) == 0 {
		return "", ErrAllChunksFailed
	}
	joined := strings.Join(kept, chunkSeparator)

	if float64(wordCount(joined)) > condenseTrigger*float64(targetWords) {
		condensed, err := s.summarizeOne(ctx, joined, targetWords)
		if err != nil || strings.TrimSpace(condensed) == "" {
			logger.Warnf("summarize: condensation pass failed, keeping joined summary: %v", err)
			return joined, nil
		}
		return condensed, nil
	}
	return joined, nil
}

func (s *Summarizer) summarizeOne(ctx context.Context, text string, targetWords int) (string, error) {
	prompt := s.library.Summarization(ctx, s.model, targetWords, text)
	out, err := s.provider.GenerateCompletion(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
