package actions

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bambooai/panda-gateway/augment"
	"github.com/bambooai/panda-gateway/auth"
	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/pdfparse"
	"github.com/bambooai/panda-gateway/prompts"
	"github.com/bambooai/panda-gateway/schema"
	"github.com/bambooai/panda-gateway/summarize"
	"github.com/bambooai/panda-gateway/vectordb"
)

const pdfSummaryWords = 500

// ErrNoPDF is returned when the PDF action was requested but the active turn
// holds no inline PDF documents.
var ErrNoPDF = errors.New("pdf: no pdf_url parts in the active turn")

// PDFRunner extracts, parses and summarizes inline PDFs. Unlike search, a
// failure here is fatal to the request: the caller asked for the document to
// be read, so a silent fallback would be a wrong answer.
type PDFRunner struct {
	parser      *pdfparse.Parser
	persister   *augment.Persister
	summarizer  *summarize.Summarizer
	library     *prompts.Library
	model       string
	targetWords int
}

func NewPDFRunner(parser *pdfparse.Parser, persister *augment.Persister, summarizer *summarize.Summarizer, library *prompts.Library, model string, targetWords int) *PDFRunner {
	if targetWords <= 0 {
		targetWords = pdfSummaryWords
	}
	return &PDFRunner{
		parser:      parser,
		persister:   persister,
		summarizer:  summarizer,
		library:     library,
		model:       model,
		targetWords: targetWords,
	}
}

// Run parses every inline PDF in the active turn, persists the text in the
// background, injects one system message with the summary and strips the PDF
// parts from the turn. notify fires only after extraction and decoding
// succeed, so validation errors reach the caller before any frame goes out.
func (p *PDFRunner) Run(ctx context.Context, req *schema.ChatRequest, ident auth.Identity, notify func(schema.ProcessEvent)) error {
	turn := req.ActiveTurn()
	parts, err := turn.PDFParts()
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return ErrNoPDF
	}

	payloads := make([][]byte, len(parts))
	for i, part := range parts {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(part.PDFURL.URL, schema.PDFDataURIPrefix))
		if err != nil {
			return fmt.Errorf("document %d: %w: %v", i, schema.ErrBadPDFURL, err)
		}
		payloads[i] = raw
	}

	if notify != nil {
		notify(schema.Progress("Reading your document"))
	}

	texts := make([]string, len(payloads))
	g, gctx := errgroup.WithContext(ctx)
	for i, data := range payloads {
		g.Go(func() error {
			text, err := p.parser.Parse(gctx, data)
			if err != nil {
				return fmt.Errorf("document %d: %w", i, err)
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	docs := make([]schema.Document, len(texts))
	for i, text := range texts {
		docs[i] = schema.Document{
			ID:       uuid.NewString(),
			Content:  text,
			Metadata: map[string]any{"source": "pdf", "document": i},
		}
	}
	p.persister.StoreAsync(ctx, vectordb.PartitionName(ident.UserID), docs)

	summary, err := p.summarizer.Summarize(ctx, strings.Join(texts, "\n\n---\n\n"), p.targetWords)
	if err != nil {
		return fmt.Errorf("pdf: summarize: %w", err)
	}

	req.InjectBeforeActiveTurn(schema.SystemMessage(p.library.PDF(ctx, p.model, summary)))
	turn = req.ActiveTurn()
	turn.StripPDFParts()
	logger.Infof("pdf: augmented request with %d parsed documents", len(docs))
	return nil
}
