// Package pdfparse extracts text from uploaded PDFs through an external
// parse service, deciding per document whether OCR is needed and whether to
// split the work into page-range chunks.
package pdfparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bambooai/panda-gateway/common/httpx"
	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/config"
	"github.com/bambooai/panda-gateway/metrics"
)

// Parser is a client of the PDF parse service. The chunk semaphore is shared
// across requests so concurrent uploads cannot oversubscribe the service.
type Parser struct {
	endpoint string
	client   *httpx.Client
	cfg      config.PDFConfig
	sem      *semaphore.Weighted
}

func New(cfg config.PDFConfig, client *httpx.Client) *Parser {
	if client == nil {
		client = httpx.NewFromConfig(nil)
	}
	return &Parser{
		endpoint: strings.TrimRight(cfg.ParserEndpoint, "/"),
		client:   client,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
	}
}

// parseResponse is the parse service response format.
type parseResponse struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
	Error string `json:"error,omitempty"`
}

// PageCount estimates the page count from raw PDF bytes by counting page
// object markers. Good enough to size chunks and the OCR heuristic; the
// parse service reports the exact count.
func PageCount(data []byte) int {
	n := bytes.Count(data, []byte("/Type /Page")) - bytes.Count(data, []byte("/Type /Pages"))
	n += bytes.Count(data, []byte("/Type/Page")) - bytes.Count(data, []byte("/Type/Pages"))
	if n < 1 {
		return 1
	}
	return n
}

// Parse extracts the full text of one document. Large documents are split
// into page ranges parsed concurrently; chunk boundaries are page
// boundaries. Any chunk failure fails the document.
func (p *Parser) Parse(ctx context.Context, data []byte) (string, error) {
	pages := PageCount(data)
	metrics.ObservePDFPages(pages)
	ocr := len(data)/pages >= p.cfg.OCRPageBytes
	if ocr {
		logger.Infof("pdfparse: %d bytes over %d pages, enabling OCR", len(data), pages)
	}

	if len(data) <= p.cfg.ChunkBytes || pages <= p.cfg.ChunkPages {
		text, err := p.parseRange(ctx, data, ocr, 0, 0)
		if err != nil {
			return "", err
		}
		return p.checkText(text)
	}

	var ranges [][2]int
	for first := 1; first <= pages; first += p.cfg.ChunkPages {
		last := first + p.cfg.ChunkPages - 1
		if last > pages {
			last = pages
		}
		ranges = append(ranges, [2]int{first, last})
	}
	logger.Infof("pdfparse: splitting %d pages into %d ranges", pages, len(ranges))

	texts := make([]string, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		i, r := i, r
		g.Go(func() error {
			if err := p.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer p.sem.Release(1)
			text, err := p.parseRange(gctx, data, ocr, r[0], r[1])
			if err != nil {
				return fmt.Errorf("pages %d-%d: %w", r[0], r[1], err)
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return p.checkText(strings.Join(texts, "\n\f"))
}

func (p *Parser) checkText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if len(text) < p.cfg.MinTextChars {
		return "", fmt.Errorf("extracted only %d chars of text, document may be image-only", len(text))
	}
	return text, nil
}

func (p *Parser) parseRange(ctx context.Context, data []byte, ocr bool, first, last int) (string, error) {
	u := p.endpoint + "/parse?ocr=" + strconv.FormatBool(ocr)
	if first > 0 {
		u += fmt.Sprintf("&first_page=%d&last_page=%d", first, last)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling PDF service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("PDF service returned status %d", resp.StatusCode)
	}
	var result parseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("PDF parse error: %s", result.Error)
	}
	return result.Text, nil
}
