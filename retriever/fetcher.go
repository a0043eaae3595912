package retriever

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/bambooai/panda-gateway/common/httpx"
	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/config"
	"github.com/bambooai/panda-gateway/schema"
)

const maxFetchBytes = 4 << 20

var blankRun = regexp.MustCompile(`\s+`)

// Fetcher downloads result pages and reduces them to plain text.
type Fetcher struct {
	Client      *httpx.Client
	UserAgent   string
	MaxDocChars int
}

func NewFetcher(cfg config.SearchConfig, client *httpx.Client) *Fetcher {
	if client == nil {
		client = httpx.NewFromConfig(nil)
	}
	return &Fetcher{Client: client, UserAgent: cfg.UserAgent, MaxDocChars: cfg.MaxDocChars}
}

// Fetch retrieves one URL and strips it down to readable text.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text/plain") {
		return "", fmt.Errorf("fetch %s: unsupported content type %q", pageURL, ct)
	}
	return f.Clean(io.LimitReader(resp.Body, maxFetchBytes))
}

// Clean extracts readable text from an HTML document.
func (f *Fetcher) Clean(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, header, footer, aside, form, iframe").Remove()
	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}
	text = strings.TrimSpace(blankRun.ReplaceAllString(text, " "))
	if f.MaxDocChars > 0 && len(text) > f.MaxDocChars {
		text = text[:f.MaxDocChars]
	}
	return text, nil
}

// FetchAll downloads every result in parallel and turns the successful ones
// into documents. Fetch failures are logged and skipped.
func (f *Fetcher) FetchAll(ctx context.Context, results []schema.WebResult) []schema.Document {
	type slot struct {
		doc schema.Document
		ok  bool
	}
	slots := make([]slot, len(results))
	var wg sync.WaitGroup
	for i, r := range results {
		wg.Add(1)
		go func(i int, r schema.WebResult) {
			defer wg.Done()
			text, err := f.Fetch(ctx, r.URL)
			if err != nil {
				logger.Warnf("retriever: fetch %s failed: %v", r.URL, err)
				return
			}
			if text == "" {
				text = r.Snippet
			}
			slots[i] = slot{ok: true, doc: schema.Document{
				ID:      uuid.NewString(),
				Content: text,
				Metadata: map[string]interface{}{
					"title":  r.Title,
					"url":    r.URL,
					"source": "web_search",
				},
			}}
		}(i, r)
	}
	wg.Wait()

	var docs []schema.Document
	for _, s := range slots {
		if s.ok {
			docs = append(docs, s.doc)
		}
	}
	return docs
}
