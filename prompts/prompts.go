package prompts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bambooai/panda-gateway/cache"
	"github.com/bambooai/panda-gateway/common/httpx"
	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/config"
)

// Usage names accepted by Get.
const (
	UsageDefault   = "default"
	UsageSearch    = "search"
	UsageSearchCtx = "search_information"
	UsagePDF       = "pdf"
	UsageSummary   = "summarization"
	UsageKeywords  = "keywords"
)

var builtin = map[string]string{
	UsageDefault: `You are a helpful assistant, named "Panda".
The current time is %s.
Use markdown formatting in your response when appropriate.`,

	UsageSearch: `You are a helpful assistant who answers from the given search results.
If the results do not contain the answer, start your answer with: "I couldn't find that in the search results."
But try to answer the question based on your knowledge, not the search results.
Provide a comprehensive answer.`,

	UsageSearchCtx: `Search results:
%s

Use these search results to inform your response.`,

	UsagePDF: `You are a helpful assistant who answers from the given PDF text.
If the text does not contain the answer, include the following text to your answer: "I couldn't find that in the PDF text."
But try to answer the question based on the PDF text.
Based on these PDF text and the user's query, provide a comprehensive answer.

--- PDF TEXT START ---
%s
--- PDF TEXT END ---

Answer:`,

	UsageSummary: `Summarize the following text in approximately %d words:

text: %s`,

	UsageKeywords: `Extract the top %d most important keywords from the following query.
Return the keywords as a comma-separated list. For example, if the query is
'What are the latest advancements in AI for healthcare?', you should return
'AI, healthcare, latest advancements'.

Do not include any other text in your response.
If you cannot find %d keywords, return as many as you can find.

Query:
%s

Keywords:`,
}

// Library serves system prompts, preferring the remote prompt service when
// one is configured and falling back to the built-in texts.
type Library struct {
	endpoint string
	apiKey   string
	client   *httpx.Client
	cache    cache.Cache[string]
	ttl      time.Duration
}

func NewLibrary(cfg config.PromptsConfig, client *httpx.Client) *Library {
	if client == nil {
		client = httpx.NewFromConfig(nil)
	}
	return &Library{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		client:   client,
		cache:    cache.NewLRU[string](64, cfg.CacheTTL),
		ttl:      cfg.CacheTTL,
	}
}

// Get returns the prompt template for a model/usage pair.
func (l *Library) Get(ctx context.Context, model, usage string) string {
	if l.endpoint == "" {
		return builtin[usage]
	}
	key := model + "|" + usage
	if v, ok := l.cache.Get(key); ok {
		return v
	}
	p, err := l.fetch(ctx, model, usage)
	if err != nil {
		logger.Warnf("prompts: remote fetch for %s/%s failed, using builtin: %v", model, usage, err)
		return builtin[usage]
	}
	if p == "" {
		p = builtin[usage]
	}
	l.cache.Set(key, p, l.ttl)
	return p
}

func (l *Library) fetch(ctx context.Context, model, usage string) (string, error) {
	u := fmt.Sprintf("%s/system-prompt?model=%s&usage=%s", l.endpoint, url.QueryEscape(model), url.QueryEscape(usage))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	if l.apiKey != "" {
		req.Header.Set("X-API-Key", l.apiKey)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		// No prompt registered for this pair; proceed with the builtin.
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("prompt service returned %d", resp.StatusCode)
	}
	var body struct {
		SystemPrompt string `json:"system_prompt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.SystemPrompt, nil
}

// Formatting helpers over the templates above.

func (l *Library) SearchSystem(ctx context.Context, model string) string {
	return l.Get(ctx, model, UsageSearch)
}

func (l *Library) SearchInformation(ctx context.Context, model, results string) string {
	return fmt.Sprintf(l.Get(ctx, model, UsageSearchCtx), results)
}

func (l *Library) PDF(ctx context.Context, model, text string) string {
	return fmt.Sprintf(l.Get(ctx, model, UsagePDF), text)
}

func (l *Library) Summarization(ctx context.Context, model string, targetWords int, text string) string {
	return fmt.Sprintf(l.Get(ctx, model, UsageSummary), targetWords, text)
}

func (l *Library) Keywords(ctx context.Context, model string, max int, query string) string {
	return fmt.Sprintf(l.Get(ctx, model, UsageKeywords), max, max, query)
}

func (l *Library) Default(ctx context.Context, model string) string {
	return fmt.Sprintf(l.Get(ctx, model, UsageDefault), time.Now().Format("2006-01-02 15:04"))
}
