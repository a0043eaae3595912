package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	gateway "github.com/bambooai/panda-gateway"
	"github.com/bambooai/panda-gateway/actions"
	"github.com/bambooai/panda-gateway/augment"
	"github.com/bambooai/panda-gateway/auth"
	"github.com/bambooai/panda-gateway/cache"
	"github.com/bambooai/panda-gateway/common/httpx"
	"github.com/bambooai/panda-gateway/config"
	"github.com/bambooai/panda-gateway/llm"
	"github.com/bambooai/panda-gateway/pdfparse"
	"github.com/bambooai/panda-gateway/prompts"
	"github.com/bambooai/panda-gateway/retriever"
	"github.com/bambooai/panda-gateway/schema"
	"github.com/bambooai/panda-gateway/summarize"
	"github.com/bambooai/panda-gateway/textsplitter"
	"github.com/bambooai/panda-gateway/vectordb"
)

const testKey = "sk-test-0123456789"

type fakeLLM struct{ out string }

func (f *fakeLLM) GenerateCompletion(context.Context, string) (string, error) { return f.out, nil }
func (f *fakeLLM) ChatCompletion(context.Context, string, string, int) (string, error) {
	return f.out, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) GetEmbedding(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}
func (fakeEmbedder) Dimensions() int { return 2 }

type stubEngine struct{ results []schema.WebResult }

func (s *stubEngine) Name() string { return "stub" }
func (s *stubEngine) Search(context.Context, string, int) ([]schema.WebResult, error) {
	return s.results, nil
}

// backendCapture is the fake completion backend: it records the last
// forwarded body and answers per configuration.
type backendCapture struct {
	lastBody []byte
	handler  http.HandlerFunc
}

func streamingBackend(tokens ...string) *backendCapture {
	b := &backendCapture{}
	b.handler = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range tokens {
			chunk, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": tok}}},
			})
			_, _ = w.Write([]byte("data: " + string(chunk) + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}
	return b
}

func (b *backendCapture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r.Body)
	b.lastBody = buf.Bytes()
	b.handler(w, r)
}

func newTestServer(t *testing.T, backend *backendCapture, engines []retriever.Engine) (*Server, *vectordb.MemoryStore) {
	t.Helper()
	backendSrv := httptest.NewServer(backend)
	t.Cleanup(backendSrv.Close)

	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>Forecast for Paris: sunny, 24 degrees.</p></body></html>"))
	}))
	t.Cleanup(page.Close)
	for i := range engines {
		if se, ok := engines[i].(*stubEngine); ok {
			for j := range se.results {
				se.results[j].URL = page.URL
			}
		}
	}

	authenticator, err := auth.New(config.AuthConfig{APIKeys: []string{testKey}})
	require.NoError(t, err)

	client := httpx.NewFromConfig(nil)
	store := vectordb.NewMemoryStore()
	library := prompts.NewLibrary(config.PromptsConfig{}, client)
	provider := &fakeLLM{out: "It will be sunny in Paris tomorrow."}
	summarizer := summarize.New(provider, library, config.SummarizeConfig{}, "panda")
	persister := augment.NewPersister(store, fakeEmbedder{}, textsplitter.NewRecursiveSplitter(1500, 50))
	t.Cleanup(persister.Wait)
	fetcher := retriever.NewFetcher(config.SearchConfig{UserAgent: "test", MaxDocChars: 20000}, client)

	parseSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "Parsed PDF text about pandas.", "pages": 1})
	}))
	t.Cleanup(parseSrv.Close)
	parser := pdfparse.New(config.PDFConfig{
		ParserEndpoint: parseSrv.URL,
		OCRPageBytes:   100 << 10,
		ChunkBytes:     8 << 20,
		ChunkPages:     25,
		Workers:        2,
		MinTextChars:   10,
	}, client)

	gw := &gateway.Gateway{
		Config: &config.Config{
			Server: config.ServerConfig{Addr: ":0", RatePerMinute: 600, RateBurst: 100},
		},
		Auth:       authenticator,
		Dispatcher: actions.NewDispatcher(nil),
		Search:     actions.NewSearchRunner(engines, fetcher, persister, summarizer, library, provider, config.SearchConfig{MaxResults: 5}, "panda", 0),
		PDF:        actions.NewPDFRunner(parser, persister, summarizer, library, "panda", 0),
		Context:    augment.NewContextAugmenter(nil, nil, nil, config.RAGConfig{}),
		Persister:  persister,
		Relay:      llm.NewRelay(config.BackendConfig{BaseURL: backendSrv.URL, Timeout: 10 * time.Second}),
		Summarizer: summarizer,
		Library:    library,
		ModelCache: cache.NewLRU[[]byte](8, time.Minute),
	}
	return New(gw), store
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Authorization", "Bearer "+testKey)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func TestChatStreamWithSearch(t *testing.T) {
	backend := streamingBackend("Sunny", " skies")
	s, _ := newTestServer(t, backend, []retriever.Engine{
		&stubEngine{results: []schema.WebResult{{Title: "Weather"}}},
	})

	w := doRequest(s, "POST", "/v1/chat/completions",
		`{"model":"panda","stream":true,"use_search":true,"messages":[{"role":"user","content":"Weather in Paris tomorrow?"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	out := w.Body.String()
	doneIdx := strings.Index(out, "data: "+schema.DoneMarker)
	require.GreaterOrEqual(t, doneIdx, 0, "missing done marker")
	assert.Equal(t, strings.Index(out, "data: "+schema.DoneMarker), strings.LastIndex(out, "data: "+schema.DoneMarker), "done marker must appear exactly once")

	sunny := strings.Index(out, "Sunny")
	skies := strings.Index(out, " skies")
	require.Greater(t, sunny, doneIdx, "tokens must follow the done marker")
	require.Greater(t, skies, sunny)

	forwarded := backend.lastBody
	require.NotEmpty(t, forwarded)
	assert.False(t, gjson.GetBytes(forwarded, "use_search").Exists(), "flag must be stripped")
	msgs := gjson.GetBytes(forwarded, "messages").Array()
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].Get("role").String())
	assert.Equal(t, "system", msgs[1].Get("role").String())
	assert.Equal(t, "user", msgs[2].Get("role").String())
}

func TestChatNonStreamPassthrough(t *testing.T) {
	backend := &backendCapture{handler: func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
	}}
	s, _ := newTestServer(t, backend, nil)

	w := doRequest(s, "POST", "/v1/chat/completions",
		`{"model":"panda","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", gjson.Get(w.Body.String(), "choices.0.message.content").String())
	assert.True(t, gjson.GetBytes(backend.lastBody, "messages").Exists())
	assert.False(t, gjson.GetBytes(backend.lastBody, "use_search").Exists())
}

func TestChatBackendErrorStatusPreserved(t *testing.T) {
	backend := &backendCapture{handler: func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}}
	s, _ := newTestServer(t, backend, nil)

	w := doRequest(s, "POST", "/v1/chat/completions",
		`{"model":"panda","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "slow down", gjson.Get(w.Body.String(), "error.message").String())
}

func TestChatStreamBackendNotStreaming(t *testing.T) {
	backend := &backendCapture{handler: func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}}
	s, _ := newTestServer(t, backend, nil)

	// No action runs, so no frame precedes the backend call and the 502
	// still reaches the client as a status code.
	w := doRequest(s, "POST", "/v1/chat/completions",
		`{"model":"panda","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestChatStreamMissingPDFIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t, streamingBackend("unused"), nil)

	// Extraction fails before any frame is written, so the streaming mode
	// still answers with a real status line, same as the JSON mode.
	body := `{"model":"panda","use_pdf":true,"messages":[{"role":"user","content":"summarize my file"}]}`
	for _, stream := range []bool{true, false} {
		req := strings.Replace(body, `{"model"`, `{"stream":`+strconv.FormatBool(stream)+`,"model"`, 1)
		w := doRequest(s, "POST", "/v1/chat/completions", req)
		require.Equal(t, http.StatusBadRequest, w.Code, "stream=%v", stream)
		assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
		assert.Contains(t, gjson.Get(w.Body.String(), "error.message").String(), "no pdf_url")
		assert.NotContains(t, w.Body.String(), "data:")
	}
}

func TestChatStreamEmptyQueryIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t, streamingBackend("unused"), nil)

	w := doRequest(s, "POST", "/v1/chat/completions",
		`{"model":"panda","stream":true,"use_search":true,"messages":[{"role":"user","content":""}]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestChatValidation(t *testing.T) {
	s, _ := newTestServer(t, &backendCapture{handler: func(http.ResponseWriter, *http.Request) {}}, nil)

	w := doRequest(s, "POST", "/v1/chat/completions", `{"model":"panda","messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(s, "POST", "/v1/chat/completions", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatUnauthorized(t *testing.T) {
	s, _ := newTestServer(t, &backendCapture{handler: func(http.ResponseWriter, *http.Request) {}}, nil)

	r := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r = httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(`{}`))
	r.Header.Set("Authorization", "Bearer wrong-key")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestModelsCached(t *testing.T) {
	calls := 0
	backend := &backendCapture{handler: func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"panda-7b"}]}`))
	}}
	s, _ := newTestServer(t, backend, nil)

	for i := 0; i < 3; i++ {
		w := doRequest(s, "GET", "/v1/models", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "panda-7b", gjson.Get(w.Body.String(), "data.0.id").String())
	}
	assert.Equal(t, 1, calls)
}

func TestSummaryEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &backendCapture{handler: func(http.ResponseWriter, *http.Request) {}}, nil)

	w := doRequest(s, "POST", "/v1/summary",
		`{"model":"panda","messages":[{"role":"user","content":"a long report about bamboo forests and their growth cycles"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "It will be sunny in Paris tomorrow.", gjson.Get(w.Body.String(), "summary").String())

	w = doRequest(s, "POST", "/v1/summary", `{"model":"panda","messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, &backendCapture{handler: func(http.ResponseWriter, *http.Request) {}}, nil)
	r := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	backend := &backendCapture{handler: func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}}
	s, _ := newTestServer(t, backend, nil)
	s.cfg.RatePerMinute = 60
	s.cfg.RateBurst = 2

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		w := doRequest(s, "POST", "/v1/chat/completions",
			`{"model":"panda","messages":[{"role":"user","content":"hi"}]}`)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
}
