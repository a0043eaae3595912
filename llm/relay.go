package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/config"
	"github.com/bambooai/panda-gateway/metrics"
)

// Result is the outcome of one backend call. Exactly one of Stream, Body or
// Err is set: Stream for a live token stream the caller must close, Body for
// a parsed non-streaming completion, Err for an upstream failure.
type Result struct {
	Stream io.ReadCloser
	Body   []byte
	Err    *UpstreamError
}

// UpstreamError carries the backend's status code and JSON error body so the
// gateway can pass both through unchanged.
type UpstreamError struct {
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	if msg := gjson.GetBytes(e.Body, "error.message"); msg.Exists() {
		return fmt.Sprintf("backend returned %d: %s", e.Status, msg.String())
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// Relay forwards chat-completion bodies to the backend verbatim. Unlike the
// httpx client it never retries and never buffers a live stream.
type Relay struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

func NewRelay(cfg config.BackendConfig) *Relay {
	return &Relay{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		hc:      &http.Client{Timeout: cfg.Timeout},
	}
}

func errBody(msg string) []byte {
	bs, _ := json.Marshal(map[string]map[string]string{"error": {"message": msg}})
	return bs
}

// Forward sends the body to the backend. When stream is true the caller gets
// Result.Stream positioned at the first SSE byte; a non-stream response in
// that case is a protocol violation and surfaces as Err.
func (r *Relay) Forward(ctx context.Context, body []byte, stream bool) (*Result, error) {
	mode := "json"
	if stream {
		mode = "stream"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	resp, err := r.hc.Do(req)
	if err != nil {
		logger.Errorf("relay: backend unreachable: %v", err)
		metrics.IncRelay(mode, "unreachable")
		return &Result{Err: &UpstreamError{Status: http.StatusServiceUnavailable, Body: errBody("LLM backend unreachable")}}, nil
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bs, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if !json.Valid(bs) {
			bs = errBody(fmt.Sprintf("LLM backend returned status %d with a non-JSON body", resp.StatusCode))
		}
		ue := &UpstreamError{Status: resp.StatusCode, Body: bs}
		logger.Warnf("relay: %v", ue)
		metrics.IncRelay(mode, "error")
		return &Result{Err: ue}, nil
	}

	if stream {
		ct := resp.Header.Get("Content-Type")
		if !strings.Contains(ct, "text/event-stream") {
			// Backend answered 200 but did not stream. Treat as a
			// protocol violation rather than guessing at the body.
			defer resp.Body.Close()
			bs, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			logger.Errorf("relay: expected event stream, got content-type %q", ct)
			if !json.Valid(bs) {
				bs = errBody("LLM backend did not return a stream")
			}
			metrics.IncRelay(mode, "protocol")
			return &Result{Err: &UpstreamError{Status: http.StatusBadGateway, Body: bs}}, nil
		}
		metrics.IncRelay(mode, "ok")
		return &Result{Stream: resp.Body}, nil
	}

	defer resp.Body.Close()
	bs, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Result{Err: &UpstreamError{Status: http.StatusBadGateway, Body: errBody("reading LLM backend response failed")}}, nil
	}
	if !json.Valid(bs) {
		metrics.IncRelay(mode, "protocol")
		return &Result{Err: &UpstreamError{Status: http.StatusBadGateway, Body: errBody("LLM backend returned invalid JSON")}}, nil
	}
	metrics.IncRelay(mode, "ok")
	return &Result{Body: bs}, nil
}

// Models proxies the backend model list.
func (r *Relay) Models(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	resp, err := r.hc.Do(req)
	if err != nil {
		return nil, &UpstreamError{Status: http.StatusServiceUnavailable, Body: errBody("LLM backend unreachable")}
	}
	defer resp.Body.Close()
	bs, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &UpstreamError{Status: http.StatusBadGateway, Body: errBody("reading LLM backend response failed")}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: bs}
	}
	return bs, nil
}
