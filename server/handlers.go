package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bambooai/panda-gateway/actions"
	"github.com/bambooai/panda-gateway/auth"
	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/llm"
	"github.com/bambooai/panda-gateway/schema"
)

const maxBodyBytes = 64 << 20 // inline PDFs arrive base64-encoded in the body

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ident := identityFrom(r.Context())

	var req schema.ChatRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	action := s.gw.Dispatcher.Decide(r.Context(), &req, ident)
	if req.Stream {
		s.chatStream(w, r, &req, ident, action)
		return
	}
	s.chatJSON(w, r, &req, ident, action)
}

// chatJSON is the non-streaming path: augment, forward once, mirror the
// backend's body or error.
func (s *Server) chatJSON(w http.ResponseWriter, r *http.Request, req *schema.ChatRequest, ident auth.Identity, action actions.Action) {
	ctx := r.Context()

	switch a := action.(type) {
	case actions.Search:
		if err := s.gw.Search.Run(ctx, req, ident, a.Query, nil); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	case actions.PDF:
		if err := s.gw.PDF.Run(ctx, req, ident, nil); err != nil {
			writeJSONError(w, pdfStatus(err), err.Error())
			return
		}
	}
	if !ident.IsAPIKey {
		s.gw.Context.Augment(ctx, req, ident.UserID)
	}

	body, err := req.Forwardable(false)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "encoding request failed")
		return
	}
	res, err := s.gw.Relay.Forward(ctx, body, false)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.Err != nil {
		writeJSONErrorBody(w, res.Err.Status, res.Err.Body)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(res.Body)
}

// chatStream runs augmentation while emitting process frames, then hands the
// connection to the backend stream. Once the first frame is out the status
// line is fixed, so later failures go in-band.
func (s *Server) chatStream(w http.ResponseWriter, r *http.Request, req *schema.ChatRequest, ident auth.Identity, action actions.Action) {
	ctx := r.Context()

	sse, err := NewSSEWriter(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	notify := func(ev schema.ProcessEvent) { _ = sse.WriteProcess(ev) }

	switch a := action.(type) {
	case actions.Search:
		if err := s.gw.Search.Run(ctx, req, ident, a.Query, notify); err != nil {
			// Only a missing query is terminal, and it fails before the
			// first frame commits the stream.
			if !sse.Committed() {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			_ = sse.WriteProcess(schema.ErrorEvent(err.Error()))
			return
		}
	case actions.PDF:
		if err := s.gw.PDF.Run(ctx, req, ident, notify); err != nil {
			logger.Errorf("server: pdf augmentation failed: %v", err)
			// Extraction and decode errors arrive before any frame, so
			// they still get a real status line. Parse and summarize
			// failures happen mid-stream and go in-band.
			if !sse.Committed() {
				writeJSONError(w, pdfStatus(err), err.Error())
				return
			}
			_ = sse.WriteProcess(schema.ErrorEvent(err.Error()))
			return
		}
	}
	if !ident.IsAPIKey {
		s.gw.Context.Augment(ctx, req, ident.UserID)
	}

	body, err := req.Forwardable(true)
	if err != nil {
		if !sse.Committed() {
			writeJSONError(w, http.StatusInternalServerError, "encoding request failed")
			return
		}
		_ = sse.WriteProcess(schema.ErrorEvent("encoding request failed"))
		return
	}
	res, err := s.gw.Relay.Forward(ctx, body, true)
	if err != nil {
		if !sse.Committed() {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		_ = sse.WriteProcess(schema.ErrorEvent(err.Error()))
		return
	}
	if res.Err != nil {
		// Before the first frame the upstream status can still pass
		// through verbatim.
		if !sse.Committed() {
			writeJSONErrorBody(w, res.Err.Status, res.Err.Body)
			return
		}
		_ = sse.WriteProcess(schema.ErrorEvent(res.Err.Error()))
		return
	}
	defer res.Stream.Close()

	if err := sse.WriteDone(); err != nil {
		return
	}
	if err := sse.Passthrough(res.Stream); err != nil {
		logger.Warnf("server: stream interrupted: %v", err)
		_ = sse.WriteError("Streaming error: " + err.Error())
	}
}

func pdfStatus(err error) int {
	if errors.Is(err, actions.ErrNoPDF) || errors.Is(err, schema.ErrBadPDFURL) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

const modelCacheKey = "backend_models"

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if v, ok := s.gw.ModelCache.Get(modelCacheKey); ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(v)
		return
	}
	body, err := s.gw.Relay.Models(r.Context())
	if err != nil {
		var ue *llm.UpstreamError
		if errors.As(err, &ue) {
			writeJSONErrorBody(w, ue.Status, ue.Body)
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "Failed to get model info")
		return
	}
	s.gw.ModelCache.Set(modelCacheKey, body, 0)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req schema.ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "No messages provided for summarization")
		return
	}

	var parts []string
	for _, m := range req.Messages {
		if t := m.Text(); t != "" {
			parts = append(parts, t)
		}
	}
	full := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if full == "" {
		writeJSONError(w, http.StatusBadRequest, "No text content found in the provided messages")
		return
	}

	target := req.MaxTokens
	if target <= 0 {
		target = 1000
	}
	summary, err := s.gw.Summarizer.Summarize(r.Context(), full, target)
	if err != nil {
		logger.Errorf("server: summary request failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error processing summarization request")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"summary": summary})
}
