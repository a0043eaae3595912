// Package server exposes the OpenAI-compatible HTTP surface of the gateway.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bambooai/panda-gateway/schema"
)

// SSEWriter frames gateway output for a streaming client. Frame order is
// fixed: any number of process frames, one done marker, then the backend's
// bytes passed through verbatim. Headers are written lazily on the first
// frame, so a request that fails before producing any frame can still get a
// plain JSON error with a real status code.
type SSEWriter struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	committed bool
	started   bool
}

func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Committed reports whether the SSE headers have been sent. Past that point
// the status line is fixed at 200 and errors must go in-band.
func (s *SSEWriter) Committed() bool { return s.committed }

// Started reports whether the done marker has been written.
func (s *SSEWriter) Started() bool { return s.started }

func (s *SSEWriter) commit() {
	if s.committed {
		return
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.committed = true
}

func (s *SSEWriter) writeData(payload string) error {
	s.commit()
	for _, line := range strings.Split(payload, "\n") {
		if _, err := fmt.Fprintf(s.w, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := s.w.Write([]byte("\n")); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteProcess emits one augmentation progress frame. Must not be called
// after WriteDone.
func (s *SSEWriter) WriteProcess(ev schema.ProcessEvent) error {
	bs, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.writeData(string(bs))
}

// WriteDone emits the marker separating process frames from model output.
func (s *SSEWriter) WriteDone() error {
	if err := s.writeData(schema.DoneMarker); err != nil {
		return err
	}
	s.started = true
	return nil
}

// Passthrough copies the backend stream to the client byte for byte,
// flushing as chunks arrive. It never rewrites backend frames.
func (s *SSEWriter) Passthrough(r io.Reader) error {
	s.commit()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := s.w.Write(buf[:n]); werr != nil {
				return werr
			}
			s.flusher.Flush()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// WriteError emits an in-band error frame.
func (s *SSEWriter) WriteError(msg string) error {
	bs, err := json.Marshal(map[string]map[string]string{"error": {"message": msg}})
	if err != nil {
		return err
	}
	return s.writeData(string(bs))
}
