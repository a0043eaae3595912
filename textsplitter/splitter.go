package textsplitter

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// RecursiveSplitter breaks text into overlapping chunks, preferring to cut
// on paragraph, then line, then word boundaries.
type RecursiveSplitter struct {
	ChunkSize    int
	ChunkOverlap int
}

func NewRecursiveSplitter(size, overlap int) *RecursiveSplitter {
	if size <= 0 {
		size = 1500
	}
	if overlap < 0 || overlap >= size {
		overlap = 50
	}
	return &RecursiveSplitter{ChunkSize: size, ChunkOverlap: overlap}
}

var separators = []string{"\n\n", "\n", " ", ""}

func (s *RecursiveSplitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= s.ChunkSize {
		return []string{text}
	}
	return s.split(text, separators)
}

func (s *RecursiveSplitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	rest := seps
	for i, c := range seps {
		if c == "" || strings.Contains(text, c) {
			sep = c
			rest = seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		for len(text) > s.ChunkSize {
			pieces = append(pieces, text[:s.ChunkSize])
			text = text[s.ChunkSize-s.ChunkOverlap:]
		}
		if text != "" {
			pieces = append(pieces, text)
		}
		return pieces
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		c := strings.TrimSpace(current.String())
		if c != "" {
			chunks = append(chunks, c)
		}
		current.Reset()
	}
	for _, piece := range strings.Split(text, sep) {
		if len(piece) > s.ChunkSize {
			flush()
			chunks = append(chunks, s.split(piece, rest)...)
			continue
		}
		if current.Len()+len(sep)+len(piece) > s.ChunkSize {
			// carry tail overlap into the next chunk
			tail := overlapTail(current.String(), s.ChunkOverlap)
			flush()
			current.WriteString(tail)
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(piece)
	}
	flush()
	return chunks
}

func overlapTail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return ""
	}
	tail := s[len(s)-n:]
	if i := strings.IndexByte(tail, ' '); i >= 0 && i+1 < len(tail) {
		tail = tail[i+1:]
	}
	return tail
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// TokenCount returns the cl100k_base token count of text. When the encoding
// cannot be loaded it falls back to a chars/4 estimate rather than failing
// the caller.
func TokenCount(text string) int {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	if encErr != nil || enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
