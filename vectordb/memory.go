package vectordb

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/bambooai/panda-gateway/schema"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string][]schema.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string][]schema.Document)}
}

func (s *MemoryStore) AddDocs(_ context.Context, partition string, docs []schema.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partitions[partition] = append(s.partitions[partition], docs...)
	return nil
}

func (s *MemoryStore) SearchDocs(_ context.Context, partition string, vector []float32, opts schema.SearchOptions) ([]schema.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []schema.SearchResult
	for _, d := range s.partitions[partition] {
		score := cosine(vector, d.Vector)
		if opts.Threshold > 0 && score < opts.Threshold {
			continue
		}
		out = append(out, schema.SearchResult{Document: d, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if opts.TopK > 0 && len(out) > opts.TopK {
		out = out[:opts.TopK]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// Docs returns a snapshot of one partition, for tests.
func (s *MemoryStore) Docs(partition string) []schema.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schema.Document(nil), s.partitions[partition]...)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
