package augment

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/embedding"
	"github.com/bambooai/panda-gateway/metrics"
	"github.com/bambooai/panda-gateway/schema"
	"github.com/bambooai/panda-gateway/textsplitter"
	"github.com/bambooai/panda-gateway/vectordb"
)

// Persister writes retrieved documents to the caller's partition in the
// background.
//
// Contract: StoreAsync returns immediately; the write happens on a detached
// context so a client disconnect cannot cancel it; failures are logged and
// never surfaced or retried; callers must not read their own writes within
// the same request.
type Persister struct {
	store    vectordb.Store
	embedder embedding.Provider
	splitter *textsplitter.RecursiveSplitter
	timeout  time.Duration

	wg sync.WaitGroup
}

func NewPersister(store vectordb.Store, embedder embedding.Provider, splitter *textsplitter.RecursiveSplitter) *Persister {
	return &Persister{
		store:    store,
		embedder: embedder,
		splitter: splitter,
		timeout:  2 * time.Minute,
	}
}

// StoreAsync schedules persistence of docs and returns without waiting.
func (p *Persister) StoreAsync(ctx context.Context, partition string, docs []schema.Document) {
	if p == nil || p.store == nil || len(docs) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(detached, p.timeout)
		defer cancel()
		if err := p.persist(ctx, partition, docs); err != nil {
			metrics.PersistFailures.Inc()
			logger.Errorf("persist: background write to %s failed: %v", partition, err)
		}
	}()
}

// Wait blocks until all scheduled writes finish. Used on shutdown and in
// tests; request handlers never call it.
func (p *Persister) Wait() {
	p.wg.Wait()
}

func (p *Persister) persist(ctx context.Context, partition string, docs []schema.Document) error {
	var chunked []schema.Document
	for _, d := range docs {
		for i, piece := range p.splitter.Split(d.Content) {
			vec, err := p.embedder.GetEmbedding(ctx, piece)
			if err != nil {
				return err
			}
			meta := make(map[string]interface{}, len(d.Metadata)+1)
			for k, v := range d.Metadata {
				meta[k] = v
			}
			meta["chunk"] = i
			chunked = append(chunked, schema.Document{
				ID:       d.ID + "-" + strconv.Itoa(i),
				Content:  piece,
				Metadata: meta,
				Vector:   vec,
			})
		}
	}
	if len(chunked) == 0 {
		return nil
	}
	if err := p.store.AddDocs(ctx, partition, chunked); err != nil {
		return err
	}
	metrics.PersistedDocs.Add(float64(len(chunked)))
	logger.Infof("persist: stored %d chunks in %s", len(chunked), partition)
	return nil
}
