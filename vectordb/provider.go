package vectordb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/bambooai/panda-gateway/schema"
)

// Store is the document-store surface augmentation needs: append documents
// to a partition and run similarity search inside one. Stores never mutate
// existing entries.
type Store interface {
	AddDocs(ctx context.Context, partition string, docs []schema.Document) error
	SearchDocs(ctx context.Context, partition string, vector []float32, opts schema.SearchOptions) ([]schema.SearchResult, error)
	Close() error
}

// PartitionName derives the per-user partition from an opaque user ID. The
// derivation is one way: the raw ID never appears in store metadata and
// cannot be recovered from the partition name.
func PartitionName(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return "users_" + hex.EncodeToString(sum[:])[:32]
}
