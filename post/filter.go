package post

import (
	"crypto/sha256"
	"strings"

	"github.com/bambooai/panda-gateway/schema"
)

// Filter applies the post-rerank selection: drop near-duplicate passages by
// normalized content hash, keep only results at or above the score
// threshold, and cap the survivor count. Order is preserved.
func Filter(in []schema.SearchResult, threshold float64, max int) []schema.SearchResult {
	seen := make(map[[32]byte]bool, len(in))
	var out []schema.SearchResult
	for _, r := range in {
		if r.Score < threshold {
			continue
		}
		h := contentHash(r.Document.Content)
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, r)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

// contentHash normalizes whitespace and case before hashing so trivially
// reformatted copies of the same passage collapse together.
func contentHash(s string) [32]byte {
	norm := strings.ToLower(strings.Join(strings.Fields(s), " "))
	return sha256.Sum256([]byte(norm))
}
