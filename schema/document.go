package schema

// Document is a unit of retrievable content, either fetched from the web,
// extracted from an uploaded PDF, or read back from the vector store.
type Document struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Vector   []float32              `json:"vector,omitempty"`
}

// SearchResult pairs a document with a similarity or rerank score.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// SearchOptions controls a vector store query.
type SearchOptions struct {
	TopK      int     `json:"top_k"`
	Threshold float64 `json:"threshold"`
	Partition string  `json:"partition,omitempty"`
}

// WebResult is one hit returned by a search engine before the page body has
// been fetched.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
