package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("found %d configuration error(s):\n", len(errs)))
	for i, err := range errs {
		b.WriteString(fmt.Sprintf("  %d. [%s] %s\n", i+1, err.Field, err.Message))
	}
	return b.String()
}

// Validate validates the complete configuration
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateBackend()...)
	errs = append(errs, c.validateAuth()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateVectorDB()...)
	errs = append(errs, c.validateRAG()...)
	errs = append(errs, c.validateSearch()...)
	errs = append(errs, c.validatePDF()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateBackend() ValidationErrors {
	var errs ValidationErrors
	if c.Backend.BaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.base_url",
			Message: "backend base_url is required",
		})
	}
	if c.Backend.Model == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.model",
			Message: "backend model is required",
		})
	}
	return errs
}

func (c *Config) validateAuth() ValidationErrors {
	var errs ValidationErrors
	if c.Auth.PublicKey == "" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, ValidationError{
			Field:   "auth",
			Message: "either a JWT public key or at least one API key is required",
		})
	}
	if c.Auth.PublicKey != "" {
		switch strings.ToUpper(c.Auth.JWTAlgorithm) {
		case "RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "EDDSA":
		case "":
			errs = append(errs, ValidationError{
				Field:   "auth.jwt_algorithm",
				Message: "jwt_algorithm is required when a public key is configured",
			})
		default:
			errs = append(errs, ValidationError{
				Field:   "auth.jwt_algorithm",
				Message: fmt.Sprintf("unsupported JWT algorithm %q", c.Auth.JWTAlgorithm),
			})
		}
	}
	return errs
}

// validateEmbedding validates embedding configuration
func (c *Config) validateEmbedding() ValidationErrors {
	var errs ValidationErrors

	// Embedding is only required when a vector store is configured.
	if c.VectorDB.Provider == "" {
		return errs
	}

	if c.Embedding.Provider == "" {
		errs = append(errs, ValidationError{
			Field:   "embedding.provider",
			Message: "embedding provider is required when a vector store is configured",
		})
	}
	if c.Embedding.Model == "" {
		errs = append(errs, ValidationError{
			Field:   "embedding.model",
			Message: "embedding model is required when a vector store is configured",
		})
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, ValidationError{
			Field:   "embedding.dimensions",
			Message: fmt.Sprintf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions),
		})
	}
	if c.Embedding.Dimensions > 0 && (c.Embedding.Dimensions < 128 || c.Embedding.Dimensions > 4096) {
		errs = append(errs, ValidationError{
			Field:   "embedding.dimensions",
			Message: fmt.Sprintf("embedding dimensions %d is outside typical range [128, 4096]", c.Embedding.Dimensions),
		})
	}

	return errs
}

// validateVectorDB validates vector database configuration
func (c *Config) validateVectorDB() ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(c.VectorDB.Provider) {
	case "":
		// Vector augmentation disabled; nothing to check.
	case "milvus":
		if c.VectorDB.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "vectordb.host",
				Message: "vectordb host is required for milvus provider",
			})
		}
		if c.VectorDB.Collection == "" {
			errs = append(errs, ValidationError{
				Field:   "vectordb.collection",
				Message: "collection name is required for milvus provider",
			})
		}
	case "memory":
	default:
		errs = append(errs, ValidationError{
			Field:   "vectordb.provider",
			Message: fmt.Sprintf("unknown vectordb provider %q", c.VectorDB.Provider),
		})
	}

	return errs
}

// validateRAG validates retrieval configuration
func (c *Config) validateRAG() ValidationErrors {
	var errs ValidationErrors

	if c.RAG.TopK <= 0 {
		errs = append(errs, ValidationError{
			Field:   "rag.top_k",
			Message: fmt.Sprintf("rag.top_k must be positive, got %d", c.RAG.TopK),
		})
	}
	if c.RAG.TopK > 100 {
		errs = append(errs, ValidationError{
			Field:   "rag.top_k",
			Message: fmt.Sprintf("rag.top_k %d is too large (max recommended: 100)", c.RAG.TopK),
		})
	}
	if c.RAG.Threshold < 0 || c.RAG.Threshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "rag.threshold",
			Message: fmt.Sprintf("rag.threshold must be in [0, 1], got %.2f", c.RAG.Threshold),
		})
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, ValidationError{
			Field:   "rag.chunk_overlap",
			Message: fmt.Sprintf("chunk_overlap %d must be smaller than chunk_size %d", c.RAG.ChunkOverlap, c.RAG.ChunkSize),
		})
	}

	return errs
}

func (c *Config) validateSearch() ValidationErrors {
	var errs ValidationErrors
	for i, e := range c.Search.Engines {
		switch strings.ToLower(e) {
		case "duckduckgo", "brave":
		default:
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("search.engines[%d]", i),
				Message: fmt.Sprintf("unknown search engine %q", e),
			})
		}
		if strings.ToLower(e) == "brave" && c.Search.BraveAPIKey == "" {
			errs = append(errs, ValidationError{
				Field:   "search.brave_api_key",
				Message: "brave engine requires an API key",
			})
		}
	}
	if c.Search.MaxResults < 0 {
		errs = append(errs, ValidationError{
			Field:   "search.max_results",
			Message: fmt.Sprintf("max_results must be non-negative, got %d", c.Search.MaxResults),
		})
	}
	return errs
}

func (c *Config) validatePDF() ValidationErrors {
	var errs ValidationErrors
	if c.PDF.Workers <= 0 {
		errs = append(errs, ValidationError{
			Field:   "pdf.workers",
			Message: fmt.Sprintf("pdf.workers must be positive, got %d", c.PDF.Workers),
		})
	}
	if c.PDF.ChunkPages <= 0 {
		errs = append(errs, ValidationError{
			Field:   "pdf.chunk_pages",
			Message: fmt.Sprintf("pdf.chunk_pages must be positive, got %d", c.PDF.ChunkPages),
		})
	}
	return errs
}
