package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the gateway process.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	Backend   BackendConfig   `json:"backend" yaml:"backend"`
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	VectorDB  VectorDBConfig  `json:"vectordb" yaml:"vectordb"`
	RAG       RAGConfig       `json:"rag" yaml:"rag"`
	Search    SearchConfig    `json:"search" yaml:"search"`
	PDF       PDFConfig       `json:"pdf" yaml:"pdf"`
	Summarize SummarizeConfig `json:"summarize" yaml:"summarize"`
	Rerank    RerankConfig    `json:"rerank" yaml:"rerank"`
	Prompts   PromptsConfig   `json:"prompts" yaml:"prompts"`
	Log       LogConfig       `json:"log" yaml:"log"`
	// HTTP tunes the shared outbound HTTP client; nil means defaults.
	HTTP *HTTPClientConfig `json:"http,omitempty" yaml:"http,omitempty"`
}

// ServerConfig controls the inbound HTTP listener.
type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	RatePerMinute  float64  `json:"rate_per_minute,omitempty" yaml:"rate_per_minute,omitempty"`
	RateBurst      int      `json:"rate_burst,omitempty" yaml:"rate_burst,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// AuthConfig controls bearer authentication. JWTs are verified against
// PublicKey; entries in APIKeys are accepted verbatim and bypass
// personalization.
type AuthConfig struct {
	JWTAlgorithm string   `json:"jwt_algorithm,omitempty" yaml:"jwt_algorithm,omitempty"`
	PublicKey    string   `json:"public_key,omitempty" yaml:"public_key,omitempty"`
	Audience     string   `json:"audience,omitempty" yaml:"audience,omitempty"`
	APIKeys      []string `json:"api_keys,omitempty" yaml:"api_keys,omitempty"`
}

// BackendConfig points at the OpenAI-compatible completion backend the
// gateway fronts.
type BackendConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	APIKey  string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model   string        `json:"model" yaml:"model"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// LLMConfig selects the model used for internal calls: summarization,
// classification, keyword extraction.
type LLMConfig struct {
	Provider    string  `json:"provider" yaml:"provider"` // Available options: openai, vllm
	APIKey      string  `json:"api_key,omitempty" yaml:"api_key"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// EmbeddingConfig defines configuration for embedding models
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // Available options: openai
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimension,omitempty"`
}

// VectorDBConfig defines configuration for the document store.
type VectorDBConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // Available options: milvus, memory
	Host       string `json:"host,omitempty" yaml:"host,omitempty"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database   string `json:"database,omitempty" yaml:"database,omitempty"`
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty"`
	Username   string `json:"username,omitempty" yaml:"username,omitempty"`
	Password   string `json:"password,omitempty" yaml:"password,omitempty"`
}

// RAGConfig controls vector-context augmentation.
type RAGConfig struct {
	TopK           int     `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	Threshold      float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	MaxContextDocs int     `json:"max_context_docs,omitempty" yaml:"max_context_docs,omitempty"`
	ChunkSize      int     `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty"`
	ChunkOverlap   int     `json:"chunk_overlap,omitempty" yaml:"chunk_overlap,omitempty"`
}

// SearchConfig controls the web search subsystem.
type SearchConfig struct {
	Engines     []string      `json:"engines,omitempty" yaml:"engines,omitempty"` // duckduckgo, brave
	BraveAPIKey string        `json:"brave_api_key,omitempty" yaml:"brave_api_key,omitempty"`
	MaxResults  int           `json:"max_results,omitempty" yaml:"max_results,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	UserAgent   string        `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	MaxDocChars int           `json:"max_doc_chars,omitempty" yaml:"max_doc_chars,omitempty"`
}

// PDFConfig controls PDF parsing. OCRPageBytes is the average bytes-per-page
// above which a document is treated as image-heavy and parsed with OCR.
// Documents larger than ChunkBytes are split into ChunkPages-sized page
// ranges parsed concurrently by up to Workers parsers.
type PDFConfig struct {
	ParserEndpoint string        `json:"parser_endpoint" yaml:"parser_endpoint"`
	OCRPageBytes   int           `json:"ocr_page_bytes,omitempty" yaml:"ocr_page_bytes,omitempty"`
	ChunkBytes     int           `json:"chunk_bytes,omitempty" yaml:"chunk_bytes,omitempty"`
	ChunkPages     int           `json:"chunk_pages,omitempty" yaml:"chunk_pages,omitempty"`
	Workers        int           `json:"workers,omitempty" yaml:"workers,omitempty"`
	MinTextChars   int           `json:"min_text_chars,omitempty" yaml:"min_text_chars,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// SummarizeConfig controls the map-reduce summarizer.
type SummarizeConfig struct {
	ContextTokens     int `json:"context_tokens,omitempty" yaml:"context_tokens,omitempty"`
	SearchTargetWords int `json:"search_target_words,omitempty" yaml:"search_target_words,omitempty"`
	PDFTargetWords    int `json:"pdf_target_words,omitempty" yaml:"pdf_target_words,omitempty"`
	Concurrency       int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
}

// RerankConfig points at the external cross-encoder service.
type RerankConfig struct {
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	TopN     int    `json:"top_n,omitempty" yaml:"top_n,omitempty"`
}

// PromptsConfig points at the optional remote prompt service. When Endpoint
// is empty the built-in prompts are used.
type PromptsConfig struct {
	Endpoint string        `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	APIKey   string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	CacheTTL time.Duration `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`
}

// HTTPClientConfig tunes the shared resilient HTTP client used by outbound
// adapters (search engines, page fetches, rerank, PDF parse).
type HTTPClientConfig struct {
	TimeoutMs              int      `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Retry                  int      `json:"retry,omitempty" yaml:"retry,omitempty"`
	BackoffMinMs           int      `json:"backoff_min_ms,omitempty" yaml:"backoff_min_ms,omitempty"`
	BackoffMaxMs           int      `json:"backoff_max_ms,omitempty" yaml:"backoff_max_ms,omitempty"`
	HostAllowlist          []string `json:"host_allowlist,omitempty" yaml:"host_allowlist,omitempty"`
	MaxConsecutiveFailures int      `json:"max_consecutive_failures,omitempty" yaml:"max_consecutive_failures,omitempty"`
	CircuitOpenSeconds     int      `json:"circuit_open_seconds,omitempty" yaml:"circuit_open_seconds,omitempty"`
}

type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	JSON  bool   `json:"json,omitempty" yaml:"json,omitempty"`
}

// Load reads a YAML config file, applies environment overrides for secrets,
// fills defaults and validates.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		bs, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(bs, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	c.applyEnv()
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Backend.BaseURL, "BACKEND_URL")
	override(&c.Backend.APIKey, "BACKEND_API_KEY")
	override(&c.Backend.Model, "MODEL_NAME")
	override(&c.LLM.APIKey, "LLM_API_KEY")
	override(&c.LLM.Model, "SUMMARIZATION_MODEL")
	override(&c.Embedding.APIKey, "EMBEDDING_API_KEY")
	override(&c.Auth.PublicKey, "JWT_PUB_KEY")
	override(&c.Auth.JWTAlgorithm, "JWT_ALGORITHM")
	override(&c.Auth.Audience, "APP_ID")
	override(&c.Search.BraveAPIKey, "BRAVE_API_KEY")
	override(&c.Prompts.APIKey, "PROMPTS_API_KEY")
	override(&c.VectorDB.Password, "VECTORDB_PASSWORD")
}

// ApplyDefaults fills zero values with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RatePerMinute == 0 {
		c.Server.RatePerMinute = 10
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 5
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 10 * time.Minute
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = 10
	}
	if c.RAG.Threshold == 0 {
		c.RAG.Threshold = 0.5
	}
	if c.RAG.MaxContextDocs == 0 {
		c.RAG.MaxContextDocs = 5
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = 1500
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = 50
	}
	if len(c.Search.Engines) == 0 {
		c.Search.Engines = []string{"duckduckgo"}
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = 5
	}
	if c.Search.Timeout == 0 {
		c.Search.Timeout = 10 * time.Second
	}
	if c.Search.UserAgent == "" {
		c.Search.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if c.Search.MaxDocChars == 0 {
		c.Search.MaxDocChars = 20000
	}
	if c.PDF.OCRPageBytes == 0 {
		c.PDF.OCRPageBytes = 100 * 1024
	}
	if c.PDF.ChunkBytes == 0 {
		c.PDF.ChunkBytes = 8 << 20
	}
	if c.PDF.ChunkPages == 0 {
		c.PDF.ChunkPages = 25
	}
	if c.PDF.Workers == 0 {
		c.PDF.Workers = 4
	}
	if c.PDF.MinTextChars == 0 {
		c.PDF.MinTextChars = 50
	}
	if c.PDF.Timeout == 0 {
		c.PDF.Timeout = 2 * time.Minute
	}
	if c.Summarize.ContextTokens == 0 {
		c.Summarize.ContextTokens = 4096
	}
	if c.Summarize.SearchTargetWords == 0 {
		c.Summarize.SearchTargetWords = 1000
	}
	if c.Summarize.PDFTargetWords == 0 {
		c.Summarize.PDFTargetWords = 500
	}
	if c.Summarize.Concurrency == 0 {
		c.Summarize.Concurrency = 5
	}
	if c.Rerank.TopN == 0 {
		c.Rerank.TopN = 10
	}
	if c.Prompts.CacheTTL == 0 {
		c.Prompts.CacheTTL = 10 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
