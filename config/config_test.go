package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func baseYAML() string {
	return `
backend:
  base_url: http://vllm:8000
  model: qwen-72b
auth:
  api_keys: ["sk-test"]
`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseYAML()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q", cfg.Server.Addr)
	}
	if cfg.Search.MaxResults != 5 {
		t.Errorf("default max_results = %d", cfg.Search.MaxResults)
	}
	if cfg.RAG.ChunkSize != 1500 || cfg.RAG.ChunkOverlap != 50 {
		t.Errorf("default chunking = %d/%d", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	if cfg.Summarize.SearchTargetWords != 1000 || cfg.Summarize.PDFTargetWords != 500 {
		t.Errorf("default summary targets = %d/%d", cfg.Summarize.SearchTargetWords, cfg.Summarize.PDFTargetWords)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MODEL_NAME", "llama-8b")
	cfg, err := Load(writeConfig(t, baseYAML()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Model != "llama-8b" {
		t.Errorf("env override ignored, model = %q", cfg.Backend.Model)
	}
}

func TestValidateMissingBackend(t *testing.T) {
	_, err := Load(writeConfig(t, `auth: {api_keys: ["k"]}`))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "backend.base_url") {
		t.Errorf("error does not name field: %v", err)
	}
}

func TestValidateMilvusNeedsHostAndEmbedding(t *testing.T) {
	body := baseYAML() + `
vectordb:
  provider: milvus
`
	_, err := Load(writeConfig(t, body))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"vectordb.host", "vectordb.collection", "embedding.provider"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %s in: %v", want, err)
		}
	}
}

func TestValidateBraveNeedsKey(t *testing.T) {
	body := baseYAML() + `
search:
  engines: [brave]
`
	_, err := Load(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "brave_api_key") {
		t.Errorf("expected brave_api_key error, got %v", err)
	}
}
