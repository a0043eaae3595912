package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/bambooai/panda-gateway/common/httpx"
	"github.com/bambooai/panda-gateway/config"
	"github.com/bambooai/panda-gateway/schema"
)

// Engine is one web search backend.
type Engine interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]schema.WebResult, error)
}

// EnginesFromConfig builds the configured engines in declaration order. The
// order matters: merged results keep it.
func EnginesFromConfig(cfg config.SearchConfig, client *httpx.Client) ([]Engine, error) {
	if client == nil {
		client = httpx.NewFromConfig(nil)
	}
	var engines []Engine
	for _, name := range cfg.Engines {
		switch strings.ToLower(name) {
		case "duckduckgo":
			engines = append(engines, &DuckDuckGoEngine{Client: client, UserAgent: cfg.UserAgent})
		case "brave":
			engines = append(engines, &BraveEngine{Client: client, APIKey: cfg.BraveAPIKey})
		default:
			return nil, fmt.Errorf("unknown search engine %q", name)
		}
	}
	return engines, nil
}
