package actions

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bambooai/panda-gateway/auth"
	"github.com/bambooai/panda-gateway/common/logger"
	"github.com/bambooai/panda-gateway/llm"
	"github.com/bambooai/panda-gateway/metrics"
	"github.com/bambooai/panda-gateway/schema"
)

// Action is a closed set: None, Search or PDF. Exactly one is chosen per
// request.
type Action interface{ isAction() }

type None struct{}

// Search carries the query when classification produced one; empty means
// derive it from the active turn.
type Search struct{ Query string }

type PDF struct{}

func (None) isAction()   {}
func (Search) isAction() {}
func (PDF) isAction()    {}

// searchTool is the single function offered to the model during
// classification.
var searchTool = llm.Tool{
	Name:        "use_search",
	Description: "Search the web for information - only call this for time-sensitive information or things you don't have the information for",
	Parameters: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query":        map[string]interface{}{"type": "string", "description": "The query to search the web for"},
			"requirements": map[string]interface{}{"type": "string", "description": "The requirements for the search - choose from: 'factual_explanation', 'brief_explanation', 'deep_dive', 'latest_updates'"},
		},
		"required": []string{"query", "requirements"},
	},
}

// Dispatcher decides the action for a request. Explicit flags win; tool-call
// classification runs only for authenticated non-API-key callers, and a
// classifier failure falls through to None so generation is never blocked.
type Dispatcher struct {
	classifier llm.ToolClassifier
}

func NewDispatcher(classifier llm.ToolClassifier) *Dispatcher {
	return &Dispatcher{classifier: classifier}
}

func (d *Dispatcher) Decide(ctx context.Context, req *schema.ChatRequest, ident auth.Identity) Action {
	switch {
	case req.UsePDF:
		metrics.IncAction("pdf")
		return PDF{}
	case req.UseSearch:
		metrics.IncAction("search")
		return Search{}
	}

	if ident.IsAPIKey || d == nil || d.classifier == nil {
		metrics.IncAction("none")
		return None{}
	}

	query := strings.TrimSpace(req.ActiveTurn().Text())
	if query == "" {
		metrics.IncAction("none")
		return None{}
	}

	call, err := d.classifier.ClassifyWithTools(ctx, query, []llm.Tool{searchTool})
	if err != nil {
		logger.Warnf("dispatch: classification failed, proceeding without action: %v", err)
		metrics.IncAction("none")
		return None{}
	}
	if call != nil && call.Name == searchTool.Name {
		q := gjson.Get(call.Arguments, "query").String()
		logger.Infof("dispatch: model selected search, query=%q", q)
		metrics.IncAction("search")
		return Search{Query: q}
	}
	metrics.IncAction("none")
	return None{}
}
