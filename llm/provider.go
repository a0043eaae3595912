package llm

import "context"

// Provider abstracts the model used for internal calls: summarization,
// condensation, keyword extraction.
type Provider interface {
	// GenerateCompletion sends a single prompt and returns the model text.
	GenerateCompletion(ctx context.Context, prompt string) (string, error)
	// ChatCompletion sends a system/user pair with a completion length cap.
	ChatCompletion(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// Tool describes one function made available to the model during
// classification.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolCall is the model's decision to invoke a tool, arguments still in
// their raw JSON form.
type ToolCall struct {
	Name      string
	Arguments string
}

// ToolClassifier asks the model to pick at most one tool for a query.
type ToolClassifier interface {
	ClassifyWithTools(ctx context.Context, query string, tools []Tool) (*ToolCall, error)
}
