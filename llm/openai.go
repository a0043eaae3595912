package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/bambooai/panda-gateway/config"
)

// OpenAIProvider talks to any OpenAI-compatible endpoint, including a local
// vLLM server.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
}

func NewOpenAIProvider(cfg config.LLMConfig) *OpenAIProvider {
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	return &OpenAIProvider{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

func (p *OpenAIProvider) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	return p.chat(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage(prompt),
	}, p.maxTokens)
}

func (p *OpenAIProvider) ChatCompletion(ctx context.Context, system, user string, maxTokens int) (string, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{}
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	msgs = append(msgs, openai.UserMessage(user))
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	return p.chat(ctx, msgs, maxTokens)
}

func (p *OpenAIProvider) chat(ctx context.Context, msgs []openai.ChatCompletionMessageParamUnion, maxTokens int) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		Messages:    msgs,
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(p.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ClassifyWithTools runs a tool-choice completion and returns the first tool
// call, or nil when the model answered in plain text.
func (p *OpenAIProvider) ClassifyWithTools(ctx context.Context, query string, tools []Tool) (*ToolCall, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(query),
		},
		MaxTokens: openai.Int(256),
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  shared.FunctionParameters(t.Parameters),
		}))
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("tool classification: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("tool classification: empty choices")
	}
	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return nil, nil
	}
	return &ToolCall{
		Name:      calls[0].Function.Name,
		Arguments: calls[0].Function.Arguments,
	}, nil
}
