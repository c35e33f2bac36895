package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider adapts any OpenAI-compatible chat completion endpoint.
// Used for local runtimes that expose the OpenAI wire format as well as
// hosted backends during development.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider builds a provider. baseURL may be empty for the
// default OpenAI endpoint.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Generate performs a single blocking chat completion.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choice list", ErrGeneration)
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// StreamGenerate streams progressively complete content snapshots.
func (p *OpenAIProvider) StreamGenerate(ctx context.Context, req *Request) (<-chan Partial, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	ch := make(chan Partial, 4)
	go func() {
		defer close(ch)
		defer stream.Close()

		var accumulated string
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				ch <- Partial{Content: accumulated, Done: true}
				return
			}
			if err != nil {
				ch <- Partial{Err: classifyOpenAIError(err)}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			accumulated += chunk.Choices[0].Delta.Content
			ch <- Partial{Content: accumulated}
		}
	}()
	return ch, nil
}

func (p *OpenAIProvider) buildRequest(req *Request, stream bool) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out.Messages = append(out.Messages, msg)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	return out
}

// classifyOpenAIError maps API errors onto the distinguished error values.
// Context overflow arrives as code "context_length_exceeded".
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			return fmt.Errorf("%w: %s", ErrContextOverflow, apiErr.Message)
		}
		if apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %s", ErrBackendUnavailable, apiErr.Message)
		}
		return fmt.Errorf("%w: %s", ErrGeneration, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", ErrGeneration, err)
}
