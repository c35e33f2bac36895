package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// OllamaProvider talks to a local Ollama server over its /api/chat endpoint.
// This is the on-device backend; it is expected to be reachable on loopback.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

// NewOllamaProvider creates a provider for the given base URL
// (e.g. http://127.0.0.1:11434).
func NewOllamaProvider(baseURL string) *OllamaProvider {
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: TimeoutGenerate},
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error"`
}

// Generate performs a single blocking chat completion.
func (p *OllamaProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	body := p.buildRequest(req, false)

	var out ollamaChatResponse
	if err := p.post(ctx, body, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, classifyOllamaError(out.Error)
	}

	resp := &Response{
		Content:      out.Message.Content,
		FinishReason: out.DoneReason,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
	}
	for i, tc := range out.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp, nil
}

// StreamGenerate streams progressively complete content snapshots. The
// channel is closed after the final Partial (Done or Err set).
func (p *OllamaProvider) StreamGenerate(ctx context.Context, req *Request) (<-chan Partial, error) {
	body := p.buildRequest(req, true)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, wrapTransportError(err)
	}
	if httpResp.StatusCode != http.StatusOK {
		httpResp.Body.Close()
		return nil, fmt.Errorf("%w: ollama status %d", ErrGeneration, httpResp.StatusCode)
	}

	ch := make(chan Partial, 4)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		var accumulated strings.Builder
		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var chunk ollamaChatResponse
			if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
				ch <- Partial{Err: fmt.Errorf("%w: decode stream chunk: %v", ErrGeneration, err)}
				return
			}
			if chunk.Error != "" {
				ch <- Partial{Err: classifyOllamaError(chunk.Error)}
				return
			}
			accumulated.WriteString(chunk.Message.Content)
			ch <- Partial{Content: accumulated.String(), Done: chunk.Done}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- Partial{Err: wrapTransportError(err)}
		}
	}()
	return ch, nil
}

func (p *OllamaProvider) buildRequest(req *Request, stream bool) ollamaChatRequest {
	out := ollamaChatRequest{
		Model:  req.Model,
		Stream: stream,
		Options: ollamaOptions{
			Temperature: float32(req.Temperature),
			NumPredict:  req.MaxTokens,
		},
	}
	for _, m := range req.Messages {
		msg := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var otc ollamaToolCall
			otc.Function.Name = tc.Name
			otc.Function.Arguments = tc.Arguments
			msg.ToolCalls = append(msg.ToolCalls, otc)
		}
		out.Messages = append(out.Messages, msg)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	return out
}

func (p *OllamaProvider) post(ctx context.Context, body ollamaChatRequest, out *ollamaChatResponse) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return wrapTransportError(err)
	}
	defer httpResp.Body.Close()

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGeneration, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		log.Debug().Int("status", httpResp.StatusCode).Str("error", out.Error).Msg("ollama_request_failed")
		if out.Error != "" {
			return classifyOllamaError(out.Error)
		}
		return fmt.Errorf("%w: ollama status %d", ErrGeneration, httpResp.StatusCode)
	}
	return nil
}

// classifyOllamaError maps server error strings onto the distinguished
// error values. Ollama reports overflow in prose, not a code.
func classifyOllamaError(msg string) error {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "context length") || strings.Contains(lower, "context window") ||
		strings.Contains(lower, "exceeds") && strings.Contains(lower, "context") {
		return fmt.Errorf("%w: %s", ErrContextOverflow, msg)
	}
	return fmt.Errorf("%w: %s", ErrGeneration, msg)
}

func wrapTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: timeout after %s: %v", ErrBackendUnavailable, TimeoutGenerate, err)
	}
	if strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrGeneration, err)
}
