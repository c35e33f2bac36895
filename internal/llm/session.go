package llm

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sriscode/MobileArc/internal/banking"
	"github.com/sriscode/MobileArc/internal/gateway"
	arcotel "github.com/sriscode/MobileArc/internal/otel"
)

var tracer = arcotel.Tracer("github.com/sriscode/MobileArc/internal/llm")

// maxToolIterations bounds the agentic tool loop for a single turn.
const maxToolIterations = 8

// Conversational sampling parameters.
const (
	respondTemperature = 0.7
	respondMaxTokens   = 1024
)

// exhaustedMessage is returned when the tool loop hits its iteration bound.
const exhaustedMessage = "I wasn't able to complete that in time. Please try again."

// Session is a conversational dialogue with accumulated history. Turns are
// serialized: Respond holds the session for its full duration, so two
// concurrent queries never interleave on the same history. Tool calls
// requested by the model are executed against the registry; staged transfer
// drafts are forwarded to DraftSink.
type Session struct {
	mu        sync.Mutex
	provider  Provider
	model     string
	registry  *gateway.Registry // nil disables tools
	history   []Message
	DraftSink func(*banking.TransferDraft)
}

// NewSession creates a session seeded with system instructions.
func NewSession(provider Provider, model, instructions string, registry *gateway.Registry) *Session {
	return &Session{
		provider: provider,
		model:    model,
		registry: registry,
		history:  []Message{{Role: "system", Content: instructions}},
	}
}

// Respond sends a user prompt, runs the tool loop to completion, appends
// the exchange to the session history, and returns the assistant's text.
func (s *Session) Respond(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "llm.session.respond")
	defer span.End()
	span.SetAttributes(
		arcotel.GenAISystem.String(s.provider.Name()),
		arcotel.GenAIRequestModel.String(s.model),
		arcotel.GenAIRequestTemperature.Float64(respondTemperature),
		arcotel.GenAIRequestMaxTokens.Int(respondMaxTokens),
	)

	messages := make([]Message, len(s.history), len(s.history)+2)
	copy(messages, s.history)
	messages = append(messages, Message{Role: "user", Content: prompt})

	var inputTokens, outputTokens int
	for iteration := 0; iteration < maxToolIterations; iteration++ {
		resp, err := s.provider.Generate(ctx, &Request{
			Model:       s.model,
			Messages:    messages,
			Temperature: respondTemperature,
			MaxTokens:   respondMaxTokens,
			Tools:       s.toolDefs(),
		})
		if err != nil {
			span.RecordError(err)
			return "", err
		}
		inputTokens += resp.InputTokens
		outputTokens += resp.OutputTokens

		if len(resp.ToolCalls) == 0 {
			s.history = append(messages, Message{Role: "assistant", Content: resp.Content})
			span.SetAttributes(
				attribute.Int("llm.tool_iterations", iteration),
				arcotel.GenAIUsageInputTokens.Int(inputTokens),
				arcotel.GenAIUsageOutputTokens.Int(outputTokens),
				arcotel.GenAIResponseFinishReason.String(resp.FinishReason),
			)
			return resp.Content, nil
		}

		messages = append(messages, Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			messages = append(messages, s.executeTool(ctx, call))
		}
	}

	s.history = append(messages, Message{Role: "assistant", Content: exhaustedMessage})
	return exhaustedMessage, nil
}

// RespondNoTools sends a one-shot prompt without tool access and without
// touching the session history. Used for the overflow summarization step.
func (s *Session) RespondNoTools(ctx context.Context, prompt string) (string, error) {
	resp, err := s.provider.Generate(ctx, &Request{
		Model:       s.model,
		Messages:    append(s.snapshot(), Message{Role: "user", Content: prompt}),
		Temperature: 0.3,
		MaxTokens:   256,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// StreamRespond streams progressively complete snapshots of a response.
// The stream is restartable per call, not resumable mid-stream; tool calls
// are not available on the streaming path.
func (s *Session) StreamRespond(ctx context.Context, prompt string) (<-chan Partial, error) {
	return s.provider.StreamGenerate(ctx, &Request{
		Model:       s.model,
		Messages:    append(s.snapshot(), Message{Role: "user", Content: prompt}),
		Temperature: respondTemperature,
		MaxTokens:   respondMaxTokens,
	})
}

// executeTool runs one tool call and wraps the outcome as a tool message.
// Tool failures (including guardrail refusals) are fed back to the model
// as results rather than aborting the turn.
func (s *Session) executeTool(ctx context.Context, call ToolCall) Message {
	if s.registry == nil {
		return Message{Role: "tool", ToolCallID: call.ID, Content: "tools are not available in this session"}
	}

	result, err := s.registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		log.Warn().Err(err).Str("tool", call.Name).Msg("tool_call_failed")
		return Message{Role: "tool", ToolCallID: call.ID, Content: "Blocked: " + err.Error()}
	}

	if result.Draft != nil && s.DraftSink != nil {
		s.DraftSink(result.Draft)
	}
	return Message{Role: "tool", ToolCallID: call.ID, Content: result.Output}
}

// snapshot copies the history under the lock so callers outside a turn
// never alias or race the stored slice.
func (s *Session) snapshot() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// toolDefs converts the registry to provider tool definitions.
func (s *Session) toolDefs() []ToolDef {
	if s.registry == nil {
		return nil
	}
	tools := s.registry.List()
	defs := make([]ToolDef, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.InputSchema(),
		})
	}
	return defs
}

// HistoryLen reports the number of messages accumulated so far.
func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Instructions returns the system instructions the session was built with.
func (s *Session) Instructions() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 || s.history[0].Role != "system" {
		return ""
	}
	return s.history[0].Content
}
