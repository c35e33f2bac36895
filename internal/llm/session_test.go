package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/sriscode/MobileArc/internal/banking"
	"github.com/sriscode/MobileArc/internal/cache"
	"github.com/sriscode/MobileArc/internal/gateway"
	arcotel "github.com/sriscode/MobileArc/internal/otel"
	"github.com/sriscode/MobileArc/internal/requestctx"
)

// scriptedProvider returns canned responses in order, recording requests.
type scriptedProvider struct {
	responses []*Response
	errs      []error
	requests  []*Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, req *Request) (*Response, error) {
	i := len(p.requests)
	p.requests = append(p.requests, req)
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i >= len(p.responses) {
		panic("scripted provider exhausted")
	}
	return p.responses[i], nil
}

func (p *scriptedProvider) StreamGenerate(_ context.Context, req *Request) (<-chan Partial, error) {
	ch := make(chan Partial, 2)
	ch <- Partial{Content: p.responses[0].Content, Done: true}
	close(ch)
	return ch, nil
}

func testSession(p Provider) *Session {
	g := gateway.New(banking.NewMockProvider(), cache.New(), nil)
	return NewSession(p, "test-model", "You are a test assistant.", gateway.DefaultRegistry(g))
}

func TestRespondPlainAnswer(t *testing.T) {
	p := &scriptedProvider{responses: []*Response{{Content: "Your balance looks healthy."}}}
	s := testSession(p)

	out, err := s.Respond(context.Background(), "how am I doing?")
	require.NoError(t, err)
	assert.Equal(t, "Your balance looks healthy.", out)

	// system + user + assistant
	assert.Equal(t, 3, s.HistoryLen())
}

func TestRespondRunsToolLoop(t *testing.T) {
	p := &scriptedProvider{responses: []*Response{
		{ToolCalls: []ToolCall{{
			ID:        "call_0",
			Name:      "account_summary",
			Arguments: json.RawMessage(`{"account_type": "all"}`),
		}}},
		{Content: "You have three accounts."},
	}}
	s := testSession(p)
	ctx := requestctx.SetUserID(context.Background(), "user_1")

	out, err := s.Respond(ctx, "summarize my accounts")
	require.NoError(t, err)
	assert.Equal(t, "You have three accounts.", out)

	// The second request must carry the tool result back to the model.
	require.Len(t, p.requests, 2)
	last := p.requests[1].Messages[len(p.requests[1].Messages)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Equal(t, "call_0", last.ToolCallID)
	assert.NotEmpty(t, last.Content)
}

func TestRespondFeedsGuardrailErrorBack(t *testing.T) {
	p := &scriptedProvider{responses: []*Response{
		{ToolCalls: []ToolCall{{
			ID:        "call_0",
			Name:      "stage_transfer",
			Arguments: json.RawMessage(`{"from_account": "checking", "to_account": "savings", "amount": 99999}`),
		}}},
		{Content: "That amount is over the transfer limit."},
	}}
	s := testSession(p)
	ctx := requestctx.SetUserID(context.Background(), "user_1")

	out, err := s.Respond(ctx, "move everything to savings")
	require.NoError(t, err, "guardrail refusals are fed back, not raised")
	assert.Equal(t, "That amount is over the transfer limit.", out)

	last := p.requests[1].Messages[len(p.requests[1].Messages)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Contains(t, last.Content, "Blocked:")
}

func TestRespondDraftSink(t *testing.T) {
	p := &scriptedProvider{responses: []*Response{
		{ToolCalls: []ToolCall{{
			ID:        "call_0",
			Name:      "stage_transfer",
			Arguments: json.RawMessage(`{"from_account": "checking", "to_account": "savings", "amount": 300}`),
		}}},
		{Content: "Staged. Approve it when ready."},
	}}
	s := testSession(p)

	var staged *banking.TransferDraft
	s.DraftSink = func(d *banking.TransferDraft) { staged = d }

	ctx := requestctx.SetUserID(context.Background(), "user_1")
	_, err := s.Respond(ctx, "transfer $300 to savings")
	require.NoError(t, err)
	require.NotNil(t, staged)
	assert.Equal(t, 300.0, staged.Amount)
}

func TestRespondIterationBound(t *testing.T) {
	// A model that never stops calling tools gets cut off.
	responses := make([]*Response, maxToolIterations)
	for i := range responses {
		responses[i] = &Response{ToolCalls: []ToolCall{{
			ID:        "loop",
			Name:      "market_rates",
			Arguments: json.RawMessage(`{"rate_type": "hysa"}`),
		}}}
	}
	p := &scriptedProvider{responses: responses}
	s := testSession(p)

	out, err := s.Respond(context.Background(), "rates?")
	require.NoError(t, err)
	assert.Equal(t, exhaustedMessage, out)
	assert.Len(t, p.requests, maxToolIterations)
}

// countedProvider is safe for concurrent Generate calls.
type countedProvider struct {
	calls atomic.Int32
}

func (p *countedProvider) Name() string { return "counted" }

func (p *countedProvider) Generate(_ context.Context, req *Request) (*Response, error) {
	n := p.calls.Add(1)
	return &Response{Content: fmt.Sprintf("reply %d", n)}, nil
}

func (p *countedProvider) StreamGenerate(_ context.Context, req *Request) (<-chan Partial, error) {
	ch := make(chan Partial, 1)
	ch <- Partial{Content: "reply", Done: true}
	close(ch)
	return ch, nil
}

func TestRespondConcurrentTurnsSerialized(t *testing.T) {
	const goroutines = 8
	const turns = 10

	p := &countedProvider{}
	s := NewSession(p, "test-model", "You are a test assistant.", nil)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < turns; i++ {
				out, err := s.Respond(context.Background(), "hello")
				assert.NoError(t, err)
				assert.NotEmpty(t, out)
			}
		}()
	}
	wg.Wait()

	// Each turn commits exactly one user and one assistant message.
	assert.Equal(t, 1+2*goroutines*turns, s.HistoryLen())
	assert.Equal(t, int32(goroutines*turns), p.calls.Load())
}

func TestRespondRecordsModelSpanAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	p := &scriptedProvider{responses: []*Response{{
		Content:      "ok",
		FinishReason: "stop",
		InputTokens:  12,
		OutputTokens: 5,
	}}}
	s := testSession(p)

	_, err := s.Respond(context.Background(), "hi")
	require.NoError(t, err)

	var span sdktrace.ReadOnlySpan
	for _, ended := range recorder.Ended() {
		if ended.Name() == "llm.session.respond" {
			span = ended
		}
	}
	require.NotNil(t, span)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "scripted", attrs[arcotel.GenAISystem].AsString())
	assert.Equal(t, "test-model", attrs[arcotel.GenAIRequestModel].AsString())
	assert.EqualValues(t, 12, attrs[arcotel.GenAIUsageInputTokens].AsInt64())
	assert.EqualValues(t, 5, attrs[arcotel.GenAIUsageOutputTokens].AsInt64())
	assert.Equal(t, "stop", attrs[arcotel.GenAIResponseFinishReason].AsString())
}

func TestStreamRespondSnapshots(t *testing.T) {
	p := &scriptedProvider{responses: []*Response{{Content: "streamed answer"}}}
	s := testSession(p)

	ch, err := s.StreamRespond(context.Background(), "hi")
	require.NoError(t, err)

	var last Partial
	for part := range ch {
		require.NoError(t, part.Err)
		last = part
	}
	assert.True(t, last.Done)
	assert.Equal(t, "streamed answer", last.Content)
	assert.Equal(t, 1, s.HistoryLen(), "streaming never touches history")
}

func TestRespondNoToolsLeavesHistory(t *testing.T) {
	p := &scriptedProvider{responses: []*Response{{Content: "- bullet one"}}}
	s := testSession(p)

	out, err := s.RespondNoTools(context.Background(), "summarize")
	require.NoError(t, err)
	assert.Equal(t, "- bullet one", out)
	assert.Equal(t, 1, s.HistoryLen(), "no-tools requests never touch history")
	assert.Empty(t, p.requests[0].Tools)
}
