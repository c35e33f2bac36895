// Package coordinator is the top-level state machine of the assistant.
// Each query moves Received -> Classifying/Screening (concurrent) ->
// Routed(remote|local) -> Responding -> Done. Transfers run an
// independent lifecycle: None -> Drafted -> AwaitingApproval ->
// Executed or Cancelled.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sriscode/MobileArc/internal/audit"
	"github.com/sriscode/MobileArc/internal/banking"
	"github.com/sriscode/MobileArc/internal/fraud"
	"github.com/sriscode/MobileArc/internal/gateway"
	"github.com/sriscode/MobileArc/internal/identity"
	"github.com/sriscode/MobileArc/internal/intent"
	"github.com/sriscode/MobileArc/internal/llm"
	arcotel "github.com/sriscode/MobileArc/internal/otel"
	"github.com/sriscode/MobileArc/internal/redact"
	"github.com/sriscode/MobileArc/internal/remote"
	"github.com/sriscode/MobileArc/internal/requestctx"
)

var tracer = arcotel.Tracer("github.com/sriscode/MobileArc/internal/coordinator")

// ErrNotInitialized is returned by Process before Initialize has completed.
// Fatal precondition; callers wait and retry later.
var ErrNotInitialized = errors.New("coordinator: not initialized")

// timeoutEngine bounds a single conversational engine call.
const timeoutEngine = 60 * time.Second

// confidenceOverride is the floor below which a classification result is
// replaced with the keyword-only result.
const confidenceOverride = 0.75

// unavailableMessage is shown when the local engine backend is down.
const unavailableMessage = "The assistant is temporarily unavailable. Please try again in a moment."

// Engine is the conversational surface the coordinator drives. Sessions
// satisfy it; tests substitute fakes.
type Engine interface {
	Respond(ctx context.Context, prompt string) (string, error)
	RespondNoTools(ctx context.Context, prompt string) (string, error)
}

// EngineFactory builds a fresh session. sink receives transfer drafts
// staged by tool calls during the session's turns; it may be nil.
type EngineFactory func(instructions string, sink func(*banking.TransferDraft)) Engine

// RemotePeer is the hosted execution backend.
type RemotePeer interface {
	Query(ctx context.Context, req *remote.QueryRequest) (*remote.QueryResponse, error)
	ExecuteTransfer(ctx context.Context, draftID, approvalToken string) error
}

// UserContext carries the per-request view of the user's data.
type UserContext struct {
	UserID             string
	RecentTransactions []banking.Transaction
	LastLocation       *banking.Location
}

// AgentResponse is the outcome of one processed query.
type AgentResponse struct {
	Text        string          `json:"text"`
	Intent      intent.Intent   `json:"intent"`
	Source      string          `json:"source"` // local, remote, or fraud_alert
	FraudSignal *fraud.Signal   `json:"fraud_signal,omitempty"`
	Actions     []remote.Action `json:"actions,omitempty"`
}

// Response sources.
const (
	SourceLocal      = "local"
	SourceRemote     = "remote"
	SourceFraudAlert = "fraud_alert"
)

// Coordinator wires classification, screening, redaction, and the two
// execution engines behind a single Process entry point.
type Coordinator struct {
	router   *intent.Router
	screen   *fraud.Screen
	gateway  *gateway.Gateway
	redactor *redact.Redactor
	auditor  *audit.Logger
	peer     RemotePeer
	prover   identity.Prover
	factory  EngineFactory

	mu          sync.Mutex
	initialized bool
	convo       Engine
	analysis    Engine
	sessionID   string

	pendingMu   sync.Mutex
	pending     *banking.TransferDraft
	pendingFrom string // "local" or "remote"
}

// Deps collects the coordinator's collaborators.
type Deps struct {
	Router   *intent.Router
	Screen   *fraud.Screen
	Gateway  *gateway.Gateway
	Redactor *redact.Redactor
	Auditor  *audit.Logger
	Peer     RemotePeer
	Prover   identity.Prover
	Factory  EngineFactory
}

// New builds a coordinator. Initialize must be called before Process.
func New(d Deps) *Coordinator {
	return &Coordinator{
		router:   d.Router,
		screen:   d.Screen,
		gateway:  d.Gateway,
		redactor: d.Redactor,
		auditor:  d.Auditor,
		peer:     d.Peer,
		prover:   d.Prover,
		factory:  d.Factory,
	}
}

// Initialize creates the conversational and analysis sessions.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	c.convo = c.factory(baseInstructions, c.stageDraft)
	c.analysis = c.factory(analysisInstructions, nil)
	c.initialized = true
	log.Info().Msg("coordinator_initialized")
	return nil
}

// AnalysisEngine exposes the tools-free analysis session for scorers.
func (c *Coordinator) AnalysisEngine() Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analysis
}

// Process runs the query lifecycle end to end.
func (c *Coordinator) Process(ctx context.Context, query string, uctx UserContext) (*AgentResponse, error) {
	ctx, span := tracer.Start(ctx, "coordinator.process")
	defer span.End()

	c.mu.Lock()
	ready := c.initialized
	c.mu.Unlock()
	if !ready {
		return nil, ErrNotInitialized
	}

	ctx = requestctx.SetUserID(ctx, uctx.UserID)

	in := c.router.Classify(ctx, query)
	if in.Confidence < confidenceOverride {
		in = intent.ClassifyKeyword(query)
		span.SetAttributes(attribute.Bool("intent.keyword_override", true))
	}
	span.SetAttributes(
		attribute.String("intent.type", string(in.Type)),
		attribute.Float64("intent.confidence", in.Confidence),
	)

	// Screening progresses independently of routing; the join point below
	// decides which branch its result gates.
	fraudCh := make(chan *fraud.Signal, 1)
	go func() {
		sig, found := c.screen.ScanLatest(ctx, uctx.RecentTransactions)
		if !found {
			fraudCh <- nil
			return
		}
		fraudCh <- sig
	}()

	if in.RequiresRemoteExecution() {
		// Join before handoff so an alert is never dropped.
		sig := <-fraudCh
		return c.processRemote(ctx, query, in, sig, uctx)
	}

	sig := <-fraudCh
	if sig != nil && sig.IsSuspicious {
		span.SetAttributes(attribute.Bool("fraud.short_circuit", true))
		return fraudAlertResponse(in, sig), nil
	}
	return c.processLocal(ctx, query, in, uctx)
}

func (c *Coordinator) processRemote(ctx context.Context, query string, in intent.Intent, sig *fraud.Signal, uctx UserContext) (*AgentResponse, error) {
	sanitized := c.redactor.SanitizeAndAudit(ctx, query, uctx.UserID)

	req := &remote.QueryRequest{
		Query:          sanitized,
		IntentType:     string(in.Type),
		ContextSummary: c.contextSummary(ctx, uctx.UserID),
		SessionID:      c.currentSessionID(),
	}
	resp, err := c.peer.Query(ctx, req)
	if err != nil {
		c.auditor.LogAsync(ctx, "remote_dispatch_failed", map[string]string{
			"user_id":     uctx.UserID,
			"intent_type": string(in.Type),
			"error":       err.Error(),
		})
		return nil, fmt.Errorf("remote dispatch: %w", err)
	}
	c.setSessionID(resp.SessionID)

	for _, action := range resp.Actions {
		c.applyRemoteAction(ctx, action, uctx.UserID)
	}

	out := &AgentResponse{
		Text:        c.redactOutput(ctx, resp.Text, uctx.UserID),
		Intent:      in,
		Source:      SourceRemote,
		FraudSignal: sig,
		Actions:     resp.Actions,
	}
	if sig != nil && sig.IsSuspicious {
		out.Text = fraudAlertText(sig) + "\n\n" + out.Text
	}
	return out, nil
}

func (c *Coordinator) processLocal(ctx context.Context, query string, in intent.Intent, uctx UserContext) (*AgentResponse, error) {
	sanitized := c.redactor.SanitizeAndAudit(ctx, query, uctx.UserID)
	prompt := sanitized
	if summary := c.contextSummary(ctx, uctx.UserID); summary != "" {
		prompt = sanitized + "\n\nAccount context: " + summary
	}

	text, err := c.respondWithRecovery(ctx, prompt)
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrBackendUnavailable):
			log.Warn().Err(err).Msg("engine_backend_unavailable")
			return &AgentResponse{Text: unavailableMessage, Intent: in, Source: SourceLocal}, nil
		case errors.Is(err, llm.ErrContextOverflow), errors.Is(err, llm.ErrGeneration):
			return nil, err
		default:
			c.auditor.LogAsync(ctx, "engine_transport_error", map[string]string{
				"user_id": uctx.UserID,
				"error":   err.Error(),
			})
			return nil, err
		}
	}

	return &AgentResponse{
		Text:   c.redactOutput(ctx, text, uctx.UserID),
		Intent: in,
		Source: SourceLocal,
	}, nil
}

// respondWithRecovery runs the engine call with the overflow recovery
// policy: summarize the existing session, replace it with one embedding
// the summary, retry exactly once, then propagate.
func (c *Coordinator) respondWithRecovery(ctx context.Context, prompt string) (string, error) {
	engCtx, cancel := context.WithTimeout(ctx, timeoutEngine)
	defer cancel()

	engine := c.currentEngine()
	text, err := engine.Respond(engCtx, prompt)
	if err == nil || !errors.Is(err, llm.ErrContextOverflow) {
		return text, err
	}

	log.Info().Msg("context_overflow_recovery_started")
	summary, sumErr := engine.RespondNoTools(engCtx, summarizePrompt)
	if sumErr != nil || strings.TrimSpace(summary) == "" {
		summary = genericSummary
	}

	fresh := c.factory(baseInstructions+"\n\nSummary of the prior conversation:\n"+summary, c.stageDraft)
	c.mu.Lock()
	c.convo = fresh
	c.mu.Unlock()

	retryCtx, retryCancel := context.WithTimeout(ctx, timeoutEngine)
	defer retryCancel()
	return fresh.Respond(retryCtx, prompt)
}

// contextSummary is a short non-sensitive account overview appended to
// prompts. Failures degrade to an empty summary.
func (c *Coordinator) contextSummary(ctx context.Context, userID string) string {
	summary, err := c.gateway.AccountSummary(ctx, userID, "all")
	if err != nil {
		log.Debug().Err(err).Msg("context_summary_unavailable")
		return ""
	}
	return c.redactor.Sanitize(summary)
}

// redactOutput sanitizes engine output and audits a model-output leak
// when redaction changed the text. Distinct event from input leakage.
func (c *Coordinator) redactOutput(ctx context.Context, text, userID string) string {
	cleaned := c.redactor.Sanitize(text)
	if cleaned != text {
		c.auditor.LogAsync(ctx, "model_output_redacted", map[string]string{
			"user_id":       userID,
			"original_hash": audit.HashText(text),
		})
	}
	return cleaned
}

func (c *Coordinator) currentEngine() Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.convo
}

func (c *Coordinator) currentSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Coordinator) setSessionID(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func fraudAlertResponse(in intent.Intent, sig *fraud.Signal) *AgentResponse {
	return &AgentResponse{
		Text:        fraudAlertText(sig),
		Intent:      in,
		Source:      SourceFraudAlert,
		FraudSignal: sig,
	}
}

func fraudAlertText(sig *fraud.Signal) string {
	urgency := "Please review it in your transaction history."
	if sig.RequiresImmediateReview {
		urgency = "It needs your immediate review. If you don't recognize it, report it right away."
	}
	return fmt.Sprintf(
		"Before I answer: a recent charge of $%.2f at %s looks unusual. %s",
		sig.Amount, sig.Merchant, urgency,
	)
}
