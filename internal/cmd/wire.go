package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sriscode/MobileArc/internal/audit"
	"github.com/sriscode/MobileArc/internal/banking"
	"github.com/sriscode/MobileArc/internal/cache"
	"github.com/sriscode/MobileArc/internal/config"
	"github.com/sriscode/MobileArc/internal/coordinator"
	"github.com/sriscode/MobileArc/internal/fraud"
	"github.com/sriscode/MobileArc/internal/gateway"
	"github.com/sriscode/MobileArc/internal/identity"
	"github.com/sriscode/MobileArc/internal/intent"
	"github.com/sriscode/MobileArc/internal/llm"
	"github.com/sriscode/MobileArc/internal/redact"
	"github.com/sriscode/MobileArc/internal/remote"
)

// stack holds the fully wired application.
type stack struct {
	cfg     *config.Config
	auditor *audit.Logger
	gateway *gateway.Gateway
	coord   *coordinator.Coordinator
}

func (s *stack) Close() {
	if s.auditor != nil {
		_ = s.auditor.Close()
	}
}

// analysisProxy routes scorer calls to the coordinator's current analysis
// session. The indirection exists because the scorers are built before
// the coordinator that owns the session.
type analysisProxy struct {
	coord **coordinator.Coordinator
}

func (p analysisProxy) RespondNoTools(ctx context.Context, prompt string) (string, error) {
	c := *p.coord
	if c == nil {
		return "", fmt.Errorf("analysis engine not ready")
	}
	return c.AnalysisEngine().RespondNoTools(ctx, prompt)
}

// buildStack wires the full agent from configuration.
func buildStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	auditor, err := audit.NewLogger(filepath.Join(cfg.DataDir, "audit.db"))
	if err != nil {
		return nil, fmt.Errorf("initializing audit log: %w", err)
	}

	redactor, err := redact.New(auditor)
	if err != nil {
		auditor.Close()
		return nil, fmt.Errorf("loading redaction rules: %w", err)
	}

	provider := banking.NewMockProvider()
	gw := gateway.New(provider, cache.New(), auditor)
	registry := gateway.DefaultRegistry(gw)

	var engineProvider llm.Provider
	switch cfg.Engine.Provider {
	case "openai":
		engineProvider = llm.NewOpenAIProvider(cfg.Engine.OpenAIAPIKey, cfg.Engine.OpenAIBaseURL)
	default:
		engineProvider = llm.NewOllamaProvider(cfg.Engine.OllamaBaseURL)
	}

	// A nil sink marks the analysis session, which must not see tools.
	factory := func(instructions string, sink func(*banking.TransferDraft)) coordinator.Engine {
		reg := registry
		if sink == nil {
			reg = nil
		}
		session := llm.NewSession(engineProvider, cfg.Engine.Model, instructions, reg)
		session.DraftSink = sink
		return session
	}

	prover := identity.NewCachingProver(identity.NewDeviceProver(cfg.DeviceID))
	peer := remote.NewClient(cfg.Remote.BaseURL, prover)

	linear, err := intent.DefaultLinearModel()
	if err != nil {
		auditor.Close()
		return nil, fmt.Errorf("loading intent model: %w", err)
	}

	var coord *coordinator.Coordinator
	proxy := analysisProxy{coord: &coord}

	coord = coordinator.New(coordinator.Deps{
		Router:   intent.NewRouter(llm.NewIntentScorer(proxy), linear),
		Screen:   fraud.NewScreen(llm.NewFraudScorer(proxy), fraud.NewHistory()),
		Gateway:  gw,
		Redactor: redactor,
		Auditor:  auditor,
		Peer:     peer,
		Prover:   prover,
		Factory:  factory,
	})
	if err := coord.Initialize(ctx); err != nil {
		auditor.Close()
		return nil, fmt.Errorf("initializing coordinator: %w", err)
	}

	return &stack{cfg: cfg, auditor: auditor, gateway: gw, coord: coord}, nil
}
