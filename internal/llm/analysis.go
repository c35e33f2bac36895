package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sriscode/MobileArc/internal/fraud"
	"github.com/sriscode/MobileArc/internal/intent"
)

// AnalysisEngine is the tools-free session the scorers run against.
type AnalysisEngine interface {
	RespondNoTools(ctx context.Context, prompt string) (string, error)
}

// IntentScorer asks the analysis model for a confidence distribution over
// the intent categories. It is the first tier of the classification chain;
// any failure here makes the router fall through to the embedded model.
type IntentScorer struct {
	engine AnalysisEngine
}

// NewIntentScorer wraps an analysis engine.
func NewIntentScorer(engine AnalysisEngine) *IntentScorer {
	return &IntentScorer{engine: engine}
}

// Score implements intent.Scorer.
func (s *IntentScorer) Score(ctx context.Context, text string) (map[intent.Type]float64, error) {
	prompt := fmt.Sprintf(`Score the user query below against each category. Respond with a JSON
object mapping every category to a confidence in [0,1].
Categories: balance_query, spending_analysis, transfer_request, fraud_report,
investment_query, savings_advice, bill_payment, general.
Query: %q`, text)

	raw, err := s.engine.RespondNoTools(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("intent scoring: %w", err)
	}

	var scores map[string]float64
	if err := json.Unmarshal([]byte(extractJSON(raw)), &scores); err != nil {
		return nil, fmt.Errorf("intent scoring: decode %w", err)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("intent scoring: empty distribution")
	}

	out := make(map[intent.Type]float64, len(scores))
	for k, v := range scores {
		out[intent.Type(k)] = v
	}
	return out, nil
}

// FraudScorer asks the analysis model to score a transaction feature
// vector. Failures make the screen fall back to its rule-based score.
type FraudScorer struct {
	engine AnalysisEngine
}

// NewFraudScorer wraps an analysis engine.
func NewFraudScorer(engine AnalysisEngine) *FraudScorer {
	return &FraudScorer{engine: engine}
}

// Score implements fraud.Scorer. Lower scores are more anomalous.
func (s *FraudScorer) Score(ctx context.Context, features [fraud.FeatureCount]float64) (float64, error) {
	prompt := fmt.Sprintf(`Score this transaction feature vector for anomaly. The features are:
normalized amount, hour sine, hour cosine, merchant category risk,
distance from last location in km, 1h velocity, 24h velocity,
card-not-present flag.
Respond with a JSON object {"score": s} where s is in [-1, 1] and lower
means more anomalous.
Features: %v`, features)

	raw, err := s.engine.RespondNoTools(ctx, prompt)
	if err != nil {
		return 0, fmt.Errorf("fraud scoring: %w", err)
	}

	var out struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return 0, fmt.Errorf("fraud scoring: decode %w", err)
	}
	if out.Score < -1 || out.Score > 1 {
		return 0, fmt.Errorf("fraud scoring: score %.3f out of range", out.Score)
	}
	return out.Score, nil
}

// extractJSON strips surrounding prose or code fences from a model reply,
// keeping the outermost JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
