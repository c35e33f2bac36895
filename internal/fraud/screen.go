package fraud

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sriscode/MobileArc/internal/banking"
	arcotel "github.com/sriscode/MobileArc/internal/otel"
)

var tracer = arcotel.Tracer("github.com/sriscode/MobileArc/internal/fraud")

// Classification thresholds on the signed anomaly score (lower = more
// anomalous). Immediate review implies suspicious by construction.
const (
	SuspiciousThreshold      = -0.15
	ImmediateReviewThreshold = -0.30
)

// Rule-fallback penalties, applied cumulatively from a zero baseline.
const (
	penaltyAmountOver500  = 0.05
	penaltyAmountOver2000 = 0.10
	penaltyCardNotPresent = 0.08
	penaltyHighVelocity   = 0.12
	penaltyFarDistance    = 0.20
	penaltyHighMCCRisk    = 0.10
)

// Signal is the outcome of scoring one transaction.
type Signal struct {
	TransactionID           string  `json:"transaction_id"`
	Merchant                string  `json:"merchant"`
	Amount                  float64 `json:"amount"`
	AnomalyScore            float64 `json:"anomaly_score"`
	IsSuspicious            bool    `json:"is_suspicious"`
	Confidence              float64 `json:"confidence"`
	RequiresImmediateReview bool    `json:"requires_immediate_review"`
}

// Scorer is an externally supplied learned anomaly scorer (isolation-forest
// style). It consumes the fixed 8-dimensional feature vector and returns a
// signed score where lower means more anomalous. Any error moves scoring to
// the rule-based fallback.
type Scorer interface {
	Score(ctx context.Context, features [FeatureCount]float64) (float64, error)
}

// Screen scores transactions against the rolling history.
type Screen struct {
	scorer  Scorer // optional
	history *History
}

// NewScreen creates a fraud screen. scorer may be nil, in which case every
// transaction is scored by the rule fallback.
func NewScreen(scorer Scorer, history *History) *Screen {
	return &Screen{scorer: scorer, history: history}
}

// History exposes the rolling history for the sync process.
func (s *Screen) History() *History {
	return s.history
}

// ScanLatest scores each transaction in order and returns the first
// suspicious signal, or (nil, false) when nothing is suspicious.
func (s *Screen) ScanLatest(ctx context.Context, txns []banking.Transaction) (*Signal, bool) {
	ctx, span := tracer.Start(ctx, "fraud.scan_latest")
	defer span.End()
	span.SetAttributes(attribute.Int("fraud.transactions", len(txns)))

	for _, txn := range txns {
		sig := s.scoreOne(ctx, txn)
		if sig.IsSuspicious {
			span.SetAttributes(
				attribute.String("fraud.transaction_id", sig.TransactionID),
				attribute.Float64("fraud.anomaly_score", sig.AnomalyScore),
				attribute.Bool("fraud.immediate_review", sig.RequiresImmediateReview),
			)
			log.Warn().
				Str("transaction_id", sig.TransactionID).
				Float64("anomaly_score", sig.AnomalyScore).
				Bool("immediate_review", sig.RequiresImmediateReview).
				Msg("fraud_signal_detected")
			return &sig, true
		}
	}
	return nil, false
}

// scoreOne runs the scorer fallback chain for a single transaction and
// classifies the resulting score.
func (s *Screen) scoreOne(ctx context.Context, txn banking.Transaction) Signal {
	snap := s.history.Snapshot()
	features := Features(txn, snap)

	var score float64
	if s.scorer != nil {
		learned, err := s.scorer.Score(ctx, features)
		if err == nil {
			score = learned
		} else {
			log.Debug().Err(err).Str("transaction_id", txn.ID).Msg("anomaly_scorer_unavailable")
			score = ruleScore(txn, features)
		}
	} else {
		score = ruleScore(txn, features)
	}

	return classify(txn, score)
}

// ruleScore is the deterministic fallback: fixed penalties subtracted from
// a zero baseline, with the running total treated as the anomaly score.
func ruleScore(txn banking.Transaction, features [FeatureCount]float64) float64 {
	score := 0.0
	if txn.Amount > 2000 {
		score -= penaltyAmountOver2000
	} else if txn.Amount > 500 {
		score -= penaltyAmountOver500
	}
	if txn.CardNotPresent {
		score -= penaltyCardNotPresent
	}
	if features[5] > 5 {
		score -= penaltyHighVelocity
	}
	if features[4] > 500 {
		score -= penaltyFarDistance
	}
	if features[3] == highMCCRisk {
		score -= penaltyHighMCCRisk
	}
	return score
}

func classify(txn banking.Transaction, score float64) Signal {
	return Signal{
		TransactionID:           txn.ID,
		Merchant:                txn.Merchant,
		Amount:                  txn.Amount,
		AnomalyScore:            score,
		IsSuspicious:            score < SuspiciousThreshold,
		RequiresImmediateReview: score < ImmediateReviewThreshold,
		Confidence:              math.Min(math.Abs(score)*2, 1.0),
	}
}
