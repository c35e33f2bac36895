package intent

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	arcotel "github.com/sriscode/MobileArc/internal/otel"
)

var tracer = arcotel.Tracer("github.com/sriscode/MobileArc/internal/intent")

// Scorer is an externally supplied learned classifier. It returns a
// probability distribution over intent types for the given text. The core
// treats it as opaque; any error (model missing, inference failure) moves
// the router to the next fallback stage.
type Scorer interface {
	Score(ctx context.Context, text string) (map[Type]float64, error)
}

// Router classifies queries through the ordered fallback chain.
//
// Precedence is fixed and documented: learned scorer first when available,
// then the linear model, then keyword rules. A linear-model result with no
// vocabulary match counts as a miss and falls through to keywords.
type Router struct {
	scorer Scorer       // optional
	linear *LinearModel // optional
}

// NewRouter creates a router. Either argument may be nil; the chain skips
// unavailable stages.
func NewRouter(scorer Scorer, linear *LinearModel) *Router {
	return &Router{scorer: scorer, linear: linear}
}

// Classify turns free text into a typed intent plus confidence.
func (r *Router) Classify(ctx context.Context, text string) Intent {
	ctx, span := tracer.Start(ctx, "intent.classify")
	defer span.End()

	result, stage := r.classify(ctx, text)
	span.SetAttributes(
		attribute.String("intent.type", string(result.Type)),
		attribute.Float64("intent.confidence", result.Confidence),
		attribute.String("intent.stage", stage),
	)
	return result
}

func (r *Router) classify(ctx context.Context, text string) (Intent, string) {
	if r.scorer != nil {
		dist, err := r.scorer.Score(ctx, text)
		if err == nil && len(dist) > 0 {
			return argmax(dist), "scorer"
		}
		if err != nil {
			log.Debug().Err(err).Msg("intent_scorer_unavailable")
		}
	}

	if r.linear != nil {
		result, err := r.linear.Classify(text)
		if err == nil {
			return result, "linear"
		}
		if !errors.Is(err, ErrNoVocabularyMatch) {
			log.Debug().Err(err).Msg("intent_linear_failed")
		}
	}

	return ClassifyKeyword(text), "keyword"
}

func argmax(dist map[Type]float64) Intent {
	var best Type
	bestP := -1.0
	for t, p := range dist {
		if p > bestP {
			best, bestP = t, p
		}
	}
	return Intent{Type: best, Confidence: bestP}
}
