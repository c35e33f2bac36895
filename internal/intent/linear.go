package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/sriscode/MobileArc/patterns"
)

// ErrNoVocabularyMatch is returned when none of the query's terms appear in
// the model vocabulary, so the linear model has no signal to score on.
var ErrNoVocabularyMatch = errors.New("no vocabulary terms matched")

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// LinearModel is a TF-IDF bag-of-ngrams logistic-regression classifier,
// loaded from the quantized training artifact (classes, vocab, idf, weights,
// bias). It mirrors the vectorizer settings the artifact was trained with:
// lowercased word tokens, unigrams and bigrams, L2-normalized features.
type LinearModel struct {
	classes []Type
	vocab   map[string]int
	idf     []float64
	weights [][]float64 // [class][feature]
	bias    []float64
}

type modelArtifact struct {
	Classes []string       `json:"classes"`
	Vocab   map[string]int `json:"vocab"`
	IDF     []float64      `json:"idf"`
	W       [][]float64    `json:"W"`
	B       []float64      `json:"b"`
}

// LoadLinearModel parses a model artifact from JSON bytes.
func LoadLinearModel(data []byte) (*LinearModel, error) {
	var art modelArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("parsing intent model artifact: %w", err)
	}
	if len(art.Classes) == 0 || len(art.W) != len(art.Classes) || len(art.B) != len(art.Classes) {
		return nil, fmt.Errorf("intent model artifact is inconsistent: %d classes, %d weight rows, %d biases",
			len(art.Classes), len(art.W), len(art.B))
	}
	for i, row := range art.W {
		if len(row) != len(art.IDF) {
			return nil, fmt.Errorf("intent model weight row %d has %d features, want %d", i, len(row), len(art.IDF))
		}
	}

	classes := make([]Type, len(art.Classes))
	for i, c := range art.Classes {
		classes[i] = Type(c)
	}
	return &LinearModel{
		classes: classes,
		vocab:   art.Vocab,
		idf:     art.IDF,
		weights: art.W,
		bias:    art.B,
	}, nil
}

// DefaultLinearModel loads the embedded artifact.
func DefaultLinearModel() (*LinearModel, error) {
	return LoadLinearModel(patterns.IntentModelJSON())
}

// Classify scores text against every class and returns the argmax with its
// softmax probability. Returns ErrNoVocabularyMatch when the query shares
// no terms with the vocabulary.
func (m *LinearModel) Classify(text string) (Intent, error) {
	features := m.vectorize(text)
	if len(features) == 0 {
		return Intent{Type: General, Confidence: 0}, ErrNoVocabularyMatch
	}

	logits := make([]float64, len(m.classes))
	for c := range m.classes {
		logits[c] = m.bias[c]
		for j, x := range features {
			logits[c] += m.weights[c][j] * x
		}
	}

	probs := softmax(logits)
	best := 0
	for c := range probs {
		if probs[c] > probs[best] {
			best = c
		}
	}
	return Intent{Type: m.classes[best], Confidence: probs[best]}, nil
}

// vectorize builds a sparse L2-normalized tf-idf vector over unigrams and
// bigrams of the lowercased, alphanumeric-tokenized text.
func (m *LinearModel) vectorize(text string) map[int]float64 {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)

	tf := make(map[int]float64)
	for i, tok := range tokens {
		if j, ok := m.vocab[tok]; ok {
			tf[j]++
		}
		if i+1 < len(tokens) {
			if j, ok := m.vocab[tok+" "+tokens[i+1]]; ok {
				tf[j]++
			}
		}
	}
	if len(tf) == 0 {
		return nil
	}

	var norm float64
	for j, count := range tf {
		tf[j] = count * m.idf[j]
		norm += tf[j] * tf[j]
	}
	norm = math.Sqrt(norm)
	for j := range tf {
		tf[j] /= norm
	}
	return tf
}

func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}
	var sum float64
	out := make([]float64, len(logits))
	for i, l := range logits {
		out[i] = math.Exp(l - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
