package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScorer struct {
	dist map[Type]float64
	err  error
}

func (s *stubScorer) Score(_ context.Context, _ string) (map[Type]float64, error) {
	return s.dist, s.err
}

func TestRequiresRemoteExecution(t *testing.T) {
	assert.True(t, Intent{Type: TransferRequest}.RequiresRemoteExecution())
	assert.True(t, Intent{Type: InvestmentQuery}.RequiresRemoteExecution())
	assert.True(t, Intent{Type: BillPayment}.RequiresRemoteExecution())

	assert.False(t, Intent{Type: BalanceQuery}.RequiresRemoteExecution())
	assert.False(t, Intent{Type: FraudReport}.RequiresRemoteExecution())
	assert.False(t, Intent{Type: General}.RequiresRemoteExecution())
}

func TestClassifyKeyword(t *testing.T) {
	tests := []struct {
		text    string
		want    Type
		minConf float64
	}{
		{"What's my balance?", BalanceQuery, 0.8},
		{"transfer $200 to savings", TransferRequest, 0.8},
		{"how much did I spend on dining", SpendingAnalysis, 0.8},
		{"I think this charge is fraud", FraudReport, 0.8},
		{"should I invest in a cd", InvestmentQuery, 0.8},
		{"help me save more each month", SavingsAdvice, 0.75},
		{"pay my electricity bill", BillPayment, 0.8},
		{"tell me a joke", General, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := ClassifyKeyword(tt.text)
			assert.Equal(t, tt.want, got.Type)
			assert.GreaterOrEqual(t, got.Confidence, tt.minConf)
		})
	}
}

func TestLinearModelClassify(t *testing.T) {
	model, err := DefaultLinearModel()
	require.NoError(t, err)

	tests := []struct {
		text string
		want Type
	}{
		{"what is my balance", BalanceQuery},
		{"send money to my savings", TransferRequest},
		{"report a fraudulent charge", FraudReport},
		{"grow my investment portfolio", InvestmentQuery},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := model.Classify(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Type)
			assert.Greater(t, got.Confidence, 0.5)
		})
	}
}

func TestLinearModelNoVocabularyMatch(t *testing.T) {
	model, err := DefaultLinearModel()
	require.NoError(t, err)

	_, err = model.Classify("xylophone quartz zeppelin")
	assert.ErrorIs(t, err, ErrNoVocabularyMatch)
}

func TestRouterScorerFirst(t *testing.T) {
	scorer := &stubScorer{dist: map[Type]float64{SavingsAdvice: 0.92, General: 0.08}}
	r := NewRouter(scorer, nil)

	got := r.Classify(context.Background(), "anything")
	assert.Equal(t, SavingsAdvice, got.Type)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)
}

func TestRouterFallsBackToLinear(t *testing.T) {
	model, err := DefaultLinearModel()
	require.NoError(t, err)
	scorer := &stubScorer{err: errors.New("model unavailable")}
	r := NewRouter(scorer, model)

	got := r.Classify(context.Background(), "what is my balance")
	assert.Equal(t, BalanceQuery, got.Type)
}

func TestRouterFallsBackToKeyword(t *testing.T) {
	scorer := &stubScorer{err: errors.New("model unavailable")}
	r := NewRouter(scorer, nil)

	got := r.Classify(context.Background(), "What's my balance?")
	assert.Equal(t, BalanceQuery, got.Type)
	assert.GreaterOrEqual(t, got.Confidence, 0.8)
}

func TestRouterLinearMissFallsToKeyword(t *testing.T) {
	model, err := DefaultLinearModel()
	require.NoError(t, err)
	r := NewRouter(nil, model)

	// No vocabulary overlap, so the linear tier misses.
	got := r.Classify(context.Background(), "don't recognize this charge")
	assert.Equal(t, FraudReport, got.Type)
}

func TestRouterNilScorerNilModel(t *testing.T) {
	r := NewRouter(nil, nil)
	got := r.Classify(context.Background(), "transfer funds please")
	assert.Equal(t, TransferRequest, got.Type)
}
