package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sriscode/MobileArc/internal/banking"
	"github.com/sriscode/MobileArc/internal/cache"
)

// countingProvider wraps the mock to count provider round trips.
type countingProvider struct {
	banking.Provider
	mu    sync.Mutex
	calls map[string]int
}

func newCountingProvider() *countingProvider {
	return &countingProvider{Provider: banking.NewMockProvider(), calls: map[string]int{}}
}

func (p *countingProvider) count(op string) {
	p.mu.Lock()
	p.calls[op]++
	p.mu.Unlock()
}

func (p *countingProvider) callCount(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *countingProvider) AccountSummary(ctx context.Context, userID, accountType string) (string, error) {
	p.count("account_summary")
	return p.Provider.AccountSummary(ctx, userID, accountType)
}

func (p *countingProvider) MarketRates(ctx context.Context, rateType string) (string, error) {
	p.count("market_rates")
	return p.Provider.MarketRates(ctx, rateType)
}

func (p *countingProvider) RecentTransactions(ctx context.Context, userID string, limit int) ([]banking.Transaction, error) {
	p.count("recent_transactions")
	return p.Provider.RecentTransactions(ctx, userID, limit)
}

type nopAuditor struct{}

func (nopAuditor) LogAsync(context.Context, string, map[string]string) {}

func newTestGateway() (*Gateway, *countingProvider) {
	p := newCountingProvider()
	return New(p, cache.New(), nopAuditor{}), p
}

func TestAccountSummaryCached(t *testing.T) {
	g, p := newTestGateway()
	ctx := context.Background()

	first, err := g.AccountSummary(ctx, "user_1", "all")
	require.NoError(t, err)
	second, err := g.AccountSummary(ctx, "user_1", "all")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, p.callCount("account_summary"), "second read served from cache")
}

func TestRecentTransactionsCached(t *testing.T) {
	g, p := newTestGateway()
	ctx := context.Background()

	first, err := g.RecentTransactions(ctx, "user_1", 100)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := g.RecentTransactions(ctx, "user_1", 100)
	require.NoError(t, err)
	assert.Equal(t, 1, p.callCount("recent_transactions"), "second read served from cache")

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Amount, second[i].Amount)
		assert.Equal(t, first[i].CardNotPresent, second[i].CardNotPresent)
	}

	// A different window is a distinct cache entry.
	_, err = g.RecentTransactions(ctx, "user_1", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, p.callCount("recent_transactions"))
}

func TestStageTransferBounds(t *testing.T) {
	g, _ := newTestGateway()
	ctx := context.Background()

	tests := []struct {
		name   string
		from   string
		to     string
		amount float64
		wantOK bool
	}{
		{"valid", "checking", "savings", 200, true},
		{"at max", "checking", "savings", 10000, true},
		{"zero", "checking", "savings", 0, false},
		{"negative", "checking", "savings", -50, false},
		{"over max", "checking", "savings", 10000.01, false},
		{"same account", "checking", "checking", 100, false},
		{"missing account", "", "savings", 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft, err := g.StageTransfer(ctx, "user_1", tt.from, tt.to, tt.amount, "")
			if !tt.wantOK {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrGuardrailViolation)
				assert.Nil(t, draft)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.amount, draft.Amount, "amount is never adjusted")
			assert.NotEmpty(t, draft.ID)
		})
	}
}

func TestExecuteTransferRequiresToken(t *testing.T) {
	g, _ := newTestGateway()
	ctx := context.Background()

	draft, err := g.StageTransfer(ctx, "user_1", "checking", "savings", 100, "")
	require.NoError(t, err)

	_, err = g.ExecuteTransfer(ctx, "user_1", draft.ID, "")
	assert.ErrorIs(t, err, ErrGuardrailViolation)

	_, err = g.ExecuteTransfer(ctx, "user_1", draft.ID, "tok_abc")
	assert.NoError(t, err)
}

func TestExecuteTransferInvalidatesBalances(t *testing.T) {
	g, p := newTestGateway()
	ctx := context.Background()

	_, err := g.AccountSummary(ctx, "user_1", "all")
	require.NoError(t, err)
	_, err = g.MarketRates(ctx, "hysa")
	require.NoError(t, err)

	draft, err := g.StageTransfer(ctx, "user_1", "checking", "savings", 100, "")
	require.NoError(t, err)
	_, err = g.ExecuteTransfer(ctx, "user_1", draft.ID, "tok_abc")
	require.NoError(t, err)

	_, err = g.AccountSummary(ctx, "user_1", "all")
	require.NoError(t, err)
	assert.Equal(t, 2, p.callCount("account_summary"), "balance cache invalidated by execution")

	_, err = g.MarketRates(ctx, "hysa")
	require.NoError(t, err)
	assert.Equal(t, 1, p.callCount("market_rates"), "rate cache untouched")
}

func TestProviderErrorSkipsCacheWrite(t *testing.T) {
	g, _ := newTestGateway()
	ctx := context.Background()

	_, err := g.MarketRates(ctx, "no_such_rate")
	require.Error(t, err)

	c := cache.New()
	g2 := New(newCountingProvider(), c, nil)
	_, _ = g2.MarketRates(ctx, "no_such_rate")
	assert.Equal(t, 0, c.Len())
}
