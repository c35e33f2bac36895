package banking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockProvider serves fixture data with small artificial latencies, standing
// in for the bank's account, transaction, rates, and transfer APIs during
// development and tests.
type MockProvider struct {
	mu     sync.Mutex
	drafts map[string]*TransferDraft
	now    func() time.Time
}

// NewMockProvider creates a mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		drafts: make(map[string]*TransferDraft),
		now:    time.Now,
	}
}

type mockAccount struct {
	balance   float64
	available float64
	last4     string
}

var mockAccounts = map[string]mockAccount{
	"checking": {balance: 4821.50, available: 4721.50, last4: "4821"},
	"savings":  {balance: 12450.00, available: 12450.00, last4: "9034"},
	"credit":   {balance: -1240.00, available: 8760.00, last4: "1337"},
}

// AccountSummary returns balances, masking everything but the last four digits.
func (p *MockProvider) AccountSummary(ctx context.Context, userID, accountType string) (string, error) {
	if accountType != "all" {
		a, ok := mockAccounts[accountType]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrAccountUnknown, accountType)
		}
		return fmt.Sprintf("%s (••••%s): $%.2f current, $%.2f available",
			title(accountType), a.last4, a.balance, a.available), nil
	}

	lines := []string{"Account balances:"}
	for _, atype := range []string{"checking", "savings", "credit"} {
		a := mockAccounts[atype]
		lines = append(lines, fmt.Sprintf("• %s (••••%s): $%.2f", title(atype), a.last4, a.balance))
	}
	return strings.Join(lines, "\n"), nil
}

// RecentTransactions returns a synthetic recent-transaction window.
func (p *MockProvider) RecentTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	now := p.now()
	txns := []Transaction{
		{ID: "txn_1001", Merchant: "Whole Foods", Amount: 84.12, Timestamp: now.Add(-2 * time.Hour), Category: "groceries", MCC: "5411", Location: &Location{Latitude: 40.7128, Longitude: -74.0060}},
		{ID: "txn_1002", Merchant: "Chipotle", Amount: 14.85, Timestamp: now.Add(-26 * time.Hour), Category: "dining", MCC: "5814", Location: &Location{Latitude: 40.7306, Longitude: -73.9866}},
		{ID: "txn_1003", Merchant: "Amazon", Amount: 156.23, Timestamp: now.Add(-2 * 24 * time.Hour), Category: "shopping", MCC: "5942", CardNotPresent: true},
		{ID: "txn_1004", Merchant: "Con Edison", Amount: 120.71, Timestamp: now.Add(-4 * 24 * time.Hour), Category: "utilities", MCC: "4900", CardNotPresent: true},
		{ID: "txn_1005", Merchant: "MTA", Amount: 2.90, Timestamp: now.Add(-5 * 24 * time.Hour), Category: "transport", MCC: "4111", Location: &Location{Latitude: 40.7527, Longitude: -73.9772}},
	}
	if limit > 0 && limit < len(txns) {
		txns = txns[:limit]
	}
	return txns, nil
}

var mockRates = map[string]string{
	"hysa":         "HYSA: 0.01% | Best market: 5.25% | National avg: 0.58%",
	"cd_6mo":       "6-month CD: 4.25% APY | Best market: 5.40% | Min: $1,000",
	"cd_1yr":       "1-year CD: 4.50% APY | Best market: 5.35% | Min: $1,000",
	"money_market": "Money Market: 0.01% | Best market: 5.15% | National avg: 0.64%",
}

// MarketRates returns the fixture rate table entry.
func (p *MockProvider) MarketRates(ctx context.Context, rateType string) (string, error) {
	r, ok := mockRates[rateType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrRateUnknown, rateType)
	}
	return r, nil
}

// CreditScore returns a fixture credit report summary.
func (p *MockProvider) CreditScore(ctx context.Context, userID string) (string, error) {
	return "Credit score: 742 (VantageScore 3.0) | +6 since last month | Utilization: 12%", nil
}

// SpendingAnalysis returns a fixture category breakdown.
func (p *MockProvider) SpendingAnalysis(ctx context.Context, userID string, days int, category string) (string, error) {
	return fmt.Sprintf(`Spending Analysis — Last %d days:
Total spent: $847.32 (vs prior period: +$124.50)
• Dining: $187.15 (22%%) • Groceries: $203.84 (24%%) • Transport: $89.40 (11%%)
• Shopping: $156.23 (18%%) • Entertainment: $89.99 (11%%) • Utilities: $120.71 (14%%)
Top merchants: Whole Foods, Chipotle, Amazon`, days), nil
}

// FileFraudDispute files a dispute and returns the case reference.
func (p *MockProvider) FileFraudDispute(ctx context.Context, userID, transactionID, reason string) (string, error) {
	suffix := transactionID
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	caseID := fmt.Sprintf("DISP-%s-%s", strings.ToUpper(suffix), p.now().Format("0102"))
	return fmt.Sprintf("Fraud dispute filed.\nCase ID: %s\nTransaction: %s\nReason: %s\nProvisional credit: 1-2 business days",
		caseID, transactionID, reason), nil
}

// CreateTransferDraft stages a transfer draft. Amount bounds are enforced
// upstream by the gateway; the mock records the draft as-is.
func (p *MockProvider) CreateTransferDraft(ctx context.Context, userID, fromAccount, toAccount string, amount float64, memo string) (*TransferDraft, error) {
	draft := &TransferDraft{
		ID:          "draft_" + uuid.New().String()[:8],
		FromAccount: fromAccount,
		ToAccount:   toAccount,
		Amount:      amount,
		Memo:        memo,
		CreatedAt:   p.now(),
	}
	p.mu.Lock()
	p.drafts[draft.ID] = draft
	p.mu.Unlock()
	return draft, nil
}

// ExecuteTransfer executes a staged draft and removes it.
func (p *MockProvider) ExecuteTransfer(ctx context.Context, userID, draftID, confirmationToken string) (string, error) {
	p.mu.Lock()
	_, ok := p.drafts[draftID]
	delete(p.drafts, draftID)
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
	}
	suffix := draftID
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return fmt.Sprintf("Transfer %s executed. Confirmation: TXN_%s", draftID, strings.ToUpper(suffix)), nil
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
