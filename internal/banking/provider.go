// Package banking defines the read/write data-provider interface the agent
// core consumes, plus the domain types shared by fraud screening and the
// tool gateway. Real providers live behind the bank's APIs; the core only
// sees this interface and the mock implementation used for development.
package banking

import (
	"context"
	"errors"
	"time"
)

// Domain errors surfaced by providers.
var (
	ErrDraftNotFound  = errors.New("transfer draft not found")
	ErrRateUnknown    = errors.New("rate type unknown")
	ErrAccountUnknown = errors.New("account type unknown")
)

// Location is a geocoordinate attached to a card-present transaction.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Transaction is a single account transaction as returned by the provider.
// The core only reads a bounded recent window for rolling statistics and
// fraud screening.
type Transaction struct {
	ID             string    `json:"id"`
	Merchant       string    `json:"merchant"`
	Amount         float64   `json:"amount"`
	Timestamp      time.Time `json:"timestamp"`
	Category       string    `json:"category"`
	CardNotPresent bool      `json:"card_not_present"`
	Location       *Location `json:"location,omitempty"`
	MCC            string    `json:"mcc"`
}

// TransferDraft is an unexecuted, reviewable money-movement proposal.
// Immutable once created; destroyed on approval-execute or cancel.
type TransferDraft struct {
	ID          string    `json:"id"`
	FromAccount string    `json:"from_account"`
	ToAccount   string    `json:"to_account"`
	Amount      float64   `json:"amount"`
	Memo        string    `json:"memo"`
	CreatedAt   time.Time `json:"created_at"`
}

// Provider is the read/write banking data API the gateway wraps.
type Provider interface {
	// AccountSummary returns balances for one account type or "all".
	// Implementations must never include raw card or account numbers.
	AccountSummary(ctx context.Context, userID, accountType string) (string, error)
	// RecentTransactions returns up to limit recent transactions, newest first.
	RecentTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
	// MarketRates returns current savings/CD/money-market rates.
	MarketRates(ctx context.Context, rateType string) (string, error)
	// CreditScore returns the user's current credit score report.
	CreditScore(ctx context.Context, userID string) (string, error)
	// SpendingAnalysis summarizes spending over the trailing period.
	SpendingAnalysis(ctx context.Context, userID string, days int, category string) (string, error)
	// FileFraudDispute files a formal dispute and returns the case summary.
	FileFraudDispute(ctx context.Context, userID, transactionID, reason string) (string, error)
	// CreateTransferDraft stages a transfer. Bound checks happen in the
	// gateway before this is ever called.
	CreateTransferDraft(ctx context.Context, userID, fromAccount, toAccount string, amount float64, memo string) (*TransferDraft, error)
	// ExecuteTransfer executes a previously approved draft.
	ExecuteTransfer(ctx context.Context, userID, draftID, confirmationToken string) (string, error)
}
