// Package gateway mediates all tool/data access between the agent and the
// banking provider. Every read goes cache-check → provider → cache-store
// with the operation's TTL class; writes invalidate affected entries.
// Transfer staging is the guardrail boundary: out-of-bounds amounts are
// refused here with a descriptive message and can never be bypassed by any
// caller, including the conversational engine.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sriscode/MobileArc/internal/banking"
	"github.com/sriscode/MobileArc/internal/cache"
	arcotel "github.com/sriscode/MobileArc/internal/otel"
)

var tracer = arcotel.Tracer("github.com/sriscode/MobileArc/internal/gateway")

// Transfer amount bounds, enforced at staging time. Violations are refused,
// never clamped.
const (
	TransferMinAmount = 0.01
	TransferMaxAmount = 10000.0
)

// ErrGuardrailViolation marks a request refused at the safety boundary.
// The wrapped message is human-readable and safe to surface.
var ErrGuardrailViolation = errors.New("guardrail violation")

// Tool names double as cache-key prefixes.
const (
	ToolAccountSummary   = "account_summary"
	ToolTransactions     = "recent_transactions"
	ToolMarketRates      = "market_rates"
	ToolCreditScore      = "credit_score"
	ToolSpendingAnalysis = "spending_analysis"
)

// Per-tool TTL classes. The cache itself is TTL-agnostic.
const (
	TTLBalances     = 30 * time.Second
	TTLTransactions = 60 * time.Second
	TTLRates        = time.Hour
	TTLCreditScore  = 24 * time.Hour
)

// Auditor receives transfer lifecycle events. *audit.Logger satisfies it.
type Auditor interface {
	LogAsync(ctx context.Context, event string, metadata map[string]string)
}

// Gateway wraps a banking provider with the response cache and guardrails.
type Gateway struct {
	provider banking.Provider
	cache    *cache.Cache
	auditor  Auditor
}

// New creates a gateway. auditor may be nil (events are then skipped).
func New(provider banking.Provider, c *cache.Cache, auditor Auditor) *Gateway {
	return &Gateway{provider: provider, cache: c, auditor: auditor}
}

// AccountSummary returns balances for accountType ("all", "checking",
// "savings", "credit"), cached for the balance TTL class.
func (g *Gateway) AccountSummary(ctx context.Context, userID, accountType string) (string, error) {
	key := cache.Key(ToolAccountSummary, map[string]string{"user": userID, "account_type": accountType})
	return g.cached(ctx, key, TTLBalances, func() (string, error) {
		return g.provider.AccountSummary(ctx, userID, accountType)
	})
}

// RecentTransactions returns the recent window, cached for the transaction
// TTL class. The typed slice round-trips through the response cache as JSON.
func (g *Gateway) RecentTransactions(ctx context.Context, userID string, limit int) ([]banking.Transaction, error) {
	key := cache.Key(ToolTransactions, map[string]string{"user": userID, "limit": strconv.Itoa(limit)})
	raw, err := g.cached(ctx, key, TTLTransactions, func() (string, error) {
		txns, err := g.provider.RecentTransactions(ctx, userID, limit)
		if err != nil {
			return "", err
		}
		encoded, err := json.Marshal(txns)
		if err != nil {
			return "", fmt.Errorf("encoding transactions: %w", err)
		}
		return string(encoded), nil
	})
	if err != nil {
		return nil, err
	}
	var txns []banking.Transaction
	if err := json.Unmarshal([]byte(raw), &txns); err != nil {
		return nil, fmt.Errorf("decoding cached transactions: %w", err)
	}
	return txns, nil
}

// MarketRates returns current rates, cached for an hour.
func (g *Gateway) MarketRates(ctx context.Context, rateType string) (string, error) {
	key := cache.Key(ToolMarketRates, map[string]string{"rate_type": rateType})
	return g.cached(ctx, key, TTLRates, func() (string, error) {
		return g.provider.MarketRates(ctx, rateType)
	})
}

// CreditScore returns the credit report, cached for a day.
func (g *Gateway) CreditScore(ctx context.Context, userID string) (string, error) {
	key := cache.Key(ToolCreditScore, map[string]string{"user": userID})
	return g.cached(ctx, key, TTLCreditScore, func() (string, error) {
		return g.provider.CreditScore(ctx, userID)
	})
}

// SpendingAnalysis returns the category breakdown, cached for a minute.
func (g *Gateway) SpendingAnalysis(ctx context.Context, userID string, days int, category string) (string, error) {
	key := cache.Key(ToolSpendingAnalysis, map[string]string{
		"user": userID, "days": strconv.Itoa(days), "category": category,
	})
	return g.cached(ctx, key, TTLTransactions, func() (string, error) {
		return g.provider.SpendingAnalysis(ctx, userID, days, category)
	})
}

// FileFraudDispute files a dispute (uncached write) and audits the case.
func (g *Gateway) FileFraudDispute(ctx context.Context, userID, transactionID, reason string) (string, error) {
	result, err := g.provider.FileFraudDispute(ctx, userID, transactionID, reason)
	if err != nil {
		return "", fmt.Errorf("filing fraud dispute: %w", err)
	}
	if g.auditor != nil {
		g.auditor.LogAsync(ctx, "fraud_dispute_filed", map[string]string{
			"user_id":        userID,
			"transaction_id": transactionID,
		})
	}
	return result, nil
}

// StageTransfer validates the hard amount bound and account sanity, then
// creates a draft through the provider. A violation yields a declined
// result with a descriptive refusal; amounts are never adjusted.
func (g *Gateway) StageTransfer(ctx context.Context, userID, fromAccount, toAccount string, amount float64, memo string) (*banking.TransferDraft, error) {
	ctx, span := tracer.Start(ctx, "gateway.stage_transfer")
	defer span.End()
	span.SetAttributes(attribute.Float64("transfer.amount", amount))

	if err := validateTransfer(fromAccount, toAccount, amount); err != nil {
		span.RecordError(err)
		log.Warn().
			Str("user_id", userID).
			Float64("amount", amount).
			Msg("transfer_stage_refused")
		return nil, err
	}

	draft, err := g.provider.CreateTransferDraft(ctx, userID, fromAccount, toAccount, amount, memo)
	if err != nil {
		return nil, fmt.Errorf("creating transfer draft: %w", err)
	}

	if g.auditor != nil {
		g.auditor.LogAsync(ctx, "transfer_staged", map[string]string{
			"user_id":  userID,
			"draft_id": draft.ID,
			"amount":   fmt.Sprintf("%.2f", draft.Amount),
		})
	}
	return draft, nil
}

// ExecuteTransfer executes an approved draft, invalidates every cached
// balance entry, and audits the execution. confirmationToken must come from
// the approval flow; the gateway refuses empty tokens outright.
func (g *Gateway) ExecuteTransfer(ctx context.Context, userID, draftID, confirmationToken string) (string, error) {
	ctx, span := tracer.Start(ctx, "gateway.execute_transfer")
	defer span.End()

	if confirmationToken == "" {
		return "", fmt.Errorf("%w: transfer execution requires a confirmation token from the approval flow", ErrGuardrailViolation)
	}

	result, err := g.provider.ExecuteTransfer(ctx, userID, draftID, confirmationToken)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("executing transfer: %w", err)
	}

	g.cache.InvalidateByPrefix(ToolAccountSummary)

	if g.auditor != nil {
		g.auditor.LogAsync(ctx, "transfer_executed", map[string]string{
			"user_id":  userID,
			"draft_id": draftID,
		})
	}
	return result, nil
}

// InvalidateAll clears the response cache (session reset).
func (g *Gateway) InvalidateAll() {
	g.cache.InvalidateAll()
}

// cached implements the cache-check → fetch → cache-store sequence. A
// provider failure skips the cache write and propagates.
func (g *Gateway) cached(ctx context.Context, key string, ttl time.Duration, fetch func() (string, error)) (string, error) {
	ctx, span := tracer.Start(ctx, "gateway.tool_call")
	defer span.End()
	span.SetAttributes(attribute.String("cache.key", key))

	if value, ok := g.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return value, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	value, err := fetch()
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	g.cache.Set(key, value, ttl)
	return value, nil
}

// validateTransfer enforces the staging guardrails.
func validateTransfer(fromAccount, toAccount string, amount float64) error {
	if amount < TransferMinAmount {
		return fmt.Errorf("%w: transfer amount must be at least $%.2f", ErrGuardrailViolation, TransferMinAmount)
	}
	if amount > TransferMaxAmount {
		return fmt.Errorf("%w: transfers are limited to $%.0f. For larger amounts please visit a branch", ErrGuardrailViolation, TransferMaxAmount)
	}
	if fromAccount == "" || toAccount == "" {
		return fmt.Errorf("%w: both from_account and to_account are required", ErrGuardrailViolation)
	}
	if fromAccount == toAccount {
		return fmt.Errorf("%w: cannot transfer to the same account", ErrGuardrailViolation)
	}
	return nil
}
