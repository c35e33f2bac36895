package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/sriscode/MobileArc/internal/banking"
	"github.com/sriscode/MobileArc/internal/requestctx"
)

// Tool is one member of the closed set of typed operations the
// conversational engine may invoke. Arguments are validated against
// InputSchema before Execute runs.
type Tool interface {
	Name() string
	Description() string
	InputSchema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult is a tool's output. Draft is set only by stage_transfer so the
// coordinator can move the transfer lifecycle to awaiting-approval.
type ToolResult struct {
	Output string
	Draft  *banking.TransferDraft
}

// Registry manages the closed tool set. Thread-safe for concurrent access.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	return result
}

// Execute validates params against the tool's schema and runs it.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	if err := validateArguments(tool.InputSchema(), params); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	return tool.Execute(ctx, params)
}

// validateArguments checks params against a JSON Schema.
func validateArguments(schema, params json.RawMessage) error {
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(params),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("%s", errs[0].String())
		}
		return fmt.Errorf("arguments do not match schema")
	}
	return nil
}

// DefaultRegistry builds the standard tool set over a gateway.
func DefaultRegistry(g *Gateway) *Registry {
	r := NewRegistry()
	r.Register(&accountSummaryTool{g})
	r.Register(&marketRatesTool{g})
	r.Register(&spendingAnalysisTool{g})
	r.Register(&fraudDisputeTool{g})
	r.Register(&stageTransferTool{g})
	return r
}

type accountSummaryTool struct{ g *Gateway }

func (t *accountSummaryTool) Name() string { return ToolAccountSummary }
func (t *accountSummaryTool) Description() string {
	return "Get account balances and recent transaction summary for the user."
}
func (t *accountSummaryTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"account_type": {"type": "string", "enum": ["all", "checking", "savings", "credit"]}
		},
		"required": ["account_type"]
	}`)
}
func (t *accountSummaryTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var args struct {
		AccountType string `json:"account_type"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("decoding account_summary arguments: %w", err)
	}
	out, err := t.g.AccountSummary(ctx, requestctx.UserID(ctx), args.AccountType)
	if err != nil {
		return nil, err
	}
	return &ToolResult{Output: out}, nil
}

type marketRatesTool struct{ g *Gateway }

func (t *marketRatesTool) Name() string { return ToolMarketRates }
func (t *marketRatesTool) Description() string {
	return "Get current savings rates: HYSA, CDs, money market."
}
func (t *marketRatesTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"rate_type": {"type": "string", "enum": ["hysa", "cd_6mo", "cd_1yr", "money_market"]}
		},
		"required": ["rate_type"]
	}`)
}
func (t *marketRatesTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var args struct {
		RateType string `json:"rate_type"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("decoding market_rates arguments: %w", err)
	}
	out, err := t.g.MarketRates(ctx, args.RateType)
	if err != nil {
		return nil, err
	}
	return &ToolResult{Output: out}, nil
}

type spendingAnalysisTool struct{ g *Gateway }

func (t *spendingAnalysisTool) Name() string { return ToolSpendingAnalysis }
func (t *spendingAnalysisTool) Description() string {
	return "Run detailed spending analysis for a time period."
}
func (t *spendingAnalysisTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"days": {"type": "integer", "minimum": 1, "maximum": 90},
			"category": {"type": "string"}
		},
		"required": ["days"]
	}`)
}
func (t *spendingAnalysisTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var args struct {
		Days     int    `json:"days"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("decoding spending_analysis arguments: %w", err)
	}
	if args.Category == "" {
		args.Category = "all"
	}
	out, err := t.g.SpendingAnalysis(ctx, requestctx.UserID(ctx), args.Days, args.Category)
	if err != nil {
		return nil, err
	}
	return &ToolResult{Output: out}, nil
}

type fraudDisputeTool struct{ g *Gateway }

func (t *fraudDisputeTool) Name() string { return "file_fraud_dispute" }
func (t *fraudDisputeTool) Description() string {
	return "File a formal dispute for a fraudulent transaction and request provisional credit."
}
func (t *fraudDisputeTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"transaction_id": {"type": "string"},
			"reason": {"type": "string"}
		},
		"required": ["transaction_id", "reason"]
	}`)
}
func (t *fraudDisputeTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var args struct {
		TransactionID string `json:"transaction_id"`
		Reason        string `json:"reason"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("decoding file_fraud_dispute arguments: %w", err)
	}
	out, err := t.g.FileFraudDispute(ctx, requestctx.UserID(ctx), args.TransactionID, args.Reason)
	if err != nil {
		return nil, err
	}
	return &ToolResult{Output: out}, nil
}

type stageTransferTool struct{ g *Gateway }

func (t *stageTransferTool) Name() string { return "stage_transfer" }
func (t *stageTransferTool) Description() string {
	return "Stage a fund transfer for user review. Creates a draft only; the user must explicitly confirm in the app. Never executes immediately."
}
func (t *stageTransferTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"from_account": {"type": "string"},
			"to_account": {"type": "string"},
			"amount": {"type": "number"},
			"memo": {"type": "string"}
		},
		"required": ["from_account", "to_account", "amount"]
	}`)
}
func (t *stageTransferTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var args struct {
		FromAccount string  `json:"from_account"`
		ToAccount   string  `json:"to_account"`
		Amount      float64 `json:"amount"`
		Memo        string  `json:"memo"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("decoding stage_transfer arguments: %w", err)
	}
	draft, err := t.g.StageTransfer(ctx, requestctx.UserID(ctx), args.FromAccount, args.ToAccount, args.Amount, args.Memo)
	if err != nil {
		return nil, err
	}
	out := fmt.Sprintf("Transfer staged:\nFrom: %s → To: %s\nAmount: $%.2f\nDraft ID: %s\nStatus: awaiting user confirmation in app",
		draft.FromAccount, draft.ToAccount, draft.Amount, draft.ID)
	return &ToolResult{Output: out, Draft: draft}, nil
}
