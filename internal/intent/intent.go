// Package intent classifies free-text user queries into a closed set of
// financial intents via an ordered fallback chain: an externally supplied
// learned scorer, a quantized TF-IDF logistic-regression model, and finally
// keyword rules. The first stage that produces a result wins; the caller
// may additionally override low-confidence results with the keyword path.
package intent

// Type is a fixed intent category.
type Type string

const (
	BalanceQuery     Type = "balance_query"
	SpendingAnalysis Type = "spending_analysis"
	TransferRequest  Type = "transfer_request"
	FraudReport      Type = "fraud_report"
	InvestmentQuery  Type = "investment_query"
	SavingsAdvice    Type = "savings_advice"
	BillPayment      Type = "bill_payment"
	General          Type = "general"
)

// Intent is a classified query: a type plus the classifier's confidence.
type Intent struct {
	Type       Type
	Confidence float64
}

// RequiresRemoteExecution reports whether this intent must be handled by
// the remote execution engine. This is a pure function of the type and is
// identical regardless of which classifier stage produced the intent.
func (i Intent) RequiresRemoteExecution() bool {
	switch i.Type {
	case TransferRequest, InvestmentQuery, BillPayment:
		return true
	}
	return false
}
