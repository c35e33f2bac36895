package intent

import "strings"

// keywordRule is a single substring check with a hardcoded confidence.
// Rules are evaluated in order; the first hit wins.
type keywordRule struct {
	substrings []string
	intentType Type
	confidence float64
}

// keywordRules is the last-resort fallback chain, checked in a fixed order.
var keywordRules = []keywordRule{
	{[]string{"balance", "how much do i have", "how much money"}, BalanceQuery, 0.90},
	{[]string{"transfer", "send money", "zelle", "move money", "move $"}, TransferRequest, 0.90},
	{[]string{"spend", "spent", "spending", "expenses"}, SpendingAnalysis, 0.85},
	{[]string{"fraud", "unauthorized", "dispute", "don't recognize"}, FraudReport, 0.88},
	{[]string{"invest", "portfolio", "stocks", "401k"}, InvestmentQuery, 0.85},
	{[]string{"save", "saving", "interest rate", "apy"}, SavingsAdvice, 0.80},
	{[]string{"pay", "bill", "autopay"}, BillPayment, 0.85},
}

// ClassifyKeyword runs the ordered keyword checks, falling through to the
// general intent at 0.50 confidence when nothing matches. The coordinator
// also calls this directly to override low-confidence classifier results.
func ClassifyKeyword(text string) Intent {
	lower := strings.ToLower(text)
	for _, rule := range keywordRules {
		for _, s := range rule.substrings {
			if strings.Contains(lower, s) {
				return Intent{Type: rule.intentType, Confidence: rule.confidence}
			}
		}
	}
	return Intent{Type: General, Confidence: 0.50}
}
