package coordinator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

const baseInstructions = `You are a careful personal banking assistant running on the user's device.
You can look up account summaries, market rates, and spending analyses, file
fraud disputes, and stage transfers for the user to approve. Staged transfers
are never executed without explicit approval. Keep answers short and factual.
Never reveal card numbers, account numbers, or other credentials.`

const analysisInstructions = `You are a scoring service. Answer every request with a single JSON
object and nothing else. Do not add prose, markdown, or explanations.`

const summarizePrompt = `Summarize our conversation so far in 3 to 5 short bullet points.
Cover only facts needed to continue: the user's goals, account details already
discussed (redacted forms only), and any pending transfer. Output only the bullets.`

const genericSummary = "- Prior conversation context was unavailable."

// ResetSession replaces the conversational session and clears the
// response cache. The analysis session is untouched.
func (c *Coordinator) ResetSession(ctx context.Context) {
	c.mu.Lock()
	c.convo = c.factory(baseInstructions, c.stageDraft)
	c.sessionID = ""
	c.mu.Unlock()
	c.gateway.InvalidateAll()
	log.Info().Msg("session_reset")
}

// ResetAnalysisSession replaces the analysis session and clears the
// response cache. The conversational session is untouched.
func (c *Coordinator) ResetAnalysisSession(ctx context.Context) {
	c.mu.Lock()
	c.analysis = c.factory(analysisInstructions, nil)
	c.mu.Unlock()
	c.gateway.InvalidateAll()
	log.Info().Msg("analysis_session_reset")
}

// SyncTransactions refreshes the fraud screen's rolling history from the
// provider. Called periodically by the trigger scheduler.
func (c *Coordinator) SyncTransactions(ctx context.Context, userID string) error {
	txns, err := c.gateway.RecentTransactions(ctx, userID, 100)
	if err != nil {
		return fmt.Errorf("sync transactions: %w", err)
	}

	// Most recent located transaction supplies the last known location.
	loc := c.screen.History().Snapshot().LastLocation
	for i := len(txns) - 1; i >= 0; i-- {
		if txns[i].Location != nil {
			loc = txns[i].Location
			break
		}
	}
	c.screen.History().Update(txns, loc)
	log.Debug().Int("count", len(txns)).Msg("transaction_history_synced")
	return nil
}
