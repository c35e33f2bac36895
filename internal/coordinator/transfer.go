package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sriscode/MobileArc/internal/banking"
	"github.com/sriscode/MobileArc/internal/remote"
	"github.com/sriscode/MobileArc/internal/requestctx"
)

// ErrNoPendingTransfer is returned by Approve/Cancel when the slot is
// empty or holds a different draft.
var ErrNoPendingTransfer = errors.New("coordinator: no matching pending transfer")

// Draft origins recorded in the pending slot.
const (
	draftFromLocal  = "local"
	draftFromRemote = "remote"
)

// stageDraft is the sink handed to conversational sessions. Staging moves
// the transfer lifecycle to AwaitingApproval; a newly staged draft
// replaces any earlier unapproved one.
func (c *Coordinator) stageDraft(draft *banking.TransferDraft) {
	c.pendingMu.Lock()
	c.pending = draft
	c.pendingFrom = draftFromLocal
	c.pendingMu.Unlock()
	log.Info().Str("draft_id", draft.ID).Msg("transfer_awaiting_approval")
}

// applyRemoteAction folds a backend action into coordinator state.
func (c *Coordinator) applyRemoteAction(ctx context.Context, action remote.Action, userID string) {
	switch action.Type {
	case remote.ActionTransferStaged:
		var draft banking.TransferDraft
		if err := json.Unmarshal(action.Payload, &draft); err != nil {
			log.Warn().Err(err).Msg("remote_draft_decode_failed")
			return
		}
		c.pendingMu.Lock()
		c.pending = &draft
		c.pendingFrom = draftFromRemote
		c.pendingMu.Unlock()
		log.Info().Str("draft_id", draft.ID).Msg("transfer_awaiting_approval")
	case remote.ActionFraudAlert:
		c.auditor.LogAsync(ctx, "remote_fraud_alert", map[string]string{"user_id": userID})
	default:
		log.Warn().Str("action", action.Type).Msg("remote_action_unknown")
	}
}

// PendingTransfer reports the draft awaiting approval, if any.
func (c *Coordinator) PendingTransfer() *banking.TransferDraft {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return c.pending
}

// ApproveTransfer executes the pending draft. A fresh identity token is
// minted for the execution call; the pending slot is cleared only after
// execution succeeds. No other path executes a draft.
func (c *Coordinator) ApproveTransfer(ctx context.Context, draftID string) error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	if c.pending == nil || c.pending.ID != draftID {
		return ErrNoPendingTransfer
	}

	tok, err := c.prover.Prove(ctx)
	if err != nil {
		return fmt.Errorf("approve transfer: %w", err)
	}

	if c.pendingFrom == draftFromRemote {
		err = c.peer.ExecuteTransfer(ctx, draftID, tok.Value)
	} else {
		userID := requestctx.UserID(ctx)
		_, err = c.gateway.ExecuteTransfer(ctx, userID, draftID, tok.Value)
	}
	if err != nil {
		return fmt.Errorf("approve transfer: %w", err)
	}

	log.Info().Str("draft_id", draftID).Msg("transfer_executed")
	c.pending = nil
	c.pendingFrom = ""
	return nil
}

// CancelTransfer clears the pending draft without executing it.
func (c *Coordinator) CancelTransfer(ctx context.Context, draftID string) error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	if c.pending == nil || c.pending.ID != draftID {
		return ErrNoPendingTransfer
	}
	c.auditor.LogAsync(ctx, "transfer_cancelled", map[string]string{"draft_id": draftID})
	c.pending = nil
	c.pendingFrom = ""
	return nil
}
