// Package remote is the HTTP client for the hosted assistant backend.
// Queries that exceed on-device capability are forwarded here with a
// redacted context summary and a device attestation token.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/sriscode/MobileArc/internal/identity"
	arcotel "github.com/sriscode/MobileArc/internal/otel"
)

var tracer = arcotel.Tracer("github.com/sriscode/MobileArc/internal/remote")

// TimeoutQuery bounds every remote round trip.
const TimeoutQuery = 30 * time.Second

var (
	// ErrUnavailable marks transport failures and 5xx responses.
	ErrUnavailable = errors.New("remote: backend unavailable")
	// ErrUnauthorized marks attestation rejection by the backend.
	ErrUnauthorized = errors.New("remote: attestation rejected")
	// ErrRateLimited is returned when the local limiter refuses a call.
	ErrRateLimited = errors.New("remote: rate limited")
)

// Action is a structured side effect requested by the remote assistant.
type Action struct {
	Type    string          `json:"type"` // transfer_staged or fraud_alert
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Action types the backend may return.
const (
	ActionTransferStaged = "transfer_staged"
	ActionFraudAlert     = "fraud_alert"
)

// QueryRequest is the redacted payload sent to the backend.
type QueryRequest struct {
	Query            string   `json:"query"`
	IntentType       string   `json:"intent_type"`
	ContextSummary   string   `json:"context_summary,omitempty"`
	ApprovedDraftIDs []string `json:"approved_draft_ids,omitempty"`
	SessionID        string   `json:"session_id,omitempty"`
}

// QueryResponse is the backend's answer.
type QueryResponse struct {
	Text      string   `json:"text"`
	Actions   []Action `json:"actions,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// Client calls the hosted backend with attestation and local rate limiting.
type Client struct {
	baseURL string
	http    *http.Client
	prover  identity.Prover
	limiter *rate.Limiter
}

// NewClient builds a backend client. The limiter allows sustained 1 rps
// with burst 5, matching backend per-device quotas.
func NewClient(baseURL string, prover identity.Prover) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: TimeoutQuery},
		prover:  prover,
		limiter: rate.NewLimiter(rate.Limit(1), 5),
	}
}

// Query forwards a redacted query to the backend assistant.
func (c *Client) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	ctx, span := tracer.Start(ctx, "remote.query")
	defer span.End()
	span.SetAttributes(attribute.String("remote.intent_type", req.IntentType))

	var out QueryResponse
	if err := c.post(ctx, "/v1/assistant/query", req, &out); err != nil {
		span.RecordError(err)
		return nil, err
	}
	log.Debug().Str("session_id", out.SessionID).Int("actions", len(out.Actions)).Msg("remote_query_completed")
	return &out, nil
}

// ExecuteTransfer asks the backend to settle an approved transfer draft.
// The approval token is minted by the caller immediately before this call.
func (c *Client) ExecuteTransfer(ctx context.Context, draftID, approvalToken string) error {
	ctx, span := tracer.Start(ctx, "remote.execute_transfer")
	defer span.End()
	span.SetAttributes(attribute.String("remote.draft_id", draftID))

	body := map[string]string{
		"draft_id":       draftID,
		"approval_token": approvalToken,
	}
	if err := c.post(ctx, "/v1/assistant/transfer/execute", body, &struct{}{}); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if !c.limiter.Allow() {
		return ErrRateLimited
	}

	tok, err := c.prover.Prove(ctx)
	if err != nil {
		return fmt.Errorf("prove identity: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+tok.Value)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case httpResp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, httpResp.StatusCode)
	case httpResp.StatusCode != http.StatusOK:
		return fmt.Errorf("remote: status %d", httpResp.StatusCode)
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
