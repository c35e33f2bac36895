package redact

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureAuditor struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	name     string
	metadata map[string]string
}

func (a *captureAuditor) LogAsync(_ context.Context, event string, metadata map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, capturedEvent{name: event, metadata: metadata})
}

func TestSanitize(t *testing.T) {
	r := MustNew(nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "clean text untouched",
			in:   "What is my checking balance?",
			want: "What is my checking balance?",
		},
		{
			name: "formatted ssn",
			in:   "my ssn is 123-45-6789",
			want: "my ssn is [SSN-REDACTED]",
		},
		{
			name: "card with spaces",
			in:   "card 4111 1111 1111 1111 please",
			want: "card [CARD-REDACTED] please",
		},
		{
			name: "card with dashes",
			in:   "card 4111-1111-1111-1111 please",
			want: "card [CARD-REDACTED] please",
		},
		{
			name: "iban",
			in:   "send to DE89370400440532013000",
			want: "send to [IBAN-REDACTED]",
		},
		{
			name: "pin keyword",
			in:   "my pin is 4821",
			want: "my [PIN-REDACTED]",
		},
		{
			name: "routing context beats bare nine digits",
			in:   "use routing number 021000021",
			want: "use [ROUTING-REDACTED]",
		},
		{
			name: "phone number",
			in:   "call me at 555-867-5309",
			want: "call me at [PHONE-REDACTED]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Sanitize(tt.in)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	r := MustNew(nil)

	inputs := []string{
		"my ssn is 123-45-6789 and card 4111111111111111",
		"pin 1234 otp 882211 iban GB29NWBK60161331926819",
		"nothing sensitive here at all",
		"password: hunter2 and routing number 021000021",
	}
	for _, in := range inputs {
		once := r.Sanitize(in)
		twice := r.Sanitize(once)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestSanitizeCardDigitsRemoved(t *testing.T) {
	r := MustNew(nil)

	cards := []string{
		"4111111111111111",
		"4111 1111 1111 1111",
		"4111-1111-1111-1111",
		"5500005555555559",
	}
	for _, card := range cards {
		out := r.Sanitize("charge it to " + card + " thanks")
		assert.Contains(t, out, "[CARD-REDACTED]")
		digits := strings.NewReplacer(" ", "", "-", "").Replace(card)
		assert.NotContains(t, strings.NewReplacer(" ", "", "-", "").Replace(out), digits)
	}
}

func TestSanitizeAndAudit(t *testing.T) {
	auditor := &captureAuditor{}
	r := MustNew(auditor)
	ctx := context.Background()

	out := r.SanitizeAndAudit(ctx, "my ssn is 123-45-6789", "user_1")

	assert.Equal(t, "my ssn is [SSN-REDACTED]", out)
	require.Len(t, auditor.events, 1)

	evt := auditor.events[0]
	assert.Equal(t, "pii_redacted", evt.name)
	assert.Equal(t, "user_1", evt.metadata["user_id"])
	assert.Contains(t, evt.metadata["categories"], "ssn")
	assert.NotEmpty(t, evt.metadata["original_hash"])
	for _, v := range evt.metadata {
		assert.NotContains(t, v, "123-45-6789")
		assert.NotContains(t, v, "123456789")
	}
}

func TestSanitizeAndAuditCleanTextNoEvent(t *testing.T) {
	auditor := &captureAuditor{}
	r := MustNew(auditor)

	out := r.SanitizeAndAudit(context.Background(), "show my balance", "user_1")

	assert.Equal(t, "show my balance", out)
	assert.Empty(t, auditor.events)
}
