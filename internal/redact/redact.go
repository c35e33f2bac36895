// Package redact sanitizes sensitive financial text before it reaches any
// model, log, or wire call.
//
// Rules are an ordered list of (pattern, label) pairs loaded from the
// embedded redaction.yaml. Order is part of the contract: card-number rules
// run before generic digit rules so a card is never half-matched by the
// SSN rule. Sanitization is pure and idempotent: replacement labels are
// constructed so no rule can match its own output.
package redact

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"

	"github.com/sriscode/MobileArc/internal/audit"
	arcotel "github.com/sriscode/MobileArc/internal/otel"
	"github.com/sriscode/MobileArc/patterns"
)

var tracer = arcotel.Tracer("github.com/sriscode/MobileArc/internal/redact")

// Rule is a single compiled redaction rule. Category is the lowercase rule
// category used in audit metadata (e.g. "ssn", "card"); Label is the full
// replacement text.
type Rule struct {
	Name     string
	Category string
	Label    string
	Pattern  *regexp.Regexp
}

// ruleFile is the YAML structure of the embedded rule set.
type ruleFile struct {
	Rules []ruleConfig `yaml:"rules"`
}

type ruleConfig struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
	Regex string `yaml:"regex"`
}

// Auditor receives fire-and-forget leak events. *audit.Logger satisfies it.
type Auditor interface {
	LogAsync(ctx context.Context, event string, metadata map[string]string)
}

// Redactor applies the ordered rule set to text.
type Redactor struct {
	rules   []Rule
	auditor Auditor
}

// New builds a Redactor from the embedded rule set. auditor may be nil, in
// which case SanitizeAndAudit degrades to plain Sanitize.
func New(auditor Auditor) (*Redactor, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(patterns.RedactionYAML(), &rf); err != nil {
		return nil, fmt.Errorf("parsing embedded redaction rules: %w", err)
	}

	rules := make([]Rule, 0, len(rf.Rules))
	for _, rc := range rf.Rules {
		re, err := regexp.Compile(rc.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling redaction rule %q: %w", rc.Name, err)
		}
		rules = append(rules, Rule{
			Name:     rc.Name,
			Category: strings.ToLower(rc.Label),
			Label:    "[" + rc.Label + "-REDACTED]",
			Pattern:  re,
		})
	}
	return &Redactor{rules: rules, auditor: auditor}, nil
}

// MustNew is like New but panics on error. The embedded rules are expected
// to always compile.
func MustNew(auditor Auditor) *Redactor {
	r, err := New(auditor)
	if err != nil {
		panic(fmt.Sprintf("redact.New: %v", err))
	}
	return r
}

// Sanitize applies every rule in order and returns the redacted text.
func (r *Redactor) Sanitize(text string) string {
	out, _ := r.sanitize(text)
	return out
}

// sanitize returns the redacted text and the distinct rule categories that
// fired, in rule order.
func (r *Redactor) sanitize(text string) (string, []string) {
	var fired []string
	seen := make(map[string]bool)
	for _, rule := range r.rules {
		if !rule.Pattern.MatchString(text) {
			continue
		}
		text = rule.Pattern.ReplaceAllString(text, rule.Label)
		if !seen[rule.Category] {
			seen[rule.Category] = true
			fired = append(fired, rule.Category)
		}
	}
	return text, fired
}

// SanitizeAndAudit sanitizes text and, when anything was redacted, emits a
// detached audit event naming the rule categories that fired plus a one-way
// hash of the original text. The caller's flow is never blocked or failed
// by the audit sink.
func (r *Redactor) SanitizeAndAudit(ctx context.Context, text, userID string) string {
	ctx, span := tracer.Start(ctx, "redact.sanitize_and_audit")
	defer span.End()

	out, fired := r.sanitize(text)
	span.SetAttributes(
		attribute.Bool("redact.changed", out != text),
		attribute.Int("redact.rules_fired", len(fired)),
	)

	if out == text || r.auditor == nil {
		return out
	}

	r.auditor.LogAsync(ctx, "pii_redacted", map[string]string{
		"user_id":       userID,
		"categories":    strings.Join(fired, ","),
		"original_hash": audit.HashText(text),
	})
	return out
}
