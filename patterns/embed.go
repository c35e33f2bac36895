// Package patterns provides embedded default data files: the ordered
// redaction rule set and the quantized intent-classifier artifact.
package patterns

import _ "embed"

//go:embed redaction.yaml
var redactionYAML []byte

//go:embed intent_tfidf_lr.json
var intentModelJSON []byte

// RedactionYAML returns the embedded ordered redaction rule definitions.
func RedactionYAML() []byte { return redactionYAML }

// IntentModelJSON returns the embedded TF-IDF logistic-regression artifact.
func IntentModelJSON() []byte { return intentModelJSON }
