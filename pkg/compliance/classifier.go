// Package compliance defines the classification collaborator consumed by
// the security service's mandatory-encryption policy. The real
// classification engine lives outside this module; RuleClassifier is a
// deterministic reference implementation for wiring and tests.
package compliance

import (
	"bytes"
	"context"
)

// Classification levels, ordered from least to most sensitive.
const (
	ClassPublic       = "public"
	ClassInternal     = "internal"
	ClassConfidential = "confidential"
	ClassRestricted   = "restricted"
)

// Report is the classification verdict for a payload.
type Report struct {
	Classification string
	ContainsPII    bool
	ContainsPHI    bool
}

// Sensitive reports whether the verdict demands encrypted delivery.
func (r Report) Sensitive() bool {
	if r.ContainsPII || r.ContainsPHI {
		return true
	}
	return r.Classification == ClassConfidential || r.Classification == ClassRestricted
}

// Classifier is the external compliance engine contract.
type Classifier interface {
	Classify(ctx context.Context, contentType string, data []byte) (Report, error)
}

// Rule marks content containing Marker with the given verdict.
type Rule struct {
	Marker []byte
	Report Report
}

// RuleClassifier classifies by substring markers. First matching rule
// wins; unmatched content is public.
type RuleClassifier struct {
	rules []Rule
}

func NewRuleClassifier(rules ...Rule) *RuleClassifier {
	return &RuleClassifier{rules: rules}
}

func (c *RuleClassifier) Classify(_ context.Context, _ string, data []byte) (Report, error) {
	for _, r := range c.rules {
		if bytes.Contains(data, r.Marker) {
			return r.Report, nil
		}
	}
	return Report{Classification: ClassPublic}, nil
}

// StaticClassifier returns the same verdict for every payload. Useful for
// tests and for tenants with a blanket classification.
type StaticClassifier struct {
	Verdict Report
}

func (c StaticClassifier) Classify(context.Context, string, []byte) (Report, error) {
	return c.Verdict, nil
}
