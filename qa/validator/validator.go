// Package validator checks an endpoint response against the declared output
// shape and rules. Both checks look only at the last raw response of a conversation.
package validator

import (
	"strings"

	"github.com/qaforge/convotest/qa/model"
)

// Report is the combined structural result.
type Report struct {
	FormatValid  bool
	ConditionMet bool
	Outcomes     []RuleOutcome
	FormatReason string
}

// Validate runs both the format and rule checks.
func Validate(raw []byte, outputSchema map[string]any, rules []model.Rule) Report {
	formatOK, reason := CheckFormat(raw, outputSchema)
	outcomes := EvaluateRules(raw, rules)

	met := true
	for _, o := range outcomes {
		if !o.Passed {
			met = false
			break
		}
	}
	return Report{FormatValid: formatOK, ConditionMet: met, Outcomes: outcomes, FormatReason: reason}
}

// Explain summarises the failures, or returns "" when everything passed.
func (r Report) Explain() string {
	var parts []string
	if !r.FormatValid {
		parts = append(parts, "format mismatch: "+r.FormatReason)
	}
	for _, o := range r.Outcomes {
		if !o.Passed {
			msg := o.Reason
			if o.Rule.Description != "" {
				msg = o.Rule.Description + ": " + msg
			}
			parts = append(parts, msg)
		}
	}
	return strings.Join(parts, "; ")
}
