package validator

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/qaforge/convotest/qa/endpoint"
	"github.com/qaforge/convotest/qa/model"
)

// Condition names understood by EvaluateRule.
const (
	CondExists      = "exists"
	CondEquals      = "equals"
	CondNotEquals   = "not_equals"
	CondContains    = "contains"
	CondNotContains = "not_contains"
	CondStartsWith  = "starts_with"
	CondEndsWith    = "ends_with"
	CondMatches     = "matches"
	CondGreaterThan = "greater_than"
	CondLessThan    = "less_than"
	CondIsType      = "is_type"
	CondNotEmpty    = "not_empty"
)

var conditionAliases = map[string]string{
	"exist":    CondExists,
	"equal":    CondEquals,
	"eq":       CondEquals,
	"==":       CondEquals,
	"=":        CondEquals,
	"neq":      CondNotEquals,
	"!=":       CondNotEquals,
	"gt":       CondGreaterThan,
	">":        CondGreaterThan,
	"lt":       CondLessThan,
	"<":        CondLessThan,
	"regex":    CondMatches,
	"match":    CondMatches,
	"type":     CondIsType,
	"nonempty": CondNotEmpty,
}

// NormalizeCondition lower-cases name, maps aliases and turns spaces or
// dashes into underscores ("Starts With" becomes "starts_with").
func NormalizeCondition(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := conditionAliases[name]; ok {
		return alias
	}
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	if alias, ok := conditionAliases[name]; ok {
		return alias
	}
	return name
}

// RuleOutcome is the per-rule result used to build explanations.
type RuleOutcome struct {
	Rule   model.Rule
	Passed bool
	Reason string
}

// EvaluateRule checks one rule against raw. A path that does not resolve
// fails the rule whatever the condition.
func EvaluateRule(raw []byte, rule model.Rule) RuleOutcome {
	res, ok := endpoint.Lookup(raw, rule.Path)
	if !ok {
		return RuleOutcome{Rule: rule, Reason: fmt.Sprintf("path %q not found in response", rule.Path)}
	}

	cond := NormalizeCondition(rule.Condition)
	var passed bool
	switch cond {
	case CondExists:
		passed = true
	case CondEquals:
		passed = valueEquals(res, rule.Value)
	case CondNotEquals:
		passed = !valueEquals(res, rule.Value)
	case CondContains:
		passed = contains(res, rule.Value)
	case CondNotContains:
		passed = !contains(res, rule.Value)
	case CondStartsWith:
		passed = res.Type == gjson.String && strings.HasPrefix(res.String(), toString(rule.Value))
	case CondEndsWith:
		passed = res.Type == gjson.String && strings.HasSuffix(res.String(), toString(rule.Value))
	case CondMatches:
		re, err := regexp.Compile(toString(rule.Value))
		passed = err == nil && re.MatchString(res.String())
	case CondGreaterThan, CondLessThan:
		got, gotOK := toFloat(res.Value())
		want, wantOK := toFloat(rule.Value)
		if gotOK && wantOK {
			passed = (cond == CondGreaterThan && got > want) || (cond == CondLessThan && got < want)
		}
	case CondIsType:
		passed = typeName(res) == strings.ToLower(toString(rule.Value))
	case CondNotEmpty:
		passed = notEmpty(res)
	default:
		return RuleOutcome{Rule: rule, Reason: fmt.Sprintf("unknown condition %q", rule.Condition)}
	}

	outcome := RuleOutcome{Rule: rule, Passed: passed}
	if !passed {
		outcome.Reason = fmt.Sprintf("%s %s %v failed (got %s)", rule.Path, cond, rule.Value, truncate(res.Raw, 80))
	}
	return outcome
}

// EvaluateRules returns one outcome per rule, in order.
func EvaluateRules(raw []byte, rules []model.Rule) []RuleOutcome {
	out := make([]RuleOutcome, 0, len(rules))
	for _, r := range rules {
		out = append(out, EvaluateRule(raw, r))
	}
	return out
}

// ValidateRules is the strict conjunction of every rule. No rules means true.
func ValidateRules(raw []byte, rules []model.Rule) bool {
	for _, r := range rules {
		if !EvaluateRule(raw, r).Passed {
			return false
		}
	}
	return true
}

func valueEquals(res gjson.Result, want any) bool {
	switch w := want.(type) {
	case nil:
		return res.Type == gjson.Null
	case string:
		// UI-entered values are strings even when the field is a number or bool.
		return res.String() == w
	case bool:
		return (res.Type == gjson.True || res.Type == gjson.False) && res.Bool() == w
	}
	if wf, ok := toFloat(want); ok {
		gf, ok := toFloat(res.Value())
		return ok && gf == wf
	}

	wantJSON, err := json.Marshal(want)
	if err != nil {
		return false
	}
	var a, b any
	if json.Unmarshal([]byte(res.Raw), &a) != nil || json.Unmarshal(wantJSON, &b) != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func contains(res gjson.Result, want any) bool {
	if res.IsArray() {
		for _, el := range res.Array() {
			if valueEquals(el, want) {
				return true
			}
		}
		return false
	}
	if res.IsObject() {
		_, ok := res.Map()[toString(want)]
		return ok
	}
	return strings.Contains(res.String(), toString(want))
}

func notEmpty(res gjson.Result) bool {
	switch {
	case res.Type == gjson.Null:
		return false
	case res.Type == gjson.String:
		return strings.TrimSpace(res.String()) != ""
	case res.IsArray():
		return len(res.Array()) > 0
	case res.IsObject():
		return len(res.Map()) > 0
	default:
		return true
	}
}

func typeName(res gjson.Result) string {
	switch {
	case res.IsArray():
		return "array"
	case res.IsObject():
		return "object"
	}
	switch res.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		return "number"
	case gjson.True, gjson.False:
		return "boolean"
	case gjson.Null:
		return "null"
	}
	return ""
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
