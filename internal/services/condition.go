package services

import (
	"encoding/json"
	"strconv"
	"strings"

	"learnlynk/internal/models"
)

// Condition operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
	OpIn          = "in"
	OpBetween     = "between"
)

// RuleCondition is a single field comparison in a rule's condition list.
//
// LogicalOperator ("AND"/"OR") governs how this condition combines with the
// NEXT condition in the list, not the previous one. See EvaluateConditions.
type RuleCondition struct {
	Field           string      `json:"field"`
	Operator        string      `json:"operator"`
	Value           interface{} `json:"value"`
	LogicalOperator string      `json:"logical_operator,omitempty"`
}

// EvaluateConditions folds the condition list left to right against the
// lead's attribute map.
//
// The fold is left-associative with no precedence: it starts with true and
// an implicit AND, combines each condition's outcome using the connective
// carried on the PREVIOUS condition, then adopts the current condition's
// own connective for the next step. Mixed AND/OR sequences are therefore
// order-sensitive: [A(OR), B(AND), C] means ((true AND A) OR B) AND C, not
// A OR (B AND C). Existing rules depend on this, do not "fix" it.
//
// An empty list always evaluates to true.
func EvaluateConditions(conds []RuleCondition, attrs map[string]interface{}) bool {
	result := true
	connective := "AND"
	for _, cond := range conds {
		outcome := evaluateCondition(cond, attrs)
		if connective == "OR" {
			result = result || outcome
		} else {
			result = result && outcome
		}
		connective = strings.ToUpper(cond.LogicalOperator)
		if connective == "" {
			connective = "AND"
		}
	}
	return result
}

// evaluateCondition tests one comparison. Missing fields behave like an
// undefined value: every operator except not_equals evaluates to false, and
// not_equals against a present expected value evaluates to true. Unknown
// operators evaluate to false rather than erroring.
func evaluateCondition(cond RuleCondition, attrs map[string]interface{}) bool {
	actual, present := resolveFieldPath(attrs, cond.Field)
	if !present {
		return cond.Operator == OpNotEquals && cond.Value != nil
	}

	switch cond.Operator {
	case OpEquals:
		return looseEqual(actual, cond.Value)
	case OpNotEquals:
		return !looseEqual(actual, cond.Value)
	case OpGreaterThan:
		a, okA := toNumber(actual)
		b, okB := toNumber(cond.Value)
		return okA && okB && a > b
	case OpLessThan:
		a, okA := toNumber(actual)
		b, okB := toNumber(cond.Value)
		return okA && okB && a < b
	case OpContains:
		return strings.Contains(
			strings.ToLower(toString(actual)),
			strings.ToLower(toString(cond.Value)),
		)
	case OpIn:
		set, ok := cond.Value.([]interface{})
		if !ok {
			return false
		}
		for _, v := range set {
			if looseEqual(actual, v) {
				return true
			}
		}
		return false
	case OpBetween:
		pair, ok := cond.Value.([]interface{})
		if !ok || len(pair) != 2 {
			return false
		}
		a, okA := toNumber(actual)
		lo, okLo := toNumber(pair[0])
		hi, okHi := toNumber(pair[1])
		return okA && okLo && okHi && a >= lo && a <= hi
	default:
		return false
	}
}

// resolveFieldPath walks a dot-separated path through nested maps. The
// second return value reports whether the full path resolved to a non-nil
// value.
func resolveFieldPath(attrs map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	var current interface{} = attrs
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

// leadAttributes projects a lead into the JSON-shaped map that condition
// field paths resolve against. Numbers come back as float64, nested
// relations as nested maps.
func leadAttributes(lead *models.Lead) map[string]interface{} {
	attrs := map[string]interface{}{}
	if lead == nil {
		return attrs
	}
	raw, err := json.Marshal(lead)
	if err != nil {
		return attrs
	}
	_ = json.Unmarshal(raw, &attrs)
	return attrs
}

// looseEqual compares two JSON-decoded scalars: numerically when both sides
// coerce to numbers, otherwise by exact string representation.
func looseEqual(a, b interface{}) bool {
	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			return na == nb
		}
	}
	return toString(a) == toString(b)
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		raw, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
