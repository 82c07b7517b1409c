package workflow

import "reflect"

// Condition is one declarative predicate over an instance's context. A
// transition's conditions are AND-combined; an empty list always passes.
// Keeping conditions as data rather than code lets definitions stay
// storable and the engine stay free of tenant-supplied logic.
type Condition struct {
	Field string      `json:"field"`
	Op    ConditionOp `json:"op"`
	Value any         `json:"value,omitempty"`
}

// ConditionOp names the supported comparison operators.
type ConditionOp string

const (
	OpEq     ConditionOp = "eq"
	OpNe     ConditionOp = "ne"
	OpGt     ConditionOp = "gt"
	OpGte    ConditionOp = "gte"
	OpLt     ConditionOp = "lt"
	OpLte    ConditionOp = "lte"
	OpIn     ConditionOp = "in"
	OpExists ConditionOp = "exists"
)

// EvaluateConditions reports whether every condition holds against the
// context. Unknown operators and missing fields evaluate false rather than
// erroring; a malformed condition must never let a transition through.
func EvaluateConditions(conditions []Condition, context map[string]any) bool {
	for _, c := range conditions {
		if !evaluate(c, context) {
			return false
		}
	}
	return true
}

func evaluate(c Condition, context map[string]any) bool {
	value, present := context[c.Field]

	if c.Op == OpExists {
		want, ok := c.Value.(bool)
		if !ok {
			want = true
		}
		return present == want
	}
	if !present {
		return false
	}

	switch c.Op {
	case OpEq:
		return looseEqual(value, c.Value)
	case OpNe:
		return !looseEqual(value, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		a, aok := toFloat(value)
		b, bok := toFloat(c.Value)
		if !aok || !bok {
			return false
		}
		switch c.Op {
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	case OpIn:
		list, ok := c.Value.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if looseEqual(value, item) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// looseEqual compares with numeric coercion so a context value decoded from
// JSON (float64) matches an int literal in the definition. Non-numeric values
// go through reflect.DeepEqual: context fields and condition values are both
// arbitrary decoded JSON, and a dynamic == would panic on maps and slices.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	if _, bok := toFloat(b); bok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
