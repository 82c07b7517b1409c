package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateConditions(t *testing.T) {
	context := map[string]any{
		"risk_score": float64(42), // decoded JSON numbers arrive as float64
		"category":   "security",
		"reviewed":   true,
	}

	tests := []struct {
		name      string
		condition Condition
		want      bool
	}{
		{"eq match", Condition{Field: "category", Op: OpEq, Value: "security"}, true},
		{"eq mismatch", Condition{Field: "category", Op: OpEq, Value: "privacy"}, false},
		{"eq numeric coercion", Condition{Field: "risk_score", Op: OpEq, Value: 42}, true},
		{"ne", Condition{Field: "category", Op: OpNe, Value: "privacy"}, true},
		{"gt", Condition{Field: "risk_score", Op: OpGt, Value: 40}, true},
		{"gt boundary", Condition{Field: "risk_score", Op: OpGt, Value: 42}, false},
		{"gte boundary", Condition{Field: "risk_score", Op: OpGte, Value: 42}, true},
		{"lt", Condition{Field: "risk_score", Op: OpLt, Value: 100}, true},
		{"lte", Condition{Field: "risk_score", Op: OpLte, Value: 42}, true},
		{"numeric op on string", Condition{Field: "category", Op: OpGt, Value: 1}, false},
		{"in", Condition{Field: "category", Op: OpIn, Value: []any{"privacy", "security"}}, true},
		{"in miss", Condition{Field: "category", Op: OpIn, Value: []any{"privacy"}}, false},
		{"in malformed list", Condition{Field: "category", Op: OpIn, Value: "security"}, false},
		{"exists", Condition{Field: "reviewed", Op: OpExists}, true},
		{"exists false wants absence", Condition{Field: "ghost", Op: OpExists, Value: false}, true},
		{"exists present but unwanted", Condition{Field: "reviewed", Op: OpExists, Value: false}, false},
		{"missing field", Condition{Field: "ghost", Op: OpEq, Value: "x"}, false},
		{"unknown operator", Condition{Field: "category", Op: ConditionOp("matches"), Value: "sec.*"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateConditions([]Condition{tt.condition}, context))
		})
	}
}

func TestEvaluateConditionsStructuredValues(t *testing.T) {
	context := map[string]any{
		"meta":       map[string]any{"source": "import", "batch": float64(3)},
		"reviewers":  []any{"alice", "bob"},
		"risk_score": float64(42),
	}

	tests := []struct {
		name      string
		condition Condition
		want      bool
	}{
		{"eq equal maps", Condition{Field: "meta", Op: OpEq, Value: map[string]any{"source": "import", "batch": float64(3)}}, true},
		{"eq differing maps", Condition{Field: "meta", Op: OpEq, Value: map[string]any{"source": "manual"}}, false},
		{"ne differing maps", Condition{Field: "meta", Op: OpNe, Value: map[string]any{"source": "manual"}}, true},
		{"eq equal slices", Condition{Field: "reviewers", Op: OpEq, Value: []any{"alice", "bob"}}, true},
		{"eq map against number", Condition{Field: "risk_score", Op: OpEq, Value: map[string]any{"source": "import"}}, false},
		{"eq number against map", Condition{Field: "meta", Op: OpEq, Value: 42}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, tt.want, EvaluateConditions([]Condition{tt.condition}, context))
			})
		})
	}
}

func TestEvaluateConditionsCombined(t *testing.T) {
	context := map[string]any{"risk_score": float64(42), "category": "security"}

	assert.True(t, EvaluateConditions(nil, context), "empty list always passes")

	all := []Condition{
		{Field: "category", Op: OpEq, Value: "security"},
		{Field: "risk_score", Op: OpGte, Value: 10},
	}
	assert.True(t, EvaluateConditions(all, context))

	oneFails := append(all, Condition{Field: "risk_score", Op: OpLt, Value: 10})
	assert.False(t, EvaluateConditions(oneFails, context), "conditions are AND-combined")
}
