package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowpilot-io/flowpilot/pkg/models"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		field    any
		operator models.Operator
		target   any
		want     bool
	}{
		{"equals strings", "won", models.OperatorEquals, "won", true},
		{"equals strings mismatch", "open", models.OperatorEquals, "won", false},
		{"equals numeric coercion", 5000, models.OperatorEquals, float64(5000), true},
		{"equals json number vs int", float64(3), models.OperatorEquals, 3, true},
		{"equals nil both", nil, models.OperatorEquals, nil, true},
		{"equals nil left", nil, models.OperatorEquals, "x", false},
		{"not_equals", "open", models.OperatorNotEquals, "won", true},
		{"not_equals same", "won", models.OperatorNotEquals, "won", false},
		{"contains substring", "enterprise deal", models.OperatorContains, "deal", true},
		{"contains missing substring", "smb deal", models.OperatorContains, "enterprise", false},
		{"contains string slice", []string{"vip", "churned"}, models.OperatorContains, "vip", true},
		{"contains any slice", []any{"a", "b"}, models.OperatorContains, "b", true},
		{"contains on number is false", 42, models.OperatorContains, "4", false},
		{"greater_than ints", 10, models.OperatorGreaterThan, 5, true},
		{"greater_than equal is false", 5, models.OperatorGreaterThan, 5, false},
		{"greater_than numeric strings", "100", models.OperatorGreaterThan, "50", true},
		{"greater_than non-numeric fails closed", "abc", models.OperatorGreaterThan, 5, false},
		{"less_than floats", 2.5, models.OperatorLessThan, 3.0, true},
		{"less_than nil fails closed", nil, models.OperatorLessThan, 3, false},
		{"unknown operator", "x", models.Operator("matches"), "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.field, tt.operator, tt.target))
		})
	}
}

func TestEvaluateNonComparableValues(t *testing.T) {
	// Maps and slices must not panic.
	left := map[string]any{"a": 1}
	right := map[string]any{"a": 1}

	assert.True(t, Evaluate(left, models.OperatorEquals, right))
	assert.False(t, Evaluate(left, models.OperatorEquals, map[string]any{"a": 2}))
	assert.False(t, Evaluate([]any{1}, models.OperatorGreaterThan, []any{2}))
}
