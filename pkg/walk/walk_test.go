package walk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueUppercasesStringLeaves(t *testing.T) {
	in := map[string]any{
		"name": "alice",
		"tags": []any{"a", "b"},
		"nested": map[string]any{
			"city": "nyc",
		},
		"count": 3,
	}
	out := Value(in, strings.ToUpper).(map[string]any)

	assert.Equal(t, "ALICE", out["name"])
	assert.Equal(t, []any{"A", "B"}, out["tags"])
	assert.Equal(t, "NYC", out["nested"].(map[string]any)["city"])
	assert.Equal(t, 3, out["count"])
}

func TestValueLeavesScalarsUntouched(t *testing.T) {
	assert.Equal(t, 42, Value(42, strings.ToUpper))
	assert.Equal(t, nil, Value(nil, strings.ToUpper))
	assert.Equal(t, true, Value(true, strings.ToUpper))
}

func TestMaxDepth(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int
	}{
		{"scalar", "x", 1},
		{"flat map", map[string]any{"a": 1}, 2},
		{"flat slice", []any{1, 2}, 2},
		{"nested map", map[string]any{"a": map[string]any{"b": 1}}, 3},
		{"nested slice", []any{[]any{[]any{1}}}, 4},
		{"mixed", map[string]any{"a": []any{map[string]any{"b": 1}}}, 4},
		{"empty map", map[string]any{}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaxDepth(tt.in))
		})
	}
}
