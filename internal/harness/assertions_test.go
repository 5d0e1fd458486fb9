package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pickTrace(rules ...string) []TraceEvent {
	trace := []TraceEvent{{Type: EventPeek, Step: 0, Rules: rules}}
	for i, r := range rules {
		trace = append(trace, TraceEvent{Type: EventPick, Step: i + 1, Rule: r, Payload: "said " + r, Seq: int64(i + 1)})
	}
	return trace
}

func TestAssertPicked(t *testing.T) {
	trace := pickTrace("a", "b")

	assert.NoError(t, assertPicked(trace, Assertion{Rule: "a"}))
	assert.NoError(t, assertPicked(trace, Assertion{Rule: "b", Payload: "said b"}))

	err := assertPicked(trace, Assertion{Rule: "b", Payload: "said a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `rule b picked with payload "said a"`)

	err = assertPicked(trace, Assertion{Rule: "c"})
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, AssertPicked, aerr.Type)
	assert.Equal(t, "not found in trace", aerr.Actual)
}

func TestAssertPicked_IgnoresPeeks(t *testing.T) {
	trace := []TraceEvent{{Type: EventPeek, Rule: "a", Rules: []string{"a"}}}
	assert.Error(t, assertPicked(trace, Assertion{Rule: "a"}))
}

func TestAssertPickOrder(t *testing.T) {
	trace := pickTrace("a", "b", "a", "c")

	tests := []struct {
		name    string
		rules   []string
		wantErr string
	}{
		{"in order", []string{"a", "b", "c"}, ""},
		{"gaps allowed", []string{"a", "c"}, ""},
		{"single", []string{"b"}, ""},
		{"reversed", []string{"c", "a"}, "c (pick 4) should be before a (pick 1)"},
		{"first pick counts", []string{"b", "a"}, "b (pick 2) should be before a (pick 1)"},
		{"missing", []string{"a", "z"}, "never picked: z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertPickOrder(trace, Assertion{Rules: tt.rules})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertPickCount(t *testing.T) {
	trace := pickTrace("a", "b", "a")

	assert.NoError(t, assertPickCount(trace, Assertion{Rule: "a", Count: 2}))
	assert.NoError(t, assertPickCount(trace, Assertion{Rule: "z", Count: 0}))

	err := assertPickCount(trace, Assertion{Rule: "b", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 2 picks of b")
	assert.Contains(t, err.Error(), "Actual: 1 picks")
}

func TestAssertFinalFacts(t *testing.T) {
	actual := map[string]any{"hp": 10.0, "mood": "calm", "flag": 1.0, "on": "true"}

	tests := []struct {
		name    string
		want    map[string]interface{}
		wantErr string
	}{
		{"int matches float", map[string]interface{}{"hp": 10}, ""},
		{"float", map[string]interface{}{"hp": 10.0}, ""},
		{"string", map[string]interface{}{"mood": "calm"}, ""},
		{"bool as value", map[string]interface{}{"flag": true}, ""},
		{"bool as string", map[string]interface{}{"on": true}, ""},
		{"subset", map[string]interface{}{"mood": "calm", "hp": 10}, ""},
		{"wrong number", map[string]interface{}{"hp": 11}, `fact "hp" = 11`},
		{"wrong kind", map[string]interface{}{"mood": 3}, `fact "mood" = 3`},
		{"missing", map[string]interface{}{"nope": 1}, `fact "nope" to exist`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalFacts(actual, Assertion{Facts: tt.want})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = pickTrace("a")
	result.Facts = map[string]any{"hp": 1.0}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertPicked, Rule: "a"},
		{Type: AssertPickCount, Rule: "a", Count: 2},
		{Type: AssertFinalFacts, Facts: map[string]interface{}{"hp": 1}},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "pick_count")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}

func TestAssertionError_ListsPicks(t *testing.T) {
	err := &AssertionError{
		Type:     AssertPickCount,
		Expected: "x",
		Actual:   "y",
		Trace:    pickTrace("a", "b"),
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: pick_count")
	assert.Contains(t, msg, `[1] step 1 a "said a"`)
	assert.Contains(t, msg, `[2] step 2 b "said b"`)
}
