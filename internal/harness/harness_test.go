package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/quip/internal/match"
)

const counterSource = `
fact: {
	n:     "value"
	label: "string"
}

rule: low: {
	payload: "n={n} label={label}"
	when: [{fact: "n", lt: 3}]
	then: [{fact: "n", increment: 1}]
}

rule: tagged: {
	when: [
		{fact: "n", ge: 0},
		{fact: "label", eq: "hot"},
	]
	then: [{fact: "label", set: "cold"}]
}
`

func counterScenario(steps ...Step) *Scenario {
	return &Scenario{
		Name:        "counter",
		Description: "counter",
		Source:      counterSource,
		Steps:       steps,
	}
}

func intp(n int) *int { return &n }

func TestRun_Combat(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, err := LoadScenario("testdata/scenarios/combat.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	picks := result.Picks()
	require.Len(t, picks, 2)
	assert.Equal(t, "taunt", picks[0].Rule)
	assert.Equal(t, int64(1), picks[0].Seq)
	assert.Equal(t, "rest", picks[1].Rule)
	assert.Equal(t, int64(2), picks[1].Seq)

	assert.Equal(t, map[string]any{"health": 100.0, "mood": "calm", "taunts": 1.0}, result.Facts)
}

func TestRun_InlineSourceRepeatedPicks(t *testing.T) {
	// payloads render after write-backs
	s := counterScenario(
		Step{Pick: ModeBest, Expect: &ExpectClause{Payloads: []string{"n=1 label="}}},
		Step{Pick: ModeBest},
		Step{Pick: ModeBest},
		Step{Pick: ModeBest, Expect: &ExpectClause{Count: intp(0)}},
	)
	s.Assertions = []Assertion{
		{Type: AssertPickCount, Rule: "low", Count: 3},
		{Type: AssertFinalFacts, Facts: map[string]interface{}{"n": 3}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "", result.Facts["label"])
}

func TestRun_StringFactsAndSettings(t *testing.T) {
	s := counterScenario(
		Step{Set: map[string]interface{}{"label": "hot", "n": 5}},
		Step{Peek: ModeValid, Expect: &ExpectClause{Rules: []string{"tagged"}}},
		Step{Pick: ModeBest, Expect: &ExpectClause{Rules: []string{"tagged"}}},
		Step{
			Peek:     ModeBest,
			Settings: &match.Settings{CountAllFactMatches: true},
			Expect:   &ExpectClause{Count: intp(0)},
		},
	)
	s.Assertions = []Assertion{
		{Type: AssertPicked, Rule: "tagged"},
		{Type: AssertFinalFacts, Facts: map[string]interface{}{"label": "cold", "n": 5}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	picks := result.Picks()
	require.Len(t, picks, 1)
	assert.Equal(t, []FactChange{{Fact: "label", Mode: "set_string", Old: "hot", New: "cold"}}, picks[0].Changes)
}

func TestRun_FailedExpectations(t *testing.T) {
	s := counterScenario(
		Step{Peek: ModeBest, Expect: &ExpectClause{Count: intp(2), Rules: []string{"tagged"}}},
		Step{Pick: ModeBest, Expect: &ExpectClause{Payloads: []string{"wrong"}}},
	)
	s.Assertions = []Assertion{
		{Type: AssertPickCount, Rule: "low", Count: 5},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "steps[0]: expected 2 rules, got 1")
	assert.Contains(t, result.Errors[1], "steps[0]: expected rules [tagged], got [low]")
	assert.Contains(t, result.Errors[2], "steps[1]: expected payloads")
	assert.Contains(t, result.Errors[3], "5 picks of low")
}

func TestRun_RangeLimitsScan(t *testing.T) {
	s := counterScenario(
		Step{Set: map[string]interface{}{"label": "hot"}},
		// tagged sorts first: it has more tests
		Step{Peek: ModeValid, Range: []int{1, 2}, Expect: &ExpectClause{Rules: []string{"low"}}},
		Step{Peek: ModeValid, Range: []int{0, 1}, Expect: &ExpectClause{Rules: []string{"tagged"}}},
	)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UnknownFact(t *testing.T) {
	s := counterScenario(Step{Set: map[string]interface{}{"missing": 1}})

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown fact "missing"`)
}

func TestRun_WrongValueKind(t *testing.T) {
	s := counterScenario(Step{Peek: ModeBest})
	s.Facts = map[string]interface{}{"n": "three"}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value fact needs a number")
}

func TestRun_BrokenCatalog(t *testing.T) {
	s := &Scenario{
		Name:        "broken",
		Description: "broken",
		Source:      `rule: r: when: [{fact: "nope", eq: 1}]`,
		Steps:       []Step{{Peek: ModeBest}},
	}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog has")
}

func TestRun_CatalogDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.cue"), []byte("package rules\n"+counterSource), 0o644))

	s := &Scenario{
		Name:        "dir",
		Description: "dir",
		Catalog:     dir,
		Steps:       []Step{{Pick: ModeBest, Expect: &ExpectClause{Rules: []string{"low"}}}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
