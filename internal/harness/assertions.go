package harness

import (
	"fmt"
	"sort"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nPicks:\n")
		n := 0
		for _, event := range e.Trace {
			if event.Type == EventPick {
				n++
				fmt.Fprintf(&buf, "  [%d] step %d %s %q\n", n, event.Step, event.Rule, event.Payload)
			}
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertPicked:
		return assertPicked(result.Trace, a)
	case AssertPickOrder:
		return assertPickOrder(result.Trace, a)
	case AssertPickCount:
		return assertPickCount(result.Trace, a)
	case AssertFinalFacts:
		return assertFinalFacts(result.Facts, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertPicked checks the rule was picked, with the given payload if one
// is specified.
func assertPicked(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Type != EventPick || event.Rule != a.Rule {
			continue
		}
		if a.Payload == "" || event.Payload == a.Payload {
			return nil
		}
	}

	expected := fmt.Sprintf("rule %s picked", a.Rule)
	if a.Payload != "" {
		expected += fmt.Sprintf(" with payload %q", a.Payload)
	}
	return &AssertionError{
		Type:     AssertPicked,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertPickOrder checks the rules were first picked in the given order.
// Other picks may come in between.
func assertPickOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	n := 0
	for _, event := range trace {
		if event.Type != EventPick {
			continue
		}
		n++
		if positions[event.Rule] == 0 {
			positions[event.Rule] = n // 1-indexed for readability
		}
	}

	for _, rule := range a.Rules {
		if positions[rule] == 0 {
			return &AssertionError{
				Type:     AssertPickOrder,
				Expected: fmt.Sprintf("all rules picked: %v", a.Rules),
				Actual:   fmt.Sprintf("never picked: %s", rule),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Rules); i++ {
		prev, curr := a.Rules[i-1], a.Rules[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertPickOrder,
				Expected: fmt.Sprintf("rules picked in order: %v", a.Rules),
				Actual: fmt.Sprintf("%s (pick %d) should be before %s (pick %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertPickCount checks the rule was picked exactly Count times.
func assertPickCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventPick && event.Rule == a.Rule {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertPickCount,
			Expected: fmt.Sprintf("%d picks of %s", a.Count, a.Rule),
			Actual:   fmt.Sprintf("%d picks", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalFacts checks facts hold the expected values (subset match).
// Keys are checked in sorted order so the first failure is stable.
func assertFinalFacts(actual map[string]any, a Assertion) error {
	names := make([]string, 0, len(a.Facts))
	for name := range a.Facts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		want := a.Facts[name]
		got, ok := actual[name]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalFacts,
				Expected: fmt.Sprintf("fact %q to exist", name),
				Actual:   "no such fact",
			}
		}
		if !factValuesEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalFacts,
				Expected: fmt.Sprintf("fact %q = %v", name, want),
				Actual:   fmt.Sprintf("fact %q = %v", name, got),
			}
		}
	}
	return nil
}

// factValuesEqual compares a YAML-parsed expectation with a fact value.
// Numbers compare numerically; bools match 1 and 0 or "true" and "false".
func factValuesEqual(want, got any) bool {
	switch g := got.(type) {
	case float64:
		w, err := toNumber(want)
		return err == nil && w == g
	case string:
		w, err := toText(want)
		return err == nil && w == g
	}
	return false
}
