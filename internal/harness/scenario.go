package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quip/internal/match"
)

// Scenario defines a catalog test scenario.
// A scenario loads a catalog, seeds facts, runs a list of peek, pick and
// set steps against a real engine and asserts on the resulting trace and
// final facts.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is a CUE file or a directory of CUE files, relative to the
	// scenario file. Exactly one of Catalog and Source is set.
	Catalog string `yaml:"catalog,omitempty"`

	// Source is inline CUE catalog source.
	Source string `yaml:"source,omitempty"`

	// Settings apply to every scan unless a step overrides them.
	Settings match.Settings `yaml:"settings,omitempty"`

	// Facts are assigned before the first step.
	Facts map[string]interface{} `yaml:"facts,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and facts.
	// Supported types: picked, pick_order, pick_count, final_facts
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one engine call. Exactly one of Peek, Pick and Set is used.
type Step struct {
	// Peek scans without writing back: "best", "valid" or "bucket".
	Peek string `yaml:"peek,omitempty"`

	// Pick scans and applies write-backs: "best", "valid" or "bucket".
	Pick string `yaml:"pick,omitempty"`

	// Set assigns facts by name.
	Set map[string]interface{} `yaml:"set,omitempty"`

	// Bucket names the bucket for bucket mode.
	Bucket string `yaml:"bucket,omitempty"`

	// Range limits best and valid scans to [start, end). Defaults to the
	// whole catalog.
	Range []int `yaml:"range,omitempty"`

	// Settings override the scenario settings for this step.
	Settings *match.Settings `yaml:"settings,omitempty"`

	// Expect validates the rules the step selected.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a peek or pick.
type ExpectClause struct {
	// Count is the expected number of selected rules.
	Count *int `yaml:"count,omitempty"`

	// Rules are the expected selected rule names, in rule order.
	Rules []string `yaml:"rules,omitempty"`

	// Payloads are the expected rendered payloads of a pick, in order.
	Payloads []string `yaml:"payloads,omitempty"`
}

// Assertion validates the trace or the final facts.
type Assertion struct {
	// Type specifies the assertion type:
	// - "picked": rule was picked at least once
	// - "pick_order": rules were first picked in this order
	// - "pick_count": rule was picked exactly Count times
	// - "final_facts": facts hold the expected values
	Type string `yaml:"type"`

	// Rule is the rule name (used by picked, pick_count).
	Rule string `yaml:"rule,omitempty"`

	// Payload is the expected rendered payload (used by picked).
	Payload string `yaml:"payload,omitempty"`

	// Rules is the expected pick order (used by pick_order).
	Rules []string `yaml:"rules,omitempty"`

	// Count is the expected number of picks (used by pick_count).
	Count int `yaml:"count,omitempty"`

	// Facts are the expected fact values (used by final_facts).
	// Subset match - only listed facts are validated.
	Facts map[string]interface{} `yaml:"facts,omitempty"`
}

// Assertion type constants.
const (
	AssertPicked     = "picked"
	AssertPickOrder  = "pick_order"
	AssertPickCount  = "pick_count"
	AssertFinalFacts = "final_facts"
)

// Scan modes accepted by peek and pick steps.
const (
	ModeBest   = "best"
	ModeValid  = "valid"
	ModeBucket = "bucket"
)

// LoadScenario reads and parses a scenario YAML file. A relative Catalog
// path is resolved against the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}
	if scenario.Catalog != "" {
		if _, err := os.Stat(scenario.Catalog); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: catalog not found: %s", scenario.Catalog)
		}
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if (s.Catalog == "") == (s.Source == "") {
		return fmt.Errorf("exactly one of catalog and source is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that a step names exactly one action.
func validateStep(index int, st *Step) error {
	n := 0
	for _, set := range []bool{st.Peek != "", st.Pick != "", st.Set != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("steps[%d]: exactly one of peek, pick and set is required", index)
	}

	if st.Set != nil {
		if st.Expect != nil {
			return fmt.Errorf("steps[%d]: expect is not allowed on set", index)
		}
		return nil
	}

	mode := st.Mode()
	switch mode {
	case ModeBest, ModeValid:
		if st.Bucket != "" {
			return fmt.Errorf("steps[%d]: bucket requires mode %q", index, ModeBucket)
		}
		if st.Range != nil && len(st.Range) != 2 {
			return fmt.Errorf("steps[%d]: range must be [start, end]", index)
		}
	case ModeBucket:
		if st.Range != nil {
			return fmt.Errorf("steps[%d]: range is not allowed in bucket mode", index)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown mode %q", index, mode)
	}

	if st.Expect != nil && st.Expect.Count != nil && *st.Expect.Count < 0 {
		return fmt.Errorf("steps[%d].expect: count must be non-negative", index)
	}
	if st.Peek != "" && st.Expect != nil && st.Expect.Payloads != nil {
		return fmt.Errorf("steps[%d].expect: payloads require pick", index)
	}

	return nil
}

// Mode returns the scan mode of a peek or pick step.
func (st *Step) Mode() string {
	if st.Peek != "" {
		return st.Peek
	}
	return st.Pick
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertPicked:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for picked", index)
		}
	case AssertPickOrder:
		if len(a.Rules) == 0 {
			return fmt.Errorf("assertions[%d]: rules list is required for pick_order", index)
		}
	case AssertPickCount:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for pick_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for pick_count", index)
		}
	case AssertFinalFacts:
		if len(a.Facts) == 0 {
			return fmt.Errorf("assertions[%d]: facts is required for final_facts", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
