package catalog

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/quip/internal/facts"
)

// NoOrGroup marks a test that is not part of any OR-group.
const NoOrGroup = -1

// DefaultBucket is the bucket rules land in when they name none.
const DefaultBucket = "default"

// FactTest is one comparison against one fact, owned by one rule.
type FactTest struct {
	Fact    facts.FactID `json:"fact"`
	Compare FactCompare  `json:"compare"`
	RuleID  int          `json:"rule_id"`
	OrGroup int          `json:"or_group"`
	Strict  bool         `json:"strict"`
}

// Grouped reports whether the test belongs to an OR-group.
func (t FactTest) Grouped() bool {
	return t.OrGroup != NoOrGroup
}

// WriteMode selects how a FactWrite changes its target.
type WriteMode uint8

const (
	SetValue WriteMode = iota
	SetString
	Increment
	Subtract
	SetFromOtherFact
	IncrementByOtherFact
	SubtractByOtherFact
)

var writeModeNames = [...]string{
	SetValue:             "set",
	SetString:            "set_string",
	Increment:            "increment",
	Subtract:             "subtract",
	SetFromOtherFact:     "set_from",
	IncrementByOtherFact: "increment_by",
	SubtractByOtherFact:  "subtract_by",
}

func (m WriteMode) String() string {
	if int(m) < len(writeModeNames) {
		return writeModeNames[m]
	}
	return fmt.Sprintf("WriteMode(%d)", m)
}

// ParseWriteMode maps a mode name back to its WriteMode.
func ParseWriteMode(s string) (WriteMode, bool) {
	for i, name := range writeModeNames {
		if name == s {
			return WriteMode(i), true
		}
	}
	return 0, false
}

// MarshalText encodes the mode by name.
func (m WriteMode) MarshalText() ([]byte, error) {
	if int(m) >= len(writeModeNames) {
		return nil, fmt.Errorf("unknown write mode %d", m)
	}
	return []byte(writeModeNames[m]), nil
}

// UnmarshalText decodes a mode name.
func (m *WriteMode) UnmarshalText(b []byte) error {
	v, ok := ParseWriteMode(string(b))
	if !ok {
		return fmt.Errorf("unknown write mode %q", b)
	}
	*m = v
	return nil
}

// UsesSource reports whether the mode reads another fact.
func (m WriteMode) UsesSource() bool {
	return m == SetFromOtherFact || m == IncrementByOtherFact || m == SubtractByOtherFact
}

// FactWrite is one mutation applied when its rule is picked.
// Literal modes use Value; the "other fact" modes read Source instead.
type FactWrite struct {
	Fact   facts.FactID `json:"fact"`
	Mode   WriteMode    `json:"mode"`
	Value  float64      `json:"value,omitempty"`
	Source facts.FactID `json:"source,omitempty"`
}

// Rule is a compiled rule. Tests[TestStart:TestStart+TestCount] belongs to
// it alone. SliceStart/SliceEnd are filled in by Partition and bound the
// bucket the rule was sorted into.
type Rule struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	TestStart   int         `json:"test_start"`
	TestCount   int         `json:"test_count"`
	Bucket      string      `json:"bucket,omitempty"`
	BucketOrder int         `json:"bucket_order"`
	SliceStart  int         `json:"slice_start"`
	SliceEnd    int         `json:"slice_end"`
	Payload     string      `json:"payload,omitempty"`
	Writes      []FactWrite `json:"writes,omitempty"`
	Source      string      `json:"source,omitempty"`
	Line        int         `json:"line,omitempty"`
}

// BucketName returns the rule's bucket, substituting DefaultBucket.
func (r Rule) BucketName() string {
	if r.Bucket == "" {
		return DefaultBucket
	}
	return r.Bucket
}

// Seed is a fact value applied when a bucket is selected.
type Seed struct {
	Fact  facts.FactID `json:"fact"`
	Value float64      `json:"value"`
}

// BucketDef declares a bucket. Declaration order is scan order.
type BucketDef struct {
	Name  string `json:"name"`
	Seeds []Seed `json:"seeds,omitempty"`
}

// Catalog is the compiled input the engine is built from.
type Catalog struct {
	Facts   []facts.Def `json:"facts"`
	Strings []string    `json:"strings"`
	Rules   []Rule      `json:"rules"`
	Tests   []FactTest  `json:"tests"`
	Buckets []BucketDef `json:"buckets,omitempty"`
}

// Void returns the catalog a fatal compile error leaves behind: the reserved
// dev_null fact, the reserved strings and no rules.
func Void() *Catalog {
	return &Catalog{
		Facts:   []facts.Def{{Name: facts.DevNullName, Kind: facts.KindValue}},
		Strings: []string{"false", "true"},
	}
}

// Kinds returns the fact kinds indexed by FactID.
func (c *Catalog) Kinds() []facts.Kind {
	kinds := make([]facts.Kind, len(c.Facts))
	for i, f := range c.Facts {
		kinds[i] = f.Kind
	}
	return kinds
}

// RuleTests returns the test block of r.
func (c *Catalog) RuleTests(r Rule) []FactTest {
	return c.Tests[r.TestStart : r.TestStart+r.TestCount]
}

// Clone returns a deep copy so that sorting and partitioning never touch
// the caller's catalog.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{
		Facts:   append([]facts.Def(nil), c.Facts...),
		Strings: append([]string(nil), c.Strings...),
		Tests:   append([]FactTest(nil), c.Tests...),
		Rules:   make([]Rule, len(c.Rules)),
		Buckets: make([]BucketDef, len(c.Buckets)),
	}
	for i, r := range c.Rules {
		r.Writes = append([]FactWrite(nil), r.Writes...)
		out.Rules[i] = r
	}
	for i, b := range c.Buckets {
		b.Seeds = append([]Seed(nil), b.Seeds...)
		out.Buckets[i] = b
	}
	return out
}

// OrderTests sorts a rule's test block by OR-group, ungrouped tests first,
// keeping declaration order inside each group.
func OrderTests(tests []FactTest) {
	slices.SortStableFunc(tests, func(a, b FactTest) int {
		return cmp.Compare(a.OrGroup, b.OrGroup)
	})
}
