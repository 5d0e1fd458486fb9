package facts

import (
	"fmt"
	"unsafe"
)

// FactID identifies a fact. Ids are dense and start at 0.
type FactID int32

// DevNull is the reserved fact id that unknown fact names resolve to.
// Writes to it are accepted and never read by a rule.
const DevNull FactID = 0

// DevNullName is the catalog name of the DevNull fact.
const DevNullName = "dev_null"

// Kind is the value kind of a fact.
type Kind uint8

const (
	// KindValue facts hold plain numbers.
	KindValue Kind = iota
	// KindString facts hold StringTable ids.
	KindString
)

// String returns the dump-format name of the kind.
func (k Kind) String() string {
	if k == KindString {
		return "String"
	}
	return "Value"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes "Value" or "String".
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Value", "value":
		*k = KindValue
	case "String", "string":
		*k = KindString
	default:
		return fmt.Errorf("unknown fact kind %q", b)
	}
	return nil
}

// Store is a fixed-size array of fact values.
//
// Store is not safe for concurrent mutation. Concurrent Get calls are fine
// as long as no Set runs at the same time; the matcher relies on this.
type Store struct {
	values []float64
}

// NewStore allocates a store holding n facts, all zero.
func NewStore(n int) *Store {
	if n < 0 {
		n = 0
	}
	return &Store{values: make([]float64, n)}
}

// Get returns the value of id. The id is not range checked: callers obtain
// ids through name resolution, which only hands out valid ones.
func (s *Store) Get(id FactID) float64 {
	return s.values[id]
}

// Set stores v under id. Returns false when id is out of range.
func (s *Store) Set(id FactID, v float64) bool {
	if id < 0 || int(id) >= len(s.values) {
		return false
	}
	s.values[id] = v
	return true
}

// Len returns the number of facts.
func (s *Store) Len() int {
	return len(s.values)
}

// Reset restores every fact to its default: 0 for numeric facts and
// StringUnset for string facts. kinds is indexed by FactID; facts past the
// end of kinds are treated as numeric.
func (s *Store) Reset(kinds []Kind) {
	for i := range s.values {
		if i < len(kinds) && kinds[i] == KindString {
			s.values[i] = StringUnset
			continue
		}
		s.values[i] = 0
	}
}

// Snapshot returns a copy of all values.
func (s *Store) Snapshot() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Restore overwrites the store from a snapshot of the same length.
func (s *Store) Restore(values []float64) bool {
	if len(values) != len(s.values) {
		return false
	}
	copy(s.values, values)
	return true
}

// Bytes reports the memory held by the value buffer.
func (s *Store) Bytes() int {
	return cap(s.values) * int(unsafe.Sizeof(float64(0)))
}

// Release drops the value buffer. The store is unusable afterwards.
func (s *Store) Release() {
	s.values = nil
}
