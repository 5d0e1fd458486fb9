package facts

import (
	"log/slog"

	"golang.org/x/text/unicode/norm"
)

// StringUnset is the value held by a string fact that was never assigned.
const StringUnset = -1

// Reserved string ids. The boolean literals are always present so that
// `flag = true` compiles to the same number for every catalog.
const (
	StringFalse = 0
	StringTrue  = 1
)

// StringTable interns strings to stable integer ids.
//
// Text is NFC normalised before interning, so visually identical strings
// typed with different code point sequences share an id.
//
// StringTable is not safe for concurrent use.
type StringTable struct {
	ids    map[string]int
	texts  []string
	logger *slog.Logger
	debug  bool
}

// NewStringTable returns a table with "false" and "true" pre-bound.
func NewStringTable() *StringTable {
	t := &StringTable{
		ids:    make(map[string]int),
		logger: slog.Default(),
	}
	t.Intern("false")
	t.Intern("true")
	return t
}

// SetDiagnostics enables logging of failed lookups.
func (t *StringTable) SetDiagnostics(logger *slog.Logger, enabled bool) {
	if logger != nil {
		t.logger = logger
	}
	t.debug = enabled
}

// Intern returns the id for text, assigning the next id if it is new.
// The empty string is never interned: it returns StringUnset, so an empty
// string fact and an unset one are the same value.
func (t *StringTable) Intern(text string) int {
	if text == "" {
		return StringUnset
	}
	key := norm.NFC.String(text)
	if id, ok := t.ids[key]; ok {
		return id
	}
	id := len(t.texts)
	t.ids[key] = id
	t.texts = append(t.texts, key)
	return id
}

// Lookup returns the id for text without interning it.
func (t *StringTable) Lookup(text string) (int, bool) {
	id, ok := t.ids[norm.NFC.String(text)]
	if !ok && t.debug {
		t.logger.Debug("string not interned", "text", text)
	}
	return id, ok
}

// Text returns the string bound to id.
func (t *StringTable) Text(id int) (string, bool) {
	if id < 0 || id >= len(t.texts) {
		return "", false
	}
	return t.texts[id], true
}

// Len returns the number of interned strings, reserved ones included.
func (t *StringTable) Len() int {
	return len(t.texts)
}

// Strings returns the interned strings in id order.
func (t *StringTable) Strings() []string {
	out := make([]string, len(t.texts))
	copy(out, t.texts)
	return out
}

// Bytes estimates the memory held by the table.
func (t *StringTable) Bytes() int {
	n := 0
	for _, s := range t.texts {
		// one copy in texts, one as a map key, plus the int id
		n += 2*len(s) + 8
	}
	return n
}
