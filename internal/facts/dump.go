package facts

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	dumpSeparator = ",  "
	dumpHeader    = "Type" + dumpSeparator + "Name" + dumpSeparator + "Value"
)

// CheckName reports whether name can round-trip through a fact dump.
// Names must be non-empty, single-line, free of commas and of surrounding
// whitespace.
func CheckName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("fact name is empty")
	case strings.ContainsAny(name, ",\r\n"):
		return fmt.Errorf("fact name %q contains a comma or line break", name)
	case strings.TrimSpace(name) != name:
		return fmt.Errorf("fact name %q has leading or trailing whitespace", name)
	}
	return nil
}

// Def names a fact and its kind. A slice of Defs indexed by FactID is the
// schema that records and dumps translate through.
type Def struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// DumpError reports a malformed line in a fact dump.
type DumpError struct {
	Line    int
	Message string
}

func (e *DumpError) Error() string {
	return fmt.Sprintf("fact dump line %d: %s", e.Line, e.Message)
}

// SaveCSV writes every fact except DevNull in the dump format. String facts
// are written as their text; an unset string fact is written empty, which
// LoadCSV reads back as unset.
func SaveCSV(w io.Writer, defs []Def, s *Store, strs *StringTable) error {
	return WriteCSV(w, Export(defs, s, strs))
}

// WriteCSV writes records in the dump format.
func WriteCSV(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, dumpHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		text := rec.Text
		if rec.Kind != KindString {
			text = strconv.FormatFloat(rec.Value, 'g', -1, 64)
		}
		if _, err := fmt.Fprintf(bw, "%s%s%s%s%s\n", rec.Kind, dumpSeparator, rec.Name, dumpSeparator, text); err != nil {
			return fmt.Errorf("write fact %s: %w", rec.Name, err)
		}
	}
	return bw.Flush()
}

// LoadCSV reads a dump written by SaveCSV into s. Strings are re-interned,
// so text unknown to the table gets a fresh id. Rows naming facts outside
// the schema are skipped and reported in LoadStats.
func LoadCSV(r io.Reader, defs []Def, s *Store, strs *StringTable) (LoadStats, error) {
	records, err := ReadCSV(r)
	if err != nil {
		return LoadStats{}, err
	}
	return Import(records, defs, s, strs), nil
}

// ReadCSV parses a dump into records.
func ReadCSV(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(raw) == "" || (line == 1 && strings.TrimSpace(raw) == dumpHeader) {
			continue
		}

		parts := strings.SplitN(raw, ",", 3)
		if len(parts) != 3 {
			return nil, &DumpError{Line: line, Message: "expected Type, Name, Value"}
		}
		kind := strings.TrimSpace(parts[0])
		rec := Record{Name: strings.TrimSpace(parts[1])}
		value := strings.TrimPrefix(parts[2], "  ")

		switch kind {
		case "String":
			rec.Kind = KindString
			rec.Text = value
		case "Value":
			v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				return nil, &DumpError{Line: line, Message: fmt.Sprintf("bad value %q for %s", value, rec.Name)}
			}
			rec.Value = v
		default:
			return nil, &DumpError{Line: line, Message: fmt.Sprintf("unknown type %q", kind)}
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read fact dump: %w", err)
	}
	return out, nil
}
