package engine

import (
	"io"

	"github.com/roach88/quip/internal/facts"
)

// FactID resolves a fact name. Unknown names resolve to facts.DevNull, so
// a write through the id is harmless.
func (e *Engine) FactID(name string) facts.FactID {
	if !e.lockReady("fact_id") {
		return facts.DevNull
	}
	defer e.mu.Unlock()
	if id, ok := e.factByName[name]; ok {
		return id
	}
	if e.diagnostics {
		e.logger.Debug("unknown fact", "name", name)
	}
	return facts.DevNull
}

// FactDefs returns the fact schema in id order.
func (e *Engine) FactDefs() []facts.Def {
	if !e.lockReady("fact_defs") {
		return nil
	}
	defer e.mu.Unlock()
	return append([]facts.Def(nil), e.cat.Facts...)
}

// Get returns a fact value, or 0 for an out-of-range id.
func (e *Engine) Get(id facts.FactID) float64 {
	if !e.lockReady("get") {
		return 0
	}
	defer e.mu.Unlock()
	if id < 0 || int(id) >= e.store.Len() {
		return 0
	}
	return e.store.Get(id)
}

// Set writes a fact value. It reports false for an out-of-range id.
func (e *Engine) Set(id facts.FactID, v float64) bool {
	if !e.lockReady("set") {
		return false
	}
	defer e.mu.Unlock()
	return e.store.Set(id, v)
}

// GetString returns the text held by a string fact.
func (e *Engine) GetString(id facts.FactID) (string, bool) {
	if !e.lockReady("get_string") {
		return "", false
	}
	defer e.mu.Unlock()
	if id < 0 || int(id) >= e.store.Len() {
		return "", false
	}
	return e.strs.Text(int(e.store.Get(id)))
}

// SetString interns text and stores its id in the fact.
func (e *Engine) SetString(id facts.FactID, text string) bool {
	if !e.lockReady("set_string") {
		return false
	}
	defer e.mu.Unlock()
	if id < 0 || int(id) >= e.store.Len() {
		return false
	}
	return e.store.Set(id, float64(e.strs.Intern(text)))
}

// StringID returns the id of an interned string, or facts.StringUnset.
func (e *Engine) StringID(text string) int {
	if !e.lockReady("string_id") {
		return facts.StringUnset
	}
	defer e.mu.Unlock()
	if id, ok := e.strs.Lookup(text); ok {
		return id
	}
	return facts.StringUnset
}

// StringText returns the text of an interned string id.
func (e *Engine) StringText(id int) (string, bool) {
	if !e.lockReady("string_text") {
		return "", false
	}
	defer e.mu.Unlock()
	return e.strs.Text(id)
}

// ResetFacts restores every fact to its default.
func (e *Engine) ResetFacts() {
	if !e.lockReady("reset_facts") {
		return
	}
	defer e.mu.Unlock()
	e.store.Reset(e.cat.Kinds())
}

// RulesReading returns the rules that test fact id.
func (e *Engine) RulesReading(id facts.FactID) []int {
	if !e.lockReady("rules_reading") {
		return nil
	}
	defer e.mu.Unlock()
	return e.index.RulesReading(id)
}

// ExportFacts returns every fact as a record.
func (e *Engine) ExportFacts() []facts.Record {
	if !e.lockReady("export_facts") {
		return nil
	}
	defer e.mu.Unlock()
	return facts.Export(e.cat.Facts, e.store, e.strs)
}

// ImportFacts writes records by fact name.
func (e *Engine) ImportFacts(records []facts.Record) facts.LoadStats {
	if !e.lockReady("import_facts") {
		return facts.LoadStats{}
	}
	defer e.mu.Unlock()
	stats := facts.Import(records, e.cat.Facts, e.store, e.strs)
	e.logUnknown(stats)
	return stats
}

// SaveFacts writes a CSV dump of every fact to w.
func (e *Engine) SaveFacts(w io.Writer) error {
	if !e.lockReady("save_facts") {
		return newStateError("save facts", e.State())
	}
	defer e.mu.Unlock()
	if err := facts.SaveCSV(w, e.cat.Facts, e.store, e.strs); err != nil {
		return &Error{Code: ErrCodeFactIO, Message: "save facts", State: StateReady, Err: err}
	}
	return nil
}

// LoadFacts reads a CSV dump from r. Rows naming unknown facts are skipped
// and reported in the stats.
func (e *Engine) LoadFacts(r io.Reader) (facts.LoadStats, error) {
	if !e.lockReady("load_facts") {
		return facts.LoadStats{}, newStateError("load facts", e.State())
	}
	defer e.mu.Unlock()
	stats, err := facts.LoadCSV(r, e.cat.Facts, e.store, e.strs)
	if err != nil {
		return stats, &Error{Code: ErrCodeFactIO, Message: "load facts", State: StateReady, Err: err}
	}
	e.logUnknown(stats)
	return stats, nil
}

func (e *Engine) logUnknown(stats facts.LoadStats) {
	if len(stats.Unknown) > 0 {
		e.logger.Warn("skipped unknown facts", "count", len(stats.Unknown), "names", stats.Unknown)
	}
}
