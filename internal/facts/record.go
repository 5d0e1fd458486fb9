package facts

// Record is a fact value detached from ids: string facts carry their text.
// Records are how facts leave and re-enter a store (dumps, snapshots,
// carrying values across a reload).
type Record struct {
	Name  string  `json:"name"`
	Kind  Kind    `json:"kind"`
	Value float64 `json:"value"`
	Text  string  `json:"text,omitempty"`
}

// LoadStats summarises an Import.
type LoadStats struct {
	Loaded  int
	Unknown []string // names not present in the schema
}

// Export returns a Record for every fact except DevNull, in id order.
func Export(defs []Def, s *Store, strs *StringTable) []Record {
	out := make([]Record, 0, len(defs))
	for i, def := range defs {
		id := FactID(i)
		if id == DevNull || int(id) >= s.Len() {
			continue
		}
		rec := Record{Name: def.Name, Kind: def.Kind, Value: s.Get(id)}
		if def.Kind == KindString {
			rec.Text, _ = strs.Text(int(rec.Value))
		}
		out = append(out, rec)
	}
	return out
}

// Import writes records into s by name. String records are re-interned
// from their text; empty text restores StringUnset. The record's Kind is
// ignored in favour of the schema's.
func Import(records []Record, defs []Def, s *Store, strs *StringTable) LoadStats {
	var stats LoadStats
	byName := make(map[string]FactID, len(defs))
	for i, def := range defs {
		byName[def.Name] = FactID(i)
	}

	for _, rec := range records {
		id, ok := byName[rec.Name]
		if !ok || id == DevNull {
			stats.Unknown = append(stats.Unknown, rec.Name)
			continue
		}
		v := rec.Value
		if defs[id].Kind == KindString {
			v = float64(strs.Intern(rec.Text))
		}
		if s.Set(id, v) {
			stats.Loaded++
		}
	}
	return stats
}
