package catalog

import (
	"encoding/json"
	"fmt"
	"io"
)

// Encode writes c as indented JSON, the format Decode reads back.
func (c *Catalog) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// Decode reads a JSON catalog. Unknown fields are rejected so a catalog
// written by a newer compiler fails loudly instead of loading partially.
func Decode(r io.Reader) (*Catalog, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &c, nil
}
