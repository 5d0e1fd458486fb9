package catalog

// Build validates src and returns a sorted, partitioned copy with its
// index. When validation finds an error the returned catalog is Void: a
// broken catalog is never half loaded. src is not modified.
func Build(src *Catalog) (*Catalog, *Index, Problems) {
	ps := Validate(src)
	var c *Catalog
	if ps.Fatal() {
		c = Void()
	} else {
		c = src.Clone()
	}

	AssignBucketOrder(c.Rules, c.Buckets)
	Sort(c.Rules)
	parts := Partition(c.Rules)
	return c, NewIndex(c, parts), ps
}
