package catalog

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/roach88/quip/internal/facts"
)

// Index resolves bucket names and answers which rules read a fact.
type Index struct {
	slices  []BucketSlice
	byName  map[string]int
	readers []*roaring.Bitmap
}

// NewIndex indexes a sorted, partitioned catalog.
func NewIndex(c *Catalog, parts []BucketSlice) *Index {
	seeds := make(map[string][]Seed, len(c.Buckets))
	for _, b := range c.Buckets {
		seeds[b.Name] = b.Seeds
	}

	ix := &Index{
		slices:  make([]BucketSlice, len(parts)),
		byName:  make(map[string]int, len(parts)),
		readers: make([]*roaring.Bitmap, len(c.Facts)),
	}
	for i, p := range parts {
		p.Seeds = seeds[p.Name]
		ix.slices[i] = p
		ix.byName[p.Name] = i
	}

	for ri, r := range c.Rules {
		for _, t := range c.RuleTests(r) {
			if t.Fact < 0 || int(t.Fact) >= len(ix.readers) {
				continue
			}
			bm := ix.readers[t.Fact]
			if bm == nil {
				bm = roaring.New()
				ix.readers[t.Fact] = bm
			}
			bm.Add(uint32(ri))
		}
	}
	for _, bm := range ix.readers {
		if bm != nil {
			bm.RunOptimize()
		}
	}
	return ix
}

// Lookup resolves a bucket by name. When name is unknown it falls back to
// the default bucket and then to EmptySlice; found is false in both cases.
func (ix *Index) Lookup(name string) (slice BucketSlice, found bool) {
	if i, ok := ix.byName[name]; ok {
		return ix.slices[i], true
	}
	if i, ok := ix.byName[DefaultBucket]; ok {
		return ix.slices[i], false
	}
	return EmptySlice, false
}

// Slices returns the bucket slices in scan order.
func (ix *Index) Slices() []BucketSlice {
	return ix.slices
}

// RulesReading returns the indices of rules with a test on id.
func (ix *Index) RulesReading(id facts.FactID) []int {
	if id < 0 || int(id) >= len(ix.readers) || ix.readers[id] == nil {
		return nil
	}
	return toInts(ix.readers[id])
}

// RulesReadingAny returns the sorted union of RulesReading over ids.
func (ix *Index) RulesReadingAny(ids []facts.FactID) []int {
	var sets []*roaring.Bitmap
	for _, id := range ids {
		if id >= 0 && int(id) < len(ix.readers) && ix.readers[id] != nil {
			sets = append(sets, ix.readers[id])
		}
	}
	if len(sets) == 0 {
		return nil
	}
	return toInts(roaring.FastOr(sets...))
}

// Bytes estimates the memory held by the index.
func (ix *Index) Bytes() int {
	n := len(ix.slices)*48 + len(ix.readers)*8
	for _, bm := range ix.readers {
		if bm != nil {
			n += int(bm.GetSizeInBytes())
		}
	}
	return n
}

func toInts(bm *roaring.Bitmap) []int {
	out := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}
