package catalog

import (
	"cmp"
	"slices"
)

// BucketSlice is the half-open rule index range [Start, End) a bucket
// occupies after sorting. The zero value is the empty sentinel bucket.
type BucketSlice struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Name  string `json:"name"`
	Seeds []Seed `json:"seeds,omitempty"`
}

// Len returns the number of rules in the slice.
func (b BucketSlice) Len() int {
	return b.End - b.Start
}

// EmptySlice is returned when neither the requested bucket nor the
// default bucket exists.
var EmptySlice = BucketSlice{}

// AssignBucketOrder sets BucketOrder on every rule. Declared buckets scan
// in declaration order; undeclared ones follow in order of first use, and
// an undeclared default bucket goes last.
func AssignBucketOrder(rules []Rule, declared []BucketDef) {
	order := make(map[string]int, len(declared))
	for i, b := range declared {
		order[b.Name] = i
	}
	next := len(declared)
	for i := range rules {
		name := rules[i].BucketName()
		if name == DefaultBucket {
			continue
		}
		if _, ok := order[name]; !ok {
			order[name] = next
			next++
		}
	}
	if _, ok := order[DefaultBucket]; !ok {
		order[DefaultBucket] = next
	}
	for i := range rules {
		rules[i].BucketOrder = order[rules[i].BucketName()]
	}
}

// Sort orders rules by (BucketOrder ascending, TestCount descending).
// The sort is stable so ties keep declaration order.
func Sort(rules []Rule) {
	slices.SortStableFunc(rules, func(a, b Rule) int {
		if c := cmp.Compare(a.BucketOrder, b.BucketOrder); c != 0 {
			return c
		}
		return cmp.Compare(b.TestCount, a.TestCount)
	})
}

// Partition splits sorted rules into contiguous bucket slices and records
// each rule's own slice bounds.
//
// The first pass measures the length of every run of rules sharing a
// bucket; the second turns those lengths into cumulative bounds.
func Partition(rules []Rule) []BucketSlice {
	if len(rules) == 0 {
		return nil
	}

	var lengths []int
	for i := range rules {
		if i == 0 || rules[i].BucketName() != rules[i-1].BucketName() {
			lengths = append(lengths, 0)
		}
		lengths[len(lengths)-1]++
	}

	out := make([]BucketSlice, 0, len(lengths))
	start, k := 0, -1
	for i := range rules {
		if i == 0 || rules[i].BucketName() != rules[i-1].BucketName() {
			k++
			out = append(out, BucketSlice{
				Start: start,
				End:   start + lengths[k],
				Name:  rules[i].BucketName(),
			})
			start += lengths[k]
		}
		rules[i].SliceStart = out[k].Start
		rules[i].SliceEnd = out[k].End
	}
	return out
}
