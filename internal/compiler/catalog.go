package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/quip/internal/catalog"
	"github.com/roach88/quip/internal/facts"
)

// CompileCatalog compiles fact, bucket and rule declarations into a
// catalog. Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value holds three optional top-level structs:
//
//	fact: {
//		health: "value"
//		mood:   "string"
//	}
//	bucket: combat: seeds: alert: 1
//	rule: taunt: {
//		bucket:  "combat"
//		payload: "Is that all? I still have {health}."
//		when: [
//			{fact: "health", gt: 50},
//			{any: [{fact: "mood", eq: "angry"}, {fact: "mood", eq: "bored"}]},
//		]
//		then: [{fact: "taunts", increment: 1}]
//	}
//
// Compilation does not stop at the first failure: every problem found is
// returned, followed by catalog.Validate's findings. If any problem is an
// error the returned catalog is catalog.Void().
func CompileCatalog(v cue.Value) (*catalog.Catalog, catalog.Problems) {
	if err := v.Err(); err != nil {
		return catalog.Void(), catalog.Problems{problemOf(formatCUEError(err))}
	}

	b := newBuilder()
	b.declareFacts(v.LookupPath(cue.ParsePath("fact")))
	b.declareBuckets(v.LookupPath(cue.ParsePath("bucket")))
	b.compileRules(v.LookupPath(cue.ParsePath("rule")))

	c := b.finish()
	b.problems = append(b.problems, catalog.Validate(c)...)
	if b.problems.Fatal() {
		return catalog.Void(), b.problems
	}
	return c, b.problems
}

type builder struct {
	c        *catalog.Catalog
	strs     *facts.StringTable
	factIDs  map[string]facts.FactID
	problems catalog.Problems
}

func newBuilder() *builder {
	return &builder{
		c:       catalog.Void(),
		strs:    facts.NewStringTable(),
		factIDs: map[string]facts.FactID{facts.DevNullName: facts.DevNull},
	}
}

func (b *builder) fail(err error) {
	b.problems = append(b.problems, problemOf(err))
}

func (b *builder) finish() *catalog.Catalog {
	b.c.Strings = b.strs.Strings()
	return b.c
}

// declareFacts reads `fact: name: "value" | "string"`.
func (b *builder) declareFacts(v cue.Value) {
	if !v.Exists() {
		return
	}
	iter, err := v.Fields()
	if err != nil {
		b.fail(formatCUEError(err))
		return
	}

	for iter.Next() {
		name := iter.Label()
		fv := iter.Value()
		field := "fact." + name

		if name == facts.DevNullName {
			b.fail(&CompileError{Field: field, Message: "fact name is reserved", Pos: fv.Pos()})
			continue
		}
		if err := facts.CheckName(name); err != nil {
			b.fail(&CompileError{Field: field, Message: err.Error(), Pos: fv.Pos()})
			continue
		}
		text, err := fv.String()
		if err != nil {
			b.fail(&CompileError{Field: field, Message: `kind must be "value" or "string"`, Pos: fv.Pos()})
			continue
		}
		var kind facts.Kind
		if err := kind.UnmarshalText([]byte(text)); err != nil {
			b.fail(&CompileError{Field: field, Message: err.Error(), Pos: fv.Pos()})
			continue
		}

		b.factIDs[name] = facts.FactID(len(b.c.Facts))
		b.c.Facts = append(b.c.Facts, facts.Def{Name: name, Kind: kind})
	}
}

// declareBuckets reads `bucket: name: seeds: fact: value`. Declaration
// order becomes scan order.
func (b *builder) declareBuckets(v cue.Value) {
	if !v.Exists() {
		return
	}
	iter, err := v.Fields()
	if err != nil {
		b.fail(formatCUEError(err))
		return
	}

	for iter.Next() {
		name := iter.Label()
		def := catalog.BucketDef{Name: name}

		seedsVal := iter.Value().LookupPath(cue.ParsePath("seeds"))
		if seedsVal.Exists() {
			seeds, err := b.compileSeeds("bucket."+name+".seeds", seedsVal)
			if err != nil {
				b.fail(err)
				continue
			}
			def.Seeds = seeds
		}
		b.c.Buckets = append(b.c.Buckets, def)
	}
}

func (b *builder) compileSeeds(field string, v cue.Value) ([]catalog.Seed, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var seeds []catalog.Seed
	for iter.Next() {
		f := field + "." + iter.Label()
		id, ok := b.factIDs[iter.Label()]
		if !ok {
			return nil, &CompileError{Field: f, Message: fmt.Sprintf("unknown fact %q", iter.Label()), Pos: iter.Value().Pos()}
		}
		x, err := b.value(iter.Value(), b.c.Facts[id].Kind, f)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, catalog.Seed{Fact: id, Value: x})
	}
	return seeds, nil
}

func (b *builder) compileRules(v cue.Value) {
	if !v.Exists() {
		return
	}
	iter, err := v.Fields()
	if err != nil {
		b.fail(formatCUEError(err))
		return
	}

	for iter.Next() {
		r, tests, err := b.compileRule(len(b.c.Rules), iter.Label(), iter.Value())
		if err != nil {
			b.fail(err)
			continue
		}
		catalog.OrderTests(tests)
		r.TestStart = len(b.c.Tests)
		r.TestCount = len(tests)
		b.c.Tests = append(b.c.Tests, tests...)
		b.c.Rules = append(b.c.Rules, r)
	}
}

func (b *builder) compileRule(id int, name string, v cue.Value) (catalog.Rule, []catalog.FactTest, error) {
	field := "rule." + name
	pos := v.Pos()
	r := catalog.Rule{ID: id, Name: name}
	if pos.IsValid() {
		r.Source = pos.Filename()
		r.Line = pos.Line()
	}

	var err error
	if r.Bucket, err = optionalString(v, "bucket"); err != nil {
		return r, nil, err
	}
	if r.Payload, err = optionalString(v, "payload"); err != nil {
		return r, nil, err
	}

	tests, err := b.compileWhen(id, field, v.LookupPath(cue.ParsePath("when")))
	if err != nil {
		return r, nil, err
	}
	r.Writes, err = b.compileThen(field, v.LookupPath(cue.ParsePath("then")))
	if err != nil {
		return r, nil, err
	}
	return r, tests, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// factRef resolves the `fact` field of a test or write.
func (b *builder) factRef(v cue.Value, field string) (facts.FactID, facts.Kind, error) {
	fv := v.LookupPath(cue.ParsePath("fact"))
	if !fv.Exists() {
		return 0, 0, &CompileError{Field: field, Message: "fact is required", Pos: v.Pos()}
	}
	name, err := fv.String()
	if err != nil {
		return 0, 0, formatCUEError(err)
	}
	id, ok := b.factIDs[name]
	if !ok || id == facts.DevNull {
		return 0, 0, &CompileError{Field: field, Message: fmt.Sprintf("unknown fact %q", name), Pos: fv.Pos()}
	}
	return id, b.c.Facts[id].Kind, nil
}

// value compiles a literal for a fact of the given kind. Booleans become
// the reserved false/true string ids; strings are interned.
func (b *builder) value(v cue.Value, kind facts.Kind, field string) (float64, error) {
	switch v.IncompleteKind() {
	case cue.BoolKind:
		on, err := v.Bool()
		if err != nil {
			return 0, formatCUEError(err)
		}
		if on {
			return facts.StringTrue, nil
		}
		return facts.StringFalse, nil
	case cue.StringKind:
		if kind != facts.KindString {
			return 0, &CompileError{Field: field, Message: "string literal used with a value fact", Pos: v.Pos()}
		}
		s, err := v.String()
		if err != nil {
			return 0, formatCUEError(err)
		}
		return float64(b.strs.Intern(s)), nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		if kind == facts.KindString {
			return 0, &CompileError{Field: field, Message: "number used with a string fact", Pos: v.Pos()}
		}
		x, err := v.Float64()
		if err != nil {
			return 0, formatCUEError(err)
		}
		return x, nil
	default:
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported literal kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// onlyOne finds the single key of keys present in v.
func onlyOne(v cue.Value, field string, keys []string) (string, cue.Value, error) {
	var found string
	var val cue.Value
	for _, k := range keys {
		kv := v.LookupPath(cue.MakePath(cue.Str(k)))
		if !kv.Exists() {
			continue
		}
		if found != "" {
			return "", cue.Value{}, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("%s and %s are mutually exclusive", found, k),
				Pos:     kv.Pos(),
			}
		}
		found, val = k, kv
	}
	if found == "" {
		return "", cue.Value{}, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("one of %v is required", keys),
			Pos:     v.Pos(),
		}
	}
	return found, val, nil
}
