package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/quip/internal/catalog"
	"github.com/roach88/quip/internal/facts"
)

// compareOps are the comparison keys of a test, e.g. {fact: "hp", gt: 0}.
var compareOps = []string{"eq", "ne", "gt", "ge", "lt", "le", "between", "always"}

// writeOps are the write-back keys of a `then` entry. The names match
// catalog.ParseWriteMode; `set` on a string fact becomes SetString.
var writeOps = []string{"set", "increment", "subtract", "set_from", "increment_by", "subtract_by"}

// compileWhen compiles the `when` list. Plain entries are ungrouped tests;
// an {any: [...]} entry is an OR-group whose members each count once.
func (b *builder) compileWhen(ruleID int, field string, v cue.Value) ([]catalog.FactTest, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var tests []catalog.FactTest
	group := 0
	for i := 0; iter.Next(); i++ {
		item := iter.Value()
		f := fmt.Sprintf("%s.when[%d]", field, i)

		anyVal := item.LookupPath(cue.MakePath(cue.Str("any")))
		if !anyVal.Exists() {
			t, err := b.compileTest(item, f)
			if err != nil {
				return nil, err
			}
			t.RuleID, t.OrGroup = ruleID, catalog.NoOrGroup
			tests = append(tests, t)
			continue
		}

		members, err := anyVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		n := 0
		for ; members.Next(); n++ {
			t, err := b.compileTest(members.Value(), fmt.Sprintf("%s.any[%d]", f, n))
			if err != nil {
				return nil, err
			}
			t.RuleID, t.OrGroup = ruleID, group
			tests = append(tests, t)
		}
		if n == 0 {
			return nil, &CompileError{Field: f + ".any", Message: "at least one test is required", Pos: anyVal.Pos()}
		}
		group++
	}
	return tests, nil
}

func (b *builder) compileTest(v cue.Value, field string) (catalog.FactTest, error) {
	id, kind, err := b.factRef(v, field)
	if err != nil {
		return catalog.FactTest{}, err
	}
	t := catalog.FactTest{Fact: id, Strict: true}

	if sv := v.LookupPath(cue.ParsePath("strict")); sv.Exists() {
		if t.Strict, err = sv.Bool(); err != nil {
			return t, formatCUEError(err)
		}
	}

	op, opVal, err := onlyOne(v, field, compareOps)
	if err != nil {
		return t, err
	}

	switch op {
	case "always":
		t.Compare = catalog.Any()
		return t, nil
	case "between":
		lo, hi, err := b.bounds(opVal, kind, field+".between")
		if err != nil {
			return t, err
		}
		t.Compare = catalog.Between(lo, hi)
		return t, nil
	}

	x, err := b.value(opVal, kind, field+"."+op)
	if err != nil {
		return t, err
	}
	switch op {
	case "eq":
		t.Compare = catalog.Equal(x)
	case "ne":
		t.Compare = catalog.NotEqual(x)
	case "gt":
		t.Compare = catalog.Greater(x)
	case "ge":
		t.Compare = catalog.GreaterEqual(x)
	case "lt":
		t.Compare = catalog.Less(x)
	case "le":
		t.Compare = catalog.LessEqual(x)
	}
	return t, nil
}

// bounds reads a two-element [lo, hi] list.
func (b *builder) bounds(v cue.Value, kind facts.Kind, field string) (float64, float64, error) {
	iter, err := v.List()
	if err != nil {
		return 0, 0, formatCUEError(err)
	}
	var out []float64
	for iter.Next() {
		x, err := b.value(iter.Value(), kind, field)
		if err != nil {
			return 0, 0, err
		}
		out = append(out, x)
	}
	if len(out) != 2 {
		return 0, 0, &CompileError{Field: field, Message: "expected [low, high]", Pos: v.Pos()}
	}
	return out[0], out[1], nil
}

// compileThen compiles the `then` list into write-backs, in order.
func (b *builder) compileThen(field string, v cue.Value) ([]catalog.FactWrite, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var writes []catalog.FactWrite
	for i := 0; iter.Next(); i++ {
		item := iter.Value()
		f := fmt.Sprintf("%s.then[%d]", field, i)

		id, kind, err := b.factRef(item, f)
		if err != nil {
			return nil, err
		}
		op, opVal, err := onlyOne(item, f, writeOps)
		if err != nil {
			return nil, err
		}
		mode, _ := catalog.ParseWriteMode(op)
		w := catalog.FactWrite{Fact: id, Mode: mode}

		if mode.UsesSource() {
			name, err := opVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			src, ok := b.factIDs[name]
			if !ok {
				return nil, &CompileError{Field: f + "." + op, Message: fmt.Sprintf("unknown fact %q", name), Pos: opVal.Pos()}
			}
			w.Source = src
		} else {
			if w.Value, err = b.value(opVal, kind, f+"."+op); err != nil {
				return nil, err
			}
			if mode == catalog.SetValue && kind == facts.KindString {
				w.Mode = catalog.SetString
			}
		}
		writes = append(writes, w)
	}
	return writes, nil
}
