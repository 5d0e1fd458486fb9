package engine

import (
	"strconv"
	"strings"

	"github.com/roach88/quip/internal/facts"
)

// render substitutes {fact} placeholders in a payload with current fact
// values. String facts render their text; unknown names are left as is.
// Caller holds e.mu.
func (e *Engine) render(payload string) string {
	if !strings.Contains(payload, "{") {
		return payload
	}
	return Interpolate(payload, e.factText)
}

func (e *Engine) factText(name string) (string, bool) {
	id, ok := e.factByName[name]
	if !ok || id == facts.DevNull {
		return "", false
	}
	v := e.store.Get(id)
	if e.cat.Facts[id].Kind == facts.KindString {
		text, _ := e.strs.Text(int(v))
		return text, true
	}
	return strconv.FormatFloat(v, 'g', -1, 64), true
}

// Interpolate replaces each {name} in text with lookup(name). Placeholders
// lookup does not resolve, and unbalanced braces, are copied verbatim.
func Interpolate(text string, lookup func(name string) (string, bool)) string {
	var b strings.Builder
	b.Grow(len(text))
	for {
		open := strings.IndexByte(text, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(text[open+1:], '}')
		if end < 0 {
			break
		}
		end += open + 1
		b.WriteString(text[:open])
		if v, ok := lookup(text[open+1 : end]); ok {
			b.WriteString(v)
		} else {
			b.WriteString(text[open : end+1])
		}
		text = text[end+1:]
	}
	b.WriteString(text)
	return b.String()
}
