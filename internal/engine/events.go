package engine

import "github.com/roach88/quip/internal/writeback"

// PickEvent describes one rule picked by a Pick call.
type PickEvent struct {
	// ID is unique per event.
	ID string `json:"id"`
	// Seq orders events; it comes from the engine clock.
	Seq int64 `json:"seq"`
	// Rule is the sorted index of the picked rule.
	Rule     int    `json:"rule"`
	RuleName string `json:"rule_name"`
	// Payload is the rule's payload with fact placeholders rendered.
	Payload string             `json:"payload,omitempty"`
	Changes []writeback.Change `json:"changes,omitempty"`
	// Affected lists rules that test a fact this pick changed.
	Affected []int `json:"affected,omitempty"`
}

// OnRulePicked registers fn to receive every pick event. Listeners run on
// the picking goroutine after the engine lock is released, so they may
// call back into the engine. The returned func unregisters fn.
func (e *Engine) OnRulePicked(fn func(PickEvent)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()

	e.nextListener++
	id := e.nextListener
	e.listeners = append(e.listeners, listener{id: id, fn: fn})

	return func() {
		e.listenerMu.Lock()
		defer e.listenerMu.Unlock()
		for i, l := range e.listeners {
			if l.id == id {
				e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

type listener struct {
	id int
	fn func(PickEvent)
}

func (e *Engine) dispatch(events []PickEvent) {
	if len(events) == 0 {
		return
	}
	e.listenerMu.RLock()
	ls := append([]listener(nil), e.listeners...)
	e.listenerMu.RUnlock()

	for _, ev := range events {
		for _, l := range ls {
			l.fn(ev)
		}
	}
}
