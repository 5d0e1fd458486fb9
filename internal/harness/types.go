package harness

// Trace event types.
const (
	EventSet  = "set"
	EventPeek = "peek"
	EventPick = "pick"
)

// TraceEvent records one step or one picked rule.
//
// A peek step yields one "peek" event listing the selected rules. A pick
// step yields one "pick" event per picked rule, carrying its rendered
// payload and fact changes. A set step yields one "set" event.
type TraceEvent struct {
	Type    string         `json:"type"`
	Step    int            `json:"step"`
	Mode    string         `json:"mode,omitempty"`
	Bucket  string         `json:"bucket,omitempty"`
	Rules   []string       `json:"rules,omitempty"`
	Rule    string         `json:"rule,omitempty"`
	Payload string         `json:"payload,omitempty"`
	Changes []FactChange   `json:"changes,omitempty"`
	Facts   map[string]any `json:"facts,omitempty"`
	Seq     int64          `json:"seq,omitempty"`
}

// FactChange is a write-back resolved to fact names. Old and New are
// float64 for value facts and the string text for string facts.
type FactChange struct {
	Fact string `json:"fact"`
	Mode string `json:"mode"`
	Old  any    `json:"old"`
	New  any    `json:"new"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains every step and pick in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Facts holds the final value of every fact: float64 for value facts,
	// string for string facts.
	Facts map[string]any `json:"facts,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Facts:  make(map[string]any),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Picks returns the pick events of the trace in order.
func (r *Result) Picks() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventPick {
			out = append(out, ev)
		}
	}
	return out
}
