package engine

// State is the engine lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateReloading
	StateDisposed
)

var stateNames = [...]string{
	StateUninitialized: "uninitialized",
	StateReady:         "ready",
	StateReloading:     "reloading",
	StateDisposed:      "disposed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
