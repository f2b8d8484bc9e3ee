package supervisor

// State is where a managed process stands in the start sequence.
type State int

const (
	Pending State = iota
	Starting
	Started
	Timeout
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Starting:
		return "starting"
	case Started:
		return "started"
	case Timeout:
		return "timeout"
	case Failed:
		return "error"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition follows s in a start run.
func (s State) Terminal() bool {
	return s == Started || s == Timeout || s == Failed || s == Skipped
}

// OK reports whether s leaves the service usable.
func (s State) OK() bool {
	return s == Started || s == Skipped
}
