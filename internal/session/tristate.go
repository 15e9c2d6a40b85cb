package session

// Tristate is a boolean that may not be known yet.
type Tristate int

const (
	Unknown Tristate = iota
	True
	False
)

// FromBool converts a known boolean.
func FromBool(b bool) Tristate {
	if b {
		return True
	}
	return False
}

// Known reports whether the value has been determined.
func (t Tristate) Known() bool { return t != Unknown }

// IsTrue reports whether the value is known and true.
func (t Tristate) IsTrue() bool { return t == True }

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}
