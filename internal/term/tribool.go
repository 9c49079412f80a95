package term

// Tribool is the three-valued result of matching and inference.
type Tribool int8

const (
	Indeterminate Tribool = iota
	True
	False
)

// FromBool lifts a Go bool.
func FromBool(b bool) Tribool {
	if b {
		return True
	}
	return False
}

// Not negates a decisive value and keeps Indeterminate.
func (t Tribool) Not() Tribool {
	switch t {
	case True:
		return False
	case False:
		return True
	}
	return Indeterminate
}

func (t Tribool) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	}
	return "indeterminate"
}

// ParseTribool accepts "true", "false" and "indeterminate" (or "unknown").
func ParseTribool(s string) (Tribool, bool) {
	switch s {
	case "true":
		return True, true
	case "false":
		return False, true
	case "indeterminate", "unknown":
		return Indeterminate, true
	}
	return Indeterminate, false
}
