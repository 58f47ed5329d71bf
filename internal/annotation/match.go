package annotation

// MatchState is the three-valued outcome of a single-valued query
type MatchState int

const (
	Absent MatchState = iota
	Present
	Ambiguous
)

// String returns the state name
func (s MatchState) String() string {
	switch s {
	case Present:
		return "present"
	case Ambiguous:
		return "ambiguous"
	default:
		return "absent"
	}
}

// Match is the result of Store.Resolve. Declaration and Metadata are set
// only when State is Present; Candidates only when State is Ambiguous.
type Match struct {
	State       MatchState
	Declaration Declaration
	Metadata    any
	Candidates  []Declaration
}
