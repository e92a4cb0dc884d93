package types

// UnknownLabel is the label reported when no gallery entry is close enough.
const UnknownLabel = "Unknown"

// IdentityClaim is a badge read forwarded by the reader controller.
// Both fields must be non-empty for the claim to be verifiable.
type IdentityClaim struct {
	ID   string `validate:"required"`
	Name string `validate:"required"`
}

// MatchResult is the closest gallery label for one face and its cosine similarity.
type MatchResult struct {
	Label      string
	Confidence float64
}

// OutcomeKind is the terminal state of a verification session.
type OutcomeKind int

const (
	OutcomeTimeout OutcomeKind = iota
	OutcomeUnknown
	OutcomeVerified
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeVerified:
		return "verified"
	case OutcomeUnknown:
		return "unknown"
	default:
		return "timeout"
	}
}

// Outcome is what a session resolves to. Name is only set when Verified.
type Outcome struct {
	Kind OutcomeKind
	Name string
}

// Verified reports whether the claim was confirmed.
func (o Outcome) Verified() bool {
	return o.Kind == OutcomeVerified
}

func Verified(name string) Outcome { return Outcome{Kind: OutcomeVerified, Name: name} }

func Unknown() Outcome { return Outcome{Kind: OutcomeUnknown} }

func Timeout() Outcome { return Outcome{Kind: OutcomeTimeout} }
