package cqrs

// Outcome tags the result of an account command. Refusals are normal results,
// not errors; errors are reserved for infrastructure failures.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeInvalidCredentials
	OutcomeOutOfTokens
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeInvalidCredentials:
		return "invalid_credentials"
	case OutcomeOutOfTokens:
		return "out_of_tokens"
	default:
		return "unknown"
	}
}

// Result is returned by every account command. Sentence is only set by a
// successful retrieve.
type Result struct {
	Outcome  Outcome
	Sentence string
}
