package types

// Decision is the action recommended for a piece of content.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionFlag    Decision = "FLAG"
	DecisionReject  Decision = "REJECT"
)

// Level returns a numeric severity for comparison. Higher values are stricter.
func (d Decision) Level() int {
	switch d {
	case DecisionApprove:
		return 0
	case DecisionFlag:
		return 1
	case DecisionReject:
		return 2
	default:
		return -1
	}
}

// AtLeast reports whether d is as strict as other.
func (d Decision) AtLeast(other Decision) bool {
	return d.Level() >= other.Level()
}

func ParseDecision(s string) (Decision, bool) {
	switch Decision(s) {
	case DecisionApprove, DecisionFlag, DecisionReject:
		return Decision(s), true
	default:
		return "", false
	}
}

// Source identifies which signal produced a result.
type Source string

const (
	SourceLexical       Source = "lexical"
	SourceTextModel     Source = "text-model"
	SourceVisionModel   Source = "vision-model"
	SourceManagedVision Source = "managed-vision"
	SourceFailsafe      Source = "failsafe"
)
