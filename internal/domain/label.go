package domain

import (
	"fmt"
	"strings"
)

// Label is the closed set of compliance results.
type Label string

const (
	LabelCompliant          Label = "C"
	LabelPartiallyCompliant Label = "PC"
	LabelWeakEvidence       Label = "WE"
	LabelNonCompliant       Label = "NC"
)

// Score bounds and band floors.
const (
	MinScore = 0
	MaxScore = 100

	bandCompliant          = 90
	bandPartiallyCompliant = 70
	bandWeakEvidence       = 50
)

// Labels lists every label, strongest first.
var Labels = []Label{LabelCompliant, LabelPartiallyCompliant, LabelWeakEvidence, LabelNonCompliant}

// FromScore derives the label for a score. It is the only place bands are
// defined: [90,100] C, [70,89] PC, [50,69] WE, [0,49] NC.
func FromScore(score int) Label {
	score = ClampScore(score)
	switch {
	case score >= bandCompliant:
		return LabelCompliant
	case score >= bandPartiallyCompliant:
		return LabelPartiallyCompliant
	case score >= bandWeakEvidence:
		return LabelWeakEvidence
	default:
		return LabelNonCompliant
	}
}

// ClampScore bounds a score to [0,100].
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Valid reports whether l is one of the four labels.
func (l Label) Valid() bool {
	switch l {
	case LabelCompliant, LabelPartiallyCompliant, LabelWeakEvidence, LabelNonCompliant:
		return true
	}
	return false
}

// Describe returns the human readable rubric line for l.
func (l Label) Describe() string {
	switch l {
	case LabelCompliant:
		return "compliant, strong match and fully compliant evidence"
	case LabelPartiallyCompliant:
		return "partially compliant, acceptable but could be improved"
	case LabelWeakEvidence:
		return "weak evidence, insufficient but relevant"
	case LabelNonCompliant:
		return "non-compliant, unrelated or missing"
	}
	return "unknown"
}

// Range returns the inclusive score band of l. Unknown labels get 0, -1.
func (l Label) Range() (lo, hi int) {
	switch l {
	case LabelCompliant:
		return bandCompliant, MaxScore
	case LabelPartiallyCompliant:
		return bandPartiallyCompliant, bandCompliant - 1
	case LabelWeakEvidence:
		return bandWeakEvidence, bandPartiallyCompliant - 1
	case LabelNonCompliant:
		return MinScore, bandWeakEvidence - 1
	}
	return 0, -1
}

// Strings returns the wire form of every label, strongest first.
func Strings() []string {
	out := make([]string, len(Labels))
	for i, l := range Labels {
		out[i] = string(l)
	}
	return out
}

// ParseLabel parses a stored or model-produced label.
func ParseLabel(s string) (Label, error) {
	l := Label(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("%w: unknown compliance result %q", ErrInvalidArgument, s)
	}
	return l, nil
}
