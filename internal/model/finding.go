package model

// Impact is the severity classification of a violation.
type Impact string

const (
	ImpactMinor    Impact = "minor"
	ImpactModerate Impact = "moderate"
	ImpactSerious  Impact = "serious"
	ImpactCritical Impact = "critical"
)

// Weight returns the scoring weight for this impact. Unknown impacts weigh
// the same as minor.
func (i Impact) Weight() int {
	switch i {
	case ImpactCritical:
		return 4
	case ImpactSerious:
		return 3
	case ImpactModerate:
		return 2
	default:
		return 1
	}
}

// Findings is the normalized rule-engine output for one scan. Both slices are
// non-nil after normalization; absent engine output becomes an empty slice.
type Findings struct {
	Violations []Violation `json:"violations"`
	Passes     []Pass      `json:"passes"`
}

// Violation is a rule-engine finding indicating an accessibility rule was
// broken on one or more DOM nodes.
type Violation struct {
	RuleID      string `json:"rule_id"`
	Impact      Impact `json:"impact"`
	Description string `json:"description"`
	Nodes       []Node `json:"nodes"`
}

// Pass is a rule-engine finding indicating a rule was satisfied.
type Pass struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Nodes       []Node `json:"nodes"`
}

// Node is one affected DOM node.
type Node struct {
	// Target is the CSS selector path identifying the element.
	Target string `json:"target"`

	// HTML is a snippet of the element's markup.
	HTML string `json:"html,omitempty"`

	// EvidenceRef points at captured screenshot evidence, when any was taken.
	EvidenceRef string `json:"evidence_ref,omitempty"`
}
