package domain

// Label is a categorical tag attached to a room membership.
type Label string

const (
	LabelGod    Label = "god"
	LabelSister Label = "sister"
	LabelMale   Label = "male"
	LabelBoss   Label = "boss"
)

// LabelVocabulary lists every accepted label, in display order.
var LabelVocabulary = []Label{LabelGod, LabelSister, LabelMale, LabelBoss}

func (l Label) Valid() bool {
	switch l {
	case LabelGod, LabelSister, LabelMale, LabelBoss:
		return true
	}
	return false
}

// LabelRule controls how the solver treats bearers of a label.
type LabelRule string

const (
	// RuleNone ignores the label when dividing.
	RuleNone LabelRule = "none"
	// RuleEven spreads bearers evenly across both teams.
	RuleEven LabelRule = "even"
	// RuleSameTeam forces all bearers onto one team.
	RuleSameTeam LabelRule = "same_team"
)

func (r LabelRule) Valid() bool {
	switch r {
	case RuleNone, RuleEven, RuleSameTeam:
		return true
	}
	return false
}

// LabelRules maps labels to their division rule. Absent labels are RuleNone.
type LabelRules map[Label]LabelRule

// RuleFor returns the rule for a label, defaulting to RuleNone.
func (lr LabelRules) RuleFor(l Label) LabelRule {
	if r, ok := lr[l]; ok {
		return r
	}
	return RuleNone
}

// SameTeamLabel returns the label bound to RuleSameTeam, if any.
func (lr LabelRules) SameTeamLabel() (Label, bool) {
	for l, r := range lr {
		if r == RuleSameTeam {
			return l, true
		}
	}
	return "", false
}

// Validate rejects unknown labels, unknown rules, and more than one
// same_team binding.
func (lr LabelRules) Validate() error {
	sameTeam := 0
	for l, r := range lr {
		if !l.Valid() {
			return ErrInvalidLabel
		}
		if !r.Valid() {
			return ErrInvalidRule
		}
		if r == RuleSameTeam {
			sameTeam++
		}
	}
	if sameTeam > 1 {
		return ErrConflictingRules
	}
	return nil
}

// ValidateLabels rejects any label outside the vocabulary.
func ValidateLabels(labels []Label) error {
	for _, l := range labels {
		if !l.Valid() {
			return ErrInvalidLabel
		}
	}
	return nil
}
