package domain

import "strings"

// Stage identifies one step of the fixed recruiting funnel.
type Stage string

// Funnel stages in display order. Moves may target any stage, not just
// the adjacent one.
const (
	StageNew          Stage = "new"
	StageResearching  Stage = "researching"
	StageContacted    Stage = "contacted"
	StageResponded    Stage = "responded"
	StageInterviewing Stage = "interviewing"
	StageOffer        Stage = "offer"
	StageAccepted     Stage = "accepted"
	StageDeclined     Stage = "declined"
)

// funnelOrder stores the canonical stage ordering.
var funnelOrder = []Stage{
	StageNew,
	StageResearching,
	StageContacted,
	StageResponded,
	StageInterviewing,
	StageOffer,
	StageAccepted,
	StageDeclined,
}

// Stages returns the funnel stages in display order.
func Stages() []Stage {
	return append([]Stage(nil), funnelOrder...)
}

// ParseStage normalizes and validates a stage tag.
func ParseStage(raw string) (Stage, error) {
	stage := Stage(strings.TrimSpace(strings.ToLower(raw)))
	if !stage.Valid() {
		return "", ErrInvalidStage
	}
	return stage, nil
}

// Valid reports whether the stage belongs to the fixed funnel vocabulary.
func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// Index returns the stage's position in the funnel, or -1 when unknown.
func (s Stage) Index() int {
	for idx, stage := range funnelOrder {
		if stage == s {
			return idx
		}
	}
	return -1
}

// Terminal reports whether the stage ends the funnel.
func (s Stage) Terminal() bool {
	return s == StageAccepted || s == StageDeclined
}

// Label returns the stage's display label.
func (s Stage) Label() string {
	switch s {
	case StageNew:
		return "New"
	case StageResearching:
		return "Researching"
	case StageContacted:
		return "Contacted"
	case StageResponded:
		return "Responded"
	case StageInterviewing:
		return "Interviewing"
	case StageOffer:
		return "Offer"
	case StageAccepted:
		return "Accepted"
	case StageDeclined:
		return "Declined"
	default:
		return string(s)
	}
}
