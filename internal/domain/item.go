package domain

import (
	"strings"
	"time"
)

// PipelineItem represents one tracked contact's position in the funnel.
// The stage-entry timestamp backs the derived days-in-stage counter and
// resets whenever the stage changes.
type PipelineItem struct {
	ID             string
	ContactID      string
	ContactName    string
	Company        string
	Stage          Stage
	StageEnteredAt time.Time
	LastActivityAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PipelineItemInput holds input values for new pipeline items.
type PipelineItemInput struct {
	ID          string
	ContactID   string
	ContactName string
	Company     string
	Stage       Stage
}

// NewPipelineItem constructs a new value for this package.
func NewPipelineItem(in PipelineItemInput, now time.Time) (PipelineItem, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ContactID = strings.TrimSpace(in.ContactID)
	in.ContactName = strings.TrimSpace(in.ContactName)
	in.Company = strings.TrimSpace(in.Company)

	if in.ID == "" {
		return PipelineItem{}, ErrInvalidID
	}
	if in.ContactName == "" {
		return PipelineItem{}, ErrInvalidContactName
	}
	if in.Stage == "" {
		in.Stage = StageNew
	}
	if !in.Stage.Valid() {
		return PipelineItem{}, ErrInvalidStage
	}

	ts := now.UTC()
	return PipelineItem{
		ID:             in.ID,
		ContactID:      in.ContactID,
		ContactName:    in.ContactName,
		Company:        in.Company,
		Stage:          in.Stage,
		StageEnteredAt: ts,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}, nil
}

// EnterStage moves the item to a stage. Re-entering the current stage is a
// no-op so a retried move never resets the days-in-stage counter.
func (i *PipelineItem) EnterStage(stage Stage, now time.Time) error {
	if !stage.Valid() {
		return ErrInvalidStage
	}
	if stage == i.Stage {
		return nil
	}
	ts := now.UTC()
	i.Stage = stage
	i.StageEnteredAt = ts
	i.UpdatedAt = ts
	return nil
}

// TouchActivity records the most recent activity timestamp for the contact.
func (i *PipelineItem) TouchActivity(now time.Time) {
	ts := now.UTC()
	i.LastActivityAt = &ts
	i.UpdatedAt = ts
}

// DaysInStage returns whole days since the item entered its current stage.
func (i PipelineItem) DaysInStage(now time.Time) int {
	if i.StageEnteredAt.IsZero() {
		return 0
	}
	days := int(now.UTC().Sub(i.StageEnteredAt).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Urgent reports whether the item has sat in a non-terminal stage for at
// least urgentAfterDays days.
func (i PipelineItem) Urgent(now time.Time, urgentAfterDays int) bool {
	if urgentAfterDays <= 0 {
		return false
	}
	if i.Stage.Terminal() {
		return false
	}
	return i.DaysInStage(now) >= urgentAfterDays
}
