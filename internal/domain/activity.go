package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ActivityType tags one entry of the activity feed vocabulary.
type ActivityType string

// ActivityType values used by the activity feed.
const (
	ActivityMessageSent        ActivityType = "message_sent"
	ActivityMessageOpened      ActivityType = "message_opened"
	ActivityMessageResponded   ActivityType = "message_responded"
	ActivityResumeUploaded     ActivityType = "resume_uploaded"
	ActivityResumeScored       ActivityType = "resume_scored"
	ActivityRecruiterAdded     ActivityType = "recruiter_added"
	ActivityRecruiterContacted ActivityType = "recruiter_contacted"
	ActivityStageChanged       ActivityType = "stage_changed"
	ActivityInterviewScheduled ActivityType = "interview_scheduled"
	ActivityNoteAdded          ActivityType = "note_added"
)

// validActivityTypes stores the closed activity vocabulary.
var validActivityTypes = []ActivityType{
	ActivityMessageSent,
	ActivityMessageOpened,
	ActivityMessageResponded,
	ActivityResumeUploaded,
	ActivityResumeScored,
	ActivityRecruiterAdded,
	ActivityRecruiterContacted,
	ActivityStageChanged,
	ActivityInterviewScheduled,
	ActivityNoteAdded,
}

// ActivityTypes returns the closed activity vocabulary.
func ActivityTypes() []ActivityType {
	return append([]ActivityType(nil), validActivityTypes...)
}

// Valid reports whether t belongs to the activity vocabulary.
func (t ActivityType) Valid() bool {
	return slices.Contains(validActivityTypes, t)
}

// Activity is one immutable timestamped domain event. Activities are
// appended by external actions and fetched read-only; this subsystem never
// mutates or deletes them.
type Activity struct {
	ID          string
	Type        ActivityType
	Description string
	ContactID   string
	CreatedAt   time.Time
}

// ActivityInput holds input values for new activities.
type ActivityInput struct {
	ID          string
	Type        ActivityType
	Description string
	ContactID   string
}

// NewActivity constructs a new value for this package.
func NewActivity(in ActivityInput, now time.Time) (Activity, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ContactID = strings.TrimSpace(in.ContactID)
	in.Description = strings.TrimSpace(in.Description)

	if in.ID == "" {
		return Activity{}, ErrInvalidID
	}
	if !in.Type.Valid() {
		return Activity{}, ErrInvalidActivityType
	}

	return Activity{
		ID:          in.ID,
		Type:        in.Type,
		Description: in.Description,
		ContactID:   in.ContactID,
		CreatedAt:   now.UTC(),
	}, nil
}

// NewStageChange synthesizes the stage_changed activity echoed into the
// feed when a pipeline item moves.
func NewStageChange(id string, item PipelineItem, from, to Stage, now time.Time) (Activity, error) {
	return NewActivity(ActivityInput{
		ID:          id,
		Type:        ActivityStageChanged,
		Description: fmt.Sprintf("%s moved from %s to %s", item.ContactName, from.Label(), to.Label()),
		ContactID:   item.ContactID,
	}, now)
}

// ActivityCounts summarizes the feed by a small fixed taxonomy.
type ActivityCounts struct {
	Total        int
	MessagesSent int
	Responses    int
	Interviews   int
}
