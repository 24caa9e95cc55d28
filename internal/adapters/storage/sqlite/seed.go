package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/quayside/reach/internal/domain"
)

// seedContact describes one demo pipeline entry.
type seedContact struct {
	name    string
	company string
	stage   domain.Stage
	ageDays int
}

// seedActivity describes one demo ledger entry relative to now.
type seedActivity struct {
	contact     int
	kind        domain.ActivityType
	description string
	ageHours    int
}

var seedContacts = []seedContact{
	{name: "Ada Lovelace", company: "Analytical Engines", stage: domain.StageNew, ageDays: 0},
	{name: "Grace Hopper", company: "Eckert-Mauchly", stage: domain.StageContacted, ageDays: 4},
	{name: "Alan Kay", company: "Viewpoints", stage: domain.StageContacted, ageDays: 9},
	{name: "Barbara Liskov", company: "MIT CSAIL", stage: domain.StageResponded, ageDays: 2},
	{name: "Ken Thompson", company: "Bell Labs", stage: domain.StageInterviewing, ageDays: 1},
	{name: "Frances Allen", company: "IBM Research", stage: domain.StageOffer, ageDays: 3},
	{name: "Dennis Ritchie", company: "Bell Labs", stage: domain.StageAccepted, ageDays: 14},
}

var seedActivities = []seedActivity{
	{contact: 1, kind: domain.ActivityMessageSent, description: "Intro message sent to Grace Hopper", ageHours: 96},
	{contact: 2, kind: domain.ActivityMessageSent, description: "Intro message sent to Alan Kay", ageHours: 216},
	{contact: 2, kind: domain.ActivityMessageOpened, description: "Alan Kay opened your message", ageHours: 210},
	{contact: 3, kind: domain.ActivityMessageResponded, description: "Barbara Liskov replied to your message", ageHours: 40},
	{contact: 3, kind: domain.ActivityResumeUploaded, description: "Resume received from Barbara Liskov", ageHours: 37},
	{contact: 3, kind: domain.ActivityResumeScored, description: "Resume scored 92/100", ageHours: 36},
	{contact: 4, kind: domain.ActivityInterviewScheduled, description: "On-site interview scheduled with Ken Thompson", ageHours: 20},
	{contact: 5, kind: domain.ActivityNoteAdded, description: "Frances Allen is weighing a competing offer", ageHours: 12},
	{contact: 0, kind: domain.ActivityRecruiterContacted, description: "Ada Lovelace reached out via referral", ageHours: 3},
}

// Seed populates an empty database with demo contacts and activities. A
// database that already holds pipeline items is left untouched.
func (r *Repository) Seed(ctx context.Context) error {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_items`)
	var existing int
	if err := row.Scan(&existing); err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	now := r.now().UTC()
	contactIDs := make([]string, len(seedContacts))
	for i, contact := range seedContacts {
		contactIDs[i] = r.newID()
		created := now.AddDate(0, 0, -contact.ageDays)
		item, err := domain.NewPipelineItem(domain.PipelineItemInput{
			ID:          r.newID(),
			ContactID:   contactIDs[i],
			ContactName: contact.name,
			Company:     contact.company,
			Stage:       contact.stage,
		}, created)
		if err != nil {
			return fmt.Errorf("seed contact %q: %w", contact.name, err)
		}
		if err := r.CreateItem(ctx, item); err != nil {
			return fmt.Errorf("seed contact %q: %w", contact.name, err)
		}
	}

	for _, entry := range seedActivities {
		activity, err := domain.NewActivity(domain.ActivityInput{
			ID:          r.newID(),
			Type:        entry.kind,
			Description: entry.description,
			ContactID:   contactIDs[entry.contact],
		}, now.Add(-time.Duration(entry.ageHours)*time.Hour))
		if err != nil {
			return fmt.Errorf("seed activity %q: %w", entry.description, err)
		}
		if err := r.LogActivity(ctx, activity); err != nil {
			return fmt.Errorf("seed activity %q: %w", entry.description, err)
		}
	}
	return nil
}
