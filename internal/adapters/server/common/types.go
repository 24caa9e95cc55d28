// Package common provides transport-agnostic server contracts shared by the
// HTTP and MCP adapters, plus the wire types the HTTP gateway client decodes.
package common

import (
	"context"
	"time"

	"github.com/quayside/reach/internal/domain"
)

// PipelineItem is the transport representation of one pipeline item.
type PipelineItem struct {
	ID             string     `json:"id"`
	ContactID      string     `json:"contact_id"`
	ContactName    string     `json:"contact_name"`
	Company        string     `json:"company,omitempty"`
	Stage          string     `json:"stage"`
	StageEnteredAt time.Time  `json:"stage_entered_at"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Activity is the transport representation of one activity record.
type Activity struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	ContactID   string    `json:"contact_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActivityCounts is the transport representation of the stats rollup.
type ActivityCounts struct {
	Total        int `json:"total"`
	MessagesSent int `json:"messages_sent"`
	Responses    int `json:"responses"`
	Interviews   int `json:"interviews"`
}

// MoveItemRequest captures input for one stage move.
type MoveItemRequest struct {
	Stage    string `json:"stage"`
	Position int    `json:"position"`
}

// PipelineItemsEnvelope wraps the pipeline listing response.
type PipelineItemsEnvelope struct {
	Items []PipelineItem `json:"items"`
}

// ActivitiesEnvelope wraps the activity listing response.
type ActivitiesEnvelope struct {
	Activities []Activity `json:"activities"`
}

// ItemFromDomain maps one domain item onto its transport shape.
func ItemFromDomain(item domain.PipelineItem) PipelineItem {
	return PipelineItem{
		ID:             item.ID,
		ContactID:      item.ContactID,
		ContactName:    item.ContactName,
		Company:        item.Company,
		Stage:          string(item.Stage),
		StageEnteredAt: item.StageEnteredAt,
		LastActivityAt: item.LastActivityAt,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}

// ItemsFromDomain maps a domain item slice onto transport shapes.
func ItemsFromDomain(items []domain.PipelineItem) []PipelineItem {
	out := make([]PipelineItem, 0, len(items))
	for _, item := range items {
		out = append(out, ItemFromDomain(item))
	}
	return out
}

// ToDomain maps one transport item back onto its domain shape.
func (p PipelineItem) ToDomain() (domain.PipelineItem, error) {
	stage, err := domain.ParseStage(p.Stage)
	if err != nil {
		return domain.PipelineItem{}, err
	}
	return domain.PipelineItem{
		ID:             p.ID,
		ContactID:      p.ContactID,
		ContactName:    p.ContactName,
		Company:        p.Company,
		Stage:          stage,
		StageEnteredAt: p.StageEnteredAt,
		LastActivityAt: p.LastActivityAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}, nil
}

// ActivityFromDomain maps one domain activity onto its transport shape.
func ActivityFromDomain(activity domain.Activity) Activity {
	return Activity{
		ID:          activity.ID,
		Type:        string(activity.Type),
		Description: activity.Description,
		ContactID:   activity.ContactID,
		CreatedAt:   activity.CreatedAt,
	}
}

// ActivitiesFromDomain maps a domain activity slice onto transport shapes.
func ActivitiesFromDomain(activities []domain.Activity) []Activity {
	out := make([]Activity, 0, len(activities))
	for _, activity := range activities {
		out = append(out, ActivityFromDomain(activity))
	}
	return out
}

// ToDomain maps one transport activity back onto its domain shape.
func (a Activity) ToDomain() (domain.Activity, error) {
	activity := domain.Activity{
		ID:          a.ID,
		Type:        domain.ActivityType(a.Type),
		Description: a.Description,
		ContactID:   a.ContactID,
		CreatedAt:   a.CreatedAt,
	}
	if !activity.Type.Valid() {
		return domain.Activity{}, domain.ErrInvalidActivityType
	}
	return activity, nil
}

// CountsFromDomain maps the domain rollup onto its transport shape.
func CountsFromDomain(counts domain.ActivityCounts) ActivityCounts {
	return ActivityCounts{
		Total:        counts.Total,
		MessagesSent: counts.MessagesSent,
		Responses:    counts.Responses,
		Interviews:   counts.Interviews,
	}
}

// ToDomain maps the transport rollup back onto its domain shape.
func (c ActivityCounts) ToDomain() domain.ActivityCounts {
	return domain.ActivityCounts{
		Total:        c.Total,
		MessagesSent: c.MessagesSent,
		Responses:    c.Responses,
		Interviews:   c.Interviews,
	}
}

// PipelineService captures the server-side pipeline operations exposed by
// transport adapters and implemented by the storage layer.
type PipelineService interface {
	ListPipelineItems(ctx context.Context) ([]domain.PipelineItem, error)
	MoveItem(ctx context.Context, itemID string, stage domain.Stage, position int) (domain.PipelineItem, error)
	ListActivities(ctx context.Context, limit int, typeFilter string) ([]domain.Activity, error)
	ActivityCounts(ctx context.Context) (domain.ActivityCounts, error)
}
