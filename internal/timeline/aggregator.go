// Package timeline derives grouped, filterable feed views from a flat
// activity log. Everything here is pure: callers own the input slice and
// nothing is mutated.
package timeline

import (
	"slices"
	"strings"
	"time"

	"github.com/quayside/reach/internal/domain"
)

// FilterAll matches every activity type.
const FilterAll = "all"

// Group maps one local calendar day to the activities that occurred on it,
// in the relative order the input supplied them.
type Group struct {
	Date       time.Time
	Activities []domain.Activity
}

// Filter keeps activities whose type starts with the given prefix. An
// empty filter or FilterAll keeps everything.
func Filter(activities []domain.Activity, typeFilter string) []domain.Activity {
	typeFilter = strings.TrimSpace(strings.ToLower(typeFilter))
	if typeFilter == "" || typeFilter == FilterAll {
		return append([]domain.Activity(nil), activities...)
	}
	out := make([]domain.Activity, 0, len(activities))
	for _, activity := range activities {
		if strings.HasPrefix(string(activity.Type), typeFilter) {
			out = append(out, activity)
		}
	}
	return out
}

// MatchingTypes returns the activity types a prefix filter would keep.
func MatchingTypes(typeFilter string) []domain.ActivityType {
	typeFilter = strings.TrimSpace(strings.ToLower(typeFilter))
	all := domain.ActivityTypes()
	if typeFilter == "" || typeFilter == FilterAll {
		return all
	}
	out := make([]domain.ActivityType, 0, len(all))
	for _, kind := range all {
		if strings.HasPrefix(string(kind), typeFilter) {
			out = append(out, kind)
		}
	}
	return out
}

// GroupByDay partitions activities by local calendar date. Within each
// bucket the input's relative order is preserved; the buckets themselves
// are ordered most recent day first. Group order holds even when the input
// is not sorted by timestamp, because the day keys are sorted explicitly
// rather than trusting input order.
func GroupByDay(activities []domain.Activity, loc *time.Location) []Group {
	if loc == nil {
		loc = time.Local
	}

	byDay := map[time.Time][]domain.Activity{}
	days := make([]time.Time, 0)
	for _, activity := range activities {
		local := activity.CreatedAt.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		if _, ok := byDay[day]; !ok {
			days = append(days, day)
		}
		byDay[day] = append(byDay[day], activity)
	}

	slices.SortFunc(days, func(a, b time.Time) int {
		return b.Compare(a)
	})

	out := make([]Group, 0, len(days))
	for _, day := range days {
		out = append(out, Group{Date: day, Activities: byDay[day]})
	}
	return out
}

// CountsByCategory reduces the unfiltered activity sequence to the fixed
// stats taxonomy in a single pass.
func CountsByCategory(activities []domain.Activity) domain.ActivityCounts {
	counts := domain.ActivityCounts{Total: len(activities)}
	for _, activity := range activities {
		switch activity.Type {
		case domain.ActivityMessageSent:
			counts.MessagesSent++
		case domain.ActivityMessageResponded:
			counts.Responses++
		case domain.ActivityInterviewScheduled:
			counts.Interviews++
		}
	}
	return counts
}
