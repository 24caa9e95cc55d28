package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/quayside/reach/internal/domain"
	_ "modernc.org/sqlite"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "reach.db")
	repo, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	n := 0
	repo.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	repo.now = func() time.Time {
		return time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	}
	return repo
}

func createTestItem(t *testing.T, repo *Repository, id, name string, stage domain.Stage) domain.PipelineItem {
	t.Helper()
	item, err := domain.NewPipelineItem(domain.PipelineItemInput{
		ID:          id,
		ContactID:   "contact-" + id,
		ContactName: name,
		Stage:       stage,
	}, repo.now().Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("NewPipelineItem() error = %v", err)
	}
	if err := repo.CreateItem(context.Background(), item); err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}
	return item
}

func TestRepository_CreateAndListItems(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	createTestItem(t, repo, "r1", "Grace Hopper", domain.StageContacted)
	createTestItem(t, repo, "r2", "Ada Lovelace", domain.StageContacted)
	createTestItem(t, repo, "r3", "Ken Thompson", domain.StageNew)

	items, err := repo.ListPipelineItems(ctx)
	if err != nil {
		t.Fatalf("ListPipelineItems() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("item count = %d, want 3", len(items))
	}

	byStage := map[domain.Stage][]string{}
	for _, item := range items {
		byStage[item.Stage] = append(byStage[item.Stage], item.ID)
	}
	if got := byStage[domain.StageContacted]; len(got) != 2 || got[0] != "r1" || got[1] != "r2" {
		t.Fatalf("contacted order = %v, want [r1 r2]", got)
	}

	// Every insert records a recruiter_added activity.
	activities, err := repo.ListActivities(ctx, 0, "")
	if err != nil {
		t.Fatalf("ListActivities() error = %v", err)
	}
	if len(activities) != 3 {
		t.Fatalf("activity count = %d, want 3", len(activities))
	}
	for _, activity := range activities {
		if activity.Type != domain.ActivityRecruiterAdded {
			t.Fatalf("activity type = %q, want recruiter_added", activity.Type)
		}
	}
}

func TestRepository_MoveItemAppendsLedgerEntry(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	createTestItem(t, repo, "r1", "Grace Hopper", domain.StageContacted)

	moved, err := repo.MoveItem(ctx, "r1", domain.StageInterviewing, 0)
	if err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	if moved.Stage != domain.StageInterviewing {
		t.Fatalf("stage = %q, want interviewing", moved.Stage)
	}
	if !moved.StageEnteredAt.Equal(repo.now()) {
		t.Fatalf("stage entered at = %v, want %v", moved.StageEnteredAt, repo.now())
	}

	activities, err := repo.ListActivities(ctx, 0, string(domain.ActivityStageChanged))
	if err != nil {
		t.Fatalf("ListActivities() error = %v", err)
	}
	if len(activities) != 1 {
		t.Fatalf("stage_changed count = %d, want 1", len(activities))
	}
	want := "Grace Hopper moved from Contacted to Interviewing"
	if activities[0].Description != want {
		t.Fatalf("description = %q, want %q", activities[0].Description, want)
	}
}

func TestRepository_MoveItemSameStageIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	item := createTestItem(t, repo, "r1", "Grace Hopper", domain.StageContacted)

	moved, err := repo.MoveItem(ctx, "r1", domain.StageContacted, 0)
	if err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	if !moved.StageEnteredAt.Equal(item.StageEnteredAt) {
		t.Fatal("same-stage move must not reset the stage entry timestamp")
	}

	activities, err := repo.ListActivities(ctx, 0, string(domain.ActivityStageChanged))
	if err != nil {
		t.Fatalf("ListActivities() error = %v", err)
	}
	if len(activities) != 0 {
		t.Fatalf("stage_changed count = %d, want 0", len(activities))
	}
}

func TestRepository_MoveItemReordersPositions(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	createTestItem(t, repo, "r1", "Grace Hopper", domain.StageContacted)
	createTestItem(t, repo, "r2", "Ada Lovelace", domain.StageContacted)
	createTestItem(t, repo, "r3", "Ken Thompson", domain.StageInterviewing)

	// Insert at the head of the target stage.
	if _, err := repo.MoveItem(ctx, "r1", domain.StageInterviewing, 0); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}

	items, err := repo.ListPipelineItems(ctx)
	if err != nil {
		t.Fatalf("ListPipelineItems() error = %v", err)
	}
	var interviewing []string
	for _, item := range items {
		if item.Stage == domain.StageInterviewing {
			interviewing = append(interviewing, item.ID)
		}
	}
	if len(interviewing) != 2 || interviewing[0] != "r1" || interviewing[1] != "r3" {
		t.Fatalf("interviewing order = %v, want [r1 r3]", interviewing)
	}

	// Out-of-range positions clamp to the tail.
	if _, err := repo.MoveItem(ctx, "r2", domain.StageInterviewing, 99); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	items, err = repo.ListPipelineItems(ctx)
	if err != nil {
		t.Fatalf("ListPipelineItems() error = %v", err)
	}
	interviewing = interviewing[:0]
	for _, item := range items {
		if item.Stage == domain.StageInterviewing {
			interviewing = append(interviewing, item.ID)
		}
	}
	if len(interviewing) != 3 || interviewing[2] != "r2" {
		t.Fatalf("interviewing order = %v, want r2 last", interviewing)
	}
}

func TestRepository_MoveItemErrors(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	createTestItem(t, repo, "r1", "Grace Hopper", domain.StageContacted)

	if _, err := repo.MoveItem(ctx, "missing", domain.StageOffer, 0); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("MoveItem(missing) error = %v, want ErrItemNotFound", err)
	}
	if _, err := repo.MoveItem(ctx, "r1", domain.Stage("limbo"), 0); !errors.Is(err, domain.ErrInvalidStage) {
		t.Fatalf("MoveItem(limbo) error = %v, want ErrInvalidStage", err)
	}
}

func TestRepository_ListActivitiesFilterAndLimit(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	base := repo.now().Add(-time.Hour)
	kinds := []domain.ActivityType{
		domain.ActivityMessageSent,
		domain.ActivityMessageOpened,
		domain.ActivityMessageResponded,
		domain.ActivityNoteAdded,
	}
	for i, kind := range kinds {
		activity, err := domain.NewActivity(domain.ActivityInput{
			ID:   fmt.Sprintf("a%d", i),
			Type: kind,
		}, base.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("NewActivity() error = %v", err)
		}
		if err := repo.LogActivity(ctx, activity); err != nil {
			t.Fatalf("LogActivity() error = %v", err)
		}
	}

	// Newest first.
	all, err := repo.ListActivities(ctx, 0, "")
	if err != nil {
		t.Fatalf("ListActivities() error = %v", err)
	}
	if len(all) != 4 || all[0].ID != "a3" || all[3].ID != "a0" {
		t.Fatalf("activity order = %+v", all)
	}

	messages, err := repo.ListActivities(ctx, 0, "message")
	if err != nil {
		t.Fatalf("ListActivities(message) error = %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("message count = %d, want 3", len(messages))
	}

	limited, err := repo.ListActivities(ctx, 2, "")
	if err != nil {
		t.Fatalf("ListActivities(limit) error = %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "a3" {
		t.Fatalf("limited = %+v", limited)
	}
}

func TestRepository_ActivityCounts(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	entries := []domain.ActivityType{
		domain.ActivityMessageSent,
		domain.ActivityMessageSent,
		domain.ActivityMessageResponded,
		domain.ActivityInterviewScheduled,
		domain.ActivityNoteAdded,
	}
	for i, kind := range entries {
		activity, err := domain.NewActivity(domain.ActivityInput{
			ID:   fmt.Sprintf("a%d", i),
			Type: kind,
		}, repo.now())
		if err != nil {
			t.Fatalf("NewActivity() error = %v", err)
		}
		if err := repo.LogActivity(ctx, activity); err != nil {
			t.Fatalf("LogActivity() error = %v", err)
		}
	}

	counts, err := repo.ActivityCounts(ctx)
	if err != nil {
		t.Fatalf("ActivityCounts() error = %v", err)
	}
	want := domain.ActivityCounts{Total: 5, MessagesSent: 2, Responses: 1, Interviews: 1}
	if counts != want {
		t.Fatalf("counts = %+v, want %+v", counts, want)
	}
}

func TestRepository_SeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	if err := repo.Seed(ctx); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	items, err := repo.ListPipelineItems(ctx)
	if err != nil {
		t.Fatalf("ListPipelineItems() error = %v", err)
	}
	if len(items) == 0 {
		t.Fatal("seed produced no items")
	}
	first := len(items)

	if err := repo.Seed(ctx); err != nil {
		t.Fatalf("Seed() second run error = %v", err)
	}
	items, err = repo.ListPipelineItems(ctx)
	if err != nil {
		t.Fatalf("ListPipelineItems() error = %v", err)
	}
	if len(items) != first {
		t.Fatalf("second seed changed item count: %d -> %d", first, len(items))
	}
}
