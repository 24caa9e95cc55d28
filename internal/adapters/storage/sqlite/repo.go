// Package sqlite persists pipeline items and the activity ledger for the
// reference server. It is the server-side system of record the gateway
// adapters talk to.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quayside/reach/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// defaultActivityLimit bounds activity listings when callers pass no limit.
const defaultActivityLimit = 50

// Repository represents repository data used by this package.
type Repository struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// Open opens or creates the sqlite store at path and runs migrations.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a shared in-memory store, for tests.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	repo := &Repository{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS pipeline_items (
			id TEXT PRIMARY KEY,
			contact_id TEXT NOT NULL,
			contact_name TEXT NOT NULL,
			company TEXT NOT NULL DEFAULT '',
			stage TEXT NOT NULL,
			position INTEGER NOT NULL,
			stage_entered_at TEXT NOT NULL,
			last_activity_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			contact_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_items_stage_position ON pipeline_items(stage, position);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_created_at ON activities(created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(type);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateItem inserts one pipeline item at the tail of its stage and records
// the matching activity.
func (r *Repository) CreateItem(ctx context.Context, item domain.PipelineItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var position int
	row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_items WHERE stage = ?`, string(item.Stage))
	if err = row.Scan(&position); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pipeline_items(id, contact_id, contact_name, company, stage, position, stage_entered_at, last_activity_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID,
		item.ContactID,
		item.ContactName,
		item.Company,
		string(item.Stage),
		position,
		ts(item.StageEnteredAt),
		nullableTS(item.LastActivityAt),
		ts(item.CreatedAt),
		ts(item.UpdatedAt),
	)
	if err != nil {
		return err
	}

	err = insertActivity(ctx, tx, domain.Activity{
		ID:          r.newID(),
		Type:        domain.ActivityRecruiterAdded,
		Description: fmt.Sprintf("%s added to the pipeline", item.ContactName),
		ContactID:   item.ContactID,
		CreatedAt:   item.CreatedAt,
	})
	if err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// GetItem returns one pipeline item.
func (r *Repository) GetItem(ctx context.Context, id string) (domain.PipelineItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, contact_id, contact_name, company, stage, stage_entered_at, last_activity_at, created_at, updated_at
		FROM pipeline_items
		WHERE id = ?
	`, id)
	return scanItem(row)
}

// ListPipelineItems lists every item ordered by stage and board position.
func (r *Repository) ListPipelineItems(ctx context.Context) ([]domain.PipelineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, contact_id, contact_name, company, stage, stage_entered_at, last_activity_at, created_at, updated_at
		FROM pipeline_items
		ORDER BY stage ASC, position ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.PipelineItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// MoveItem moves one item to a stage position and appends the stage_changed
// ledger entry. Moving an item to its current stage is an idempotent no-op
// so a client retry after a lost response never double-applies.
func (r *Repository) MoveItem(ctx context.Context, itemID string, stage domain.Stage, position int) (domain.PipelineItem, error) {
	if !stage.Valid() {
		return domain.PipelineItem{}, domain.ErrInvalidStage
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.PipelineItem{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		item   domain.PipelineItem
		oldPos int
	)
	row := tx.QueryRowContext(ctx, `
		SELECT id, contact_id, contact_name, company, stage, position, stage_entered_at, last_activity_at, created_at, updated_at
		FROM pipeline_items
		WHERE id = ?
	`, itemID)
	item, oldPos, err = scanItemWithPosition(row)
	if err != nil {
		return domain.PipelineItem{}, err
	}

	if item.Stage == stage {
		err = tx.Commit()
		return item, err
	}

	from := item.Stage
	now := r.now()
	if err = item.EnterStage(stage, now); err != nil {
		return domain.PipelineItem{}, err
	}

	// Close the gap in the origin stage, then open a slot in the target.
	_, err = tx.ExecContext(ctx, `
		UPDATE pipeline_items SET position = position - 1
		WHERE stage = ? AND position > ?
	`, string(from), oldPos)
	if err != nil {
		return domain.PipelineItem{}, err
	}

	var targetLen int
	row = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_items WHERE stage = ?`, string(stage))
	if err = row.Scan(&targetLen); err != nil {
		return domain.PipelineItem{}, err
	}
	if position < 0 || position > targetLen {
		position = targetLen
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE pipeline_items SET position = position + 1
		WHERE stage = ? AND position >= ?
	`, string(stage), position)
	if err != nil {
		return domain.PipelineItem{}, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE pipeline_items
		SET stage = ?, position = ?, stage_entered_at = ?, updated_at = ?
		WHERE id = ?
	`, string(item.Stage), position, ts(item.StageEnteredAt), ts(item.UpdatedAt), item.ID)
	if err != nil {
		return domain.PipelineItem{}, err
	}
	if err = translateNoRows(res); err != nil {
		return domain.PipelineItem{}, err
	}

	var activity domain.Activity
	activity, err = domain.NewStageChange(r.newID(), item, from, item.Stage, now)
	if err != nil {
		return domain.PipelineItem{}, err
	}
	if err = insertActivity(ctx, tx, activity); err != nil {
		return domain.PipelineItem{}, err
	}

	err = tx.Commit()
	return item, err
}

// LogActivity appends one activity to the ledger.
func (r *Repository) LogActivity(ctx context.Context, activity domain.Activity) error {
	if !activity.Type.Valid() {
		return domain.ErrInvalidActivityType
	}
	return insertActivity(ctx, r.db, activity)
}

// ListActivities lists the newest activities, optionally filtered by a
// type prefix.
func (r *Repository) ListActivities(ctx context.Context, limit int, typeFilter string) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}

	query := `
		SELECT id, type, description, contact_id, created_at
		FROM activities
	`
	args := []any{}
	typeFilter = strings.TrimSpace(typeFilter)
	if typeFilter != "" {
		query += ` WHERE type LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(typeFilter)+"%")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Activity{}
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, activity)
	}
	return out, rows.Err()
}

// ActivityCounts returns the all-time stats rollup in one scan.
func (r *Repository) ActivityCounts(ctx context.Context) (domain.ActivityCounts, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN type = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = ? THEN 1 ELSE 0 END), 0)
		FROM activities
	`,
		string(domain.ActivityMessageSent),
		string(domain.ActivityMessageResponded),
		string(domain.ActivityInterviewScheduled),
	)

	var counts domain.ActivityCounts
	if err := row.Scan(&counts.Total, &counts.MessagesSent, &counts.Responses, &counts.Interviews); err != nil {
		return domain.ActivityCounts{}, err
	}
	return counts, nil
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// insertActivity inserts one activity ledger record.
func insertActivity(ctx context.Context, execer execerContext, activity domain.Activity) error {
	_, err := execer.ExecContext(ctx, `
		INSERT INTO activities(id, type, description, contact_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		activity.ID,
		string(activity.Type),
		activity.Description,
		activity.ContactID,
		ts(activity.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanItem handles scan item.
func scanItem(s scanner) (domain.PipelineItem, error) {
	var (
		item            domain.PipelineItem
		stage           string
		enteredRaw      string
		lastActivityRaw sql.NullString
		createdRaw      string
		updatedRaw      string
	)
	if err := s.Scan(
		&item.ID,
		&item.ContactID,
		&item.ContactName,
		&item.Company,
		&stage,
		&enteredRaw,
		&lastActivityRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PipelineItem{}, domain.ErrItemNotFound
		}
		return domain.PipelineItem{}, err
	}
	item.Stage = domain.Stage(stage)
	item.StageEnteredAt = parseTS(enteredRaw)
	item.LastActivityAt = parseNullTS(lastActivityRaw)
	item.CreatedAt = parseTS(createdRaw)
	item.UpdatedAt = parseTS(updatedRaw)
	return item, nil
}

// scanItemWithPosition scans a row that also selects the board position.
func scanItemWithPosition(s scanner) (domain.PipelineItem, int, error) {
	var (
		item            domain.PipelineItem
		stage           string
		position        int
		enteredRaw      string
		lastActivityRaw sql.NullString
		createdRaw      string
		updatedRaw      string
	)
	if err := s.Scan(
		&item.ID,
		&item.ContactID,
		&item.ContactName,
		&item.Company,
		&stage,
		&position,
		&enteredRaw,
		&lastActivityRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PipelineItem{}, 0, domain.ErrItemNotFound
		}
		return domain.PipelineItem{}, 0, err
	}
	item.Stage = domain.Stage(stage)
	item.StageEnteredAt = parseTS(enteredRaw)
	item.LastActivityAt = parseNullTS(lastActivityRaw)
	item.CreatedAt = parseTS(createdRaw)
	item.UpdatedAt = parseTS(updatedRaw)
	return item, position, nil
}

// scanActivity handles scan activity.
func scanActivity(s scanner) (domain.Activity, error) {
	var (
		activity   domain.Activity
		kind       string
		createdRaw string
	)
	if err := s.Scan(&activity.ID, &kind, &activity.Description, &activity.ContactID, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Activity{}, sql.ErrNoRows
		}
		return domain.Activity{}, err
	}
	activity.Type = domain.ActivityType(kind)
	activity.CreatedAt = parseTS(createdRaw)
	return activity, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// escapeLike escapes LIKE metacharacters in a user-supplied prefix.
func escapeLike(v string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(v)
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	parsed := parseTS(v.String)
	return &parsed
}
