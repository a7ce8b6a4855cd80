package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/robertguss/sprintboard-go/internal/domain"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// SQLStorage implements Storage on database/sql (SQLite or Postgres)
type SQLStorage struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open opens a storage backend for the given driver and DSN
func Open(driver, dsn string) (*SQLStorage, error) {
	switch driver {
	case DriverSQLite, "":
		return NewSQLiteStorage(dsn)
	case DriverPostgres, "postgres":
		return NewPostgresStorage(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database is private to its connection
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return newSQLStorage(db, DriverSQLite)
}

// NewPostgresStorage creates a Postgres storage instance through the pgx driver
func NewPostgresStorage(dsn string) (*SQLStorage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return newSQLStorage(db, DriverPostgres)
}

// NewInMemoryStorage creates an in-memory SQLite storage (for testing)
func NewInMemoryStorage() (*SQLStorage, error) {
	return NewSQLiteStorage(":memory:")
}

func newSQLStorage(db *sql.DB, driver string) (*SQLStorage, error) {
	s := &SQLStorage{db: db, driver: driver, now: time.Now}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate runs database migrations
func (s *SQLStorage) migrate() error {
	for _, stmt := range strings.Split(initialMigration, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// initialMigration only uses SQL understood by both SQLite and Postgres
const initialMigration = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sprints (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    state TEXT NOT NULL,
    position BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    sprint_id TEXT REFERENCES sprints(id) ON DELETE SET NULL,
    status TEXT NOT NULL,
    payload TEXT,
    position BIGINT NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS move_records (
    id TEXT PRIMARY KEY,
    move_id TEXT NOT NULL,
    project_id TEXT NOT NULL,
    item_id TEXT NOT NULL,
    from_ref TEXT NOT NULL,
    to_ref TEXT NOT NULL,
    outcome TEXT NOT NULL,
    reason TEXT,
    error TEXT,
    duration_ms BIGINT DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sprints_project_id ON sprints(project_id);
CREATE INDEX IF NOT EXISTS idx_items_project_id ON items(project_id);
CREATE INDEX IF NOT EXISTS idx_items_sprint_id ON items(sprint_id);
CREATE INDEX IF NOT EXISTS idx_move_records_project_id ON move_records(project_id);
CREATE INDEX IF NOT EXISTS idx_move_records_created_at ON move_records(created_at DESC)
`

// Close closes the database connection
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $n for Postgres
func (s *SQLStorage) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStorage) exec(ctx context.Context, q execer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStorage) queryRow(ctx context.Context, q execer, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *SQLStorage) query(ctx context.Context, q execer, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.rebind(query), args...)
}

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SaveBoard upserts a project and every sprint and item of its board
func (s *SQLStorage) SaveBoard(ctx context.Context, project Project, board domain.BoardState) error {
	if project.ID == "" {
		project.ID = board.ProjectID
	}
	if project.ID == "" {
		return fmt.Errorf("project id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	_, err = s.exec(ctx, tx, `
		INSERT INTO projects (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name
	`, project.ID, project.Name, now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	position := int64(0)
	for _, sprint := range board.Sprints {
		position++
		_, err = s.exec(ctx, tx, `
			INSERT INTO sprints (id, project_id, name, state, position) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name, state = excluded.state, position = excluded.position
		`, sprint.ID, project.ID, sprint.Name, string(sprint.State), position)
		if err != nil {
			return fmt.Errorf("failed to upsert sprint %s: %w", sprint.ID, err)
		}
		for i, item := range sprint.Items {
			if err := s.upsertItem(ctx, tx, project.ID, sprint.ID, item, int64(i), now); err != nil {
				return err
			}
		}
	}

	for i, item := range board.Backlog.Items {
		if err := s.upsertItem(ctx, tx, project.ID, "", item, int64(i), now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStorage) upsertItem(ctx context.Context, tx *sql.Tx, projectID, sprintID string, item domain.WorkItem, position int64, now time.Time) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", item.ID, err)
	}
	status := item.DisplayStatus
	if status == "" {
		status = domain.StatusBacklog
	}

	_, err = s.exec(ctx, tx, `
		INSERT INTO items (id, project_id, sprint_id, status, payload, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET sprint_id = excluded.sprint_id, status = excluded.status,
			payload = excluded.payload, position = excluded.position, updated_at = excluded.updated_at
	`, item.ID, projectID, nullableString(sprintID), status, string(payload), position, now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert item %s: %w", item.ID, err)
	}
	return nil
}

// LoadBoard returns the authoritative board of a project
func (s *SQLStorage) LoadBoard(ctx context.Context, projectID string) (domain.BoardState, error) {
	board := domain.BoardState{ProjectID: projectID, Backlog: domain.Backlog{Items: []domain.WorkItem{}}}

	var exists int
	err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM projects WHERE id = ?`, projectID).Scan(&exists)
	if err != nil {
		return board, fmt.Errorf("failed to load project: %w", err)
	}
	if exists == 0 {
		return board, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}

	rows, err := s.query(ctx, s.db, `
		SELECT id, name, state FROM sprints WHERE project_id = ? ORDER BY position, id
	`, projectID)
	if err != nil {
		return board, fmt.Errorf("failed to query sprints: %w", err)
	}
	index := make(map[string]int)
	for rows.Next() {
		var sp domain.Sprint
		var state string
		if err := rows.Scan(&sp.ID, &sp.Name, &state); err != nil {
			rows.Close()
			return board, err
		}
		sp.State = domain.LifecycleState(state)
		sp.Items = []domain.WorkItem{}
		index[sp.ID] = len(board.Sprints)
		board.Sprints = append(board.Sprints, sp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return board, err
	}

	itemRows, err := s.query(ctx, s.db, `
		SELECT id, sprint_id, status, payload FROM items WHERE project_id = ? ORDER BY position, id
	`, projectID)
	if err != nil {
		return board, fmt.Errorf("failed to query items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item domain.WorkItem
		var sprintID, payload sql.NullString
		if err := itemRows.Scan(&item.ID, &sprintID, &item.DisplayStatus, &payload); err != nil {
			return board, err
		}
		if payload.Valid && payload.String != "" && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &item.Payload); err != nil {
				return board, fmt.Errorf("failed to decode payload for %s: %w", item.ID, err)
			}
		}

		if i, ok := index[sprintID.String]; sprintID.Valid && ok {
			board.Sprints[i].Items = append(board.Sprints[i].Items, item)
		} else {
			board.Backlog.Items = append(board.Backlog.Items, item)
		}
	}

	return board, itemRows.Err()
}

// ListProjects returns every stored project
func (s *SQLStorage) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.query(ctx, s.db, `SELECT id, name, created_at FROM projects ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// SprintState returns the lifecycle state of a sprint
func (s *SQLStorage) SprintState(ctx context.Context, sprintID string) (domain.LifecycleState, error) {
	var state string
	err := s.queryRow(ctx, s.db, `SELECT state FROM sprints WHERE id = ?`, sprintID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sprint %s: %w", sprintID, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return domain.LifecycleState(state), nil
}

// SetSprintState changes a sprint's lifecycle state
func (s *SQLStorage) SetSprintState(ctx context.Context, sprintID string, state domain.LifecycleState) (*Mutation, error) {
	if !state.IsValid() {
		return nil, fmt.Errorf("invalid lifecycle state %q", state)
	}

	var projectID string
	err := s.queryRow(ctx, s.db, `SELECT project_id FROM sprints WHERE id = ?`, sprintID).Scan(&projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sprint %s: %w", sprintID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.exec(ctx, s.db, `UPDATE sprints SET state = ? WHERE id = ?`, string(state), sprintID); err != nil {
		return nil, fmt.Errorf("failed to update sprint state: %w", err)
	}
	return &Mutation{ProjectID: projectID, SprintID: sprintID, Op: OpSprintState}, nil
}

// AddItemToSprint associates an item with a sprint and sets its status.
// An empty status keeps the current one, except that items leaving the
// backlog get the todo status.
func (s *SQLStorage) AddItemToSprint(ctx context.Context, sprintID, itemID, status string) (*Mutation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var projectID, state string
	err = s.queryRow(ctx, tx, `SELECT project_id, state FROM sprints WHERE id = ?`, sprintID).Scan(&projectID, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sprint %s: %w", sprintID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if domain.LifecycleState(state).IsClosed() {
		return nil, fmt.Errorf("sprint %s is %s: %w", sprintID, state, ErrSprintClosed)
	}

	var itemProject, current string
	err = s.queryRow(ctx, tx, `SELECT project_id, status FROM items WHERE id = ?`, itemID).Scan(&itemProject, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if itemProject != projectID {
		return nil, fmt.Errorf("item %s belongs to another project: %w", itemID, ErrNotFound)
	}
	switch {
	case status != "":
	case current == domain.StatusBacklog || current == "":
		status = domain.StatusTodo
	default:
		status = current
	}

	now := s.now().UTC()
	_, err = s.exec(ctx, tx, `
		UPDATE items SET sprint_id = ?, status = ?, position = ?, updated_at = ? WHERE id = ?
	`, sprintID, status, now.UnixNano(), now.Format(time.RFC3339), itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to add item to sprint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &Mutation{ProjectID: projectID, SprintID: sprintID, ItemID: itemID, Op: OpItemAdded}, nil
}

// RemoveItemFromSprint returns an item to the backlog. Unless keepStatus is
// set the item's status is reset to backlog.
func (s *SQLStorage) RemoveItemFromSprint(ctx context.Context, sprintID, itemID string, keepStatus bool) (*Mutation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var projectID string
	var current sql.NullString
	err = s.queryRow(ctx, tx, `SELECT project_id, sprint_id FROM items WHERE id = ?`, itemID).Scan(&projectID, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !current.Valid || current.String != sprintID {
		return nil, fmt.Errorf("item %s, sprint %s: %w", itemID, sprintID, ErrItemNotInSprint)
	}

	now := s.now().UTC()
	query := `UPDATE items SET sprint_id = NULL, status = ?, position = ?, updated_at = ? WHERE id = ?`
	args := []any{domain.StatusBacklog, now.UnixNano(), now.Format(time.RFC3339), itemID}
	if keepStatus {
		query = `UPDATE items SET sprint_id = NULL, position = ?, updated_at = ? WHERE id = ?`
		args = args[1:]
	}
	if _, err := s.exec(ctx, tx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to remove item from sprint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &Mutation{ProjectID: projectID, SprintID: sprintID, ItemID: itemID, Op: OpItemRemoved}, nil
}

// SaveMoveRecord stores one move attempt
func (s *SQLStorage) SaveMoveRecord(ctx context.Context, rec *MoveRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}

	_, err := s.exec(ctx, s.db, `
		INSERT INTO move_records (id, move_id, project_id, item_id, from_ref, to_ref, outcome, reason, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.MoveID,
		rec.ProjectID,
		rec.ItemID,
		rec.From,
		rec.To,
		string(rec.Outcome),
		nullableString(rec.Reason),
		nullableString(rec.Error),
		rec.Duration.Milliseconds(),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert move record: %w", err)
	}
	return nil
}

// ListMoveRecords retrieves move records matching the filter, newest first
func (s *SQLStorage) ListMoveRecords(ctx context.Context, filter *MoveFilter) ([]*MoveRecord, error) {
	query := `
		SELECT id, move_id, project_id, item_id, from_ref, to_ref, outcome, reason, error, duration_ms, created_at
		FROM move_records
	`
	where, args := buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at DESC"

	limit, offset := 100, 0
	if filter != nil {
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		offset = filter.Offset
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query move records: %w", err)
	}
	defer rows.Close()

	var records []*MoveRecord
	for rows.Next() {
		rec, err := scanMoveRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountMoveRecords returns the count of move records matching the filter
func (s *SQLStorage) CountMoveRecords(ctx context.Context, filter *MoveFilter) (int, error) {
	query := `SELECT COUNT(*) FROM move_records`
	where, args := buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}

	var count int
	err := s.queryRow(ctx, s.db, query, args...).Scan(&count)
	return count, err
}

// GetMoveStats returns aggregate move statistics for a project
func (s *SQLStorage) GetMoveStats(ctx context.Context, projectID string) (*MoveStats, error) {
	stats := &MoveStats{ByReason: make(map[string]int)}

	var avgMs float64
	err := s.queryRow(ctx, s.db, `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN outcome = 'applied' THEN 1 ELSE 0 END), 0) as applied,
			COALESCE(SUM(CASE WHEN outcome = 'rolled_back' THEN 1 ELSE 0 END), 0) as rolled_back,
			COALESCE(SUM(CASE WHEN outcome = 'rejected' THEN 1 ELSE 0 END), 0) as rejected,
			COALESCE(AVG(duration_ms), 0) as avg_duration
		FROM move_records
		WHERE project_id = ?
	`, projectID).Scan(&stats.Total, &stats.Applied, &stats.RolledBack, &stats.Rejected, &avgMs)
	if err != nil {
		return nil, fmt.Errorf("failed to get move stats: %w", err)
	}

	stats.AvgDuration = time.Duration(avgMs * float64(time.Millisecond))
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Applied) / float64(stats.Total) * 100
	}

	rows, err := s.query(ctx, s.db, `
		SELECT reason, COUNT(*) FROM move_records
		WHERE project_id = ? AND reason IS NOT NULL
		GROUP BY reason
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get moves by reason: %w", err)
	}
	for rows.Next() {
		var reason string
		var count int
		if err := rows.Scan(&reason, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByReason[reason] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats.Recent, err = s.ListMoveRecords(ctx, &MoveFilter{ProjectID: projectID, Limit: 10})
	if err != nil {
		return nil, fmt.Errorf("failed to get recent moves: %w", err)
	}

	return stats, nil
}

// Helper functions

func scanMoveRecord(rows *sql.Rows) (*MoveRecord, error) {
	var rec MoveRecord
	var outcome, createdAt string
	var reason, errStr sql.NullString
	var durationMs int64

	err := rows.Scan(
		&rec.ID,
		&rec.MoveID,
		&rec.ProjectID,
		&rec.ItemID,
		&rec.From,
		&rec.To,
		&outcome,
		&reason,
		&errStr,
		&durationMs,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Outcome = domain.OutcomeKind(outcome)
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if reason.Valid {
		rec.Reason = reason.String
	}
	if errStr.Valid {
		rec.Error = errStr.String
	}

	return &rec, nil
}

func buildWhereClause(filter *MoveFilter) (string, []any) {
	if filter == nil {
		return "", nil
	}

	var conditions []string
	var args []any

	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.ItemID != "" {
		conditions = append(conditions, "item_id = ?")
		args = append(args, filter.ItemID)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}
	if filter.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}

	return strings.Join(conditions, " AND "), args
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
