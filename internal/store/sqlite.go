package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/psepar/demandboard/internal/model"
)

// SQLiteStore implements the Store interface using a SQLite database and
// an in-process change feed.
type SQLiteStore struct {
	db   *sqlx.DB
	feed *feed
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys so comments cascade on task delete.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, feed: newFeed()}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Subscribe registers a change-feed listener.
func (s *SQLiteStore) Subscribe(buffer int) (<-chan Event, func()) {
	return s.feed.subscribe(buffer)
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Tasks returns every task with its nested comments, tasks ordered by
// created_at descending. Comments are attached in whatever order the
// database returns them; callers sort as needed.
func (s *SQLiteStore) Tasks(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM tasks ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	index := make(map[string]int)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		index[task.ID] = len(tasks)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}

	crows, err := s.db.QueryxContext(ctx, "SELECT * FROM comments")
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer crows.Close()

	for crows.Next() {
		c, taskID, err := scanComment(crows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[taskID]; ok {
			tasks[i].Comments = append(tasks[i].Comments, c)
		}
	}

	return tasks, crows.Err()
}

// InsertTask persists a draft task, assigning its id and creation time.
func (s *SQLiteStore) InsertTask(ctx context.Context, t model.Task) (*model.Task, error) {
	t.ID = uuid.New().String()
	t.CreatedAt = time.Now().UTC()
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	t.Comments = nil

	assignees, err := json.Marshal(t.Assignees)
	if err != nil {
		return nil, fmt.Errorf("marshaling assignees: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, title, category, priority, justification,
			project, assignees, status, progress, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Category, t.Priority, t.Justification,
		t.Project, string(assignees), t.Status, t.Progress, t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting task: %w", err)
	}

	created := t.Clone()
	s.feed.publish(Event{Table: TableTasks, Op: OpInsert, Task: &created})

	return &t, nil
}

// UpdateTask applies a partial field set to a task row.
func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, patch TaskPatch) error {
	var sets []string
	var args []interface{}

	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *patch.Category)
	}
	if patch.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *patch.Priority)
	}
	if patch.Project != nil {
		sets = append(sets, "project = ?")
		args = append(args, *patch.Project)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *patch.Progress)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?",
		args...,
	)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating task %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	// Re-read the row so the feed carries the full scalar state.
	updated, err := s.taskByID(ctx, id)
	if err != nil {
		log.WithField("task", id).Warnf("re-reading task after update, feed event dropped: %v", err)
		return nil
	}
	s.feed.publish(Event{Table: TableTasks, Op: OpUpdate, Task: updated})

	return nil
}

// DeleteTask removes a task; its comments cascade via foreign key.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.feed.publish(Event{Table: TableTasks, Op: OpDelete, TaskID: id})
	return nil
}

// InsertComment persists a comment, assigning its id and creation time.
func (s *SQLiteStore) InsertComment(
	ctx context.Context,
	taskID string,
	c model.Comment,
) (*model.Comment, error) {
	c.ID = uuid.New().String()
	c.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, task_id, author, text, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, taskID, c.Author, c.Text, c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting comment for task %s: %w", taskID, err)
	}

	published := c
	s.feed.publish(Event{
		Table:   TableComments,
		Op:      OpInsert,
		TaskID:  taskID,
		Comment: &published,
	})

	return &c, nil
}

// Notifications returns a recipient's notifications, newest first.
func (s *SQLiteStore) Notifications(
	ctx context.Context,
	email string,
	limit int,
) ([]model.Notification, error) {
	query := "SELECT * FROM notifications WHERE user_email = ? ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryxContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("querying notifications for %s: %w", email, err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// InsertNotification persists a notification record.
func (s *SQLiteStore) InsertNotification(ctx context.Context, n model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_email, title, message, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserEmail, n.Title, n.Message, boolToInt(n.Read), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}

	published := n
	s.feed.publish(Event{Table: TableNotifications, Op: OpInsert, Notification: &published})

	return nil
}

// MarkNotificationRead marks a single notification as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteNotifications removes all of a recipient's notifications.
func (s *SQLiteStore) DeleteNotifications(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE user_email = ?", email,
	)
	if err != nil {
		return fmt.Errorf("deleting notifications for %s: %w", email, err)
	}
	return nil
}

// ProfileByEmail returns a credential record, or ErrNotFound.
func (s *SQLiteStore) ProfileByEmail(ctx context.Context, email string) (*model.Profile, error) {
	var (
		p         model.Profile
		role      string
		createdAt time.Time
	)
	row := s.db.QueryRowxContext(ctx,
		"SELECT * FROM profiles WHERE email = ?", email,
	)
	err := row.Scan(&p.Email, &p.Name, &role, &p.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile %s: %w", email, err)
	}

	p.Role = model.Role(role)
	return &p, nil
}

// InsertProfile persists a new credential record.
func (s *SQLiteStore) InsertProfile(ctx context.Context, p model.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (email, name, role, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.Email, p.Name, string(p.Role), p.PasswordHash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting profile %s: %w", p.Email, err)
	}
	return nil
}

// taskByID reads a single task row without its comments.
func (s *SQLiteStore) taskByID(ctx context.Context, id string) (*model.Task, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM tasks WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("getting task %s: %w", id, err)
		}
		return nil, ErrNotFound
	}

	task, err := scanTask(rows)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// scanTask scans a task row from a sqlx.Rows result set.
func scanTask(rows *sqlx.Rows) (model.Task, error) {
	var (
		task      model.Task
		assignees string
		createdAt time.Time
	)

	err := rows.Scan(
		&task.ID, &task.Title, &task.Category, &task.Priority,
		&task.Justification, &task.Project, &assignees,
		&task.Status, &task.Progress, &createdAt,
	)
	if err != nil {
		return model.Task{}, fmt.Errorf("scanning task row: %w", err)
	}

	task.CreatedAt = createdAt
	if assignees != "" {
		if err := json.Unmarshal([]byte(assignees), &task.Assignees); err != nil {
			return model.Task{}, fmt.Errorf("unmarshaling assignees: %w", err)
		}
	}

	return task, nil
}

// scanComment scans a comment row and its owning task id.
func scanComment(rows *sqlx.Rows) (model.Comment, string, error) {
	var (
		c         model.Comment
		taskID    string
		createdAt time.Time
	)

	err := rows.Scan(&c.ID, &taskID, &c.Author, &c.Text, &createdAt)
	if err != nil {
		return model.Comment{}, "", fmt.Errorf("scanning comment row: %w", err)
	}

	c.CreatedAt = createdAt
	return c, taskID, nil
}

// scanNotification scans a notification row from a sqlx.Rows result set.
func scanNotification(rows *sqlx.Rows) (model.Notification, error) {
	var (
		n         model.Notification
		readInt   int
		createdAt time.Time
	)

	err := rows.Scan(&n.ID, &n.UserEmail, &n.Title, &n.Message, &readInt, &createdAt)
	if err != nil {
		return model.Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}

	n.Read = readInt != 0
	n.CreatedAt = createdAt

	return n, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
