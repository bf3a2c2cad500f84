package store

import (
	"context"
	"errors"

	"github.com/psepar/demandboard/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// TaskPatch is a partial update for a task row. Nil fields are left
// unchanged.
type TaskPatch struct {
	Title    *string
	Category *string
	Priority *string
	Project  *string
	Status   *string
	Progress *int
}

// Store is the persistence contract for tasks, comments, notifications,
// and profiles. It is the single source of truth; callers mirror its
// state locally and reconcile through the change feed.
type Store interface {
	// Tasks returns every task with its nested comments, ordered by
	// created_at descending. Comment ordering within a task is not
	// guaranteed.
	Tasks(ctx context.Context) ([]model.Task, error)

	// InsertTask persists a draft and returns the created row with its
	// assigned id and creation time.
	InsertTask(ctx context.Context, t model.Task) (*model.Task, error)

	// UpdateTask applies a partial field set to a task row.
	UpdateTask(ctx context.Context, id string, patch TaskPatch) error

	// DeleteTask removes a task; its comments cascade.
	DeleteTask(ctx context.Context, id string) error

	// InsertComment persists a comment for a task and returns the
	// created row with its assigned id and creation time.
	InsertComment(ctx context.Context, taskID string, c model.Comment) (*model.Comment, error)

	// Notifications returns a recipient's notifications, newest first.
	// A non-positive limit returns all of them.
	Notifications(ctx context.Context, email string, limit int) ([]model.Notification, error)

	// InsertNotification persists a notification record.
	InsertNotification(ctx context.Context, n model.Notification) error

	// MarkNotificationRead flips the read flag on a single notification.
	MarkNotificationRead(ctx context.Context, id string) error

	// DeleteNotifications removes all of a recipient's notifications.
	DeleteNotifications(ctx context.Context, email string) error

	// ProfileByEmail returns a credential record, or ErrNotFound.
	ProfileByEmail(ctx context.Context, email string) (*model.Profile, error)

	// InsertProfile persists a new credential record.
	InsertProfile(ctx context.Context, p model.Profile) error

	// Subscribe registers a change-feed listener. The returned cancel
	// func must be called to release the subscription. Events may be
	// dropped if the listener does not keep up.
	Subscribe(buffer int) (<-chan Event, func())
}
