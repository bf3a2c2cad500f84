// Package repo keeps a local mirror of the demand board consistent with
// the backing store under optimistic updates and change-feed merges.
package repo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/psepar/demandboard/internal/model"
	"github.com/psepar/demandboard/internal/notify"
	"github.com/psepar/demandboard/internal/store"
)

// Validation and permission errors, rejected before any remote call.
var (
	ErrEmptyTitle       = errors.New("repo: title must not be empty")
	ErrNoAssignees      = errors.New("repo: at least one assignee is required")
	ErrEmptyComment     = errors.New("repo: comment text must not be empty")
	ErrInvalidPriority  = errors.New("repo: unknown priority level")
	ErrInvalidCategory  = errors.New("repo: unknown category")
	ErrInvalidStatus    = errors.New("repo: unknown status")
	ErrInvalidProgress  = errors.New("repo: progress must be between 0 and 100")
	ErrTaskNotFound     = errors.New("repo: task not found")
	ErrPermissionDenied = errors.New("repo: permission denied")
)

// Fanout is the notification side effect of task and comment mutations.
// Satisfied by *notify.Fanout.
type Fanout interface {
	TaskCreated(ctx context.Context, t model.Task, actor model.Session)
	CommentAdded(ctx context.Context, t model.Task, c model.Comment, actor model.Session)
}

var _ Fanout = (*notify.Fanout)(nil)

// Repository mirrors the store's task collection in memory, newest-first
// by creation time, and applies every mutation through an optimistic
// update protocol with rollback on remote failure.
type Repository struct {
	store      store.Store
	fanout     Fanout
	catalog    *ProjectCatalog
	selfDelete bool
	log        *log.Entry

	mu       sync.Mutex
	tasks    []model.Task
	inflight map[string]int
}

// New creates a Repository. selfDelete allows assignees to delete their
// own tasks; otherwise deletion is BOSS-only.
func New(s store.Store, f Fanout, catalog *ProjectCatalog, selfDelete bool) *Repository {
	return &Repository{
		store:      s,
		fanout:     f,
		catalog:    catalog,
		selfDelete: selfDelete,
		inflight:   make(map[string]int),
		log:        log.WithField("component", "repo"),
	}
}

// Load replaces the local mirror with the store's current state. Tasks
// arrive newest-first; each task's comments are sorted ascending by
// creation time here because the store does not guarantee nested
// ordering. On failure the prior local state is left intact.
func (r *Repository) Load(ctx context.Context) error {
	tasks, err := r.store.Tasks(ctx)
	if err != nil {
		return err
	}

	for i := range tasks {
		sort.SliceStable(tasks[i].Comments, func(a, b int) bool {
			return tasks[i].Comments[a].CreatedAt.Before(tasks[i].Comments[b].CreatedAt)
		})
	}

	r.mu.Lock()
	r.tasks = tasks
	r.mu.Unlock()

	if r.catalog != nil {
		r.catalog.Observe(tasks)
	}

	return nil
}

// Create validates and persists a draft task. Creation is not optimistic:
// the draft has no identifier until the store assigns one, so nothing is
// shown locally until the insert succeeds. On success the created task is
// prepended to the mirror and the assignees (plus the BOSS, when the
// creator is an EMPLOYEE) are notified.
func (r *Repository) Create(ctx context.Context, actor model.Session, draft model.Task) (*model.Task, error) {
	if strings.TrimSpace(draft.Title) == "" {
		return nil, ErrEmptyTitle
	}
	if len(draft.Assignees) == 0 {
		return nil, ErrNoAssignees
	}
	if !model.ValidPriority(draft.Priority) {
		return nil, ErrInvalidPriority
	}
	if !model.ValidCategory(draft.Category) {
		return nil, ErrInvalidCategory
	}

	draft.Status = model.StatusPending
	draft.Progress = 0

	created, err := r.store.InsertTask(ctx, draft)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.findLocked(created.ID) == nil {
		r.tasks = append([]model.Task{created.Clone()}, r.tasks...)
	}
	r.mu.Unlock()

	if r.catalog != nil && created.Project != "" {
		r.catalog.Add(created.Project)
	}

	r.fanout.TaskCreated(ctx, created.Clone(), actor)

	return created, nil
}

// Delete removes a task. Permission: the BOSS always; an assignee only
// when self-service deletion is enabled. Deletion waits for store
// confirmation before touching local state so a failure never resurrects
// a row.
func (r *Repository) Delete(ctx context.Context, actor model.Session, id string) error {
	r.mu.Lock()
	t := r.findLocked(id)
	if t == nil {
		r.mu.Unlock()
		return ErrTaskNotFound
	}
	allowed := actor.Role == model.RoleBoss ||
		(r.selfDelete && t.HasAssignee(actor.Name))
	r.mu.Unlock()

	if !allowed {
		return ErrPermissionDenied
	}

	if err := r.store.DeleteTask(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	r.removeLocked(id)
	r.mu.Unlock()

	return nil
}

// AddComment validates and persists a comment, appends it to the task's
// comment sequence, and notifies the other side of the conversation:
// every assignee when the BOSS comments, the BOSS otherwise.
func (r *Repository) AddComment(ctx context.Context, actor model.Session, taskID, text string) (*model.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyComment
	}

	r.mu.Lock()
	t := r.findLocked(taskID)
	if t == nil {
		r.mu.Unlock()
		return nil, ErrTaskNotFound
	}
	snapshot := t.Clone()
	r.mu.Unlock()

	created, err := r.store.InsertComment(ctx, taskID, model.Comment{
		Author: actor.Name,
		Text:   text,
	})
	if err != nil {
		return nil, err
	}

	// The store's echo of this insert may have raced us through the
	// change feed; appendCommentLocked suppresses the duplicate.
	r.mu.Lock()
	if t := r.findLocked(taskID); t != nil {
		appendCommentLocked(t, *created)
	}
	r.mu.Unlock()

	r.fanout.CommentAdded(ctx, snapshot, *created, actor)

	return created, nil
}

// MergeRemoteEvent folds one change-feed event into the local mirror.
// Merges are idempotent per event identifier so the acting session's own
// echoed writes do not duplicate data.
func (r *Repository) MergeRemoteEvent(ev store.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Table {
	case store.TableTasks:
		switch ev.Op {
		case store.OpInsert:
			if ev.Task == nil || r.findLocked(ev.Task.ID) != nil {
				return
			}
			r.tasks = append([]model.Task{ev.Task.Clone()}, r.tasks...)
			if r.catalog != nil && ev.Task.Project != "" {
				r.catalog.Add(ev.Task.Project)
			}
		case store.OpUpdate:
			if ev.Task == nil {
				return
			}
			// A local optimistic write is in flight for this task;
			// its own completion or rollback settles the state.
			if r.inflight[ev.Task.ID] > 0 {
				return
			}
			t := r.findLocked(ev.Task.ID)
			if t == nil {
				return
			}
			mergeScalars(t, ev.Task)
		case store.OpDelete:
			r.removeLocked(ev.TaskID)
		}

	case store.TableComments:
		if ev.Op != store.OpInsert || ev.Comment == nil {
			return
		}
		if t := r.findLocked(ev.TaskID); t != nil {
			appendCommentLocked(t, *ev.Comment)
		}
	}
}

// Run consumes the store's change feed until ctx is cancelled.
// Notification events are handled by per-recipient inboxes, not here.
func (r *Repository) Run(ctx context.Context) {
	events, cancel := r.store.Subscribe(64)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Table == store.TableNotifications {
				continue
			}
			r.MergeRemoteEvent(ev)
		}
	}
}

// Tasks returns a deep-copied snapshot of the mirror, newest-first.
func (r *Repository) Tasks() []model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Task, 0, len(r.tasks))
	for i := range r.tasks {
		out = append(out, r.tasks[i].Clone())
	}
	return out
}

// ByPriority returns the board partition for one priority level,
// preserving newest-first order.
func (r *Repository) ByPriority(priority string) []model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Task
	for i := range r.tasks {
		if r.tasks[i].Priority == priority {
			out = append(out, r.tasks[i].Clone())
		}
	}
	return out
}

// Find returns a copy of a single task.
func (r *Repository) Find(id string) (model.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t := r.findLocked(id); t != nil {
		return t.Clone(), true
	}
	return model.Task{}, false
}

// Reset clears the local mirror, e.g. on logout.
func (r *Repository) Reset() {
	r.mu.Lock()
	r.tasks = nil
	r.mu.Unlock()
}

// findLocked returns a pointer into the mirror. Caller holds r.mu.
func (r *Repository) findLocked(id string) *model.Task {
	for i := range r.tasks {
		if r.tasks[i].ID == id {
			return &r.tasks[i]
		}
	}
	return nil
}

// removeLocked drops a task from the mirror. Caller holds r.mu.
func (r *Repository) removeLocked(id string) {
	for i := range r.tasks {
		if r.tasks[i].ID == id {
			r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
			return
		}
	}
}

// appendCommentLocked appends c to t's comment sequence unless a comment
// with the same identifier is already present. Append preserves ascending
// order because creation times are monotonic per task. Caller holds r.mu.
func appendCommentLocked(t *model.Task, c model.Comment) {
	for i := range t.Comments {
		if t.Comments[i].ID == c.ID {
			return
		}
	}
	t.Comments = append(t.Comments, c)
}

// mergeScalars copies every scalar field from src into dst, preserving
// the locally-held comment sequence. Comments synchronize through their
// own event stream, not through the task row.
func mergeScalars(dst, src *model.Task) {
	comments := dst.Comments
	*dst = src.Clone()
	dst.Comments = comments
}
