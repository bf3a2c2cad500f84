package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/psepar/demandboard/internal/model"
)

// newTestStore creates an in-memory store with all migrations applied.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

func draft(title string) model.Task {
	return model.Task{
		Title:     title,
		Category:  model.CategoryDev,
		Priority:  model.PriorityMedia,
		Project:   "Triagem",
		Assignees: []string{"Narley", "Toni"},
	}
}

func TestInsertTaskAssignsIdentityAndDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.InsertTask(ctx, draft("primeira"))
	if err != nil {
		t.Fatalf("insert task: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected assigned id")
	}
	if created.CreatedAt.IsZero() {
		t.Fatal("expected assigned creation time")
	}
	if created.Status != model.StatusPending || created.Progress != 0 {
		t.Fatalf("expected PENDING/0, got %s/%d", created.Status, created.Progress)
	}
}

func TestTasksOrderedNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"um", "dois", "tres"} {
		created, err := s.InsertTask(ctx, draft(title))
		if err != nil {
			t.Fatalf("insert %s: %v", title, err)
		}
		ids = append(ids, created.ID)
		time.Sleep(2 * time.Millisecond)
	}

	tasks, err := s.Tasks(ctx)
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	for i := range tasks {
		if tasks[i].ID != ids[len(ids)-1-i] {
			t.Fatalf("expected newest-first order, got %v", []string{tasks[0].ID, tasks[1].ID, tasks[2].ID})
		}
	}
	if len(tasks[0].Assignees) != 2 {
		t.Fatalf("expected assignees round-trip, got %v", tasks[0].Assignees)
	}
}

func TestTasksNestComments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.InsertTask(ctx, draft("com comentarios"))
	if err != nil {
		t.Fatalf("insert task: %v", err)
	}

	for _, text := range []string{"primeiro", "segundo"} {
		if _, err := s.InsertComment(ctx, created.ID, model.Comment{Author: "Narley", Text: text}); err != nil {
			t.Fatalf("insert comment: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	tasks, err := s.Tasks(ctx)
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if len(tasks[0].Comments) != 2 {
		t.Fatalf("expected 2 nested comments, got %d", len(tasks[0].Comments))
	}
}

func TestUpdateTaskPartialPatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.InsertTask(ctx, draft("mudar"))
	if err != nil {
		t.Fatalf("insert task: %v", err)
	}

	done := model.StatusDone
	progress := 80
	if err := s.UpdateTask(ctx, created.ID, TaskPatch{Status: &done, Progress: &progress}); err != nil {
		t.Fatalf("update: %v", err)
	}

	tasks, err := s.Tasks(ctx)
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	got := tasks[0]
	if got.Status != model.StatusDone || got.Progress != 80 {
		t.Fatalf("expected DONE/80, got %s/%d", got.Status, got.Progress)
	}
	if got.Title != "mudar" || got.Priority != model.PriorityMedia {
		t.Fatal("expected untouched fields preserved")
	}
}

func TestUpdateMissingTaskReturnsNotFound(t *testing.T) {
	s := newTestStore(t)

	done := model.StatusDone
	err := s.UpdateTask(context.Background(), "nope", TaskPatch{Status: &done})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTaskCascadesComments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.InsertTask(ctx, draft("apagar"))
	if err != nil {
		t.Fatalf("insert task: %v", err)
	}
	if _, err := s.InsertComment(ctx, created.ID, model.Comment{Author: "Toni", Text: "oi"}); err != nil {
		t.Fatalf("insert comment: %v", err)
	}

	if err := s.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	tasks, err := s.Tasks(ctx)
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected empty board, got %d tasks", len(tasks))
	}

	// The comment's task is gone; a new insert must hit the foreign key.
	if _, err := s.InsertComment(ctx, created.ID, model.Comment{Author: "Toni", Text: "orfao"}); err == nil {
		t.Fatal("expected foreign key violation for deleted task")
	}
}

func TestNotificationsFilteredByRecipient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, email := range []string{"a@example.org", "b@example.org", "a@example.org"} {
		err := s.InsertNotification(ctx, model.Notification{
			UserEmail: email,
			Title:     "t",
			Message:   "m",
		})
		if err != nil {
			t.Fatalf("insert notification: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	notes, err := s.Notifications(ctx, "a@example.org", 0)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected 2 notifications for a@, got %d", len(notes))
	}
	if notes[0].CreatedAt.Before(notes[1].CreatedAt) {
		t.Fatal("expected newest-first order")
	}

	if err := s.MarkNotificationRead(ctx, notes[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	notes, err = s.Notifications(ctx, "a@example.org", 0)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if !notes[0].Read {
		t.Fatal("expected read flag persisted")
	}

	if err := s.DeleteNotifications(ctx, "a@example.org"); err != nil {
		t.Fatalf("delete notifications: %v", err)
	}
	notes, err = s.Notifications(ctx, "a@example.org", 0)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("expected empty inbox, got %d", len(notes))
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.ProfileByEmail(ctx, "x@example.org"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	err := s.InsertProfile(ctx, model.Profile{
		Email:        "x@example.org",
		Name:         "Xavier",
		Role:         model.RoleEmployee,
		PasswordHash: "$2a$fakehash",
	})
	if err != nil {
		t.Fatalf("insert profile: %v", err)
	}

	p, err := s.ProfileByEmail(ctx, "x@example.org")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.Name != "Xavier" || p.Role != model.RoleEmployee || p.PasswordHash != "$2a$fakehash" {
		t.Fatalf("unexpected profile %+v", p)
	}
}

func TestFeedDeliversWriteEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	events, cancel := s.Subscribe(8)
	defer cancel()

	created, err := s.InsertTask(ctx, draft("ao vivo"))
	if err != nil {
		t.Fatalf("insert task: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Table != TableTasks || ev.Op != OpInsert {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.Task == nil || ev.Task.ID != created.ID {
			t.Fatal("expected event to carry the created task")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for insert event")
	}

	done := model.StatusDone
	if err := s.UpdateTask(ctx, created.ID, TaskPatch{Status: &done}); err != nil {
		t.Fatalf("update: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Op != OpUpdate || ev.Task == nil || ev.Task.Status != model.StatusDone {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update event")
	}

	if err := s.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Op != OpDelete || ev.TaskID != created.ID {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delete event")
	}
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	s := newTestStore(t)

	events, cancel := s.Subscribe(1)
	cancel()

	if _, open := <-events; open {
		t.Fatal("expected channel closed after cancel")
	}
}
