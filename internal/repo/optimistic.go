package repo

import (
	"context"
	"fmt"

	"github.com/psepar/demandboard/internal/model"
	"github.com/psepar/demandboard/internal/store"
)

// Advisory is a non-blocking warning attached to a successful mutation.
type Advisory struct {
	Message string
}

// applyOptimistic is the shared mutation protocol for status, priority,
// and progress changes: mutate the mirror synchronously so the view never
// shows a stale value while the remote call is in flight, then issue the
// remote write, and revert the local mutation if it fails. The task is
// marked in flight for the duration so its own echoed feed event does not
// double-apply.
func (r *Repository) applyOptimistic(
	ctx context.Context,
	id string,
	mutate func(t *model.Task),
	revert func(t *model.Task),
	remote func(ctx context.Context) error,
) error {
	r.mu.Lock()
	t := r.findLocked(id)
	if t == nil {
		r.mu.Unlock()
		return ErrTaskNotFound
	}
	mutate(t)
	r.inflight[id]++
	r.mu.Unlock()

	err := remote(ctx)

	r.mu.Lock()
	r.inflight[id]--
	if r.inflight[id] <= 0 {
		delete(r.inflight, id)
	}
	if err != nil {
		// The task may have been removed by a concurrent merge.
		if t := r.findLocked(id); t != nil {
			revert(t)
		}
	}
	r.mu.Unlock()

	return err
}

// SetStatus toggles a task between PENDING and DONE. Optimistic with
// exact revert on remote failure. Status changes alone trigger no
// notification fan-out.
func (r *Repository) SetStatus(ctx context.Context, id, status string) error {
	if status != model.StatusPending && status != model.StatusDone {
		return ErrInvalidStatus
	}

	var prior string
	return r.applyOptimistic(ctx, id,
		func(t *model.Task) {
			prior = t.Status
			t.Status = status
		},
		func(t *model.Task) {
			t.Status = prior
		},
		func(ctx context.Context) error {
			return r.store.UpdateTask(ctx, id, store.TaskPatch{Status: &status})
		},
	)
}

// SetPriority moves a task between board partitions. Optimistic with
// exact revert on remote failure.
func (r *Repository) SetPriority(ctx context.Context, id, priority string) error {
	if !model.ValidPriority(priority) {
		return ErrInvalidPriority
	}

	var prior string
	return r.applyOptimistic(ctx, id,
		func(t *model.Task) {
			prior = t.Priority
			t.Priority = priority
		},
		func(t *model.Task) {
			t.Priority = prior
		},
		func(ctx context.Context) error {
			return r.store.UpdateTask(ctx, id, store.TaskPatch{Priority: &priority})
		},
	)
}

// SetProgress updates a task's completion percentage. Optimistic with
// exact revert on remote failure. Reducing progress succeeds but returns
// an advisory asking the actor to justify the reduction in a comment.
// Reaching 100 chains a best-effort transition to DONE; reducing progress
// later never reopens the task.
func (r *Repository) SetProgress(ctx context.Context, id string, progress int) (*Advisory, error) {
	if progress < 0 || progress > 100 {
		return nil, ErrInvalidProgress
	}

	var priorProgress int
	var priorStatus string
	err := r.applyOptimistic(ctx, id,
		func(t *model.Task) {
			priorProgress = t.Progress
			priorStatus = t.Status
			t.Progress = progress
		},
		func(t *model.Task) {
			t.Progress = priorProgress
		},
		func(ctx context.Context) error {
			return r.store.UpdateTask(ctx, id, store.TaskPatch{Progress: &progress})
		},
	)
	if err != nil {
		return nil, err
	}

	// Convenience transition, not an invariant: its failure does not
	// roll back the progress change.
	if progress == 100 && priorStatus != model.StatusDone {
		if err := r.SetStatus(ctx, id, model.StatusDone); err != nil {
			r.log.WithField("task", id).Warnf("auto-complete after 100%% failed: %v", err)
		}
	}

	var advisory *Advisory
	if progress < priorProgress {
		advisory = &Advisory{Message: fmt.Sprintf(
			"Progresso reduzido de %d%% para %d%%. Justifique a redução em um comentário.",
			priorProgress, progress,
		)}
	}

	return advisory, nil
}
