package notify

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/psepar/demandboard/internal/model"
)

// Writer persists notification records. Satisfied by store.Store.
type Writer interface {
	InsertNotification(ctx context.Context, n model.Notification) error
}

// Fanout computes which users must be notified after a task or comment
// mutation and writes one notification per recipient. Delivery is
// fire-and-forget: failures are logged, never propagated, never retried.
type Fanout struct {
	writer    Writer
	directory *model.Directory
	policy    string
	mailer    *Mailer
	log       *log.Entry
}

// New creates a Fanout. mailer may be nil to disable the email mirror.
// policy is one of the model.UnknownRecipient* values.
func New(w Writer, d *model.Directory, policy string, mailer *Mailer) *Fanout {
	return &Fanout{
		writer:    w,
		directory: d,
		policy:    policy,
		mailer:    mailer,
		log:       log.WithField("component", "fanout"),
	}
}

// TaskCreated notifies every assignee of the new task, plus the BOSS when
// the creator is an EMPLOYEE.
func (f *Fanout) TaskCreated(ctx context.Context, t model.Task, actor model.Session) {
	title := fmt.Sprintf("Nova Demanda: %s", t.Title)

	for _, name := range t.Assignees {
		user, ok := f.directory.ByName(name)
		if !ok {
			f.unknownRecipient(name)
			continue
		}
		f.deliver(ctx, user, title, fmt.Sprintf(
			"Você foi atribuído ao projeto %q com prioridade %s.",
			t.Project, t.Priority,
		))
	}

	if actor.Role == model.RoleEmployee {
		boss, ok := f.directory.Boss()
		if !ok {
			f.log.Warn("no BOSS in allowlist, skipping creation notice")
			return
		}
		f.deliver(ctx, boss, title, fmt.Sprintf(
			"%s criou uma demanda no projeto %q com prioridade %s.",
			actor.Name, t.Project, t.Priority,
		))
	}
}

// CommentAdded notifies every assignee when the BOSS comments, and the
// BOSS when anyone else does.
func (f *Fanout) CommentAdded(ctx context.Context, t model.Task, c model.Comment, actor model.Session) {
	title := fmt.Sprintf("Novo Comentário em: %s", t.Title)
	message := fmt.Sprintf("%s comentou: %q", actor.Name, c.Text)

	if actor.Role == model.RoleBoss {
		for _, name := range t.Assignees {
			user, ok := f.directory.ByName(name)
			if !ok {
				f.unknownRecipient(name)
				continue
			}
			f.deliver(ctx, user, title, message)
		}
		return
	}

	boss, ok := f.directory.Boss()
	if !ok {
		f.log.Warn("no BOSS in allowlist, skipping comment notice")
		return
	}
	f.deliver(ctx, boss, title, message)
}

// deliver writes one notification record and, if configured, mirrors it
// as an email. Both are best-effort.
func (f *Fanout) deliver(ctx context.Context, to model.User, title, message string) {
	n := model.Notification{
		UserEmail: to.Email,
		Title:     title,
		Message:   message,
	}
	if err := f.writer.InsertNotification(ctx, n); err != nil {
		f.log.WithField("recipient", to.Email).Warnf("notification write failed: %v", err)
		return
	}

	if f.mailer != nil {
		if err := f.mailer.Send(to, title, message); err != nil {
			f.log.WithField("recipient", to.Email).Warnf("email mirror failed: %v", err)
		}
	}
}

// unknownRecipient applies the configured policy for display names that
// do not resolve against the allowlist.
func (f *Fanout) unknownRecipient(name string) {
	if f.policy == model.UnknownRecipientWarn {
		f.log.WithField("name", name).Warn("recipient not in allowlist, skipped")
	}
}
