package repo

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/psepar/demandboard/internal/model"
	"github.com/psepar/demandboard/internal/store"
)

// inboxLimit bounds the per-recipient mirror: how many notifications
// are loaded, and how many merged events are retained.
const inboxLimit = 20

// Inbox mirrors one recipient's notifications, newest-first. Only the
// recipient mutates it: mark-read or delete-all.
type Inbox struct {
	store store.Store
	email string
	log   *log.Entry

	mu    sync.Mutex
	items []model.Notification
}

// NewInbox creates an inbox for the given recipient email.
func NewInbox(s store.Store, email string) *Inbox {
	return &Inbox{
		store: s,
		email: email,
		log:   log.WithField("component", "inbox").WithField("user", email),
	}
}

// Load replaces the local mirror with the recipient's most recent
// notifications. On failure the prior state is left intact.
func (b *Inbox) Load(ctx context.Context) error {
	items, err := b.store.Notifications(ctx, b.email, inboxLimit)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.items = items
	b.mu.Unlock()

	return nil
}

// Merge folds a notification INSERT event into the mirror, prepending it
// unless one with the same identifier is already present and dropping
// the oldest entry past the mirror cap. Events for other recipients are
// ignored.
func (b *Inbox) Merge(ev store.Event) {
	if ev.Table != store.TableNotifications || ev.Op != store.OpInsert || ev.Notification == nil {
		return
	}
	if ev.Notification.UserEmail != b.email {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.items {
		if b.items[i].ID == ev.Notification.ID {
			return
		}
	}
	b.items = append([]model.Notification{*ev.Notification}, b.items...)
	if len(b.items) > inboxLimit {
		b.items = b.items[:inboxLimit]
	}
}

// Run consumes the store's change feed until ctx is cancelled.
func (b *Inbox) Run(ctx context.Context) {
	events, cancel := b.store.Subscribe(32)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.Merge(ev)
		}
	}
}

// MarkRead flips the read flag. Optimistic: the flag flips locally first
// and is reverted if the remote update fails.
func (b *Inbox) MarkRead(ctx context.Context, id string) error {
	b.mu.Lock()
	idx := -1
	for i := range b.items {
		if b.items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return store.ErrNotFound
	}
	prior := b.items[idx].Read
	b.items[idx].Read = true
	b.mu.Unlock()

	if err := b.store.MarkNotificationRead(ctx, id); err != nil {
		b.mu.Lock()
		for i := range b.items {
			if b.items[i].ID == id {
				b.items[i].Read = prior
				break
			}
		}
		b.mu.Unlock()
		return err
	}

	return nil
}

// DeleteAll clears the recipient's notifications. Not optimistic: local
// state is only emptied once the store confirms.
func (b *Inbox) DeleteAll(ctx context.Context) error {
	if err := b.store.DeleteNotifications(ctx, b.email); err != nil {
		return err
	}

	b.mu.Lock()
	b.items = nil
	b.mu.Unlock()

	return nil
}

// Notifications returns a snapshot of the mirror, newest-first.
func (b *Inbox) Notifications() []model.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Notification(nil), b.items...)
}

// UnreadCount returns how many notifications are still unread.
func (b *Inbox) UnreadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for i := range b.items {
		if !b.items[i].Read {
			n++
		}
	}
	return n
}
