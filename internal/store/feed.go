package store

import (
	"sync"

	"github.com/psepar/demandboard/internal/model"
)

// Event operation kinds.
type EventOp string

const (
	OpInsert EventOp = "INSERT"
	OpUpdate EventOp = "UPDATE"
	OpDelete EventOp = "DELETE"
)

// Tables that emit change events.
const (
	TableTasks         = "tasks"
	TableComments      = "comments"
	TableNotifications = "notifications"
)

// Event is a single change-feed entry. Exactly one payload field is set,
// matching Table. Comment events additionally carry the owning TaskID.
type Event struct {
	Table string
	Op    EventOp

	Task         *model.Task
	TaskID       string
	Comment      *model.Comment
	Notification *model.Notification
}

// feed fans change events out to subscribers. Sends never block: a
// subscriber that falls behind loses events rather than stalling writes,
// the same trade-off the store's writers make elsewhere.
type feed struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newFeed() *feed {
	return &feed{subs: make(map[int]chan Event)}
}

// subscribe registers a listener with the given channel buffer.
func (f *feed) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	f.mu.Lock()
	id := f.next
	f.next++
	ch := make(chan Event, buffer)
	f.subs[id] = ch
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// publish delivers ev to every subscriber without blocking.
func (f *feed) publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			// Drop if the subscriber's buffer is full.
		}
	}
}
