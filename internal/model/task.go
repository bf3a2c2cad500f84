package model

import "time"

// Priority levels used to partition the demand board.
const (
	PriorityAlta  = "ALTA"
	PriorityMedia = "MEDIA"
	PriorityBaixa = "BAIXA"
)

// Priorities lists the valid priority values in board order.
var Priorities = []string{PriorityAlta, PriorityMedia, PriorityBaixa}

// Task categories.
const (
	CategoryDev      = "Dev"
	CategoryDados    = "Dados"
	CategoryInfra    = "Infra"
	CategoryPesquisa = "Pesquisa"
)

// Categories lists the valid category values.
var Categories = []string{CategoryDev, CategoryDados, CategoryInfra, CategoryPesquisa}

// Task status values.
const (
	StatusPending = "PENDING"
	StatusDone    = "DONE"
)

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p string) bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Task is a unit of work on the demand board.
type Task struct {
	// ID is assigned by the store on creation; empty for a draft.
	ID string `json:"id"`

	// Title is the short human-readable summary. Never empty once validated.
	Title string `json:"title"`

	// Category is one of the Category* constants.
	Category string `json:"category"`

	// Priority is one of the Priority* constants and is the board
	// partitioning key.
	Priority string `json:"priority"`

	// Justification explains why the task received its priority.
	Justification string `json:"justification"`

	// Project is a free-text label; the known set grows monotonically.
	Project string `json:"project"`

	// Assignees holds the display names of the responsible people.
	// Never empty once validated.
	Assignees []string `json:"assignees"`

	// Status is StatusPending or StatusDone.
	Status string `json:"status"`

	// Progress is a percentage in [0,100]. Reaching 100 triggers a
	// one-way convenience transition to StatusDone.
	Progress int `json:"progress"`

	// CreatedAt is assigned by the store on creation.
	CreatedAt time.Time `json:"created_at"`

	// Comments is ordered ascending by creation time.
	Comments []Comment `json:"comments"`
}

// HasAssignee reports whether name is among the task's assignees.
func (t *Task) HasAssignee(name string) bool {
	for _, a := range t.Assignees {
		if a == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the task, including its comment slice.
func (t *Task) Clone() Task {
	c := *t
	c.Assignees = append([]string(nil), t.Assignees...)
	c.Comments = append([]Comment(nil), t.Comments...)
	return c
}

// Comment is an append-only note on a task. Comments are never edited or
// deleted once created.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// PrioritizedItem is a single structured task produced by the demand
// classifier.
type PrioritizedItem struct {
	ID            string `json:"id"`
	Task          string `json:"task"`
	Category      string `json:"category"`
	Priority      string `json:"priority"`
	Justification string `json:"justification"`
}

// PrioritizationResult is the classifier output for a free-text demand list.
type PrioritizationResult struct {
	Tasks    []PrioritizedItem `json:"tasks"`
	Blockers []string          `json:"blockers"`
}
