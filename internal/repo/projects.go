package repo

import (
	"sync"

	"github.com/psepar/demandboard/internal/model"
)

// ProjectCatalog is the set of known project labels. It is seeded from
// configuration, grows as tasks are observed or labels are added by
// hand, and is never pruned.
type ProjectCatalog struct {
	mu    sync.Mutex
	names []string
	seen  map[string]bool
}

// NewProjectCatalog creates a catalog seeded with the given labels.
func NewProjectCatalog(seed []string) *ProjectCatalog {
	c := &ProjectCatalog{seen: make(map[string]bool)}
	for _, name := range seed {
		c.add(name)
	}
	return c
}

// Add records a project label. Returns true if it was not known before.
func (c *ProjectCatalog) Add(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.add(name)
}

// Observe unions the projects of the given tasks into the catalog.
func (c *ProjectCatalog) Observe(tasks []model.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range tasks {
		if tasks[i].Project != "" {
			c.add(tasks[i].Project)
		}
	}
}

// All returns the known labels in first-seen order.
func (c *ProjectCatalog) All() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

func (c *ProjectCatalog) add(name string) bool {
	if name == "" || c.seen[name] {
		return false
	}
	c.seen[name] = true
	c.names = append(c.names, name)
	return true
}
