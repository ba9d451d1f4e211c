package manager

import "llmd/pkg/types"

// Event represents a model lifecycle event: load_start, load_ready,
// load_failed, unload, evict or close.
type Event struct {
	Name     string
	Model    string
	Category types.Category
	Fields   map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
