package crawler

import (
	"sync"

	"github.com/alvmarrod/steam-weaver/internal/model"
)

// Frontier implements the BFS queue plus the set of visited ids.
// It never blocks; the expansion loop decides when to stop.
type Frontier struct {
	mu      sync.Mutex
	items   []model.QueueEntry
	visited map[model.ID]bool
}

// NewFrontier creates an empty frontier
func NewFrontier() *Frontier {
	return &Frontier{
		items:   make([]model.QueueEntry, 0),
		visited: make(map[model.ID]bool),
	}
}

// RestoreFrontier rebuilds a frontier from a checkpoint
func RestoreFrontier(queue []model.QueueEntry, visited []model.ID) *Frontier {
	f := NewFrontier()
	f.items = append(f.items, queue...)
	for _, id := range visited {
		f.visited[id] = true
	}
	return f
}

// Push appends an entry at the tail
func (f *Frontier) Push(entry model.QueueEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, entry)
}

// Peek returns the head entry without removing it
func (f *Frontier) Peek() (model.QueueEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.items) == 0 {
		return model.QueueEntry{}, false
	}
	return f.items[0], true
}

// Pop removes and returns the head entry
func (f *Frontier) Pop() (model.QueueEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.items) == 0 {
		return model.QueueEntry{}, false
	}
	entry := f.items[0]
	f.items = f.items[1:]
	return entry, true
}

// MarkVisited records id as expanded
func (f *Frontier) MarkVisited(id model.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited[id] = true
}

// IsVisited reports whether id was already expanded
func (f *Frontier) IsVisited(id model.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited[id]
}

// IsEmpty returns true if the queue has no items
func (f *Frontier) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items) == 0
}

// Size returns the current number of items in the queue
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Entries returns a copy of the pending queue, head first
func (f *Frontier) Entries() []model.QueueEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := make([]model.QueueEntry, len(f.items))
	copy(entries, f.items)
	return entries
}

// VisitedIDs returns the visited set sorted ascending
func (f *Frontier) VisitedIDs() []model.ID {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]model.ID, 0, len(f.visited))
	for id := range f.visited {
		ids = append(ids, id)
	}
	return model.SortIDs(ids)
}
