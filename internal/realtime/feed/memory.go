package feed

import (
	"context"
	"maps"
	"sync"

	"github.com/smallbiznis/ordersync/internal/normalize"
)

// MemoryFeed is an in-process feed. Push delivers synchronously to every
// watcher of the relation.
type MemoryFeed struct {
	mu       sync.Mutex
	current  map[normalize.Relation][]normalize.Row
	watchers map[normalize.Relation]map[uint64]Callback
	nextID   uint64
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		current:  make(map[normalize.Relation][]normalize.Row),
		watchers: make(map[normalize.Relation]map[uint64]Callback),
	}
}

// Watch registers cb until ctx is done. A relation that already has rows is
// delivered to cb immediately.
func (f *MemoryFeed) Watch(ctx context.Context, relation normalize.Relation, cb Callback) error {
	f.mu.Lock()
	if f.watchers[relation] == nil {
		f.watchers[relation] = make(map[uint64]Callback)
	}
	id := f.nextID
	f.nextID++
	f.watchers[relation][id] = cb
	rows, hasRows := f.current[relation]
	rows = copyRows(rows)
	f.mu.Unlock()

	if hasRows {
		cb(rows)
	}

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.watchers[relation], id)
		f.mu.Unlock()
	}()
	return nil
}

// Push replaces the relation's rows and notifies watchers.
func (f *MemoryFeed) Push(relation normalize.Relation, rows []normalize.Row) {
	f.mu.Lock()
	f.current[relation] = copyRows(rows)
	callbacks := make([]Callback, 0, len(f.watchers[relation]))
	for _, cb := range f.watchers[relation] {
		callbacks = append(callbacks, cb)
	}
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(copyRows(rows))
	}
}

// Fetch returns the relation's current rows.
func (f *MemoryFeed) Fetch(_ context.Context, relation normalize.Relation) ([]normalize.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyRows(f.current[relation]), nil
}

func copyRows(rows []normalize.Row) []normalize.Row {
	if rows == nil {
		return nil
	}
	out := make([]normalize.Row, len(rows))
	for i, row := range rows {
		out[i] = maps.Clone(row)
	}
	return out
}
