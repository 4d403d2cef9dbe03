package gateway

import (
	"sync"

	"kanban-cli/internal/model"
)

// Fanout delivers board snapshots to in-process subscribers. Backends without a native
// change feed publish to it after each successful write.
type Fanout struct {
	mu   sync.Mutex
	next int
	subs map[int]func(model.Board)
}

func (f *Fanout) Subscribe(fn func(model.Board)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = map[int]func(model.Board){}
	}
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Publish calls every subscriber with its own copy of b.
func (f *Fanout) Publish(b model.Board) {
	f.mu.Lock()
	subs := make([]func(model.Board), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(b.Clone())
	}
}
