package review

import (
	"fmt"
	"sync"
)

// InFlight tracks row actions that are currently running. A second action
// on the same row is refused until the first finishes; other rows are
// unaffected.
type InFlight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{keys: make(map[string]struct{})}
}

func rowKey(kind string, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// Begin claims the row. When ok is true the caller must call done.
func (f *InFlight) Begin(kind string, id int64) (done func(), ok bool) {
	key := rowKey(kind, id)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.keys[key]; busy {
		return nil, false
	}
	f.keys[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.keys, key)
			f.mu.Unlock()
		})
	}, true
}

// Busy reports whether the row has an action running.
func (f *InFlight) Busy(kind string, id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, busy := f.keys[rowKey(kind, id)]
	return busy
}
