package correlation

import "sync"

// Table is a concurrency-safe key -> *Future[T] map with atomic
// get-or-insert and remove, backed by sync.Map since entries here churn
// at dispatch frequency rather than at cluster-membership frequency. All
// individual operations are atomic; distinct keys never interfere.
type Table[T any] struct {
	m sync.Map // string -> *Future[T]
}

// Register creates and stores a new Future for key. It returns
// (future, true) if key was not already present, or (existing, false) if
// it was — callers must treat false as "already pending": a key is
// present for exactly the window between dispatch and reply.
func (t *Table[T]) Register(key string) (*Future[T], bool) {
	f := NewFuture[T]()
	actual, loaded := t.m.LoadOrStore(key, f)
	return actual.(*Future[T]), !loaded
}

// Remove deletes and returns the future for key, if present.
func (t *Table[T]) Remove(key string) (*Future[T], bool) {
	v, ok := t.m.LoadAndDelete(key)
	if !ok {
		return nil, false
	}
	return v.(*Future[T]), true
}

// Get returns the future for key without removing it.
func (t *Table[T]) Get(key string) (*Future[T], bool) {
	v, ok := t.m.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Future[T]), true
}

// Len reports the current number of pending entries. Used only for
// metrics/tests; callers must not rely on it for correctness decisions
// since it can be stale the instant it's read under concurrent use.
func (t *Table[T]) Len() int {
	n := 0
	t.m.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Keys returns a snapshot of the currently pending keys.
func (t *Table[T]) Keys() []string {
	keys := make([]string, 0)
	t.m.Range(func(k, _ interface{}) bool {
		keys = append(keys, k.(string))
		return true
	})
	return keys
}
