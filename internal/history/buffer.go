// Package history implements the history-stream buffer and the chunk
// framing used to serve oversize past-event lists to the worker.
package history

import (
	"sync"

	"github.com/cuemby/durabletask-sidecar/internal/model"
)

// DefaultChunkBytes is the default history-chunk size bound.
const DefaultChunkBytes = 256 * 1024

// EventSizer estimates the serialized size of a history event. The core
// treats wire encoding as an implementation detail; callers supply
// whatever sizing function matches their actual wire codec.
type EventSizer func(model.HistoryEvent) int

// Buffer parks past-events lists keyed by instance id, for instances whose
// orchestrator request declared that past events must be streamed
// separately. Entries are never aged out by a timer; callers must call
// Evict when the corresponding correlation is resolved, failed, or
// disconnected.
type Buffer struct {
	mu   sync.Mutex
	data map[string][]model.HistoryEvent
}

// NewBuffer constructs an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{data: make(map[string][]model.HistoryEvent)}
}

// Put parks events for instanceKey, replacing any previous entry.
func (b *Buffer) Put(instanceKey string, events []model.HistoryEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[instanceKey] = events
}

// Get returns the parked events for instanceKey, if any.
func (b *Buffer) Get(instanceKey string) ([]model.HistoryEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	events, ok := b.data[instanceKey]
	return events, ok
}

// Evict removes the parked events for instanceKey, if any.
func (b *Buffer) Evict(instanceKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, instanceKey)
}

// Chunk splits events into chunks of at most maxBytes each, using sizeOf to
// estimate each event's serialized size. Framing rules:
//   - an event is never split across chunks;
//   - the chunk is flushed before adding an event that would take the
//     accumulated size over maxBytes;
//   - an event whose size alone exceeds maxBytes is still emitted, alone,
//     in its own chunk (the bound only applies across event boundaries);
//   - the final non-empty chunk is always emitted.
func Chunk(events []model.HistoryEvent, maxBytes int, sizeOf EventSizer) []model.HistoryChunk {
	if len(events) == 0 {
		return nil
	}

	var chunks []model.HistoryChunk
	var current []model.HistoryEvent
	currentSize := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, model.HistoryChunk{Events: current})
			current = nil
			currentSize = 0
		}
	}

	for _, ev := range events {
		size := sizeOf(ev)
		if currentSize+size > maxBytes && len(current) > 0 {
			flush()
		}
		current = append(current, ev)
		currentSize += size
	}
	flush()
	return chunks
}
