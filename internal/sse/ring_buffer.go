package sse

import (
	"strconv"
	"sync"
)

const defaultReplaySize = 1000

// replayBuffer retains the most recent published events so reconnecting
// dashboards can resume from their Last-Event-ID.
type replayBuffer struct {
	mu    sync.RWMutex
	items []SSEEvent
	start int
	size  int
}

func newReplayBuffer(capacity int) *replayBuffer {
	if capacity <= 0 {
		capacity = defaultReplaySize
	}
	return &replayBuffer{items: make([]SSEEvent, capacity)}
}

func (b *replayBuffer) push(event SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.items)
	if b.size < capacity {
		b.items[(b.start+b.size)%capacity] = event
		b.size++
		return
	}
	b.items[b.start] = event
	b.start = (b.start + 1) % capacity
}

// since returns events after lastID. gap is true when lastID predates the
// oldest retained event, meaning some events were evicted.
func (b *replayBuffer) since(lastID string) (events []SSEEvent, gap bool) {
	b.mu.RLock()
	snapshot := make([]SSEEvent, 0, b.size)
	for i := 0; i < b.size; i++ {
		snapshot = append(snapshot, b.items[(b.start+i)%len(b.items)])
	}
	b.mu.RUnlock()

	if lastID == "" {
		return snapshot, false
	}
	lastSeq, err := strconv.ParseInt(lastID, 10, 64)
	if err != nil {
		return snapshot, false
	}

	out := make([]SSEEvent, 0, len(snapshot))
	for i, event := range snapshot {
		seq, err := strconv.ParseInt(event.ID, 10, 64)
		if err != nil {
			continue
		}
		if i == 0 && seq > lastSeq+1 {
			gap = true
		}
		if seq > lastSeq {
			out = append(out, event)
		}
	}
	return out, gap
}
