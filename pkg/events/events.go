// Package events is the in-process event bus connecting the job runtime to
// API consumers. Publishing never blocks: a subscriber that falls behind
// loses its oldest events instead of stalling the worker.
package events

import "sync"

const (
	//tygo:emit export type EventKind = string;
	KindJobStarted    = "JOB_STARTED"
	KindJobProgress   = "JOB_PROGRESS"
	KindJobPaused     = "JOB_PAUSED"
	KindJobResumed    = "JOB_RESUMED"
	KindJobCompleted  = "JOB_COMPLETED"
	KindJobCancelled  = "JOB_CANCELLED"
	KindJobFailed     = "JOB_FAILED"
	KindSeriesCreated = "SERIES_CREATED"
	KindMediaCreated  = "MEDIA_CREATED"
	KindScanCompleted = "SCAN_COMPLETED"
)

// Event is a single bus frame. Only the fields relevant to the kind are set.
type Event struct {
	Kind           string `json:"kind" tstype:"EventKind"`
	JobID          string `json:"job_id,omitempty"`
	LibraryID      string `json:"library_id,omitempty"`
	SeriesID       string `json:"series_id,omitempty"`
	MediaID        string `json:"media_id,omitempty"`
	CompletedTasks int    `json:"completed_tasks,omitempty"`
	TotalTasks     int    `json:"total_tasks,omitempty"`
	Message        string `json:"message,omitempty"`
}

const defaultBuffer = 64

type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func NewBus() *Bus {
	return &Bus{subs: map[int]chan Event{}}
}

// Subscribe registers a new consumer. The buffer bounds how far the consumer
// may lag before it starts losing its oldest events. The returned cancel
// removes the subscription and closes the channel; it is safe to call twice.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Publish can no longer reach the channel, so closing is safe.
			close(ch)
		})
	}
	return ch, cancel
}

// Publish fans the event out to every subscriber without blocking. When a
// subscriber's buffer is full its oldest buffered event is dropped to make
// room for the new one.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- evt:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- evt:
		default:
		}
	}
}
