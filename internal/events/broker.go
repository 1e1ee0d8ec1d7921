// Package events fans controller notifications out to SSE subscribers.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

const subscriberBufSize = 256

// Tags published by the controller.
const (
	TagElementSelected     = "element-selected"
	TagNextElementSelected = "next-element-selected"
	TagPrevElementSelected = "prev-element-selected"
	TagLocationSelected    = "location-selected"
	TagProcessStarted      = "process-started"
	TagProcessComplete     = "process-complete"
	TagProcessError        = "process-error"
)

// Event is one message on the stream. Data is sent as JSON.
type Event struct {
	Tag   string    `json:"tag"`
	TabID string    `json:"tab_id,omitempty"`
	Time  time.Time `json:"time"`
	Data  any       `json:"data,omitempty"`
}

// Broker fans out events to all subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
	dropped     atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
	}
}

// Subscribe registers a new client. The channel is buffered; slow consumers
// have events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish stamps and delivers evt without blocking.
func (b *Broker) Publish(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Broker) Dropped() int64 { return b.dropped.Load() }

func (e Event) payload() string {
	data, err := json.Marshal(e)
	if err != nil {
		return `{"tag":"` + e.Tag + `"}`
	}
	return string(data)
}
