package broadcaster

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/rand/mnemosyne/pkg/types"
)

// subscriberQueue is the bounded outgoing queue for one subscriber. When a
// subscriber's queue is full, Publish drops the event being published for
// that subscriber (events already queued are kept) and logs a warning,
// rather than blocking the publisher.
const subscriberQueue = 256

// ringCapacity is the in-memory replay buffer size for Last-Event-ID
// resumption, per §4.7.
const ringCapacity = 1024

// Broadcaster is the in-process pub/sub hub: Publish appends an event to
// the replay ring and fans it out to every live Subscribe channel. Safe for
// concurrent use.
type Broadcaster struct {
	mu          sync.Mutex
	ring        *ringBuffer
	nextID      uint64
	subscribers map[int]chan Event
	nextSub     int
	now         func() time.Time

	onDrop func(subscriberID int)
}

// New constructs a Broadcaster with the default ring capacity.
func New() *Broadcaster {
	return &Broadcaster{
		ring:        newRingBuffer(ringCapacity),
		subscribers: make(map[int]chan Event),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Publish assigns the next event ID, stamps the timestamp if unset, records
// it in the replay ring, and fans it out to every subscriber's queue,
// dropping (not blocking) on a full queue.
func (b *Broadcaster) Publish(evt Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	evt.ID = b.nextID
	if evt.At.IsZero() {
		evt.At = b.now()
	}
	b.ring.add(evt)

	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			log.Printf("broadcaster: subscriber %d queue full, dropping event %d", id, evt.ID)
			if b.onDrop != nil {
				b.onDrop(id)
			}
		}
	}
	return evt
}

// Emit is a convenience wrapper building and publishing an Event for the
// given type/memory/namespace with an optional JSON-serializable payload.
func (b *Broadcaster) Emit(eventType types.EventType, memoryID, namespace string, data any) Event {
	var raw json.RawMessage
	if data != nil {
		if encoded, err := json.Marshal(data); err == nil {
			raw = encoded
		}
	}
	return b.Publish(Event{Type: eventType, MemoryID: memoryID, Namespace: namespace, Data: raw})
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed by unsubscribe; callers MUST
// call it exactly once when done reading.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan Event, subscriberQueue)
	b.subscribers[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
		b.mu.Unlock()
	}
}

// Since returns every ring-buffered event with ID greater than lastID, for
// SSE's Last-Event-ID replay.
func (b *Broadcaster) Since(lastID uint64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ring.since(lastID)
}

// SubscriberCount reports the number of live subscribers, for /health.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
