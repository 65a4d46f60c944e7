// Package pubsub fans task store events out to in-process subscribers.
package pubsub

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/wote-dev/simplr-sub001/domain"
)

// Bus delivers domain events to subscribers over buffered channels.
// Publishing never blocks: when a subscriber's buffer is full the event is
// dropped for that subscriber and counted, so a stuck consumer cannot stall
// the state owner.
type Bus struct {
	logger *log.Logger
	buffer int

	mu     sync.Mutex
	subs   map[int]chan domain.Event
	nextID int
	closed bool

	dropped atomic.Uint64
}

// New creates a bus whose subscriber channels hold up to buffer events.
func New(logger *log.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = 1
	}
	return &Bus{
		logger: logger,
		buffer: buffer,
		subs:   make(map[int]chan domain.Event),
	}
}

// Subscribe registers a consumer. The returned cancel func detaches it and
// closes its channel; calling cancel more than once is safe.
func (b *Bus) Subscribe() (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish hands the event to every subscriber that has buffer room.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
			if b.logger != nil {
				b.logger.WithFields(log.Fields{
					"event":   ev.Type,
					"profile": ev.Profile,
				}).Warn("event dropped for slow subscriber")
			}
		}
	}
}

// Dropped reports how many deliveries were skipped due to full buffers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close detaches all subscribers and closes their channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
