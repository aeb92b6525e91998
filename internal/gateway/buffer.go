package gateway

import (
	"sync"

	"github.com/sparklost/spacebar-bridge/internal/event"
)

// buffer is the FIFO between the receiver goroutine and the relay loop.
type buffer struct {
	mu     sync.Mutex
	events []event.Event
}

func (b *buffer) push(e event.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

// poll returns the oldest event, if any. Never blocks.
func (b *buffer) poll() (event.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return event.Event{}, false
	}
	e := b.events[0]
	b.events = b.events[1:]
	return e, true
}

func (b *buffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
