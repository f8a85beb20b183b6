package chat

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Mailbox.Send once the consumer has stopped.
var ErrClosed = errors.New("mailbox closed")

// Mailbox is an unbounded multi-producer single-consumer queue of events.
//
// Send never blocks. Events are received in the order they were enqueued,
// hence in the order each producer sent them.
type Mailbox struct {
	mu     sync.Mutex
	queue  []Event
	closed bool

	// ready holds a token while queue is non-empty.
	ready chan struct{}
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		ready: make(chan struct{}, 1),
	}
}

func (m *Mailbox) Send(ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.queue = append(m.queue, ev)
	select {
	case m.ready <- struct{}{}:
	default:
	}
	return nil
}

// Recv blocks until an event is available. It returns ok=false once the
// mailbox is closed.
func (m *Mailbox) Recv() (ev Event, ok bool) {
	for {
		if ev, ok, closed := m.pop(); ok || closed {
			return ev, ok
		}
		<-m.ready
	}
}

// TryRecv returns the next event if one is already queued.
func (m *Mailbox) TryRecv() (ev Event, ok bool) {
	ev, ok, _ = m.pop()
	return ev, ok
}

func (m *Mailbox) pop() (ev Event, ok bool, closed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, true
	}
	if len(m.queue) == 0 {
		return nil, false, false
	}
	ev = m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	if len(m.queue) == 0 {
		// Let the backing array be reclaimed after a burst.
		m.queue = nil
	} else {
		select {
		case m.ready <- struct{}{}:
		default:
		}
	}
	return ev, true, false
}

// Len returns the number of queued events.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close drops queued events and makes further sends fail with ErrClosed.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.queue = nil
	close(m.ready)
}
