// Package events delivers scheduling change notifications to an explicit list of subscribers.
package events

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type Kind string

const (
	BookingCommitted       Kind = "booking.committed"
	BillingRecovered       Kind = "booking.billing_recovered"
	AppointmentUpdated     Kind = "appointment.updated"
	AppointmentRescheduled Kind = "appointment.rescheduled"
	AppointmentCancelled   Kind = "appointment.cancelled"
)

type Event struct {
	Kind           Kind             `json:"kind"`
	AppointmentID  uuid.UUID        `json:"appointment_id"`
	PractitionerID uuid.UUID        `json:"practitioner_id"`
	Date           appointment.Date `json:"date"`
	At             time.Time        `json:"at"`
}

// Handler runs synchronously inside Publish and must not block.
type Handler func(Event)

type subscriber struct {
	name string
	fn   Handler
}

// Notifier fans events out to registered subscribers.
// The zero value is ready to use.
type Notifier struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscriber
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]subscriber)}
}

// Subscribe registers fn under name and returns the function that removes it.
// The returned function is safe to call more than once.
func (n *Notifier) Subscribe(name string, fn Handler) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]subscriber)
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = subscriber{name: name, fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// SubscribeChan delivers events on a buffered channel. Events are dropped when the buffer is full.
// The channel is closed by the returned unsubscribe function.
func (n *Notifier) SubscribeChan(name string, buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	var (
		mu     sync.Mutex
		closed bool
	)
	unsubscribe := n.Subscribe(name, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
		}
	})
	return ch, func() {
		unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
}

// Publish stamps e and calls every subscriber in registration order.
func (n *Notifier) Publish(e Event) {
	if n == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	n.mu.RLock()
	ids := make([]int, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, n.subs[id].fn)
	}
	n.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// Subscribers lists the names of the current subscribers in registration order.
func (n *Notifier) Subscribers() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]int, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, n.subs[id].name)
	}
	return names
}
