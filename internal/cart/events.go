package cart

import (
	"slices"

	"github.com/fjod/grocery-cart/internal/domain"
)

type EventKind int

const (
	// EventMutated follows a local mutation that was written to storage.
	EventMutated EventKind = iota + 1
	// EventReloaded follows a Reload from storage.
	EventReloaded
)

func (k EventKind) String() string {
	switch k {
	case EventMutated:
		return "mutated"
	case EventReloaded:
		return "reloaded"
	default:
		return "unknown"
	}
}

// Event carries the cart contents after a change. Version grows with every
// change, so listeners can drop events that arrive out of order.
type Event struct {
	Kind    EventKind
	Key     string
	Version uint64
	Items   []domain.LineItem
}

type Listener func(Event)

// Subscribe registers fn for every subsequent change. Listeners run after the
// store lock is released, in subscription order.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.lmu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(l listener) bool { return l.id == id })
	}
}

func (s *Store) notify(ev Event) {
	s.lmu.Lock()
	ls := slices.Clone(s.listeners)
	s.lmu.Unlock()

	for _, l := range ls {
		e := ev
		e.Items = cloneItems(ev.Items)
		l.fn(e)
	}
}
