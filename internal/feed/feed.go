package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Change announces that the value under Key was rewritten by Source (a store id).
type Change struct {
	Key    string `json:"key"`
	Source string `json:"source"`
}

// Feed carries storage-change signals between stores, in one process or across
// many. Delivery is at most once; a signal only means "reload this key".
type Feed interface {
	Publish(ctx context.Context, c Change) error
	Subscribe(key string) (changes <-chan Change, unsubscribe func())
	Close() error
}

var ErrClosed = errors.New("feed closed")

const subscriberBuffer = 16

func encodeChange(c Change) ([]byte, error) {
	return json.Marshal(c)
}

func decodeChange(data []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(data, &c); err != nil {
		return Change{}, err
	}
	if c.Key == "" {
		return Change{}, errors.New("change without key")
	}
	return c, nil
}

// hub fans received changes out to local subscribers by key. Every transport
// embeds one.
type hub struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]chan Change
	nextID uint64
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[uint64]chan Change)}
}

func (h *hub) Subscribe(key string) (<-chan Change, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Change, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	id := h.nextID
	if h.subs[key] == nil {
		h.subs[key] = make(map[uint64]chan Change)
	}
	h.subs[key][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[key][id]; ok {
				delete(h.subs[key], id)
				if len(h.subs[key]) == 0 {
					delete(h.subs, key)
				}
				close(c)
			}
		})
	}
}

// dispatch never blocks. A subscriber whose buffer is full already has a
// reload pending, so the signal is dropped.
func (h *hub) dispatch(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[c.Key] {
		select {
		case ch <- c:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for key, subs := range h.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(h.subs, key)
	}
}

func (h *hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
