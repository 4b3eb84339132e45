package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"

	"attendance/entity"
)

var ErrHubClosed = errors.New("hub is closed")

// ListenerFactory creates the listener of one event.
type ListenerFactory func(eventID string, onChange func(entity.EventView)) *Listener

// Hub shares one listener per event between all of its watchers. The
// listener starts with the first watcher and stops with the last one.
type Hub struct {
	newListener ListenerFactory
	baseCtx     context.Context

	mu        sync.Mutex
	closed    bool
	listeners map[string]*hubEntry
	nextID    uint64
}

type hubEntry struct {
	listener *Listener
	cancel   context.CancelFunc
	done     chan struct{}

	mu       sync.Mutex
	watchers map[uint64]func(entity.EventView)
}

func (e *hubEntry) broadcast(view entity.EventView) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, w := range e.watchers {
		w(view.Clone())
	}
}

// NewHub creates a hub whose listeners log through the logger of ctx. Close
// stops them.
func NewHub(ctx context.Context, newListener ListenerFactory) *Hub {
	if newListener == nil {
		panic("missing newListener")
	}

	return &Hub{
		newListener: newListener,
		baseCtx:     log.ToContext(context.Background(), log.FromContext(ctx)),
		listeners:   make(map[string]*hubEntry),
	}
}

// Subscription is one watcher of an event.
type Subscription struct {
	hub     *Hub
	eventID string
	id      uint64
	once    sync.Once
}

// Subscribe registers onChange for every new view of eventID. When the event
// already has a view, onChange is called with it right away. onChange must
// not block.
func (h *Hub) Subscribe(eventID string, onChange func(entity.EventView)) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	entry, ok := h.listeners[eventID]
	if !ok {
		entry = &hubEntry{
			watchers: make(map[uint64]func(entity.EventView)),
			done:     make(chan struct{}),
		}
		entry.listener = h.newListener(eventID, entry.broadcast)

		ctx, cancel := context.WithCancel(h.baseCtx)
		entry.cancel = cancel
		go func() {
			defer close(entry.done)
			if err := entry.listener.Run(ctx); err != nil {
				log.FromContext(ctx).WithError(err).WithField("event_id", eventID).Error("Listener stopped")
			}
		}()

		h.listeners[eventID] = entry
	}

	h.nextID++
	id := h.nextID

	entry.mu.Lock()
	entry.watchers[id] = onChange
	if view, ok := entry.listener.Current(); ok {
		onChange(view)
	}
	entry.mu.Unlock()

	return &Subscription{hub: h, eventID: eventID, id: id}, nil
}

// Current returns the last view of an event that has watchers.
func (h *Hub) Current(eventID string) (entity.EventView, bool) {
	h.mu.Lock()
	entry, ok := h.listeners[eventID]
	h.mu.Unlock()

	if !ok {
		return entity.EventView{}, false
	}
	return entry.listener.Current()
}

// Watchers returns how many watchers the event has.
func (h *Hub) Watchers(eventID string) int {
	h.mu.Lock()
	entry, ok := h.listeners[eventID]
	h.mu.Unlock()

	if !ok {
		return 0
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return len(entry.watchers)
}

// Unsubscribe removes the watcher. Removing the last watcher of an event
// stops its listener, including a pending refresh, before returning.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.unsubscribe(s.eventID, s.id)
	})
}

func (h *Hub) unsubscribe(eventID string, id uint64) {
	h.mu.Lock()
	entry, ok := h.listeners[eventID]
	if !ok {
		h.mu.Unlock()
		return
	}

	entry.mu.Lock()
	delete(entry.watchers, id)
	last := len(entry.watchers) == 0
	entry.mu.Unlock()

	if last {
		delete(h.listeners, eventID)
	}
	h.mu.Unlock()

	if last {
		entry.cancel()
		<-entry.done
	}
}

// Close stops every listener and refuses new subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	entries := h.listeners
	h.listeners = make(map[string]*hubEntry)
	h.mu.Unlock()

	for _, entry := range entries {
		entry.cancel()
	}
	for _, entry := range entries {
		<-entry.done
	}
}
