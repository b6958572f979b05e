package realtime

import (
	"errors"
	"strings"
	"sync"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

var (
	ErrHubUnavailable = errors.New("hub_unavailable")
	ErrInvalidChannel = errors.New("invalid_channel")
)

// Hub fans events out to in-process subscribers, keeping a short replay
// buffer per channel while anyone is listening.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub     *Hub
	channel string
	id      uint64
	ch      chan Event
	once    sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Dispatch delivers to current subscribers without blocking; slow readers drop events.
func (h *Hub) Dispatch(channel string, event Event) {
	if h == nil {
		return
	}
	name := strings.TrimSpace(channel)
	if name == "" {
		return
	}
	h.mu.RLock()
	st := h.streams[name]
	h.mu.RUnlock()
	if st == nil {
		return
	}

	st.mu.Lock()
	st.buffer = append(st.buffer, event)
	if len(st.buffer) > h.bufferSize {
		st.buffer = st.buffer[len(st.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(st.subs))
	for _, ch := range st.subs {
		subs = append(subs, ch)
	}
	st.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a live subscription and the buffered backlog.
func (h *Hub) Subscribe(channel string) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	name := strings.TrimSpace(channel)
	if name == "" {
		return nil, nil, ErrInvalidChannel
	}

	st := h.ensureStream(name)
	st.mu.Lock()
	id := st.nextID
	st.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	st.subs[id] = ch
	backlog := append([]Event(nil), st.buffer...)
	st.mu.Unlock()

	return &Subscription{hub: h, channel: name, id: id, ch: ch}, backlog, nil
}

func (h *Hub) ensureStream(channel string) *stream {
	h.mu.RLock()
	current := h.streams[channel]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[channel]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[channel] = current
	}
	return current
}

func (h *Hub) unsubscribe(channel string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.streams[channel]
	if st == nil {
		return
	}
	st.mu.Lock()
	delete(st.subs, id)
	empty := len(st.subs) == 0
	st.mu.Unlock()
	if empty {
		delete(h.streams, channel)
	}
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.channel, s.id)
	})
}
