package bridge

import (
	"strings"
	"sync"
)

const (
	DefaultLocalBuffer     = 50
	DefaultLocalSubscriber = 16
)

// LocalBroadcaster fans kitchen messages out to other views on the same
// device. It is the degraded path when the kitchen channel is down; it does
// not replace delivery.
type LocalBroadcaster struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Envelope
	subs   map[uint64]chan Envelope
	nextID uint64
}

type LocalSubscription struct {
	hub   *LocalBroadcaster
	topic string
	id    uint64
	ch    chan Envelope
	once  sync.Once
}

func NewLocalBroadcaster() *LocalBroadcaster {
	return &LocalBroadcaster{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultLocalBuffer,
		subscriberBuffer: DefaultLocalSubscriber,
	}
}

// Publish keeps the envelope in the topic's recent buffer and offers it to
// every subscriber. Full subscribers miss it.
func (h *LocalBroadcaster) Publish(topic string, env Envelope) {
	if h == nil {
		return
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	s := h.ensureStream(topic)

	s.mu.Lock()
	s.buffer = append(s.buffer, env)
	if len(s.buffer) > h.bufferSize {
		s.buffer = s.buffer[len(s.buffer)-h.bufferSize:]
	}
	subs := make([]chan Envelope, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- env:
		default:
		}
	}
}

// Subscribe returns a subscription and the topic's recent envelopes.
func (h *LocalBroadcaster) Subscribe(topic string) (*LocalSubscription, []Envelope) {
	topic = strings.TrimSpace(topic)
	s := h.ensureStream(topic)

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan Envelope, h.subscriberBuffer)
	s.subs[id] = ch
	recent := append([]Envelope(nil), s.buffer...)

	return &LocalSubscription{hub: h, topic: topic, id: id, ch: ch}, recent
}

func (h *LocalBroadcaster) ensureStream(topic string) *stream {
	h.mu.RLock()
	current := h.streams[topic]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[topic]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Envelope)}
		h.streams[topic] = current
	}
	return current
}

func (h *LocalBroadcaster) unsubscribe(topic string, id uint64) {
	h.mu.RLock()
	s := h.streams[topic]
	h.mu.RUnlock()
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

func (s *LocalSubscription) Events() <-chan Envelope {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *LocalSubscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.topic, s.id)
	})
}
