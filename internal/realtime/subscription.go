package realtime

import "sync"

const subscriberBuffer = 1

type hub struct {
	mu     sync.Mutex
	subs   map[uint64]chan Snapshot
	nextID uint64
}

// Subscription receives the latest snapshot. A slow reader only ever sees
// the newest one; intermediate snapshots are replaced.
type Subscription struct {
	hub  *hub
	id   uint64
	ch   chan Snapshot
	once sync.Once
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]chan Snapshot)}
}

func (h *hub) subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Snapshot, subscriberBuffer)
	h.subs[id] = ch
	return &Subscription{hub: h, id: id, ch: ch}
}

func (h *hub) publish(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		snap := s.Clone()
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (h *hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (s *Subscription) Updates() <-chan Snapshot {
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
		s.hub.unsubscribe(s.id)
	})
}
