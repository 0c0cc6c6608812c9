package live

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const (
	defaultSubscriberBuffer = 64
	defaultIdleTTL          = 30 * time.Minute
)

// Hub is the in-process Broker. It keeps the last `retention` events of each
// topic for replay and never blocks a publisher on a slow subscriber.
//
// A topic with no subscribers and no activity for the idle TTL is dropped
// along with its replay ring. Its seq restarts at 1, so a viewer resuming
// with an older cursor is told to reset.
type Hub struct {
	mu        sync.Mutex
	retention int
	buffer    int
	idleTTL   time.Duration
	lastSweep time.Time
	topics    map[string]*topicState
	closed    bool
	now       func() time.Time
}

type topicState struct {
	seq        uint64
	ring       []Event
	subs       map[*hubSub]struct{}
	lastActive time.Time
}

type hubSub struct {
	ch  chan Event
	sub *Subscription
}

func NewHub(retention int) *Hub {
	if retention < 1 {
		retention = 1
	}
	return &Hub{
		retention: retention,
		buffer:    defaultSubscriberBuffer,
		idleTTL:   defaultIdleTTL,
		lastSweep: time.Now(),
		topics:    make(map[string]*topicState),
		now:       time.Now,
	}
}

// WithIdleTTL changes how long an unwatched topic keeps its replay ring.
func (h *Hub) WithIdleTTL(d time.Duration) *Hub {
	h.mu.Lock()
	h.idleTTL = d
	h.mu.Unlock()
	return h
}

// topic returns the state for t, creating it, and sweeps idle topics at
// most once per idle TTL. Callers hold h.mu.
func (h *Hub) topic(t Topic) *topicState {
	now := h.now()
	if now.Sub(h.lastSweep) >= h.idleTTL {
		h.sweep(now)
	}
	st, ok := h.topics[t.Key()]
	if !ok {
		st = &topicState{subs: make(map[*hubSub]struct{})}
		h.topics[t.Key()] = st
	}
	st.lastActive = now
	return st
}

func (h *Hub) sweep(now time.Time) int {
	h.lastSweep = now
	removed := 0
	for key, st := range h.topics {
		if len(st.subs) == 0 && now.Sub(st.lastActive) >= h.idleTTL {
			delete(h.topics, key)
			removed++
		}
	}
	return removed
}

// Prune drops idle topics now and reports how many went.
func (h *Hub) Prune() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sweep(h.now())
}

// Topics reports how many topics are held in memory.
func (h *Hub) Topics() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}

func (h *Hub) Publish(_ context.Context, t Topic, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode live payload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return Event{}, ErrClosed
	}

	st := h.topic(t)
	st.seq++
	ev := Event{Seq: st.seq, Kind: t.Kind, ReportID: t.ReportID, Data: data, At: h.now().UTC()}

	st.ring = append(st.ring, ev)
	if len(st.ring) > h.retention {
		st.ring = st.ring[len(st.ring)-h.retention:]
	}

	for s := range st.subs {
		select {
		case s.ch <- ev:
		default:
			delete(st.subs, s)
			s.sub.setErr(ErrSlowConsumer)
			close(s.ch)
			go s.sub.closeWith(ErrSlowConsumer)
		}
	}
	return ev, nil
}

func (h *Hub) Subscribe(ctx context.Context, t Topic, since uint64) (*Subscription, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}

	st := h.topic(t)
	var backlog []Event
	reset := false
	if since > 0 {
		if since > st.seq {
			// Stream restarted since the viewer last saw it.
			reset = true
		} else if len(st.ring) > 0 && st.ring[0].Seq > since+1 {
			reset = true
		}
		for _, ev := range st.ring {
			if ev.Seq > since {
				backlog = append(backlog, ev)
			}
		}
	}

	hs := &hubSub{ch: make(chan Event, h.buffer+len(backlog))}
	for _, ev := range backlog {
		hs.ch <- ev
	}
	st.subs[hs] = struct{}{}

	hs.sub = newSubscription(hs.ch, func() { h.unsubscribe(t, hs) })
	hs.sub.Reset = reset
	hs.sub.Head = st.seq
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			hs.sub.Close()
		case <-hs.sub.Done():
		}
	}()
	return hs.sub, nil
}

func (h *Hub) unsubscribe(t Topic, hs *hubSub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.topics[t.Key()]
	if !ok {
		return
	}
	if _, ok := st.subs[hs]; ok {
		delete(st.subs, hs)
		close(hs.ch)
		st.lastActive = h.now()
	}
}

// Subscribers reports how many viewers follow the topic.
func (h *Hub) Subscribers(t Topic) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st, ok := h.topics[t.Key()]; ok {
		return len(st.subs)
	}
	return 0
}

func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	var dropped []*Subscription
	for _, st := range h.topics {
		for s := range st.subs {
			delete(st.subs, s)
			s.sub.setErr(ErrClosed)
			close(s.ch)
			dropped = append(dropped, s.sub)
		}
	}
	h.mu.Unlock()

	for _, s := range dropped {
		s.closeWith(ErrClosed)
	}
	return nil
}
