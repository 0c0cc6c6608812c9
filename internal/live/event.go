// Package live fans out newly written report messages and municipal
// responses to everyone viewing the report. Each (tenant, report, kind)
// topic is an append-only stream with a monotonic sequence number, so a
// reconnecting viewer can ask for everything after the last seq it saw.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindMessage  Kind = "message"
	KindResponse Kind = "response"
)

func (k Kind) Valid() bool {
	return k == KindMessage || k == KindResponse
}

var (
	ErrSlowConsumer = errors.New("live: subscriber fell behind and was dropped")
	ErrClosed       = errors.New("live: broker closed")
)

type Topic struct {
	AppID    string
	ReportID uuid.UUID
	Kind     Kind
}

func (t Topic) Key() string {
	return "live:" + t.AppID + ":" + t.ReportID.String() + ":" + string(t.Kind)
}

type Event struct {
	Seq      uint64          `json:"seq"`
	Kind     Kind            `json:"kind"`
	ReportID uuid.UUID       `json:"report_id"`
	Data     json.RawMessage `json:"data"`
	At       time.Time       `json:"at"`
}

// Broker is the publish/subscribe primitive behind the live update channel.
type Broker interface {
	// Publish appends payload (JSON-encoded) to the topic stream.
	Publish(ctx context.Context, topic Topic, payload any) (Event, error)
	// Subscribe delivers retained events with Seq > since, then follows the
	// stream until ctx ends or Close is called. since == 0 means live only.
	Subscribe(ctx context.Context, topic Topic, since uint64) (*Subscription, error)
	Close() error
}

// Subscription is a single viewer's feed of one topic. Events is closed when
// the subscription ends; Err then reports why (nil on normal cancellation).
type Subscription struct {
	Events <-chan Event
	// Reset is set when events after the requested seq are no longer
	// retained; the viewer has to re-fetch history.
	Reset bool
	// Head is the topic's latest seq when the subscription started.
	Head uint64

	mu      sync.Mutex
	err     error
	once    sync.Once
	done    chan struct{}
	release func()
}

func newSubscription(events <-chan Event, release func()) *Subscription {
	return &Subscription{Events: events, release: release, done: make(chan struct{})}
}

// Done is closed once the subscription has ended for any reason.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) Close() {
	s.closeWith(nil)
}

// setErr records why the subscription ends; the first reason wins.
func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Subscription) closeWith(err error) {
	s.once.Do(func() {
		s.setErr(err)
		if s.release != nil {
			s.release()
		}
		close(s.done)
	})
}
