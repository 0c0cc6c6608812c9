package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// publishScript assigns the next seq and appends the event in one step so
// stream ids stay strictly increasing under concurrent publishers.
var publishScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[1])
redis.call('XADD', KEYS[2], 'MAXLEN', '~', ARGV[1], seq .. '-0', 'data', ARGV[2], 'at', ARGV[3])
return seq
`)

// RedisBroker keeps each topic as a Redis stream whose entry ids are
// "<seq>-0". It lets several API instances share one live channel.
type RedisBroker struct {
	client    *redis.Client
	retention int64
	block     time.Duration
	buffer    int
	logger    *slog.Logger
}

func NewRedisBroker(client *redis.Client, retention int, logger *slog.Logger) *RedisBroker {
	if logger == nil {
		logger = slog.Default()
	}
	if retention < 1 {
		retention = 1
	}
	return &RedisBroker{
		client:    client,
		retention: int64(retention),
		block:     5 * time.Second,
		buffer:    defaultSubscriberBuffer,
		logger:    logger,
	}
}

func seqKey(t Topic) string    { return t.Key() + ":seq" }
func streamKey(t Topic) string { return t.Key() + ":stream" }

func (b *RedisBroker) Publish(ctx context.Context, t Topic, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode live payload: %w", err)
	}
	at := time.Now().UTC()

	seq, err := publishScript.Run(ctx, b.client,
		[]string{seqKey(t), streamKey(t)},
		b.retention, string(data), at.Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		return Event{}, fmt.Errorf("publish %s: %w", t.Key(), err)
	}

	return Event{Seq: uint64(seq), Kind: t.Kind, ReportID: t.ReportID, Data: data, At: at}, nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, t Topic, since uint64) (*Subscription, error) {
	current, err := b.client.Get(ctx, seqKey(t)).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read seq %s: %w", t.Key(), err)
	}

	var backlog []Event
	reset := false
	lastID := strconv.FormatUint(current, 10) + "-0"
	if since > 0 {
		if since > current {
			reset = true
		}
		oldest, err := b.client.XRangeN(ctx, streamKey(t), "-", "+", 1).Result()
		if err != nil {
			return nil, fmt.Errorf("read stream head %s: %w", t.Key(), err)
		}
		if len(oldest) > 0 {
			if first, ok := parseSeq(oldest[0].ID); ok && first > since+1 {
				reset = true
			}
		}

		msgs, err := b.client.XRange(ctx, streamKey(t), strconv.FormatUint(since+1, 10)+"-0", "+").Result()
		if err != nil {
			return nil, fmt.Errorf("replay %s: %w", t.Key(), err)
		}
		for _, m := range msgs {
			if ev, ok := decodeMessage(t, m); ok {
				backlog = append(backlog, ev)
				lastID = m.ID
			}
		}
	}

	ch := make(chan Event, b.buffer+len(backlog))
	for _, ev := range backlog {
		ch <- ev
	}

	followCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription(ch, cancel)
	sub.Reset = reset
	sub.Head = current

	go b.follow(followCtx, t, lastID, ch, sub)
	return sub, nil
}

func (b *RedisBroker) follow(ctx context.Context, t Topic, lastID string, ch chan<- Event, sub *Subscription) {
	defer close(ch)
	for {
		streams, err := b.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey(t), lastID},
			Count:   100,
			Block:   b.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				sub.Close()
				return
			}
			b.logger.WarnContext(ctx, "live stream read failed", "topic", t.Key(), "error", err)
			sub.closeWith(err)
			return
		}

		for _, s := range streams {
			for _, m := range s.Messages {
				lastID = m.ID
				ev, ok := decodeMessage(t, m)
				if !ok {
					continue
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					sub.Close()
					return
				}
			}
		}
	}
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func parseSeq(id string) (uint64, bool) {
	head, _, _ := strings.Cut(id, "-")
	seq, err := strconv.ParseUint(head, 10, 64)
	return seq, err == nil
}

func decodeMessage(t Topic, m redis.XMessage) (Event, bool) {
	seq, ok := parseSeq(m.ID)
	if !ok {
		return Event{}, false
	}
	data, _ := m.Values["data"].(string)
	ev := Event{Seq: seq, Kind: t.Kind, ReportID: t.ReportID, Data: json.RawMessage(data)}
	if at, ok := m.Values["at"].(string); ok {
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
	}
	return ev, true
}
