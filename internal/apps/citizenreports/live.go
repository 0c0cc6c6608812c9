package citizenreports

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/live"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/triage"
	"github.com/gofiber/fiber/v2"
)

// cursor is the SSE event id: the last message seq and the last response
// seq the viewer has seen, written as "<message>-<response>".
type cursor struct {
	message  uint64
	response uint64
}

func (c cursor) String() string {
	return strconv.FormatUint(c.message, 10) + "-" + strconv.FormatUint(c.response, 10)
}

func parseCursor(s string) (cursor, bool) {
	m, r, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return cursor{}, false
	}
	msg, err := strconv.ParseUint(m, 10, 64)
	if err != nil {
		return cursor{}, false
	}
	resp, err := strconv.ParseUint(r, 10, 64)
	if err != nil {
		return cursor{}, false
	}
	return cursor{message: msg, response: resp}, true
}

func (c cursor) since(k live.Kind) uint64 {
	if k == live.KindResponse {
		return c.response
	}
	return c.message
}

func (c *cursor) advance(k live.Kind, seq uint64) {
	switch k {
	case live.KindMessage:
		c.message = max(c.message, seq)
	case live.KindResponse:
		c.response = max(c.response, seq)
	}
}

func (c *cursor) set(k live.Kind, seq uint64) {
	if k == live.KindResponse {
		c.response = seq
	} else {
		c.message = seq
	}
}

// startCursor prefers the browser's Last-Event-ID over query parameters.
// "since" seeds every kind; message_since / response_since override it.
func startCursor(c *fiber.Ctx) cursor {
	if cur, ok := parseCursor(c.Get("Last-Event-ID")); ok {
		return cur
	}
	var cur cursor
	if n, err := strconv.ParseUint(c.Query("since"), 10, 64); err == nil {
		cur = cursor{message: n, response: n}
	}
	if n, err := strconv.ParseUint(c.Query("message_since"), 10, 64); err == nil {
		cur.message = n
	}
	if n, err := strconv.ParseUint(c.Query("response_since"), 10, 64); err == nil {
		cur.response = n
	}
	return cur
}

func parseKinds(s string) ([]live.Kind, error) {
	if strings.TrimSpace(s) == "" {
		return []live.Kind{live.KindMessage, live.KindResponse}, nil
	}
	var kinds []live.Kind
	seen := make(map[live.Kind]bool)
	for _, part := range strings.Split(s, ",") {
		k := live.Kind(strings.TrimSpace(strings.ToLower(part)))
		if !k.Valid() {
			return nil, &triage.ValidationError{Field: "kinds", Message: "kinds must be message and/or response"}
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// Live streams new messages and municipal responses for one report as
// Server-Sent Events. The first event is "ready" (or "reset" when the
// requested history is gone); viewers load history after it and drop
// duplicates by id.
func (h *Handler) Live(c *fiber.Ctx) error {
	actor := tenant.GetActor(c)
	id, err := reportID(c)
	if err != nil {
		return badRequest(c, "Invalid report ID")
	}
	kinds, err := parseKinds(c.Query("kinds"))
	if err != nil {
		return fail(c, err)
	}
	if _, err := h.ctrl.GetReport(c.UserContext(), actor, id); err != nil {
		return fail(c, err)
	}

	cur := startCursor(c)
	// The request context is cancelled when the handler returns, before the
	// body is streamed, so the stream hangs off the server's base context.
	ctx, cancel := context.WithCancel(h.base)
	subs := make(map[live.Kind]*live.Subscription, len(kinds))
	reset := false
	for _, k := range kinds {
		topic := live.Topic{AppID: actor.AppID, ReportID: id, Kind: k}
		sub, err := h.broker.Subscribe(ctx, topic, cur.since(k))
		if err != nil {
			cancel()
			closeAll(subs)
			return fail(c, &triage.ChannelError{Op: "subscribe " + string(k), Err: err})
		}
		subs[k] = sub
		reset = reset || sub.Reset
		switch {
		case sub.Reset:
			// Replay is incomplete, so resume from the current head.
			cur.set(k, sub.Head)
		case cur.since(k) == 0:
			cur.advance(k, sub.Head)
		}
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	heartbeat := h.heartbeat
	appID := actor.AppID
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer closeAll(subs)
		if err := streamEvents(ctx, w, subs, cur, reset, heartbeat); err != nil {
			slog.Debug("live stream ended", "app_id", appID, "report_id", id.String(), "reason", err)
		}
	})
	return nil
}

var errResubscribe = errors.New("subscription dropped; client must reconnect")

// streamEvents writes SSE frames until ctx ends, the client goes away (a
// write fails) or a subscription is dropped. In the last case a "reconnect"
// event carries the cursor to resume from.
func streamEvents(ctx context.Context, w *bufio.Writer, subs map[live.Kind]*live.Subscription, cur cursor, reset bool, heartbeat time.Duration) error {
	first := "ready"
	if reset {
		first = "reset"
	}
	head, _ := json.Marshal(map[string]uint64{"message": cur.message, "response": cur.response})
	if err := writeFrame(w, cur.String(), first, head); err != nil {
		return err
	}

	var msgs, resps <-chan live.Event
	if s, ok := subs[live.KindMessage]; ok {
		msgs = s.Events
	}
	if s, ok := subs[live.KindResponse]; ok {
		resps = s.Events
	}

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		var (
			ev live.Event
			ok bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.WriteString(": ping\n\n"); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
			continue
		case ev, ok = <-msgs:
		case ev, ok = <-resps:
		}

		if !ok {
			_ = writeFrame(w, cur.String(), "reconnect", []byte(`{"reason":"subscription dropped"}`))
			return errResubscribe
		}
		cur.advance(ev.Kind, ev.Seq)
		if err := writeFrame(w, cur.String(), string(ev.Kind), ev.Data); err != nil {
			return err
		}
	}
}

func writeFrame(w *bufio.Writer, id, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", id, event, data); err != nil {
		return err
	}
	return w.Flush()
}

func closeAll(subs map[live.Kind]*live.Subscription) {
	for _, s := range subs {
		s.Close()
	}
}
