package live_test

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/live"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type note struct {
	Body string `json:"body"`
}

func drain(sub *live.Subscription, n int) []live.Event {
	out := make([]live.Event, 0, n)
	for i := 0; i < n; i++ {
		var ev live.Event
		Eventually(sub.Events).Should(Receive(&ev))
		out = append(out, ev)
	}
	return out
}

func seqs(events []live.Event) []uint64 {
	out := make([]uint64, len(events))
	for i, ev := range events {
		out[i] = ev.Seq
	}
	return out
}

var _ = Describe("Hub", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		hub    *live.Hub
		topic  live.Topic
	)

	publish := func(t live.Topic, body string) live.Event {
		ev, err := hub.Publish(ctx, t, note{Body: body})
		Expect(err).NotTo(HaveOccurred())
		return ev
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		hub = live.NewHub(5)
		topic = live.Topic{AppID: "springfield", ReportID: uuid.New(), Kind: live.KindMessage}
	})

	AfterEach(func() {
		cancel()
		Expect(hub.Close()).To(Succeed())
	})

	It("numbers events per topic starting at 1", func() {
		other := live.Topic{AppID: topic.AppID, ReportID: topic.ReportID, Kind: live.KindResponse}

		Expect(publish(topic, "a").Seq).To(Equal(uint64(1)))
		Expect(publish(topic, "b").Seq).To(Equal(uint64(2)))
		Expect(publish(other, "c").Seq).To(Equal(uint64(1)))

		ev := publish(other, "d")
		Expect(ev.Kind).To(Equal(live.KindResponse))
		Expect(ev.ReportID).To(Equal(topic.ReportID))
		var n note
		Expect(json.Unmarshal(ev.Data, &n)).To(Succeed())
		Expect(n.Body).To(Equal("d"))
	})

	It("delivers only new events to a live-only subscriber", func() {
		publish(topic, "old")
		sub, err := hub.Subscribe(ctx, topic, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Reset).To(BeFalse())
		Expect(sub.Head).To(Equal(uint64(1)))

		publish(topic, "new")
		Expect(seqs(drain(sub, 1))).To(Equal([]uint64{2}))
		Consistently(sub.Events).ShouldNot(Receive())
	})

	It("replays retained events after the given seq", func() {
		for _, b := range []string{"a", "b", "c", "d"} {
			publish(topic, b)
		}
		sub, err := hub.Subscribe(ctx, topic, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Reset).To(BeFalse())
		Expect(sub.Head).To(Equal(uint64(4)))

		publish(topic, "e")
		Expect(seqs(drain(sub, 3))).To(Equal([]uint64{3, 4, 5}))
	})

	It("flags a reset when the requested history fell out of retention", func() {
		for i := 0; i < 8; i++ {
			publish(topic, "x")
		}
		sub, err := hub.Subscribe(ctx, topic, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Reset).To(BeTrue())
		Expect(seqs(drain(sub, 5))).To(Equal([]uint64{4, 5, 6, 7, 8}))
	})

	It("flags a reset when the viewer is ahead of the stream", func() {
		publish(topic, "x")
		sub, err := hub.Subscribe(ctx, topic, 40)
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Reset).To(BeTrue())
		Expect(sub.Head).To(Equal(uint64(1)))
	})

	It("keeps tenants apart", func() {
		sub, err := hub.Subscribe(ctx, topic, 0)
		Expect(err).NotTo(HaveOccurred())

		foreign := live.Topic{AppID: "shelbyville", ReportID: topic.ReportID, Kind: topic.Kind}
		publish(foreign, "not yours")
		Consistently(sub.Events).ShouldNot(Receive())
	})

	It("drops a subscriber that stops reading", func() {
		sub, err := hub.Subscribe(ctx, topic, 0)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 100; i++ {
			publish(topic, "flood")
		}
		Eventually(sub.Done()).Should(BeClosed())
		Expect(sub.Err()).To(MatchError(live.ErrSlowConsumer))
		Expect(hub.Subscribers(topic)).To(BeZero())

		received := 0
		for range sub.Events {
			received++
		}
		Expect(received).To(BeNumerically("<", 100))
	})

	It("unsubscribes when the viewer's context ends", func() {
		subCtx, subCancel := context.WithCancel(ctx)
		sub, err := hub.Subscribe(subCtx, topic, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(hub.Subscribers(topic)).To(Equal(1))

		subCancel()
		Eventually(sub.Events).Should(BeClosed())
		Expect(sub.Err()).NotTo(HaveOccurred())
		Expect(hub.Subscribers(topic)).To(BeZero())
	})

	It("ends every subscription on Close", func() {
		sub, err := hub.Subscribe(ctx, topic, 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(hub.Close()).To(Succeed())
		Eventually(sub.Events).Should(BeClosed())
		Expect(sub.Err()).To(MatchError(live.ErrClosed))

		_, err = hub.Publish(ctx, topic, note{})
		Expect(err).To(MatchError(live.ErrClosed))
		_, err = hub.Subscribe(ctx, topic, 0)
		Expect(err).To(MatchError(live.ErrClosed))
	})

	It("forgets unwatched topics once they have been idle", func() {
		hub.WithIdleTTL(20 * time.Millisecond)
		watched := live.Topic{AppID: topic.AppID, ReportID: uuid.New(), Kind: live.KindMessage}

		publish(topic, "a")
		publish(watched, "b")
		_, err := hub.Subscribe(ctx, watched, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(hub.Topics()).To(Equal(2))

		time.Sleep(30 * time.Millisecond)
		Expect(hub.Prune()).To(Equal(1))
		Expect(hub.Topics()).To(Equal(1))
		Expect(hub.Subscribers(watched)).To(Equal(1))

		// The dropped topic starts over; an old cursor now asks for a reset.
		sub, err := hub.Subscribe(ctx, topic, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Reset).To(BeTrue())
		Expect(publish(topic, "c").Seq).To(Equal(uint64(1)))
	})
})
