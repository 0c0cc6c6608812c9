package triage_test

import (
	"context"
	"errors"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/triage"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("TallyCache", func() {
	var (
		cache  *triage.TallyCache
		ctx    context.Context
		a, b   uuid.UUID
		calls  int
		asked  [][]uuid.UUID
		values map[uuid.UUID]triage.Tally
		loader triage.TallyLoader
	)

	BeforeEach(func() {
		cache = triage.NewTallyCache()
		ctx = context.Background()
		a, b = uuid.New(), uuid.New()
		calls = 0
		asked = nil
		values = map[uuid.UUID]triage.Tally{a: {Up: 2, Comments: 1}}
		loader = func(_ context.Context, _ string, ids []uuid.UUID) (map[uuid.UUID]triage.Tally, error) {
			calls++
			asked = append(asked, ids)
			out := make(map[uuid.UUID]triage.Tally)
			for _, id := range ids {
				if t, ok := values[id]; ok {
					out[id] = t
				}
			}
			return out, nil
		}
	})

	It("loads missing tallies once and serves repeats from memory", func() {
		got, err := cache.Get(ctx, "city", []uuid.UUID{a, b}, loader)
		Expect(err).NotTo(HaveOccurred())
		Expect(got[a]).To(Equal(triage.Tally{Up: 2, Comments: 1}))
		Expect(got).To(HaveKeyWithValue(b, triage.Tally{}))

		_, err = cache.Get(ctx, "city", []uuid.UUID{a, b}, loader)
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(1))
	})

	It("reloads only the invalidated report", func() {
		_, _ = cache.Get(ctx, "city", []uuid.UUID{a, b}, loader)
		values[a] = triage.Tally{Up: 3, Comments: 1}
		cache.Invalidate("city", a)

		got, err := cache.Get(ctx, "city", []uuid.UUID{a, b}, loader)
		Expect(err).NotTo(HaveOccurred())
		Expect(got[a].Up).To(Equal(3))
		Expect(calls).To(Equal(2))
		Expect(asked[1]).To(ConsistOf(a))
	})

	It("keeps tenants apart", func() {
		_, _ = cache.Get(ctx, "city", []uuid.UUID{a}, loader)
		_, _ = cache.Get(ctx, "town", []uuid.UUID{a}, loader)
		Expect(calls).To(Equal(2))
	})

	It("does not store a fill that raced with a write", func() {
		racing := func(ctx context.Context, appID string, ids []uuid.UUID) (map[uuid.UUID]triage.Tally, error) {
			out, err := loader(ctx, appID, ids)
			// A vote lands while the counts are being read.
			cache.Invalidate(appID, a)
			return out, err
		}
		_, err := cache.Get(ctx, "city", []uuid.UUID{a}, racing)
		Expect(err).NotTo(HaveOccurred())

		_, err = cache.Get(ctx, "city", []uuid.UUID{a}, loader)
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(2))
	})

	It("never lets a read after a write reuse a fill that started before it", func() {
		started, release := make(chan struct{}), make(chan struct{})
		before := func(context.Context, string, []uuid.UUID) (map[uuid.UUID]triage.Tally, error) {
			close(started)
			<-release
			return map[uuid.UUID]triage.Tally{a: {Up: 0}}, nil
		}
		after := func(context.Context, string, []uuid.UUID) (map[uuid.UUID]triage.Tally, error) {
			return map[uuid.UUID]triage.Tally{a: {Up: 1}}, nil
		}

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			got, err := cache.Get(ctx, "city", []uuid.UUID{a}, before)
			Expect(err).NotTo(HaveOccurred())
			Expect(got[a].Up).To(Equal(0))
		}()
		Eventually(started).Should(BeClosed())

		// A vote lands while the first fill is still reading.
		cache.Invalidate("city", a)
		got, err := cache.Get(ctx, "city", []uuid.UUID{a}, after)
		Expect(err).NotTo(HaveOccurred())
		Expect(got[a].Up).To(Equal(1))

		close(release)
		Eventually(done).Should(BeClosed())

		got, err = cache.Get(ctx, "city", []uuid.UUID{a}, loader)
		Expect(err).NotTo(HaveOccurred())
		Expect(got[a].Up).To(Equal(1))
		Expect(calls).To(BeZero())
	})

	It("surfaces loader errors without caching", func() {
		boom := errors.New("boom")
		_, err := cache.Get(ctx, "city", []uuid.UUID{a}, func(context.Context, string, []uuid.UUID) (map[uuid.UUID]triage.Tally, error) {
			return nil, boom
		})
		Expect(err).To(MatchError(boom))

		_, err = cache.Get(ctx, "city", []uuid.UUID{a}, loader)
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(1))
	})
})
