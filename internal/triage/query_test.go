package triage_test

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/triage"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func titles(entries []triage.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Title
	}
	return out
}

var _ = Describe("ApplyQuery", func() {
	var (
		now     time.Time
		creator uuid.UUID
		entries []triage.Entry
		policy  triage.TrendingPolicy
	)

	BeforeEach(func() {
		now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		creator = uuid.New()
		policy = triage.DefaultTrendingPolicy()
		mk := func(title, desc, loc string, status models.ReportStatus, prio models.Priority, age time.Duration, score float64) triage.Entry {
			return triage.Entry{
				Report: models.Report{
					ID: uuid.New(), Title: title, Description: desc, Location: loc,
					Status: status, Priority: prio, CreatedAt: now.Add(-age),
				},
				Score: score,
			}
		}
		entries = []triage.Entry{
			mk("Illegal dumping", "Tyres behind the school", "Elm Street", models.StatusPending, models.PriorityHigh, 5*time.Hour, 2),
			mk("Broken bin", "Lid missing", "Harbour Road", models.StatusInProgress, models.PriorityLow, 3*time.Hour, 0),
			mk("Oil spill", "Slick near the pier", "Harbour Road", models.StatusResolved, models.PriorityCritical, 9*time.Hour, 5),
			mk("Graffiti", "", "Market square", models.StatusPending, "", 1*time.Hour, -1),
		}
		entries[0].CreatorID = &creator
	})

	It("defaults to every report, newest first", func() {
		Expect(titles(triage.ApplyQuery(entries, triage.QueryOptions{}, policy))).To(Equal(
			[]string{"Graffiti", "Broken bin", "Illegal dumping", "Oil spill"}))
	})

	It("does not reorder the caller's slice", func() {
		triage.ApplyQuery(entries, triage.QueryOptions{}, policy)
		Expect(entries[0].Title).To(Equal("Illegal dumping"))
	})

	DescribeTable("tabs",
		func(tab triage.Tab, want []string) {
			Expect(titles(triage.ApplyQuery(entries, triage.QueryOptions{Tab: tab}, policy))).To(Equal(want))
		},
		Entry("public hides resolved", triage.TabPublic, []string{"Graffiti", "Broken bin", "Illegal dumping"}),
		Entry("resolved only", triage.TabResolved, []string{"Oil spill"}),
		Entry("trending keeps ranking order", triage.TabTrending, []string{"Oil spill", "Illegal dumping"}),
	)

	DescribeTable("search is case-insensitive over title, description and location",
		func(search string, want []string) {
			Expect(titles(triage.ApplyQuery(entries, triage.QueryOptions{Search: search}, policy))).To(Equal(want))
		},
		Entry("title", "DUMPING", []string{"Illegal dumping"}),
		Entry("description", "pier", []string{"Oil spill"}),
		Entry("location", "harbour", []string{"Broken bin", "Oil spill"}),
		Entry("surrounding whitespace", "  graffiti ", []string{"Graffiti"}),
		Entry("no match", "asbestos", []string{}),
	)

	It("filters by status, priority and creator", func() {
		Expect(titles(triage.ApplyQuery(entries, triage.QueryOptions{Status: models.StatusPending}, policy))).To(
			Equal([]string{"Graffiti", "Illegal dumping"}))
		Expect(titles(triage.ApplyQuery(entries, triage.QueryOptions{Priority: models.PriorityCritical}, policy))).To(
			Equal([]string{"Oil spill"}))
		Expect(titles(triage.ApplyQuery(entries, triage.QueryOptions{CreatorID: &creator}, policy))).To(
			Equal([]string{"Illegal dumping"}))
	})

	It("combines tab, search and filters", func() {
		opts := triage.QueryOptions{Tab: triage.TabPublic, Search: "harbour"}
		Expect(titles(triage.ApplyQuery(entries, opts, policy))).To(Equal([]string{"Broken bin"}))
	})

	DescribeTable("sorting",
		func(by triage.SortField, asc bool, want []string) {
			opts := triage.QueryOptions{SortBy: by, Ascending: asc}
			Expect(titles(triage.ApplyQuery(entries, opts, policy))).To(Equal(want))
		},
		Entry("created_at ascending", triage.SortCreatedAt, true,
			[]string{"Oil spill", "Illegal dumping", "Broken bin", "Graffiti"}),
		Entry("title ascending", triage.SortTitle, true,
			[]string{"Broken bin", "Graffiti", "Illegal dumping", "Oil spill"}),
		Entry("status follows the lifecycle", triage.SortStatus, true,
			[]string{"Illegal dumping", "Graffiti", "Broken bin", "Oil spill"}),
		Entry("priority descending, unset last", triage.SortPriority, false,
			[]string{"Oil spill", "Illegal dumping", "Broken bin", "Graffiti"}),
	)
})

var _ = Describe("query parameter parsing", func() {
	DescribeTable("ParseTab",
		func(in string, want triage.Tab, ok bool) {
			got, gotOK := triage.ParseTab(in)
			Expect(gotOK).To(Equal(ok))
			Expect(got).To(Equal(want))
		},
		Entry("empty means all", "", triage.TabAll, true),
		Entry("trending", "trending", triage.TabTrending, true),
		Entry("unknown", "hot", triage.Tab(""), false),
	)

	DescribeTable("ParseSortField",
		func(in string, want triage.SortField, ok bool) {
			got, gotOK := triage.ParseSortField(in)
			Expect(gotOK).To(Equal(ok))
			Expect(got).To(Equal(want))
		},
		Entry("empty means created_at", "", triage.SortCreatedAt, true),
		Entry("priority", "priority", triage.SortPriority, true),
		Entry("unknown", "votes", triage.SortField(""), false),
	)
})
