package triage

import (
	"sort"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
	"github.com/google/uuid"
)

// Entry is a report together with its derived engagement figures.
type Entry struct {
	models.Report
	UpVotes      int              `json:"up_votes"`
	DownVotes    int              `json:"down_votes"`
	CommentCount int              `json:"comment_count"`
	UserVote     *models.VoteType `json:"user_vote"`
	Score        float64          `json:"trend_score"`
}

// NewEntry derives the trend score for r from its tally.
func NewEntry(r models.Report, t Tally, now time.Time) Entry {
	return Entry{
		Report:       r,
		UpVotes:      t.Up,
		DownVotes:    t.Down,
		CommentCount: t.Comments,
		Score:        TrendScore(t.Up, t.Down, t.Comments, r.CreatedAt, now),
	}
}

type Tab string

const (
	TabAll      Tab = "all"
	TabPublic   Tab = "public"
	TabTrending Tab = "trending"
	TabResolved Tab = "resolved"
)

type SortField string

const (
	SortCreatedAt SortField = "created_at"
	SortTitle     SortField = "title"
	SortStatus    SortField = "status"
	SortPriority  SortField = "priority"
)

// QueryOptions selects and orders reports. Zero values mean "no filter";
// the zero sort is newest first.
type QueryOptions struct {
	Tab       Tab
	Search    string
	Status    models.ReportStatus
	Priority  models.Priority
	CreatorID *uuid.UUID
	SortBy    SortField
	Ascending bool
}

func ParseTab(s string) (Tab, bool) {
	switch Tab(s) {
	case "", TabAll:
		return TabAll, true
	case TabPublic, TabTrending, TabResolved:
		return Tab(s), true
	}
	return "", false
}

func ParseSortField(s string) (SortField, bool) {
	switch SortField(s) {
	case "":
		return SortCreatedAt, true
	case SortCreatedAt, SortTitle, SortStatus, SortPriority:
		return SortField(s), true
	}
	return "", false
}

var priorityRank = map[models.Priority]int{
	models.PriorityLow:      1,
	models.PriorityMedium:   2,
	models.PriorityHigh:     3,
	models.PriorityCritical: 4,
}

var statusRank = map[models.ReportStatus]int{
	models.StatusPending:    1,
	models.StatusInProgress: 2,
	models.StatusResolved:   3,
}

// ApplyQuery scopes by tab, filters by search text, status, priority and
// creator, then sorts. The trending tab keeps its ranking order. The input
// slice is not modified.
func ApplyQuery(entries []Entry, opts QueryOptions, policy TrendingPolicy) []Entry {
	var scoped []Entry
	switch opts.Tab {
	case TabTrending:
		scoped = RankTrending(entries, policy)
	case TabPublic:
		scoped = keep(entries, func(e *Entry) bool { return e.Status != models.StatusResolved })
	case TabResolved:
		scoped = keep(entries, func(e *Entry) bool { return e.Status == models.StatusResolved })
	default:
		scoped = keep(entries, func(*Entry) bool { return true })
	}

	needle := strings.ToLower(strings.TrimSpace(opts.Search))
	result := keep(scoped, func(e *Entry) bool {
		if needle != "" && !matches(e, needle) {
			return false
		}
		if opts.Status != "" && e.Status != opts.Status {
			return false
		}
		if opts.Priority != "" && e.Priority != opts.Priority {
			return false
		}
		if opts.CreatorID != nil && (e.CreatorID == nil || *e.CreatorID != *opts.CreatorID) {
			return false
		}
		return true
	})

	if opts.Tab != TabTrending {
		sortEntries(result, opts.SortBy, opts.Ascending)
	}
	return result
}

func keep(entries []Entry, pred func(*Entry) bool) []Entry {
	out := make([]Entry, 0, len(entries))
	for i := range entries {
		if pred(&entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out
}

func matches(e *Entry, needle string) bool {
	return strings.Contains(strings.ToLower(e.Title), needle) ||
		strings.Contains(strings.ToLower(e.Description), needle) ||
		strings.Contains(strings.ToLower(e.Location), needle)
}

func sortEntries(entries []Entry, by SortField, ascending bool) {
	less := func(a, b *Entry) int {
		switch by {
		case SortTitle:
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case SortStatus:
			return statusRank[a.Status] - statusRank[b.Status]
		case SortPriority:
			return priorityRank[a.Priority] - priorityRank[b.Priority]
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		c := less(&entries[i], &entries[j])
		if ascending {
			return c < 0
		}
		return c > 0
	})
}
