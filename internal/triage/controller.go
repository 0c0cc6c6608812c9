package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/live"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/logging"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
	"github.com/google/uuid"
)

const (
	maxTitleLen = 255
	maxBodyLen  = 5000
)

// Actor is the identity a request runs as. UserID is nil for anonymous
// callers; Government marks municipal staff.
type Actor struct {
	AppID      string
	UserID     *uuid.UUID
	Government bool
}

func (a Actor) Authenticated() bool {
	return a.UserID != nil && *a.UserID != uuid.Nil
}

// Publisher is the write side of the live update channel.
type Publisher interface {
	Publish(ctx context.Context, topic live.Topic, payload any) (live.Event, error)
}

type Options struct {
	Policy       TrendingPolicy
	Location     *time.Location
	Clock        func() time.Time
	RetryBackoff time.Duration
	Cache        *TallyCache
}

// Controller is the only writer of reports and their engagement rows, and
// the entry point for the read-side views derived from them.
type Controller struct {
	store   Store
	pub     Publisher
	cache   *TallyCache
	locks   *rowLocks
	policy  TrendingPolicy
	loc     *time.Location
	now     func() time.Time
	backoff time.Duration
}

func NewController(store Store, pub Publisher, opts Options) *Controller {
	c := &Controller{
		store:   store,
		pub:     pub,
		cache:   opts.Cache,
		locks:   newRowLocks(),
		policy:  opts.Policy,
		loc:     opts.Location,
		now:     opts.Clock,
		backoff: opts.RetryBackoff,
	}
	if c.cache == nil {
		c.cache = NewTallyCache()
	}
	if c.policy.Min == 0 && c.policy.Fraction == 0 {
		c.policy = DefaultTrendingPolicy()
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.backoff == 0 {
		c.backoff = 100 * time.Millisecond
	}
	return c
}

type CreateReportInput struct {
	Title       string
	Description string
	Location    string
	ImageURL    string
	Priority    models.Priority
}

// CreateReport files a new pending, unassigned report. Anonymous actors are
// allowed; the creator is then left empty.
func (c *Controller) CreateReport(ctx context.Context, actor Actor, in CreateReportInput) (*models.Report, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title", "title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return nil, invalid("title", fmt.Sprintf("title must be at most %d characters", maxTitleLen))
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return nil, invalid("priority", "priority must be one of low, medium, high, critical")
	}

	report := &models.Report{
		ID:          uuid.New(),
		AppID:       actor.AppID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		ImageURL:    in.ImageURL,
		Status:      models.StatusPending,
		Priority:    in.Priority,
		CreatedAt:   c.now(),
	}
	if actor.Authenticated() {
		id := *actor.UserID
		report.CreatorID = &id
	}

	if err := c.store.CreateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	slog.InfoContext(c.logCtx(ctx, actor, report.ID), "report created", "priority", report.Priority)
	return report, nil
}

// CastVote records the actor's vote, replacing any earlier vote of theirs on
// the same report, and returns the fresh tally.
func (c *Controller) CastVote(ctx context.Context, actor Actor, reportID uuid.UUID, voteType models.VoteType) (VoteSummary, error) {
	if !actor.Authenticated() {
		return VoteSummary{}, ErrNotAuthenticated
	}
	if !voteType.Valid() {
		return VoteSummary{}, invalid("vote_type", "vote_type must be up or down")
	}
	if _, err := c.GetReport(ctx, actor, reportID); err != nil {
		return VoteSummary{}, err
	}

	vote := &models.Vote{
		AppID:    actor.AppID,
		ReportID: reportID,
		VoterID:  *actor.UserID,
		VoteType: voteType,
	}
	if err := c.upsertVote(ctx, vote); err != nil {
		return VoteSummary{}, fmt.Errorf("cast vote: %w", err)
	}
	c.cache.Invalidate(actor.AppID, reportID)

	votes, err := c.store.ListVotes(ctx, actor.AppID, reportID)
	if err != nil {
		// The vote is stored; report the caller's own choice at least.
		slog.WarnContext(c.logCtx(ctx, actor, reportID), "vote tally read failed", "error", err)
		return VoteSummary{UserVote: &voteType}, nil
	}
	return AggregateVotes(votes, actor.UserID), nil
}

// upsertVote never retries blindly: after a transient failure it first reads
// back the current vote, since the failed write may have landed.
func (c *Controller) upsertVote(ctx context.Context, vote *models.Vote) error {
	err := c.store.UpsertVote(ctx, vote)
	if err == nil || !IsTransient(err) {
		return err
	}

	if err := c.sleep(ctx); err != nil {
		return err
	}
	current, readErr := c.store.GetVote(ctx, vote.AppID, vote.ReportID, vote.VoterID)
	if readErr != nil {
		return err
	}
	if current != nil && current.VoteType == vote.VoteType {
		return nil
	}
	return c.store.UpsertVote(ctx, vote)
}

// PostComment adds a comment that counts toward the trend score.
func (c *Controller) PostComment(ctx context.Context, actor Actor, reportID uuid.UUID, body string) (*models.Comment, error) {
	if !actor.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	body, err := validBody(body)
	if err != nil {
		return nil, err
	}
	if _, err := c.GetReport(ctx, actor, reportID); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		ID:        uuid.New(),
		AppID:     actor.AppID,
		ReportID:  reportID,
		AuthorID:  *actor.UserID,
		Body:      body,
		CreatedAt: c.now(),
	}
	if err := c.store.CreateComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("post comment: %w", err)
	}
	c.cache.Invalidate(actor.AppID, reportID)
	return comment, nil
}

// PostMessage appends a discussion message and pushes it to live viewers.
func (c *Controller) PostMessage(ctx context.Context, actor Actor, reportID uuid.UUID, body string) (*models.Message, error) {
	if !actor.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	body, err := validBody(body)
	if err != nil {
		return nil, err
	}
	if _, err := c.GetReport(ctx, actor, reportID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:        uuid.New(),
		AppID:     actor.AppID,
		ReportID:  reportID,
		AuthorID:  *actor.UserID,
		Body:      body,
		CreatedAt: c.now(),
	}
	if err := c.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("post message: %w", err)
	}

	c.publish(ctx, actor, live.Topic{AppID: actor.AppID, ReportID: reportID, Kind: live.KindMessage}, msg)
	return msg, nil
}

type ResponseInput struct {
	Message       string
	AfterImageURL string
}

// PostResponse appends an official municipal update and pushes it to live
// viewers. Only government actors may respond.
func (c *Controller) PostResponse(ctx context.Context, actor Actor, reportID uuid.UUID, in ResponseInput) (*models.MunicipalityResponse, error) {
	if !actor.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if !actor.Government {
		return nil, ErrForbidden
	}
	if utf8.RuneCountInString(in.Message) > maxBodyLen {
		return nil, invalid("message", fmt.Sprintf("message must be at most %d characters", maxBodyLen))
	}
	if _, err := c.GetReport(ctx, actor, reportID); err != nil {
		return nil, err
	}

	resp := &models.MunicipalityResponse{
		ID:            uuid.New(),
		AppID:         actor.AppID,
		ReportID:      reportID,
		AuthorID:      *actor.UserID,
		Message:       strings.TrimSpace(in.Message),
		AfterImageURL: in.AfterImageURL,
		CreatedAt:     c.now(),
	}
	if err := c.store.CreateResponse(ctx, resp); err != nil {
		return nil, fmt.Errorf("post response: %w", err)
	}

	c.publish(ctx, actor, live.Topic{AppID: actor.AppID, ReportID: reportID, Kind: live.KindResponse}, resp)
	return resp, nil
}

// TransitionStatus moves a report along pending -> in_progress -> resolved
// (or pending -> resolved). Resolving stamps the resolution date.
func (c *Controller) TransitionStatus(ctx context.Context, actor Actor, reportID uuid.UUID, to models.ReportStatus) (*models.Report, error) {
	if !actor.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if !actor.Government {
		return nil, ErrForbidden
	}
	if !to.Valid() {
		return nil, invalid("status", "status must be one of pending, in_progress, resolved")
	}

	unlock := c.locks.lock(reportID)
	defer unlock()

	report, err := c.store.GetReport(ctx, actor.AppID, reportID)
	if err != nil {
		return nil, err
	}
	if err := ValidateTransition(report.Status, to); err != nil {
		return nil, err
	}

	var resolvedAt *time.Time
	if to == models.StatusResolved {
		now := c.now()
		resolvedAt = &now
	}

	changed, err := c.store.UpdateStatus(ctx, actor.AppID, reportID, report.Status, to, resolvedAt)
	if err != nil {
		return nil, fmt.Errorf("transition status: %w", err)
	}
	if !changed {
		// Another instance moved the report first; judge the edge again.
		latest, err := c.store.GetReport(ctx, actor.AppID, reportID)
		if err != nil {
			return nil, err
		}
		return nil, &TransitionError{From: latest.Status, To: to}
	}

	from := report.Status
	report.Status = to
	report.ResolutionDate = resolvedAt
	slog.InfoContext(c.logCtx(ctx, actor, reportID), "report status changed", "from", from, "to", to)
	return report, nil
}

// AssignReport sets the staff member handling a report. It leaves the status
// untouched and is refused once the report is resolved.
func (c *Controller) AssignReport(ctx context.Context, actor Actor, reportID, assignee uuid.UUID) (*models.Report, error) {
	if !actor.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if !actor.Government {
		return nil, ErrForbidden
	}
	if assignee == uuid.Nil {
		return nil, invalid("assignee_id", "assignee_id is required")
	}

	unlock := c.locks.lock(reportID)
	defer unlock()

	report, err := c.store.GetReport(ctx, actor.AppID, reportID)
	if err != nil {
		return nil, err
	}
	if report.Status == models.StatusResolved {
		return nil, fmt.Errorf("%w: resolved reports cannot be reassigned", ErrInvalidTransition)
	}

	changed, err := c.store.SetAssignee(ctx, actor.AppID, reportID, assignee)
	if err != nil {
		return nil, fmt.Errorf("assign report: %w", err)
	}
	if !changed {
		return nil, fmt.Errorf("%w: report was resolved concurrently", ErrInvalidTransition)
	}

	report.AssigneeID = &assignee
	slog.InfoContext(c.logCtx(ctx, actor, reportID), "report assigned", "assignee_id", assignee.String())
	return report, nil
}

func (c *Controller) GetReport(ctx context.Context, actor Actor, reportID uuid.UUID) (*models.Report, error) {
	return retryRead(ctx, c, func() (*models.Report, error) {
		return c.store.GetReport(ctx, actor.AppID, reportID)
	})
}

// Detail returns one report with its live vote tally, the caller's vote and
// its trend score.
func (c *Controller) Detail(ctx context.Context, actor Actor, reportID uuid.UUID) (*Entry, error) {
	report, err := c.GetReport(ctx, actor, reportID)
	if err != nil {
		return nil, err
	}
	votes, err := retryRead(ctx, c, func() ([]models.Vote, error) {
		return c.store.ListVotes(ctx, actor.AppID, reportID)
	})
	if err != nil {
		return nil, err
	}
	comments, err := retryRead(ctx, c, func() (int, error) {
		return c.store.CountComments(ctx, actor.AppID, reportID)
	})
	if err != nil {
		return nil, err
	}

	summary := AggregateVotes(votes, actor.UserID)
	entry := NewEntry(*report, Tally{Up: summary.UpVotes, Down: summary.DownVotes, Comments: comments}, c.now())
	entry.UserVote = summary.UserVote
	return &entry, nil
}

func (c *Controller) ListMessages(ctx context.Context, actor Actor, reportID uuid.UUID) ([]models.Message, error) {
	if _, err := c.GetReport(ctx, actor, reportID); err != nil {
		return nil, err
	}
	return retryRead(ctx, c, func() ([]models.Message, error) {
		return c.store.ListMessages(ctx, actor.AppID, reportID)
	})
}

func (c *Controller) ListResponses(ctx context.Context, actor Actor, reportID uuid.UUID) ([]models.MunicipalityResponse, error) {
	if _, err := c.GetReport(ctx, actor, reportID); err != nil {
		return nil, err
	}
	return retryRead(ctx, c, func() ([]models.MunicipalityResponse, error) {
		return c.store.ListResponses(ctx, actor.AppID, reportID)
	})
}

// Query returns the tenant's reports selected and ordered by opts, each
// with its tally, trend score and (for signed-in callers) their own vote.
func (c *Controller) Query(ctx context.Context, actor Actor, opts QueryOptions) ([]Entry, error) {
	reports, err := retryRead(ctx, c, func() ([]models.Report, error) {
		return c.store.ListReports(ctx, actor.AppID)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(reports))
	for i := range reports {
		ids[i] = reports[i].ID
	}
	tallies, err := c.cache.Get(ctx, actor.AppID, ids, func(ctx context.Context, appID string, missing []uuid.UUID) (map[uuid.UUID]Tally, error) {
		return retryRead(ctx, c, func() (map[uuid.UUID]Tally, error) {
			return c.store.Tallies(ctx, appID, missing)
		})
	})
	if err != nil {
		return nil, err
	}

	var own map[uuid.UUID]models.VoteType
	if actor.Authenticated() {
		own, err = retryRead(ctx, c, func() (map[uuid.UUID]models.VoteType, error) {
			return c.store.UserVotes(ctx, actor.AppID, *actor.UserID)
		})
		if err != nil {
			return nil, err
		}
	}

	now := c.now()
	entries := make([]Entry, len(reports))
	for i := range reports {
		entries[i] = NewEntry(reports[i], tallies[reports[i].ID], now)
		if vt, ok := own[reports[i].ID]; ok {
			entries[i].UserVote = &vt
		}
	}
	return ApplyQuery(entries, opts, c.policy), nil
}

// Stats computes queue counters for the tenant. Stats are advisory: a
// storage failure yields zeroed, Degraded stats instead of an error.
func (c *Controller) Stats(ctx context.Context, appID string) Stats {
	reports, err := retryRead(ctx, c, func() ([]models.Report, error) {
		return c.store.ListReports(ctx, appID)
	})
	if err != nil {
		ctx = logging.WithFields(ctx, logging.Fields{AppID: appID, Component: "triage.stats"})
		slog.ErrorContext(ctx, "stats degraded", "error", err)
		return Stats{Degraded: true}
	}
	return ComputeStats(reports, c.now(), c.loc)
}

// publish pushes a freshly written row to live viewers. Failures are logged
// only: the row is already stored and viewers can re-fetch.
func (c *Controller) publish(ctx context.Context, actor Actor, topic live.Topic, payload any) {
	if c.pub == nil {
		return
	}
	if _, err := c.pub.Publish(ctx, topic, payload); err != nil {
		chErr := &ChannelError{Op: "publish " + string(topic.Kind), Err: err}
		slog.WarnContext(c.logCtx(ctx, actor, topic.ReportID), "live update not delivered", "error", chErr)
	}
}

func (c *Controller) logCtx(ctx context.Context, actor Actor, reportID uuid.UUID) context.Context {
	f := logging.Fields{AppID: actor.AppID, ReportID: reportID.String(), Component: "triage.controller"}
	if actor.Authenticated() {
		f.ActorID = actor.UserID.String()
	}
	return logging.WithFields(ctx, f)
}

func (c *Controller) sleep(ctx context.Context) error {
	t := time.NewTimer(c.backoff)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryRead runs a read once more after a transient storage failure.
func retryRead[T any](ctx context.Context, c *Controller, fn func() (T, error)) (T, error) {
	v, err := fn()
	if err == nil || !IsTransient(err) {
		return v, err
	}
	if sleepErr := c.sleep(ctx); sleepErr != nil {
		return v, errors.Join(err, sleepErr)
	}
	return fn()
}

func validBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", invalid("body", "body is required")
	}
	if utf8.RuneCountInString(body) > maxBodyLen {
		return "", invalid("body", fmt.Sprintf("body must be at most %d characters", maxBodyLen))
	}
	return body, nil
}
