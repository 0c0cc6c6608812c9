package citizenreports

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/live"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/media"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/triage"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type HandlerOptions struct {
	Base      context.Context
	Heartbeat time.Duration
}

type Handler struct {
	ctrl      *triage.Controller
	broker    live.Broker
	media     media.Store
	base      context.Context
	heartbeat time.Duration
}

func NewHandler(ctrl *triage.Controller, broker live.Broker, store media.Store, opts HandlerOptions) *Handler {
	h := &Handler{
		ctrl:      ctrl,
		broker:    broker,
		media:     store,
		base:      opts.Base,
		heartbeat: opts.Heartbeat,
	}
	if h.base == nil {
		h.base = context.Background()
	}
	if h.heartbeat <= 0 {
		h.heartbeat = 25 * time.Second
	}
	return h
}

func (h *Handler) CreateReport(c *fiber.Ctx) error {
	actor := tenant.GetActor(c)
	var req dto.CreateReportRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	var uploaded string
	if file, err := c.FormFile("image"); err == nil {
		if uploaded, err = h.upload(c, actor.AppID, file); err != nil {
			return fail(c, err)
		}
		req.ImageURL = uploaded
	}

	report, err := h.ctrl.CreateReport(c.UserContext(), actor, triage.CreateReportInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		ImageURL:    req.ImageURL,
		Priority:    models.Priority(strings.ToLower(req.Priority)),
	})
	if err != nil {
		h.discard(c, uploaded)
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(report)
}

func (h *Handler) ListReports(c *fiber.Ctx) error {
	actor := tenant.GetActor(c)
	opts, err := parseQuery(c, actor)
	if err != nil {
		return fail(c, err)
	}

	entries, err := h.ctrl.Query(c.UserContext(), actor, opts)
	if err != nil {
		return fail(c, err)
	}

	page := max(c.QueryInt("page", 1), 1)
	limit := c.QueryInt("limit", defaultPageSize)
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	start := min((page-1)*limit, len(entries))
	end := min(start+limit, len(entries))

	return c.JSON(dto.ReportListResponse{
		Reports: entries[start:end],
		Total:   len(entries),
		Page:    page,
		Limit:   limit,
	})
}

func (h *Handler) Trending(c *fiber.Ctx) error {
	actor := tenant.GetActor(c)
	entries, err := h.ctrl.Query(c.UserContext(), actor, triage.QueryOptions{Tab: triage.TabTrending})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"reports": entries})
}

func (h *Handler) Stats(c *fiber.Ctx) error {
	return c.JSON(h.ctrl.Stats(c.UserContext(), tenant.GetAppID(c)))
}

func (h *Handler) GetReport(c *fiber.Ctx) error {
	id, err := reportID(c)
	if err != nil {
		return badRequest(c, "Invalid report ID")
	}
	entry, err := h.ctrl.Detail(c.UserContext(), tenant.GetActor(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(entry)
}

func (h *Handler) Vote(c *fiber.Ctx) error {
	id, err := reportID(c)
	if err != nil {
		return badRequest(c, "Invalid report ID")
	}
	var req dto.VoteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	summary, err := h.ctrl.CastVote(c.UserContext(), tenant.GetActor(c), id, models.VoteType(strings.ToLower(req.VoteType)))
	if err != nil {
		return fail(c, err)
	}

	resp := dto.VoteResponse{ReportID: id, UpVotes: summary.UpVotes, DownVotes: summary.DownVotes}
	if summary.UserVote != nil {
		v := string(*summary.UserVote)
		resp.UserVote = &v
	}
	return c.JSON(resp)
}

func (h *Handler) PostComment(c *fiber.Ctx) error {
	id, err := reportID(c)
	if err != nil {
		return badRequest(c, "Invalid report ID")
	}
	var req dto.BodyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	comment, err := h.ctrl.PostComment(c.UserContext(), tenant.GetActor(c), id, req.Body)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

func (h *Handler) ListMessages(c *fiber.Ctx) error {
	id, err := reportID(c)
	if err != nil {
		return badRequest(c, "Invalid report ID")
	}
	msgs, err := h.ctrl.ListMessages(c.UserContext(), tenant.GetActor(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

func (h *Handler) PostMessage(c *fiber.Ctx) error {
	id, err := reportID(c)
	if err != nil {
		return badRequest(c, "Invalid report ID")
	}
	var req dto.BodyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	msg, err := h.ctrl.PostMessage(c.UserContext(), tenant.GetActor(c), id, req.Body)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *Handler) ListResponses(c *fiber.Ctx) error {
	id, err := reportID(c)
	if err != nil {
		return badRequest(c, "Invalid report ID")
	}
	resps, err := h.ctrl.ListResponses(c.UserContext(), tenant.GetActor(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"responses": resps})
}

func (h *Handler) PostResponse(c *fiber.Ctx) error {
	actor := tenant.GetActor(c)
	id, err := reportID(c)
	if err != nil {
		return badRequest(c, "Invalid report ID")
	}
	var req dto.ResponseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	var uploaded string
	if file, err := c.FormFile("after_image"); err == nil {
		if uploaded, err = h.upload(c, actor.AppID, file); err != nil {
			return fail(c, err)
		}
		req.AfterImageURL = uploaded
	}

	resp, err := h.ctrl.PostResponse(c.UserContext(), actor, id, triage.ResponseInput{
		Message:       req.Message,
		AfterImageURL: req.AfterImageURL,
	})
	if err != nil {
		h.discard(c, uploaded)
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	id, err := reportID(c)
	if err != nil {
		return badRequest(c, "Invalid report ID")
	}
	var req dto.StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	report, err := h.ctrl.TransitionStatus(c.UserContext(), tenant.GetActor(c), id, models.ReportStatus(strings.ToLower(req.Status)))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(report)
}

func (h *Handler) Assign(c *fiber.Ctx) error {
	id, err := reportID(c)
	if err != nil {
		return badRequest(c, "Invalid report ID")
	}
	var req dto.AssigneeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	assignee, err := uuid.Parse(req.AssigneeID)
	if err != nil {
		return badRequest(c, "Invalid assignee ID")
	}

	report, err := h.ctrl.AssignReport(c.UserContext(), tenant.GetActor(c), id, assignee)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(report)
}

func (h *Handler) upload(c *fiber.Ctx, appID string, file *multipart.FileHeader) (string, error) {
	f, err := file.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return h.media.Save(c.UserContext(), appID, file.Filename, f)
}

// discard removes an image uploaded for a write that did not happen. Only
// refs saved by this request are passed in.
func (h *Handler) discard(c *fiber.Ctx, ref string) {
	if ref == "" {
		return
	}
	if err := h.media.Delete(context.WithoutCancel(c.UserContext()), ref); err != nil {
		slog.WarnContext(c.UserContext(), "orphaned upload not removed", "ref", ref, "error", err)
	}
}

func parseQuery(c *fiber.Ctx, actor triage.Actor) (triage.QueryOptions, error) {
	var opts triage.QueryOptions

	tab, ok := triage.ParseTab(c.Query("tab"))
	if !ok {
		return opts, &triage.ValidationError{Field: "tab", Message: "tab must be one of all, public, trending, resolved"}
	}
	sortBy, ok := triage.ParseSortField(c.Query("sort"))
	if !ok {
		return opts, &triage.ValidationError{Field: "sort", Message: "sort must be one of created_at, title, status, priority"}
	}
	opts.Tab = tab
	opts.SortBy = sortBy
	opts.Search = c.Query("search")

	switch strings.ToLower(c.Query("order", "desc")) {
	case "asc":
		opts.Ascending = true
	case "desc":
	default:
		return opts, &triage.ValidationError{Field: "order", Message: "order must be asc or desc"}
	}

	if s := c.Query("status"); s != "" {
		opts.Status = models.ReportStatus(strings.ToLower(s))
		if !opts.Status.Valid() {
			return opts, &triage.ValidationError{Field: "status", Message: "unknown status filter"}
		}
	}
	if p := c.Query("priority"); p != "" {
		opts.Priority = models.Priority(strings.ToLower(p))
		if !opts.Priority.Valid() {
			return opts, &triage.ValidationError{Field: "priority", Message: "unknown priority filter"}
		}
	}
	if c.QueryBool("mine", false) {
		if !actor.Authenticated() {
			return opts, triage.ErrNotAuthenticated
		}
		opts.CreatorID = actor.UserID
	}
	return opts, nil
}

func reportID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: msg})
}

// fail maps controller errors onto HTTP statuses. Unknown errors are logged
// and reported as 500 without detail.
func fail(c *fiber.Ctx, err error) error {
	var verr *triage.ValidationError
	var terr *triage.TransitionError
	var cerr *triage.ChannelError

	status := fiber.StatusInternalServerError
	msg := "Internal server error"
	switch {
	case errors.As(err, &verr):
		status, msg = fiber.StatusBadRequest, verr.Error()
	case errors.Is(err, triage.ErrNotAuthenticated):
		status, msg = fiber.StatusUnauthorized, "Unauthorized: sign in required"
	case errors.Is(err, triage.ErrForbidden):
		status, msg = fiber.StatusForbidden, "Municipality staff access required"
	case errors.Is(err, triage.ErrReportNotFound):
		status, msg = fiber.StatusNotFound, "Report not found"
	case errors.As(err, &terr):
		status, msg = fiber.StatusConflict, terr.Error()
	case errors.Is(err, triage.ErrInvalidTransition):
		status, msg = fiber.StatusConflict, err.Error()
	case errors.Is(err, media.ErrUnsupportedType):
		status, msg = fiber.StatusUnsupportedMediaType, "Image must be jpeg, png, webp or heic"
	case errors.Is(err, media.ErrTooLarge):
		status, msg = fiber.StatusRequestEntityTooLarge, "Image is too large"
	case errors.As(err, &cerr):
		status, msg = fiber.StatusServiceUnavailable, "Live updates are unavailable"
	case triage.IsTransient(err):
		status, msg = fiber.StatusServiceUnavailable, "Service temporarily unavailable"
	}

	if status >= fiber.StatusInternalServerError {
		slog.ErrorContext(c.UserContext(), "report request failed",
			"app_id", tenant.GetAppID(c), "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: msg})
}
