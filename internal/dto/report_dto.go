package dto

import (
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/triage"
	"github.com/google/uuid"
)

type CreateReportRequest struct {
	Title       string `json:"title" form:"title"`
	Description string `json:"description" form:"description"`
	Location    string `json:"location" form:"location"`
	ImageURL    string `json:"image_url" form:"image_url"`
	Priority    string `json:"priority" form:"priority"`
}

type VoteRequest struct {
	VoteType string `json:"vote_type"`
}

type VoteResponse struct {
	ReportID  uuid.UUID `json:"report_id"`
	UpVotes   int       `json:"up_votes"`
	DownVotes int       `json:"down_votes"`
	UserVote  *string   `json:"user_vote"`
}

// BodyRequest is shared by comments and discussion messages.
type BodyRequest struct {
	Body string `json:"body"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type AssigneeRequest struct {
	AssigneeID string `json:"assignee_id"`
}

type ResponseRequest struct {
	Message       string `json:"message" form:"message"`
	AfterImageURL string `json:"after_image_url" form:"after_image_url"`
}

type ReportListResponse struct {
	Reports []triage.Entry `json:"reports"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
}
