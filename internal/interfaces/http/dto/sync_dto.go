package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/application/channelsync"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
)

// WebhookAcceptedResponse acknowledges an inbound delivery
type WebhookAcceptedResponse struct {
	Event      string     `json:"event"`
	ExternalID string     `json:"external_id,omitempty"`
	Duplicate  bool       `json:"duplicate"`
	TaskID     *uuid.UUID `json:"task_id,omitempty"`
}

// ToWebhookAcceptedResponse converts a webhook result
func ToWebhookAcceptedResponse(r *channelsync.WebhookResult) WebhookAcceptedResponse {
	resp := WebhookAcceptedResponse{
		Event:      r.Event,
		ExternalID: r.ExternalID,
		Duplicate:  r.Duplicate,
	}
	if r.Task.ID != uuid.Nil {
		id := r.Task.ID
		resp.TaskID = &id
	}
	return resp
}

// IssueListQuery filters the issue listing
type IssueListQuery struct {
	ListRequest
	BackendID string `form:"backend_id" binding:"omitempty,max=64"`
	Section   string `form:"section" binding:"omitempty,oneof=availability restriction pricelist room reservation listing calendar general"`
	OpenOnly  *bool  `form:"open_only"`
}

// ToFilter converts the query to a repository filter; open issues only by default
func (q IssueListQuery) ToFilter() channel.IssueFilter {
	q.Normalize()
	openOnly := true
	if q.OpenOnly != nil {
		openOnly = *q.OpenOnly
	}
	return channel.IssueFilter{
		BackendID: q.BackendID,
		Section:   channel.Section(q.Section),
		OpenOnly:  openOnly,
		Page:      q.Page,
		PageSize:  q.PageSize,
	}
}

// IssueResponse is the API form of an issue
type IssueResponse struct {
	ID             uuid.UUID  `json:"id"`
	BackendID      string     `json:"backend_id"`
	Section        string     `json:"section"`
	Message        string     `json:"message"`
	InternalID     *uuid.UUID `json:"internal_id,omitempty"`
	ExternalID     string     `json:"external_id,omitempty"`
	DateFrom       string     `json:"date_from,omitempty"`
	DateTo         string     `json:"date_to,omitempty"`
	ChannelMessage string     `json:"channel_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// ToIssueResponse converts an issue
func ToIssueResponse(i *channel.Issue) IssueResponse {
	resp := IssueResponse{
		ID:             i.ID,
		BackendID:      i.BackendID,
		Section:        string(i.Section),
		Message:        i.Message,
		InternalID:     i.InternalID,
		ExternalID:     i.ExternalID,
		ChannelMessage: i.ChannelMessage,
		CreatedAt:      i.CreatedAt,
		AcknowledgedAt: i.AcknowledgedAt,
	}
	if i.DateFrom != nil {
		resp.DateFrom = i.DateFrom.Format(time.DateOnly)
	}
	if i.DateTo != nil {
		resp.DateTo = i.DateTo.Format(time.DateOnly)
	}
	return resp
}

// ToIssueResponses converts a list of issues
func ToIssueResponses(issues []*channel.Issue) []IssueResponse {
	out := make([]IssueResponse, 0, len(issues))
	for _, i := range issues {
		out = append(out, ToIssueResponse(i))
	}
	return out
}

// IssueCountsResponse groups open issue counts by section
type IssueCountsResponse struct {
	BackendID string           `json:"backend_id,omitempty"`
	Sections  map[string]int64 `json:"sections"`
	Total     int64            `json:"total"`
}

// ToIssueCountsResponse converts per-section counts
func ToIssueCountsResponse(backendID string, counts map[channel.Section]int64) IssueCountsResponse {
	resp := IssueCountsResponse{BackendID: backendID, Sections: make(map[string]int64, len(counts))}
	for section, n := range counts {
		resp.Sections[string(section)] = n
		resp.Total += n
	}
	return resp
}

// TaskResponse is the API form of a queued task
type TaskResponse struct {
	ID          uuid.UUID  `json:"id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	LastError   string     `json:"last_error,omitempty"`
	RunAt       time.Time  `json:"run_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ToTaskResponse converts a task
func ToTaskResponse(t *shared.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Kind:        t.Kind,
		Status:      string(t.Status),
		Priority:    t.Priority,
		RetryCount:  t.RetryCount,
		MaxRetries:  t.MaxRetries,
		LastError:   t.LastError,
		RunAt:       t.RunAt,
		ProcessedAt: t.ProcessedAt,
		CreatedAt:   t.CreatedAt,
	}
}

// ToTaskResponses converts a list of tasks
func ToTaskResponses(tasks []*shared.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, ToTaskResponse(t))
	}
	return out
}

// PlanResponse summarizes one export planning pass
type PlanResponse struct {
	BackendID  string                  `json:"backend_id"`
	Records    map[string]BatchSummary `json:"records"`
	TimeSeries []uuid.UUID             `json:"time_series_tasks"`
}

// BatchSummary counts the outcome of a batch
type BatchSummary struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Scheduled int `json:"scheduled"`
	Failed    int `json:"failed"`
}

// ToPlanResponse converts a planning result
func ToPlanResponse(r *channelsync.PlanResult) PlanResponse {
	resp := PlanResponse{
		BackendID:  r.BackendID,
		Records:    make(map[string]BatchSummary, len(r.Records)),
		TimeSeries: make([]uuid.UUID, 0, len(r.TimeSeries)),
	}
	for et, b := range r.Records {
		if b == nil {
			continue
		}
		resp.Records[string(et)] = BatchSummary{
			Total:     b.Total,
			Processed: b.Processed,
			Scheduled: b.Scheduled,
			Failed:    b.Failed,
		}
	}
	for _, h := range r.TimeSeries {
		resp.TimeSeries = append(resp.TimeSeries, h.ID)
	}
	return resp
}
