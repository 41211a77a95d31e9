// Package event fans raised channel issues out to operator tooling.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
)

// IssueRaisedEventType is the routing key of issue notifications
const IssueRaisedEventType = "channel.issue.raised"

// IssueRaisedEvent is the wire form of a raised issue
type IssueRaisedEvent struct {
	EventID        uuid.UUID  `json:"event_id"`
	EventType      string     `json:"event_type"`
	OccurredAt     time.Time  `json:"occurred_at"`
	IssueID        uuid.UUID  `json:"issue_id"`
	BackendID      string     `json:"backend_id"`
	Section        string     `json:"section"`
	Message        string     `json:"message"`
	InternalID     *uuid.UUID `json:"internal_id,omitempty"`
	ExternalID     string     `json:"external_id,omitempty"`
	DateFrom       string     `json:"date_from,omitempty"`
	DateTo         string     `json:"date_to,omitempty"`
	ChannelMessage string     `json:"channel_message,omitempty"`
}

// NewIssueRaisedEvent builds the notification for issue
func NewIssueRaisedEvent(issue *channel.Issue) IssueRaisedEvent {
	ev := IssueRaisedEvent{
		EventID:        uuid.New(),
		EventType:      IssueRaisedEventType,
		OccurredAt:     issue.CreatedAt.UTC(),
		IssueID:        issue.ID,
		BackendID:      issue.BackendID,
		Section:        string(issue.Section),
		Message:        issue.Message,
		InternalID:     issue.InternalID,
		ExternalID:     issue.ExternalID,
		ChannelMessage: issue.ChannelMessage,
	}
	if issue.DateFrom != nil {
		ev.DateFrom = issue.DateFrom.Format(time.DateOnly)
	}
	if issue.DateTo != nil {
		ev.DateTo = issue.DateTo.Format(time.DateOnly)
	}
	return ev
}

// Marshal encodes the event as JSON
func (e IssueRaisedEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
