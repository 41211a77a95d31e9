package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
)

// IssueModel is the persistence model for channel.Issue
type IssueModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BackendID      string     `gorm:"type:varchar(64);not null;index:idx_issue_open,priority:1"`
	Section        string     `gorm:"type:varchar(32);not null;index:idx_issue_open,priority:2"`
	Message        string     `gorm:"type:text;not null"`
	InternalID     *uuid.UUID `gorm:"type:uuid"`
	ExternalID     string     `gorm:"type:varchar(255)"`
	DateFrom       *time.Time `gorm:"type:date"`
	DateTo         *time.Time `gorm:"type:date"`
	ChannelMessage string     `gorm:"type:text"`
	CreatedAt      time.Time  `gorm:"not null;index"`
	AcknowledgedAt *time.Time `gorm:"index:idx_issue_open,priority:3"`
}

// TableName returns the table name for GORM
func (IssueModel) TableName() string {
	return "channel_issues"
}

// ToDomain converts the persistence model to a domain Issue
func (m *IssueModel) ToDomain() *channel.Issue {
	issue := &channel.Issue{
		ID:             m.ID,
		BackendID:      m.BackendID,
		Section:        channel.Section(m.Section),
		Message:        m.Message,
		InternalID:     m.InternalID,
		ExternalID:     m.ExternalID,
		ChannelMessage: m.ChannelMessage,
		CreatedAt:      m.CreatedAt,
		AcknowledgedAt: m.AcknowledgedAt,
	}
	if m.DateFrom != nil {
		from := channel.Day(*m.DateFrom)
		issue.DateFrom = &from
	}
	if m.DateTo != nil {
		to := channel.Day(*m.DateTo)
		issue.DateTo = &to
	}
	return issue
}

// FromDomain populates the persistence model from a domain Issue
func (m *IssueModel) FromDomain(i *channel.Issue) {
	m.ID = i.ID
	m.BackendID = i.BackendID
	m.Section = string(i.Section)
	m.Message = i.Message
	m.InternalID = i.InternalID
	m.ExternalID = i.ExternalID
	m.DateFrom = i.DateFrom
	m.DateTo = i.DateTo
	m.ChannelMessage = i.ChannelMessage
	m.CreatedAt = i.CreatedAt
	m.AcknowledgedAt = i.AcknowledgedAt
}
