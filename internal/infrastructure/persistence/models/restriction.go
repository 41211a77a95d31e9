package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
)

// RestrictionRuleModel is the persistence model for channel.RestrictionRule
type RestrictionRuleModel struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BackendID       string     `gorm:"type:varchar(64);not null;index:idx_restriction_pending,priority:1"`
	PlanID          uuid.UUID  `gorm:"type:uuid;not null;index:idx_restriction_plan"`
	AppliedOn       string     `gorm:"type:varchar(16);not null"`
	RoomTypeID      *uuid.UUID `gorm:"type:uuid"`
	Date            time.Time  `gorm:"type:date;not null;index:idx_restriction_pending,priority:3"`
	MinStay         int        `gorm:"not null"`
	MaxStay         int        `gorm:"not null"`
	MinStayArrival  int        `gorm:"not null"`
	MaxStayArrival  int        `gorm:"not null"`
	Closed          bool       `gorm:"not null"`
	ClosedArrival   bool       `gorm:"not null"`
	ClosedDeparture bool       `gorm:"not null"`
	ChannelPushed   bool       `gorm:"not null;index:idx_restriction_pending,priority:2"`
	Revision        uuid.UUID  `gorm:"type:uuid;not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RestrictionRuleModel) TableName() string {
	return "channel_restrictions"
}

// ToDomain converts the persistence model to a domain RestrictionRule
func (m *RestrictionRuleModel) ToDomain() *channel.RestrictionRule {
	return &channel.RestrictionRule{
		ID:              m.ID,
		BackendID:       m.BackendID,
		PlanID:          m.PlanID,
		AppliedOn:       channel.AppliedOn(m.AppliedOn),
		RoomTypeID:      m.RoomTypeID,
		Date:            channel.Day(m.Date),
		MinStay:         m.MinStay,
		MaxStay:         m.MaxStay,
		MinStayArrival:  m.MinStayArrival,
		MaxStayArrival:  m.MaxStayArrival,
		Closed:          m.Closed,
		ClosedArrival:   m.ClosedArrival,
		ClosedDeparture: m.ClosedDeparture,
		ChannelPushed:   m.ChannelPushed,
		Revision:        m.Revision,
		UpdatedAt:       m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain RestrictionRule
func (m *RestrictionRuleModel) FromDomain(r *channel.RestrictionRule) {
	m.ID = r.ID
	m.BackendID = r.BackendID
	m.PlanID = r.PlanID
	m.AppliedOn = string(r.AppliedOn)
	m.RoomTypeID = r.RoomTypeID
	m.Date = channel.Day(r.Date)
	m.MinStay = r.MinStay
	m.MaxStay = r.MaxStay
	m.MinStayArrival = r.MinStayArrival
	m.MaxStayArrival = r.MaxStayArrival
	m.Closed = r.Closed
	m.ClosedArrival = r.ClosedArrival
	m.ClosedDeparture = r.ClosedDeparture
	m.ChannelPushed = r.ChannelPushed
	m.Revision = r.Revision
	m.UpdatedAt = r.UpdatedAt
}
