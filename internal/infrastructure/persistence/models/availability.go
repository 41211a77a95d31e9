package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
)

// AvailabilityRuleModel is the persistence model for channel.AvailabilityRule
type AvailabilityRuleModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	PlanID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_avail_rule_day,priority:1"`
	PropertyID uuid.UUID `gorm:"type:uuid;not null"`
	RoomTypeID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_avail_rule_day,priority:2;index:idx_avail_rule_room_day,priority:1"`
	Date       time.Time `gorm:"type:date;not null;uniqueIndex:idx_avail_rule_day,priority:3;index:idx_avail_rule_room_day,priority:2"`
	Quota      int       `gorm:"not null"`
	MaxAvail   int       `gorm:"not null"`
	RealAvail  int       `gorm:"not null"`
	PlanAvail  int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AvailabilityRuleModel) TableName() string {
	return "availability_rules"
}

// ToDomain converts the persistence model to a domain AvailabilityRule
func (m *AvailabilityRuleModel) ToDomain() *channel.AvailabilityRule {
	return &channel.AvailabilityRule{
		ID:         m.ID,
		PlanID:     m.PlanID,
		PropertyID: m.PropertyID,
		RoomTypeID: m.RoomTypeID,
		Date:       channel.Day(m.Date),
		Quota:      m.Quota,
		MaxAvail:   m.MaxAvail,
		RealAvail:  m.RealAvail,
		PlanAvail:  m.PlanAvail,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain AvailabilityRule
func (m *AvailabilityRuleModel) FromDomain(r *channel.AvailabilityRule) {
	m.ID = r.ID
	m.PlanID = r.PlanID
	m.PropertyID = r.PropertyID
	m.RoomTypeID = r.RoomTypeID
	m.Date = channel.Day(r.Date)
	m.Quota = r.Quota
	m.MaxAvail = r.MaxAvail
	m.RealAvail = r.RealAvail
	m.PlanAvail = r.PlanAvail
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
}

// ChannelAvailabilityModel is the persistence model for channel.ChannelAvailability
type ChannelAvailabilityModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	BackendID     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_channel_avail_rule,priority:1;index:idx_channel_avail_pending,priority:1"`
	RuleID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_channel_avail_rule,priority:2"`
	PlanID        uuid.UUID `gorm:"type:uuid;not null"`
	RoomTypeID    uuid.UUID `gorm:"type:uuid;not null"`
	Date          time.Time `gorm:"type:date;not null;index:idx_channel_avail_pending,priority:3"`
	PlanAvail     int       `gorm:"not null"`
	NoOta         bool      `gorm:"not null"`
	ChannelPushed bool      `gorm:"not null;index:idx_channel_avail_pending,priority:2"`
	Revision      uuid.UUID `gorm:"type:uuid;not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ChannelAvailabilityModel) TableName() string {
	return "channel_availability"
}

// ToDomain converts the persistence model to a domain ChannelAvailability
func (m *ChannelAvailabilityModel) ToDomain() *channel.ChannelAvailability {
	return &channel.ChannelAvailability{
		ID:            m.ID,
		BackendID:     m.BackendID,
		RuleID:        m.RuleID,
		PlanID:        m.PlanID,
		RoomTypeID:    m.RoomTypeID,
		Date:          channel.Day(m.Date),
		PlanAvail:     m.PlanAvail,
		NoOta:         m.NoOta,
		ChannelPushed: m.ChannelPushed,
		Revision:      m.Revision,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain ChannelAvailability
func (m *ChannelAvailabilityModel) FromDomain(c *channel.ChannelAvailability) {
	m.ID = c.ID
	m.BackendID = c.BackendID
	m.RuleID = c.RuleID
	m.PlanID = c.PlanID
	m.RoomTypeID = c.RoomTypeID
	m.Date = channel.Day(c.Date)
	m.PlanAvail = c.PlanAvail
	m.NoOta = c.NoOta
	m.ChannelPushed = c.ChannelPushed
	m.Revision = c.Revision
	m.UpdatedAt = c.UpdatedAt
}
