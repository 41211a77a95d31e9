package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/shopspring/decimal"
)

// PricelistItemModel is the persistence model for channel.PricelistItem
type PricelistItemModel struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey"`
	BackendID     string              `gorm:"type:varchar(64);not null;index:idx_pricelist_item_pending,priority:1"`
	PricelistID   uuid.UUID           `gorm:"type:uuid;not null"`
	RoomTypeID    uuid.UUID           `gorm:"type:uuid;not null"`
	DateFrom      time.Time           `gorm:"type:date;not null"`
	DateTo        time.Time           `gorm:"type:date;not null"`
	FixedPrice    decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	Discount      decimal.Decimal     `gorm:"type:decimal(9,4);not null"`
	Surcharge     decimal.Decimal     `gorm:"type:decimal(9,4);not null"`
	ChannelPushed bool                `gorm:"not null;index:idx_pricelist_item_pending,priority:2"`
	Revision      uuid.UUID           `gorm:"type:uuid;not null"`
	UpdatedAt     time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PricelistItemModel) TableName() string {
	return "channel_pricelist_items"
}

// ToDomain converts the persistence model to a domain PricelistItem
func (m *PricelistItemModel) ToDomain() *channel.PricelistItem {
	item := &channel.PricelistItem{
		ID:            m.ID,
		BackendID:     m.BackendID,
		PricelistID:   m.PricelistID,
		RoomTypeID:    m.RoomTypeID,
		DateFrom:      channel.Day(m.DateFrom),
		DateTo:        channel.Day(m.DateTo),
		Discount:      m.Discount,
		Surcharge:     m.Surcharge,
		ChannelPushed: m.ChannelPushed,
		Revision:      m.Revision,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.FixedPrice.Valid {
		price := m.FixedPrice.Decimal
		item.FixedPrice = &price
	}
	return item
}

// FromDomain populates the persistence model from a domain PricelistItem
func (m *PricelistItemModel) FromDomain(p *channel.PricelistItem) {
	m.ID = p.ID
	m.BackendID = p.BackendID
	m.PricelistID = p.PricelistID
	m.RoomTypeID = p.RoomTypeID
	m.DateFrom = channel.Day(p.DateFrom)
	m.DateTo = channel.Day(p.DateTo)
	m.FixedPrice = decimal.NullDecimal{}
	if p.FixedPrice != nil {
		m.FixedPrice = decimal.NewNullDecimal(*p.FixedPrice)
	}
	m.Discount = p.Discount
	m.Surcharge = p.Surcharge
	m.ChannelPushed = p.ChannelPushed
	m.Revision = p.Revision
	m.UpdatedAt = p.UpdatedAt
}
