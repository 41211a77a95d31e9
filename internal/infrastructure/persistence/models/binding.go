package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
)

// BindingModel is the persistence model for channel.Binding.
// ExternalID is NULL until the first export so that the external unique index
// ignores unexported bindings.
type BindingModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	BackendID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_binding_internal,priority:1;uniqueIndex:idx_binding_external,priority:1"`
	EntityType   string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_binding_internal,priority:2;uniqueIndex:idx_binding_external,priority:2"`
	InternalID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_binding_internal,priority:3;index:idx_binding_owner"`
	ExternalID   *string   `gorm:"type:varchar(255);uniqueIndex:idx_binding_external,priority:3"`
	LastImportAt *time.Time
	LastExportAt *time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BindingModel) TableName() string {
	return "channel_bindings"
}

// ToDomain converts the persistence model to a domain Binding
func (m *BindingModel) ToDomain() *channel.Binding {
	b := &channel.Binding{
		ID:           m.ID,
		BackendID:    m.BackendID,
		EntityType:   channel.EntityType(m.EntityType),
		InternalID:   m.InternalID,
		LastImportAt: m.LastImportAt,
		LastExportAt: m.LastExportAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.ExternalID != nil {
		b.ExternalID = *m.ExternalID
	}
	return b
}

// FromDomain populates the persistence model from a domain Binding
func (m *BindingModel) FromDomain(b *channel.Binding) {
	m.ID = b.ID
	m.BackendID = b.BackendID
	m.EntityType = string(b.EntityType)
	m.InternalID = b.InternalID
	m.ExternalID = nil
	if b.ExternalID != "" {
		ext := b.ExternalID
		m.ExternalID = &ext
	}
	m.LastImportAt = b.LastImportAt
	m.LastExportAt = b.LastExportAt
	m.CreatedAt = b.CreatedAt
	m.UpdatedAt = b.UpdatedAt
}
