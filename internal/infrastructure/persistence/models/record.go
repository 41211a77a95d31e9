package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"gorm.io/datatypes"
)

// RecordModel stores one PMS record of any entity type as a JSON field set
type RecordModel struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	EntityType string         `gorm:"type:varchar(32);not null;index:idx_record_code,priority:1"`
	PropertyID *uuid.UUID     `gorm:"type:uuid"`
	CompanyID  *uuid.UUID     `gorm:"type:uuid"`
	Code       string         `gorm:"type:varchar(64);index:idx_record_code,priority:2"`
	Fields     datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RecordModel) TableName() string {
	return "pms_records"
}

// ToDomain converts the persistence model to an internal record
func (m *RecordModel) ToDomain() (*channel.InternalRecord, error) {
	fields := channel.Values{}
	if len(m.Fields) > 0 {
		if err := json.Unmarshal(m.Fields, &fields); err != nil {
			return nil, fmt.Errorf("decode fields of %s %s: %w", m.EntityType, m.ID, err)
		}
	}
	return &channel.InternalRecord{
		ID:         m.ID,
		EntityType: channel.EntityType(m.EntityType),
		Scope:      channel.Scope{PropertyID: m.PropertyID, CompanyID: m.CompanyID},
		Fields:     fields,
		ModifiedAt: m.UpdatedAt,
		CreatedAt:  m.CreatedAt,
	}, nil
}

// SetFields encodes the field set and refreshes the denormalized code column
func (m *RecordModel) SetFields(fields channel.Values) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields of %s %s: %w", m.EntityType, m.ID, err)
	}
	m.Fields = datatypes.JSON(data)
	m.Code = fields.String(channel.FieldCode)
	return nil
}
