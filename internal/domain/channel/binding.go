package channel

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Binding Entity
// ---------------------------------------------------------------------------

// Binding links one internal record to its representation in one backend.
type Binding struct {
	ID         uuid.UUID
	BackendID  string
	EntityType EntityType
	InternalID uuid.UUID
	// ExternalID is empty until the record is first created remotely
	ExternalID   string
	LastImportAt *time.Time
	LastExportAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewBinding creates a binding without sync timestamps
func NewBinding(backendID string, entityType EntityType, internalID uuid.UUID, externalID string) (*Binding, error) {
	b := &Binding{
		ID:         uuid.New(),
		BackendID:  backendID,
		EntityType: entityType,
		InternalID: internalID,
		ExternalID: externalID,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	return b, nil
}

// Validate validates the binding
func (b *Binding) Validate() error {
	if b.BackendID == "" {
		return ErrBackendNotConfigured
	}
	if !b.EntityType.IsValid() {
		return ErrInvalidBinding
	}
	if b.InternalID == uuid.Nil {
		return ErrInvalidBinding
	}
	return nil
}

// HasExternalID reports whether the record exists remotely
func (b *Binding) HasExternalID() bool {
	return b.ExternalID != ""
}

// ActualModifiedAt is the later of the binding and entity modification times,
// truncated to the second because remote clocks have second granularity.
func (b *Binding) ActualModifiedAt(entityModifiedAt time.Time) time.Time {
	latest := b.UpdatedAt
	if entityModifiedAt.After(latest) {
		latest = entityModifiedAt
	}
	return latest.Truncate(time.Second)
}

// IsExportSynced reports whether the last export covers the latest change
func (b *Binding) IsExportSynced(entityModifiedAt time.Time) bool {
	if b.LastExportAt == nil {
		return false
	}
	return !b.LastExportAt.Truncate(time.Second).Before(b.ActualModifiedAt(entityModifiedAt))
}

// MarkSynced advances the timestamp of the given direction to now and leaves
// the other one untouched.
func (b *Binding) MarkSynced(direction Direction, now time.Time) {
	switch direction {
	case DirectionImport:
		b.LastImportAt = &now
	case DirectionExport:
		b.LastExportAt = &now
	}
	b.UpdatedAt = now
}

// ---------------------------------------------------------------------------
// Binding Repository
// ---------------------------------------------------------------------------

// BindingReader defines read operations for bindings
type BindingReader interface {
	FindByExternal(ctx context.Context, backendID string, entityType EntityType, externalID string) (*Binding, error)
	FindByInternal(ctx context.Context, backendID string, entityType EntityType, internalID uuid.UUID) (*Binding, error)
	ListByBackend(ctx context.Context, backendID string, entityType EntityType) ([]*Binding, error)
}

// BindingWriter defines write operations for bindings
type BindingWriter interface {
	// Create inserts a binding; ErrDuplicateBinding on a uniqueness violation
	Create(ctx context.Context, binding *Binding) error
	// Upsert finds or creates the binding for (backend, entity type, internal id),
	// sets externalID when given and advances the timestamp of direction.
	Upsert(ctx context.Context, backendID string, entityType EntityType, internalID uuid.UUID, externalID string, direction Direction) (*Binding, error)
	// UpsertAt is Upsert with the sync timestamp set to at instead of now
	UpsertAt(ctx context.Context, backendID string, entityType EntityType, internalID uuid.UUID, externalID string, direction Direction, at time.Time) (*Binding, error)
	// DeleteByInternal removes every binding owned by an internal record
	DeleteByInternal(ctx context.Context, entityType EntityType, internalID uuid.UUID) (int64, error)
}

// BindingRepository is the binding store
type BindingRepository interface {
	BindingReader
	BindingWriter
}
