package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormBindingRepository implements channel.BindingRepository using GORM
type GormBindingRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormBindingRepository creates a new GormBindingRepository
func NewGormBindingRepository(db *gorm.DB) *GormBindingRepository {
	return &GormBindingRepository{db: db, now: time.Now}
}

// ---------------------------------------------------------------------------
// BindingReader implementation
// ---------------------------------------------------------------------------

// FindByExternal finds the binding of an external record
func (r *GormBindingRepository) FindByExternal(ctx context.Context, backendID string, entityType channel.EntityType, externalID string) (*channel.Binding, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: empty external id", channel.ErrInvalidInput)
	}
	var model models.BindingModel
	if err := r.db.WithContext(ctx).
		Where("backend_id = ? AND entity_type = ? AND external_id = ?", backendID, string(entityType), externalID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByInternal finds the binding of an internal record
func (r *GormBindingRepository) FindByInternal(ctx context.Context, backendID string, entityType channel.EntityType, internalID uuid.UUID) (*channel.Binding, error) {
	return r.findByInternal(r.db.WithContext(ctx), backendID, entityType, internalID)
}

// ListByBackend lists every binding of an entity type on a backend
func (r *GormBindingRepository) ListByBackend(ctx context.Context, backendID string, entityType channel.EntityType) ([]*channel.Binding, error) {
	var bindingModels []models.BindingModel
	if err := r.db.WithContext(ctx).
		Where("backend_id = ? AND entity_type = ?", backendID, string(entityType)).
		Order("created_at ASC").
		Find(&bindingModels).Error; err != nil {
		return nil, err
	}

	bindings := make([]*channel.Binding, len(bindingModels))
	for i := range bindingModels {
		bindings[i] = bindingModels[i].ToDomain()
	}
	return bindings, nil
}

// ---------------------------------------------------------------------------
// BindingWriter implementation
// ---------------------------------------------------------------------------

// Create inserts a new binding
func (r *GormBindingRepository) Create(ctx context.Context, binding *channel.Binding) error {
	if err := binding.Validate(); err != nil {
		return err
	}
	var model models.BindingModel
	model.FromDomain(binding)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s %s on %s", channel.ErrDuplicateBinding, binding.EntityType, binding.InternalID, binding.BackendID)
		}
		return err
	}
	return nil
}

// Upsert finds or creates the binding and advances the timestamp of direction
func (r *GormBindingRepository) Upsert(ctx context.Context, backendID string, entityType channel.EntityType, internalID uuid.UUID, externalID string, direction channel.Direction) (*channel.Binding, error) {
	return r.UpsertAt(ctx, backendID, entityType, internalID, externalID, direction, r.now())
}

// UpsertAt stamps the direction with at. Exports pass the time the record was
// read so a change made while the push was in flight stays newer.
func (r *GormBindingRepository) UpsertAt(ctx context.Context, backendID string, entityType channel.EntityType, internalID uuid.UUID, externalID string, direction channel.Direction, at time.Time) (*channel.Binding, error) {
	if !direction.IsValid() {
		return nil, fmt.Errorf("%w: direction %q", channel.ErrInvalidInput, direction)
	}

	var result *channel.Binding
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		binding, err := r.findByInternal(tx, backendID, entityType, internalID)
		create := false
		switch {
		case errors.Is(err, channel.ErrNotFound):
			binding, err = channel.NewBinding(backendID, entityType, internalID, externalID)
			if err != nil {
				return err
			}
			create = true
		case err != nil:
			return err
		}

		if externalID != "" {
			binding.ExternalID = externalID
		}
		binding.MarkSynced(direction, at)

		var model models.BindingModel
		model.FromDomain(binding)
		if create {
			err = tx.Create(&model).Error
		} else {
			err = tx.Save(&model).Error
		}
		if err != nil {
			return err
		}
		result = binding
		return nil
	})
	if err != nil {
		if isDuplicateKey(err) {
			return nil, fmt.Errorf("%w: %s %s on %s", channel.ErrDuplicateBinding, entityType, internalID, backendID)
		}
		return nil, err
	}
	return result, nil
}

// DeleteByInternal removes every binding of an internal record on all backends
func (r *GormBindingRepository) DeleteByInternal(ctx context.Context, entityType channel.EntityType, internalID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("entity_type = ? AND internal_id = ?", string(entityType), internalID).
		Delete(&models.BindingModel{})
	return result.RowsAffected, result.Error
}

func (r *GormBindingRepository) findByInternal(db *gorm.DB, backendID string, entityType channel.EntityType, internalID uuid.UUID) (*channel.Binding, error) {
	var model models.BindingModel
	if err := db.
		Where("backend_id = ? AND entity_type = ? AND internal_id = ?", backendID, string(entityType), internalID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Ensure GormBindingRepository implements BindingRepository
var _ channel.BindingRepository = (*GormBindingRepository)(nil)
