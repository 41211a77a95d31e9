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

// GormEntityStore implements channel.EntityStore over the generic pms_records
// table. Child operations found in written values are applied to the stored
// child lists; children not mentioned are kept.
type GormEntityStore struct {
	db *gorm.DB
}

// NewGormEntityStore creates a new GormEntityStore
func NewGormEntityStore(db *gorm.DB) *GormEntityStore {
	return &GormEntityStore{db: db}
}

// Get finds a record by id
func (s *GormEntityStore) Get(ctx context.Context, entityType channel.EntityType, id uuid.UUID) (*channel.InternalRecord, error) {
	model, err := s.find(s.db.WithContext(ctx), entityType, id)
	if err != nil {
		return nil, err
	}
	return model.ToDomain()
}

// FindByCode returns the records of a type carrying code
func (s *GormEntityStore) FindByCode(ctx context.Context, entityType channel.EntityType, code string) ([]*channel.InternalRecord, error) {
	var recordModels []models.RecordModel
	if err := s.db.WithContext(ctx).
		Where("entity_type = ? AND code = ?", string(entityType), code).
		Order("created_at ASC").
		Find(&recordModels).Error; err != nil {
		return nil, err
	}
	return recordsToDomain(recordModels)
}

// List returns every record of a type
func (s *GormEntityStore) List(ctx context.Context, entityType channel.EntityType) ([]*channel.InternalRecord, error) {
	var recordModels []models.RecordModel
	if err := s.db.WithContext(ctx).
		Where("entity_type = ?", string(entityType)).
		Order("created_at ASC").
		Find(&recordModels).Error; err != nil {
		return nil, err
	}
	return recordsToDomain(recordModels)
}

// Create stores a new record
func (s *GormEntityStore) Create(ctx context.Context, entityType channel.EntityType, scope channel.Scope, values channel.Values) (*channel.InternalRecord, error) {
	if !entityType.IsValid() {
		return nil, fmt.Errorf("%w: entity type %q", channel.ErrInvalidInput, entityType)
	}
	now := time.Now()
	model := models.RecordModel{
		ID:         uuid.New(),
		EntityType: string(entityType),
		PropertyID: scope.PropertyID,
		CompanyID:  scope.CompanyID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := model.SetFields(applyFieldValues(channel.Values{}, values)); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, err
	}
	return model.ToDomain()
}

// Update merges values into the stored record
func (s *GormEntityStore) Update(ctx context.Context, entityType channel.EntityType, id uuid.UUID, values channel.Values) (*channel.InternalRecord, error) {
	var updated *channel.InternalRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model, err := s.find(tx, entityType, id)
		if err != nil {
			return err
		}
		current, err := model.ToDomain()
		if err != nil {
			return err
		}
		if err := model.SetFields(applyFieldValues(current.Fields, values)); err != nil {
			return err
		}
		model.UpdatedAt = time.Now()
		if err := tx.Save(model).Error; err != nil {
			return err
		}
		updated, err = model.ToDomain()
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a record
func (s *GormEntityStore) Delete(ctx context.Context, entityType channel.EntityType, id uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Where("entity_type = ? AND id = ?", string(entityType), id).
		Delete(&models.RecordModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return channel.ErrNotFound
	}
	return nil
}

func (s *GormEntityStore) find(db *gorm.DB, entityType channel.EntityType, id uuid.UUID) (*models.RecordModel, error) {
	var model models.RecordModel
	if err := db.First(&model, "entity_type = ? AND id = ?", string(entityType), id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s %s", channel.ErrNotFound, entityType, id)
		}
		return nil, err
	}
	return &model, nil
}

// applyFieldValues merges values into fields, expanding child operations
func applyFieldValues(fields, values channel.Values) channel.Values {
	out := fields.Clone()
	for key, v := range values {
		ops, ok := v.([]channel.ChildOp)
		if !ok {
			out[key] = v
			continue
		}
		current := &channel.InternalRecord{Fields: out}
		out[key] = applyChildOps(current.Children(key), ops)
	}
	return out
}

func applyChildOps(children []channel.Values, ops []channel.ChildOp) []channel.Values {
	result := make([]channel.Values, 0, len(children)+len(ops))
	index := make(map[string]int, len(children))
	for _, child := range children {
		index[child.String(channel.FieldChildID)] = len(result)
		result = append(result, child.Clone())
	}
	for _, op := range ops {
		if op.Kind == channel.ChildUpdate {
			if i, ok := index[op.ID.String()]; ok {
				result[i].Merge(op.Values)
				continue
			}
		}
		child := op.Values.Clone()
		id := op.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		child[channel.FieldChildID] = id.String()
		index[id.String()] = len(result)
		result = append(result, child)
	}
	return result
}

func recordsToDomain(list []models.RecordModel) ([]*channel.InternalRecord, error) {
	out := make([]*channel.InternalRecord, 0, len(list))
	for i := range list {
		record, err := list[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

// Ensure GormEntityStore implements EntityStore
var _ channel.EntityStore = (*GormEntityStore)(nil)
