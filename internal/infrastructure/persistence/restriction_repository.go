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

// GormRestrictionRepository implements channel.RestrictionRepository using GORM
type GormRestrictionRepository struct {
	db *gorm.DB
}

// NewGormRestrictionRepository creates a new GormRestrictionRepository
func NewGormRestrictionRepository(db *gorm.DB) *GormRestrictionRepository {
	return &GormRestrictionRepository{db: db}
}

// Save validates and stores the rule pending export. A room type rule
// replaces the existing one of the same (backend, plan, room type, day).
func (r *GormRestrictionRepository) Save(ctx context.Context, rule *channel.RestrictionRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.Date = channel.Day(rule.Date)
	rule.ChannelPushed = false
	rule.Revision = uuid.New()
	rule.UpdatedAt = time.Now()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.RestrictionRuleModel
		query := tx.Where("backend_id = ? AND plan_id = ? AND applied_on = ? AND id <> ?",
			rule.BackendID, rule.PlanID, string(rule.AppliedOn), rule.ID)
		if rule.AppliedOn == channel.AppliedOnRoomType {
			query = query.Where("room_type_id = ? AND date = ?", *rule.RoomTypeID, rule.Date)
		}
		err := query.First(&existing).Error
		switch {
		case err == nil && rule.AppliedOn == channel.AppliedOnGlobal:
			return fmt.Errorf("%w: plan %s already has a global restriction", channel.ErrInvalidInput, rule.PlanID)
		case err == nil:
			rule.ID = existing.ID
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		var model models.RestrictionRuleModel
		model.FromDomain(rule)
		return tx.Save(&model).Error
	})
}

// FindPending returns rules awaiting export within the range, ordered for grouping
func (r *GormRestrictionRepository) FindPending(ctx context.Context, backendID string, dates channel.DateRange) ([]*channel.RestrictionRule, error) {
	var ruleModels []models.RestrictionRuleModel
	if err := r.db.WithContext(ctx).
		Where("backend_id = ? AND channel_pushed = ? AND date BETWEEN ? AND ?", backendID, false, dates.From, dates.To).
		Order("room_type_id ASC, plan_id ASC, date ASC").
		Find(&ruleModels).Error; err != nil {
		return nil, err
	}

	rules := make([]*channel.RestrictionRule, len(ruleModels))
	for i := range ruleModels {
		rules[i] = ruleModels[i].ToDomain()
	}
	return rules, nil
}

// MarkPushed flags rules as exported unless they were saved again since read
func (r *GormRestrictionRepository) MarkPushed(ctx context.Context, rows []channel.PushedRow) (int64, error) {
	return markPushed(ctx, r.db, &models.RestrictionRuleModel{}, rows)
}

// Ensure GormRestrictionRepository implements RestrictionRepository
var _ channel.RestrictionRepository = (*GormRestrictionRepository)(nil)
