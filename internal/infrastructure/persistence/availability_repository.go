package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAvailabilityRepository implements channel.AvailabilityRepository using GORM
type GormAvailabilityRepository struct {
	db *gorm.DB
}

// NewGormAvailabilityRepository creates a new GormAvailabilityRepository
func NewGormAvailabilityRepository(db *gorm.DB) *GormAvailabilityRepository {
	return &GormAvailabilityRepository{db: db}
}

// FindRule finds the rule of a plan for a room type and day
func (r *GormAvailabilityRepository) FindRule(ctx context.Context, planID, roomTypeID uuid.UUID, date time.Time) (*channel.AvailabilityRule, error) {
	var model models.AvailabilityRuleModel
	if err := r.db.WithContext(ctx).
		Where("plan_id = ? AND room_type_id = ? AND date = ?", planID, roomTypeID, channel.Day(date)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindSiblings returns rules of other plans for the same room type and day
func (r *GormAvailabilityRepository) FindSiblings(ctx context.Context, rule *channel.AvailabilityRule) ([]*channel.AvailabilityRule, error) {
	var ruleModels []models.AvailabilityRuleModel
	if err := r.db.WithContext(ctx).
		Where("room_type_id = ? AND date = ? AND plan_id <> ?", rule.RoomTypeID, channel.Day(rule.Date), rule.PlanID).
		Order("plan_id ASC").
		Find(&ruleModels).Error; err != nil {
		return nil, err
	}

	rules := make([]*channel.AvailabilityRule, len(ruleModels))
	for i := range ruleModels {
		rules[i] = ruleModels[i].ToDomain()
	}
	return rules, nil
}

// SaveRule inserts or updates a rule
func (r *GormAvailabilityRepository) SaveRule(ctx context.Context, rule *channel.AvailabilityRule) error {
	var model models.AvailabilityRuleModel
	model.FromDomain(rule)
	return r.db.WithContext(ctx).Save(&model).Error
}

// FindChannelBindings returns the per-backend rows of a rule
func (r *GormAvailabilityRepository) FindChannelBindings(ctx context.Context, ruleID uuid.UUID) ([]*channel.ChannelAvailability, error) {
	var bindingModels []models.ChannelAvailabilityModel
	if err := r.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Order("backend_id ASC").
		Find(&bindingModels).Error; err != nil {
		return nil, err
	}
	return channelAvailabilityToDomain(bindingModels), nil
}

// SaveChannelBinding inserts or updates the row of (backend, rule) under a new
// revision
func (r *GormAvailabilityRepository) SaveChannelBinding(ctx context.Context, binding *channel.ChannelAvailability) error {
	binding.Revision = uuid.New()
	var model models.ChannelAvailabilityModel
	model.FromDomain(binding)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "backend_id"}, {Name: "rule_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"plan_id", "room_type_id", "date", "plan_avail", "no_ota", "channel_pushed", "revision", "updated_at",
			}),
		}).
		Create(&model).Error
}

// FindPending returns rows awaiting export within the range, ordered for grouping
func (r *GormAvailabilityRepository) FindPending(ctx context.Context, backendID string, dates channel.DateRange) ([]*channel.ChannelAvailability, error) {
	var bindingModels []models.ChannelAvailabilityModel
	if err := r.db.WithContext(ctx).
		Where("backend_id = ? AND channel_pushed = ? AND date BETWEEN ? AND ?", backendID, false, dates.From, dates.To).
		Order("room_type_id ASC, plan_id ASC, date ASC").
		Find(&bindingModels).Error; err != nil {
		return nil, err
	}
	return channelAvailabilityToDomain(bindingModels), nil
}

// MarkPushed flags rows as exported unless they were saved again since read
func (r *GormAvailabilityRepository) MarkPushed(ctx context.Context, rows []channel.PushedRow) (int64, error) {
	return markPushed(ctx, r.db, &models.ChannelAvailabilityModel{}, rows)
}

func channelAvailabilityToDomain(list []models.ChannelAvailabilityModel) []*channel.ChannelAvailability {
	out := make([]*channel.ChannelAvailability, len(list))
	for i := range list {
		out[i] = list[i].ToDomain()
	}
	return out
}

// Ensure GormAvailabilityRepository implements AvailabilityRepository
var _ channel.AvailabilityRepository = (*GormAvailabilityRepository)(nil)
