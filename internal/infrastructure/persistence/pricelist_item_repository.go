package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPricelistItemRepository implements channel.PricelistItemRepository using GORM
type GormPricelistItemRepository struct {
	db *gorm.DB
}

// NewGormPricelistItemRepository creates a new GormPricelistItemRepository
func NewGormPricelistItemRepository(db *gorm.DB) *GormPricelistItemRepository {
	return &GormPricelistItemRepository{db: db}
}

// Save validates and stores the item pending export
func (r *GormPricelistItemRepository) Save(ctx context.Context, item *channel.PricelistItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.ChannelPushed = false
	item.Revision = uuid.New()
	item.UpdatedAt = time.Now()

	var model models.PricelistItemModel
	model.FromDomain(item)
	return r.db.WithContext(ctx).Save(&model).Error
}

// FindPending returns items awaiting export that overlap the range
func (r *GormPricelistItemRepository) FindPending(ctx context.Context, backendID string, dates channel.DateRange) ([]*channel.PricelistItem, error) {
	var itemModels []models.PricelistItemModel
	if err := r.db.WithContext(ctx).
		Where("backend_id = ? AND channel_pushed = ? AND date_from <= ? AND date_to >= ?", backendID, false, dates.To, dates.From).
		Order("room_type_id ASC, pricelist_id ASC, date_from ASC").
		Find(&itemModels).Error; err != nil {
		return nil, err
	}

	items := make([]*channel.PricelistItem, len(itemModels))
	for i := range itemModels {
		items[i] = itemModels[i].ToDomain()
	}
	return items, nil
}

// MarkPushed flags items as exported unless they were saved again since read
func (r *GormPricelistItemRepository) MarkPushed(ctx context.Context, rows []channel.PushedRow) (int64, error) {
	return markPushed(ctx, r.db, &models.PricelistItemModel{}, rows)
}

// Ensure GormPricelistItemRepository implements PricelistItemRepository
var _ channel.PricelistItemRepository = (*GormPricelistItemRepository)(nil)
