package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormIssueRepository implements channel.IssueRepository using GORM
type GormIssueRepository struct {
	db *gorm.DB
}

// NewGormIssueRepository creates a new GormIssueRepository
func NewGormIssueRepository(db *gorm.DB) *GormIssueRepository {
	return &GormIssueRepository{db: db}
}

// Create stores a new issue
func (r *GormIssueRepository) Create(ctx context.Context, issue *channel.Issue) error {
	var model models.IssueModel
	model.FromDomain(issue)
	return r.db.WithContext(ctx).Create(&model).Error
}

// FindByID finds an issue by its ID
func (r *GormIssueRepository) FindByID(ctx context.Context, id uuid.UUID) (*channel.Issue, error) {
	var model models.IssueModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, channel.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns one page of issues, newest first, and the total count
func (r *GormIssueRepository) List(ctx context.Context, filter channel.IssueFilter) ([]*channel.Issue, int64, error) {
	var total int64
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.IssueModel{}), filter).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	_, pageSize, offset := paginate(filter.Page, filter.PageSize)
	var issueModels []models.IssueModel
	if err := r.applyFilter(r.db.WithContext(ctx), filter).
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&issueModels).Error; err != nil {
		return nil, 0, err
	}

	issues := make([]*channel.Issue, len(issueModels))
	for i := range issueModels {
		issues[i] = issueModels[i].ToDomain()
	}
	return issues, total, nil
}

// CountOpenBySection counts unacknowledged issues of a backend per section.
// An empty backendID counts across all backends.
func (r *GormIssueRepository) CountOpenBySection(ctx context.Context, backendID string) (map[channel.Section]int64, error) {
	type sectionCount struct {
		Section string
		Count   int64
	}
	var rows []sectionCount

	query := r.db.WithContext(ctx).
		Model(&models.IssueModel{}).
		Select("section, COUNT(*) as count").
		Where("acknowledged_at IS NULL")
	if backendID != "" {
		query = query.Where("backend_id = ?", backendID)
	}
	if err := query.Group("section").Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[channel.Section]int64, len(rows))
	for _, row := range rows {
		counts[channel.Section(row.Section)] = row.Count
	}
	return counts, nil
}

// Acknowledge closes an issue. Acknowledging twice keeps the first timestamp.
func (r *GormIssueRepository) Acknowledge(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.IssueModel{}).
		Where("id = ? AND acknowledged_at IS NULL", id).
		Update("acknowledged_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *GormIssueRepository) applyFilter(query *gorm.DB, filter channel.IssueFilter) *gorm.DB {
	if filter.BackendID != "" {
		query = query.Where("backend_id = ?", filter.BackendID)
	}
	if filter.Section != "" {
		query = query.Where("section = ?", string(filter.Section))
	}
	if filter.InternalID != nil {
		query = query.Where("internal_id = ?", *filter.InternalID)
	}
	if filter.OpenOnly {
		query = query.Where("acknowledged_at IS NULL")
	}
	return query
}

// Ensure GormIssueRepository implements IssueRepository
var _ channel.IssueRepository = (*GormIssueRepository)(nil)
