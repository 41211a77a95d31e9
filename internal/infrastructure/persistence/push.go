package persistence

import (
	"context"

	"github.com/pms/channelsync/internal/domain/channel"
	"gorm.io/gorm"
)

// markPushed flags each row of model's table whose revision still matches the
// one that was exported. Rows saved again since then keep channel_pushed false.
func markPushed(ctx context.Context, db *gorm.DB, model any, rows []channel.PushedRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var flagged int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			result := tx.Model(model).
				Where("id = ? AND revision = ?", row.ID, row.Revision).
				Update("channel_pushed", true)
			if result.Error != nil {
				return result.Error
			}
			flagged += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return flagged, nil
}
