package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsDuplicateKey(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"translated gorm error", gorm.ErrDuplicatedKey, true},
		{"wrapped translated error", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"postgres unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"postgres other violation", &pgconn.PgError{Code: "23503"}, false},
		{"sqlite message", errors.New("UNIQUE constraint failed: channel_bindings.backend_id"), true},
		{"postgres message", errors.New(`ERROR: duplicate key value violates unique constraint "idx_binding_external"`), true},
		{"unrelated", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isDuplicateKey(tt.err))
		})
	}
}

func TestGormBindingRepository_Create_PostgresUniqueViolation(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	repo := NewGormBindingRepository(mockDB.DB)

	mockDB.Mock.ExpectExec(`INSERT INTO "channel_bindings"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_binding_external"})

	binding, err := channel.NewBinding("ota", channel.EntityRoomType, uuid.New(), "42")
	require.NoError(t, err)

	err = repo.Create(context.Background(), binding)
	assert.ErrorIs(t, err, channel.ErrDuplicateBinding)
	mockDB.ExpectationsWereMet(t)
}

func TestGormBindingRepository_FindByExternal_Query(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	repo := NewGormBindingRepository(mockDB.DB)
	internalID := uuid.New()

	mockDB.Mock.ExpectQuery(`SELECT \* FROM "channel_bindings" WHERE backend_id = \$1 AND entity_type = \$2 AND external_id = \$3`).
		WithArgs("ota", "room_type", "42", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "backend_id", "entity_type", "internal_id", "external_id"}).
			AddRow(uuid.New().String(), "ota", "room_type", internalID.String(), "42"))

	found, err := repo.FindByExternal(context.Background(), "ota", channel.EntityRoomType, "42")
	require.NoError(t, err)
	assert.Equal(t, internalID, found.InternalID)
	mockDB.ExpectationsWereMet(t)
}
