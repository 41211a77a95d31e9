package channelsync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
	"github.com/pms/channelsync/internal/infrastructure/connector"
	"github.com/pms/channelsync/internal/infrastructure/persistence"
	"github.com/pms/channelsync/internal/infrastructure/persistence/models"
	"github.com/pms/channelsync/internal/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testBackendID = "ota"

// MockScheduler mocks the task queue
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Schedule(ctx context.Context, kind string, payload any, delay time.Duration, priority int) (shared.TaskHandle, error) {
	args := m.Called(ctx, kind, payload, delay, priority)
	return args.Get(0).(shared.TaskHandle), args.Error(1)
}

// MockNotifier mocks the issue notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) IssueRaised(ctx context.Context, issue *channel.Issue) error {
	args := m.Called(ctx, issue)
	return args.Error(0)
}

// syncFixture wires the pipelines over SQLite repositories and in-memory
// adapters for every entity type
type syncFixture struct {
	ctx          context.Context
	db           *gorm.DB
	backend      channel.Backend
	registry     *Registry
	adapters     map[channel.EntityType]*connector.MemoryAdapter
	bindings     *persistence.GormBindingRepository
	store        *persistence.GormEntityStore
	availability *persistence.GormAvailabilityRepository
	restrictions *persistence.GormRestrictionRepository
	prices       *persistence.GormPricelistItemRepository
	issueRepo    *persistence.GormIssueRepository
	issues       *IssueService
	importer     *RecordImporter
	exporter     *RecordExporter
	timeSeries   *TimeSeriesExporter
}

func newSyncFixture(t *testing.T, backend channel.Backend) *syncFixture {
	t.Helper()

	if backend.ID == "" {
		backend.ID = testBackendID
	}
	if backend.Kind == "" {
		backend.Kind = channel.BackendKindOTA
	}
	db := testutil.NewSQLiteDB(t)
	logger := zap.NewNop()

	conn := connector.NewConnector(backend)
	adapters := make(map[channel.EntityType]*connector.MemoryAdapter)
	for _, et := range channel.EntityTypes() {
		adapter := connector.NewMemoryAdapter(string(et) + "-")
		conn.Register(et, adapter)
		adapters[et] = adapter
	}
	registry := NewRegistry()
	registry.RegisterConnector(conn)
	require.NoError(t, RegisterDefaultPipelines(registry))

	f := &syncFixture{
		ctx:          context.Background(),
		db:           db,
		backend:      conn.Backend(),
		registry:     registry,
		adapters:     adapters,
		bindings:     persistence.NewGormBindingRepository(db),
		store:        persistence.NewGormEntityStore(db),
		availability: persistence.NewGormAvailabilityRepository(db),
		restrictions: persistence.NewGormRestrictionRepository(db),
		prices:       persistence.NewGormPricelistItemRepository(db),
		issueRepo:    persistence.NewGormIssueRepository(db),
	}
	f.issues = NewIssueService(f.issueRepo, nil, nil, logger)
	f.importer = NewRecordImporter(registry, f.bindings, f.store, f.issues, nil, logger)
	f.exporter = NewRecordExporter(registry, f.bindings, f.store, f.issues, nil, logger)
	f.timeSeries = NewTimeSeriesExporter(registry, f.bindings, f.availability, f.restrictions, f.prices, f.issues, nil, logger)
	return f
}

func (f *syncFixture) adapter(et channel.EntityType) *connector.MemoryAdapter {
	return f.adapters[et]
}

func (f *syncFixture) openIssues(t *testing.T) []*channel.Issue {
	t.Helper()
	items, _, err := f.issueRepo.List(f.ctx, channel.IssueFilter{BackendID: f.backend.ID, OpenOnly: true, Page: 1, PageSize: 100})
	require.NoError(t, err)
	return items
}

func (f *syncFixture) createRecord(t *testing.T, et channel.EntityType, scope channel.Scope, values channel.Values) *channel.InternalRecord {
	t.Helper()
	record, err := f.store.Create(f.ctx, et, scope, values)
	require.NoError(t, err)
	return record
}

// bindRoomType creates a room type bound to externalID without going
// through the adapter
func (f *syncFixture) bindRoomType(t *testing.T, code, externalID string) *channel.InternalRecord {
	t.Helper()
	record := f.createRecord(t, channel.EntityRoomType, channel.Scope{}, channel.Values{channel.FieldCode: code})
	_, err := f.bindings.Upsert(f.ctx, f.backend.ID, channel.EntityRoomType, record.ID, externalID, channel.DirectionExport)
	require.NoError(t, err)
	return record
}

// ageBinding moves the sync timestamps of a binding an hour back so a later
// change within the same second counts as newer
func (f *syncFixture) ageBinding(t *testing.T, et channel.EntityType, internalID uuid.UUID) {
	t.Helper()
	past := time.Now().Add(-time.Hour)
	err := f.db.Model(&models.BindingModel{}).
		Where("backend_id = ? AND entity_type = ? AND internal_id = ?", f.backend.ID, string(et), internalID).
		UpdateColumns(map[string]any{"last_export_at": past, "updated_at": past}).Error
	require.NoError(t, err)
}

// ageRecord moves the modification time of a record back to at
func (f *syncFixture) ageRecord(t *testing.T, internalID uuid.UUID, at time.Time) {
	t.Helper()
	err := f.db.Model(&models.RecordModel{}).
		Where("id = ?", internalID).
		UpdateColumn("updated_at", at).Error
	require.NoError(t, err)
}

func day(s string) time.Time {
	d, err := channel.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func intPtr(v int) *int {
	return &v
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
