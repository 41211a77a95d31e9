package channelsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// TimeSeriesPayload is the task payload of an export_timeseries job
type TimeSeriesPayload struct {
	BackendID  string             `json:"backend_id"`
	EntityType channel.EntityType `json:"entity_type"`
	DateFrom   string             `json:"date_from"`
	DateTo     string             `json:"date_to"`
}

// Window parses the date window of the payload
func (p TimeSeriesPayload) Window() (channel.DateRange, error) {
	from, err := channel.ParseDay(p.DateFrom)
	if err != nil {
		return channel.DateRange{}, fmt.Errorf("%w: date_from: %v", channel.ErrInvalidInput, err)
	}
	to, err := channel.ParseDay(p.DateTo)
	if err != nil {
		return channel.DateRange{}, fmt.Errorf("%w: date_to: %v", channel.ErrInvalidInput, err)
	}
	return channel.NewDateRange(from, to), nil
}

// seriesRow is one pending day of one room type and plan
type seriesRow struct {
	source     channel.PushedRow
	roomTypeID *uuid.UUID
	planID     uuid.UUID
	date       time.Time
	values     channel.Values
}

// seriesPayload is one contiguous multi-day wire record
type seriesPayload struct {
	record  channel.Record
	sources []channel.PushedRow
	roomExt string
	dates   channel.DateRange
}

// TimeSeriesExporter pushes pending availability, restriction and pricelist
// item rows as dense multi-day payloads
type TimeSeriesExporter struct {
	registry     *Registry
	bindings     channel.BindingReader
	availability channel.AvailabilityRepository
	restrictions channel.RestrictionRepository
	prices       channel.PricelistItemRepository
	issues       *IssueService
	metrics      Metrics
	logger       *zap.Logger
}

// NewTimeSeriesExporter creates a new TimeSeriesExporter
func NewTimeSeriesExporter(
	registry *Registry,
	bindings channel.BindingReader,
	availability channel.AvailabilityRepository,
	restrictions channel.RestrictionRepository,
	prices channel.PricelistItemRepository,
	issues *IssueService,
	metrics Metrics,
	logger *zap.Logger,
) *TimeSeriesExporter {
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &TimeSeriesExporter{
		registry:     registry,
		bindings:     bindings,
		availability: availability,
		restrictions: restrictions,
		prices:       prices,
		issues:       issues,
		metrics:      metrics,
		logger:       logger.Named("timeseries_exporter"),
	}
}

// Export pushes the pending rows of entityType within window. Rows of room
// types without an external id and rows of failed chunks stay pending and
// are retried by the next run; both raise issues. Rows saved again while
// the push was in flight stay pending as well.
func (ts *TimeSeriesExporter) Export(ctx context.Context, backendID string, entityType channel.EntityType, window channel.DateRange) (*BatchResult, error) {
	if !entityType.IsTimeSeries() {
		return nil, fmt.Errorf("%w: %s is not a time series", channel.ErrInvalidInput, entityType)
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "channelsync", "export_timeseries",
		telemetry.WithAttribute("backend.id", backendID),
		telemetry.WithAttribute("entity.type", string(entityType)),
	)
	defer span.End()

	backend, adapter, err := ts.registry.adapter(backendID, entityType)
	if err != nil {
		return nil, err
	}
	rows, markPushed, err := ts.pending(ctx, backend, entityType, window)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if len(rows) == 0 {
		return &BatchResult{}, nil
	}

	payloads, blocked, err := ts.buildPayloads(ctx, backend, entityType, rows)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Total: len(payloads)}
	failedSources := make(map[uuid.UUID]bool)
	for id := range blocked {
		failedSources[id] = true
	}

	results := channel.SubmitChunks(ctx, payloads, backend.BatchSize, func(ctx context.Context, chunk []seriesPayload) error {
		return ts.submit(ctx, adapter, chunk)
	})
	for _, res := range results {
		chunk := payloads[res.Offset : res.Offset+res.Size]
		ts.metrics.RecordSync(ctx, backendID, entityType, channel.DirectionExport, res.Err)
		if res.Err == nil {
			result.Processed += res.Size
			continue
		}
		for _, p := range chunk {
			result.fail(p.roomExt, res.Err)
			for _, source := range p.sources {
				failedSources[source.ID] = true
			}
		}
		ts.reportChunk(ctx, backendID, entityType, chunk, res.Err)
	}

	pushed := make([]channel.PushedRow, 0, len(rows))
	seen := make(map[uuid.UUID]bool, len(rows))
	for _, p := range payloads {
		for _, source := range p.sources {
			if failedSources[source.ID] || seen[source.ID] {
				continue
			}
			seen[source.ID] = true
			pushed = append(pushed, source)
		}
	}
	flagged, err := markPushed(ctx, pushed)
	if err != nil {
		return result, err
	}
	if superseded := int64(len(pushed)) - flagged; superseded > 0 {
		ts.logger.Info("Rows changed during export stay pending",
			zap.String("backend_id", backendID),
			zap.String("entity_type", string(entityType)),
			zap.Int64("rows", superseded),
		)
	}

	ts.logger.Info("Time series export finished",
		zap.String("backend_id", backendID),
		zap.String("entity_type", string(entityType)),
		zap.String("date_from", window.From.Format(channel.DateLayout)),
		zap.String("date_to", window.To.Format(channel.DateLayout)),
		zap.Int("payloads", result.Total),
		zap.Int("failed", result.Failed),
		zap.Int64("rows_pushed", flagged),
	)
	return result, nil
}

// pending loads the pending rows of entityType and returns the matching
// MarkPushed. A pricelist item overlapping the window is sent over its whole
// range because it is flagged as a single row.
func (ts *TimeSeriesExporter) pending(ctx context.Context, backend channel.Backend, entityType channel.EntityType, window channel.DateRange) ([]seriesRow, func(context.Context, []channel.PushedRow) (int64, error), error) {
	var rows []seriesRow
	switch entityType {
	case channel.EntityAvailability:
		list, err := ts.availability.FindPending(ctx, backend.ID, window)
		if err != nil {
			return nil, nil, err
		}
		for _, ca := range list {
			roomTypeID := ca.RoomTypeID
			rows = append(rows, seriesRow{
				source:     ca.PushedRow(),
				roomTypeID: &roomTypeID,
				planID:     ca.PlanID,
				date:       channel.Day(ca.Date),
				values:     channel.Values{"avail": ca.ExportedAvail(backend)},
			})
		}
		return rows, ts.availability.MarkPushed, nil

	case channel.EntityRestriction:
		list, err := ts.restrictions.FindPending(ctx, backend.ID, window)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range list {
			rows = append(rows, seriesRow{
				source:     r.PushedRow(),
				roomTypeID: r.RoomTypeID,
				planID:     r.PlanID,
				date:       channel.Day(r.Date),
				values:     r.WireValues(),
			})
		}
		return rows, ts.restrictions.MarkPushed, nil

	case channel.EntityPricelistItem:
		list, err := ts.prices.FindPending(ctx, backend.ID, window)
		if err != nil {
			return nil, nil, err
		}
		for _, item := range list {
			roomTypeID := item.RoomTypeID
			for _, day := range item.Dates().EachDay() {
				rows = append(rows, seriesRow{
					source:     item.PushedRow(),
					roomTypeID: &roomTypeID,
					planID:     item.PricelistID,
					date:       day,
					values:     item.WireValues(),
				})
			}
		}
		return rows, ts.prices.MarkPushed, nil
	}
	return nil, nil, fmt.Errorf("%w: %s is not a time series", channel.ErrInvalidInput, entityType)
}

// buildPayloads groups rows per external room and plan into contiguous day
// runs. Rows of room types without an external id are returned as blocked.
func (ts *TimeSeriesExporter) buildPayloads(ctx context.Context, backend channel.Backend, entityType channel.EntityType, rows []seriesRow) ([]seriesPayload, map[uuid.UUID]bool, error) {
	type groupKey struct {
		room string
		plan string
	}
	groups := make(map[groupKey][]seriesRow)
	blocked := make(map[uuid.UUID]bool)
	missingRooms := make(map[uuid.UUID][]time.Time)
	roomExt := make(map[uuid.UUID]string)
	planExt := make(map[uuid.UUID]string)
	planType := planEntityType(entityType)

	for _, row := range rows {
		key := groupKey{}
		if row.roomTypeID != nil {
			ext, ok := roomExt[*row.roomTypeID]
			if !ok {
				var err error
				ext, err = ts.externalID(ctx, backend.ID, channel.EntityRoomType, *row.roomTypeID)
				if err != nil {
					return nil, nil, err
				}
				roomExt[*row.roomTypeID] = ext
			}
			if ext == "" {
				blocked[row.source.ID] = true
				missingRooms[*row.roomTypeID] = append(missingRooms[*row.roomTypeID], row.date)
				continue
			}
			key.room = ext
		}

		ext, ok := planExt[row.planID]
		if !ok {
			var err error
			ext, err = ts.externalID(ctx, backend.ID, planType, row.planID)
			if err != nil {
				return nil, nil, err
			}
			planExt[row.planID] = ext
		}
		key.plan = ext
		groups[key] = append(groups[key], row)
	}

	for roomTypeID, days := range missingRooms {
		ts.reportMissingRoom(ctx, backend.ID, entityType, roomTypeID, days)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].room != keys[j].room {
			return keys[i].room < keys[j].room
		}
		return keys[i].plan < keys[j].plan
	})

	var payloads []seriesPayload
	for _, k := range keys {
		group := groups[k]
		sort.SliceStable(group, func(i, j int) bool { return group[i].date.Before(group[j].date) })
		for _, run := range contiguousRuns(group) {
			payloads = append(payloads, newSeriesPayload(k.room, k.plan, run))
		}
	}
	return payloads, blocked, nil
}

// externalID returns "" while the record has not been exported
func (ts *TimeSeriesExporter) externalID(ctx context.Context, backendID string, entityType channel.EntityType, internalID uuid.UUID) (string, error) {
	binding, err := ts.bindings.FindByInternal(ctx, backendID, entityType, internalID)
	if errors.Is(err, channel.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return binding.ExternalID, nil
}

// contiguousRuns splits date-sorted rows where a day is missing. Two rows on
// the same day end the run as well.
func contiguousRuns(rows []seriesRow) [][]seriesRow {
	var runs [][]seriesRow
	start := 0
	for i := 1; i <= len(rows); i++ {
		if i < len(rows) && rows[i].date.Equal(rows[i-1].date.AddDate(0, 0, 1)) {
			continue
		}
		runs = append(runs, rows[start:i])
		start = i
	}
	return runs
}

func newSeriesPayload(roomExt, planExt string, run []seriesRow) seriesPayload {
	dates := channel.NewDateRange(run[0].date, run[len(run)-1].date)
	days := make([]any, 0, len(run))
	sources := make([]channel.PushedRow, 0, len(run))
	seen := make(map[uuid.UUID]bool, len(run))
	for _, row := range run {
		day := map[string]any{"date": row.date.Format(channel.DateLayout)}
		for k, v := range row.values {
			day[k] = v
		}
		days = append(days, day)
		if !seen[row.source.ID] {
			seen[row.source.ID] = true
			sources = append(sources, row.source)
		}
	}

	record := channel.Record{
		"date_from": dates.From.Format(channel.DateLayout),
		"date_to":   dates.To.Format(channel.DateLayout),
		"days":      days,
	}
	if roomExt != "" {
		record["room_id"] = roomExt
	}
	if planExt != "" {
		record["plan_id"] = planExt
	}
	return seriesPayload{record: record, sources: sources, roomExt: roomExt, dates: dates}
}

// submit writes one chunk in a single call when the adapter supports it
func (ts *TimeSeriesExporter) submit(ctx context.Context, adapter channel.Adapter, chunk []seriesPayload) error {
	records := make([]channel.Record, len(chunk))
	for i, p := range chunk {
		records[i] = p.record
	}
	if bulk, ok := adapter.(channel.BulkWriter); ok {
		return bulk.WriteMany(ctx, records)
	}
	for _, r := range records {
		ok, err := adapter.Write(ctx, r.String("room_id"), r)
		if err != nil {
			return err
		}
		if !ok {
			return channel.NewChannelError("write not acknowledged", "", nil)
		}
	}
	return nil
}

func (ts *TimeSeriesExporter) reportChunk(ctx context.Context, backendID string, entityType channel.EntityType, chunk []seriesPayload, err error) {
	dates := chunk[0].dates
	for _, p := range chunk[1:] {
		if p.dates.From.Before(dates.From) {
			dates.From = p.dates.From
		}
		if p.dates.To.After(dates.To) {
			dates.To = p.dates.To
		}
	}
	issue := channel.NewIssue(backendID, entityType.Section(),
		fmt.Sprintf("export of %d %s payloads failed: %v", len(chunk), entityType, err)).
		WithDates(dates).
		WithError(err)
	if len(chunk) == 1 {
		issue.WithExternal(chunk[0].roomExt)
	}
	if reportErr := ts.issues.Report(ctx, issue); reportErr != nil {
		ts.logger.Error("Failed to report chunk failure", zap.Error(reportErr))
	}
}

func (ts *TimeSeriesExporter) reportMissingRoom(ctx context.Context, backendID string, entityType channel.EntityType, roomTypeID uuid.UUID, days []time.Time) {
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	err := fmt.Errorf("%w: room type %s is not exported", channel.ErrMissingDependency, roomTypeID)
	issue := channel.NewIssue(backendID, entityType.Section(),
		fmt.Sprintf("export of %s skipped: %v", entityType, err)).
		WithInternal(roomTypeID).
		WithDates(channel.NewDateRange(days[0], days[len(days)-1]))
	if reportErr := ts.issues.Report(ctx, issue); reportErr != nil {
		ts.logger.Error("Failed to report missing room type", zap.Error(reportErr))
	}
}

// planEntityType is the binding type of the plan a time series belongs to
func planEntityType(entityType channel.EntityType) channel.EntityType {
	if entityType == channel.EntityPricelistItem {
		return channel.EntityPricelist
	}
	return entityType
}
