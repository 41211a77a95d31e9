package channelsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
	"go.uber.org/zap"
)

// WebhookEnvelope is the body of every inbound webhook delivery
type WebhookEnvelope struct {
	Event string `json:"event" validate:"required,max=100"`
	// DeliveryID identifies a delivery when the remote sends one; a digest of
	// the raw body is used otherwise.
	DeliveryID string         `json:"delivery_id,omitempty" validate:"omitempty,max=200"`
	Payload    map[string]any `json:"payload" validate:"required"`
}

// CalendarDay is one day of a calendar push
type CalendarDay struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Available *int   `json:"available" validate:"omitempty,min=0"`
	Closed    bool   `json:"closed"`
}

// CalendarPayload is the task payload of an import_calendar job
type CalendarPayload struct {
	BackendID  string        `json:"backend_id"`
	PropertyID uuid.UUID     `json:"property_id"`
	ListingID  string        `json:"listing_id" validate:"required"`
	Days       []CalendarDay `json:"days" validate:"required,min=1,dive"`
}

// WebhookResult describes an accepted delivery
type WebhookResult struct {
	Event      string
	ExternalID string
	// Duplicate is set when the delivery was seen before and dropped
	Duplicate bool
	Task      shared.TaskHandle
}

// WebhookConfig configures webhook intake
type WebhookConfig struct {
	// DedupeTTL is how long a delivery key is remembered
	DedupeTTL time.Duration
}

// WebhookService validates inbound deliveries and enqueues their import
type WebhookService struct {
	config    WebhookConfig
	registry  *Registry
	scheduler Scheduler
	dedupe    shared.IdempotencyStore
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewWebhookService creates a new WebhookService. dedupe may be nil to
// accept every delivery.
func NewWebhookService(config WebhookConfig, registry *Registry, scheduler Scheduler, dedupe shared.IdempotencyStore, logger *zap.Logger) *WebhookService {
	if config.DedupeTTL <= 0 {
		config.DedupeTTL = 24 * time.Hour
	}
	return &WebhookService{
		config:    config,
		registry:  registry,
		scheduler: scheduler,
		dedupe:    dedupe,
		validate:  validator.New(),
		logger:    logger.Named("webhook"),
	}
}

// PullReservation accepts a reservation delivery
func (s *WebhookService) PullReservation(ctx context.Context, backendID string, raw []byte) (*WebhookResult, error) {
	return s.pullRecord(ctx, backendID, channel.EntityReservation, raw)
}

// PullListing accepts a listing delivery
func (s *WebhookService) PullListing(ctx context.Context, backendID string, raw []byte) (*WebhookResult, error) {
	return s.pullRecord(ctx, backendID, channel.EntityListing, raw)
}

// PullCalendar accepts a calendar delivery for a listing of the property.
// The payload carries the listing id and its days.
func (s *WebhookService) PullCalendar(ctx context.Context, backendID string, raw []byte, propertyRef string) (*WebhookResult, error) {
	propertyID, err := uuid.Parse(propertyRef)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid property reference %q", channel.ErrInvalidInput, propertyRef)
	}
	env, err := s.decode(backendID, raw)
	if err != nil {
		return nil, err
	}

	payload := CalendarPayload{BackendID: backendID, PropertyID: propertyID}
	if err := remarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: calendar payload: %v", channel.ErrInvalidInput, err)
	}
	if payload.ListingID == "" {
		payload.ListingID = channel.Record(env.Payload).ID()
	}
	payload.BackendID = backendID
	payload.PropertyID = propertyID
	if err := s.validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrInvalidInput, err)
	}

	return s.enqueue(ctx, backendID, env, raw, payload.ListingID, TaskImportCalendar, payload)
}

func (s *WebhookService) pullRecord(ctx context.Context, backendID string, entityType channel.EntityType, raw []byte) (*WebhookResult, error) {
	env, err := s.decode(backendID, raw)
	if err != nil {
		return nil, err
	}
	record := channel.Record(env.Payload)
	externalID := record.ID()
	if externalID == "" {
		return nil, fmt.Errorf("%w: %s payload has no id", channel.ErrInvalidInput, entityType)
	}

	payload := ImportPayload{
		BackendID:  backendID,
		EntityType: entityType,
		ExternalID: externalID,
		Payload:    record,
	}
	return s.enqueue(ctx, backendID, env, raw, externalID, TaskImportRecord, payload)
}

func (s *WebhookService) decode(backendID string, raw []byte) (*WebhookEnvelope, error) {
	if _, err := s.registry.Connector(backendID); err != nil {
		return nil, err
	}
	var env WebhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook body: %v", channel.ErrInvalidInput, err)
	}
	if err := s.validate.Struct(env); err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrInvalidInput, err)
	}
	return &env, nil
}

// enqueue schedules the import unless the delivery was already accepted. A
// failed schedule forgets the key so the remote can redeliver.
func (s *WebhookService) enqueue(ctx context.Context, backendID string, env *WebhookEnvelope, raw []byte, externalID, kind string, payload any) (*WebhookResult, error) {
	result := &WebhookResult{Event: env.Event, ExternalID: externalID}
	key := deliveryKey(backendID, env, raw)

	if s.dedupe != nil {
		fresh, err := s.dedupe.MarkProcessed(ctx, key, s.config.DedupeTTL)
		if err != nil {
			return nil, fmt.Errorf("webhook dedupe: %w", err)
		}
		if !fresh {
			s.logger.Info("Duplicate webhook delivery dropped",
				zap.String("backend_id", backendID),
				zap.String("event", env.Event),
				zap.String("external_id", externalID),
			)
			result.Duplicate = true
			return result, nil
		}
	}

	handle, err := s.scheduler.Schedule(ctx, kind, payload, 0, shared.PriorityHigh)
	if err != nil {
		if s.dedupe != nil {
			if forgetErr := s.dedupe.Forget(context.WithoutCancel(ctx), key); forgetErr != nil {
				s.logger.Warn("Failed to forget webhook delivery", zap.String("key", key), zap.Error(forgetErr))
			}
		}
		return nil, err
	}
	result.Task = handle

	s.logger.Info("Webhook delivery accepted",
		zap.String("backend_id", backendID),
		zap.String("event", env.Event),
		zap.String("external_id", externalID),
		zap.String("task_id", handle.ID.String()),
	)
	return result, nil
}

// deliveryKey identifies a delivery by its delivery id, or by the body digest
// when there is none. Only a byte-identical redelivery matches the digest, so
// a later update of the same record is never dropped.
func deliveryKey(backendID string, env *WebhookEnvelope, raw []byte) string {
	id := env.DeliveryID
	if id == "" {
		sum := sha256.Sum256(raw)
		id = "sha256-" + hex.EncodeToString(sum[:])
	}
	return strings.Join([]string{"webhook", backendID, env.Event, id}, ":")
}

func remarshal(src any, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// CalendarImporter applies a calendar push to the availability of the room
// type behind the listing
type CalendarImporter struct {
	registry *Registry
	importer *RecordImporter
	bindings channel.BindingReader
	store    channel.EntityStore
	resolver *Resolver
	issues   *IssueService
	logger   *zap.Logger
}

// NewCalendarImporter creates a new CalendarImporter
func NewCalendarImporter(
	registry *Registry,
	importer *RecordImporter,
	bindings channel.BindingReader,
	store channel.EntityStore,
	resolver *Resolver,
	issues *IssueService,
	logger *zap.Logger,
) *CalendarImporter {
	return &CalendarImporter{
		registry: registry,
		importer: importer,
		bindings: bindings,
		store:    store,
		resolver: resolver,
		issues:   issues,
		logger:   logger.Named("calendar"),
	}
}

// Import caps the default plan of the listing's room type at the available
// count of each day; a closed day is sold out. An unbound listing is
// imported first.
func (c *CalendarImporter) Import(ctx context.Context, payload CalendarPayload) (int, error) {
	if _, err := c.registry.Connector(payload.BackendID); err != nil {
		return 0, err
	}
	roomTypeID, err := c.roomTypeOf(ctx, payload.BackendID, payload.ListingID)
	if err != nil {
		issue := channel.NewIssue(payload.BackendID, channel.SectionCalendar,
			fmt.Sprintf("calendar of listing %s not applied: %v", payload.ListingID, err)).
			WithExternal(payload.ListingID)
		return 0, c.issues.report(ctx, issue, err)
	}

	applied := 0
	for _, day := range payload.Days {
		date, err := channel.ParseDay(day.Date)
		if err != nil {
			return applied, fmt.Errorf("%w: calendar date %q", channel.ErrInvalidInput, day.Date)
		}
		avail := 0
		if !day.Closed && day.Available != nil {
			avail = *day.Available
		} else if !day.Closed {
			continue
		}
		change := AvailabilityChange{
			PropertyID: payload.PropertyID,
			RoomTypeID: roomTypeID,
			Date:       date,
			MaxAvail:   &avail,
		}
		if _, err := c.resolver.Apply(ctx, change); err != nil {
			issue := channel.NewIssue(payload.BackendID, channel.SectionCalendar,
				fmt.Sprintf("calendar day %s of listing %s not applied: %v", day.Date, payload.ListingID, err)).
				WithExternal(payload.ListingID).
				WithDates(channel.DateRange{From: date, To: date})
			return applied, c.issues.report(ctx, issue, err)
		}
		applied++
	}

	c.logger.Info("Calendar applied",
		zap.String("backend_id", payload.BackendID),
		zap.String("listing_id", payload.ListingID),
		zap.Int("days", applied),
	)
	return applied, nil
}

func (c *CalendarImporter) roomTypeOf(ctx context.Context, backendID, listingID string) (uuid.UUID, error) {
	var listing *channel.InternalRecord
	binding, err := c.bindings.FindByExternal(ctx, backendID, channel.EntityListing, listingID)
	switch {
	case err == nil:
		listing, err = c.store.Get(ctx, channel.EntityListing, binding.InternalID)
		if err != nil {
			return uuid.Nil, err
		}
	case errors.Is(err, channel.ErrNotFound):
		listing, err = c.importer.Import(ctx, backendID, channel.EntityListing, listingID, nil)
		if err != nil {
			return uuid.Nil, err
		}
	default:
		return uuid.Nil, err
	}

	roomTypeID, err := uuid.Parse(listing.Fields.String(FieldRoomTypeID))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: listing %s has no room type", channel.ErrMissingDependency, listingID)
	}
	return roomTypeID, nil
}
