package channelsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
	"go.uber.org/zap"
)

// ResolverConfig configures the availability resolver
type ResolverConfig struct {
	// DefaultPlanID is used by changes that name no plan
	DefaultPlanID uuid.UUID
	// ExportDelay is the delay of the export_timeseries job scheduled after
	// a change; the job is only scheduled when the resolver has a scheduler.
	ExportDelay time.Duration
}

// AvailabilityChange is an update of one room type on one day. Nil fields
// are left untouched.
type AvailabilityChange struct {
	PlanID     uuid.UUID `json:"plan_id"`
	PropertyID uuid.UUID `json:"property_id"`
	RoomTypeID uuid.UUID `json:"room_type_id"`
	Date       time.Time `json:"date"`
	Quota      *int      `json:"quota,omitempty"`
	MaxAvail   *int      `json:"max_avail,omitempty"`
	RealAvail  *int      `json:"real_avail,omitempty"`
	NoOta      *bool     `json:"no_ota,omitempty"`
}

// ResolveResult lists what a change touched. BackendIDs sell the changed
// rule; ExportBackendIDs adds the backends of reconciled siblings.
type ResolveResult struct {
	Rule             *channel.AvailabilityRule
	Siblings         []*channel.AvailabilityRule
	Channels         []*channel.ChannelAvailability
	BackendIDs       []string
	ExportBackendIDs []string
}

// Resolver keeps the sellable availability of every plan consistent and
// flags the channel rows that need export
type Resolver struct {
	config    ResolverConfig
	repo      channel.AvailabilityRepository
	bindings  channel.BindingReader
	registry  *Registry
	scheduler Scheduler
	logger    *zap.Logger
}

// NewResolver creates a new Resolver. scheduler may be nil.
func NewResolver(config ResolverConfig, repo channel.AvailabilityRepository, bindings channel.BindingReader, registry *Registry, scheduler Scheduler, logger *zap.Logger) *Resolver {
	return &Resolver{
		config:    config,
		repo:      repo,
		bindings:  bindings,
		registry:  registry,
		scheduler: scheduler,
		logger:    logger.Named("availability"),
	}
}

// Apply writes change to its rule, recomputes planAvail and reconciles the
// sibling rules of other plans sold on the same backends. The triggering
// caps win over differing sibling caps.
func (r *Resolver) Apply(ctx context.Context, change AvailabilityChange) (*ResolveResult, error) {
	if err := r.validate(&change); err != nil {
		return nil, err
	}

	rule, err := r.loadRule(ctx, change)
	if err != nil {
		return nil, err
	}
	if change.Quota != nil {
		rule.Quota = *change.Quota
	}
	if change.MaxAvail != nil {
		rule.MaxAvail = *change.MaxAvail
	}
	if change.RealAvail != nil {
		rule.RealAvail = *change.RealAvail
	}
	rule.Recompute()
	rule.UpdatedAt = time.Now()
	if err := r.repo.SaveRule(ctx, rule); err != nil {
		return nil, err
	}

	result := &ResolveResult{Rule: rule}
	backends, err := r.backendsOf(ctx, rule)
	if err != nil {
		return nil, err
	}
	channels, err := r.syncChannels(ctx, rule, backends, change.NoOta, false)
	if err != nil {
		return nil, err
	}
	result.Channels = channels
	result.BackendIDs = sortedKeys(backends)

	siblings, flagged, err := r.reconcileSiblings(ctx, rule, backends, change.RealAvail != nil)
	if err != nil {
		return nil, err
	}
	result.Siblings = siblings
	for id, b := range backends {
		flagged[id] = b
	}
	result.ExportBackendIDs = sortedKeys(flagged)

	r.logger.Debug("Availability resolved",
		zap.String("plan_id", rule.PlanID.String()),
		zap.String("room_type_id", rule.RoomTypeID.String()),
		zap.String("date", rule.Date.Format(channel.DateLayout)),
		zap.Int("plan_avail", rule.PlanAvail),
		zap.Int("siblings", len(siblings)),
		zap.Strings("backends", result.BackendIDs),
	)

	r.scheduleExport(ctx, rule.Date, result.ExportBackendIDs)
	return result, nil
}

func (r *Resolver) validate(change *AvailabilityChange) error {
	if change.PlanID == uuid.Nil {
		change.PlanID = r.config.DefaultPlanID
	}
	if change.PlanID == uuid.Nil {
		return fmt.Errorf("%w: no availability plan and no default plan configured", channel.ErrInvalidInput)
	}
	if change.RoomTypeID == uuid.Nil {
		return fmt.Errorf("%w: room type is required", channel.ErrInvalidInput)
	}
	if change.Date.IsZero() {
		return fmt.Errorf("%w: date is required", channel.ErrInvalidInput)
	}
	for name, v := range map[string]*int{"quota": change.Quota, "max_avail": change.MaxAvail} {
		if v != nil && *v < channel.Unlimited {
			return fmt.Errorf("%w: %s must be -1 or more", channel.ErrInvalidInput, name)
		}
	}
	if change.RealAvail != nil && *change.RealAvail < 0 {
		return fmt.Errorf("%w: real_avail must not be negative", channel.ErrInvalidInput)
	}
	return nil
}

// loadRule finds the rule of the change or starts a new one. A new rule
// inherits the physical availability of its siblings.
func (r *Resolver) loadRule(ctx context.Context, change AvailabilityChange) (*channel.AvailabilityRule, error) {
	rule, err := r.repo.FindRule(ctx, change.PlanID, change.RoomTypeID, change.Date)
	if err == nil {
		return rule, nil
	}
	if !errors.Is(err, channel.ErrNotFound) {
		return nil, err
	}

	rule = channel.NewAvailabilityRule(change.PlanID, change.PropertyID, change.RoomTypeID, change.Date, 0)
	siblings, err := r.repo.FindSiblings(ctx, rule)
	if err != nil {
		return nil, err
	}
	if len(siblings) > 0 {
		rule.RealAvail = siblings[0].RealAvail
	}
	rule.Recompute()
	return rule, nil
}

// backendsOf returns the backends selling the rule: those already holding a
// channel row plus every backend the room type is bound on.
func (r *Resolver) backendsOf(ctx context.Context, rule *channel.AvailabilityRule) (map[string]channel.Backend, error) {
	known := make(map[string]channel.Backend)
	for _, b := range r.registry.Backends() {
		known[b.ID] = b
	}

	backends := make(map[string]channel.Backend)
	rows, err := r.repo.FindChannelBindings(ctx, rule.ID)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if b, ok := known[row.BackendID]; ok {
			backends[b.ID] = b
		}
	}
	for id, b := range known {
		if _, ok := backends[id]; ok {
			continue
		}
		_, err := r.bindings.FindByInternal(ctx, id, channel.EntityRoomType, rule.RoomTypeID)
		if errors.Is(err, channel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		backends[id] = b
	}
	return backends, nil
}

// syncChannels writes the rule's planAvail to its channel row on each
// backend, creating missing rows. flag forces a re-export.
func (r *Resolver) syncChannels(ctx context.Context, rule *channel.AvailabilityRule, backends map[string]channel.Backend, noOta *bool, flag bool) ([]*channel.ChannelAvailability, error) {
	rows, err := r.repo.FindChannelBindings(ctx, rule.ID)
	if err != nil {
		return nil, err
	}
	byBackend := make(map[string]*channel.ChannelAvailability, len(rows))
	for _, row := range rows {
		byBackend[row.BackendID] = row
	}

	var out []*channel.ChannelAvailability
	for _, id := range sortedKeys(backends) {
		row, exists := byBackend[id]
		if !exists {
			row = channel.NewChannelAvailability(id, rule)
			byBackend[id] = row
		}
		changed := !exists
		if row.SetPlanAvail(rule.PlanAvail) {
			changed = true
		}
		if noOta != nil && row.SetNoOta(*noOta) {
			changed = true
		}
		if flag {
			row.Flag()
			changed = true
		}
		if changed {
			if err := r.repo.SaveChannelBinding(ctx, row); err != nil {
				return nil, err
			}
		}
		out = append(out, row)
	}

	for _, row := range rows {
		if _, ok := backends[row.BackendID]; ok {
			continue
		}
		if row.SetPlanAvail(rule.PlanAvail) {
			if err := r.repo.SaveChannelBinding(ctx, row); err != nil {
				return nil, err
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// reconcileSiblings forces the caps of rule onto the rules of other plans
// sold on one of the same backends. withRealAvail also copies the physical
// availability. It returns the reconciled rules and every backend on which
// one of their channel rows was flagged.
func (r *Resolver) reconcileSiblings(ctx context.Context, rule *channel.AvailabilityRule, backends map[string]channel.Backend, withRealAvail bool) ([]*channel.AvailabilityRule, map[string]channel.Backend, error) {
	flagged := make(map[string]channel.Backend)
	siblings, err := r.repo.FindSiblings(ctx, rule)
	if err != nil {
		return nil, nil, err
	}

	var reconciled []*channel.AvailabilityRule
	for _, sibling := range siblings {
		siblingBackends, err := r.backendsOf(ctx, sibling)
		if err != nil {
			return nil, nil, err
		}
		common := 0
		for id := range siblingBackends {
			if _, ok := backends[id]; ok {
				common++
			}
		}
		if common == 0 {
			continue
		}

		changed := false
		if !sibling.SameCaps(rule) {
			sibling.Quota = rule.Quota
			sibling.MaxAvail = rule.MaxAvail
			changed = true
		}
		if withRealAvail && sibling.RealAvail != rule.RealAvail {
			sibling.RealAvail = rule.RealAvail
			changed = true
		}
		if !changed {
			continue
		}

		sibling.Recompute()
		sibling.UpdatedAt = time.Now()
		if err := r.repo.SaveRule(ctx, sibling); err != nil {
			return nil, nil, err
		}
		if _, err := r.syncChannels(ctx, sibling, siblingBackends, nil, true); err != nil {
			return nil, nil, err
		}
		for id, b := range siblingBackends {
			flagged[id] = b
		}
		reconciled = append(reconciled, sibling)
	}
	return reconciled, flagged, nil
}

func (r *Resolver) scheduleExport(ctx context.Context, day time.Time, backendIDs []string) {
	if r.scheduler == nil {
		return
	}
	date := channel.Day(day).Format(channel.DateLayout)
	for _, id := range backendIDs {
		payload := TimeSeriesPayload{BackendID: id, EntityType: channel.EntityAvailability, DateFrom: date, DateTo: date}
		if _, err := r.scheduler.Schedule(ctx, TaskExportTimeSeries, payload, r.config.ExportDelay, shared.PriorityHigh); err != nil {
			r.logger.Warn("Failed to schedule availability export",
				zap.String("backend_id", id),
				zap.String("date", date),
				zap.Error(err),
			)
		}
	}
}

func sortedKeys(m map[string]channel.Backend) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
