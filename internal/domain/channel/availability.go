package channel

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Unlimited marks a quota or cap that does not constrain availability
const Unlimited = -1

// ---------------------------------------------------------------------------
// AvailabilityRule
// ---------------------------------------------------------------------------

// AvailabilityRule holds the sellable quantity inputs of one room type on one
// day within one availability plan.
type AvailabilityRule struct {
	ID         uuid.UUID
	PlanID     uuid.UUID
	PropertyID uuid.UUID
	RoomTypeID uuid.UUID
	Date       time.Time
	Quota      int
	MaxAvail   int
	RealAvail  int
	PlanAvail  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewAvailabilityRule creates an unconstrained rule for a day
func NewAvailabilityRule(planID, propertyID, roomTypeID uuid.UUID, date time.Time, realAvail int) *AvailabilityRule {
	now := time.Now()
	r := &AvailabilityRule{
		ID:         uuid.New(),
		PlanID:     planID,
		PropertyID: propertyID,
		RoomTypeID: roomTypeID,
		Date:       Day(date),
		Quota:      Unlimited,
		MaxAvail:   Unlimited,
		RealAvail:  realAvail,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.PlanAvail = ComputePlanAvail(r.Quota, r.MaxAvail, r.RealAvail)
	return r
}

// ComputePlanAvail returns the minimum of the constraining values, realAvail
// when none constrains, clamped to zero.
func ComputePlanAvail(quota, maxAvail, realAvail int) int {
	result := 0
	found := false
	for _, v := range []int{quota, maxAvail, realAvail} {
		if v == Unlimited {
			continue
		}
		if !found || v < result {
			result = v
			found = true
		}
	}
	if !found {
		result = realAvail
	}
	if result < 0 {
		return 0
	}
	return result
}

// Recompute refreshes PlanAvail and reports whether it changed
func (r *AvailabilityRule) Recompute() bool {
	next := ComputePlanAvail(r.Quota, r.MaxAvail, r.RealAvail)
	if next == r.PlanAvail {
		return false
	}
	r.PlanAvail = next
	r.UpdatedAt = time.Now()
	return true
}

// SameCaps reports whether two rules carry the same quota and cap
func (r *AvailabilityRule) SameCaps(other *AvailabilityRule) bool {
	return r.Quota == other.Quota && r.MaxAvail == other.MaxAvail
}

// ---------------------------------------------------------------------------
// ChannelAvailability
// ---------------------------------------------------------------------------

// ChannelAvailability is the per-backend binding of an availability rule.
// ChannelPushed is the only "needs export" flag of the availability sub-domain.
type ChannelAvailability struct {
	ID            uuid.UUID
	BackendID     string
	RuleID        uuid.UUID
	PlanID        uuid.UUID
	RoomTypeID    uuid.UUID
	Date          time.Time
	PlanAvail     int
	NoOta         bool
	ChannelPushed bool
	Revision      uuid.UUID
	UpdatedAt     time.Time
}

// NewChannelAvailability binds a rule to a backend, pending export
func NewChannelAvailability(backendID string, rule *AvailabilityRule) *ChannelAvailability {
	return &ChannelAvailability{
		ID:         uuid.New(),
		BackendID:  backendID,
		RuleID:     rule.ID,
		PlanID:     rule.PlanID,
		RoomTypeID: rule.RoomTypeID,
		Date:       rule.Date,
		PlanAvail:  rule.PlanAvail,
		UpdatedAt:  time.Now(),
	}
}

// SetPlanAvail writes planAvail, resetting ChannelPushed when it changes
func (c *ChannelAvailability) SetPlanAvail(v int) bool {
	if v < 0 {
		v = 0
	}
	if c.PlanAvail == v {
		return false
	}
	c.PlanAvail = v
	c.markDirty()
	return true
}

// SetNoOta writes the OTA override, resetting ChannelPushed when it changes
func (c *ChannelAvailability) SetNoOta(v bool) bool {
	if c.NoOta == v {
		return false
	}
	c.NoOta = v
	c.markDirty()
	return true
}

// Flag forces a re-export
func (c *ChannelAvailability) Flag() {
	c.markDirty()
}

// MarkPushed records a successful export
func (c *ChannelAvailability) MarkPushed() {
	c.ChannelPushed = true
}

// PushedRow identifies the stored version of the binding
func (c *ChannelAvailability) PushedRow() PushedRow {
	return PushedRow{ID: c.ID, Revision: c.Revision}
}

// ExportedAvail is the value advertised to the backend: zero on OTA
// channels while noOta is set, planAvail otherwise.
func (c *ChannelAvailability) ExportedAvail(backend Backend) int {
	if c.NoOta && backend.IsOTA() {
		return 0
	}
	return c.PlanAvail
}

func (c *ChannelAvailability) markDirty() {
	c.ChannelPushed = false
	c.UpdatedAt = time.Now()
}

// ---------------------------------------------------------------------------
// Availability Repository
// ---------------------------------------------------------------------------

// AvailabilityRepository persists availability rules and their channel bindings
type AvailabilityRepository interface {
	FindRule(ctx context.Context, planID, roomTypeID uuid.UUID, date time.Time) (*AvailabilityRule, error)
	// FindSiblings returns rules of other plans for the same room type and day
	FindSiblings(ctx context.Context, rule *AvailabilityRule) ([]*AvailabilityRule, error)
	SaveRule(ctx context.Context, rule *AvailabilityRule) error

	FindChannelBindings(ctx context.Context, ruleID uuid.UUID) ([]*ChannelAvailability, error)
	SaveChannelBinding(ctx context.Context, binding *ChannelAvailability) error
	// FindPending returns bindings with ChannelPushed == false within the range
	FindPending(ctx context.Context, backendID string, dates DateRange) ([]*ChannelAvailability, error)
	// MarkPushed flags the rows whose revision is unchanged and returns how
	// many were flagged
	MarkPushed(ctx context.Context, rows []PushedRow) (int64, error)
}
