package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppliedOn is the scope of a restriction rule
type AppliedOn string

const (
	AppliedOnGlobal   AppliedOn = "GLOBAL"
	AppliedOnRoomType AppliedOn = "ROOM_TYPE"
)

// RestrictionRule holds stay restrictions of one room type on one day within
// one restriction plan, or the single global rule of the plan.
type RestrictionRule struct {
	ID              uuid.UUID
	BackendID       string
	PlanID          uuid.UUID
	AppliedOn       AppliedOn
	RoomTypeID      *uuid.UUID
	Date            time.Time
	MinStay         int
	MaxStay         int
	MinStayArrival  int
	MaxStayArrival  int
	Closed          bool
	ClosedArrival   bool
	ClosedDeparture bool
	ChannelPushed   bool
	Revision        uuid.UUID
	UpdatedAt       time.Time
}

// Validate checks the stay bounds
func (r *RestrictionRule) Validate() error {
	for name, v := range map[string]int{
		"min_stay":         r.MinStay,
		"max_stay":         r.MaxStay,
		"min_stay_arrival": r.MinStayArrival,
		"max_stay_arrival": r.MaxStayArrival,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidInput, name)
		}
	}
	if r.MinStay != 0 && r.MaxStay != 0 && r.MinStay > r.MaxStay {
		return fmt.Errorf("%w: min_stay %d exceeds max_stay %d", ErrInvalidInput, r.MinStay, r.MaxStay)
	}
	if r.MinStayArrival != 0 && r.MaxStayArrival != 0 && r.MinStayArrival > r.MaxStayArrival {
		return fmt.Errorf("%w: min_stay_arrival %d exceeds max_stay_arrival %d", ErrInvalidInput, r.MinStayArrival, r.MaxStayArrival)
	}
	switch r.AppliedOn {
	case AppliedOnGlobal:
		if r.RoomTypeID != nil {
			return fmt.Errorf("%w: global restriction cannot target a room type", ErrInvalidInput)
		}
	case AppliedOnRoomType:
		if r.RoomTypeID == nil {
			return fmt.Errorf("%w: room type restriction needs a room type", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown applied_on %q", ErrInvalidInput, r.AppliedOn)
	}
	return nil
}

// WireValues renders the restriction for a multi-day payload
func (r *RestrictionRule) WireValues() Values {
	return Values{
		"min_stay":         r.MinStay,
		"max_stay":         r.MaxStay,
		"min_stay_arrival": r.MinStayArrival,
		"max_stay_arrival": r.MaxStayArrival,
		"closed":           r.Closed,
		"closed_arrival":   r.ClosedArrival,
		"closed_departure": r.ClosedDeparture,
	}
}

// PushedRow identifies the stored version of the rule
func (r *RestrictionRule) PushedRow() PushedRow {
	return PushedRow{ID: r.ID, Revision: r.Revision}
}

// RestrictionRepository persists restriction rules
type RestrictionRepository interface {
	// Save validates and stores the rule; a second GLOBAL rule for a plan
	// fails with ErrInvalidInput.
	Save(ctx context.Context, rule *RestrictionRule) error
	FindPending(ctx context.Context, backendID string, dates DateRange) ([]*RestrictionRule, error)
	MarkPushed(ctx context.Context, rows []PushedRow) (int64, error)
}
