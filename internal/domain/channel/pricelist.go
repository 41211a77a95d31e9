package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricelistItem is a price rule of a pricelist for a room type over a date
// range. It carries either a fixed price or a discount/surcharge pair.
type PricelistItem struct {
	ID            uuid.UUID
	BackendID     string
	PricelistID   uuid.UUID
	RoomTypeID    uuid.UUID
	DateFrom      time.Time
	DateTo        time.Time
	FixedPrice    *decimal.Decimal
	Discount      decimal.Decimal
	Surcharge     decimal.Decimal
	ChannelPushed bool
	Revision      uuid.UUID
	UpdatedAt     time.Time
}

// Dates returns the inclusive range covered by the item
func (p *PricelistItem) Dates() DateRange {
	return NewDateRange(p.DateFrom, p.DateTo)
}

// WireValues renders the price of one day for a multi-day payload
func (p *PricelistItem) WireValues() Values {
	if p.FixedPrice != nil {
		return Values{"price": p.FixedPrice.StringFixed(2)}
	}
	return Values{"adjustment": p.SignedAdjustment().String()}
}

// PushedRow identifies the stored version of the item
func (p *PricelistItem) PushedRow() PushedRow {
	return PushedRow{ID: p.ID, Revision: p.Revision}
}

// PricelistItemRepository persists pricelist items pending export
type PricelistItemRepository interface {
	// Save validates and stores the item with ChannelPushed reset
	Save(ctx context.Context, item *PricelistItem) error
	FindPending(ctx context.Context, backendID string, dates DateRange) ([]*PricelistItem, error)
	MarkPushed(ctx context.Context, rows []PushedRow) (int64, error)
}

// Validate enforces fixedPrice XOR (discount, surcharge)
func (p *PricelistItem) Validate() error {
	adjusted := !p.Discount.IsZero() || !p.Surcharge.IsZero()
	if p.FixedPrice != nil && adjusted {
		return fmt.Errorf("%w: fixed price and discount/surcharge are mutually exclusive", ErrInvalidInput)
	}
	if p.FixedPrice == nil && !adjusted {
		return fmt.Errorf("%w: pricelist item needs a fixed price or a discount/surcharge", ErrInvalidInput)
	}
	if !p.Discount.IsZero() && !p.Surcharge.IsZero() {
		return fmt.Errorf("%w: discount and surcharge cannot both be set", ErrInvalidInput)
	}
	if p.FixedPrice != nil && p.FixedPrice.IsNegative() {
		return fmt.Errorf("%w: fixed price must not be negative", ErrInvalidInput)
	}
	if p.DateTo.Before(p.DateFrom) {
		return fmt.Errorf("%w: date_to before date_from", ErrInvalidInput)
	}
	return nil
}

// SignedAdjustment folds discount and surcharge into one percentage, negative
// for discounts, as most channels expect.
func (p *PricelistItem) SignedAdjustment() decimal.Decimal {
	if !p.Discount.IsZero() {
		return p.Discount.Neg()
	}
	return p.Surcharge
}

// PricelistItemFromValues reads an item from an internal field set
func PricelistItemFromValues(v Values) (*PricelistItem, error) {
	item := &PricelistItem{}
	var err error
	if item.PricelistID, err = uuidField(v, "pricelist_id"); err != nil {
		return nil, err
	}
	if item.RoomTypeID, err = uuidField(v, "room_type_id"); err != nil {
		return nil, err
	}
	if item.DateFrom, err = ParseDay(v.String("date_from")); err != nil {
		return nil, fmt.Errorf("%w: date_from: %v", ErrInvalidInput, err)
	}
	if item.DateTo, err = ParseDay(v.String("date_to")); err != nil {
		return nil, fmt.Errorf("%w: date_to: %v", ErrInvalidInput, err)
	}
	if s := v.String("fixed_price"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: fixed_price: %v", ErrInvalidInput, err)
		}
		item.FixedPrice = &d
	}
	if item.Discount, err = decimalField(v, "discount"); err != nil {
		return nil, err
	}
	if item.Surcharge, err = decimalField(v, "surcharge"); err != nil {
		return nil, err
	}
	return item, item.Validate()
}

func uuidField(v Values, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(v.String(field))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, field, err)
	}
	return id, nil
}

func decimalField(v Values, field string) (decimal.Decimal, error) {
	s := v.String(field)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrInvalidInput, field, err)
	}
	return d, nil
}
