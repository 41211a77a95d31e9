package channel

import "github.com/google/uuid"

// ---------------------------------------------------------------------------
// Entity types
// ---------------------------------------------------------------------------

// EntityType identifies the kind of record exchanged with a backend
type EntityType string

const (
	EntityRoomType      EntityType = "room_type"
	EntityReservation   EntityType = "reservation"
	EntityListing       EntityType = "listing"
	EntityPricelist     EntityType = "pricelist"
	EntityPricelistItem EntityType = "pricelist_item"
	EntityAvailability  EntityType = "availability"
	EntityRestriction   EntityType = "restriction"
)

// EntityTypes lists every known entity type
func EntityTypes() []EntityType {
	return []EntityType{
		EntityRoomType, EntityReservation, EntityListing, EntityPricelist,
		EntityPricelistItem, EntityAvailability, EntityRestriction,
	}
}

// IsValid returns true if the entity type is known
func (t EntityType) IsValid() bool {
	switch t {
	case EntityRoomType, EntityReservation, EntityListing, EntityPricelist,
		EntityPricelistItem, EntityAvailability, EntityRestriction:
		return true
	}
	return false
}

// IsTimeSeries reports whether the entity is exported as dense per-day
// rows rather than record by record
func (t EntityType) IsTimeSeries() bool {
	return t == EntityAvailability || t == EntityRestriction || t == EntityPricelistItem
}

// String returns the string representation
func (t EntityType) String() string {
	return string(t)
}

// Section returns the operator-facing issue section for the entity type
func (t EntityType) Section() Section {
	switch t {
	case EntityRoomType:
		return SectionRoom
	case EntityReservation:
		return SectionReservation
	case EntityListing:
		return SectionListing
	case EntityPricelist, EntityPricelistItem:
		return SectionPricelist
	case EntityAvailability:
		return SectionAvailability
	case EntityRestriction:
		return SectionRestriction
	}
	return SectionGeneral
}

// ---------------------------------------------------------------------------
// Direction
// ---------------------------------------------------------------------------

// Direction tells which sync timestamp a binding update advances
type Direction string

const (
	DirectionImport Direction = "IMPORT"
	DirectionExport Direction = "EXPORT"
)

// IsValid returns true if the direction is valid
func (d Direction) IsValid() bool {
	return d == DirectionImport || d == DirectionExport
}

// ---------------------------------------------------------------------------
// Mode
// ---------------------------------------------------------------------------

// Mode chooses between running a record job inline or enqueuing it
type Mode string

const (
	ModeDirect  Mode = "DIRECT"
	ModeDelayed Mode = "DELAYED"
)

// ---------------------------------------------------------------------------
// BackendKind
// ---------------------------------------------------------------------------

// BackendKind distinguishes OTA channels from the direct booking engine.
type BackendKind string

const (
	BackendKindOTA    BackendKind = "OTA"
	BackendKindDirect BackendKind = "DIRECT"
)

// Backend describes a configured connection to one external system
type Backend struct {
	ID   string
	Name string
	Kind BackendKind
	// BatchSize is the maximum number of items the remote accepts per bulk call
	BatchSize int
	// PropertyID and CompanyID scope records imported from this backend
	PropertyID *uuid.UUID
	CompanyID  *uuid.UUID
}

// Scope returns the ownership scope of records coming from the backend
func (b Backend) Scope() Scope {
	return Scope{PropertyID: b.PropertyID, CompanyID: b.CompanyID}
}

// IsOTA reports whether the backend is an OTA-type channel
func (b Backend) IsOTA() bool {
	return b.Kind != BackendKindDirect
}
