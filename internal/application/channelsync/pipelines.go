package channelsync

import (
	"fmt"
	"strings"

	"github.com/pms/channelsync/internal/domain/channel"
)

// Internal field names shared by the default pipelines
const (
	FieldName       = "name"
	FieldCapacity   = "capacity"
	FieldRoomTypeID = "room_type_id"
	FieldListingID  = "listing_id"
	FieldCheckin    = "checkin"
	FieldCheckout   = "checkout"
	FieldGuestName  = "guest_name"
	FieldState      = "state"
	FieldAdults     = "adults"
	FieldLines      = "lines"
	FieldCurrency   = "currency"
)

// DefaultPipelines returns the mappings of the generic channel wire format:
// room types and pricelists both ways, listings and reservations inbound.
// Time-series entities are exported from their rows and need no mapper.
func DefaultPipelines() ([]Pipeline, error) {
	var pipelines []Pipeline
	var errs []string
	add := func(p Pipeline, err error) {
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", p.EntityType, err))
			return
		}
		pipelines = append(pipelines, p)
	}

	add(roomTypePipeline())
	add(pricelistPipeline())
	add(listingPipeline())
	add(reservationPipeline())

	if len(errs) > 0 {
		return nil, fmt.Errorf("default pipelines: %s", strings.Join(errs, "; "))
	}
	return pipelines, nil
}

// RegisterDefaultPipelines installs DefaultPipelines into the registry
func RegisterDefaultPipelines(registry *Registry) error {
	pipelines, err := DefaultPipelines()
	if err != nil {
		return err
	}
	for _, p := range pipelines {
		if err := registry.RegisterPipeline(p); err != nil {
			return err
		}
	}
	return nil
}

func roomTypePipeline() (Pipeline, error) {
	p := Pipeline{EntityType: channel.EntityRoomType}
	var err error
	if p.ImportMapper, err = channel.NewImportMapper(
		channel.Direct{From: "shortname", To: channel.FieldCode},
		channel.Direct{From: "name", To: FieldName},
		channel.Direct{From: "occupancy", To: FieldCapacity},
	); err != nil {
		return p, err
	}
	p.ExportMapper, err = channel.NewExportMapper(
		channel.Direct{From: channel.FieldCode, To: "shortname"},
		channel.Direct{From: FieldName, To: "name"},
		channel.Direct{From: FieldCapacity, To: "occupancy"},
	)
	return p, err
}

func pricelistPipeline() (Pipeline, error) {
	p := Pipeline{EntityType: channel.EntityPricelist}
	var err error
	if p.ImportMapper, err = channel.NewImportMapper(
		channel.Direct{From: "code", To: channel.FieldCode},
		channel.Direct{From: "name", To: FieldName},
		channel.Direct{From: "currency", To: FieldCurrency},
	); err != nil {
		return p, err
	}
	p.ExportMapper, err = channel.NewExportMapper(
		channel.Direct{From: channel.FieldCode, To: "code"},
		channel.Direct{From: FieldName, To: "name"},
		channel.Direct{From: FieldCurrency, To: "currency"},
	)
	return p, err
}

func listingPipeline() (Pipeline, error) {
	p := Pipeline{EntityType: channel.EntityListing}
	var err error
	p.ImportMapper, err = channel.NewImportMapper(
		channel.Direct{From: "name", To: FieldName},
		channel.Reference{From: "room_type_id", To: FieldRoomTypeID, EntityType: channel.EntityRoomType},
	)
	return p, err
}

// wireDate normalizes stay dates to the internal day layout and rejects
// malformed ones at the mapping boundary
var wireDate = channel.ConvertDate(channel.DateLayout, channel.DateLayout)

func reservationPipeline() (Pipeline, error) {
	p := Pipeline{EntityType: channel.EntityReservation}
	lines, err := channel.NewImportMapper(
		channel.Reference{From: "room_type_id", To: FieldRoomTypeID, EntityType: channel.EntityRoomType},
		channel.Direct{From: "checkin", To: FieldCheckin, Convert: wireDate},
		channel.Direct{From: "checkout", To: FieldCheckout, Convert: wireDate},
		channel.Direct{From: "adults", To: FieldAdults},
	)
	if err != nil {
		return p, err
	}
	p.ImportMapper, err = channel.NewImportMapper(
		channel.Reference{From: "listing_id", To: FieldListingID, EntityType: channel.EntityListing},
		channel.Direct{From: "checkin", To: FieldCheckin, Convert: wireDate},
		channel.Direct{From: "checkout", To: FieldCheckout, Convert: wireDate},
		channel.Direct{From: "guest_name", To: FieldGuestName},
		channel.Direct{From: "status", To: FieldState},
		channel.Children{
			From:   "rooms",
			To:     FieldLines,
			Mapper: lines,
			Match: func(mapped, existing channel.Values) bool {
				return mapped.String(FieldRoomTypeID) == existing.String(FieldRoomTypeID) &&
					mapped.String(FieldCheckin) == existing.String(FieldCheckin)
			},
			SortKey: func(v channel.Values) string {
				return v.String(FieldCheckin) + "|" + v.String(FieldRoomTypeID)
			},
		},
	)
	return p, err
}
