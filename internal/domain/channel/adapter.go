package channel

import (
	"context"
	"fmt"
)

// ---------------------------------------------------------------------------
// Adapter port
// ---------------------------------------------------------------------------

// Adapter is the client capability for one entity type on one backend.
// Every method may fail with *ChannelError.
type Adapter interface {
	// Search returns the external ids of records matching the domain
	Search(ctx context.Context, domain Domain) ([]string, error)
	// SearchRead returns the records matching the domain
	SearchRead(ctx context.Context, domain Domain) ([]Record, error)
	// Read returns exactly one record; ErrNotFound or ErrAmbiguousResult otherwise
	Read(ctx context.Context, id string) (Record, error)
	// Create creates a remote record and returns its external id
	Create(ctx context.Context, values Record) (string, error)
	// Write updates a remote record
	Write(ctx context.Context, id string, values Record) (bool, error)
	// Delete removes a remote record
	Delete(ctx context.Context, id string) (bool, error)
}

// BulkWriter is implemented by adapters that accept several records in one
// remote call. The call succeeds or fails as a whole.
type BulkWriter interface {
	WriteMany(ctx context.Context, records []Record) error
}

// Connector exposes the adapters of one configured backend
type Connector interface {
	Backend() Backend
	Adapter(entityType EntityType) (Adapter, error)
}

// SingleRecord enforces the singular read contract over a result set
func SingleRecord(records []Record, id string) (Record, error) {
	switch len(records) {
	case 0:
		return nil, fmt.Errorf("%w: external id %q", ErrNotFound, id)
	case 1:
		return records[0], nil
	default:
		return nil, fmt.Errorf("%w: external id %q matched %d records", ErrAmbiguousResult, id, len(records))
	}
}

// IDs extracts the external ids of records
func IDs(records []Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID())
	}
	return ids
}
