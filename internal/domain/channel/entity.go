package channel

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Internal records
// ---------------------------------------------------------------------------

// Scope locates an internal record in the property/company hierarchy.
// A nil PropertyID and CompanyID means the record is generic.
type Scope struct {
	PropertyID *uuid.UUID
	CompanyID  *uuid.UUID
}

// InternalRecord is the subset of a PMS domain entity the engine reads and writes
type InternalRecord struct {
	ID         uuid.UUID
	EntityType EntityType
	Scope      Scope
	Fields     Values
	ModifiedAt time.Time
	CreatedAt  time.Time
}

// Code returns the short code used to find candidates on first import
func (r *InternalRecord) Code() string {
	return r.Fields.String(FieldCode)
}

// Children returns the child field sets stored under field
func (r *InternalRecord) Children(field string) []Values {
	switch list := r.Fields[field].(type) {
	case []Values:
		return list
	case []any:
		out := make([]Values, 0, len(list))
		for _, item := range list {
			switch v := item.(type) {
			case Values:
				out = append(out, v)
			case map[string]any:
				out = append(out, Values(v))
			}
		}
		return out
	}
	return nil
}

// FieldCode is the conventional short code field of room types and plans
const FieldCode = "code"

// FieldChildID is the id key of a child field set
const FieldChildID = "id"

// ---------------------------------------------------------------------------
// Child operations
// ---------------------------------------------------------------------------

// ChildOpKind is the kind of a one-to-many child operation
type ChildOpKind string

const (
	ChildCreate ChildOpKind = "CREATE"
	ChildUpdate ChildOpKind = "UPDATE"
)

// ChildOp is a create or update of one child record
type ChildOp struct {
	Kind   ChildOpKind
	ID     uuid.UUID
	Values Values
}

// ---------------------------------------------------------------------------
// EntityStore port
// ---------------------------------------------------------------------------

// EntityStore is the PMS domain storage consumed by the engine. Values may
// contain []ChildOp under a children field; the store applies them.
type EntityStore interface {
	Get(ctx context.Context, entityType EntityType, id uuid.UUID) (*InternalRecord, error)
	FindByCode(ctx context.Context, entityType EntityType, code string) ([]*InternalRecord, error)
	List(ctx context.Context, entityType EntityType) ([]*InternalRecord, error)
	Create(ctx context.Context, entityType EntityType, scope Scope, values Values) (*InternalRecord, error)
	Update(ctx context.Context, entityType EntityType, id uuid.UUID, values Values) (*InternalRecord, error)
	Delete(ctx context.Context, entityType EntityType, id uuid.UUID) error
}
