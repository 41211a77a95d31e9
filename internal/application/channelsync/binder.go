package channelsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
)

// Match scores of ResolveAmbiguous
const (
	scoreNone     = 0
	scoreGeneric  = 1
	scoreCompany  = 2
	scoreProperty = 3
)

// Binder translates ids of one entity type between a backend and the PMS
type Binder struct {
	backendID  string
	entityType channel.EntityType
	bindings   channel.BindingReader
	store      channel.EntityStore
}

// NewBinder creates a binder for one backend and entity type
func NewBinder(backendID string, entityType channel.EntityType, bindings channel.BindingReader, store channel.EntityStore) *Binder {
	return &Binder{
		backendID:  backendID,
		entityType: entityType,
		bindings:   bindings,
		store:      store,
	}
}

// ToInternal returns the internal record bound to externalID, ErrNotFound
// when unbound.
func (b *Binder) ToInternal(ctx context.Context, externalID string) (*channel.InternalRecord, error) {
	binding, err := b.bindings.FindByExternal(ctx, b.backendID, b.entityType, externalID)
	if err != nil {
		return nil, err
	}
	return b.store.Get(ctx, b.entityType, binding.InternalID)
}

// ToExternal returns the external id of record; ok is false while the record
// has not been created remotely.
func (b *Binder) ToExternal(ctx context.Context, record *channel.InternalRecord) (string, bool, error) {
	binding, err := b.bindings.FindByInternal(ctx, b.backendID, b.entityType, record.ID)
	if errors.Is(err, channel.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return binding.ExternalID, binding.HasExternalID(), nil
}

// ResolveAmbiguous picks the candidate that best fits scope: an exact
// property match beats a company match, which beats a generic record.
func ResolveAmbiguous(candidates []*channel.InternalRecord, scope channel.Scope) (*channel.InternalRecord, error) {
	var best *channel.InternalRecord
	bestScore, tied := scoreNone, false
	for _, c := range candidates {
		score := matchScore(c.Scope, scope)
		switch {
		case score > bestScore:
			best, bestScore, tied = c, score, false
		case score == bestScore && score > scoreNone:
			tied = true
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %d candidates", channel.ErrNoMatch, len(candidates))
	}
	if tied {
		return nil, fmt.Errorf("%w: score %d", channel.ErrAmbiguousMatch, bestScore)
	}
	return best, nil
}

func matchScore(candidate, scope channel.Scope) int {
	switch {
	case candidate.PropertyID != nil:
		if scope.PropertyID != nil && *candidate.PropertyID == *scope.PropertyID {
			return scoreProperty
		}
	case candidate.CompanyID != nil:
		if scope.CompanyID != nil && *candidate.CompanyID == *scope.CompanyID {
			return scoreCompany
		}
	default:
		return scoreGeneric
	}
	return scoreNone
}

// bindingResolver resolves Reference mapping rules through the bindings of
// one backend
type bindingResolver struct {
	backendID string
	bindings  channel.BindingReader
}

// NewReferenceResolver creates a resolver over the bindings of a backend
func NewReferenceResolver(backendID string, bindings channel.BindingReader) channel.ReferenceResolver {
	return bindingResolver{backendID: backendID, bindings: bindings}
}

func (r bindingResolver) ExternalID(ctx context.Context, entityType channel.EntityType, internalID uuid.UUID) (string, bool, error) {
	binding, err := r.bindings.FindByInternal(ctx, r.backendID, entityType, internalID)
	if errors.Is(err, channel.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return binding.ExternalID, binding.HasExternalID(), nil
}

func (r bindingResolver) InternalID(ctx context.Context, entityType channel.EntityType, externalID string) (uuid.UUID, bool, error) {
	binding, err := r.bindings.FindByExternal(ctx, r.backendID, entityType, externalID)
	if errors.Is(err, channel.ErrNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return binding.InternalID, true, nil
}

// DeleteRecord removes an internal record together with the bindings it
// owns on every backend
func DeleteRecord(ctx context.Context, store channel.EntityStore, bindings channel.BindingWriter, entityType channel.EntityType, id uuid.UUID) (int64, error) {
	if err := store.Delete(ctx, entityType, id); err != nil {
		return 0, err
	}
	return bindings.DeleteByInternal(ctx, entityType, id)
}
