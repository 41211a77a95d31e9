// Package channelsync implements the synchronization pipelines between PMS
// records and external backends: record import and export, dense
// time-series export, availability resolution and webhook intake.
package channelsync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/domain/shared"
)

// Task kinds handled by the worker pool
const (
	TaskImportRecord     = "import_record"
	TaskExportRecord     = "export_record"
	TaskExportTimeSeries = "export_timeseries"
	TaskImportCalendar   = "import_calendar"
)

// Scheduler enqueues deferred work. queue.Queue implements it.
type Scheduler interface {
	Schedule(ctx context.Context, kind string, payload any, delay time.Duration, priority int) (shared.TaskHandle, error)
}

// Pipeline holds the mappers of one entity type. A nil mapper disables that
// direction for the type.
type Pipeline struct {
	EntityType   channel.EntityType
	ImportMapper *channel.Mapper
	ExportMapper *channel.Mapper
}

// Registry holds the configured backends and the pipelines per entity type
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]channel.Connector
	pipelines  map[channel.EntityType]Pipeline
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]channel.Connector),
		pipelines:  make(map[channel.EntityType]Pipeline),
	}
}

// RegisterConnector adds or replaces a backend
func (r *Registry) RegisterConnector(conn channel.Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[conn.Backend().ID] = conn
}

// RegisterPipeline adds or replaces the pipeline of an entity type
func (r *Registry) RegisterPipeline(p Pipeline) error {
	if !p.EntityType.IsValid() {
		return fmt.Errorf("%w: entity type %q", channel.ErrInvalidInput, p.EntityType)
	}
	if p.ImportMapper != nil && p.ImportMapper.Direction() != channel.DirectionImport {
		return fmt.Errorf("%w: %s import mapper has direction %s", channel.ErrInvalidRule, p.EntityType, p.ImportMapper.Direction())
	}
	if p.ExportMapper != nil && p.ExportMapper.Direction() != channel.DirectionExport {
		return fmt.Errorf("%w: %s export mapper has direction %s", channel.ErrInvalidRule, p.EntityType, p.ExportMapper.Direction())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines[p.EntityType] = p
	return nil
}

// Connector returns the connector of a backend
func (r *Registry) Connector(backendID string) (channel.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connectors[backendID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", channel.ErrBackendNotConfigured, backendID)
	}
	return conn, nil
}

// Pipeline returns the pipeline of an entity type
func (r *Registry) Pipeline(entityType channel.EntityType) (Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[entityType]
	if !ok {
		return Pipeline{}, fmt.Errorf("%w: %s", channel.ErrEntityNotRegistered, entityType)
	}
	return p, nil
}

// Pipelines returns every registered pipeline ordered by entity type
func (r *Registry) Pipelines() []Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Pipeline, 0, len(r.pipelines))
	for _, p := range r.pipelines {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityType < out[j].EntityType })
	return out
}

// Backends returns the configured backends ordered by id
func (r *Registry) Backends() []channel.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]channel.Backend, 0, len(r.connectors))
	for _, conn := range r.connectors {
		out = append(out, conn.Backend())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// adapter resolves the backend and adapter of an entity type
func (r *Registry) adapter(backendID string, entityType channel.EntityType) (channel.Backend, channel.Adapter, error) {
	conn, err := r.Connector(backendID)
	if err != nil {
		return channel.Backend{}, nil, err
	}
	adapter, err := conn.Adapter(entityType)
	if err != nil {
		return channel.Backend{}, nil, err
	}
	return conn.Backend(), adapter, nil
}
