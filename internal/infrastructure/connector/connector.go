// Package connector provides the backend clients of the sync engine: an
// in-memory backend and a rate-limited REST backend.
package connector

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pms/channelsync/internal/domain/channel"
	"github.com/pms/channelsync/internal/infrastructure/config"
)

// Backend kinds accepted in configuration
const (
	KindHTTP   = "http"
	KindMemory = "memory"
)

// Connector holds the adapters of one configured backend
type Connector struct {
	backend channel.Backend

	mu       sync.RWMutex
	adapters map[channel.EntityType]channel.Adapter
}

// NewConnector creates a connector without adapters
func NewConnector(backend channel.Backend) *Connector {
	if backend.BatchSize <= 0 {
		backend.BatchSize = channel.DefaultBatchSize
	}
	return &Connector{
		backend:  backend,
		adapters: make(map[channel.EntityType]channel.Adapter),
	}
}

// Backend returns the backend description
func (c *Connector) Backend() channel.Backend {
	return c.backend
}

// Register binds the adapter of an entity type
func (c *Connector) Register(entityType channel.EntityType, adapter channel.Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters[entityType] = adapter
}

// Adapter returns the adapter of an entity type
func (c *Connector) Adapter(entityType channel.EntityType) (channel.Adapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	adapter, ok := c.adapters[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", channel.ErrEntityNotRegistered, entityType, c.backend.ID)
	}
	return adapter, nil
}

// Build creates one connector per configured backend. Every entity type is
// registered on every backend.
func Build(cfgs []config.BackendConfig, observer CallObserver) ([]*Connector, error) {
	validate := validator.New()
	seen := make(map[string]bool, len(cfgs))
	connectors := make([]*Connector, 0, len(cfgs))

	for _, cfg := range cfgs {
		if err := validate.Struct(cfg); err != nil {
			return nil, fmt.Errorf("backend %q: %w", cfg.ID, err)
		}
		if seen[cfg.ID] {
			return nil, fmt.Errorf("backend %q: duplicate id", cfg.ID)
		}
		seen[cfg.ID] = true

		backend, err := backendFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		conn := NewConnector(backend)

		switch cfg.Kind {
		case KindMemory:
			for _, t := range channel.EntityTypes() {
				conn.Register(t, NewMemoryAdapter(string(t)+"-"))
			}
		case KindHTTP:
			client, err := NewHTTPClient(HTTPConfig{
				BackendID:     cfg.ID,
				BaseURL:       cfg.BaseURL,
				APIKey:        cfg.APIKey,
				Timeout:       cfg.Timeout,
				RatePerSecond: cfg.RatePerSecond,
				Burst:         cfg.Burst,
			}, observer)
			if err != nil {
				return nil, err
			}
			for _, t := range channel.EntityTypes() {
				conn.Register(t, client.Adapter(t))
			}
		default:
			return nil, fmt.Errorf("backend %q: unknown kind %q", cfg.ID, cfg.Kind)
		}
		connectors = append(connectors, conn)
	}
	return connectors, nil
}

func backendFromConfig(cfg config.BackendConfig) (channel.Backend, error) {
	kind := channel.BackendKindDirect
	if cfg.OTA {
		kind = channel.BackendKindOTA
	}
	name := cfg.Name
	if name == "" {
		name = cfg.ID
	}
	backend := channel.Backend{
		ID:        cfg.ID,
		Name:      name,
		Kind:      kind,
		BatchSize: cfg.BatchSize,
	}
	if cfg.PropertyID != "" {
		id, err := uuid.Parse(cfg.PropertyID)
		if err != nil {
			return channel.Backend{}, fmt.Errorf("backend %q: property_id: %w", cfg.ID, err)
		}
		backend.PropertyID = &id
	}
	if cfg.CompanyID != "" {
		id, err := uuid.Parse(cfg.CompanyID)
		if err != nil {
			return channel.Backend{}, fmt.Errorf("backend %q: company_id: %w", cfg.ID, err)
		}
		backend.CompanyID = &id
	}
	return backend, nil
}

var _ channel.Connector = (*Connector)(nil)
