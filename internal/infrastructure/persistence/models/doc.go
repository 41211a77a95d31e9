// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - binding.go: channel_bindings, one row per (backend, entity type, internal record)
// - availability.go: availability rules and their per-backend channel rows
// - restriction.go, pricelist.go: time-series rows pending export
// - issue.go: operator-visible synchronization issues
// - task.go: durable task queue rows
// - record.go: generic PMS records backing the entity store
package models
