package connector

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/pms/channelsync/internal/domain/channel"
)

// FailureFunc decides whether a memory adapter call fails. op is one of
// search, read, create, write, delete or write_many.
type FailureFunc func(op string, records []channel.Record) error

// MemoryAdapter is an in-process backend for one entity type. It backs the
// "memory" backend kind and the sync tests.
type MemoryAdapter struct {
	mu      sync.RWMutex
	prefix  string
	nextID  int
	order   []string
	records map[string]channel.Record
	bulk    [][]channel.Record
	calls   map[string]int
	fail    FailureFunc
}

// NewMemoryAdapter creates an empty adapter. Generated ids are prefix
// followed by a sequence number.
func NewMemoryAdapter(prefix string) *MemoryAdapter {
	return &MemoryAdapter{
		prefix:  prefix,
		records: make(map[string]channel.Record),
		calls:   make(map[string]int),
	}
}

// Seed stores records as if they already existed remotely
func (a *MemoryAdapter) Seed(records ...channel.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range records {
		a.put(r.ID(), r.Clone())
	}
}

// InjectFailure installs fn; nil removes it
func (a *MemoryAdapter) InjectFailure(fn FailureFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fail = fn
}

// Search returns the ids of matching records
func (a *MemoryAdapter) Search(ctx context.Context, domain channel.Domain) ([]string, error) {
	records, err := a.search(ctx, "search", domain)
	if err != nil {
		return nil, err
	}
	return channel.IDs(records), nil
}

// SearchRead returns matching records
func (a *MemoryAdapter) SearchRead(ctx context.Context, domain channel.Domain) ([]channel.Record, error) {
	return a.search(ctx, "search", domain)
}

// Read returns the record with id
func (a *MemoryAdapter) Read(ctx context.Context, id string) (channel.Record, error) {
	records, err := a.search(ctx, "read", channel.Domain{channel.Cond("id", channel.OpEq, id)})
	if err != nil {
		return nil, err
	}
	return channel.SingleRecord(records, id)
}

// Create stores values under a new id, or under the id it carries
func (a *MemoryAdapter) Create(ctx context.Context, values channel.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.check("create", values); err != nil {
		return "", err
	}

	record := values.Clone()
	id := record.ID()
	if id == "" {
		a.nextID++
		id = a.prefix + strconv.Itoa(a.nextID)
		record["id"] = id
	}
	if _, exists := a.records[id]; exists {
		ce := channel.NewChannelError("record already exists", fmt.Sprintf(`{"error":"duplicate id %s"}`, id), nil)
		ce.StatusCode = 409
		ce.Permanent = true
		return "", ce
	}
	a.put(id, record)
	return id, nil
}

// Write merges values into the record with id
func (a *MemoryAdapter) Write(ctx context.Context, id string, values channel.Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.check("write", values); err != nil {
		return false, err
	}

	current, ok := a.records[id]
	if !ok {
		return false, fmt.Errorf("%w: external id %q", channel.ErrNotFound, id)
	}
	for k, v := range values {
		current[k] = v
	}
	current["id"] = id
	return true, nil
}

// Delete removes the record with id
func (a *MemoryAdapter) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.check("delete"); err != nil {
		return false, err
	}

	if _, ok := a.records[id]; !ok {
		return false, nil
	}
	delete(a.records, id)
	for i, existing := range a.order {
		if existing == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// WriteMany accepts a batch of records in one call
func (a *MemoryAdapter) WriteMany(ctx context.Context, records []channel.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.check("write_many", records...); err != nil {
		return err
	}

	batch := make([]channel.Record, len(records))
	for i, r := range records {
		batch[i] = r.Clone()
	}
	a.bulk = append(a.bulk, batch)
	return nil
}

// Records returns a copy of the stored records in insertion order
func (a *MemoryAdapter) Records() []channel.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]channel.Record, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.records[id].Clone())
	}
	return out
}

// BulkCalls returns the batches received by WriteMany
func (a *MemoryAdapter) BulkCalls() [][]channel.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([][]channel.Record, len(a.bulk))
	copy(out, a.bulk)
	return out
}

// Calls returns how many times op was invoked, failures included
func (a *MemoryAdapter) Calls(op string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.calls[op]
}

func (a *MemoryAdapter) search(ctx context.Context, op string, domain channel.Domain) ([]channel.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	err := a.check(op)
	records := make([]channel.Record, 0, len(a.order))
	for _, id := range a.order {
		records = append(records, a.records[id].Clone())
	}
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return domain.Filter(records)
}

// check counts the call and applies the injected failure. Callers hold mu.
func (a *MemoryAdapter) check(op string, records ...channel.Record) error {
	a.calls[op]++
	if a.fail == nil {
		return nil
	}
	return a.fail(op, records)
}

func (a *MemoryAdapter) put(id string, record channel.Record) {
	if _, exists := a.records[id]; !exists {
		a.order = append(a.order, id)
	}
	a.records[id] = record
}

var (
	_ channel.Adapter    = (*MemoryAdapter)(nil)
	_ channel.BulkWriter = (*MemoryAdapter)(nil)
)
