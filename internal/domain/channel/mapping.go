package channel

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Mapping rules
// ---------------------------------------------------------------------------

// Rule is one declarative mapping rule. The set of variants is closed:
// Direct, Computed, Reference and Children.
type Rule interface {
	changedBy() []string
	validate() error
}

// Direct copies From to To. An empty string maps to nil.
type Direct struct {
	From    string
	To      string
	Convert func(v any) (any, error)
}

// Computed merges the values returned by Fn. CreateOnly rules run only when
// the target record is being created.
type Computed struct {
	ChangedBy  []string
	CreateOnly bool
	Fn         func(ctx context.Context, src Values) (Values, error)
}

// Reference translates the id of a related record between the internal and
// external id spaces through its binding.
type Reference struct {
	From       string
	To         string
	EntityType EntityType
}

// Children expands a list-valued field into child operations on import, or
// into a list of wire records on export.
type Children struct {
	From   string
	To     string
	Mapper *Mapper
	// Match tells whether a mapped item corresponds to an existing child
	Match func(mapped, existing Values) bool
	// SortKey orders the produced operations deterministically
	SortKey func(v Values) string
}

func (r Direct) changedBy() []string    { return []string{r.From} }
func (r Computed) changedBy() []string  { return r.ChangedBy }
func (r Reference) changedBy() []string { return []string{r.From} }
func (r Children) changedBy() []string  { return []string{r.From} }

func (r Direct) validate() error {
	if r.From == "" || r.To == "" {
		return fmt.Errorf("%w: direct rule needs from and to", ErrInvalidRule)
	}
	return nil
}

func (r Computed) validate() error {
	if r.Fn == nil {
		return fmt.Errorf("%w: computed rule needs a function", ErrInvalidRule)
	}
	return nil
}

func (r Reference) validate() error {
	if r.From == "" || r.To == "" || !r.EntityType.IsValid() {
		return fmt.Errorf("%w: reference rule needs from, to and a valid entity type", ErrInvalidRule)
	}
	return nil
}

func (r Children) validate() error {
	if r.From == "" || r.To == "" || r.Mapper == nil {
		return fmt.Errorf("%w: children rule needs from, to and a mapper", ErrInvalidRule)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Mapper
// ---------------------------------------------------------------------------

// ReferenceResolver translates related record ids through their bindings
type ReferenceResolver interface {
	ExternalID(ctx context.Context, entityType EntityType, internalID uuid.UUID) (string, bool, error)
	InternalID(ctx context.Context, entityType EntityType, externalID string) (uuid.UUID, bool, error)
}

// MapOptions controls one mapping run
type MapOptions struct {
	// Create is true when the target record does not exist yet
	Create bool
	// Changed restricts evaluation to rules affected by these fields; nil
	// means a full mapping.
	Changed []string
	// Existing is the current internal record, used to match children
	Existing *InternalRecord
	// Resolver resolves Reference rules
	Resolver ReferenceResolver
}

// Mapper translates between external wire records and internal field sets
type Mapper struct {
	direction Direction
	rules     []Rule
}

// NewImportMapper creates a mapper from external records to internal values
func NewImportMapper(rules ...Rule) (*Mapper, error) {
	return newMapper(DirectionImport, rules)
}

// NewExportMapper creates a mapper from internal values to external records
func NewExportMapper(rules ...Rule) (*Mapper, error) {
	return newMapper(DirectionExport, rules)
}

func newMapper(direction Direction, rules []Rule) (*Mapper, error) {
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}
	return &Mapper{direction: direction, rules: rules}, nil
}

// Direction returns the mapping direction
func (m *Mapper) Direction() Direction {
	return m.direction
}

// Dependencies returns the reference rules, children included
func (m *Mapper) Dependencies() []Reference {
	var refs []Reference
	for _, r := range m.rules {
		switch rule := r.(type) {
		case Reference:
			refs = append(refs, rule)
		case Children:
			refs = append(refs, rule.Mapper.Dependencies()...)
		}
	}
	return refs
}

// ExternalRef names a record another record refers to
type ExternalRef struct {
	EntityType EntityType
	ID         string
}

// References lists the records src refers to through Reference rules,
// children included, in rule order and without duplicates.
func (m *Mapper) References(src Values) []ExternalRef {
	seen := make(map[ExternalRef]bool)
	var refs []ExternalRef
	m.collectReferences(src, seen, &refs)
	return refs
}

func (m *Mapper) collectReferences(src Values, seen map[ExternalRef]bool, refs *[]ExternalRef) {
	for _, r := range m.rules {
		switch rule := r.(type) {
		case Reference:
			id := src.String(rule.From)
			if id == "" {
				continue
			}
			ref := ExternalRef{EntityType: rule.EntityType, ID: id}
			if !seen[ref] {
				seen[ref] = true
				*refs = append(*refs, ref)
			}
		case Children:
			for _, item := range listOfValues(src[rule.From]) {
				rule.Mapper.collectReferences(item, seen, refs)
			}
		}
	}
}

// Map runs the rules selected by opts over src
func (m *Mapper) Map(ctx context.Context, src Values, opts MapOptions) (Values, error) {
	out := Values{}
	for _, r := range m.rules {
		if !opts.selects(r) {
			continue
		}
		var err error
		switch rule := r.(type) {
		case Direct:
			err = m.applyDirect(rule, src, out)
		case Computed:
			if rule.CreateOnly && !opts.Create {
				continue
			}
			var computed Values
			computed, err = rule.Fn(ctx, src)
			if err == nil {
				out.Merge(computed)
			}
		case Reference:
			err = m.applyReference(ctx, rule, src, out, opts)
		case Children:
			err = m.applyChildren(ctx, rule, src, out, opts)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (o MapOptions) selects(r Rule) bool {
	if o.Changed == nil {
		return true
	}
	for _, f := range r.changedBy() {
		for _, c := range o.Changed {
			if f == c {
				return true
			}
		}
	}
	return false
}

func (m *Mapper) applyDirect(rule Direct, src, out Values) error {
	v, ok := src[rule.From]
	if !ok {
		return nil
	}
	if s, isString := v.(string); isString && s == "" {
		out[rule.To] = nil
		return nil
	}
	if rule.Convert != nil && v != nil {
		converted, err := rule.Convert(v)
		if err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrInvalidInput, rule.From, err)
		}
		v = converted
	}
	out[rule.To] = v
	return nil
}

func (m *Mapper) applyReference(ctx context.Context, rule Reference, src, out Values, opts MapOptions) error {
	raw := src.String(rule.From)
	if raw == "" {
		out[rule.To] = nil
		return nil
	}
	if opts.Resolver == nil {
		return fmt.Errorf("%w: no resolver for reference %q", ErrInvalidRule, rule.From)
	}

	if m.direction == DirectionExport {
		internalID, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrInvalidInput, rule.From, err)
		}
		externalID, ok, err := opts.Resolver.ExternalID(ctx, rule.EntityType, internalID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s %s is not exported", ErrMissingDependency, rule.EntityType, internalID)
		}
		out[rule.To] = externalID
		return nil
	}

	internalID, ok, err := opts.Resolver.InternalID(ctx, rule.EntityType, raw)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s %q is not imported", ErrMissingDependency, rule.EntityType, raw)
	}
	out[rule.To] = internalID.String()
	return nil
}

func (m *Mapper) applyChildren(ctx context.Context, rule Children, src, out Values, opts MapOptions) error {
	items := listOfValues(src[rule.From])
	childOpts := MapOptions{Create: opts.Create, Resolver: opts.Resolver}

	if m.direction == DirectionExport {
		records := make([]Values, 0, len(items))
		for _, item := range items {
			mapped, err := rule.Mapper.Map(ctx, item, childOpts)
			if err != nil {
				return err
			}
			records = append(records, mapped)
		}
		sortValues(records, rule.SortKey)
		wire := make([]any, len(records))
		for i, r := range records {
			wire[i] = map[string]any(r)
		}
		out[rule.To] = wire
		return nil
	}

	var existing []Values
	if opts.Existing != nil {
		existing = opts.Existing.Children(rule.To)
	}
	claimed := make(map[int]bool, len(existing))

	ops := make([]ChildOp, 0, len(items))
	for _, item := range items {
		childOpts.Create = true
		mapped, err := rule.Mapper.Map(ctx, item, childOpts)
		if err != nil {
			return err
		}
		op := ChildOp{Kind: ChildCreate, Values: mapped}
		if rule.Match != nil {
			for i, ex := range existing {
				if claimed[i] || !rule.Match(mapped, ex) {
					continue
				}
				id, err := uuid.Parse(ex.String(FieldChildID))
				if err != nil {
					continue
				}
				claimed[i] = true
				op = ChildOp{Kind: ChildUpdate, ID: id, Values: mapped}
				break
			}
		}
		ops = append(ops, op)
	}

	if rule.SortKey != nil {
		sort.SliceStable(ops, func(i, j int) bool {
			return rule.SortKey(ops[i].Values) < rule.SortKey(ops[j].Values)
		})
	}
	out[rule.To] = ops
	return nil
}

func sortValues(list []Values, key func(Values) string) {
	if key == nil {
		return
	}
	sort.SliceStable(list, func(i, j int) bool {
		return key(list[i]) < key(list[j])
	})
}

func listOfValues(v any) []Values {
	switch list := v.(type) {
	case []Values:
		return list
	case []Record:
		out := make([]Values, len(list))
		for i, r := range list {
			out[i] = Values(r)
		}
		return out
	case []map[string]any:
		out := make([]Values, len(list))
		for i, r := range list {
			out[i] = Values(r)
		}
		return out
	case []any:
		out := make([]Values, 0, len(list))
		for _, item := range list {
			switch r := item.(type) {
			case map[string]any:
				out = append(out, Values(r))
			case Values:
				out = append(out, r)
			case Record:
				out = append(out, Values(r))
			}
		}
		return out
	}
	return nil
}

// ---------------------------------------------------------------------------
// Converters
// ---------------------------------------------------------------------------

// ConvertDate returns a converter between two date layouts
func ConvertDate(fromLayout, toLayout string) func(any) (any, error) {
	return func(v any) (any, error) {
		switch t := v.(type) {
		case time.Time:
			return t.Format(toLayout), nil
		case string:
			parsed, err := time.Parse(fromLayout, t)
			if err != nil {
				return nil, err
			}
			return parsed.Format(toLayout), nil
		}
		return nil, fmt.Errorf("unsupported date value %T", v)
	}
}
