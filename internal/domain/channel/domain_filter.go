package channel

import (
	"fmt"
	"strings"
	"time"
)

// Operator is a comparison operator of the domain predicate language
type Operator string

const (
	OpEq    Operator = "="
	OpNe    Operator = "!="
	OpGt    Operator = ">"
	OpLt    Operator = "<"
	OpGte   Operator = ">="
	OpLte   Operator = "<="
	OpIn    Operator = "in"
	OpNotIn Operator = "not in"
)

// IsValid returns true if the operator is supported
func (o Operator) IsValid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpLt, OpGte, OpLte, OpIn, OpNotIn:
		return true
	}
	return false
}

// Condition is a single (field, operator, value) predicate
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// Cond is a shorthand constructor for a Condition
func Cond(field string, op Operator, value any) Condition {
	return Condition{Field: field, Operator: op, Value: value}
}

// Domain is a conjunction of conditions evaluated client side, since most
// remote APIs cannot filter on arbitrary fields.
type Domain []Condition

// Validate checks operators and, when knownFields is non-empty, field names.
func (d Domain) Validate(knownFields ...string) error {
	known := make(map[string]struct{}, len(knownFields))
	for _, f := range knownFields {
		known[f] = struct{}{}
	}
	for _, c := range d {
		if c.Field == "" {
			return fmt.Errorf("%w: empty field", ErrInvalidFilter)
		}
		if !c.Operator.IsValid() {
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidFilter, c.Operator)
		}
		if len(known) > 0 {
			if _, ok := known[c.Field]; !ok {
				return fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, c.Field)
			}
		}
		if c.Operator == OpIn || c.Operator == OpNotIn {
			if _, ok := asList(c.Value); !ok {
				return fmt.Errorf("%w: operator %q needs a list value", ErrInvalidFilter, c.Operator)
			}
		}
	}
	return nil
}

// Match evaluates the domain against a single record. A field missing from
// the record fails with ErrInvalidFilter.
func (d Domain) Match(r Record) (bool, error) {
	if err := d.Validate(); err != nil {
		return false, err
	}
	for _, c := range d {
		v, ok := r[c.Field]
		if !ok {
			return false, fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, c.Field)
		}
		matched, err := c.eval(v)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// Filter returns the records matching the domain. A field absent from every
// record is reported as unknown; records merely lacking it do not match.
func (d Domain) Filter(records []Record) ([]Record, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if len(d) == 0 {
		return records, nil
	}
	if len(records) > 0 {
		for _, c := range d {
			if !fieldSeen(records, c.Field) {
				return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, c.Field)
			}
		}
	}

	out := make([]Record, 0, len(records))
next:
	for _, r := range records {
		for _, c := range d {
			v, ok := r[c.Field]
			if !ok {
				continue next
			}
			matched, err := c.eval(v)
			if err != nil {
				return nil, err
			}
			if !matched {
				continue next
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func fieldSeen(records []Record, field string) bool {
	for _, r := range records {
		if _, ok := r[field]; ok {
			return true
		}
	}
	return false
}

func (c Condition) eval(v any) (bool, error) {
	switch c.Operator {
	case OpEq:
		return equalValues(v, c.Value), nil
	case OpNe:
		return !equalValues(v, c.Value), nil
	case OpIn, OpNotIn:
		list, _ := asList(c.Value)
		found := false
		for _, item := range list {
			if equalValues(v, item) {
				found = true
				break
			}
		}
		if c.Operator == OpIn {
			return found, nil
		}
		return !found, nil
	}

	cmp, err := compareValues(v, c.Value)
	if err != nil {
		return false, fmt.Errorf("%w: field %q: %v", ErrInvalidFilter, c.Field, err)
	}
	switch c.Operator {
	case OpGt:
		return cmp > 0, nil
	case OpLt:
		return cmp < 0, nil
	case OpGte:
		return cmp >= 0, nil
	case OpLte:
		return cmp <= 0, nil
	}
	return false, fmt.Errorf("%w: unsupported operator %q", ErrInvalidFilter, c.Operator)
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	if ta, ok := toTime(a); ok {
		if tb, ok := toTime(b); ok {
			return ta.Equal(tb)
		}
	}
	return stringify(a) == stringify(b)
}

func compareValues(a, b any) (int, error) {
	if a == nil || b == nil {
		return 0, fmt.Errorf("cannot order null values")
	}
	if _, ok := a.(bool); ok {
		return 0, fmt.Errorf("cannot order boolean values")
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, nil
			case fa > fb:
				return 1, nil
			}
			return 0, nil
		}
	}
	if ta, ok := toTime(a); ok {
		if tb, ok := toTime(b); ok {
			return ta.Compare(tb), nil
		}
	}
	return strings.Compare(stringify(a), stringify(b)), nil
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339, DateLayout} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	case []int64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}
