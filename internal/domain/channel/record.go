package channel

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Record is an external wire record keyed by field name.
type Record map[string]any

// Values is an internal field set produced or consumed by a Mapper.
type Values map[string]any

// ID returns the external identifier carried in the "id" field
func (r Record) ID() string {
	return stringify(r["id"])
}

// String returns the field value as a string, or "" when absent
func (r Record) String(field string) string {
	return stringify(r[field])
}

// Clone returns a shallow copy
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Merge copies other into v, overriding existing keys
func (v Values) Merge(other Values) {
	for k, val := range other {
		v[k] = val
	}
}

// Keys returns the field names in sorted order
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the field value as a string, or "" when absent
func (v Values) String(field string) string {
	return stringify(v[field])
}

// Int returns the field value as an int
func (v Values) Int(field string) (int, bool) {
	f, ok := toFloat(v[field])
	if !ok {
		return 0, false
	}
	return int(f), true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}
