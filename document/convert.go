package document

import (
	"sort"
)

// leading keys are pinned to the front when rebuilding a Map from an
// unordered tree, so processor output serializes predictably.
var leadingKeys = []string{"@context", "@id", "id", "@type", "type"}

// ToAny converts a value into the generic interface tree the JSON-LD
// processor consumes. Ordering is lost at this boundary.
func ToAny(v Value) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(t)
	case Number:
		return float64(t)
	case String:
		return string(t)
	case Array:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = ToAny(el)
		}
		return out
	case *Map:
		out := make(map[string]any, t.Len())
		for _, k := range t.Keys() {
			el, _ := t.Get(k)
			out[k] = ToAny(el)
		}
		return out
	}
	return nil
}

// FromAny rebuilds a value from a generic interface tree. Since Go maps are
// unordered, object keys are ordered canonically: JSON-LD sigils and id/type
// first, the rest sorted.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null{}
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case string:
		return String(t)
	case []any:
		out := make(Array, len(t))
		for i, el := range t {
			out[i] = FromAny(el)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, lead := range leadingKeys {
			if el, ok := t[lead]; ok {
				m.Set(lead, FromAny(el))
			}
		}
		for _, k := range keys {
			if m.Has(k) {
				continue
			}
			m.Set(k, FromAny(t[k]))
		}
		return m
	}
	return Null{}
}
