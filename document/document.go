// Package document implements the JSON-like value tree that all wire and
// stored objects are made of. Objects keep their key insertion order, which
// matters both for stable storage round-trips and for context lists where
// position is significant.
package document

// Kind discriminates the variants of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindMap
)

// Value is one node of a document tree.
type Value interface {
	Kind() Kind
	// Equal reports deep structural equality. Map equality ignores key order.
	Equal(other Value) bool
}

type Null struct{}

func (Null) Kind() Kind { return KindNull }

func (Null) Equal(other Value) bool {
	_, ok := other.(Null)
	return ok
}

type Bool bool

func (Bool) Kind() Kind { return KindBool }

func (b Bool) Equal(other Value) bool {
	o, ok := other.(Bool)
	return ok && b == o
}

type Number float64

func (Number) Kind() Kind { return KindNumber }

func (n Number) Equal(other Value) bool {
	o, ok := other.(Number)
	return ok && n == o
}

type String string

func (String) Kind() Kind { return KindString }

func (s String) Equal(other Value) bool {
	o, ok := other.(String)
	return ok && s == o
}

type Array []Value

func (Array) Kind() Kind { return KindArray }

func (a Array) Equal(other Value) bool {
	o, ok := other.(Array)
	if !ok || len(a) != len(o) {
		return false
	}
	for i := range a {
		if !a[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Contains reports whether some element of a is structurally equal to v.
func (a Array) Contains(v Value) bool {
	for _, el := range a {
		if el.Equal(v) {
			return true
		}
	}
	return false
}

func (a Array) Clone() Array {
	out := make(Array, len(a))
	for i, el := range a {
		out[i] = Clone(el)
	}
	return out
}

// Map is an ordered-insertion string map. Set on an existing key replaces the
// value in place; Delete then Set moves the key to the end.
type Map struct {
	keys []string
	vals map[string]Value
}

func NewMap() *Map {
	return &Map{vals: map[string]Value{}}
}

func (*Map) Kind() Kind { return KindMap }

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order. The returned slice must not be
// mutated.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.vals[key]
	return v, ok
}

func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *Map) Set(key string, v Value) {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

func (m *Map) Delete(key string) (Value, bool) {
	v, ok := m.vals[key]
	if !ok {
		return nil, false
	}
	delete(m.vals, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return v, true
}

func (m *Map) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(String)
	return string(s), ok
}

func (m *Map) GetArray(key string) (Array, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	a, ok := v.(Array)
	return a, ok
}

func (m *Map) GetMap(key string) (*Map, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	mm, ok := v.(*Map)
	return mm, ok
}

func (m *Map) Equal(other Value) bool {
	o, ok := other.(*Map)
	if !ok || m.Len() != o.Len() {
		return false
	}
	for k, v := range m.vals {
		ov, ok := o.vals[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (m *Map) Clone() *Map {
	out := NewMap()
	for _, k := range m.keys {
		out.Set(k, Clone(m.vals[k]))
	}
	return out
}

// Clone deep-copies a value. Scalars are immutable and returned as-is.
func Clone(v Value) Value {
	switch t := v.(type) {
	case Array:
		return t.Clone()
	case *Map:
		return t.Clone()
	default:
		return v
	}
}
