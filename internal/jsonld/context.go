// Package jsonld translates documents between their compact wire/storage
// form and the fully qualified expanded form, managing the two canonical
// @context singletons along the way.
package jsonld

import (
	"strings"

	"github.com/graftnet/graft/document"
	"github.com/graftnet/graft/internal/domain"
)

// Options carries the per-request parameters of a translation. Base is the
// request's resolved URL; relative identifiers compact against it.
type Options struct {
	Base string
}

// Manager holds the two canonical context singletons and the external
// JSON-LD processor. Construct one at startup and share it.
type Manager struct {
	proc  Processor
	base  document.Value
	graft document.Value
}

func NewManager(proc Processor) *Manager {
	return &Manager{
		proc:  proc,
		base:  document.String(domain.NamespaceAS),
		graft: graftContext(),
	}
}

// graftContext maps relation properties to relative-URL bases so compacted
// documents carry bare identifiers instead of absolute URLs. Setting base
// URLs for existing properties is technically not conformant, which is why
// this context is only ever provided opt-in.
func graftContext() *document.Map {
	entries := []struct {
		prop domain.Prop
		base string
	}{
		{domain.PropActor, "../of/"},
		{domain.PropAttributedTo, "../of/"},
		{domain.PropInbox, "../for/"},
		{domain.PropOutbox, "../by/"},
		{domain.PropObject, "../post/"},
	}
	m := document.NewMap()
	for _, e := range entries {
		inner := document.NewMap()
		base := document.NewMap()
		base.Set("@base", document.String(e.base))
		inner.Set("@context", base)
		m.Set(e.prop.IRI(), inner)
	}
	return m
}

// BaseContext returns the base ActivityStreams context singleton.
func (m *Manager) BaseContext() document.Value { return m.base }

// GraftContext returns the graft context singleton.
func (m *Manager) GraftContext() document.Value { return m.graft }

// EnsureBase inserts the base context singleton unless already present:
// immediately before the graft singleton when one is in the list, at the
// front otherwise. Idempotent.
func (m *Manager) EnsureBase(ctx document.Array) document.Array {
	for _, el := range ctx {
		if el.Equal(m.base) {
			return ctx
		}
	}
	pos := 0
	for i, el := range ctx {
		if el.Equal(m.graft) {
			pos = i
			break
		}
	}
	return insertAt(ctx, pos, m.base)
}

// EnsureGraft inserts the graft context singleton unless already present:
// immediately after the base singleton when one is in the list, at the
// front otherwise. Idempotent.
func (m *Manager) EnsureGraft(ctx document.Array) document.Array {
	for _, el := range ctx {
		if el.Equal(m.graft) {
			return ctx
		}
	}
	pos := 0
	for i, el := range ctx {
		if el.Equal(m.base) {
			pos = i + 1
			break
		}
	}
	return insertAt(ctx, pos, document.Clone(m.graft))
}

// ResponseContext builds the context list to send with a response: the
// object's own @context, optionally the graft singleton when a profile
// token opts in, and unconditionally the base singleton.
func (m *Manager) ResponseContext(obj *document.Map, profiles []string) document.Array {
	ctx := ContextList(obj)
	for _, profile := range profiles {
		if m.graftOptIn(profile) {
			ctx = m.EnsureGraft(ctx)
			break
		}
	}
	return m.EnsureBase(ctx)
}

// graftOptIn inspects the space-separated tokens of an ld+json profile
// parameter. No token currently activates the graft context; the hook is
// kept so opt-in can be defined without changing the envelope.
func (m *Manager) graftOptIn(profile string) bool {
	for range strings.Fields(profile) {
	}
	return false
}

// ContextList normalizes an object's @context field into a context list:
// absent becomes empty, a single value becomes a singleton list, an array
// is taken as-is.
func ContextList(obj *document.Map) document.Array {
	v, ok := obj.Get("@context")
	if !ok {
		return document.Array{}
	}
	if a, ok := v.(document.Array); ok {
		return a.Clone()
	}
	return document.Array{document.Clone(v)}
}

func insertAt(ctx document.Array, i int, v document.Value) document.Array {
	out := make(document.Array, 0, len(ctx)+1)
	out = append(out, ctx[:i]...)
	out = append(out, v)
	out = append(out, ctx[i:]...)
	return out
}
