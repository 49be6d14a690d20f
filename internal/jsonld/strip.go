package jsonld

import (
	"context"

	"github.com/pkg/errors"

	"github.com/graftnet/graft"
	"github.com/graftnet/graft/document"
	"github.com/graftnet/graft/internal/domain"
)

// Expand runs the external expansion algorithm and requires exactly one
// top-level node in the result. Zero or multiple roots indicate malformed
// input upstream of this call, not a recoverable per-field condition.
func (m *Manager) Expand(ctx context.Context, obj *document.Map, opts Options) (*document.Map, error) {
	nodes, err := m.proc.Expand(ctx, document.ToAny(obj), opts)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 {
		return nil, errors.Errorf("expansion produced %d root nodes, want exactly 1", len(nodes))
	}
	node, ok := nodes[0].(map[string]any)
	if !ok {
		return nil, errors.New("expansion root is not an object")
	}
	root, _ := document.FromAny(node).(*document.Map)
	return root, nil
}

// Compact runs the external compaction algorithm with the given context
// list. When the graft singleton is present it is given an @base equal to
// the request's resolved URL for the duration of the call, then the @base
// is stripped from the emitted context so the public context object stays
// clean.
func (m *Manager) Compact(ctx context.Context, obj *document.Map, jctx document.Array, opts Options) (*document.Map, error) {
	jctx = jctx.Clone()
	graftIdx := -1
	if opts.Base != "" {
		for i, el := range jctx {
			if el.Equal(m.graft) {
				entry := document.Clone(el).(*document.Map)
				entry.Set("@base", document.String(opts.Base))
				jctx[i] = entry
				graftIdx = i
			}
		}
	}
	res, err := m.proc.Compact(ctx, document.ToAny(obj), document.ToAny(jctx), opts)
	if err != nil {
		return nil, err
	}
	out, ok := document.FromAny(res).(*document.Map)
	if !ok {
		return nil, errors.New("compaction result is not an object")
	}
	if graftIdx >= 0 {
		if arr, ok := out.GetArray("@context"); ok && graftIdx < len(arr) {
			if entry, ok := arr[graftIdx].(*document.Map); ok {
				entry.Delete("@base")
			}
		}
	}
	return out, nil
}

// Strip compacts an object for persistence: the graft singleton always
// participates in compaction, then the base and graft singletons are
// removed from the front of the emitted @context (in that order, only as a
// prefix). A literal empty-string inbox/outbox is a placeholder artifact of
// relative-URL compaction against a root base and collapses to absence.
func (m *Manager) Strip(ctx context.Context, obj *document.Map, jctx document.Array, opts Options) (*document.Map, error) {
	jctx = m.EnsureGraft(jctx)
	out, err := m.Compact(ctx, obj, jctx, opts)
	if err != nil {
		return nil, err
	}
	if v, ok := out.Get("@context"); ok {
		out.Delete("@context")
		switch t := v.(type) {
		case document.String:
			if string(t) != domain.NamespaceAS {
				out.Set("@context", v)
			}
		case document.Array:
			rest := t
			if len(rest) > 0 && rest[0].Equal(m.base) {
				rest = rest[1:]
			}
			if len(rest) > 0 && rest[0].Equal(m.graft) {
				rest = rest[1:]
			}
			if len(rest) > 0 {
				out.Set("@context", rest)
			}
		default:
			out.Set("@context", v)
		}
	}
	for _, key := range []string{"inbox", "outbox"} {
		if s, ok := out.GetString(key); ok && s == "" {
			out.Delete(key)
		}
	}
	return out, nil
}

// Unstrip attaches the canonical two-singleton context to a compact
// document and expands it into the internal form.
func (m *Manager) Unstrip(ctx context.Context, obj *document.Map, opts Options) (*document.Map, error) {
	obj = obj.Clone()
	var jctx document.Array
	if v, ok := obj.Get("@context"); ok {
		if arr, isArr := v.(document.Array); isArr {
			jctx = m.EnsureBase(m.EnsureGraft(arr.Clone()))
		} else if v.Equal(m.base) || v.Equal(m.graft) {
			jctx = document.Array{m.base, document.Clone(m.graft)}
		} else {
			jctx = document.Array{m.base, document.Clone(m.graft), document.Clone(v)}
		}
	} else {
		jctx = document.Array{m.base, document.Clone(m.graft)}
	}
	obj.Set("@context", jctx)
	return m.Expand(ctx, obj, opts)
}

// UnstripActor unstrips an actor document and synthesizes default inbox
// and outbox URLs from the identity token when none were stored. Actors
// must be dereferenceable as collections even without an explicit inbox.
func (m *Manager) UnstripActor(ctx context.Context, obj *document.Map, opts Options) (*document.Map, error) {
	out, err := m.Unstrip(ctx, obj, opts)
	if err != nil {
		return nil, err
	}
	id, ok := out.GetString("@id")
	if !ok {
		return out, nil
	}
	token := graft.ExtractID(id)
	defaults := []struct {
		prop domain.Prop
		base string
	}{
		{domain.PropInbox, "../for/"},
		{domain.PropOutbox, "../by/"},
	}
	for _, d := range defaults {
		if out.Has(d.prop.IRI()) {
			continue
		}
		ref := document.NewMap()
		ref.Set("@id", document.String(d.base+token))
		out.Set(d.prop.IRI(), document.Array{ref})
	}
	return out, nil
}
