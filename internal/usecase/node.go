package usecase

import (
	"time"

	"github.com/graftnet/graft"
	"github.com/graftnet/graft/document"
	"github.com/graftnet/graft/internal/domain"
	"github.com/graftnet/graft/oid"
)

// matchVerb reads the expanded @type array and maps it onto a supported
// activity verb. Documents without a recognized activity type are rejected
// rather than wrapped in an implicit Create.
func matchVerb(activity *document.Map) (domain.Verb, error) {
	types, ok := activity.GetArray("@type")
	if !ok || len(types) == 0 {
		return 0, domain.BadRequestError{Reason: "missing `type`"}
	}
	for _, t := range types {
		s, ok := t.(document.String)
		if !ok {
			continue
		}
		if verb, ok := domain.VerbFromIRI(string(s)); ok {
			return verb, nil
		}
	}
	return 0, domain.BadRequestError{Reason: "unsupported activity type"}
}

// nodeList extracts the node objects of one expanded property. Absence is
// reported as (nil, nil) so callers can distinguish it from a malformed
// clause.
func nodeList(m *document.Map, prop domain.Prop) ([]*document.Map, error) {
	v, ok := m.Get(prop.IRI())
	if !ok {
		return nil, nil
	}
	arr, ok := v.(document.Array)
	if !ok {
		return nil, domain.BadRequestError{Reason: "invalid `" + prop.String() + "`"}
	}
	out := make([]*document.Map, 0, len(arr))
	for _, entry := range arr {
		node, ok := entry.(*document.Map)
		if !ok {
			return nil, domain.BadRequestError{Reason: "invalid `" + prop.String() + "`"}
		}
		out = append(out, node)
	}
	return out, nil
}

// nodeID extracts the local object id out of an expanded node reference.
func nodeID(node *document.Map) (string, error) {
	raw, ok := node.GetString("@id")
	if !ok {
		return "", domain.BadRequestError{Reason: "missing `id`"}
	}
	id := graft.ExtractID(raw)
	if !oid.IsHex(id) {
		return "", domain.BadRequestError{Reason: "invalid `id`"}
	}
	return id, nil
}

// actorRef builds an expanded node reference resolving to the actor's
// profile URL.
func actorRef(actor string) *document.Map {
	ref := document.NewMap()
	ref.Set("@id", document.String("../of/"+actor))
	return ref
}

// copyRecipients unions the addressing properties of src into dst,
// preserving dst's entries and their order and skipping duplicates.
func copyRecipients(dst, src *document.Map) {
	for _, prop := range domain.RecipientProps {
		iri := prop.IRI()
		from, ok := src.GetArray(iri)
		if !ok || len(from) == 0 {
			continue
		}
		to, _ := dst.GetArray(iri)
		merged := make(document.Array, len(to), len(to)+len(from))
		copy(merged, to)
		for _, v := range from {
			if merged.Contains(v) {
				continue
			}
			merged = append(merged, document.Clone(v))
		}
		dst.Set(iri, merged)
	}
}

// isCollection inspects the compact type of a stored document.
func isCollection(doc *document.Map) bool {
	v, ok := doc.Get("type")
	if !ok {
		return false
	}
	switch t := v.(type) {
	case document.String:
		return domain.IsCollectionType(string(t))
	case document.Array:
		for _, entry := range t {
			if s, ok := entry.(document.String); ok && domain.IsCollectionType(string(s)) {
				return true
			}
		}
	}
	return false
}

const xsdDateTime = "http://www.w3.org/2001/XMLSchema#dateTime"

// datetimeValue wraps a formatted timestamp in the expanded xsd:dateTime
// literal shape. The ActivityStreams context coerces the datetime
// properties, so compaction folds this back into a plain string.
func datetimeValue(t time.Time) document.Value {
	lit := document.NewMap()
	lit.Set("@value", document.String(domain.FormatTime(t)))
	lit.Set("@type", document.String(xsdDateTime))
	return lit
}

// tsLiteral unwraps a datetimeValue into the bare string used on already
// compacted documents.
func tsLiteral(ts document.Value) document.Value {
	if lit, ok := ts.(*document.Map); ok {
		if s, ok := lit.GetString("@value"); ok {
			return document.String(s)
		}
	}
	return document.Clone(ts)
}
