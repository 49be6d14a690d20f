package repository

import (
	"time"

	"github.com/pkg/errors"

	"github.com/graftnet/graft/document"
	"github.com/graftnet/graft/internal/domain"
	"github.com/graftnet/graft/internal/infra/database/models"
	"github.com/graftnet/graft/oid"
)

// The generic document tree only has strings, while the store has native
// identity and datetime representations. encodeObject and decodeObject
// apply the coercion symmetrically: identity-shaped and RFC3339-shaped
// strings become tagged values on write and are rendered back to canonical
// strings on read. Some plain strings matching the grammar get coerced
// here, but they are converted back on read anyway.

func encodeObject(doc *document.Map) (models.Object, error) {
	var row models.Object

	id, ok := doc.GetString("id")
	if !ok {
		return row, errors.New("`id` is missing")
	}
	if !oid.IsHex(id) {
		return row, errors.Errorf("`id` %q is not a valid identity", id)
	}
	updatedStr, ok := doc.GetString("updated")
	if !ok {
		return row, errors.New("`updated` is missing")
	}
	updated, err := time.Parse(time.RFC3339, updatedStr)
	if err != nil {
		return row, errors.Wrap(err, "`updated` is not a timestamp")
	}

	body := doc.Clone()
	body.Delete("id")
	body.Delete("updated")

	coerced, _ := coerceIn(body).(*document.Map)
	encoded, err := document.Encode(coerced)
	if err != nil {
		return row, errors.Wrap(err, "cannot encode document")
	}

	row.ObjectID = id
	row.Updated = updated.UTC()
	row.Document = string(encoded)
	row.InReplyTo = filterField(doc, "inReplyTo")
	row.Context = filterField(doc, "context")
	row.Actor = filterField(doc, "actor")
	return row, nil
}

func decodeObject(row models.Object) (*document.Map, error) {
	body, err := document.ParseMap([]byte(row.Document))
	if err != nil {
		return nil, errors.Wrap(err, "stored document is corrupt")
	}
	restored, _ := coerceOut(body).(*document.Map)

	out := document.NewMap()
	out.Set("id", document.String(row.ObjectID))
	out.Set("updated", document.String(row.Updated.UTC().Format(domain.TimeLayout)))
	for _, k := range restored.Keys() {
		v, _ := restored.Get(k)
		out.Set(k, v)
	}
	return out, nil
}

func filterField(doc *document.Map, key string) *string {
	s, ok := doc.GetString(key)
	if !ok || !oid.IsHex(s) {
		return nil
	}
	return &s
}

// coerceIn demotes coercible strings to their tagged native form,
// recursively through arbitrarily nested arrays and objects.
func coerceIn(v document.Value) document.Value {
	switch t := v.(type) {
	case document.String:
		s := string(t)
		if oid.IsHex(s) {
			tag := document.NewMap()
			tag.Set("$oid", document.String(s))
			return tag
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			tag := document.NewMap()
			tag.Set("$date", document.String(ts.UTC().Format(domain.TimeLayout)))
			return tag
		}
		return t
	case document.Array:
		out := make(document.Array, len(t))
		for i, el := range t {
			out[i] = coerceIn(el)
		}
		return out
	case *document.Map:
		out := document.NewMap()
		for _, k := range t.Keys() {
			el, _ := t.Get(k)
			out.Set(k, coerceIn(el))
		}
		return out
	default:
		return v
	}
}

// coerceOut renders tagged native values back to their canonical string
// form: lowercase hex identities, RFC3339 millisecond UTC instants.
func coerceOut(v document.Value) document.Value {
	switch t := v.(type) {
	case document.Array:
		out := make(document.Array, len(t))
		for i, el := range t {
			out[i] = coerceOut(el)
		}
		return out
	case *document.Map:
		if t.Len() == 1 {
			if s, ok := t.GetString("$oid"); ok {
				return document.String(s)
			}
			if s, ok := t.GetString("$date"); ok {
				if ts, err := time.Parse(time.RFC3339, s); err == nil {
					return document.String(ts.UTC().Format(domain.TimeLayout))
				}
				return document.String(s)
			}
		}
		out := document.NewMap()
		for _, k := range t.Keys() {
			el, _ := t.Get(k)
			out.Set(k, coerceOut(el))
		}
		return out
	default:
		return v
	}
}
