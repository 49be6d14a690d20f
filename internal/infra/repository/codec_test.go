package repository

import (
	"testing"

	"github.com/graftnet/graft/document"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in, err := document.ParseMap([]byte(`{
		"id": "507f1f77bcf86cd799439011",
		"updated": "2020-05-01T10:30:15.250Z",
		"type": "Note",
		"name": "hello",
		"inReplyTo": "407f1f77bcf86cd799439011",
		"published": "2020-05-01T10:30:15.250Z",
		"tags": ["a", "307f1f77bcf86cd799439011"]
	}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	row, err := encodeObject(in)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if row.ObjectID != "507f1f77bcf86cd799439011" {
		t.Fatalf("unexpected object id %q", row.ObjectID)
	}
	if row.InReplyTo == nil || *row.InReplyTo != "407f1f77bcf86cd799439011" {
		t.Fatalf("inReplyTo filter column not populated")
	}
	if row.Actor != nil {
		t.Fatalf("actor filter column must stay empty")
	}

	out, err := decodeObject(row)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !out.Equal(in) {
		inJSON, _ := document.Encode(in)
		outJSON, _ := document.Encode(out)
		t.Fatalf("round trip mismatch:\n in: %s\nout: %s", inJSON, outJSON)
	}

	// id and updated lead the decoded document
	keys := out.Keys()
	if keys[0] != "id" || keys[1] != "updated" {
		t.Fatalf("unexpected leading keys %v", keys)
	}
}

func TestEncodeRejectsInvalidEnvelope(t *testing.T) {
	noID, _ := document.ParseMap([]byte(`{"updated": "2020-05-01T10:30:15.250Z"}`))
	if _, err := encodeObject(noID); err == nil {
		t.Fatalf("missing id must be rejected")
	}

	badID, _ := document.ParseMap([]byte(`{"id": "Hello", "updated": "2020-05-01T10:30:15.250Z"}`))
	if _, err := encodeObject(badID); err == nil {
		t.Fatalf("malformed id must be rejected")
	}

	noUpdated, _ := document.ParseMap([]byte(`{"id": "507f1f77bcf86cd799439011"}`))
	if _, err := encodeObject(noUpdated); err == nil {
		t.Fatalf("missing updated must be rejected")
	}
}

func TestCoercionTagsNativeShapes(t *testing.T) {
	in, _ := document.ParseMap([]byte(`{
		"ref": "507f1f77bcf86cd799439011",
		"when": "2020-05-01T10:30:15.250Z",
		"plain": "just a string",
		"nested": {"deep": ["607f1f77bcf86cd799439011"]}
	}`))

	coerced := coerceIn(in).(*document.Map)

	ref, ok := coerced.GetMap("ref")
	if !ok || !ref.Has("$oid") {
		t.Fatalf("identity string must become a $oid tag: %v", coerced)
	}
	when, ok := coerced.GetMap("when")
	if !ok || !when.Has("$date") {
		t.Fatalf("timestamp string must become a $date tag: %v", coerced)
	}
	if _, ok := coerced.GetString("plain"); !ok {
		t.Fatalf("plain strings must pass through")
	}
	nested, _ := coerced.GetMap("nested")
	deep, _ := nested.GetArray("deep")
	if inner, ok := deep[0].(*document.Map); !ok || !inner.Has("$oid") {
		t.Fatalf("coercion must recurse into arrays and objects")
	}

	restored := coerceOut(coerced).(*document.Map)
	if !restored.Equal(in) {
		t.Fatalf("coercion is not symmetric: %v vs %v", restored, in)
	}
}
