package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/graftnet/graft"
	"github.com/graftnet/graft/document"
	"github.com/graftnet/graft/internal/domain"
	"github.com/graftnet/graft/internal/jsonld"
)

// --- mocks ---

// fakeCodec is a miniature strip implementation sufficient for dispatch
// semantics: property IRIs compact to their local names, node references
// to bare id tokens, value literals to their value, and singleton arrays
// unwrap. Expand assumes the test feeds already-expanded documents.
type fakeCodec struct{}

func (fakeCodec) Expand(ctx context.Context, obj *document.Map, opts jsonld.Options) (*document.Map, error) {
	out := obj.Clone()
	out.Delete("@context")
	return out, nil
}

func (fakeCodec) Strip(ctx context.Context, obj *document.Map, jctx document.Array, opts jsonld.Options) (*document.Map, error) {
	return compactNode(obj), nil
}

func compactKey(k string) string {
	if i := strings.LastIndexByte(k, '#'); i >= 0 {
		return k[i+1:]
	}
	return k
}

func compactNode(m *document.Map) *document.Map {
	out := document.NewMap()
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		switch k {
		case "@id":
			s, _ := m.GetString("@id")
			out.Set("id", document.String(graft.ExtractID(s)))
		case "@type":
			out.Set("type", compactValue(v))
		default:
			out.Set(compactKey(k), compactValue(v))
		}
	}
	return out
}

func compactValue(v document.Value) document.Value {
	switch t := v.(type) {
	case *document.Map:
		if val, ok := t.Get("@value"); ok {
			return compactValue(val)
		}
		if id, ok := t.GetString("@id"); ok && t.Len() == 1 {
			return document.String(graft.ExtractID(id))
		}
		return compactNode(t)
	case document.Array:
		if len(t) == 1 {
			return compactValue(t[0])
		}
		out := make(document.Array, len(t))
		for i, el := range t {
			out[i] = compactValue(el)
		}
		return out
	case document.String:
		return document.String(compactKey(string(t)))
	default:
		return v
	}
}

type memVersion struct {
	at  time.Time
	doc *document.Map
}

// memRepo is an in-memory stand-in for the versioned store with the same
// latest/at semantics.
type memRepo struct {
	versions map[string][]memVersion
	puts     int
}

func newMemRepo() *memRepo {
	return &memRepo{versions: map[string][]memVersion{}}
}

func (r *memRepo) Put(ctx context.Context, doc *document.Map) error {
	id, ok := doc.GetString("id")
	if !ok {
		return errors.New("`id` is missing")
	}
	updated, ok := doc.GetString("updated")
	if !ok {
		return errors.New("`updated` is missing")
	}
	at, err := time.Parse(time.RFC3339, updated)
	if err != nil {
		return err
	}
	r.versions[id] = append(r.versions[id], memVersion{at: at, doc: doc.Clone()})
	sort.SliceStable(r.versions[id], func(i, j int) bool {
		return r.versions[id][i].at.Before(r.versions[id][j].at)
	})
	r.puts++
	return nil
}

func (r *memRepo) GetLatest(ctx context.Context, id string) (*document.Map, error) {
	vs := r.versions[id]
	if len(vs) == 0 {
		return nil, domain.NotFoundError{Resource: "object " + id}
	}
	return vs[len(vs)-1].doc.Clone(), nil
}

func (r *memRepo) GetAt(ctx context.Context, id string, t time.Time) (*document.Map, error) {
	vs := r.versions[id]
	for i := len(vs) - 1; i >= 0; i-- {
		if !vs[i].at.After(t) {
			return vs[i].doc.Clone(), nil
		}
	}
	return nil, domain.NotFoundError{Resource: "object " + id}
}

func (r *memRepo) GetAllBy(ctx context.Context, relation string, id string) ([]*document.Map, error) {
	var out []*document.Map
	for _, vs := range r.versions {
		latest := vs[len(vs)-1].doc
		if s, ok := latest.GetString(relation); ok && s == id {
			out = append(out, latest.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := out[i].GetString("updated")
		b, _ := out[j].GetString("updated")
		return a < b
	})
	return out, nil
}

func (r *memRepo) GetHistory(ctx context.Context, id string) ([]*document.Map, error) {
	vs := r.versions[id]
	if len(vs) == 0 {
		return nil, domain.NotFoundError{Resource: "object " + id}
	}
	out := make([]*document.Map, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.doc.Clone())
	}
	return out, nil
}

type fakeSignal struct {
	events []graft.Event
}

func (s *fakeSignal) Publish(ctx context.Context, event graft.Event) error {
	s.events = append(s.events, event)
	return nil
}

// --- helpers ---

const (
	testActor = "a07f1f77bcf86cd799439011"
	objectA   = "507f1f77bcf86cd799439011"
	objectB   = "607f1f77bcf86cd799439011"
)

var testNow = time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine() (*ActivityUsecase, *memRepo, *fakeSignal) {
	repo := newMemRepo()
	signal := &fakeSignal{}
	uc := NewActivityUsecase(repo, fakeCodec{}, signal)
	uc.now = func() time.Time { return testNow }
	return uc, repo, signal
}

func activity(verb domain.Verb) *document.Map {
	act := document.NewMap()
	act.Set("@type", document.Array{document.String(verb.IRI())})
	return act
}

func nodeRef(id string) *document.Map {
	ref := document.NewMap()
	ref.Set("@id", document.String(id))
	return ref
}

func seed(t *testing.T, repo *memRepo, body string) {
	t.Helper()
	doc, err := document.ParseMap([]byte(body))
	if err != nil {
		t.Fatalf("bad seed document: %v", err)
	}
	if err := repo.Put(context.Background(), doc); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func submit(t *testing.T, uc *ActivityUsecase, act *document.Map) SubmitResult {
	t.Helper()
	result, err := uc.Submit(context.Background(), testActor, act, nil, jsonld.Options{})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	return result
}

// --- tests ---

func TestCreateOverridesIdentityAndAttribution(t *testing.T) {
	uc, repo, signal := newTestEngine()

	obj := nodeRef(objectA) // client-supplied identity
	obj.Set(domain.PropAttributedTo.IRI(), document.Array{nodeRef("../of/mallory")})
	obj.Set("content", document.Array{document.String("hello")})
	obj.Set(domain.PropTo.IRI(), document.Array{document.String("a")})

	act := activity(domain.VerbCreate)
	act.Set(domain.PropObject.IRI(), document.Array{obj})
	act.Set(domain.PropCc.IRI(), document.Array{document.String("b")})

	result := submit(t, uc, act)
	if result.Verb != domain.VerbCreate {
		t.Fatalf("unexpected verb %v", result.Verb)
	}
	if len(signal.events) != 1 || signal.events[0].Verb != "Create" {
		t.Fatalf("expected one Create event, got %v", signal.events)
	}
	if len(signal.events[0].Objects) != 1 {
		t.Fatalf("event must carry the touched object")
	}

	storedID := signal.events[0].Objects[0]
	if storedID == objectA {
		t.Fatalf("client-supplied identity must never be trusted")
	}
	stored, err := repo.GetLatest(context.Background(), storedID)
	if err != nil {
		t.Fatalf("created object not stored: %v", err)
	}
	if s, _ := stored.GetString("attributedTo"); s != testActor {
		t.Fatalf("attribution must be the submitting actor, got %q", s)
	}
	if s, _ := stored.GetString("content"); s != "hello" {
		t.Fatalf("content lost: %v", stored)
	}
	if s, _ := stored.GetString("published"); s != domain.FormatTime(testNow) {
		t.Fatalf("unexpected published stamp %q", s)
	}
}

func TestCreateMergesAddressingBothWays(t *testing.T) {
	uc, repo, signal := newTestEngine()

	obj := document.NewMap()
	obj.Set(domain.PropTo.IRI(), document.Array{document.String("a"), document.String("shared")})

	act := activity(domain.VerbCreate)
	act.Set(domain.PropObject.IRI(), document.Array{obj})
	act.Set(domain.PropTo.IRI(), document.Array{document.String("shared"), document.String("b")})

	submit(t, uc, act)

	stored, _ := repo.GetLatest(context.Background(), signal.events[0].Objects[0])
	to, ok := stored.GetArray("to")
	if !ok {
		t.Fatalf("recipients missing on object: %v", stored)
	}
	want := document.Array{document.String("a"), document.String("shared"), document.String("b")}
	if !to.Equal(want) {
		t.Fatalf("object recipients = %v, want %v", to, want)
	}

	storedAct, _ := repo.GetLatest(context.Background(), signal.events[0].Activity)
	actTo, _ := storedAct.GetArray("to")
	wantAct := document.Array{document.String("shared"), document.String("b"), document.String("a")}
	if !actTo.Equal(wantAct) {
		t.Fatalf("activity recipients = %v, want %v", actTo, wantAct)
	}
}

func TestCreateRejectsMissingObject(t *testing.T) {
	uc, _, _ := newTestEngine()

	_, err := uc.Submit(context.Background(), testActor, activity(domain.VerbCreate), nil, jsonld.Options{})
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
}

func TestUpdateMergesPatch(t *testing.T) {
	uc, repo, _ := newTestEngine()
	seed(t, repo, `{"id": "`+objectA+`", "updated": "2021-01-01T00:00:00.000Z", "foo": 5, "bar": 1}`)

	// null deletes the key
	patch := nodeRef(objectA)
	patch.Set("foo", document.Array{document.Null{}})
	act := activity(domain.VerbUpdate)
	act.Set(domain.PropObject.IRI(), document.Array{patch})
	submit(t, uc, act)

	latest, _ := repo.GetLatest(context.Background(), objectA)
	if latest.Has("foo") {
		t.Fatalf("null patch must delete the key: %v", latest)
	}
	if v, _ := latest.Get("bar"); !v.Equal(document.Number(1)) {
		t.Fatalf("untouched keys must survive: %v", latest)
	}
	if s, _ := latest.GetString("id"); s != objectA {
		t.Fatalf("identity must never change, got %q", s)
	}

	// plain values overwrite
	patch = nodeRef(objectA)
	patch.Set("bar", document.Array{document.Number(7)})
	act = activity(domain.VerbUpdate)
	act.Set(domain.PropObject.IRI(), document.Array{patch})
	submit(t, uc, act)

	latest, _ = repo.GetLatest(context.Background(), objectA)
	if v, _ := latest.Get("bar"); !v.Equal(document.Number(7)) {
		t.Fatalf("patch must overwrite, got %v", latest)
	}

	history, _ := repo.GetHistory(context.Background(), objectA)
	if len(history) != 3 {
		t.Fatalf("each update must append a version, got %d", len(history))
	}
}

func TestUpdateEmbedsMergedObjectInActivity(t *testing.T) {
	uc, repo, signal := newTestEngine()
	seed(t, repo, `{"id": "`+objectA+`", "updated": "2021-01-01T00:00:00.000Z", "foo": 5}`)

	patch := nodeRef(objectA)
	patch.Set("bar", document.Array{document.Number(2)})
	act := activity(domain.VerbUpdate)
	act.Set(domain.PropObject.IRI(), document.Array{patch})
	submit(t, uc, act)

	// the persisted activity carries the merge result, not the bare patch
	storedAct, err := repo.GetLatest(context.Background(), signal.events[0].Activity)
	if err != nil {
		t.Fatalf("activity not stored: %v", err)
	}
	obj, ok := storedAct.GetMap("object")
	if !ok {
		t.Fatalf("activity object clause missing: %v", storedAct)
	}
	if v, _ := obj.Get("foo"); !v.Equal(document.Number(5)) {
		t.Fatalf("merged fields must appear in the activity, got %v", obj)
	}
	if v, _ := obj.Get("bar"); !v.Equal(document.Number(2)) {
		t.Fatalf("patched fields must appear in the activity, got %v", obj)
	}
	if s, _ := obj.GetString("id"); s != objectA {
		t.Fatalf("embedded object keeps its identity, got %q", s)
	}
}

func TestUpdateUnknownObject(t *testing.T) {
	uc, _, _ := newTestEngine()

	act := activity(domain.VerbUpdate)
	act.Set(domain.PropObject.IRI(), document.Array{nodeRef(objectA)})
	_, err := uc.Submit(context.Background(), testActor, act, nil, jsonld.Options{})
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
}

func TestDeleteLeavesTombstoneAndHistory(t *testing.T) {
	uc, repo, _ := newTestEngine()
	seed(t, repo, `{"id": "`+objectA+`", "updated": "2021-01-01T00:00:00.000Z", "content": "precious"}`)

	act := activity(domain.VerbDelete)
	act.Set(domain.PropObject.IRI(), document.Array{nodeRef(objectA)})
	submit(t, uc, act)

	latest, _ := repo.GetLatest(context.Background(), objectA)
	if s, _ := latest.GetString("type"); s != domain.TypeTombstone {
		t.Fatalf("expected a Tombstone, got %v", latest)
	}
	if latest.Has("content") {
		t.Fatalf("tombstones carry no content: %v", latest)
	}
	if s, _ := latest.GetString("id"); s != objectA {
		t.Fatalf("tombstone keeps the identity, got %q", s)
	}

	before := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	old, err := repo.GetAt(context.Background(), objectA, before)
	if err != nil {
		t.Fatalf("pre-delete version must stay readable: %v", err)
	}
	if s, _ := old.GetString("content"); s != "precious" {
		t.Fatalf("pre-delete content lost: %v", old)
	}
}

func TestAddAppendsToCollection(t *testing.T) {
	uc, repo, _ := newTestEngine()
	seed(t, repo, `{"id": "`+objectA+`", "updated": "2021-01-01T00:00:00.000Z", "type": "Collection", "items": ["x"]}`)

	act := activity(domain.VerbAdd)
	act.Set(domain.PropObject.IRI(), document.Array{nodeRef(objectB)})
	act.Set(domain.PropTarget.IRI(), document.Array{nodeRef(objectA)})
	submit(t, uc, act)

	latest, _ := repo.GetLatest(context.Background(), objectA)
	items, _ := latest.GetArray("items")
	if len(items) != 2 {
		t.Fatalf("expected appended item, got %v", items)
	}
	added, ok := items[1].(*document.Map)
	if !ok {
		t.Fatalf("unexpected item shape: %v", items[1])
	}
	if s, _ := added.GetString("id"); s != objectB {
		t.Fatalf("unexpected appended item %v", added)
	}
	if s, _ := latest.GetString("updated"); s != domain.FormatTime(testNow) {
		t.Fatalf("collection stamp not refreshed, got %q", s)
	}
}

func TestAddRejectsBadTargets(t *testing.T) {
	uc, repo, _ := newTestEngine()
	seed(t, repo, `{"id": "`+objectA+`", "updated": "2021-01-01T00:00:00.000Z", "type": "Note"}`)
	seed(t, repo, `{"id": "`+objectB+`", "updated": "2021-01-01T00:00:00.000Z", "type": "Collection"}`)

	cases := []struct {
		name   string
		target string
	}{
		{"missing target", "f07f1f77bcf86cd799439011"},
		{"target is not a collection", objectA},
		{"collection without direct items", objectB},
	}
	for _, c := range cases {
		act := activity(domain.VerbAdd)
		act.Set(domain.PropObject.IRI(), document.Array{nodeRef("c07f1f77bcf86cd799439011")})
		act.Set(domain.PropTarget.IRI(), document.Array{nodeRef(c.target)})
		_, err := uc.Submit(context.Background(), testActor, act, nil, jsonld.Options{})
		if !errors.Is(err, domain.ErrBadRequest) {
			t.Errorf("%s: expected BadRequest, got %v", c.name, err)
		}
	}
}

func TestRemoveDeletesAtMostOnePerListed(t *testing.T) {
	uc, repo, _ := newTestEngine()
	seed(t, repo, `{"id": "`+objectA+`", "updated": "2021-01-01T00:00:00.000Z", "type": "Collection",
		"items": [{"id": "`+objectB+`"}, {"id": "`+objectB+`"}, "y"]}`)

	act := activity(domain.VerbRemove)
	act.Set(domain.PropObject.IRI(), document.Array{nodeRef(objectB)})
	act.Set(domain.PropOrigin.IRI(), document.Array{nodeRef(objectA)})
	submit(t, uc, act)

	latest, _ := repo.GetLatest(context.Background(), objectA)
	items, _ := latest.GetArray("items")
	if len(items) != 2 {
		t.Fatalf("exactly one duplicate must be removed, got %v", items)
	}
	dup, ok := items[0].(*document.Map)
	if !ok {
		t.Fatalf("surviving duplicate missing: %v", items)
	}
	if s, _ := dup.GetString("id"); s != objectB {
		t.Fatalf("unexpected surviving item %v", dup)
	}
}

func TestRemoveFallsBackToTarget(t *testing.T) {
	uc, repo, _ := newTestEngine()
	seed(t, repo, `{"id": "`+objectA+`", "updated": "2021-01-01T00:00:00.000Z", "type": "Collection", "items": [{"id": "`+objectB+`"}]}`)

	act := activity(domain.VerbRemove)
	act.Set(domain.PropObject.IRI(), document.Array{nodeRef(objectB)})
	act.Set(domain.PropTarget.IRI(), document.Array{nodeRef(objectA)})
	submit(t, uc, act)

	latest, _ := repo.GetLatest(context.Background(), objectA)
	items, _ := latest.GetArray("items")
	if len(items) != 0 {
		t.Fatalf("expected empty items, got %v", items)
	}
}

func TestFollowPersistsOnlyTheActivity(t *testing.T) {
	uc, repo, signal := newTestEngine()

	act := activity(domain.VerbFollow)
	act.Set(domain.PropObject.IRI(), document.Array{nodeRef(objectA)})
	result := submit(t, uc, act)

	if repo.puts != 1 {
		t.Fatalf("Follow must write only the activity, wrote %d", repo.puts)
	}
	stored, err := repo.GetLatest(context.Background(), result.ActivityID)
	if err != nil {
		t.Fatalf("activity not stored: %v", err)
	}
	if s, _ := stored.GetString("type"); s != "Follow" {
		t.Fatalf("unexpected activity type: %v", stored)
	}
	if s, _ := stored.GetString("actor"); s != testActor {
		t.Fatalf("activity actor must be the submitter, got %q", s)
	}
	if len(signal.events) != 1 || len(signal.events[0].Objects) != 0 {
		t.Fatalf("Follow touches no objects, got %v", signal.events)
	}
}

func TestUnsupportedAndMissingTypes(t *testing.T) {
	uc, _, _ := newTestEngine()

	// bare object, no implicit Create
	note := document.NewMap()
	note.Set("@type", document.Array{document.String(domain.AS("Note"))})
	if _, err := uc.Submit(context.Background(), testActor, note, nil, jsonld.Options{}); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("bare object must be rejected, got %v", err)
	}

	// no type at all
	if _, err := uc.Submit(context.Background(), testActor, document.NewMap(), nil, jsonld.Options{}); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("missing type must be rejected, got %v", err)
	}
}

func TestUnbuiltVerbs(t *testing.T) {
	uc, repo, _ := newTestEngine()

	for _, verb := range []domain.Verb{domain.VerbLike, domain.VerbBlock, domain.VerbUndo} {
		act := activity(verb)
		act.Set(domain.PropObject.IRI(), document.Array{nodeRef(objectA)})
		_, err := uc.Submit(context.Background(), testActor, act, nil, jsonld.Options{})
		if !errors.Is(err, domain.ErrNotImplemented) {
			t.Errorf("%v: expected NotImplemented, got %v", verb, err)
		}
	}
	if repo.puts != 0 {
		t.Fatalf("rejected verbs must write nothing, wrote %d", repo.puts)
	}
}
