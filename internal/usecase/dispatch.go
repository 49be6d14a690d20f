package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/graftnet/graft"
	"github.com/graftnet/graft/document"
	"github.com/graftnet/graft/internal/domain"
	"github.com/graftnet/graft/internal/jsonld"
	"github.com/graftnet/graft/oid"
)

var tracer = otel.Tracer("dispatch")

// ActivityUsecase is the federation verb state machine. Every transition
// reads and writes through the object store; read-then-write sequences are
// not transactional, and a request that fails halfway leaves its earlier
// writes durable (no compensation exists).
type ActivityUsecase struct {
	repo   ObjectRepository
	codec  Codec
	signal SignalPublisher
	now    func() time.Time
}

func NewActivityUsecase(repo ObjectRepository, codec Codec, signal SignalPublisher) *ActivityUsecase {
	return &ActivityUsecase{
		repo:   repo,
		codec:  codec,
		signal: signal,
		now:    time.Now,
	}
}

// SubmitResult describes a persisted activity.
type SubmitResult struct {
	ActivityID string
	Verb       domain.Verb
}

// Submit interprets one activity document submitted by actor. The document
// is expanded, routed by verb, applied against the store, and the activity
// itself is persisted under a fresh identity. One timestamp is computed up
// front; every record touched by this request carries it.
func (uc *ActivityUsecase) Submit(ctx context.Context, actor string, doc *document.Map, jctx document.Array, opts jsonld.Options) (SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "Activity.Submit")
	defer span.End()

	expanded, err := uc.codec.Expand(ctx, doc, opts)
	if err != nil {
		span.RecordError(err)
		return SubmitResult{}, domain.BadRequestError{Reason: "malformed JSON-LD"}
	}

	now := uc.now().UTC()
	ts := datetimeValue(now)

	verb, err := matchVerb(expanded)
	if err != nil {
		return SubmitResult{}, err
	}

	var touched []string
	switch verb {
	case domain.VerbCreate:
		touched, err = uc.create(ctx, actor, expanded, ts, jctx, opts)
	case domain.VerbUpdate:
		touched, err = uc.update(ctx, expanded, ts, jctx, opts)
	case domain.VerbDelete:
		touched, err = uc.tombstone(ctx, expanded, ts, jctx, opts)
	case domain.VerbFollow:
		// Follow is processed upon acceptance
	case domain.VerbAdd:
		touched, err = uc.add(ctx, expanded, ts, jctx, opts)
	case domain.VerbRemove:
		touched, err = uc.remove(ctx, expanded, ts, jctx, opts)
	case domain.VerbLike, domain.VerbBlock, domain.VerbUndo:
		err = domain.NotImplementedError{Feature: verb.String() + " activities"}
	}
	if err != nil {
		span.RecordError(err)
		return SubmitResult{}, err
	}

	expanded.Set(domain.PropPublished.IRI(), ts)
	expanded.Set(domain.PropUpdated.IRI(), document.Clone(ts))
	activityID := oid.New().Hex()
	expanded.Set("@id", document.String(activityID))
	expanded.Set(domain.PropActor.IRI(), document.Array{actorRef(actor)})

	stripped, err := uc.codec.Strip(ctx, expanded, jctx, opts)
	if err != nil {
		span.RecordError(err)
		return SubmitResult{}, err
	}
	if err := uc.repo.Put(ctx, stripped); err != nil {
		span.RecordError(err)
		return SubmitResult{}, err
	}

	if uc.signal != nil {
		event := graft.Event{
			Verb:      verb.String(),
			Activity:  activityID,
			Actor:     actor,
			Objects:   touched,
			Timestamp: now,
		}
		if err := uc.signal.Publish(ctx, event); err != nil {
			slog.ErrorContext(ctx, "failed to publish activity event",
				slog.String("activity", activityID),
				slog.String("error", err.Error()),
			)
		}
	}

	return SubmitResult{ActivityID: activityID, Verb: verb}, nil
}

// create processes each object embedded in the activity's object clause:
// addressing is merged both ways, attribution and identity are forced
// server-side, and the finalized objects are substituted back into the
// activity.
func (uc *ActivityUsecase) create(ctx context.Context, actor string, activity *document.Map, ts document.Value, jctx document.Array, opts jsonld.Options) ([]string, error) {
	objs, err := nodeList(activity, domain.PropObject)
	if err != nil {
		return nil, err
	}
	if objs == nil {
		return nil, domain.BadRequestError{Reason: "invalid `object`"}
	}
	activity.Delete(domain.PropObject.IRI())

	var touched []string
	finalized := make(document.Array, 0, len(objs))
	for _, obj := range objs {
		copyRecipients(activity, obj)
		copyRecipients(obj, activity)
		obj.Set(domain.PropAttributedTo.IRI(), document.Array{actorRef(actor)})

		// never trust a client-supplied identity
		id := oid.New().Hex()
		obj.Set("@id", document.String(id))
		obj.Set(domain.PropPublished.IRI(), document.Clone(ts))
		obj.Set(domain.PropUpdated.IRI(), document.Clone(ts))

		stripped, err := uc.codec.Strip(ctx, obj, jctx, opts)
		if err != nil {
			return nil, err
		}
		if err := uc.repo.Put(ctx, stripped); err != nil {
			return nil, err
		}
		touched = append(touched, id)
		finalized = append(finalized, obj)
	}
	activity.Set(domain.PropObject.IRI(), finalized)
	return touched, nil
}

// update merges each submitted patch into the latest stored version of the
// referenced object and appends the merge as a new version. A null patch
// value deletes the key, anything else overwrites, and `id` is never
// altered regardless of patch content.
func (uc *ActivityUsecase) update(ctx context.Context, activity *document.Map, ts document.Value, jctx document.Array, opts jsonld.Options) ([]string, error) {
	objs, err := nodeList(activity, domain.PropObject)
	if err != nil {
		return nil, err
	}
	if objs == nil {
		return nil, domain.BadRequestError{Reason: "invalid `object`"}
	}
	arr, _ := activity.GetArray(domain.PropObject.IRI())

	var touched []string
	for i, obj := range objs {
		id, err := nodeID(obj)
		if err != nil {
			return nil, err
		}
		old, err := uc.repo.GetLatest(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.BadRequestError{Reason: "`object` not found"}
			}
			return nil, err
		}

		obj.Set(domain.PropUpdated.IRI(), document.Clone(ts))
		patch, err := uc.codec.Strip(ctx, obj, jctx, opts)
		if err != nil {
			return nil, err
		}
		for _, key := range patch.Keys() {
			if key == "id" {
				continue
			}
			v, _ := patch.Get(key)
			if v.Kind() == document.KindNull {
				old.Delete(key)
			} else {
				old.Set(key, v)
			}
		}
		if err := uc.repo.Put(ctx, old); err != nil {
			return nil, err
		}
		touched = append(touched, id)
		arr[i] = old
	}
	return touched, nil
}

// tombstone replaces each referenced object's current version with a
// Tombstone carrying no content besides the identity and the timestamps.
func (uc *ActivityUsecase) tombstone(ctx context.Context, activity *document.Map, ts document.Value, jctx document.Array, opts jsonld.Options) ([]string, error) {
	objs, err := nodeList(activity, domain.PropObject)
	if err != nil {
		return nil, err
	}
	if objs == nil {
		return nil, domain.BadRequestError{Reason: "invalid `object`"}
	}

	var touched []string
	for _, obj := range objs {
		id, err := nodeID(obj)
		if err != nil {
			return nil, err
		}
		tomb := document.NewMap()
		tomb.Set("id", document.String(id))
		tomb.Set("type", document.String(domain.TypeTombstone))
		tomb.Set("published", document.Clone(ts))
		tomb.Set("updated", document.Clone(ts))
		tomb.Set("deleted", document.Clone(ts))

		stripped, err := uc.codec.Strip(ctx, tomb, jctx, opts)
		if err != nil {
			return nil, err
		}
		if err := uc.repo.Put(ctx, stripped); err != nil {
			return nil, err
		}
		touched = append(touched, id)
	}
	return touched, nil
}

// add appends the activity's objects to the direct items array of each
// resolved target collection. Paged collections are unsupported.
func (uc *ActivityUsecase) add(ctx context.Context, activity *document.Map, ts document.Value, jctx document.Array, opts jsonld.Options) ([]string, error) {
	targets, err := nodeList(activity, domain.PropTarget)
	if err != nil {
		return nil, err
	}
	if targets == nil {
		return nil, domain.BadRequestError{Reason: "invalid `target`"}
	}
	objs, err := uc.strippedObjects(ctx, activity, jctx, opts)
	if err != nil {
		return nil, err
	}

	var touched []string
	for _, ref := range targets {
		id, err := nodeID(ref)
		if err != nil {
			return nil, err
		}
		target, items, err := uc.resolveCollection(ctx, id, "target")
		if err != nil {
			return nil, err
		}
		for _, obj := range objs {
			items = append(items, obj.Clone())
		}
		target.Set("items", items)
		target.Set("updated", tsLiteral(ts))
		if err := uc.repo.Put(ctx, target); err != nil {
			return nil, err
		}
		touched = append(touched, id)
	}
	return touched, nil
}

// remove deletes from each resolved origin collection at most one
// structurally-equal entry per listed object, so duplicate entries survive
// a single removal request.
func (uc *ActivityUsecase) remove(ctx context.Context, activity *document.Map, ts document.Value, jctx document.Array, opts jsonld.Options) ([]string, error) {
	origins, err := nodeList(activity, domain.PropOrigin)
	if err != nil {
		return nil, err
	}
	if origins == nil {
		origins, err = nodeList(activity, domain.PropTarget)
		if err != nil {
			return nil, err
		}
	}
	if origins == nil {
		return nil, domain.BadRequestError{Reason: "invalid `origin`"}
	}
	objs, err := uc.strippedObjects(ctx, activity, jctx, opts)
	if err != nil {
		return nil, err
	}

	var touched []string
	for _, ref := range origins {
		id, err := nodeID(ref)
		if err != nil {
			return nil, err
		}
		origin, items, err := uc.resolveCollection(ctx, id, "origin")
		if err != nil {
			return nil, err
		}

		remaining := make([]*document.Map, len(objs))
		copy(remaining, objs)
		kept := make(document.Array, 0, len(items))
		for _, item := range items {
			matched := false
			for i, obj := range remaining {
				if item.Equal(obj) {
					remaining = append(remaining[:i], remaining[i+1:]...)
					matched = true
					break
				}
			}
			if !matched {
				kept = append(kept, item)
			}
		}
		origin.Set("items", kept)
		origin.Set("updated", tsLiteral(ts))
		if err := uc.repo.Put(ctx, origin); err != nil {
			return nil, err
		}
		touched = append(touched, id)
	}
	return touched, nil
}

// resolveCollection fetches the latest version of a collection by id and
// requires the direct items shape.
func (uc *ActivityUsecase) resolveCollection(ctx context.Context, id string, role string) (*document.Map, document.Array, error) {
	target, err := uc.repo.GetLatest(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, domain.BadRequestError{Reason: "`" + role + "` not found"}
		}
		return nil, nil, err
	}
	if !isCollection(target) {
		return nil, nil, domain.BadRequestError{Reason: "`" + role + "` must be a collection"}
	}
	items, ok := target.GetArray("items")
	if !ok {
		return nil, nil, domain.BadRequestError{Reason: "`" + role + "` has no direct `items` collection"}
	}
	return target, items, nil
}

// strippedObjects strips each entry of the activity's object clause into
// its storage form.
func (uc *ActivityUsecase) strippedObjects(ctx context.Context, activity *document.Map, jctx document.Array, opts jsonld.Options) ([]*document.Map, error) {
	objs, err := nodeList(activity, domain.PropObject)
	if err != nil {
		return nil, err
	}
	if objs == nil {
		return nil, domain.BadRequestError{Reason: "invalid `object`"}
	}
	out := make([]*document.Map, 0, len(objs))
	for _, obj := range objs {
		stripped, err := uc.codec.Strip(ctx, obj, jctx, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, stripped)
	}
	return out, nil
}
