package usecase

import (
	"context"
	"time"

	"github.com/graftnet/graft/document"
	"github.com/graftnet/graft/internal/domain"
	"github.com/graftnet/graft/internal/jsonld"
	"github.com/graftnet/graft/oid"
)

// AccountUsecase provisions actor objects from submitted documents.
type AccountUsecase struct {
	repo  ObjectRepository
	codec Codec
	now   func() time.Time
}

func NewAccountUsecase(repo ObjectRepository, codec Codec) *AccountUsecase {
	return &AccountUsecase{repo: repo, codec: codec, now: time.Now}
}

// CreateResult describes a provisioned actor. Name carries the display
// name decorating the actor's canonical URL, when one was submitted.
type CreateResult struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Create persists the submitted actor document under a fresh identity.
// The document is stored as submitted apart from the identity and the
// timestamps, which are forced server-side before stripping. A `name`,
// when present, must be a string so it can decorate the canonical URL.
func (uc *AccountUsecase) Create(ctx context.Context, doc *document.Map, jctx document.Array, opts jsonld.Options) (CreateResult, error) {
	ctx, span := tracer.Start(ctx, "Account.Create")
	defer span.End()

	var name string
	if v, ok := doc.Get("name"); ok {
		s, isString := v.(document.String)
		if !isString {
			return CreateResult{}, domain.BadRequestError{Reason: "`name` must be a string"}
		}
		name = string(s)
	}

	id := oid.New().Hex()
	ts := datetimeValue(uc.now().UTC())
	doc = doc.Clone()
	doc.Set("id", document.String(id))
	doc.Set(domain.PropPublished.IRI(), ts)
	doc.Set(domain.PropUpdated.IRI(), document.Clone(ts))

	stripped, err := uc.codec.Strip(ctx, doc, jctx, opts)
	if err != nil {
		span.RecordError(err)
		return CreateResult{}, domain.BadRequestError{Reason: "malformed JSON-LD"}
	}
	if err := uc.repo.Put(ctx, stripped); err != nil {
		span.RecordError(err)
		return CreateResult{}, err
	}
	return CreateResult{ID: id, Name: name}, nil
}
