package usecase

import (
	"context"
	"time"

	"github.com/graftnet/graft/document"
	"github.com/graftnet/graft/internal/domain"
)

// ObjectUsecase serves read-side lookups over the versioned store.
type ObjectUsecase struct {
	repo ObjectRepository
}

func NewObjectUsecase(repo ObjectRepository) *ObjectUsecase {
	return &ObjectUsecase{repo: repo}
}

// Get returns the current version of an object.
func (uc *ObjectUsecase) Get(ctx context.Context, id string) (*document.Map, error) {
	ctx, span := tracer.Start(ctx, "Object.Get")
	defer span.End()
	return uc.repo.GetLatest(ctx, id)
}

// GetAt returns the version that was current at t.
func (uc *ObjectUsecase) GetAt(ctx context.Context, id string, t time.Time) (*document.Map, error) {
	ctx, span := tracer.Start(ctx, "Object.GetAt")
	defer span.End()
	return uc.repo.GetAt(ctx, id, t)
}

// History returns every stored version of an object, oldest first.
func (uc *ObjectUsecase) History(ctx context.Context, id string) ([]*document.Map, error) {
	ctx, span := tracer.Start(ctx, "Object.History")
	defer span.End()
	return uc.repo.GetHistory(ctx, id)
}

// Replies lists the current versions of every object replying to id.
func (uc *ObjectUsecase) Replies(ctx context.Context, id string) ([]*document.Map, error) {
	ctx, span := tracer.Start(ctx, "Object.Replies")
	defer span.End()
	return uc.repo.GetAllBy(ctx, domain.RelationInReplyTo, id)
}

// Children lists the current versions of every object whose context is id.
func (uc *ObjectUsecase) Children(ctx context.Context, id string) ([]*document.Map, error) {
	ctx, span := tracer.Start(ctx, "Object.Children")
	defer span.End()
	return uc.repo.GetAllBy(ctx, domain.RelationContext, id)
}

// ActivitiesBy lists the current versions of every object attributed to an
// actor, newest last.
func (uc *ObjectUsecase) ActivitiesBy(ctx context.Context, actor string) ([]*document.Map, error) {
	ctx, span := tracer.Start(ctx, "Object.ActivitiesBy")
	defer span.End()
	return uc.repo.GetAllBy(ctx, domain.RelationActor, actor)
}
