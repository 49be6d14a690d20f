package usecase

import (
	"context"
	"time"

	"github.com/graftnet/graft"
	"github.com/graftnet/graft/document"
	"github.com/graftnet/graft/internal/jsonld"
)

// ObjectRepository is the append-only, time-versioned object store as the
// dispatch engine sees it.
type ObjectRepository interface {
	Put(ctx context.Context, doc *document.Map) error
	GetLatest(ctx context.Context, id string) (*document.Map, error)
	GetAt(ctx context.Context, id string, t time.Time) (*document.Map, error)
	GetAllBy(ctx context.Context, relation string, id string) ([]*document.Map, error)
	GetHistory(ctx context.Context, id string) ([]*document.Map, error)
}

// Codec is the slice of the context manager the dispatch engine depends on.
// Both calls may suspend on remote context fetches and fail independently.
type Codec interface {
	Expand(ctx context.Context, obj *document.Map, opts jsonld.Options) (*document.Map, error)
	Strip(ctx context.Context, obj *document.Map, jctx document.Array, opts jsonld.Options) (*document.Map, error)
}

// SignalPublisher broadcasts accepted activities to realtime listeners.
type SignalPublisher interface {
	Publish(ctx context.Context, event graft.Event) error
}
