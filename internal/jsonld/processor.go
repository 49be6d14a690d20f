package jsonld

import (
	"context"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/piprate/json-gold/ld"
	"github.com/pkg/errors"

	"github.com/graftnet/graft/internal/domain"
)

// Processor is the external W3C JSON-LD 1.1 algorithm, consumed as a
// conformant black box. Both calls may perform remote context fetches, so
// they take a context and may fail independently.
type Processor interface {
	Expand(ctx context.Context, doc any, opts Options) ([]any, error)
	Compact(ctx context.Context, doc any, jsonldContext any, opts Options) (map[string]any, error)
}

// GoldProcessor adapts the json-gold implementation. Remote context
// documents are cached in-process with a TTL so repeated expansions do not
// refetch the ActivityStreams context.
type GoldProcessor struct {
	proc   *ld.JsonLdProcessor
	loader ld.DocumentLoader
}

func NewGoldProcessor() *GoldProcessor {
	loader := &cachingLoader{
		next:  ld.NewDefaultDocumentLoader(&http.Client{Timeout: 30 * time.Second}),
		cache: gocache.New(1*time.Hour, 10*time.Minute),
	}
	return &GoldProcessor{
		proc:   ld.NewJsonLdProcessor(),
		loader: loader,
	}
}

func (p *GoldProcessor) options(opts Options) *ld.JsonLdOptions {
	o := ld.NewJsonLdOptions(opts.Base)
	o.ProcessingMode = ld.JsonLd_1_1
	o.DocumentLoader = p.loader
	o.ExpandContext = domain.NamespaceAS
	return o
}

func (p *GoldProcessor) Expand(ctx context.Context, doc any, opts Options) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	expanded, err := p.proc.Expand(doc, p.options(opts))
	if err != nil {
		return nil, errors.Wrap(err, "jsonld expansion failed")
	}
	return expanded, nil
}

func (p *GoldProcessor) Compact(ctx context.Context, doc any, jsonldContext any, opts Options) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	compacted, err := p.proc.Compact(doc, jsonldContext, p.options(opts))
	if err != nil {
		return nil, errors.Wrap(err, "jsonld compaction failed")
	}
	return compacted, nil
}

type cachingLoader struct {
	next  ld.DocumentLoader
	cache *gocache.Cache
}

func (l *cachingLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	if doc, ok := l.cache.Get(u); ok {
		return doc.(*ld.RemoteDocument), nil
	}
	doc, err := l.next.LoadDocument(u)
	if err != nil {
		return nil, err
	}
	l.cache.SetDefault(u, doc)
	return doc, nil
}
