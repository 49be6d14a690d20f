package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"gorm.io/gorm"

	"github.com/graftnet/graft/document"
	"github.com/graftnet/graft/internal/domain"
	"github.com/graftnet/graft/internal/infra/database/models"
)

// ObjectRepository is the append-only, time-versioned object store.
// Rows are never updated or deleted; every mutation is a new (id, updated)
// row. There is no compare-and-swap against an expected prior version, so
// two writers racing on the same id can both append (the known lost-update
// race).
type ObjectRepository struct {
	db *gorm.DB
	mc *memcache.Client
}

func NewObjectRepository(db *gorm.DB, mc *memcache.Client) *ObjectRepository {
	return &ObjectRepository{db: db, mc: mc}
}

// Put appends a new version row. The document must carry `id` and
// `updated`; colliding (id, updated) pairs are not checked for here.
func (r *ObjectRepository) Put(ctx context.Context, doc *document.Map) error {
	row, err := encodeObject(doc)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	if r.mc != nil {
		// best effort, the cache repopulates on next read
		_ = r.mc.Delete(latestKey(row.ObjectID))
	}
	return nil
}

// GetLatest returns the version row with the maximum `updated` for an id.
func (r *ObjectRepository) GetLatest(ctx context.Context, id string) (*document.Map, error) {
	if r.mc != nil {
		if item, err := r.mc.Get(latestKey(id)); err == nil {
			if doc, err := document.ParseMap(item.Value); err == nil {
				return doc, nil
			}
		}
	}

	var row models.Object
	err := r.db.WithContext(ctx).
		Where("object_id = ?", id).
		Order("updated DESC").
		Limit(1).
		Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, domain.NotFoundError{Resource: "object " + id}
	}
	if err != nil {
		return nil, err
	}

	doc, err := decodeObject(row)
	if err != nil {
		return nil, err
	}
	if r.mc != nil {
		if encoded, err := document.Encode(doc); err == nil {
			_ = r.mc.Set(&memcache.Item{Key: latestKey(id), Value: encoded, Expiration: 300})
		}
	}
	return doc, nil
}

// GetAt returns the version row with the maximum `updated` <= t.
func (r *ObjectRepository) GetAt(ctx context.Context, id string, t time.Time) (*document.Map, error) {
	var row models.Object
	err := r.db.WithContext(ctx).
		Where("object_id = ? AND updated <= ?", id, t.UTC()).
		Order("updated DESC").
		Limit(1).
		Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, domain.NotFoundError{Resource: "object " + id}
	}
	if err != nil {
		return nil, err
	}
	return decodeObject(row)
}

// GetHistory returns every version row of an id, ascending by `updated`.
// An id with no rows at all is NotFound.
func (r *ObjectRepository) GetHistory(ctx context.Context, id string) ([]*document.Map, error) {
	var rows []models.Object
	err := r.db.WithContext(ctx).
		Where("object_id = ?", id).
		Order("updated ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.NotFoundError{Resource: "object " + id}
	}

	out := make([]*document.Map, 0, len(rows))
	for _, row := range rows {
		doc, err := decodeObject(row)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

var filterColumns = map[string]string{
	domain.RelationInReplyTo: "in_reply_to",
	domain.RelationContext:   "context",
	domain.RelationActor:     "actor",
}

// GetAllBy returns the current-version rows whose relation field equals id,
// ascending by `updated`.
func (r *ObjectRepository) GetAllBy(ctx context.Context, relation string, id string) ([]*document.Map, error) {
	column, ok := filterColumns[relation]
	if !ok {
		return nil, fmt.Errorf("unknown relation %q", relation)
	}

	var rows []models.Object
	err := r.db.WithContext(ctx).
		Where(fmt.Sprintf("%s = ?", column), id).
		Where("(object_id, updated) IN (SELECT object_id, MAX(updated) FROM objects GROUP BY object_id)").
		Order("updated ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]*document.Map, 0, len(rows))
	for _, row := range rows {
		doc, err := decodeObject(row)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func latestKey(id string) string {
	return "graft:latest:" + id
}
