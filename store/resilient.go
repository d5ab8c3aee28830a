package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/briangreenhill/csmkit/cache"
	"github.com/briangreenhill/csmkit/fault"
	"github.com/briangreenhill/csmkit/resilience"
)

// Resilient decorates a DocumentStore with the client-side survival
// kit: TTL-cached reads deduplicated through singleflight, breaker plus
// retry around every remote call, shape validation before writes, and
// blunt full-cache invalidation after them.
//
// Read flow: cache hit -> done; miss -> one flight per key runs the
// guarded remote call and fills the cache. Write flow: validate ->
// guarded remote call -> clear the whole cache.
type Resilient struct {
	inner   DocumentStore
	cache   *cache.Cache
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
	shapes  *Registry
	log     zerolog.Logger

	group singleflight.Group

	ttl     time.Duration
	collTTL map[string]time.Duration
}

// ResilientOption customizes the decorator.
type ResilientOption func(*Resilient)

// WithCacheTTL sets the default TTL for cached reads.
func WithCacheTTL(d time.Duration) ResilientOption {
	return func(r *Resilient) { r.ttl = d }
}

// WithCollectionTTL overrides the read TTL for one collection.
func WithCollectionTTL(collection string, d time.Duration) ResilientOption {
	return func(r *Resilient) { r.collTTL[collection] = d }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) ResilientOption {
	return func(r *Resilient) { r.retry = cfg }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) ResilientOption {
	return func(r *Resilient) { r.log = log }
}

// NewResilient wires the decorator around inner. The cache, breaker,
// and shape registry are injected so the caller owns their lifecycle
// and tests can reach them.
func NewResilient(inner DocumentStore, c *cache.Cache, b *resilience.Breaker, shapes *Registry, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		inner:   inner,
		cache:   c,
		breaker: b,
		retry:   resilience.DefaultRetryConfig(),
		shapes:  shapes,
		log:     zerolog.Nop(),
		ttl:     15 * time.Minute,
		collTTL: make(map[string]time.Duration),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Resilient) ttlFor(collection string) time.Duration {
	if d, ok := r.collTTL[collection]; ok {
		return d
	}
	return r.ttl
}

func (r *Resilient) GetAll(ctx context.Context, collection string) ([]Document, error) {
	key := cache.Key(collection+"/all", nil)
	v, err := r.cachedRead(ctx, "store.getAll", key, r.ttlFor(collection), func(ctx context.Context) (any, error) {
		return r.inner.GetAll(ctx, collection)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Document), nil
}

func (r *Resilient) GetByID(ctx context.Context, collection, id string) (Document, error) {
	key := cache.Key(collection+"/"+id, nil)
	v, err := r.cachedRead(ctx, "store.getById", key, r.ttlFor(collection), func(ctx context.Context) (any, error) {
		return r.inner.GetByID(ctx, collection, id)
	})
	if err != nil {
		return Document{}, err
	}
	return v.(Document), nil
}

func (r *Resilient) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	key := queryKey(collection, q)
	v, err := r.cachedRead(ctx, "store.query", key, r.ttlFor(collection), func(ctx context.Context) (any, error) {
		return r.inner.Query(ctx, collection, q)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Document), nil
}

func (r *Resilient) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	if err := r.shapes.CheckPatch(collection, patch); err != nil {
		return err
	}
	return r.write(ctx, "store.update", func(ctx context.Context) error {
		return r.inner.Update(ctx, collection, id, patch)
	})
}

func (r *Resilient) Delete(ctx context.Context, collection, id string) error {
	return r.write(ctx, "store.delete", func(ctx context.Context) error {
		return r.inner.Delete(ctx, collection, id)
	})
}

func (r *Resilient) BatchWrite(ctx context.Context, ops []WriteOp) error {
	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			if err := r.shapes.CheckDoc(op.Collection, op.Doc); err != nil {
				return err
			}
		case OpUpdate:
			if err := r.shapes.CheckPatch(op.Collection, op.Patch); err != nil {
				return err
			}
		}
	}
	return r.write(ctx, "store.batchWrite", func(ctx context.Context) error {
		return r.inner.BatchWrite(ctx, ops)
	})
}

// cachedRead is the shared read path. Concurrent misses for one key
// collapse into a single remote call.
func (r *Resilient) cachedRead(ctx context.Context, op, key string, ttl time.Duration, load func(context.Context) (any, error)) (any, error) {
	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}
	v, err, _ := r.group.Do(key, func() (any, error) {
		// Another flight may have filled the cache while this one queued.
		if v, ok := r.cache.Get(key); ok {
			return v, nil
		}
		var out any
		err := resilience.Execute(ctx, r.breaker, r.retry, func(ctx context.Context) error {
			v, err := load(ctx)
			if err != nil {
				return fault.Classify(op, err)
			}
			out = v
			return nil
		})
		if err != nil {
			return nil, err
		}
		r.cache.Set(key, out, ttl)
		return out, nil
	})
	if err != nil {
		r.log.Warn().
			Str("op", op).
			Str("key", key).
			Str("code", string(fault.CodeOf(err))).
			Err(err).
			Msg("read failed")
		return nil, err
	}
	return v, nil
}

// write is the shared write path: guarded remote call, then full cache
// invalidation so derived reads repopulate.
func (r *Resilient) write(ctx context.Context, op string, call func(context.Context) error) error {
	err := resilience.Execute(ctx, r.breaker, r.retry, func(ctx context.Context) error {
		return fault.Classify(op, call(ctx))
	})
	if err != nil {
		r.log.Error().
			Str("op", op).
			Str("code", string(fault.CodeOf(err))).
			Err(err).
			Msg("write failed")
		return err
	}
	r.cache.Clear()
	return nil
}

func queryKey(collection string, q Query) string {
	params := make(map[string]string, len(q.Filters)+2)
	for _, f := range q.Filters {
		params["f:"+f.Field+f.Op] = fmt.Sprint(f.Value)
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.Desc {
			dir = "desc"
		}
		params["order"] = q.OrderBy + ":" + dir
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}
	return cache.Key(collection+"/query", params)
}
