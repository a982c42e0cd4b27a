package registry

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Checker-Finance/trade-enricher/internal/metrics"
	"github.com/Checker-Finance/trade-enricher/pkg/model"
)

const shardCount = 64

// shard holds one slice of the live mapping. Writers (Upsert) serialize on
// mu and publish a fresh copy of the shard map; readers only ever load the
// pointer, so lookups never block on mutation.
type shard struct {
	mu      sync.Mutex
	entries atomic.Pointer[map[string]string]
}

// generation is one fully-built version of the product mapping. Replace
// builds a new generation and publishes it with a single pointer store, so
// no reader can observe a mix of two replace calls.
type generation struct {
	shards [shardCount]shard
}

func newGeneration() *generation {
	g := &generation{}
	for i := range g.shards {
		m := make(map[string]string)
		g.shards[i].entries.Store(&m)
	}
	return g
}

// Registry maps productId to productName under concurrent replace, upsert
// and lookup.
//
// Ordering between Replace and a concurrently-started Upsert is defined as
// replace-wins: the upsert writes into the generation it loaded, and a
// replace that publishes afterwards discards those writes wholesale. A full
// dataset reload is the source of truth, so a racing incremental update is
// considered stale.
type Registry struct {
	gen    atomic.Pointer[generation]
	logger *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{logger: logger}
	r.gen.Store(newGeneration())
	return r
}

func shardFor(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id)) //nolint:errcheck
	return h.Sum32() % shardCount
}

// Replace builds an entirely new mapping from rows and publishes it
// atomically. If a productId repeats, the later row wins and a warning is
// logged. Returns the number of rows accepted.
func (r *Registry) Replace(rows []model.ProductRow) int {
	next := &generation{}
	var shardMaps [shardCount]map[string]string
	for i := range shardMaps {
		shardMaps[i] = make(map[string]string)
	}

	entries := 0
	for _, row := range rows {
		m := shardMaps[shardFor(row.ID)]
		if prev, dup := m[row.ID]; dup {
			r.logger.Warn("registry.duplicate_product_id",
				zap.String("product_id", row.ID),
				zap.String("previous", prev),
				zap.String("replacement", row.Name))
		} else {
			entries++
		}
		m[row.ID] = row.Name
	}

	for i := range next.shards {
		m := shardMaps[i]
		next.shards[i].entries.Store(&m)
	}

	r.gen.Store(next)
	metrics.SetRegistryEntries(entries)

	r.logger.Info("registry.replaced",
		zap.Int("rows", len(rows)),
		zap.Int("entries", entries))
	return len(rows)
}

// Upsert sets or overwrites the entry for each row in the live mapping
// without disturbing other entries. Rows landing on different shards
// proceed independently; rows on the same shard serialize, later write
// winning. Returns how many rows added a new key vs updated an existing one.
func (r *Registry) Upsert(rows []model.ProductRow) (added, updated int) {
	gen := r.gen.Load()

	for _, row := range rows {
		s := &gen.shards[shardFor(row.ID)]

		s.mu.Lock()
		old := *s.entries.Load()
		next := make(map[string]string, len(old)+1)
		for k, v := range old {
			next[k] = v
		}
		prev, existed := next[row.ID]
		next[row.ID] = row.Name
		s.entries.Store(&next)
		s.mu.Unlock()

		if existed {
			updated++
			r.logger.Debug("registry.updated",
				zap.String("product_id", row.ID),
				zap.String("old_name", prev),
				zap.String("new_name", row.Name))
		} else {
			added++
			r.logger.Debug("registry.added",
				zap.String("product_id", row.ID),
				zap.String("name", row.Name))
		}
	}

	metrics.SetRegistryEntries(r.Size())

	r.logger.Info("registry.upserted",
		zap.Int("added", added),
		zap.Int("updated", updated))
	return added, updated
}

// Lookup returns the mapped name for productId, or the sentinel
// "Missing Product Name" and ok=false when absent. It never blocks on
// concurrent Replace/Upsert.
func (r *Registry) Lookup(productID string) (string, bool) {
	gen := r.gen.Load()
	m := *gen.shards[shardFor(productID)].entries.Load()
	if name, ok := m[productID]; ok {
		return name, true
	}
	return model.MissingProductName, false
}

// Size returns the number of entries in the currently published mapping.
func (r *Registry) Size() int {
	gen := r.gen.Load()
	n := 0
	for i := range gen.shards {
		n += len(*gen.shards[i].entries.Load())
	}
	return n
}
