package http

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"finboard/internal/cache"
	"finboard/internal/core"
	applog "finboard/internal/log"
	"finboard/internal/sheets"
)

// transactionCache keeps transaction lists per query. Identical concurrent
// misses share one backend call. Invalidate bumps a generation so a fetch
// that started before an import cannot repopulate the cache with stale rows.
type transactionCache struct {
	reader     sheets.TransactionReader
	lists      *cache.LRUCache[[]core.Transaction]
	group      singleflight.Group
	generation atomic.Uint64
	timeout    time.Duration
}

func newTransactionCache(reader sheets.TransactionReader, size int, ttl time.Duration) *transactionCache {
	return &transactionCache{
		reader:  reader,
		lists:   cache.NewLRUCache[[]core.Transaction](size, ttl),
		timeout: 15 * time.Second,
	}
}

func cacheKey(q core.TransactionQuery) string {
	return q.Filter.String() + "|" + strconv.FormatBool(q.All)
}

// List returns a copy of the transactions for q.
func (c *transactionCache) List(ctx context.Context, q core.TransactionQuery) ([]core.Transaction, error) {
	key := cacheKey(q)
	if txs, ok := c.lists.Get(key); ok {
		applog.FromContext(ctx).DebugContext(ctx, "Transactions cache hit", applog.FieldFilter, q.Filter.String(), applog.FieldRows, len(txs))
		return slices.Clone(txs), nil
	}

	gen := c.generation.Load()
	v, err, shared := c.group.Do(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		// Detached from the caller so one cancelled request does not fail
		// the others sharing this fetch.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		txs, err := c.reader.ListTransactions(fctx, q)
		if err != nil {
			return nil, fmt.Errorf("list transactions (filter=%s): %w", q.Filter, err)
		}
		if txs == nil {
			txs = []core.Transaction{}
		}
		if c.generation.Load() == gen {
			c.lists.Set(key, txs)
		}
		return txs, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		applog.FromContext(ctx).DebugContext(ctx, "Shared in-flight transactions fetch", applog.FieldFilter, q.Filter.String())
	}
	return slices.Clone(v.([]core.Transaction)), nil
}

// Invalidate drops every cached list.
func (c *transactionCache) Invalidate() {
	c.generation.Add(1)
	c.lists.Purge()
}

func (c *transactionCache) Cleaner() cache.Cleaner {
	return c.lists
}

func (c *transactionCache) Stats() cache.Stats {
	return c.lists.Stats()
}
