package pipeline

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/invoiceflow/invoice-extractor/internal/extract"
)

// ResultCache stores finished extraction results so re-runs over the same
// directory skip documents that already succeeded. Injected explicitly;
// callers that want no caching simply leave it nil.
type ResultCache interface {
	Get(key string) (extract.Result, bool)
	Put(key string, res extract.Result)
}

type lruCache struct {
	lru *expirable.LRU[string, extract.Result]
}

// NewLRUCache returns an in-memory TTL-bounded cache holding up to size
// results.
func NewLRUCache(size int, ttl time.Duration) ResultCache {
	return &lruCache{lru: expirable.NewLRU[string, extract.Result](size, nil, ttl)}
}

func (c *lruCache) Get(key string) (extract.Result, bool) { return c.lru.Get(key) }
func (c *lruCache) Put(key string, res extract.Result)    { c.lru.Add(key, res) }

// cacheKey ties a cached result to the file's identity and content version,
// so an edited PDF is re-processed rather than served stale.
func cacheKey(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return path
	}
	return fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
}
