package proteus

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/raterudder/proteus/pkg/types"
)

// cacheEntry keeps only the raw lines so every hit decodes fresh values and
// callers can't change what's cached through the maps they get back.
type cacheEntry struct {
	lines     []string
	expiresAt time.Time
}

// resultCache is an LRU of operation results that expire after ttl.
type resultCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *cacheEntry]
	ttl   time.Duration
	now   func() time.Time
}

func newResultCache(size int, ttl time.Duration) (*resultCache, error) {
	c, err := lru.New[string, *cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &resultCache{
		cache: c,
		ttl:   ttl,
		now:   time.Now,
	}, nil
}

func cacheKey(op Operation, t types.Target) string {
	return string(op) + "|" + t.InverterID + "|" + t.HouseholdID
}

func (rc *resultCache) get(op Operation, t types.Target) ([]types.Result, bool) {
	key := cacheKey(op, t)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	entry, ok := rc.cache.Get(key)
	if !ok {
		return nil, false
	}
	if !rc.now().Before(entry.expiresAt) {
		rc.cache.Remove(key)
		return nil, false
	}
	results := make([]types.Result, len(entry.lines))
	for i, line := range entry.lines {
		results[i] = decodeLine(line)
	}
	return results, true
}

func (rc *resultCache) set(op Operation, t types.Target, results []types.Result) {
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = r.Raw
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.cache.Add(cacheKey(op, t), &cacheEntry{
		lines:     lines,
		expiresAt: rc.now().Add(rc.ttl),
	})
}

func (rc *resultCache) purge() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.cache.Purge()
}
