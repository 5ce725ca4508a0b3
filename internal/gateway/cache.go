package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/naka-gawa/github-profile-stats/internal/domain"
)

// CachedSource wraps a RepositoryDataSource with a caching layer for per-repository calls.
//
// Entries live in an in-memory LRU and, if a store is given, in a persistent KV store,
// so consecutive runs within ttl skip the per-repository requests entirely.
// Listings and contributions always go to the wrapped source.
type CachedSource struct {
	source RepositoryDataSource
	memory *lru.Cache
	store  KVStore
	ttl    time.Duration
	logger zerolog.Logger

	now func() time.Time
}

var _ RepositoryDataSource = (*CachedSource)(nil)

// NewCachedSource creates new CachedSource instance. store is optional.
func NewCachedSource(source RepositoryDataSource, store KVStore, size int, ttl time.Duration, logger zerolog.Logger) (*CachedSource, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be greater than 0")
	}
	memory, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}

	return &CachedSource{
		source: source,
		memory: memory,
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}, nil
}

type cacheEntry struct {
	Created   int64            `json:"created"`
	Languages map[string]int64 `json:"languages,omitempty"`
	Commits   int64            `json:"commits"`
}

// ListRepositories is never cached.
func (c *CachedSource) ListRepositories(ctx context.Context, scope domain.OwnerScope) ([]domain.RepositorySummary, error) {
	return c.source.ListRepositories(ctx, scope)
}

// GetContributionsThisYear is never cached.
func (c *CachedSource) GetContributionsThisYear(ctx context.Context, account string) (domain.Contributions, error) {
	return c.source.GetContributionsThisYear(ctx, account)
}

// GetLanguageBreakdown returns the cached breakdown if fresh, otherwise asks the source.
func (c *CachedSource) GetLanguageBreakdown(ctx context.Context, id domain.RepositoryID) (map[string]int64, error) {
	key := "lang/" + string(id)
	if entry, ok := c.lookup(key); ok {
		return copyLanguages(entry.Languages), nil
	}

	langs, err := c.source.GetLanguageBreakdown(ctx, id)
	if err != nil {
		return nil, err
	}
	c.save(key, cacheEntry{Created: c.now().Unix(), Languages: copyLanguages(langs)})
	return langs, nil
}

// GetCommitCount returns the cached count if fresh, otherwise asks the source.
func (c *CachedSource) GetCommitCount(ctx context.Context, id domain.RepositoryID) (int64, error) {
	key := "commits/" + string(id)
	if entry, ok := c.lookup(key); ok {
		return entry.Commits, nil
	}

	count, err := c.source.GetCommitCount(ctx, id)
	if err != nil {
		return 0, err
	}
	c.save(key, cacheEntry{Created: c.now().Unix(), Commits: count})
	return count, nil
}

func (c *CachedSource) fresh(entry cacheEntry) bool {
	return time.Unix(entry.Created, 0).Add(c.ttl).After(c.now())
}

func (c *CachedSource) lookup(key string) (cacheEntry, bool) {
	if val, ok := c.memory.Get(key); ok {
		entry := val.(cacheEntry)
		if c.fresh(entry) {
			return entry, true
		}
		c.memory.Remove(key)
	}

	if c.store == nil {
		return cacheEntry{}, false
	}
	data, err := c.store.ReadKey([]byte(key))
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return cacheEntry{}, false
	}
	if data == nil {
		return cacheEntry{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry is corrupt")
		return cacheEntry{}, false
	}
	if !c.fresh(entry) {
		return cacheEntry{}, false
	}
	c.memory.Add(key, entry)
	return entry, true
}

func (c *CachedSource) save(key string, entry cacheEntry) {
	c.memory.Add(key, entry)
	if c.store == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry marshalling failed")
		return
	}
	if err := c.store.UpdateKey([]byte(key), data); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func copyLanguages(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
