package contentsync

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/content-control-plane/ccp/pkg/vcs"
)

const commitCacheSize = 64

// commitCache keeps commit listings by revision and limit. A revision never
// changes its history, so entries need no invalidation.
type commitCache struct {
	cache *lru.Cache
}

func newCommitCache() *commitCache {
	cache, err := lru.New(commitCacheSize)
	if err != nil {
		panic(err)
	}
	return &commitCache{cache: cache}
}

func (c *commitCache) get(revision string, limit int) ([]vcs.Commit, bool) {
	v, ok := c.cache.Get(key(revision, limit))
	if !ok {
		return nil, false
	}
	return v.([]vcs.Commit), true
}

func (c *commitCache) add(revision string, limit int, commits []vcs.Commit) {
	c.cache.Add(key(revision, limit), commits)
}

func key(revision string, limit int) string {
	return fmt.Sprintf("%s/%d", revision, limit)
}
