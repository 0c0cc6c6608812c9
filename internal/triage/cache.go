package triage

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

type tallyKey struct {
	appID string
	id    uuid.UUID
}

// TallyLoader fetches tallies for reports missing from the cache.
type TallyLoader func(ctx context.Context, appID string, ids []uuid.UUID) (map[uuid.UUID]Tally, error)

// TallyCache holds per-report vote and comment counts. Writers call
// Invalidate after each vote or comment.
//
// Each key has a version that only moves while a fill for it is in flight.
// Fills are shared through singleflight only between callers that saw the
// same versions, and a fill is stored only if no invalidation happened while
// it ran. A version entry is dropped once no fill for its key is pending.
type TallyCache struct {
	mu       sync.Mutex
	entries  map[tallyKey]Tally
	versions map[tallyKey]uint64
	pending  map[tallyKey]int
	group    singleflight.Group
}

func NewTallyCache() *TallyCache {
	return &TallyCache{
		entries:  make(map[tallyKey]Tally),
		versions: make(map[tallyKey]uint64),
		pending:  make(map[tallyKey]int),
	}
}

func (c *TallyCache) Invalidate(appID string, id uuid.UUID) {
	k := tallyKey{appID, id}
	c.mu.Lock()
	delete(c.entries, k)
	if c.pending[k] > 0 {
		c.versions[k]++
	}
	c.mu.Unlock()
}

// Get returns tallies for ids, loading the missing ones in a single call.
// Reports without votes or comments get a zero Tally.
func (c *TallyCache) Get(ctx context.Context, appID string, ids []uuid.UUID, load TallyLoader) (map[uuid.UUID]Tally, error) {
	out := make(map[uuid.UUID]Tally, len(ids))
	var missing []uuid.UUID
	seen := make(map[tallyKey]uint64)

	c.mu.Lock()
	for _, id := range ids {
		k := tallyKey{appID, id}
		if t, ok := c.entries[k]; ok {
			out[id] = t
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		missing = append(missing, id)
		seen[k] = c.versions[k]
		c.pending[k]++
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	v, err, _ := c.group.Do(flightKey(appID, missing, seen), func() (any, error) {
		return load(ctx, appID, missing)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range missing {
		k := tallyKey{appID, id}
		if err == nil {
			t := v.(map[uuid.UUID]Tally)[id]
			out[id] = t
			if c.versions[k] == seen[k] {
				c.entries[k] = t
			}
		}
		if c.pending[k]--; c.pending[k] == 0 {
			delete(c.pending, k)
			delete(c.versions, k)
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// flightKey names a fill by tenant, report ids and the versions the caller
// saw, so a caller that saw a later invalidation never joins an older fill.
func flightKey(appID string, ids []uuid.UUID, seen map[tallyKey]uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String() + "@" + strconv.FormatUint(seen[tallyKey{appID, id}], 10)
	}
	sort.Strings(parts)
	return appID + "|" + strings.Join(parts, ",")
}
