package draft

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// volatileKeyPrefix namespaces draft keys in the volatile tier.
const volatileKeyPrefix = "draft:"

// errVolatileCapacity is the volatile tier's write rejection under its byte
// budget. The tiered store catches it and falls back.
var errVolatileCapacity = errors.New("draft: volatile tier capacity exceeded")

// volatileTier is the small, fast, per-process store. It models the
// tab-scoped tier: bounded capacity, lost on restart.
type volatileTier struct {
	mu      sync.Mutex
	budget  int
	used    int
	entries map[string]volatileEntry
}

type volatileEntry struct {
	payload []byte
	savedAt time.Time
}

func newVolatileTier(budget int) *volatileTier {
	return &volatileTier{budget: budget, entries: make(map[string]volatileEntry)}
}

func volatileKey(entityID string) string {
	return volatileKeyPrefix + entityID
}

func (t *volatileTier) save(entityID string, payload []byte, savedAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := volatileKey(entityID)
	previous := 0
	if existing, ok := t.entries[key]; ok {
		previous = len(existing.payload)
	}
	if len(payload) > t.budget || t.used-previous+len(payload) > t.budget {
		return errVolatileCapacity
	}
	t.entries[key] = volatileEntry{payload: payload, savedAt: savedAt}
	t.used += len(payload) - previous
	return nil
}

func (t *volatileTier) load(entityID string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[volatileKey(entityID)]
	if !ok {
		return nil, false
	}
	return entry.payload, true
}

func (t *volatileTier) delete(entityID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deleteLocked(volatileKey(entityID))
}

func (t *volatileTier) deleteLocked(key string) {
	if entry, ok := t.entries[key]; ok {
		t.used -= len(entry.payload)
		delete(t.entries, key)
	}
}

// pruneToNewest drops oldest entries until at most keep remain.
func (t *volatileTier) pruneToNewest(keep int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if keep < 0 {
		keep = 0
	}
	excess := len(t.entries) - keep
	if excess <= 0 {
		return
	}
	for _, key := range t.oldestKeysLocked(excess) {
		t.deleteLocked(key)
	}
}

// pruneOlderThan drops entries saved before the cutoff.
func (t *volatileTier) pruneOlderThan(cutoff time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, entry := range t.entries {
		if entry.savedAt.Before(cutoff) {
			t.deleteLocked(key)
		}
	}
}

func (t *volatileTier) oldestKeysLocked(n int) []string {
	type keyed struct {
		key     string
		savedAt time.Time
	}
	all := make([]keyed, 0, len(t.entries))
	for key, entry := range t.entries {
		all = append(all, keyed{key: key, savedAt: entry.savedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].savedAt.Before(all[j].savedAt) })
	if n > len(all) {
		n = len(all)
	}
	keys := make([]string, 0, n)
	for _, entry := range all[:n] {
		keys = append(keys, entry.key)
	}
	return keys
}

func (t *volatileTier) usage() TierUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TierUsage{UsedBytes: int64(t.used), CapacityBytes: int64(t.budget), Records: int64(len(t.entries))}
}
