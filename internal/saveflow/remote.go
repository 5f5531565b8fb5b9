package saveflow

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrRemoteNotFound indicates the remote store has no entity with the
	// given identifier. Terminal for that identifier; the negative cache
	// short-circuits further attempts.
	ErrRemoteNotFound = errors.New("saveflow: remote entity not found")
	// ErrRemoteSave wraps transient remote failures. The local draft remains
	// authoritative; the next scheduled save retries.
	ErrRemoteSave = errors.New("saveflow: remote save failed")
)

// ContentPatch is the payload of a remote save.
type ContentPatch struct {
	Content string
	SavedAt time.Time
}

// Revision describes the remote store's state after an accepted save.
type Revision struct {
	Version   int64
	UpdatedAt time.Time
}

// RemoteStore is the authoritative server-side store for the edited entity.
// Implementations return an error matching ErrRemoteNotFound when the entity
// does not exist; any other failure is treated as transient.
type RemoteStore interface {
	Update(ctx context.Context, entityID string, patch ContentPatch) (Revision, error)
}

// NotFoundCache records entity identifiers the remote store has confirmed
// missing, so repeated saves against them short-circuit to local-only writes
// instead of failing over the network again. Construct one per process and
// share it between coordinators.
type NotFoundCache struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewNotFoundCache returns an empty cache.
func NewNotFoundCache() *NotFoundCache {
	return &NotFoundCache{ids: make(map[string]struct{})}
}

// Add records an identifier as missing remotely.
func (c *NotFoundCache) Add(entityID string) {
	if entityID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[entityID] = struct{}{}
}

// Contains reports whether the identifier is known missing.
func (c *NotFoundCache) Contains(entityID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ids[entityID]
	return ok
}

// Forget clears an identifier, typically when a new editing session begins
// for it.
func (c *NotFoundCache) Forget(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ids, entityID)
}
