package saveflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chordfold/chordfold/internal/clockwork"
	"github.com/chordfold/chordfold/internal/draft"
	"github.com/chordfold/chordfold/internal/editor"
	"go.uber.org/zap"
)

const (
	// DefaultDebounce is the inactivity pause before a local draft write.
	DefaultDebounce = 2 * time.Second
	// DefaultThrottle spaces remote sync attempts.
	DefaultThrottle = 30 * time.Second
	// DefaultMinRemoteGap is the minimum spacing between remote writes, a
	// safety valve when the debounce and throttle timers fire close together.
	DefaultMinRemoteGap = 10 * time.Second

	teardownSaveTimeout = 2 * time.Second
)

const (
	opCoordinatorNew  = "saveflow.coordinator.new"
	opCoordinatorSave = "saveflow.coordinator.save"

	reasonMissingEntityID = "missing_entity_id"
	reasonMissingStore    = "missing_store"
	reasonMissingRemote   = "missing_remote"
	reasonMissingContent  = "missing_content_source"
	reasonLocalSaveFailed = "local_save_failed"
	reasonRemoteNotFound  = "remote_not_found"
	reasonRemoteFailed    = "remote_failed"
)

var (
	errMissingEntityID      = errors.New("entity identifier is required")
	errMissingStore         = errors.New("draft store is required")
	errMissingRemote        = errors.New("remote store is required")
	errMissingContentSource = errors.New("content source is required")
)

type saveKind int

const (
	saveLocal saveKind = iota
	saveRemote
	saveForced
)

// CoordinatorState is a read-only snapshot of the save pipeline. Dirty means
// the content differs from the last confirmed remote save; local-tier writes
// never clear it.
type CoordinatorState struct {
	Dirty       bool
	Saving      bool
	LastSavedAt time.Time
	LastError   error
}

// CoordinatorConfig describes one editing session's save pipeline.
type CoordinatorConfig struct {
	EntityID string
	OwnerID  string

	Store  *draft.TieredStore
	Remote RemoteStore
	Beacon BeaconSender
	Clock  clockwork.Clock
	Logger *zap.Logger

	// Content returns the live document at save time; each save reads the
	// current content, so racing triggers degrade to skipped saves, never
	// stale overwrites.
	Content func() string
	// CommandLog returns the trailing command log to persist alongside the
	// content. Optional.
	CommandLog func() []editor.LogEntry

	Debounce     time.Duration
	Throttle     time.Duration
	MinRemoteGap time.Duration

	// NotFound is the shared negative cache. A fresh one is created when nil.
	NotFound *NotFoundCache
}

// Coordinator layers three save triggers over the tiered store and the
// remote store: a debounced local draft write, a throttled remote sync, and
// forced saves driven by lifecycle signals.
type Coordinator struct {
	entityID string
	ownerID  string

	store   *draft.TieredStore
	remote  RemoteStore
	beacon  BeaconSender
	clock   clockwork.Clock
	logger  *zap.Logger
	content func() string
	command func() []editor.LogEntry

	minRemoteGap time.Duration
	notFound     *NotFoundCache

	debouncer *Debouncer
	throttler *Throttler

	mu           sync.Mutex
	state        CoordinatorState
	lastSaved    string
	lastRemoteAt time.Time
	hasSaved     bool
	closed       bool
}

// NewCoordinator validates the configuration and builds the pipeline. The
// negative-cache entry for the entity is cleared: a new session may retry a
// previously missing identifier once.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.EntityID == "" {
		return nil, newCoordinatorError(opCoordinatorNew, reasonMissingEntityID, errMissingEntityID)
	}
	if cfg.Store == nil {
		return nil, newCoordinatorError(opCoordinatorNew, reasonMissingStore, errMissingStore)
	}
	if cfg.Remote == nil {
		return nil, newCoordinatorError(opCoordinatorNew, reasonMissingRemote, errMissingRemote)
	}
	if cfg.Content == nil {
		return nil, newCoordinatorError(opCoordinatorNew, reasonMissingContent, errMissingContentSource)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.System()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	beacon := cfg.Beacon
	if beacon == nil {
		beacon = NopBeacon{}
	}
	notFound := cfg.NotFound
	if notFound == nil {
		notFound = NewNotFoundCache()
	}
	notFound.Forget(cfg.EntityID)

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	throttle := cfg.Throttle
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	minGap := cfg.MinRemoteGap
	if minGap <= 0 {
		minGap = DefaultMinRemoteGap
	}

	coordinator := &Coordinator{
		entityID:     cfg.EntityID,
		ownerID:      cfg.OwnerID,
		store:        cfg.Store,
		remote:       cfg.Remote,
		beacon:       beacon,
		clock:        clock,
		logger:       logger,
		content:      cfg.Content,
		command:      cfg.CommandLog,
		minRemoteGap: minGap,
		notFound:     notFound,
	}
	coordinator.debouncer = NewDebouncer(clock, debounce, coordinator.localTick)
	coordinator.throttler = NewThrottler(clock, throttle, coordinator.remoteTick)
	return coordinator, nil
}

// ContentChanged marks the session dirty and feeds both the debounced and
// throttled triggers. Call it on every edit.
func (c *Coordinator) ContentChanged() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state.Dirty = true
	c.mu.Unlock()
	c.debouncer.Trigger()
	c.throttler.Trigger()
}

// SaveNow performs a forced save: pending timers are dropped and the remote
// write bypasses throttle and spacing gates.
func (c *Coordinator) SaveNow(ctx context.Context) error {
	c.debouncer.Cancel()
	c.throttler.Cancel()
	return c.performSave(ctx, saveForced)
}

// HandleSignal reacts to a lifecycle signal. Explicit saves and visibility
// loss force a synchronous save; teardown switches to the fire-and-forget
// path and closes the pipeline.
func (c *Coordinator) HandleSignal(signal Signal) {
	switch signal {
	case SignalUserSave, SignalHidden:
		ctx, cancel := context.WithTimeout(context.Background(), teardownSaveTimeout)
		defer cancel()
		_ = c.SaveNow(ctx)
	case SignalTeardown:
		c.teardown()
	}
}

// State returns a snapshot of the pipeline.
func (c *Coordinator) State() CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close cancels pending timers. Writes issued after Close are dropped.
func (c *Coordinator) Close() {
	c.debouncer.Cancel()
	c.throttler.Cancel()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Coordinator) localTick() {
	ctx, cancel := context.WithTimeout(context.Background(), teardownSaveTimeout)
	defer cancel()
	_ = c.performSave(ctx, saveLocal)
}

func (c *Coordinator) remoteTick() {
	ctx, cancel := context.WithTimeout(context.Background(), teardownSaveTimeout)
	defer cancel()
	_ = c.performSave(ctx, saveRemote)
}

// performSave is the single save routine behind all three triggers. It is
// re-entrancy guarded: a save arriving while one is in flight is dropped,
// not queued.
func (c *Coordinator) performSave(ctx context.Context, kind saveKind) error {
	c.mu.Lock()
	if c.closed || c.state.Saving {
		c.mu.Unlock()
		return nil
	}
	c.state.Saving = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.state.Saving = false
		c.mu.Unlock()
	}()

	forced := kind == saveForced
	content := c.content()

	c.mu.Lock()
	localUnchanged := c.hasSaved && content == c.lastSaved
	dirty := c.state.Dirty
	c.mu.Unlock()

	// Unchanged content skips the write entirely unless forced. The local
	// gate is the last content written to any tier; the remote gate is the
	// dirty flag, which only a confirmed remote save clears.
	if kind == saveLocal && localUnchanged && !forced {
		return nil
	}
	if kind == saveRemote && !dirty {
		return nil
	}

	if !localUnchanged || forced {
		var commandLog []editor.LogEntry
		if c.command != nil {
			commandLog = c.command()
		}
		if err := c.store.Save(ctx, c.entityID, content, commandLog, c.ownerID); err != nil {
			c.logError(opCoordinatorSave, reasonLocalSaveFailed, err)
			c.mu.Lock()
			c.state.LastError = err
			c.mu.Unlock()
			return err
		}
		c.mu.Lock()
		c.lastSaved = content
		c.hasSaved = true
		c.mu.Unlock()
	}

	if kind == saveLocal {
		return nil
	}
	if forced && !dirty && localUnchanged {
		return nil
	}
	return c.attemptRemote(ctx, content, forced)
}

func (c *Coordinator) attemptRemote(ctx context.Context, content string, forced bool) error {
	if c.notFound.Contains(c.entityID) {
		return nil
	}

	now := c.clock.Now()
	c.mu.Lock()
	tooSoon := !c.lastRemoteAt.IsZero() && now.Sub(c.lastRemoteAt) < c.minRemoteGap
	c.mu.Unlock()
	if tooSoon && !forced {
		return nil
	}

	_, err := c.remote.Update(ctx, c.entityID, ContentPatch{Content: content, SavedAt: now})
	if errors.Is(err, ErrRemoteNotFound) {
		c.notFound.Add(c.entityID)
		c.logger.Info("remote entity missing, saving locally only",
			zap.String("entity_id", c.entityID))
		return nil
	}
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrRemoteSave, err)
		c.logError(opCoordinatorSave, reasonRemoteFailed, err)
		c.mu.Lock()
		c.state.LastError = wrapped
		c.mu.Unlock()
		return wrapped
	}

	c.mu.Lock()
	c.lastRemoteAt = now
	c.state.LastSavedAt = now
	c.state.Dirty = false
	c.state.LastError = nil
	c.mu.Unlock()

	// The local draft is superseded by the confirmed remote copy.
	if err := c.store.Delete(ctx, c.entityID, c.ownerID); err != nil {
		c.logger.Warn("failed to clear superseded draft",
			zap.String("entity_id", c.entityID), zap.Error(err))
	}
	return nil
}

// teardown performs the last-gasp save: a best-effort local write plus a
// fire-and-forget beacon. Neither clears the dirty flag; the persisted draft
// stays authoritative until a confirmed remote save in a future session.
func (c *Coordinator) teardown() {
	c.debouncer.Cancel()
	c.throttler.Cancel()

	content := c.content()
	var commandLog []editor.LogEntry
	if c.command != nil {
		commandLog = c.command()
	}

	ctx, cancel := context.WithTimeout(context.Background(), teardownSaveTimeout)
	defer cancel()
	if err := c.store.Save(ctx, c.entityID, content, commandLog, c.ownerID); err != nil {
		c.logError(opCoordinatorSave, reasonLocalSaveFailed, err)
	}

	if !c.notFound.Contains(c.entityID) {
		payload, err := json.Marshal(beaconPayload{
			EntityID:     c.entityID,
			OwnerID:      c.ownerID,
			Content:      content,
			SavedAtMilli: c.clock.Now().UnixMilli(),
		})
		if err == nil {
			c.beacon.Send(c.entityID, payload)
		}
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// CoordinatorError carries an operation.reason code alongside its cause.
type CoordinatorError struct {
	code string
	err  error
}

func (e *CoordinatorError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *CoordinatorError) Unwrap() error {
	return e.err
}

func newCoordinatorError(operation, reason string, cause error) error {
	return &CoordinatorError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

func (c *Coordinator) logError(operation, reason string, err error) {
	c.logger.Error("save coordinator error",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("entity_id", c.entityID),
		zap.Error(err))
}
