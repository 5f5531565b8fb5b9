package draft

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chordfold/chordfold/internal/editor"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// DefaultVolatileBudget bounds the volatile tier.
	DefaultVolatileBudget = 4 * 1024 * 1024
	// DefaultLogTail is how many trailing command-log entries a draft keeps.
	DefaultLogTail = 200
	// DefaultRetention is how long unclaimed drafts survive before the
	// compaction sweep purges them.
	DefaultRetention = 14 * 24 * time.Hour
	// DefaultCompactionInterval spaces background sweeps.
	DefaultCompactionInterval = 30 * time.Minute

	// evictionKeep is how many of the newest volatile entries survive a
	// quota-pressure eviction.
	evictionKeep = 5
	// volatileMaxEntries caps the volatile tier's entry count across many
	// entities; compaction prunes beyond it.
	volatileMaxEntries = 64
)

const (
	opStoreNew    = "draft.store.new"
	opStoreSave   = "draft.store.save"
	opStoreLoad   = "draft.store.load"
	opStoreDelete = "draft.store.delete"
	opStoreStats  = "draft.store.stats"
	opStoreSweep  = "draft.store.compact"

	reasonMissingDatabase = "missing_database"
	reasonMissingEntityID = "missing_entity_id"
	reasonEncodeFailed    = "encode_failed"
	reasonDecodeFailed    = "decode_failed"
	reasonDurableFailed   = "durable_write_failed"
	reasonQuotaExhausted  = "quota_exhausted"
	reasonQueryFailed     = "query_failed"
)

var (
	// ErrStorageQuota indicates both tiers rejected a write even after the
	// eviction retry. In-memory content is untouched by this failure.
	ErrStorageQuota = errors.New("draft: storage quota exceeded")

	errStoreMissingDatabase = errors.New("database handle is required")
	errStoreMissingEntityID = errors.New("entity identifier is required")
)

// TierUsage is a read-only snapshot of one tier's occupancy. CapacityBytes
// is -1 when the tier has no fixed cap.
type TierUsage struct {
	UsedBytes     int64
	CapacityBytes int64
	Records       int64
}

// TierStats aggregates usage across both tiers, for diagnostics and
// eviction decisions only.
type TierStats struct {
	Volatile TierUsage
	Durable  TierUsage
}

// StoreConfig describes the dependencies of a TieredStore.
type StoreConfig struct {
	Database           *gorm.DB
	Clock              func() time.Time
	Logger             *zap.Logger
	VolatileBudget     int
	LogTail            int
	Retention          time.Duration
	CompactionInterval time.Duration
}

// TieredStore persists drafts across a small volatile tier and a larger
// durable tier. Writes try the volatile tier first and transparently fall
// back under size pressure. Records are keyed per entity, so a save for one
// entity never disturbs another's.
type TieredStore struct {
	volatile *volatileTier
	durable  *durableTier
	clock    func() time.Time
	logger   *zap.Logger

	logTail            int
	retention          time.Duration
	compactionInterval time.Duration

	sweepMu   sync.Mutex
	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewTieredStore validates the configuration and constructs the store.
func NewTieredStore(cfg StoreConfig) (*TieredStore, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, reasonMissingDatabase, errStoreMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	budget := cfg.VolatileBudget
	if budget <= 0 {
		budget = DefaultVolatileBudget
	}
	logTail := cfg.LogTail
	if logTail <= 0 {
		logTail = DefaultLogTail
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	interval := cfg.CompactionInterval
	if interval <= 0 {
		interval = DefaultCompactionInterval
	}
	return &TieredStore{
		volatile:           newVolatileTier(budget),
		durable:            &durableTier{db: cfg.Database},
		clock:              clock,
		logger:             logger,
		logTail:            logTail,
		retention:          retention,
		compactionInterval: interval,
	}, nil
}

// StoreError carries an operation.reason code alongside its cause.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason identifier.
func (e *StoreError) Code() string {
	return e.code
}

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Save snapshots content and the trailing command log for the entity. The
// volatile tier is tried first; under capacity pressure the write falls back
// to the durable tier when an owner is known, otherwise the oldest volatile
// entries are evicted and the write retries once with a content-only payload.
func (s *TieredStore) Save(ctx context.Context, entityID, content string, commandLog []editor.LogEntry, ownerID string) error {
	if entityID == "" {
		return newStoreError(opStoreSave, reasonMissingEntityID, errStoreMissingEntityID)
	}

	record := Record{
		EntityID:      entityID,
		OwnerID:       ownerID,
		Content:       content,
		CommandLog:    trailing(commandLog, s.logTail),
		SavedAt:       s.clock().UTC(),
		SchemaVersion: SchemaVersion,
	}
	payload, err := encodeRecord(record)
	if err != nil {
		s.logError(opStoreSave, reasonEncodeFailed, err, zap.String("entity_id", entityID))
		return newStoreError(opStoreSave, reasonEncodeFailed, err)
	}

	if err := s.volatile.save(entityID, payload, record.SavedAt); err == nil {
		return nil
	} else if !errors.Is(err, errVolatileCapacity) {
		return newStoreError(opStoreSave, reasonQueryFailed, err)
	}

	if ownerID != "" {
		if err := s.durable.save(ctx, record); err != nil {
			s.logError(opStoreSave, reasonDurableFailed, err, zap.String("entity_id", entityID))
			return newStoreError(opStoreSave, reasonQuotaExhausted, fmt.Errorf("%w: %v", ErrStorageQuota, err))
		}
		return nil
	}

	s.volatile.pruneToNewest(evictionKeep)
	reduced := record
	reduced.CommandLog = nil
	reducedPayload, err := encodeRecord(reduced)
	if err != nil {
		s.logError(opStoreSave, reasonEncodeFailed, err, zap.String("entity_id", entityID))
		return newStoreError(opStoreSave, reasonEncodeFailed, err)
	}
	if err := s.volatile.save(entityID, reducedPayload, reduced.SavedAt); err != nil {
		s.logError(opStoreSave, reasonQuotaExhausted, err, zap.String("entity_id", entityID))
		return newStoreError(opStoreSave, reasonQuotaExhausted, fmt.Errorf("%w: %v", ErrStorageQuota, err))
	}
	return nil
}

// Load returns the freshest draft visible to the caller: volatile tier
// first, then the owner-gated durable tier. A nil record means no draft.
func (s *TieredStore) Load(ctx context.Context, entityID, ownerID string) (*Record, error) {
	if entityID == "" {
		return nil, newStoreError(opStoreLoad, reasonMissingEntityID, errStoreMissingEntityID)
	}
	if payload, ok := s.volatile.load(entityID); ok {
		record, err := decodeRecord(payload)
		if err != nil {
			s.logError(opStoreLoad, reasonDecodeFailed, err, zap.String("entity_id", entityID))
			return nil, newStoreError(opStoreLoad, reasonDecodeFailed, err)
		}
		// Owner-tagged drafts stay invisible to other callers.
		if record.OwnerID == "" || record.OwnerID == ownerID {
			return &record, nil
		}
	}
	if ownerID == "" {
		return nil, nil
	}
	record, err := s.durable.load(ctx, entityID, ownerID)
	if err != nil {
		s.logError(opStoreLoad, reasonQueryFailed, err, zap.String("entity_id", entityID))
		return nil, newStoreError(opStoreLoad, reasonQueryFailed, err)
	}
	return record, nil
}

// Exists reports whether either tier holds a draft visible to the caller.
func (s *TieredStore) Exists(ctx context.Context, entityID, ownerID string) (bool, error) {
	record, err := s.Load(ctx, entityID, ownerID)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

// Delete removes the entity's draft from both tiers. Deleting a missing
// draft is not an error.
func (s *TieredStore) Delete(ctx context.Context, entityID, ownerID string) error {
	if entityID == "" {
		return newStoreError(opStoreDelete, reasonMissingEntityID, errStoreMissingEntityID)
	}
	if payload, ok := s.volatile.load(entityID); ok {
		if record, err := decodeRecord(payload); err != nil || record.OwnerID == "" || record.OwnerID == ownerID {
			s.volatile.delete(entityID)
		}
	}
	if err := s.durable.delete(ctx, entityID, ownerID); err != nil {
		s.logError(opStoreDelete, reasonQueryFailed, err, zap.String("entity_id", entityID))
		return newStoreError(opStoreDelete, reasonQueryFailed, err)
	}
	return nil
}

// Stats returns per-tier occupancy.
func (s *TieredStore) Stats(ctx context.Context) (TierStats, error) {
	durable, err := s.durable.usage(ctx)
	if err != nil {
		s.logError(opStoreStats, reasonQueryFailed, err)
		return TierStats{}, newStoreError(opStoreStats, reasonQueryFailed, err)
	}
	return TierStats{Volatile: s.volatile.usage(), Durable: durable}, nil
}

// Compact purges records older than the retention threshold in both tiers
// and prunes the volatile tier's entry count.
func (s *TieredStore) Compact(ctx context.Context) error {
	cutoff := s.clock().UTC().Add(-s.retention)
	s.volatile.pruneOlderThan(cutoff)
	s.volatile.pruneToNewest(volatileMaxEntries)
	purged, err := s.durable.pruneOlderThan(ctx, cutoff)
	if err != nil {
		s.logError(opStoreSweep, reasonQueryFailed, err)
		return newStoreError(opStoreSweep, reasonQueryFailed, err)
	}
	if purged > 0 {
		s.logger.Info("draft retention sweep purged records", zap.Int64("purged", purged))
	}
	return nil
}

// Start launches the background compaction loop. Start after construction;
// pair with Stop.
func (s *TieredStore) Start() {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()
	if s.stopSweep != nil {
		return
	}
	s.stopSweep = make(chan struct{})
	s.sweepDone = make(chan struct{})
	go s.sweepLoop(s.stopSweep, s.sweepDone)
}

// Stop halts the background compaction loop and waits for it to exit.
func (s *TieredStore) Stop() {
	s.sweepMu.Lock()
	stop := s.stopSweep
	done := s.sweepDone
	s.stopSweep = nil
	s.sweepDone = nil
	s.sweepMu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *TieredStore) sweepLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.compactionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.Compact(context.Background()); err != nil {
				s.logger.Warn("draft compaction failed", zap.Error(err))
			}
		}
	}
}

func trailing(entries []editor.LogEntry, n int) []editor.LogEntry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

func (s *TieredStore) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("draft store error", attrs...)
}
