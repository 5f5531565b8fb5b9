package draft

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// StoredDraft is the durable-tier row. Rows are keyed by entity and owner so
// a draft written by one owner is never returned to another even when the
// entity identifier collides.
type StoredDraft struct {
	EntityID      string `gorm:"column:entity_id;primaryKey;size:190;not null"`
	OwnerID       string `gorm:"column:owner_id;primaryKey;size:190;not null;index:idx_sheet_drafts_owner"`
	Content       string `gorm:"column:content;type:text;not null"`
	CommandLog    []byte `gorm:"column:command_log;type:blob"`
	LogCompressed bool   `gorm:"column:log_compressed;not null;default:false"`
	SavedAtMilli  int64  `gorm:"column:saved_at_ms;not null;index:idx_sheet_drafts_saved_at"`
	SchemaVersion int    `gorm:"column:schema_version;not null"`
}

// TableName provides the explicit table binding for GORM.
func (StoredDraft) TableName() string {
	return "sheet_drafts"
}

type durableTier struct {
	db *gorm.DB
}

func (t *durableTier) save(ctx context.Context, record Record) error {
	blob, compressed, err := encodeLog(record.CommandLog)
	if err != nil {
		return err
	}
	row := StoredDraft{
		EntityID:      record.EntityID,
		OwnerID:       record.OwnerID,
		Content:       record.Content,
		CommandLog:    blob,
		LogCompressed: compressed,
		SavedAtMilli:  record.SavedAt.UnixMilli(),
		SchemaVersion: record.SchemaVersion,
	}
	return t.db.WithContext(ctx).Save(&row).Error
}

func (t *durableTier) load(ctx context.Context, entityID, ownerID string) (*Record, error) {
	var row StoredDraft
	err := t.db.WithContext(ctx).
		Where("entity_id = ? AND owner_id = ?", entityID, ownerID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entries, err := decodeLog(row.CommandLog, row.LogCompressed)
	if err != nil {
		return nil, err
	}
	return &Record{
		EntityID:      row.EntityID,
		OwnerID:       row.OwnerID,
		Content:       row.Content,
		CommandLog:    entries,
		SavedAt:       time.UnixMilli(row.SavedAtMilli).UTC(),
		SchemaVersion: row.SchemaVersion,
	}, nil
}

func (t *durableTier) delete(ctx context.Context, entityID, ownerID string) error {
	query := t.db.WithContext(ctx).Where("entity_id = ?", entityID)
	if ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}
	return query.Delete(&StoredDraft{}).Error
}

// pruneOlderThan removes rows saved before the cutoff, for retention sweeps.
func (t *durableTier) pruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := t.db.WithContext(ctx).
		Where("saved_at_ms < ?", cutoff.UnixMilli()).
		Delete(&StoredDraft{})
	return result.RowsAffected, result.Error
}

func (t *durableTier) usage(ctx context.Context) (TierUsage, error) {
	var snapshot struct {
		Records int64
		Bytes   int64
	}
	err := t.db.WithContext(ctx).Model(&StoredDraft{}).
		Select("COUNT(*) AS records, COALESCE(SUM(LENGTH(content) + LENGTH(COALESCE(command_log, ''))), 0) AS bytes").
		Take(&snapshot).Error
	if err != nil {
		return TierUsage{}, err
	}
	return TierUsage{UsedBytes: snapshot.Bytes, CapacityBytes: -1, Records: snapshot.Records}, nil
}
