package sheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrSheetNotFound indicates that no sheet exists for the identifier, or
	// that it belongs to a different owner.
	ErrSheetNotFound = errors.New("sheets: sheet not found")
	// ErrVersionConflict indicates a stale update: the caller's base version
	// no longer matches the stored row.
	ErrVersionConflict = errors.New("sheets: version conflict")
)

// ServiceError wraps a failure with a machine-readable operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable failure code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "sheets.service.new"
	opCreateSheet = "sheets.create"
	opGetSheet    = "sheets.get"
	opListSheets  = "sheets.list"
	opUpdateSheet = "sheets.update"
	opDeleteSheet = "sheets.delete"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig carries the dependencies for a sheet service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// IDProvider issues identifiers for new sheets.
type IDProvider interface {
	NewID() (string, error)
}

// Service persists chord sheets scoped to their owner.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and returns a sheet service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateSheet persists a new sheet for the owner and returns it.
func (s *Service) CreateSheet(ctx context.Context, ownerID OwnerID, title Title, content string) (Sheet, error) {
	sheetID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateSheet, "id_generation_failed", err, zap.String("owner_id", ownerID.String()))
		return Sheet{}, newServiceError(opCreateSheet, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	sheet := Sheet{
		SheetID:          sheetID,
		OwnerID:          ownerID.String(),
		Title:            title.String(),
		Content:          content,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
		Version:          1,
	}
	if err := s.db.WithContext(ctx).Create(&sheet).Error; err != nil {
		s.logError(opCreateSheet, "insert_failed", err,
			zap.String("owner_id", ownerID.String()),
			zap.String("sheet_id", sheetID))
		return Sheet{}, newServiceError(opCreateSheet, "insert_failed", err)
	}
	return sheet, nil
}

// GetSheet loads one sheet. Sheets belonging to other owners are reported as
// not found rather than forbidden.
func (s *Service) GetSheet(ctx context.Context, ownerID OwnerID, sheetID SheetID) (Sheet, error) {
	var sheet Sheet
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND sheet_id = ?", ownerID.String(), sheetID.String()).
		Take(&sheet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Sheet{}, newServiceError(opGetSheet, "not_found", ErrSheetNotFound)
	}
	if err != nil {
		s.logError(opGetSheet, "query_failed", err,
			zap.String("owner_id", ownerID.String()),
			zap.String("sheet_id", sheetID.String()))
		return Sheet{}, newServiceError(opGetSheet, "query_failed", err)
	}
	return sheet, nil
}

// ListSheets returns the owner's sheets, most recently updated first.
func (s *Service) ListSheets(ctx context.Context, ownerID OwnerID) ([]Sheet, error) {
	var result []Sheet
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID.String()).
		Order("updated_at_s DESC").
		Find(&result).Error; err != nil {
		s.logError(opListSheets, "query_failed", err, zap.String("owner_id", ownerID.String()))
		return nil, newServiceError(opListSheets, "query_failed", err)
	}
	return result, nil
}

// UpdateSheet replaces the sheet's content (and optionally title), bumping
// the version. The update is an atomic compare-and-set on the current
// version so two racing saves cannot silently overwrite each other.
func (s *Service) UpdateSheet(ctx context.Context, ownerID OwnerID, sheetID SheetID, title Title, content string) (Sheet, error) {
	var updated Sheet
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Sheet
		err := tx.Where("owner_id = ? AND sheet_id = ?", ownerID.String(), sheetID.String()).
			Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opUpdateSheet, "not_found", ErrSheetNotFound)
		}
		if err != nil {
			s.logError(opUpdateSheet, "query_failed", err,
				zap.String("owner_id", ownerID.String()),
				zap.String("sheet_id", sheetID.String()))
			return newServiceError(opUpdateSheet, "query_failed", err)
		}

		result := tx.Model(&Sheet{}).
			Where("owner_id = ? AND sheet_id = ? AND version = ?",
				ownerID.String(), sheetID.String(), existing.Version).
			Updates(map[string]any{
				"title":        title.String(),
				"content":      content,
				"updated_at_s": s.clock().UTC().Unix(),
				"version":      existing.Version + 1,
			})
		if result.Error != nil {
			s.logError(opUpdateSheet, "update_failed", result.Error,
				zap.String("owner_id", ownerID.String()),
				zap.String("sheet_id", sheetID.String()))
			return newServiceError(opUpdateSheet, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opUpdateSheet, "version_conflict", ErrVersionConflict)
		}

		return tx.Where("owner_id = ? AND sheet_id = ?", ownerID.String(), sheetID.String()).
			Take(&updated).Error
	})
	if txErr != nil {
		return Sheet{}, txErr
	}
	return updated, nil
}

// DeleteSheet removes the sheet. Deleting a sheet that does not exist is
// reported as not found so callers can distinguish it from success.
func (s *Service) DeleteSheet(ctx context.Context, ownerID OwnerID, sheetID SheetID) error {
	result := s.db.WithContext(ctx).
		Where("owner_id = ? AND sheet_id = ?", ownerID.String(), sheetID.String()).
		Delete(&Sheet{})
	if result.Error != nil {
		s.logError(opDeleteSheet, "delete_failed", result.Error,
			zap.String("owner_id", ownerID.String()),
			zap.String("sheet_id", sheetID.String()))
		return newServiceError(opDeleteSheet, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeleteSheet, "not_found", ErrSheetNotFound)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("sheets service error", attrs...)
}
