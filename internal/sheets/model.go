package sheets

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxIdentifierLength = 190
	maxTitleLength      = 512
)

var (
	// ErrInvalidSheetID indicates that a sheet identifier is empty or exceeds storage bounds.
	ErrInvalidSheetID = errors.New("sheets: invalid sheet id")
	// ErrInvalidOwnerID indicates that an owner identifier is empty or exceeds storage bounds.
	ErrInvalidOwnerID = errors.New("sheets: invalid owner id")
	// ErrInvalidTitle indicates that a sheet title exceeds storage bounds.
	ErrInvalidTitle = errors.New("sheets: invalid title")
)

// SheetID represents a validated sheet identifier.
type SheetID string

// NewSheetID validates raw input and returns a SheetID.
func NewSheetID(rawInput string) (SheetID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSheetID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidSheetID, maxIdentifierLength)
	}
	return SheetID(trimmed), nil
}

// String returns the underlying string identifier.
func (id SheetID) String() string {
	return string(id)
}

// OwnerID represents a validated owner identifier.
type OwnerID string

// NewOwnerID validates raw input and returns an OwnerID.
func NewOwnerID(rawInput string) (OwnerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOwnerID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwnerID, maxIdentifierLength)
	}
	return OwnerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id OwnerID) String() string {
	return string(id)
}

// Title represents a validated sheet title.
type Title string

// NewTitle validates raw input and returns a Title. Empty titles are allowed;
// untitled sheets are a normal state while writing.
func NewTitle(rawInput string) (Title, error) {
	trimmed := strings.TrimSpace(rawInput)
	if len(trimmed) > maxTitleLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidTitle, maxTitleLength)
	}
	return Title(trimmed), nil
}

// String returns the underlying title text.
func (t Title) String() string {
	return string(t)
}

// Sheet models a persisted chord sheet. Content is the full plain-text body
// with bracketed chord annotations inline.
type Sheet struct {
	SheetID          string `gorm:"column:sheet_id;primaryKey;size:190;not null"`
	OwnerID          string `gorm:"column:owner_id;size:190;not null;index:idx_sheets_owner_updated,priority:1"`
	Title            string `gorm:"column:title;size:512;not null;default:''"`
	Content          string `gorm:"column:content;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null;index:idx_sheets_owner_updated,priority:2"`
	Version          int64  `gorm:"column:version;not null;default:1"`
}

// TableName provides the explicit table binding for GORM.
func (Sheet) TableName() string {
	return "sheets"
}
