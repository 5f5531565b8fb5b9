package draft

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/chordfold/chordfold/internal/editor"
)

// SchemaVersion is stamped on every persisted draft. Records carrying a
// different version are treated as unrecoverable.
const SchemaVersion = 2

// logCompressThreshold is the marshaled command-log size above which the log
// is gzip-compressed before persisting.
const logCompressThreshold = 8 * 1024

var (
	// ErrInvalidRecord indicates a draft payload could not be decoded.
	ErrInvalidRecord = errors.New("draft: invalid record")
)

// Record is the per-entity draft snapshot held by the tiered store. Content
// is the full text, never a diff.
type Record struct {
	EntityID      string
	OwnerID       string
	Content       string
	CommandLog    []editor.LogEntry
	SavedAt       time.Time
	SchemaVersion int
}

type recordEnvelope struct {
	EntityID      string          `json:"entity_id"`
	OwnerID       string          `json:"owner_id,omitempty"`
	Content       string          `json:"content"`
	CommandLog    json.RawMessage `json:"command_log,omitempty"`
	CommandLogGz  []byte          `json:"command_log_gz,omitempty"`
	SavedAtMilli  int64           `json:"saved_at_ms"`
	SchemaVersion int             `json:"schema_version"`
}

func encodeRecord(record Record) ([]byte, error) {
	envelope := recordEnvelope{
		EntityID:      record.EntityID,
		OwnerID:       record.OwnerID,
		Content:       record.Content,
		SavedAtMilli:  record.SavedAt.UnixMilli(),
		SchemaVersion: record.SchemaVersion,
	}
	blob, compressed, err := encodeLog(record.CommandLog)
	if err != nil {
		return nil, err
	}
	if compressed {
		envelope.CommandLogGz = blob
	} else {
		envelope.CommandLog = blob
	}
	return json.Marshal(envelope)
}

func decodeRecord(payload []byte) (Record, error) {
	var envelope recordEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	logBlob := []byte(envelope.CommandLog)
	compressed := false
	if len(envelope.CommandLogGz) > 0 {
		logBlob = envelope.CommandLogGz
		compressed = true
	}
	entries, err := decodeLog(logBlob, compressed)
	if err != nil {
		return Record{}, err
	}
	return Record{
		EntityID:      envelope.EntityID,
		OwnerID:       envelope.OwnerID,
		Content:       envelope.Content,
		CommandLog:    entries,
		SavedAt:       time.UnixMilli(envelope.SavedAtMilli).UTC(),
		SchemaVersion: envelope.SchemaVersion,
	}, nil
}

// encodeLog marshals command-log entries, compressing above the size
// threshold. A nil blob is returned for an empty log.
func encodeLog(entries []editor.LogEntry) ([]byte, bool, error) {
	if len(entries) == 0 {
		return nil, false, nil
	}
	marshaled, err := json.Marshal(entries)
	if err != nil {
		return nil, false, err
	}
	if len(marshaled) <= logCompressThreshold {
		return marshaled, false, nil
	}

	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	if _, err := writer.Write(marshaled); err != nil {
		return nil, false, err
	}
	if err := writer.Close(); err != nil {
		return nil, false, err
	}
	return buffer.Bytes(), true, nil
}

func decodeLog(blob []byte, compressed bool) ([]editor.LogEntry, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	marshaled := blob
	if compressed {
		reader, err := gzip.NewReader(bytes.NewReader(blob))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		inflated, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		if err := reader.Close(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		marshaled = inflated
	}
	var entries []editor.LogEntry
	if err := json.Unmarshal(marshaled, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return entries, nil
}
