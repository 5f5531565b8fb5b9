package draft

import (
	"strings"
	"testing"
	"time"

	"github.com/chordfold/chordfold/internal/editor"
)

func TestRecordCodecRoundTrip(t *testing.T) {
	record := Record{
		EntityID: "sheet-1",
		OwnerID:  "user-1",
		Content:  "Verse [Am] one\nChorus [F] line",
		CommandLog: []editor.LogEntry{
			{Kind: editor.CommandKindInsert, Pos: 0, Text: "Verse", AtMilli: 1700000000000},
			{Kind: editor.CommandKindDelete, Pos: 3, Removed: "se", AtMilli: 1700000000400},
		},
		SavedAt:       time.UnixMilli(1700000001000).UTC(),
		SchemaVersion: SchemaVersion,
	}

	payload, err := encodeRecord(record)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := decodeRecord(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Content != record.Content {
		t.Fatalf("content mismatch: %q", decoded.Content)
	}
	if decoded.EntityID != record.EntityID || decoded.OwnerID != record.OwnerID {
		t.Fatalf("identifier mismatch: %#v", decoded)
	}
	if len(decoded.CommandLog) != 2 || decoded.CommandLog[1].Removed != "se" {
		t.Fatalf("command log mismatch: %#v", decoded.CommandLog)
	}
	if !decoded.SavedAt.Equal(record.SavedAt) {
		t.Fatalf("saved-at mismatch: %v", decoded.SavedAt)
	}
	if decoded.SchemaVersion != SchemaVersion {
		t.Fatalf("schema version mismatch: %d", decoded.SchemaVersion)
	}
}

func TestRecordCodecRoundTripEmptyContent(t *testing.T) {
	record := Record{EntityID: "sheet-1", SavedAt: time.UnixMilli(1).UTC(), SchemaVersion: SchemaVersion}

	payload, err := encodeRecord(record)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := decodeRecord(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Content != "" || decoded.CommandLog != nil {
		t.Fatalf("unexpected decoded record: %#v", decoded)
	}
}

func TestLogCompressionAboveThreshold(t *testing.T) {
	entries := make([]editor.LogEntry, 0, 64)
	for i := 0; i < 64; i++ {
		entries = append(entries, editor.LogEntry{
			Kind:    editor.CommandKindInsert,
			Pos:     i,
			Text:    strings.Repeat("la", 256),
			AtMilli: int64(i),
		})
	}

	blob, compressed, err := encodeLog(entries)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !compressed {
		t.Fatalf("expected large log to be compressed")
	}
	if len(blob) >= 64*512 {
		t.Fatalf("expected compression to shrink repetitive log, got %d bytes", len(blob))
	}

	decoded, err := decodeLog(blob, compressed)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded) != len(entries) || decoded[63].Pos != 63 {
		t.Fatalf("decoded log mismatch: %d entries", len(decoded))
	}
}

func TestSmallLogStaysUncompressed(t *testing.T) {
	entries := []editor.LogEntry{{Kind: editor.CommandKindInsert, Pos: 0, Text: "a"}}
	_, compressed, err := encodeLog(entries)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if compressed {
		t.Fatalf("expected small log to stay uncompressed")
	}
}
