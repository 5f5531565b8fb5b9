package editor

import (
	"testing"
	"time"
)

func mustInsert(t *testing.T, pos int, text string, at time.Time) InsertText {
	t.Helper()
	cmd, err := NewInsertText(pos, text, at)
	if err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	return cmd
}

func mustDelete(t *testing.T, content string, pos, length int, at time.Time) DeleteRange {
	t.Helper()
	cmd, err := NewDeleteRange(content, pos, length, at)
	if err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	return cmd
}

func mustReplace(t *testing.T, content string, pos, length int, text string, at time.Time) ReplaceRange {
	t.Helper()
	cmd, err := NewReplaceRange(content, pos, length, text, at)
	if err != nil {
		t.Fatalf("unexpected replace error: %v", err)
	}
	return cmd
}

func baseTime() time.Time {
	return time.Unix(1700000000, 0).UTC()
}
