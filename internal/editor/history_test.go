package editor

import (
	"fmt"
	"testing"
	"time"
)

func TestHistoryUndoRedoSymmetry(t *testing.T) {
	history := NewHistory("", HistoryOptions{MergeWindow: time.Millisecond}, nil)

	words := []string{"Gm7 ", "C9 ", "F6"}
	at := baseTime()
	offset := 0
	for _, word := range words {
		at = at.Add(time.Second)
		if err := history.Execute(mustInsert(t, offset, word, at)); err != nil {
			t.Fatalf("execute failed: %v", err)
		}
		offset += len(word)
	}
	final := history.Content()
	if final != "Gm7 C9 F6" {
		t.Fatalf("unexpected content: %q", final)
	}

	for i := 0; i < len(words); i++ {
		if !history.Undo() {
			t.Fatalf("undo %d did nothing", i)
		}
	}
	if history.Content() != "" {
		t.Fatalf("expected empty content after full undo, got %q", history.Content())
	}

	for i := 0; i < len(words); i++ {
		if !history.Redo() {
			t.Fatalf("redo %d did nothing", i)
		}
	}
	if history.Content() != final {
		t.Fatalf("expected %q after full redo, got %q", final, history.Content())
	}
}

func TestHistoryCoalescesWithinMergeWindow(t *testing.T) {
	window := 500 * time.Millisecond
	history := NewHistory("", HistoryOptions{MergeWindow: window}, nil)

	start := baseTime()
	if err := history.Execute(mustInsert(t, 0, "a", start)); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if err := history.Execute(mustInsert(t, 1, "b", start.Add(window-time.Millisecond))); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if info := history.Info(); info.UndoCount != 1 {
		t.Fatalf("expected coalesced undo count 1, got %d", info.UndoCount)
	}

	if err := history.Execute(mustInsert(t, 2, "c", start.Add(2*window))); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if info := history.Info(); info.UndoCount != 2 {
		t.Fatalf("expected undo count 2 past merge window, got %d", info.UndoCount)
	}

	if !history.Undo() {
		t.Fatalf("undo did nothing")
	}
	if history.Content() != "ab" {
		t.Fatalf("expected %q after undoing last step, got %q", "ab", history.Content())
	}
	if !history.Undo() {
		t.Fatalf("undo did nothing")
	}
	if history.Content() != "" {
		t.Fatalf("expected coalesced step to undo as one unit, got %q", history.Content())
	}
}

func TestHistoryEvictsOldestPastCap(t *testing.T) {
	history := NewHistory("", HistoryOptions{MaxSize: 5, MergeWindow: time.Millisecond}, nil)

	at := baseTime()
	offset := 0
	for i := 0; i < 8; i++ {
		at = at.Add(time.Second)
		text := fmt.Sprintf("%d", i)
		if err := history.Execute(mustInsert(t, offset, text, at)); err != nil {
			t.Fatalf("execute failed: %v", err)
		}
		offset += len(text)
	}
	if info := history.Info(); info.UndoCount != 5 {
		t.Fatalf("expected capped undo count 5, got %d", info.UndoCount)
	}

	undos := 0
	for history.Undo() {
		undos++
	}
	if undos != 5 {
		t.Fatalf("expected 5 undoable steps, got %d", undos)
	}
	if history.Content() != "012" {
		t.Fatalf("expected evicted edits to remain applied, got %q", history.Content())
	}
}

func TestHistoryExecuteClearsRedoStack(t *testing.T) {
	history := NewHistory("", HistoryOptions{MergeWindow: time.Millisecond}, nil)

	at := baseTime()
	if err := history.Execute(mustInsert(t, 0, "one", at)); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if err := history.Execute(mustInsert(t, 3, " two", at.Add(time.Second))); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !history.Undo() {
		t.Fatalf("undo did nothing")
	}
	if info := history.Info(); info.RedoCount != 1 {
		t.Fatalf("expected redo count 1, got %d", info.RedoCount)
	}

	if err := history.Execute(mustInsert(t, 3, " three", at.Add(2*time.Second))); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if info := history.Info(); info.RedoCount != 0 {
		t.Fatalf("expected redo stack cleared, got %d", info.RedoCount)
	}
	if history.Redo() {
		t.Fatalf("expected redo to be a no-op after execute")
	}
}

func TestHistoryUndoRedoNoOpOnEmptyStacks(t *testing.T) {
	history := NewHistory("seed", HistoryOptions{}, nil)
	if history.Undo() {
		t.Fatalf("expected undo no-op on empty stack")
	}
	if history.Redo() {
		t.Fatalf("expected redo no-op on empty stack")
	}
	if history.Content() != "seed" {
		t.Fatalf("content changed by no-op: %q", history.Content())
	}
}

func TestHistoryUpdateOptionsShrinksEagerly(t *testing.T) {
	history := NewHistory("", HistoryOptions{MaxSize: 10, MergeWindow: time.Millisecond}, nil)

	at := baseTime()
	offset := 0
	for i := 0; i < 6; i++ {
		at = at.Add(time.Second)
		if err := history.Execute(mustInsert(t, offset, "x", at)); err != nil {
			t.Fatalf("execute failed: %v", err)
		}
		offset++
	}

	history.UpdateOptions(HistoryOptions{MaxSize: 2})
	info := history.Info()
	if info.UndoCount != 2 {
		t.Fatalf("expected eager eviction to 2, got %d", info.UndoCount)
	}
	if info.MaxSize != 2 {
		t.Fatalf("expected max size 2, got %d", info.MaxSize)
	}
}

func TestHistoryFailedApplyLeavesStateUntouched(t *testing.T) {
	history := NewHistory("ab", HistoryOptions{}, nil)
	if err := history.Execute(mustInsert(t, 0, "ab", baseTime())); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	// Built against different content, so the range check fails on apply.
	stale := mustDelete(t, "completely different text", 10, 5, baseTime().Add(time.Second))
	if err := history.Execute(stale); err == nil {
		t.Fatalf("expected stale command to fail")
	}
	if history.Content() != "abab" {
		t.Fatalf("content mutated by failed command: %q", history.Content())
	}
	if info := history.Info(); info.UndoCount != 1 {
		t.Fatalf("failed command recorded in history: %d", info.UndoCount)
	}
}

func TestHistoryTailReturnsTrailingEntries(t *testing.T) {
	history := NewHistory("", HistoryOptions{MergeWindow: time.Millisecond}, nil)
	at := baseTime()
	offset := 0
	for i := 0; i < 4; i++ {
		at = at.Add(time.Second)
		text := fmt.Sprintf("%d", i)
		if err := history.Execute(mustInsert(t, offset, text, at)); err != nil {
			t.Fatalf("execute failed: %v", err)
		}
		offset += len(text)
	}

	tail := history.Tail(2)
	if len(tail) != 2 {
		t.Fatalf("expected 2 trailing entries, got %d", len(tail))
	}
	if tail[0].Text != "2" || tail[1].Text != "3" {
		t.Fatalf("unexpected tail order: %#v", tail)
	}
	if tail := history.Tail(0); tail != nil {
		t.Fatalf("expected nil tail for n=0, got %#v", tail)
	}
}
