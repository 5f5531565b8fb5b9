package editor

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCommand indicates a command could not be constructed from the
	// provided arguments.
	ErrInvalidCommand = errors.New("editor: invalid command")
	// ErrContentMismatch indicates the live content no longer matches what the
	// command was built against, so applying or inverting it would corrupt
	// the document.
	ErrContentMismatch = errors.New("editor: content mismatch")
)

// CommandKind tags the serialized form of a command.
type CommandKind string

const (
	// CommandKindInsert inserts text at a byte offset.
	CommandKindInsert CommandKind = "insert"
	// CommandKindDelete removes a byte range.
	CommandKindDelete CommandKind = "delete"
	// CommandKindReplace swaps a byte range for new text.
	CommandKindReplace CommandKind = "replace"
)

// Command is an immutable, reversible description of one edit operation.
// Offsets are byte offsets into the document.
type Command interface {
	// Apply produces the content with the edit applied.
	Apply(content string) (string, error)
	// Invert produces the content with the edit undone.
	Invert(content string) (string, error)
	// At returns the instant the command was created, used for coalescing.
	At() time.Time
	// MergeableWith reports whether next can be folded into this command as a
	// single undo step. Temporal proximity is the history's concern; this
	// only checks positional adjacency and kind.
	MergeableWith(next Command) bool
	// Merge folds next into this command. Callers must check MergeableWith
	// first.
	Merge(next Command) Command
	// Entry returns the serializable form recorded in draft command logs.
	Entry() LogEntry
}

// LogEntry is the persisted snapshot of a command.
type LogEntry struct {
	Kind    CommandKind `json:"kind"`
	Pos     int         `json:"pos"`
	Text    string      `json:"text,omitempty"`
	Removed string      `json:"removed,omitempty"`
	AtMilli int64       `json:"at_ms"`
}

// InsertText inserts text at a byte offset.
type InsertText struct {
	pos  int
	text string
	at   time.Time
}

// NewInsertText validates and constructs an InsertText command.
func NewInsertText(pos int, text string, at time.Time) (InsertText, error) {
	if pos < 0 {
		return InsertText{}, fmt.Errorf("%w: negative position %d", ErrInvalidCommand, pos)
	}
	if text == "" {
		return InsertText{}, fmt.Errorf("%w: empty insertion", ErrInvalidCommand)
	}
	return InsertText{pos: pos, text: text, at: at}, nil
}

// Apply inserts the text at the recorded offset.
func (c InsertText) Apply(content string) (string, error) {
	if c.pos > len(content) {
		return "", fmt.Errorf("%w: insert at %d beyond length %d", ErrContentMismatch, c.pos, len(content))
	}
	return content[:c.pos] + c.text + content[c.pos:], nil
}

// Invert removes the previously inserted text.
func (c InsertText) Invert(content string) (string, error) {
	end := c.pos + len(c.text)
	if end > len(content) || content[c.pos:end] != c.text {
		return "", fmt.Errorf("%w: inserted text not found at %d", ErrContentMismatch, c.pos)
	}
	return content[:c.pos] + content[end:], nil
}

// At returns the command creation time.
func (c InsertText) At() time.Time {
	return c.at
}

// MergeableWith reports whether next is an insertion continuing this one.
func (c InsertText) MergeableWith(next Command) bool {
	insert, ok := next.(InsertText)
	if !ok {
		return false
	}
	return insert.pos == c.pos+len(c.text)
}

// Merge folds a contiguous insertion into this one.
func (c InsertText) Merge(next Command) Command {
	insert := next.(InsertText)
	return InsertText{pos: c.pos, text: c.text + insert.text, at: insert.at}
}

// Entry returns the serializable form of the insertion.
func (c InsertText) Entry() LogEntry {
	return LogEntry{Kind: CommandKindInsert, Pos: c.pos, Text: c.text, AtMilli: c.at.UnixMilli()}
}

// DeleteRange removes a byte range. The removed text is captured at
// construction so the command can invert itself and detect external
// mutation on apply.
type DeleteRange struct {
	pos     int
	removed string
	at      time.Time
}

// NewDeleteRange validates the range against content and captures the
// removed text.
func NewDeleteRange(content string, pos, length int, at time.Time) (DeleteRange, error) {
	if pos < 0 || length <= 0 {
		return DeleteRange{}, fmt.Errorf("%w: bad range [%d,+%d)", ErrInvalidCommand, pos, length)
	}
	if pos+length > len(content) {
		return DeleteRange{}, fmt.Errorf("%w: range [%d,+%d) beyond length %d", ErrInvalidCommand, pos, length, len(content))
	}
	return DeleteRange{pos: pos, removed: content[pos : pos+length], at: at}, nil
}

// Apply removes the recorded range, verifying the content still matches.
func (c DeleteRange) Apply(content string) (string, error) {
	end := c.pos + len(c.removed)
	if end > len(content) || content[c.pos:end] != c.removed {
		return "", fmt.Errorf("%w: delete target changed at %d", ErrContentMismatch, c.pos)
	}
	return content[:c.pos] + content[end:], nil
}

// Invert restores the removed text.
func (c DeleteRange) Invert(content string) (string, error) {
	if c.pos > len(content) {
		return "", fmt.Errorf("%w: restore at %d beyond length %d", ErrContentMismatch, c.pos, len(content))
	}
	return content[:c.pos] + c.removed + content[c.pos:], nil
}

// At returns the command creation time.
func (c DeleteRange) At() time.Time {
	return c.at
}

// MergeableWith reports whether next continues a run of deletions. Backspace
// runs delete backwards (next ends where this began); forward-delete runs
// delete at the same offset.
func (c DeleteRange) MergeableWith(next Command) bool {
	del, ok := next.(DeleteRange)
	if !ok {
		return false
	}
	if del.pos+len(del.removed) == c.pos {
		return true
	}
	return del.pos == c.pos
}

// Merge folds an adjacent deletion into this one.
func (c DeleteRange) Merge(next Command) Command {
	del := next.(DeleteRange)
	if del.pos+len(del.removed) == c.pos {
		return DeleteRange{pos: del.pos, removed: del.removed + c.removed, at: del.at}
	}
	return DeleteRange{pos: c.pos, removed: c.removed + del.removed, at: del.at}
}

// Entry returns the serializable form of the deletion.
func (c DeleteRange) Entry() LogEntry {
	return LogEntry{Kind: CommandKindDelete, Pos: c.pos, Removed: c.removed, AtMilli: c.at.UnixMilli()}
}

// ReplaceRange swaps a byte range for new text.
type ReplaceRange struct {
	pos      int
	replaced string
	text     string
	at       time.Time
}

// NewReplaceRange validates the range against content and captures the
// replaced text.
func NewReplaceRange(content string, pos, length int, text string, at time.Time) (ReplaceRange, error) {
	if pos < 0 || length < 0 {
		return ReplaceRange{}, fmt.Errorf("%w: bad range [%d,+%d)", ErrInvalidCommand, pos, length)
	}
	if pos+length > len(content) {
		return ReplaceRange{}, fmt.Errorf("%w: range [%d,+%d) beyond length %d", ErrInvalidCommand, pos, length, len(content))
	}
	return ReplaceRange{pos: pos, replaced: content[pos : pos+length], text: text, at: at}, nil
}

// Apply swaps the recorded range for the replacement text.
func (c ReplaceRange) Apply(content string) (string, error) {
	end := c.pos + len(c.replaced)
	if end > len(content) || content[c.pos:end] != c.replaced {
		return "", fmt.Errorf("%w: replace target changed at %d", ErrContentMismatch, c.pos)
	}
	return content[:c.pos] + c.text + content[end:], nil
}

// Invert restores the original range.
func (c ReplaceRange) Invert(content string) (string, error) {
	end := c.pos + len(c.text)
	if end > len(content) || content[c.pos:end] != c.text {
		return "", fmt.Errorf("%w: replacement not found at %d", ErrContentMismatch, c.pos)
	}
	return content[:c.pos] + c.replaced + content[end:], nil
}

// At returns the command creation time.
func (c ReplaceRange) At() time.Time {
	return c.at
}

// MergeableWith always reports false; replacements stay discrete undo steps.
func (c ReplaceRange) MergeableWith(Command) bool {
	return false
}

// Merge panics; ReplaceRange never merges.
func (c ReplaceRange) Merge(Command) Command {
	panic("editor: ReplaceRange does not merge")
}

// Entry returns the serializable form of the replacement.
func (c ReplaceRange) Entry() LogEntry {
	return LogEntry{Kind: CommandKindReplace, Pos: c.pos, Text: c.text, Removed: c.replaced, AtMilli: c.at.UnixMilli()}
}
