package editor

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxHistorySize bounds the undo stack.
	DefaultMaxHistorySize = 100
	// DefaultMergeWindow is the pause after which keystrokes stop coalescing
	// into one undo step.
	DefaultMergeWindow = 500 * time.Millisecond
)

var errNilCommand = errors.New("editor: nil command")

// HistoryOptions tunes the undo engine. Zero values fall back to defaults.
type HistoryOptions struct {
	MaxSize     int
	MergeWindow time.Duration
}

// HistoryInfo is a read-only snapshot for enabling undo/redo controls.
type HistoryInfo struct {
	UndoCount int
	RedoCount int
	MaxSize   int
}

// History is the command-sourced undo/redo engine. It owns the live document
// content plus two stacks of applied and undone commands. Executing a new
// command clears the redo stack; coalescing folds temporally and positionally
// adjacent commands into one undo step.
//
// History is not safe for concurrent use; the editing session drives it from
// a single goroutine.
type History struct {
	opts    HistoryOptions
	content string
	undo    []Command
	redo    []Command
	logger  *zap.Logger
}

// NewHistory constructs an undo engine over the provided initial content.
func NewHistory(initial string, opts HistoryOptions, logger *zap.Logger) *History {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxHistorySize
	}
	if opts.MergeWindow <= 0 {
		opts.MergeWindow = DefaultMergeWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{opts: opts, content: initial, logger: logger}
}

// Content returns the live document text.
func (h *History) Content() string {
	return h.content
}

// Execute applies the command to the live content and records it for undo.
// A failing command leaves content and stacks untouched.
func (h *History) Execute(cmd Command) error {
	if cmd == nil {
		return errNilCommand
	}

	next, err := cmd.Apply(h.content)
	if err != nil {
		h.logger.Warn("command apply rejected", zap.Error(err))
		return err
	}
	h.content = next
	h.redo = h.redo[:0]

	if top, ok := h.top(); ok && top.MergeableWith(cmd) && cmd.At().Sub(top.At()) <= h.opts.MergeWindow {
		h.undo[len(h.undo)-1] = top.Merge(cmd)
		return nil
	}

	h.undo = append(h.undo, cmd)
	h.evictOldest()
	return nil
}

// Undo reverts the most recent command. It reports whether anything changed.
func (h *History) Undo() bool {
	top, ok := h.top()
	if !ok {
		return false
	}
	previous, err := top.Invert(h.content)
	if err != nil {
		h.logger.Warn("command invert rejected", zap.Error(err))
		return false
	}
	h.content = previous
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, top)
	return true
}

// Redo re-applies the most recently undone command. It reports whether
// anything changed.
func (h *History) Redo() bool {
	if len(h.redo) == 0 {
		return false
	}
	cmd := h.redo[len(h.redo)-1]
	next, err := cmd.Apply(h.content)
	if err != nil {
		h.logger.Warn("command redo rejected", zap.Error(err))
		return false
	}
	h.content = next
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, cmd)
	return true
}

// UpdateOptions changes limits immediately; shrinking the cap evicts the
// oldest entries eagerly.
func (h *History) UpdateOptions(opts HistoryOptions) {
	if opts.MaxSize > 0 {
		h.opts.MaxSize = opts.MaxSize
	}
	if opts.MergeWindow > 0 {
		h.opts.MergeWindow = opts.MergeWindow
	}
	h.evictOldest()
}

// Info returns stack depths and the configured cap.
func (h *History) Info() HistoryInfo {
	return HistoryInfo{UndoCount: len(h.undo), RedoCount: len(h.redo), MaxSize: h.opts.MaxSize}
}

// Tail returns the serialized trailing slice of the undo stack, newest last,
// for inclusion in a draft command log.
func (h *History) Tail(n int) []LogEntry {
	if n <= 0 || len(h.undo) == 0 {
		return nil
	}
	start := 0
	if len(h.undo) > n {
		start = len(h.undo) - n
	}
	entries := make([]LogEntry, 0, len(h.undo)-start)
	for _, cmd := range h.undo[start:] {
		entries = append(entries, cmd.Entry())
	}
	return entries
}

func (h *History) top() (Command, bool) {
	if len(h.undo) == 0 {
		return nil, false
	}
	return h.undo[len(h.undo)-1], true
}

func (h *History) evictOldest() {
	if excess := len(h.undo) - h.opts.MaxSize; excess > 0 {
		// Evicted edits become permanently non-undoable.
		h.undo = append(h.undo[:0], h.undo[excess:]...)
	}
}
