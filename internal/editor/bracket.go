package editor

// BracketTracker records which delimiter pairs were inserted by the engine
// (auto-closed chord brackets, quotes) as opposed to typed by the user, so
// smart deletion and overtyping only ever touch engine-inserted pairs.
// Positions are byte offsets into the document and shift with edits.
type BracketTracker struct {
	pairs []trackedPair
}

type trackedPair struct {
	open  int
	close int
}

// NewBracketTracker returns an empty tracker.
func NewBracketTracker() *BracketTracker {
	return &BracketTracker{}
}

// RecordPair marks an engine-inserted delimiter pair at the given offsets.
func (t *BracketTracker) RecordPair(open, close int) {
	if open < 0 || close <= open {
		return
	}
	t.pairs = append(t.pairs, trackedPair{open: open, close: close})
}

// ShiftInsert adjusts tracked offsets after n bytes were inserted at pos.
func (t *BracketTracker) ShiftInsert(pos, n int) {
	if n <= 0 {
		return
	}
	for i := range t.pairs {
		if t.pairs[i].open >= pos {
			t.pairs[i].open += n
		}
		if t.pairs[i].close >= pos {
			t.pairs[i].close += n
		}
	}
}

// ShiftDelete adjusts tracked offsets after n bytes were removed at pos.
// Pairs whose delimiters fall inside the removed range are dropped.
func (t *BracketTracker) ShiftDelete(pos, n int) {
	if n <= 0 {
		return
	}
	end := pos + n
	kept := t.pairs[:0]
	for _, pair := range t.pairs {
		if (pair.open >= pos && pair.open < end) || (pair.close >= pos && pair.close < end) {
			continue
		}
		if pair.open >= end {
			pair.open -= n
		}
		if pair.close >= end {
			pair.close -= n
		}
		kept = append(kept, pair)
	}
	t.pairs = kept
}

// ClosingAt reports whether an engine-inserted closing delimiter sits at pos.
func (t *BracketTracker) ClosingAt(pos int) bool {
	for _, pair := range t.pairs {
		if pair.close == pos {
			return true
		}
	}
	return false
}

// ConsumeClosing removes tracking for the closing delimiter at pos, for
// overtype handling. It reports whether a pair was consumed.
func (t *BracketTracker) ConsumeClosing(pos int) bool {
	for i, pair := range t.pairs {
		if pair.close == pos {
			t.pairs = append(t.pairs[:i], t.pairs[i+1:]...)
			return true
		}
	}
	return false
}

// CloseFor returns the closing offset paired with an engine-inserted opening
// delimiter at pos.
func (t *BracketTracker) CloseFor(pos int) (int, bool) {
	for _, pair := range t.pairs {
		if pair.open == pos {
			return pair.close, true
		}
	}
	return 0, false
}

// Reset drops all tracked pairs.
func (t *BracketTracker) Reset() {
	t.pairs = t.pairs[:0]
}

// Len returns the number of tracked pairs.
func (t *BracketTracker) Len() int {
	return len(t.pairs)
}
