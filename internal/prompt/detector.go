package prompt

import (
	"strings"
	"sync"

	"github.com/ehrlich-b/tradewarden/internal/term"
)

// DefaultSliceRows is the last-N-rows slice width the detector scans. Like
// the stability window, it is one knob exposed in one place.
const DefaultSliceRows = 4

// Detection is a classified prompt.
type Detection struct {
	PromptID    string
	InputKind   InputKind
	Kind        Kind
	MatchedText string
	MatchedRow  int // absolute row index in the snapshot
}

// IsPagination reports whether the detection is a pagination continuation:
// an any_key prompt or an id ending in .pause or .more.
func (d *Detection) IsPagination() bool {
	if d == nil {
		return false
	}
	return d.InputKind == AnyKey ||
		strings.HasSuffix(d.PromptID, ".pause") ||
		strings.HasSuffix(d.PromptID, ".more")
}

// Detector evaluates a ruleset against snapshots. The ruleset pointer is
// swappable at runtime (hot reload); detection itself is lock-free per call.
type Detector struct {
	mu        sync.RWMutex
	rules     *RuleSet
	sliceRows int
}

// NewDetector creates a detector over a compiled ruleset.
func NewDetector(rules *RuleSet) *Detector {
	return &Detector{rules: rules, sliceRows: DefaultSliceRows}
}

// SetSliceRows overrides the last-N-rows slice width.
func (d *Detector) SetSliceRows(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n > 0 {
		d.sliceRows = n
	}
}

// Rules returns the current ruleset.
func (d *Detector) Rules() *RuleSet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rules
}

// Swap atomically replaces the ruleset.
func (d *Detector) Swap(rules *RuleSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules = rules
}

// Detect classifies the snapshot's prompt, or returns nil. Ordered
// first-match-wins over the last-N-rows slice; negative_regex and
// expect_cursor_at_end are independent vetoes. Pagination prompts must sit on
// the final non-blank row so stale [Pause] text inside ANSI art higher up
// never triggers a continuation.
func (d *Detector) Detect(snap *term.Snapshot) *Detection {
	d.mu.RLock()
	rules := d.rules
	sliceRows := d.sliceRows
	d.mu.RUnlock()
	if rules == nil {
		return nil
	}

	start := len(snap.Rows) - sliceRows
	if start < 0 {
		start = 0
	}
	slice := snap.Rows[start:]
	joined := strings.Join(slice, "\n")

	lastNonBlank := -1
	for i, row := range slice {
		if strings.TrimSpace(row) != "" {
			lastNonBlank = i
		}
	}

	for i := range rules.Rules {
		r := &rules.Rules[i]
		loc := r.re.FindStringIndex(joined)
		if loc == nil {
			continue
		}
		if r.negRe != nil && r.negRe.MatchString(joined) {
			continue
		}
		if r.ExpectCursorAtEnd && !snap.CursorAtEnd {
			continue
		}
		matchRow := strings.Count(joined[:loc[0]], "\n")
		det := &Detection{
			PromptID:    r.ID,
			InputKind:   r.InputKind,
			Kind:        r.Kind,
			MatchedText: joined[loc[0]:loc[1]],
			MatchedRow:  start + matchRow,
		}
		if det.IsPagination() && matchRow != lastNonBlank {
			continue
		}
		return det
	}
	return nil
}
