package game

// Loop detection defaults: same prompt id recurring RepeatLimit times within
// the last RingSize detections, with no credits/sector/holds delta between,
// means the bot is disoriented.
const (
	DefaultRingSize    = 5
	DefaultRepeatLimit = 3
)

type loopEntry struct {
	promptID string
	credits  int
	sector   int
	holds    int
}

// LoopDetector keeps a small ring of recent prompt detections and flags
// repetition without progress.
type LoopDetector struct {
	ring  []loopEntry
	size  int
	limit int
}

// NewLoopDetector returns a detector with the given ring size and repeat
// limit; zero values select the defaults.
func NewLoopDetector(size, limit int) *LoopDetector {
	if size <= 0 {
		size = DefaultRingSize
	}
	if limit <= 0 {
		limit = DefaultRepeatLimit
	}
	return &LoopDetector{size: size, limit: limit}
}

// Observe records a detection against the state it was seen in and reports
// whether the bot is looping.
func (ld *LoopDetector) Observe(promptID string, gs *GameState) bool {
	ld.ring = append(ld.ring, loopEntry{
		promptID: promptID,
		credits:  gs.Credits,
		sector:   gs.CurrentSector,
		holds:    gs.HoldsUsed,
	})
	if len(ld.ring) > ld.size {
		ld.ring = ld.ring[len(ld.ring)-ld.size:]
	}
	return ld.looping()
}

// Reset clears the ring, typically after a successful recovery.
func (ld *LoopDetector) Reset() {
	ld.ring = ld.ring[:0]
}

// looping reports whether any prompt id occurs limit+ times in the ring with
// identical credits/sector/holds at every occurrence.
func (ld *LoopDetector) looping() bool {
	counts := make(map[string][]loopEntry)
	for _, e := range ld.ring {
		counts[e.promptID] = append(counts[e.promptID], e)
	}
	for _, entries := range counts {
		if len(entries) < ld.limit {
			continue
		}
		progressed := false
		first := entries[0]
		for _, e := range entries[1:] {
			if e.credits != first.credits || e.sector != first.sector || e.holds != first.holds {
				progressed = true
				break
			}
		}
		if !progressed {
			return true
		}
	}
	return false
}
