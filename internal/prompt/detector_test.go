package prompt

import (
	"testing"

	"github.com/ehrlich-b/tradewarden/internal/term"
)

const testRules = `{
  "namespace": "tw2002",
  "anchor_keys": "\r\rd",
  "rules": [
    {"id": "game.pause", "regex": "\\[Pause\\]", "input_kind": "any_key", "kind": "pause"},
    {"id": "game.sector_command", "regex": "Command \\[TL=.*\\] \\(\\?=Help\\)\\? :", "input_kind": "single_key", "kind": "menu", "expect_cursor_at_end": true},
    {"id": "login.name", "regex": "What is your name\\?", "input_kind": "multi_key", "kind": "login_name"},
    {"id": "login.selection", "regex": "Selection \\(\\? for menu\\):", "input_kind": "single_key", "kind": "menu", "negative_regex": "Game Over"},
    {"id": "game.quantity", "regex": "How many holds", "input_kind": "multi_key", "kind": "input"}
  ]
}`

func loadTestDetector(t *testing.T) *Detector {
	t.Helper()
	rs, err := ParseRules([]byte(testRules))
	if err != nil {
		t.Fatalf("parse rules: %v", err)
	}
	return NewDetector(rs)
}

// snapFromRows builds a snapshot by replaying rows through a real emulator so
// cursor flags behave as in production.
func snapFromRows(t *testing.T, rows ...string) *term.Snapshot {
	t.Helper()
	e := term.NewEmulator(80, 25)
	for i, r := range rows {
		if i > 0 {
			e.Write([]byte("\r\n"))
		}
		e.Write([]byte(r))
	}
	return e.Snapshot()
}

func TestFirstMatchWins(t *testing.T) {
	d := loadTestDetector(t)
	// Both pause and quantity could match; pause is declared first.
	snap := snapFromRows(t, "How many holds of Fuel Ore do you want (20)? [Pause]")
	det := d.Detect(snap)
	if det == nil {
		t.Fatal("no detection")
	}
	if det.PromptID != "game.pause" {
		t.Errorf("prompt = %s, want game.pause", det.PromptID)
	}
	if det.InputKind != AnyKey {
		t.Errorf("input kind = %s", det.InputKind)
	}
}

func TestRuleOrderChangesWinner(t *testing.T) {
	rs, err := ParseRules([]byte(`{"rules":[
		{"id": "b", "regex": "holds", "input_kind": "multi_key"},
		{"id": "a", "regex": "Pause", "input_kind": "single_key"}
	]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	d := NewDetector(rs)
	snap := snapFromRows(t, "How many holds? Pause")
	if det := d.Detect(snap); det == nil || det.PromptID != "b" {
		t.Fatalf("det = %+v, want b", det)
	}
}

func TestNegativeRegexVeto(t *testing.T) {
	d := loadTestDetector(t)
	snap := snapFromRows(t, "Game Over", "Selection (? for menu):")
	det := d.Detect(snap)
	if det != nil && det.PromptID == "login.selection" {
		t.Error("negative regex should have vetoed login.selection")
	}
}

func TestCursorAtEndVeto(t *testing.T) {
	d := loadTestDetector(t)
	// Prompt text present but the cursor was yanked back mid-row.
	e := term.NewEmulator(80, 25)
	e.Write([]byte("Command [TL=00:05:00]:[312] (?=Help)? : \x1b[10D"))
	snap := e.Snapshot()
	if snap.CursorAtEnd {
		t.Fatal("test setup: cursor unexpectedly at end")
	}
	det := d.Detect(snap)
	if det != nil && det.PromptID == "game.sector_command" {
		t.Error("expect_cursor_at_end should have vetoed")
	}
}

func TestSectorCommandDetected(t *testing.T) {
	d := loadTestDetector(t)
	snap := snapFromRows(t, "some output", "Command [TL=00:05:00]:[312] (?=Help)? : ")
	det := d.Detect(snap)
	if det == nil || det.PromptID != "game.sector_command" {
		t.Fatalf("det = %+v, want game.sector_command", det)
	}
}

func TestStalePauseInAnsiArtIgnored(t *testing.T) {
	d := loadTestDetector(t)
	// [Pause] baked into art on a non-final row must not paginate.
	snap := snapFromRows(t,
		"    ███ [Pause] ███",
		"Selection (? for menu):")
	det := d.Detect(snap)
	if det == nil {
		t.Fatal("no detection")
	}
	if det.PromptID != "login.selection" {
		t.Errorf("prompt = %s, want login.selection", det.PromptID)
	}
}

func TestPauseOnFinalRow(t *testing.T) {
	d := loadTestDetector(t)
	snap := snapFromRows(t, "long listing output", "[Pause]")
	det := d.Detect(snap)
	if det == nil || det.PromptID != "game.pause" {
		t.Fatalf("det = %+v, want game.pause", det)
	}
}

func TestDetectionOutsideSliceIgnored(t *testing.T) {
	d := loadTestDetector(t)
	rows := make([]string, 0, 8)
	rows = append(rows, "What is your name?")
	for i := 0; i < 6; i++ {
		rows = append(rows, "filler")
	}
	snap := snapFromRows(t, rows...)
	if det := d.Detect(snap); det != nil {
		t.Errorf("prompt above the slice detected: %+v", det)
	}
}

func TestStableDetection(t *testing.T) {
	d := loadTestDetector(t)
	snap1 := snapFromRows(t, "What is your name?")
	snap2 := snapFromRows(t, "What is your name?")
	if snap1.Hash != snap2.Hash {
		t.Fatal("identical screens must hash equal")
	}
	d1, d2 := d.Detect(snap1), d.Detect(snap2)
	if d1 == nil || d2 == nil || *d1 != *d2 {
		t.Errorf("detections differ: %+v vs %+v", d1, d2)
	}
}

func TestAnchorKeysCarried(t *testing.T) {
	rs, err := ParseRules([]byte(testRules))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rs.AnchorKeys != "\r\rd" {
		t.Errorf("anchor keys = %q", rs.AnchorKeys)
	}
}
