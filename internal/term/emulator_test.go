package term

import (
	"strings"
	"testing"
)

func feed(t *testing.T, input string) *Snapshot {
	t.Helper()
	e := NewEmulator(80, 25)
	if _, err := e.Write([]byte(input)); err != nil {
		t.Fatalf("write: %v", err)
	}
	return e.Snapshot()
}

func TestPlainText(t *testing.T) {
	snap := feed(t, "Sector  : 1337 in The Federation.\r\n")
	if snap.Rows[0] != "Sector  : 1337 in The Federation." {
		t.Errorf("row 0 = %q", snap.Rows[0])
	}
	if snap.CursorX != 0 || snap.CursorY != 1 {
		t.Errorf("cursor = (%d,%d), want (0,1)", snap.CursorX, snap.CursorY)
	}
}

func TestIdempotentEmulation(t *testing.T) {
	inputs := []string{
		"hello\r\nworld",
		"\x1b[2J\x1b[H\x1b[1;36mSector \x1b[33m[42]\x1b[0m\r\n",
		"line1\nline2\rover",
		strings.Repeat("x", 200),
		"\x1b[5;10Hdeep\x1b[K\x1b[A up",
		string([]byte{0xC9, 0xCD, 0xBB, '\r', '\n', 0xBA, ' ', 0xBA}),
	}
	for _, in := range inputs {
		a := NewEmulator(80, 25)
		b := NewEmulator(80, 25)
		a.Write([]byte(in))
		b.Write([]byte(in))
		if a.Snapshot().Hash != b.Snapshot().Hash {
			t.Errorf("hash mismatch for %q", in)
		}
	}
}

func TestHashIgnoresTrailingSpaces(t *testing.T) {
	a := feed(t, "abc")
	b := feed(t, "abc   \x1b[4D") // trailing spaces then cursor back
	if a.Hash != b.Hash {
		t.Errorf("trailing spaces changed hash: %d vs %d", a.Hash, b.Hash)
	}
}

func TestSGRStripped(t *testing.T) {
	snap := feed(t, "\x1b[1;33;44mColor\x1b[0m")
	if snap.Rows[0] != "Color" {
		t.Errorf("row = %q, want Color", snap.Rows[0])
	}
}

func TestCP437BoxDrawing(t *testing.T) {
	snap := feed(t, string([]byte{0xC9, 0xCD, 0xBB}))
	if snap.Rows[0] != "╔═╗" {
		t.Errorf("row = %q, want ╔═╗", snap.Rows[0])
	}
}

func TestCursorMovement(t *testing.T) {
	snap := feed(t, "\x1b[10;20HX")
	if snap.Rows[9] != strings.Repeat(" ", 19)+"X" {
		t.Errorf("row 9 = %q", snap.Rows[9])
	}
	snap = feed(t, "abc\x1b[2Dz")
	if snap.Rows[0] != "azc" {
		t.Errorf("CUB overwrite = %q, want azc", snap.Rows[0])
	}
}

func TestCRWithoutLF(t *testing.T) {
	snap := feed(t, "1234567890\rab")
	if snap.Rows[0] != "ab34567890" {
		t.Errorf("row = %q, want ab34567890", snap.Rows[0])
	}
}

func TestColumnOverflowWraps(t *testing.T) {
	snap := feed(t, strings.Repeat("a", 85))
	if snap.Rows[0] != strings.Repeat("a", 80) {
		t.Errorf("row 0 len = %d", len(snap.Rows[0]))
	}
	if snap.Rows[1] != "aaaaa" {
		t.Errorf("row 1 = %q, want aaaaa", snap.Rows[1])
	}
}

func TestScrollOnLF(t *testing.T) {
	e := NewEmulator(80, 25)
	for i := 0; i < 30; i++ {
		e.Write([]byte("line\r\n"))
	}
	e.Write([]byte("last"))
	snap := e.Snapshot()
	if snap.Rows[24] != "last" {
		t.Errorf("row 24 = %q, want last", snap.Rows[24])
	}
	if snap.Rows[0] != "line" {
		t.Errorf("row 0 = %q, want line (scrolled)", snap.Rows[0])
	}
}

func TestEraseDisplay(t *testing.T) {
	snap := feed(t, "junk everywhere\x1b[2J\x1b[Hclean")
	if snap.Rows[0] != "clean" {
		t.Errorf("row 0 = %q, want clean", snap.Rows[0])
	}
	for y := 1; y < 25; y++ {
		if snap.Rows[y] != "" {
			t.Errorf("row %d = %q, want empty", y, snap.Rows[y])
		}
	}
}

func TestEraseLine(t *testing.T) {
	snap := feed(t, "abcdef\x1b[3D\x1b[K")
	if snap.Rows[0] != "abc" {
		t.Errorf("row = %q, want abc", snap.Rows[0])
	}
}

func TestCursorAtEnd(t *testing.T) {
	snap := feed(t, "Command [TL=00:00:00]:[1337] (?=Help)? : ")
	if !snap.CursorAtEnd {
		t.Error("expected cursor_at_end after prompt text")
	}

	// cursor moved up into the middle of earlier text: not at end
	snap = feed(t, "first line\r\nsecond\x1b[A")
	if snap.CursorAtEnd {
		t.Error("cursor on non-last row should not be at end")
	}

	// cursor parked before the end of the row
	snap = feed(t, "prompt: \x1b[4D")
	if snap.CursorAtEnd {
		t.Error("cursor mid-row should not be at end")
	}
}

func TestSGRMidPrompt(t *testing.T) {
	snap := feed(t, "Command [\x1b[1;33mTL\x1b[0m=00:10:00]: ")
	if snap.Rows[0] != "Command [TL=00:10:00]:" {
		t.Errorf("row = %q", snap.Rows[0])
	}
	if !snap.CursorAtEnd {
		t.Error("expected cursor_at_end with SGR mid-prompt")
	}
}
