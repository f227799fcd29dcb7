package names

import (
	"strings"
	"testing"
)

func TestCharacterComplexityShapes(t *testing.T) {
	g := New(42)
	cases := []struct {
		c     Complexity
		parts int
	}{
		{Simple, 1},
		{Medium, 2},
		{Numbered, 3},
	}
	for _, tc := range cases {
		name, err := g.Character(tc.c)
		if err != nil {
			t.Fatalf("%s: %v", tc.c, err)
		}
		if got := len(strings.Fields(name)); got != tc.parts {
			t.Errorf("%s name %q has %d parts, want %d", tc.c, name, got, tc.parts)
		}
	}
}

func TestCharacterUniqueness(t *testing.T) {
	g := New(7)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		name, err := g.Character(Numbered)
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		key := strings.ToLower(name)
		if seen[key] {
			t.Fatalf("duplicate name %q", name)
		}
		seen[key] = true
	}
}

func TestMarkUsedBlocksCollision(t *testing.T) {
	g := New(3)
	first, err := g.Character(Medium)
	if err != nil {
		t.Fatal(err)
	}

	g2 := New(3) // same seed replays the same draw sequence
	g2.MarkUsed(first)
	second, err := g2.Character(Medium)
	if err != nil {
		t.Fatal(err)
	}
	if strings.EqualFold(first, second) {
		t.Errorf("used name %q drawn again", first)
	}
}

func TestSeededDeterminism(t *testing.T) {
	a, _ := New(99).Character(Complex)
	b, _ := New(99).Character(Complex)
	if a != b {
		t.Errorf("same seed drew %q and %q", a, b)
	}
}

func TestUnknownComplexity(t *testing.T) {
	if _, err := New(1).Character("fancy"); err == nil {
		t.Error("unknown complexity accepted")
	}
}

func TestShipNumbering(t *testing.T) {
	g := New(5)
	plain := g.Ship(false)
	if plain == "" {
		t.Fatal("empty ship name")
	}
	numbered := g.Ship(true)
	fields := strings.Fields(numbered)
	last := fields[len(fields)-1]
	for _, r := range last {
		if r < '0' || r > '9' {
			t.Fatalf("ship %q lacks trailing hull number", numbered)
		}
	}
}
