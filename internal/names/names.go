// Package names generates themed character and ship names with collision
// avoidance. Names are built from prefix x middle x suffix word banks.
package names

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// Complexity picks how many parts a generated name has.
type Complexity string

const (
	Simple   Complexity = "simple"   // prefix only
	Medium   Complexity = "medium"   // prefix + suffix
	Complex  Complexity = "complex"  // prefix + middle + suffix
	Numbered Complexity = "numbered" // medium + a two-digit tag
)

// Valid reports whether c is a recognized complexity mode.
func (c Complexity) Valid() bool {
	switch c {
	case Simple, Medium, Complex, Numbered:
		return true
	}
	return false
}

var (
	prefixes = []string{
		"Astra", "Cinder", "Drift", "Echo", "Flint", "Gale", "Halcyon",
		"Iron", "Jasper", "Kestrel", "Lumen", "Moss", "Nova", "Onyx",
		"Pike", "Quill", "Raven", "Sable", "Torrent", "Umber", "Vesper",
		"Wren", "Zephyr",
	}
	middles = []string{
		"brook", "fall", "field", "forge", "gate", "hollow", "mark",
		"ridge", "shade", "spire", "vale", "ward",
	}
	suffixes = []string{
		"Atlas", "Blade", "Crown", "Dancer", "Fox", "Hawk", "Keeper",
		"Lark", "Pilot", "Rider", "Runner", "Scout", "Seeker", "Star",
		"Trader", "Walker",
	}
	shipPrefixes = []string{
		"ISS", "TSS", "MV", "SV",
	}
	shipNames = []string{
		"Argent Dawn", "Broken Compass", "Cartwheel", "Distant Thunder",
		"Errant Venture", "Fortune's Edge", "Gravity Well", "Long Haul",
		"Margin Call", "Night Freight", "Quiet Profit", "Slow Burn",
		"Stern Chaser", "Tailwind", "Vagrant Moon",
	}
)

// Generator draws unique names. The used set is guarded internally, but in a
// swarm all draws should still route through the broker so persistence sees
// them.
type Generator struct {
	mu   sync.Mutex
	rng  *rand.Rand
	used map[string]bool
}

// New seeds a generator. seed 0 means non-deterministic.
func New(seed int64) *Generator {
	src := rand.NewSource(seed)
	if seed == 0 {
		src = rand.NewSource(rand.Int63())
	}
	return &Generator{rng: rand.New(src), used: make(map[string]bool)}
}

// MarkUsed pre-loads names that already exist (from the store).
func (g *Generator) MarkUsed(names ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range names {
		g.used[strings.ToLower(n)] = true
	}
}

// Character draws a fresh character name at the given complexity. Draws are
// retried against the used set; after enough collisions a numeric tag is
// forced so the call always terminates.
func (g *Generator) Character(c Complexity) (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("names: unknown complexity %q", c)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	for attempt := 0; attempt < 64; attempt++ {
		name := g.compose(c)
		if attempt >= 32 {
			name = fmt.Sprintf("%s %02d", name, g.rng.Intn(100))
		}
		key := strings.ToLower(name)
		if !g.used[key] {
			g.used[key] = true
			return name, nil
		}
	}
	return "", fmt.Errorf("names: name space exhausted for %q", c)
}

func (g *Generator) compose(c Complexity) string {
	p := prefixes[g.rng.Intn(len(prefixes))]
	switch c {
	case Simple:
		return p
	case Medium:
		return p + " " + suffixes[g.rng.Intn(len(suffixes))]
	case Complex:
		return p + middles[g.rng.Intn(len(middles))] + " " + suffixes[g.rng.Intn(len(suffixes))]
	default: // Numbered
		return fmt.Sprintf("%s %s %02d",
			p, suffixes[g.rng.Intn(len(suffixes))], g.rng.Intn(100))
	}
}

// Ship draws a ship name; withNumber appends a hull number.
func (g *Generator) Ship(withNumber bool) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	name := shipPrefixes[g.rng.Intn(len(shipPrefixes))] + " " + shipNames[g.rng.Intn(len(shipNames))]
	if withNumber {
		name = fmt.Sprintf("%s %d", name, 1+g.rng.Intn(99))
	}
	return name
}
