// Package nav plans warp routes over the known sector graph. BFS over the
// integer-keyed arena; ties at equal depth prefer expired-cooldown sectors,
// then scanned sectors, then the lowest id.
package nav

import (
	"errors"
	"sort"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/game"
)

// ErrNoRoute means the target is unreachable with current knowledge. The
// caller either explores or picks another target.
var ErrNoRoute = errors.New("nav: no route with current knowledge")

// FindPath returns the shortest warp path from src to dst, excluding src
// itself, e.g. [7, 12] for two hops. A path to the current sector is empty.
func FindPath(know *game.Knowledge, gs *game.GameState, src, dst int, now time.Time) ([]int, error) {
	if src == dst {
		return nil, nil
	}

	srcKnow := know.Peek(src)
	if srcKnow == nil {
		return nil, ErrNoRoute
	}

	parent := map[int]int{src: src}
	frontier := []int{src}

	for len(frontier) > 0 {
		var next []int
		for _, cur := range frontier {
			sk := know.Peek(cur)
			if sk == nil {
				continue
			}
			for _, nb := range orderedNeighbors(sk, know, gs, now) {
				if _, seen := parent[nb]; seen {
					continue
				}
				parent[nb] = cur
				if nb == dst {
					return rebuild(parent, src, dst), nil
				}
				next = append(next, nb)
			}
		}
		frontier = next
	}
	return nil, ErrNoRoute
}

// orderedNeighbors sorts a sector's warps by expansion preference. Because
// BFS assigns parents first-come, the preference order decides equal-depth
// ties globally.
func orderedNeighbors(sk *game.SectorKnowledge, know *game.Knowledge, gs *game.GameState, now time.Time) []int {
	warps := sk.WarpList()
	sort.SliceStable(warps, func(i, j int) bool {
		a, b := warps[i], warps[j]
		ca, cb := gs.CooldownActive(a, now), gs.CooldownActive(b, now)
		if ca != cb {
			return !ca // expired or absent cooldown first
		}
		sa, sb := scanned(know, a), scanned(know, b)
		if sa != sb {
			return sa // previously scanned first
		}
		return a < b
	})
	return warps
}

func scanned(know *game.Knowledge, id int) bool {
	sk := know.Peek(id)
	return sk != nil && !sk.LastScanned.IsZero()
}

func rebuild(parent map[int]int, src, dst int) []int {
	var rev []int
	for cur := dst; cur != src; cur = parent[cur] {
		rev = append(rev, cur)
	}
	out := make([]int, len(rev))
	for i, v := range rev {
		out[len(rev)-1-i] = v
	}
	return out
}

// LeastVisitedWarp picks the warp out of sector src whose destination was
// visited longest ago (never-visited beats any timestamp; ties go to the
// lowest id). Used by exploration policies.
func LeastVisitedWarp(know *game.Knowledge, src int) (int, bool) {
	sk := know.Peek(src)
	if sk == nil || len(sk.Warps) == 0 {
		return 0, false
	}
	best := -1
	var bestAt time.Time
	for _, w := range sk.WarpList() {
		nb := know.Peek(w)
		var at time.Time
		if nb != nil {
			at = nb.LastVisited
		}
		if best == -1 || at.Before(bestAt) {
			best, bestAt = w, at
		}
	}
	return best, best != -1
}
