package game

import (
	"fmt"
	"sort"
	"time"
)

// SectorKnowledge is everything learned about one sector. Warps, buys and
// sells only ever grow; port_class transitions once from unset to set. Merges
// never overwrite specific data with less-specific data.
type SectorKnowledge struct {
	SectorID    int                 `json:"sector_id"`
	Warps       map[int]bool        `json:"warps,omitempty"`
	HasPort     bool                `json:"has_port,omitempty"`
	PortClass   PortClass           `json:"port_class,omitempty"`
	PortBuys    map[Commodity]bool  `json:"port_buys,omitempty"`
	PortSells   map[Commodity]bool  `json:"port_sells,omitempty"`
	Quotes      map[Commodity]Quote `json:"quotes,omitempty"`
	LastVisited time.Time           `json:"last_visited,omitempty"`
	LastScanned time.Time           `json:"last_scanned,omitempty"`
	DangerLevel int                 `json:"danger_level,omitempty"`
}

// NewSectorKnowledge returns an empty record for a sector.
func NewSectorKnowledge(id int) *SectorKnowledge {
	return &SectorKnowledge{
		SectorID:  id,
		Warps:     make(map[int]bool),
		PortBuys:  make(map[Commodity]bool),
		PortSells: make(map[Commodity]bool),
		Quotes:    make(map[Commodity]Quote),
	}
}

// Empty reports whether the record carries no information beyond its id.
func (sk *SectorKnowledge) Empty() bool {
	return len(sk.Warps) == 0 && !sk.HasPort && sk.PortClass == "" &&
		len(sk.PortBuys) == 0 && len(sk.PortSells) == 0
}

// WarpList returns warps in ascending order.
func (sk *SectorKnowledge) WarpList() []int {
	out := make([]int, 0, len(sk.Warps))
	for w := range sk.Warps {
		out = append(out, w)
	}
	sort.Ints(out)
	return out
}

// Merge folds other into sk, growing only. Port class, once set, must agree.
func (sk *SectorKnowledge) Merge(other *SectorKnowledge) error {
	if other == nil {
		return nil
	}
	for w := range other.Warps {
		sk.Warps[w] = true
	}
	if other.HasPort {
		sk.HasPort = true
	}
	if other.PortClass != "" {
		if sk.PortClass != "" && sk.PortClass != other.PortClass {
			return fmt.Errorf("game: sector %d port class conflict: %s vs %s",
				sk.SectorID, sk.PortClass, other.PortClass)
		}
		sk.PortClass = other.PortClass
		sk.applyClassMasks()
	}
	for c := range other.PortBuys {
		sk.PortBuys[c] = true
	}
	for c := range other.PortSells {
		sk.PortSells[c] = true
	}
	for c, q := range other.Quotes {
		if cur, ok := sk.Quotes[c]; !ok || q.Observed >= cur.Observed {
			sk.Quotes[c] = q
		}
	}
	if other.LastVisited.After(sk.LastVisited) {
		sk.LastVisited = other.LastVisited
	}
	if other.LastScanned.After(sk.LastScanned) {
		sk.LastScanned = other.LastScanned
	}
	if other.DangerLevel > sk.DangerLevel {
		sk.DangerLevel = other.DangerLevel
	}
	return nil
}

// applyClassMasks derives buy/sell sets from the class code. The class
// uniquely determines both masks.
func (sk *SectorKnowledge) applyClassMasks() {
	if !sk.PortClass.Valid() || sk.PortClass == ClassSpecial {
		return
	}
	for _, c := range Commodities {
		if sk.PortClass.Buys(c) {
			sk.PortBuys[c] = true
		}
		if sk.PortClass.Sells(c) {
			sk.PortSells[c] = true
		}
	}
}

// Knowledge is one bot's view of the universe graph. Sectors are an arena
// keyed by integer id; warps are id sets, never pointers.
type Knowledge struct {
	Sectors map[int]*SectorKnowledge `json:"sectors"`
}

// NewKnowledge returns an empty graph.
func NewKnowledge() *Knowledge {
	return &Knowledge{Sectors: make(map[int]*SectorKnowledge)}
}

// Sector returns the record for id, creating it if absent.
func (k *Knowledge) Sector(id int) *SectorKnowledge {
	sk, ok := k.Sectors[id]
	if !ok {
		sk = NewSectorKnowledge(id)
		k.Sectors[id] = sk
	}
	return sk
}

// Peek returns the record for id or nil, without creating it.
func (k *Knowledge) Peek(id int) *SectorKnowledge {
	return k.Sectors[id]
}

// MarkScanned merges scan data into a sector and stamps last_scanned. An
// empty mark is refused: caching "known and empty" poisons later visits.
func (k *Knowledge) MarkScanned(id int, data *SectorKnowledge) error {
	if data == nil || data.Empty() {
		return fmt.Errorf("%w: sector %d", ErrKnowledgePoisoned, id)
	}
	sk := k.Sector(id)
	if err := sk.Merge(data); err != nil {
		return err
	}
	sk.LastScanned = time.Now()
	return nil
}

// MarkVisited stamps last_visited without requiring scan data.
func (k *Knowledge) MarkVisited(id int) {
	k.Sector(id).LastVisited = time.Now()
}

// Clone deep-copies the graph. Used for snapshot-consistent reads.
func (k *Knowledge) Clone() *Knowledge {
	out := NewKnowledge()
	for id, sk := range k.Sectors {
		cp := NewSectorKnowledge(id)
		cp.Merge(sk)
		out.Sectors[id] = cp
	}
	return out
}

// MergeFrom folds an entire graph into this one (inherit_on_death and the
// shared-store sync path).
func (k *Knowledge) MergeFrom(other *Knowledge) {
	if other == nil {
		return
	}
	for id, sk := range other.Sectors {
		k.Sector(id).Merge(sk)
	}
}
