package strategy

import (
	"sort"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/game"
	"github.com/ehrlich-b/tradewarden/internal/nav"
)

// Pair is one precomputed (buy port, sell port, commodity) lane with its
// expected round profit.
type Pair struct {
	BuySector  int
	SellSector int
	Commodity  game.Commodity
	BuyPrice   int
	SellPrice  int
	Hops       int
	Profit     int
}

// PairsConfig tunes lane precomputation.
type PairsConfig struct {
	ProfitThreshold  int // lanes below this expected profit are discarded
	MaxHopRadius     int // lanes farther apart than this are discarded
	TravelCostPerHop int // flat per-hop cost charged against profit
}

// DefaultPairsConfig matches a small early-game ship.
var DefaultPairsConfig = PairsConfig{
	ProfitThreshold:  100,
	MaxHopRadius:     8,
	TravelCostPerHop: 5,
}

// ComputePairs scans the graph for port pairs where a commodity is buyable
// at one end and sellable at the other, prices the lane from observed quotes
// (falling back to hints and floors via gs.Valuation), and keeps profitable
// lanes inside the hop radius, best first.
func ComputePairs(graph *game.Knowledge, gs *game.GameState, holds int, cfg PairsConfig, now time.Time) []Pair {
	if holds <= 0 {
		return nil
	}
	var ports []*game.SectorKnowledge
	for _, sk := range graph.Sectors {
		if sk.HasPort && sk.PortClass.Valid() && sk.PortClass != game.ClassSpecial {
			ports = append(ports, sk)
		}
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].SectorID < ports[j].SectorID })

	var pairs []Pair
	for _, from := range ports {
		for _, to := range ports {
			if from.SectorID == to.SectorID {
				continue
			}
			for _, c := range game.Commodities {
				if !from.PortBuys[c] || !to.PortSells[c] {
					continue
				}
				buy := price(from, gs, c)
				sell := price(to, gs, c)
				if sell <= buy {
					continue
				}
				path, err := nav.FindPath(graph, gs, from.SectorID, to.SectorID, now)
				if err != nil {
					continue
				}
				hops := len(path)
				if cfg.MaxHopRadius > 0 && hops > cfg.MaxHopRadius {
					continue
				}
				profit := (sell-buy)*holds - hops*cfg.TravelCostPerHop
				if profit < cfg.ProfitThreshold {
					continue
				}
				pairs = append(pairs, Pair{
					BuySector:  from.SectorID,
					SellSector: to.SectorID,
					Commodity:  c,
					BuyPrice:   buy,
					SellPrice:  sell,
					Hops:       hops,
					Profit:     profit,
				})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Profit > pairs[j].Profit })
	return pairs
}

func price(sk *game.SectorKnowledge, gs *game.GameState, c game.Commodity) int {
	return gs.Valuation(c, sk)
}

// pairLeg tracks progress through a lane's buy → travel → sell cycle.
type pairLeg int

const (
	legBuy pairLeg = iota
	legSell
)

// ProfitablePairs runs precomputed lanes, one leg per decision.
type ProfitablePairs struct {
	Cfg      PairsConfig
	Collapse *CollapseMonitor

	pairs  []Pair
	active int
	leg    pairLeg
}

// NewProfitablePairs returns the lane-running strategy. A nil monitor
// disables anti-collapse.
func NewProfitablePairs(cfg PairsConfig, mon *CollapseMonitor) *ProfitablePairs {
	return &ProfitablePairs{Cfg: cfg, Collapse: mon, active: -1}
}

func (p *ProfitablePairs) Name() string { return "profitable_pairs" }

func (p *ProfitablePairs) Decide(sc *Context) (Action, error) {
	if p.Collapse != nil {
		p.Collapse.Record(sc.Now, sc.State.NetWorthEstimate, sc.State.TurnsRemaining)
	}

	if p.active < 0 || p.active >= len(p.pairs) {
		p.pairs = ComputePairs(sc.Graph(), sc.State, sc.State.HoldsTotal, p.Cfg, sc.Now)
		if len(p.pairs) == 0 {
			return Action{}, ErrNoDecision
		}
		p.active, p.leg = 0, legBuy
	}
	pair := p.pairs[p.active]

	if p.Collapse != nil && p.Collapse.Downshifted() && !sc.State.CreditsVerified {
		// re-verify before trading small
		return Action{Kind: ActScan, Reason: "anti_collapse_verify"}, nil
	}

	qty := sc.State.HoldsTotal
	if p.Collapse != nil && p.Collapse.Downshifted() && qty > 1 {
		qty /= 2
	}

	switch p.leg {
	case legBuy:
		if sc.State.CurrentSector != pair.BuySector {
			return p.hopToward(sc, pair.BuySector)
		}
		return Action{
			Kind:      ActTrade,
			Side:      game.Buy,
			Commodity: pair.Commodity,
			Qty:       qty,
			Reason:    "pair_buy_leg",
		}, nil
	default:
		if sc.State.CurrentSector != pair.SellSector {
			return p.hopToward(sc, pair.SellSector)
		}
		return Action{
			Kind:      ActTrade,
			Side:      game.Sell,
			Commodity: pair.Commodity,
			Qty:       sc.State.HoldsUsed,
			Reason:    "pair_sell_leg",
		}, nil
	}
}

func (p *ProfitablePairs) hopToward(sc *Context, target int) (Action, error) {
	path, err := nav.FindPath(sc.Graph(), sc.State, sc.State.CurrentSector, target, sc.Now)
	if err != nil {
		p.rotate()
		return Action{}, ErrNoDecision
	}
	if len(path) == 0 {
		return Action{}, ErrNoDecision
	}
	return Action{Kind: ActWarp, Target: path[0], Reason: "pair_travel"}, nil
}

// OnOutcome advances the leg cycle: a successful buy starts the sell leg, a
// successful sell rotates to the next lane. Gate rejections rotate too; the
// lane's knowledge was wrong.
func (p *ProfitablePairs) OnOutcome(a Action, outcome string) {
	if a.Kind != ActTrade {
		return
	}
	switch outcome {
	case "success":
		if a.Side == game.Buy {
			p.leg = legSell
		} else {
			p.rotate()
		}
	case string(GateWrongSide), string(GateNoPort), string(GateNoInteraction):
		p.rotate()
	}
}

func (p *ProfitablePairs) rotate() {
	p.active++
	p.leg = legBuy
	if p.active >= len(p.pairs) {
		p.active = -1 // forces recompute on next decision
	}
}
