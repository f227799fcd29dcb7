package strategy

import (
	"github.com/ehrlich-b/tradewarden/internal/game"
	"github.com/ehrlich-b/tradewarden/internal/nav"
)

// Opportunistic trades wherever the marginal expected profit is positive and
// otherwise drifts toward the least-visited neighbor.
type Opportunistic struct {
	Collapse *CollapseMonitor
}

func NewOpportunistic(mon *CollapseMonitor) *Opportunistic {
	return &Opportunistic{Collapse: mon}
}

func (o *Opportunistic) Name() string { return "opportunistic" }

func (o *Opportunistic) Decide(sc *Context) (Action, error) {
	if o.Collapse != nil {
		o.Collapse.Record(sc.Now, sc.State.NetWorthEstimate, sc.State.TurnsRemaining)
	}
	local := sc.Local()

	if local != nil && local.HasPort && local.PortClass != game.ClassSpecial {
		if a, ok := o.bestTrade(sc, local); ok {
			return a, nil
		}
	}

	if w, ok := nav.LeastVisitedWarp(sc.Graph(), sc.State.CurrentSector); ok {
		return Action{Kind: ActWarp, Target: w, Reason: "explore_least_visited"}, nil
	}
	if local == nil || !local.LastScanned.IsZero() {
		return Action{}, ErrNoDecision
	}
	return Action{Kind: ActScan, Reason: "unscanned_sector"}, nil
}

// bestTrade prefers dumping cargo sellable here, then filling holds with a
// buyable commodity, but only when somewhere else is known to take it at a
// higher price.
func (o *Opportunistic) bestTrade(sc *Context, local *game.SectorKnowledge) (Action, bool) {
	if o.Collapse != nil && o.Collapse.Downshifted() && !sc.State.CreditsVerified {
		return Action{Kind: ActScan, Reason: "anti_collapse_verify"}, true
	}

	for _, c := range game.Commodities {
		if sc.State.Cargo[c] > 0 && local.PortSells[c] {
			return Action{
				Kind:      ActTrade,
				Side:      game.Sell,
				Commodity: c,
				Qty:       sc.State.Cargo[c],
				Reason:    "opportunistic_sell",
			}, true
		}
	}

	free := sc.State.HoldsTotal - sc.State.HoldsUsed
	if free <= 0 {
		return Action{}, false
	}
	if o.Collapse != nil && o.Collapse.Downshifted() && free > 1 {
		free /= 2
	}
	for _, c := range game.Commodities {
		if !local.PortBuys[c] {
			continue
		}
		buyAt := sc.State.Valuation(c, local)
		if buyAt <= 0 || !takerExists(sc, local.SectorID, c, buyAt) {
			continue
		}
		return Action{
			Kind:      ActTrade,
			Side:      game.Buy,
			Commodity: c,
			Qty:       free,
			Reason:    "opportunistic_buy",
		}, true
	}
	return Action{}, false
}

func takerExists(sc *Context, except int, c game.Commodity, over int) bool {
	for id, sk := range sc.Graph().Sectors {
		if id == except || !sk.PortSells[c] {
			continue
		}
		if sc.State.Valuation(c, sk) > over {
			return true
		}
	}
	return false
}

func (o *Opportunistic) OnOutcome(Action, string) {}
