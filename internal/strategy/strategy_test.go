package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/game"
)

// twoPortUniverse builds the classic round-trip setup: sector 5 (BBS, fuel
// buyable at 15) linked to sector 12 (SSB, fuel sellable at 55).
func twoPortUniverse(t *testing.T) *game.Knowledge {
	t.Helper()
	k := game.NewKnowledge()

	a := game.NewSectorKnowledge(5)
	a.Warps[12] = true
	a.HasPort = true
	if err := a.Merge(&game.SectorKnowledge{SectorID: 5, PortClass: game.ClassBBS}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	a.Quotes[game.Fuel] = game.Quote{Price: 15, Observed: time.Now().Unix()}
	k.Sectors[5] = a

	b := game.NewSectorKnowledge(12)
	b.Warps[5] = true
	b.HasPort = true
	if err := b.Merge(&game.SectorKnowledge{SectorID: 12, PortClass: game.ClassSSB}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	b.Quotes[game.Fuel] = game.Quote{Price: 55, Observed: time.Now().Unix()}
	k.Sectors[12] = b

	return k
}

func ctxAt(k *game.Knowledge, sector, holds int) *Context {
	gs := game.NewGameState()
	gs.CurrentSector = sector
	gs.SectorConfirmed = true
	gs.HoldsTotal = holds
	gs.Credits = 1000
	return &Context{State: gs, Know: k, Now: time.Now()}
}

func TestComputePairsFindsFuelLane(t *testing.T) {
	k := twoPortUniverse(t)
	sc := ctxAt(k, 5, 20)
	pairs := ComputePairs(k, sc.State, 20, DefaultPairsConfig, sc.Now)
	if len(pairs) == 0 {
		t.Fatal("no pairs found")
	}
	for _, pr := range pairs {
		if pr.Commodity == game.Fuel {
			if pr.BuySector != 5 || pr.SellSector != 12 {
				t.Errorf("fuel lane = %d -> %d, want 5 -> 12", pr.BuySector, pr.SellSector)
			}
			if pr.BuyPrice != 15 || pr.SellPrice != 55 {
				t.Errorf("fuel prices = %d/%d, want 15/55", pr.BuyPrice, pr.SellPrice)
			}
			return
		}
	}
	t.Error("fuel lane missing")
}

func TestComputePairsProfitArithmetic(t *testing.T) {
	k := twoPortUniverse(t)
	sc := ctxAt(k, 5, 20)
	cfg := PairsConfig{ProfitThreshold: 1, MaxHopRadius: 4, TravelCostPerHop: 5}
	pairs := ComputePairs(k, sc.State, 20, cfg, sc.Now)
	for _, p := range pairs {
		if p.Commodity != game.Fuel {
			continue
		}
		want := (55-15)*20 - 1*5
		if p.Profit != want {
			t.Errorf("profit = %d, want %d", p.Profit, want)
		}
		return
	}
	t.Fatal("fuel lane missing")
}

func TestProfitablePairsLegCycle(t *testing.T) {
	k := twoPortUniverse(t)
	cfg := PairsConfig{ProfitThreshold: 1, MaxHopRadius: 4, TravelCostPerHop: 0}
	strat := NewProfitablePairs(cfg, nil)

	// the fuel lane buys at 5; starting there the first action is the buy
	sc := ctxAt(k, 5, 20)
	a, err := strat.Decide(sc)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if a.Kind != ActTrade || a.Side != game.Buy || a.Qty != 20 {
		t.Fatalf("first action = %+v, want buy 20", a)
	}

	strat.OnOutcome(a, "success")
	sc.State.HoldsUsed = 20
	sc.State.Cargo[a.Commodity] = 20

	// sell leg: still at 12, must warp toward the sell port
	a2, err := strat.Decide(sc)
	if err != nil {
		t.Fatalf("decide 2: %v", err)
	}
	if a2.Kind != ActWarp {
		t.Fatalf("second action = %+v, want warp", a2)
	}

	if a2.Target != 12 {
		t.Fatalf("warp target = %d, want 12", a2.Target)
	}
	sc.State.CurrentSector = a2.Target
	a3, err := strat.Decide(sc)
	if err != nil {
		t.Fatalf("decide 3: %v", err)
	}
	if a3.Kind != ActTrade || a3.Side != game.Sell || a3.Qty != 20 {
		t.Fatalf("third action = %+v, want sell 20", a3)
	}
}

func TestProfitablePairsNoLanes(t *testing.T) {
	k := game.NewKnowledge()
	k.Sector(1)
	strat := NewProfitablePairs(DefaultPairsConfig, nil)
	if _, err := strat.Decide(ctxAt(k, 1, 20)); !errors.Is(err, ErrNoDecision) {
		t.Fatalf("err = %v, want ErrNoDecision", err)
	}
}

func TestTradeGateWrongSide(t *testing.T) {
	sk := game.NewSectorKnowledge(5)
	sk.HasPort = true
	sk.Merge(&game.SectorKnowledge{SectorID: 5, PortClass: game.ClassBBS})

	g := NewTradeGate()
	// fuel is buyable at a BBS port; selling fuel there is the wrong side
	a := Action{Kind: ActTrade, Side: game.Sell, Commodity: game.Fuel, Qty: 10}
	if r := g.Check(a, sk); r != GateWrongSide {
		t.Fatalf("reason = %q, want wrong_side", r)
	}
	if g.Rejections[GateWrongSide] != 1 {
		t.Errorf("counter = %d, want 1", g.Rejections[GateWrongSide])
	}

	// the compatible side passes
	ok := Action{Kind: ActTrade, Side: game.Buy, Commodity: game.Fuel, Qty: 10}
	if r := g.Check(ok, sk); r != GateOK {
		t.Errorf("reason = %q, want ok", r)
	}
}

func TestTradeGateNoPort(t *testing.T) {
	g := NewTradeGate()
	a := Action{Kind: ActTrade, Side: game.Sell, Commodity: game.Fuel, Qty: 1}
	if r := g.Check(a, nil); r != GateNoPort {
		t.Fatalf("reason = %q, want no_port", r)
	}
	bare := game.NewSectorKnowledge(3)
	if r := g.Check(a, bare); r != GateNoPort {
		t.Fatalf("reason = %q, want no_port", r)
	}
}

func TestTradeGateSpecialPort(t *testing.T) {
	sk := game.NewSectorKnowledge(1)
	sk.HasPort = true
	sk.PortClass = game.ClassSpecial
	g := NewTradeGate()
	a := Action{Kind: ActTrade, Side: game.Sell, Commodity: game.Fuel, Qty: 1}
	if r := g.Check(a, sk); r != GateNoInteraction {
		t.Fatalf("reason = %q, want no_interaction", r)
	}
}

func TestTradeGatePassesNonTrade(t *testing.T) {
	g := NewTradeGate()
	if r := g.Check(Action{Kind: ActWarp, Target: 2}, nil); r != GateOK {
		t.Fatalf("warp gated: %q", r)
	}
}

func TestCollapseMonitorDownshift(t *testing.T) {
	m := NewCollapseMonitor(5.0, 0)
	base := time.Now()
	m.Record(base, 1000, 100)
	m.Record(base.Add(time.Minute), 1010, 90) // 10 credits over 10 turns = 1.0/turn
	if !m.Downshifted() {
		t.Fatal("rate 1.0 under floor 5.0 should downshift")
	}

	m.Reset()
	m.Record(base, 1000, 100)
	m.Record(base.Add(time.Minute), 2000, 90) // 100/turn
	if m.Downshifted() {
		t.Fatal("rate 100 over floor 5.0 should not downshift")
	}
}

func TestCollapseMonitorWindowEviction(t *testing.T) {
	m := NewCollapseMonitor(5.0, 10*time.Minute)
	base := time.Now()
	m.Record(base.Add(-time.Hour), 0, 200) // falls out of the window
	m.Record(base, 1000, 100)
	m.Record(base.Add(time.Second), 1001, 99)
	rate, ok := m.Rate()
	if !ok {
		t.Fatal("rate unknown")
	}
	if rate != 1.0 {
		t.Errorf("rate = %v, want 1.0 (stale sample must be evicted)", rate)
	}
}

func TestOpportunisticSellsCargo(t *testing.T) {
	k := twoPortUniverse(t)
	sc := ctxAt(k, 12, 20) // SSB: fuel sellable here
	sc.State.Cargo[game.Fuel] = 12
	sc.State.HoldsUsed = 12

	strat := NewOpportunistic(nil)
	a, err := strat.Decide(sc)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if a.Kind != ActTrade || a.Side != game.Sell || a.Commodity != game.Fuel || a.Qty != 12 {
		t.Fatalf("action = %+v, want sell fuel 12", a)
	}
}

func TestOpportunisticExploresWithoutTrade(t *testing.T) {
	k := game.NewKnowledge()
	k.Sector(1).Warps[2] = true
	k.Sector(1).Warps[3] = true
	k.Sector(2)
	k.Sector(3)
	k.MarkVisited(2)

	strat := NewOpportunistic(nil)
	a, err := strat.Decide(ctxAt(k, 1, 20))
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if a.Kind != ActWarp || a.Target != 3 {
		t.Fatalf("action = %+v, want warp 3 (least visited)", a)
	}
}

type cannedOracle struct {
	action Action
	err    error
	calls  int
}

func (o *cannedOracle) Decide(*Context) (Action, error) {
	o.calls++
	return o.action, o.err
}

type fixedStrategy struct{ a Action }

func (f *fixedStrategy) Name() string                  { return "fixed" }
func (f *fixedStrategy) Decide(*Context) (Action, error) { return f.a, nil }
func (f *fixedStrategy) OnOutcome(Action, string)      {}

func TestAIFallbackDiscipline(t *testing.T) {
	oracle := &cannedOracle{err: errors.New("model timeout")}
	fallback := &fixedStrategy{a: Action{Kind: ActWait, Reason: "fallback"}}
	ai := NewAI(oracle, fallback, 3, 4)

	k := game.NewKnowledge()
	sc := ctxAt(k, 1, 20)

	// three failures trip the fallback window
	for i := 0; i < 3; i++ {
		a, err := ai.Decide(sc)
		if err != nil {
			t.Fatalf("decide %d: %v", i, err)
		}
		if a.Reason != "fallback" {
			t.Fatalf("decide %d action = %+v, want fallback", i, a)
		}
	}
	if !ai.InFallback() {
		t.Fatal("fallback window not open after threshold failures")
	}

	oracleCallsBefore := oracle.calls
	for i := 0; i < 4; i++ {
		ai.Decide(sc)
	}
	if oracle.calls != oracleCallsBefore {
		t.Errorf("oracle consulted during fallback window: %d extra calls", oracle.calls-oracleCallsBefore)
	}

	// window elapsed; oracle recovers
	oracle.err = nil
	oracle.action = Action{Kind: ActScan, Reason: "oracle"}
	a, err := ai.Decide(sc)
	if err != nil {
		t.Fatalf("decide after window: %v", err)
	}
	if a.Reason != "oracle" {
		t.Fatalf("action = %+v, want oracle decision after window", a)
	}
}

func TestRouteRunner(t *testing.T) {
	route := &SliceRoute{Actions: []Action{
		{Kind: ActWarp, Target: 2},
		{Kind: ActTrade, Side: game.Buy, Commodity: game.Fuel, Qty: 5},
	}}
	r := NewRouteRunner(route, false)
	sc := ctxAt(game.NewKnowledge(), 1, 20)

	a1, _ := r.Decide(sc)
	if a1.Kind != ActWarp || a1.Target != 2 {
		t.Fatalf("step 1 = %+v", a1)
	}
	a2, _ := r.Decide(sc)
	if a2.Kind != ActTrade {
		t.Fatalf("step 2 = %+v", a2)
	}
	a3, _ := r.Decide(sc)
	if a3.Kind != ActQuit {
		t.Fatalf("exhausted route = %+v, want quit", a3)
	}
}

func TestRouteRunnerLoops(t *testing.T) {
	route := &SliceRoute{Actions: []Action{{Kind: ActScan}}}
	r := NewRouteRunner(route, true)
	sc := ctxAt(game.NewKnowledge(), 1, 20)
	for i := 0; i < 3; i++ {
		a, err := r.Decide(sc)
		if err != nil || a.Kind != ActScan {
			t.Fatalf("loop step %d = %+v, %v", i, a, err)
		}
	}
}
