package game

import (
	"testing"
	"time"
)

func TestPortClassMasks(t *testing.T) {
	cases := []struct {
		class      PortClass
		buys       []Commodity
		sells      []Commodity
	}{
		{ClassBBS, []Commodity{Fuel, Organics}, []Commodity{Equipment}},
		{ClassSSB, []Commodity{Equipment}, []Commodity{Fuel, Organics}},
		{ClassSSS, nil, []Commodity{Fuel, Organics, Equipment}},
		{ClassBBB, []Commodity{Fuel, Organics, Equipment}, nil},
	}
	for _, tc := range cases {
		for _, c := range Commodities {
			wantBuy := contains(tc.buys, c)
			wantSell := contains(tc.sells, c)
			if got := tc.class.Buys(c); got != wantBuy {
				t.Errorf("%s.Buys(%s) = %v, want %v", tc.class, c, got, wantBuy)
			}
			if got := tc.class.Sells(c); got != wantSell {
				t.Errorf("%s.Sells(%s) = %v, want %v", tc.class, c, got, wantSell)
			}
		}
	}
}

func contains(cs []Commodity, c Commodity) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}

func TestClassForNumber(t *testing.T) {
	pc, err := ClassForNumber(1)
	if err != nil || pc != ClassBBS {
		t.Errorf("class 1 = %s, %v", pc, err)
	}
	if pc, _ := ClassForNumber(9); pc != ClassSpecial {
		t.Errorf("class 9 = %s, want special", pc)
	}
	if _, err := ClassForNumber(42); err == nil {
		t.Error("expected error for class 42")
	}
}

func TestKnowledgeMonotonicity(t *testing.T) {
	k := NewKnowledge()

	first := NewSectorKnowledge(5)
	first.Warps[6] = true
	first.Warps[7] = true
	first.HasPort = true
	first.PortClass = ClassBBS
	first.applyClassMasks()
	if err := k.MarkScanned(5, first); err != nil {
		t.Fatalf("mark: %v", err)
	}

	// A later scan with fewer warps must not shrink anything.
	second := NewSectorKnowledge(5)
	second.Warps[8] = true
	if err := k.MarkScanned(5, second); err != nil {
		t.Fatalf("mark 2: %v", err)
	}

	sk := k.Peek(5)
	for _, w := range []int{6, 7, 8} {
		if !sk.Warps[w] {
			t.Errorf("warp %d missing after merge", w)
		}
	}
	if sk.PortClass != ClassBBS {
		t.Errorf("port class = %s, want BBS", sk.PortClass)
	}
	if !sk.PortBuys[Fuel] || !sk.PortSells[Equipment] {
		t.Error("class masks lost on merge")
	}
}

func TestMarkScannedRefusesEmpty(t *testing.T) {
	k := NewKnowledge()
	err := k.MarkScanned(9, NewSectorKnowledge(9))
	if err == nil {
		t.Fatal("empty mark accepted")
	}
	if k.Peek(9) != nil && !k.Peek(9).Empty() {
		t.Error("empty mark mutated knowledge")
	}
}

func TestExtractSectorTakesLast(t *testing.T) {
	text := "Sector  : 100 in The Federation\nold junk\nSector  : 245 in uncharted space\nCommand?"
	obs := Extract(text)
	if obs.Sector == nil || *obs.Sector != 245 {
		t.Fatalf("sector = %v, want 245", obs.Sector)
	}
}

func TestExtractWarps(t *testing.T) {
	obs := Extract("Warps to Sector(s) :  2 - (45) - 108")
	want := []int{2, 45, 108}
	if len(obs.Warps) != len(want) {
		t.Fatalf("warps = %v, want %v", obs.Warps, want)
	}
	for i := range want {
		if obs.Warps[i] != want[i] {
			t.Errorf("warp[%d] = %d, want %d", i, obs.Warps[i], want[i])
		}
	}
}

func TestExtractEmptyWarpList(t *testing.T) {
	obs := Extract("Warps to Sector(s) :  \nCommand?")
	if len(obs.Warps) != 0 {
		t.Errorf("warps = %v, want empty", obs.Warps)
	}
}

func TestExtractPortAndStatus(t *testing.T) {
	text := "Sector  : 867\n" +
		"Ports   : Stargate Alpha, Class 1 (BBS)\n" +
		"Credits : 2,512 Holds : 15/20\n" +
		"Turns left 1,200"
	obs := Extract(text)
	if !obs.HasPort || obs.PortClass != ClassBBS {
		t.Errorf("port = %v %s", obs.HasPort, obs.PortClass)
	}
	if obs.Credits == nil || *obs.Credits != 2512 {
		t.Errorf("credits = %v", obs.Credits)
	}
	if obs.HoldsUsed == nil || *obs.HoldsUsed != 15 || *obs.HoldsAll != 20 {
		t.Errorf("holds = %v/%v", obs.HoldsUsed, obs.HoldsAll)
	}
	if obs.Turns == nil || *obs.Turns != 1200 {
		t.Errorf("turns = %v", obs.Turns)
	}
}

func TestExtractDeath(t *testing.T) {
	obs := Extract("KABOOM! Your ship was destroyed by Capt. Kidd!")
	if !obs.Died {
		t.Error("death marker missed")
	}
}

func TestApplyUpdatesStateAndKnowledge(t *testing.T) {
	gs := NewGameState()
	k := NewKnowledge()
	text := "Sector  : 42\nWarps to Sector(s) :  1 - 7 - 99\nPorts   : Vulcan Forge, Class 4 (SSB)\nCredits : 300"
	if !gs.Apply(Extract(text), k) {
		t.Fatal("orientation not confirmed")
	}
	if gs.CurrentSector != 42 || !gs.SectorConfirmed {
		t.Errorf("sector = %d confirmed=%v", gs.CurrentSector, gs.SectorConfirmed)
	}
	if !gs.CreditsVerified || gs.Credits != 300 {
		t.Errorf("credits = %d verified=%v", gs.Credits, gs.CreditsVerified)
	}
	sk := k.Peek(42)
	if sk == nil || !sk.Warps[7] || sk.PortClass != ClassSSB {
		t.Fatalf("knowledge = %+v", sk)
	}
}

func TestApplyWithoutSectorMarksUnconfirmed(t *testing.T) {
	gs := NewGameState()
	gs.CurrentSector = 10
	gs.SectorConfirmed = true
	k := NewKnowledge()
	if gs.Apply(Extract("just some chatter"), k) {
		t.Fatal("confirmed without sector header")
	}
	if gs.SectorConfirmed {
		t.Error("stale orientation must clear the confirmed flag")
	}
	if gs.CurrentSector != 10 {
		t.Error("last-known sector should remain")
	}
}

func TestNetWorthValuationPrecedence(t *testing.T) {
	gs := NewGameState()
	gs.Credits = 100
	gs.Cargo[Fuel] = 10

	// floor only
	gs.RecomputeNetWorth(nil)
	if gs.NetWorthEstimate != 100+10*DefaultCommodityFloors[Fuel] {
		t.Errorf("floor net worth = %d", gs.NetWorthEstimate)
	}

	// hint beats floor
	gs.QuoteHints[Fuel] = 20
	gs.RecomputeNetWorth(nil)
	if gs.NetWorthEstimate != 100+10*20 {
		t.Errorf("hint net worth = %d", gs.NetWorthEstimate)
	}

	// observed quote beats hint
	sk := NewSectorKnowledge(1)
	sk.Quotes[Fuel] = Quote{Price: 55, Observed: time.Now().Unix()}
	gs.RecomputeNetWorth(sk)
	if gs.NetWorthEstimate != 100+10*55 {
		t.Errorf("observed net worth = %d", gs.NetWorthEstimate)
	}
}

func TestLoopDetector(t *testing.T) {
	gs := NewGameState()
	gs.Credits = 500
	gs.CurrentSector = 3

	ld := NewLoopDetector(0, 0)
	if ld.Observe("game.sector_command", gs) {
		t.Fatal("looping after one observation")
	}
	if ld.Observe("game.sector_command", gs) {
		t.Fatal("looping after two observations")
	}
	if !ld.Observe("game.sector_command", gs) {
		t.Fatal("no loop flagged after three identical observations")
	}
}

func TestLoopDetectorProgressClears(t *testing.T) {
	gs := NewGameState()
	gs.Credits = 500
	ld := NewLoopDetector(0, 0)

	ld.Observe("p", gs)
	gs.Credits = 600 // progress between repeats
	ld.Observe("p", gs)
	gs.Credits = 700
	if ld.Observe("p", gs) {
		t.Error("loop flagged despite credits delta")
	}
}

func TestLoopDetectorRingEviction(t *testing.T) {
	gs := NewGameState()
	ld := NewLoopDetector(5, 3)
	ld.Observe("x", gs)
	ld.Observe("x", gs)
	for i := 0; i < 5; i++ {
		gs.Credits++
		ld.Observe("other", gs)
	}
	gs.Credits++
	if ld.Observe("x", gs) {
		t.Error("stale entries outside the ring still counted")
	}
}
