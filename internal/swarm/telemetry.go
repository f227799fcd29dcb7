package swarm

import (
	"sync"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/bot"
)

// noTradePrompts is the prompts-without-a-trade threshold behind the
// no_trade_120p flag.
const noTradePrompts = 120

// sampleCap bounds the per-bot ring; at one status pull per 15s this holds
// several hours of history.
const sampleCap = 1024

// Sample is one status pull, reduced to the fields the time series need.
type Sample struct {
	At          time.Time `json:"at"`
	State       bot.State `json:"state"`
	TurnsUsed   int       `json:"turns_used"`
	NetWorth    int       `json:"net_worth"`
	Credits     int       `json:"credits"`
	Trades      int       `json:"trades"`
	Failures    int       `json:"failures"`
	PromptsSeen int       `json:"prompts_seen"`
	LastTradeAt time.Time `json:"last_trade_at,omitempty"`
}

// BotSeries is the computed time series for one bot over a window.
type BotSeries struct {
	BotID            string         `json:"bot_id"`
	Samples          int            `json:"samples"`
	NetWorthPerTurn  float64        `json:"net_worth_per_turn"`
	TradesPer100     float64        `json:"trades_per_100_turns"`
	TradeSuccessRate float64        `json:"trade_success_rate"`
	NoTrade120P      bool           `json:"no_trade_120p"`
	ROIConfidence    float64        `json:"roi_confidence"`
	FailureReasons   map[string]int `json:"failure_reasons,omitempty"`
	Attribution      map[string]int `json:"delta_attribution,omitempty"`
}

// Summary is the fleet view for one window.
type Summary struct {
	WindowMinutes int         `json:"window_minutes"`
	Bots          []BotSeries `json:"bots"`
	FleetNetWorth int         `json:"fleet_net_worth"`
	FleetTrades   int         `json:"fleet_trades"`
}

// Telemetry accumulates per-bot samples and derives the published series.
type Telemetry struct {
	mu      sync.Mutex
	series  map[string][]Sample
	reasons map[string]map[string]int
	now     func() time.Time
}

func NewTelemetry() *Telemetry {
	return &Telemetry{
		series:  make(map[string][]Sample),
		reasons: make(map[string]map[string]int),
		now:     time.Now,
	}
}

// Record folds one status pull into the ring.
func (t *Telemetry) Record(st bot.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Sample{
		At:          t.now(),
		State:       st.State,
		TurnsUsed:   st.TurnsUsed,
		NetWorth:    st.NetWorth,
		Credits:     st.Credits,
		Trades:      st.Trades,
		Failures:    st.TradeFailures,
		PromptsSeen: st.PromptsSeen,
		LastTradeAt: st.LastTradeAt,
	}
	ring := append(t.series[st.ID], s)
	if len(ring) > sampleCap {
		ring = ring[len(ring)-sampleCap:]
	}
	t.series[st.ID] = ring

	if len(st.TradeFailureReasons) > 0 {
		t.reasons[st.ID] = st.TradeFailureReasons
	}
}

// Clear drops all history; the swarm-clear control op calls this.
func (t *Telemetry) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.series = make(map[string][]Sample)
	t.reasons = make(map[string]map[string]int)
}

// Summarize computes the published series over the trailing window.
func (t *Telemetry) Summarize(window time.Duration) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-window)
	out := Summary{WindowMinutes: int(window.Minutes())}

	for id, ring := range t.series {
		win := trailing(ring, cutoff)
		if len(win) == 0 {
			continue
		}
		first, last := win[0], win[len(win)-1]
		bs := BotSeries{
			BotID:          id,
			Samples:        len(win),
			FailureReasons: t.reasons[id],
			Attribution:    attribute(win),
		}

		turns := last.TurnsUsed - first.TurnsUsed
		worth := last.NetWorth - first.NetWorth
		trades := last.Trades - first.Trades
		if turns > 0 {
			bs.NetWorthPerTurn = float64(worth) / float64(turns)
			bs.TradesPer100 = float64(trades) * 100 / float64(turns)
		}
		if attempts := trades + (last.Failures - first.Failures); attempts > 0 {
			bs.TradeSuccessRate = float64(trades) / float64(attempts)
		}
		bs.NoTrade120P = noTradeStalled(win)
		bs.ROIConfidence = roiConfidence(bs.Attribution)

		out.Bots = append(out.Bots, bs)
		out.FleetNetWorth += last.NetWorth
		out.FleetTrades += last.Trades
	}
	return out
}

func trailing(ring []Sample, cutoff time.Time) []Sample {
	for i, s := range ring {
		if !s.At.Before(cutoff) {
			return ring[i:]
		}
	}
	return nil
}

// noTradeStalled reports 120 prompts without a trade: prompts seen since the
// last sample whose trade counter moved, or since the window opened if none
// did.
func noTradeStalled(win []Sample) bool {
	last := win[len(win)-1]
	base := win[0]
	for i := len(win) - 1; i > 0; i-- {
		if win[i].Trades > win[i-1].Trades {
			base = win[i]
			break
		}
	}
	return last.PromptsSeen-base.PromptsSeen >= noTradePrompts
}

// attribute classifies each inter-sample net-worth delta: trades moved in the
// interval means trade, a recovering bot means combat attrition, an unchanged
// net worth attributes nothing, and everything else is unknown.
func attribute(win []Sample) map[string]int {
	attr := make(map[string]int)
	for i := 1; i < len(win); i++ {
		prev, cur := win[i-1], win[i]
		delta := cur.NetWorth - prev.NetWorth
		switch {
		case delta == 0:
		case cur.Trades > prev.Trades:
			attr["trade"]++
		case cur.State == bot.StateRecovering && delta < 0:
			attr["combat"]++
		case delta > 0 && cur.Credits > prev.Credits && cur.Trades == prev.Trades:
			attr["bank"]++
		default:
			attr["unknown"]++
		}
	}
	return attr
}

// roiConfidence is the share of attributed net-worth movement explained by
// observed trades.
func roiConfidence(attr map[string]int) float64 {
	total := 0
	for _, n := range attr {
		total += n
	}
	if total == 0 {
		return 0
	}
	return float64(attr["trade"]) / float64(total)
}
