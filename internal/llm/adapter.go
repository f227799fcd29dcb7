package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/game"
	"github.com/ehrlich-b/tradewarden/internal/logger"
	"github.com/ehrlich-b/tradewarden/internal/record"
	"github.com/ehrlich-b/tradewarden/internal/strategy"
)

// ContextMode selects the prompt size profile.
type ContextMode string

const (
	ModeSummary ContextMode = "summary"
	ModeFull    ContextMode = "full"
)

// Approximate character budgets, four chars per token.
const (
	summaryBudget = 1600 * 4
	fullBudget    = 2500 * 4
)

// AdapterConfig tunes the prompt builder.
type AdapterConfig struct {
	Mode            ContextMode
	SectorRadius    int
	IncludeHistory  bool
	MaxHistoryItems int
}

// DefaultAdapterConfig matches a mid-size local model.
var DefaultAdapterConfig = AdapterConfig{
	Mode:            ModeSummary,
	SectorRadius:    2,
	IncludeHistory:  true,
	MaxHistoryItems: 8,
}

// Adapter turns game state into prompts and model replies into validated
// actions. It satisfies strategy.Oracle.
type Adapter struct {
	Client *Client
	Cfg    AdapterConfig
	Rec    *record.Recorder
}

func NewAdapter(client *Client, cfg AdapterConfig, rec *record.Recorder) *Adapter {
	if cfg.SectorRadius <= 0 {
		cfg.SectorRadius = DefaultAdapterConfig.SectorRadius
	}
	if cfg.MaxHistoryItems <= 0 {
		cfg.MaxHistoryItems = DefaultAdapterConfig.MaxHistoryItems
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSummary
	}
	return &Adapter{Client: client, Cfg: cfg, Rec: rec}
}

// Decide asks the model for the next action.
func (ad *Adapter) Decide(sc *strategy.Context) (strategy.Action, error) {
	prompt := ad.BuildPrompt(sc)
	if ad.Rec != nil {
		ad.Rec.Emit(record.KindLLMRequest, map[string]any{
			"mode": string(ad.Cfg.Mode), "chars": len(prompt),
		})
	}

	start := time.Now()
	reply, err := ad.Client.Complete(context.Background(), prompt)
	if err != nil {
		if ad.Rec != nil {
			ad.Rec.Error("llm", err.Error())
		}
		return strategy.Action{}, err
	}
	if ad.Rec != nil {
		ad.Rec.Emit(record.KindLLMResponse, map[string]any{
			"latency_ms": time.Since(start).Milliseconds(), "chars": len(reply),
		})
	}

	a, err := ParseAction(reply)
	if err != nil {
		return strategy.Action{}, err
	}
	if err := ValidateAction(a, sc); err != nil {
		return strategy.Action{}, err
	}
	a.Reason = "llm"
	return a, nil
}

// BuildPrompt renders the decision context within the mode's budget.
func (ad *Adapter) BuildPrompt(sc *strategy.Context) string {
	gs := sc.State
	var b strings.Builder

	b.WriteString("You pilot a trading ship in Trade Wars 2002. Reply with ONE action as JSON:\n")
	b.WriteString(`{"action":"warp","target":N} | {"action":"trade","side":"buy|sell","commodity":"fuel|organics|equipment","qty":N} | {"action":"scan"} | {"action":"wait"} | {"action":"bank","op":"deposit|withdraw","amount":N} | {"action":"quit"}` + "\n\n")

	fmt.Fprintf(&b, "Sector: %d (confirmed=%v)\nCredits: %d\nHolds: %d/%d\nTurns remaining: %d\n",
		gs.CurrentSector, gs.SectorConfirmed, gs.Credits, gs.HoldsUsed, gs.HoldsTotal, gs.TurnsRemaining)
	for _, c := range game.Commodities {
		if qty := gs.Cargo[c]; qty > 0 {
			fmt.Fprintf(&b, "Cargo %s: %d\n", c, qty)
		}
	}

	b.WriteString("\nNearby sectors:\n")
	for _, id := range ad.nearby(sc) {
		sk := sc.Graph().Peek(id)
		if sk == nil {
			continue
		}
		fmt.Fprintf(&b, "  %d: warps=%v", id, sk.WarpList())
		if sk.HasPort {
			fmt.Fprintf(&b, " port=%s", sk.PortClass)
			for _, c := range game.Commodities {
				if q, ok := sk.Quotes[c]; ok {
					fmt.Fprintf(&b, " %s@%d", c, q.Price)
				}
			}
		}
		b.WriteByte('\n')
	}

	if ad.Cfg.IncludeHistory && len(gs.RecentActions) > 0 {
		b.WriteString("\nRecent actions:\n")
		hist := gs.RecentActions
		if len(hist) > ad.Cfg.MaxHistoryItems {
			hist = hist[len(hist)-ad.Cfg.MaxHistoryItems:]
		}
		for _, h := range hist {
			fmt.Fprintf(&b, "  %s -> %s\n", h.Action, h.Outcome)
		}
	}

	out := b.String()
	budget := summaryBudget
	if ad.Cfg.Mode == ModeFull {
		budget = fullBudget
	}
	if len(out) > budget {
		out = out[:budget]
	}
	return out
}

// nearby returns sector ids within the configured radius of the current
// sector, breadth-first, current sector included.
func (ad *Adapter) nearby(sc *strategy.Context) []int {
	graph := sc.Graph()
	seen := map[int]bool{sc.State.CurrentSector: true}
	order := []int{sc.State.CurrentSector}
	frontier := []int{sc.State.CurrentSector}
	for depth := 0; depth < ad.Cfg.SectorRadius; depth++ {
		var next []int
		for _, id := range frontier {
			sk := graph.Peek(id)
			if sk == nil {
				continue
			}
			for _, w := range sk.WarpList() {
				if !seen[w] {
					seen[w] = true
					order = append(order, w)
					next = append(next, w)
				}
			}
		}
		frontier = next
	}
	return order
}

type wireAction struct {
	Action    string `json:"action"`
	Target    int    `json:"target"`
	Side      string `json:"side"`
	Commodity string `json:"commodity"`
	Qty       int    `json:"qty"`
	Op        string `json:"op"`
	Amount    int    `json:"amount"`
}

var (
	jsonBlockRe = regexp.MustCompile(`\{[^{}]*\}`)
	warpRe      = regexp.MustCompile(`(?i)\bwarp\b[^\d]*(\d+)`)
	tradeRe     = regexp.MustCompile(`(?i)\b(buy|sell)\b.*?\b(fuel|organics|equipment)\b\D*(\d+)?`)
	bankRe      = regexp.MustCompile(`(?i)\b(deposit|withdraw)\b[^\d]*(\d+)`)
	scanRe      = regexp.MustCompile(`(?i)\bscan\b`)
	waitRe      = regexp.MustCompile(`(?i)\bwait\b`)
	quitRe      = regexp.MustCompile(`(?i)\bquit\b`)
)

// ParseAction reads a model reply, JSON first, plain text as fallback. An
// unusable reply is an invalid_response error.
func ParseAction(reply string) (strategy.Action, error) {
	for _, block := range jsonBlockRe.FindAllString(reply, -1) {
		var w wireAction
		if err := json.Unmarshal([]byte(block), &w); err != nil || w.Action == "" {
			continue
		}
		return fromWire(w)
	}

	if m := warpRe.FindStringSubmatch(reply); m != nil {
		n, _ := strconv.Atoi(m[1])
		return strategy.Action{Kind: strategy.ActWarp, Target: n}, nil
	}
	if m := tradeRe.FindStringSubmatch(reply); m != nil {
		qty := 0
		if m[3] != "" {
			qty, _ = strconv.Atoi(m[3])
		}
		return strategy.Action{
			Kind:      strategy.ActTrade,
			Side:      game.TradeSide(strings.ToLower(m[1])),
			Commodity: game.Commodity(strings.ToLower(m[2])),
			Qty:       qty,
		}, nil
	}
	if m := bankRe.FindStringSubmatch(reply); m != nil {
		n, _ := strconv.Atoi(m[2])
		return strategy.Action{Kind: strategy.ActBank, BankOp: strategy.BankOp(strings.ToLower(m[1])), Amount: n}, nil
	}
	switch {
	case scanRe.MatchString(reply):
		return strategy.Action{Kind: strategy.ActScan}, nil
	case waitRe.MatchString(reply):
		return strategy.Action{Kind: strategy.ActWait}, nil
	case quitRe.MatchString(reply):
		return strategy.Action{Kind: strategy.ActQuit}, nil
	}
	logger.Debug("llm reply unparseable", "reply", truncate(reply, 120))
	return strategy.Action{}, fmt.Errorf("%w: no action in reply", ErrInvalidResponse)
}

func fromWire(w wireAction) (strategy.Action, error) {
	switch w.Action {
	case "warp":
		return strategy.Action{Kind: strategy.ActWarp, Target: w.Target}, nil
	case "trade":
		return strategy.Action{
			Kind:      strategy.ActTrade,
			Side:      game.TradeSide(w.Side),
			Commodity: game.Commodity(w.Commodity),
			Qty:       w.Qty,
		}, nil
	case "scan":
		return strategy.Action{Kind: strategy.ActScan}, nil
	case "wait":
		return strategy.Action{Kind: strategy.ActWait}, nil
	case "bank":
		return strategy.Action{Kind: strategy.ActBank, BankOp: strategy.BankOp(w.Op), Amount: w.Amount}, nil
	case "quit":
		return strategy.Action{Kind: strategy.ActQuit}, nil
	default:
		return strategy.Action{}, fmt.Errorf("%w: unknown action %q", ErrInvalidResponse, w.Action)
	}
}

// ValidateAction checks a parsed action against current state. A violation
// counts as a parser failure, not an execution failure.
func ValidateAction(a strategy.Action, sc *strategy.Context) error {
	switch a.Kind {
	case strategy.ActWarp:
		sk := sc.Graph().Peek(sc.State.CurrentSector)
		if sk == nil || !sk.Warps[a.Target] {
			return fmt.Errorf("%w: warp target %d not adjacent to %d",
				ErrInvalidResponse, a.Target, sc.State.CurrentSector)
		}
	case strategy.ActTrade:
		if a.Side != game.Buy && a.Side != game.Sell {
			return fmt.Errorf("%w: bad trade side %q", ErrInvalidResponse, a.Side)
		}
		switch a.Commodity {
		case game.Fuel, game.Organics, game.Equipment:
		default:
			return fmt.Errorf("%w: bad commodity %q", ErrInvalidResponse, a.Commodity)
		}
		if a.Qty <= 0 || (sc.State.HoldsTotal > 0 && a.Qty > sc.State.HoldsTotal) {
			return fmt.Errorf("%w: bad trade qty %d", ErrInvalidResponse, a.Qty)
		}
	case strategy.ActBank:
		if a.Amount <= 0 || (a.BankOp != strategy.BankDeposit && a.BankOp != strategy.BankWithdraw) {
			return fmt.Errorf("%w: bad bank action", ErrInvalidResponse)
		}
	case strategy.ActScan, strategy.ActWait, strategy.ActQuit:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidResponse, a.Kind)
	}
	return nil
}

// Goals the intervention mode may select.
var InterventionGoals = []string{
	"switch_to_exploration",
	"switch_to_trading",
	"return_to_safe_sector",
	"bank_profits",
}

// Intervene asks the model for a higher-level goal instead of a single
// action, typically after disorientation or by operator request.
func (ad *Adapter) Intervene(sc *strategy.Context, reason string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "The bot needs a new high-level goal (reason: %s).\n", reason)
	fmt.Fprintf(&b, "State: sector=%d credits=%d holds=%d/%d turns=%d\n",
		sc.State.CurrentSector, sc.State.Credits, sc.State.HoldsUsed, sc.State.HoldsTotal, sc.State.TurnsRemaining)
	b.WriteString("Answer with exactly one of: " + strings.Join(InterventionGoals, ", ") + "\n")

	reply, err := ad.Client.Complete(context.Background(), b.String())
	if err != nil {
		return "", err
	}
	for _, g := range InterventionGoals {
		if strings.Contains(reply, g) {
			if ad.Rec != nil {
				ad.Rec.Emit(record.KindLLMInterven, map[string]any{"reason": reason, "goal": g})
			}
			return g, nil
		}
	}
	return "", fmt.Errorf("%w: no known goal in reply", ErrInvalidResponse)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
