// Package strategy holds the pluggable decision policies. A strategy is a
// pure policy over (GameState, Knowledge, shared Knowledge): it proposes the
// next action and never touches the wire itself.
package strategy

import (
	"errors"
	"fmt"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/game"
)

// ActionKind enumerates what a strategy can ask the runtime to do.
type ActionKind string

const (
	ActWarp  ActionKind = "warp"
	ActTrade ActionKind = "trade"
	ActScan  ActionKind = "scan"
	ActWait  ActionKind = "wait"
	ActBank  ActionKind = "bank"
	ActQuit  ActionKind = "quit"
)

// BankOp selects the direction of a bank action.
type BankOp string

const (
	BankDeposit  BankOp = "deposit"
	BankWithdraw BankOp = "withdraw"
)

// Action is a single intent. Only the fields relevant to Kind are set; Reason
// is a short machine-readable tag carried into the record stream.
type Action struct {
	Kind      ActionKind     `json:"kind"`
	Target    int            `json:"target,omitempty"`
	Commodity game.Commodity `json:"commodity,omitempty"`
	Side      game.TradeSide `json:"side,omitempty"`
	Qty       int            `json:"qty,omitempty"`
	Amount    int            `json:"amount,omitempty"`
	BankOp    BankOp         `json:"bank_op,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

func (a Action) String() string {
	switch a.Kind {
	case ActWarp:
		return fmt.Sprintf("warp(%d)", a.Target)
	case ActTrade:
		return fmt.Sprintf("trade(%s %s %d)", a.Side, a.Commodity, a.Qty)
	case ActBank:
		return fmt.Sprintf("bank(%s %d)", a.BankOp, a.Amount)
	default:
		return string(a.Kind)
	}
}

// Context is the read-only world a strategy decides against. Shared may be
// nil when the bot runs solo.
type Context struct {
	State  *game.GameState
	Know   *game.Knowledge
	Shared *game.Knowledge
	Now    time.Time
}

// Local returns knowledge for the current sector, preferring the bot's own
// graph, falling back to the shared one.
func (c *Context) Local() *game.SectorKnowledge {
	if sk := c.Know.Peek(c.State.CurrentSector); sk != nil {
		return sk
	}
	if c.Shared != nil {
		return c.Shared.Peek(c.State.CurrentSector)
	}
	return nil
}

// Graph returns the richest graph available for pathfinding.
func (c *Context) Graph() *game.Knowledge {
	if c.Shared != nil {
		return c.Shared
	}
	return c.Know
}

// Strategy produces actions and learns from their outcomes.
type Strategy interface {
	Name() string
	Decide(sc *Context) (Action, error)
	OnOutcome(a Action, outcome string)
}

// ErrNoDecision means the strategy has nothing useful to do this turn; the
// runtime treats it as a wait.
var ErrNoDecision = errors.New("strategy: no decision")

// GateReason classifies why the trade gate rejected an action.
type GateReason string

const (
	GateOK            GateReason = ""
	GateWrongSide     GateReason = "wrong_side"
	GateNoPort        GateReason = "no_port"
	GateNoInteraction GateReason = "no_interaction"
)

// TradeGate structurally vets trade actions before they reach the wire. A
// rejection bumps a counter and asks the strategy for a replacement; it is
// not a runtime error.
type TradeGate struct {
	Rejections map[GateReason]int
}

func NewTradeGate() *TradeGate {
	return &TradeGate{Rejections: make(map[GateReason]int)}
}

// Check vets a trade against local port knowledge. Non-trade actions always
// pass. A buy needs the commodity on the port's buy mask, a sell on its
// sell mask.
func (g *TradeGate) Check(a Action, local *game.SectorKnowledge) GateReason {
	if a.Kind != ActTrade {
		return GateOK
	}
	reason := gateReason(a, local)
	if reason != GateOK {
		g.Rejections[reason]++
	}
	return reason
}

func gateReason(a Action, local *game.SectorKnowledge) GateReason {
	if local == nil || !local.HasPort {
		return GateNoPort
	}
	if local.PortClass == game.ClassSpecial {
		return GateNoInteraction
	}
	switch a.Side {
	case game.Buy:
		if !local.PortBuys[a.Commodity] {
			return GateWrongSide
		}
	case game.Sell:
		if !local.PortSells[a.Commodity] {
			return GateWrongSide
		}
	default:
		return GateNoInteraction
	}
	return GateOK
}
