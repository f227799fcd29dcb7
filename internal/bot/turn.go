package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/game"
	"github.com/ehrlich-b/tradewarden/internal/logger"
	"github.com/ehrlich-b/tradewarden/internal/prompt"
	"github.com/ehrlich-b/tradewarden/internal/record"
	"github.com/ehrlich-b/tradewarden/internal/strategy"
)

// turnCycle runs orient -> decide -> gate -> execute until a lifecycle event
// ends the session.
func (b *Bot) turnCycle(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := b.orch.WaitAndRespond(b.cfg.TerminalPromptID, b.cfg.ReadTimeout)
		if err != nil {
			if recErr := b.recover(ctx); recErr != nil {
				return recErr
			}
			continue
		}
		b.countPrompt()

		obs := b.observe(b.cfg.TerminalPromptID, res.Snap.Text())
		if obs.Died {
			b.rec.Emit(record.KindStatus, map[string]any{"event": "died", "sector": b.gs.CurrentSector})
			return ErrCharacterDied
		}

		if done := b.checkBudgets(); done != nil {
			return done
		}

		if b.loop.Observe(b.cfg.TerminalPromptID, b.gs) {
			b.rec.Error("loop_detected", "prompt ring repeated without progress")
			if recErr := b.recover(ctx); recErr != nil {
				return recErr
			}
			continue
		}

		action, err := b.decide()
		if err != nil {
			if errors.Is(err, strategy.ErrNoDecision) {
				action = strategy.Action{Kind: strategy.ActWait, Reason: "no_decision"}
			} else {
				// decision errors downgrade to a wait rather than kill the session
				logger.Warn("decision failed", "bot", b.cfg.ID, "err", err)
				action = strategy.Action{Kind: strategy.ActWait, Reason: "decision_error"}
			}
		}

		outcome := b.execute(ctx, action)
		b.gs.RecordAction(action.String(), outcome)
		b.strat.OnOutcome(action, outcome)
		b.rec.Emit(record.KindAction, map[string]any{
			"action": action.String(), "kind": string(action.Kind),
			"reason": action.Reason, "result": outcome,
		})

		b.mu.Lock()
		b.turnsUsed++
		b.mu.Unlock()
	}
}

// decide asks the strategy for an action and vets trades through the gate.
// A gate rejection asks once for a replacement; a second rejection waits the
// turn out.
func (b *Bot) decide() (strategy.Action, error) {
	sc := b.strategyContext()
	for attempt := 0; attempt < 2; attempt++ {
		action, err := b.strat.Decide(sc)
		if err != nil {
			return strategy.Action{}, err
		}
		reason := b.gate.Check(action, sc.Local())
		if reason == strategy.GateOK {
			return action, nil
		}
		b.rec.Emit(record.KindAction, map[string]any{
			"action": action.String(), "result": "rejected",
			"structural_failure": string(reason),
		})
		b.strat.OnOutcome(action, string(reason))
	}
	return strategy.Action{Kind: strategy.ActWait, Reason: "gated"}, nil
}

func (b *Bot) strategyContext() *strategy.Context {
	return &strategy.Context{
		State:  b.gs,
		Know:   b.know,
		Shared: b.shared,
		Now:    time.Now(),
	}
}

// observe extracts semantics from a full screen, folds them into state and
// knowledge, and emits the orientation event.
func (b *Bot) observe(promptID, text string) *game.Observation {
	obs := game.Extract(text)
	b.gs.Apply(obs, b.know)
	if b.shared != nil && obs.Sector != nil {
		if sk := b.know.Peek(*obs.Sector); sk != nil {
			b.shared.Sector(*obs.Sector).Merge(sk)
		}
	}
	b.rec.Emit(record.KindOrientation, map[string]any{
		"sector": b.gs.CurrentSector, "confirmed": b.gs.SectorConfirmed,
		"credits": b.gs.Credits, "holds_used": b.gs.HoldsUsed,
		"holds_total": b.gs.HoldsTotal, "turns": b.gs.TurnsRemaining,
	})
	return obs
}

func (b *Bot) checkBudgets() error {
	if b.cfg.TargetCredits > 0 && b.gs.CreditsVerified && b.gs.Credits >= b.cfg.TargetCredits {
		return ErrTargetReached
	}
	b.mu.Lock()
	used := b.turnsUsed
	b.mu.Unlock()
	if b.cfg.MaxTurns > 0 && used >= b.cfg.MaxTurns {
		return ErrTurnBudget
	}
	return nil
}

// execute performs one action against the live session and names the
// outcome. Failures here are outcomes, not errors; the cycle continues.
func (b *Bot) execute(ctx context.Context, a strategy.Action) string {
	switch a.Kind {
	case strategy.ActWarp:
		return b.execWarp(a)
	case strategy.ActTrade:
		return b.execTrade(a)
	case strategy.ActScan:
		return b.execScan()
	case strategy.ActBank:
		return b.execBank(a)
	case strategy.ActWait:
		return "success"
	case strategy.ActQuit:
		return "quit"
	default:
		return "unsupported"
	}
}

// execWarp moves one hop and verifies arrival. Any deviation aborts the plan
// so navigation re-runs from the observed sector.
func (b *Bot) execWarp(a strategy.Action) string {
	cmd := b.cfg.WarpCommand + strconv.Itoa(a.Target)
	if err := b.orch.SendInput(cmd, prompt.MultiKey); err != nil {
		return "transport_error"
	}
	res, err := b.orch.WaitAndRespond(b.cfg.TerminalPromptID, b.cfg.ReadTimeout)
	if err != nil {
		return "prompt_timeout"
	}
	b.countPrompt()
	b.observe(b.cfg.TerminalPromptID, res.Snap.Text())
	if !b.gs.SectorConfirmed {
		return "unconfirmed"
	}
	if b.gs.CurrentSector != a.Target {
		b.rec.Error("movement_deviation",
			fmt.Sprintf("intended %d, observed %d", a.Target, b.gs.CurrentSector))
		return "deviation"
	}
	return "success"
}

// execTrade docks at the port and answers the buy/sell dialog. The gate has
// already vetted the structural side; what remains is the interactive
// haggle, which the rules file models as quantity and confirm prompts.
func (b *Bot) execTrade(a strategy.Action) string {
	before := b.gs.Credits
	if err := b.orch.SendInput("p", prompt.SingleKey); err != nil {
		return "transport_error"
	}

	// answer port prompts until we land back on the sector command
	for i := 0; i < 12; i++ {
		res, err := b.orch.WaitAndRespond("", b.cfg.ReadTimeout)
		if err != nil {
			return "prompt_timeout"
		}
		if res.Detection == nil {
			// stable unknown inside the port dialog: nudge
			if err := b.orch.SendInput("", prompt.MultiKey); err != nil {
				return "transport_error"
			}
			continue
		}
		b.countPrompt()
		det := res.Detection

		if det.PromptID == b.cfg.TerminalPromptID {
			b.observe(det.PromptID, res.Snap.Text())
			return b.settleTrade(a, before)
		}

		switch det.Kind {
		case prompt.KindInput:
			// quantity prompt: bid the planned amount
			if err := b.orch.SendInput(strconv.Itoa(a.Qty), prompt.MultiKey); err != nil {
				return "transport_error"
			}
		case prompt.KindConfirm:
			if err := b.orch.SendInput("Y", prompt.SingleKey); err != nil {
				return "transport_error"
			}
		case prompt.KindPause:
			if err := b.orch.SendInput("", prompt.AnyKey); err != nil {
				return "transport_error"
			}
		default:
			if err := b.orch.SendInput("", prompt.MultiKey); err != nil {
				return "transport_error"
			}
		}
	}
	return "dialog_overrun"
}

// settleTrade reads the post-trade screen into cargo accounting and names
// the outcome from the credits delta.
func (b *Bot) settleTrade(a strategy.Action, creditsBefore int) string {
	delta := b.gs.Credits - creditsBefore
	switch a.Side {
	case game.Buy:
		if delta < 0 {
			b.gs.Cargo[a.Commodity] += a.Qty
			b.tradeDone()
			return "success"
		}
	case game.Sell:
		if delta > 0 {
			if b.gs.Cargo[a.Commodity] >= a.Qty {
				b.gs.Cargo[a.Commodity] -= a.Qty
			} else {
				b.gs.Cargo[a.Commodity] = 0
			}
			b.tradeDone()
			return "success"
		}
	}
	return "no_effect"
}

func (b *Bot) tradeDone() {
	b.mu.Lock()
	b.trades++
	b.lastTrade = time.Now()
	b.mu.Unlock()
	b.rec.Emit(record.KindStatus, map[string]any{"event": "trade.success"})
}

// execScan redisplays the sector, refreshing warps, port, and status lines.
func (b *Bot) execScan() string {
	if err := b.orch.SendInput("d", prompt.SingleKey); err != nil {
		return "transport_error"
	}
	res, err := b.orch.WaitAndRespond(b.cfg.TerminalPromptID, b.cfg.ReadTimeout)
	if err != nil {
		return "prompt_timeout"
	}
	b.countPrompt()
	b.observe(b.cfg.TerminalPromptID, res.Snap.Text())
	return "success"
}

func (b *Bot) execBank(a strategy.Action) string {
	// bank dialogs vary by server; drive them like the port dialog
	if err := b.orch.SendInput("b", prompt.SingleKey); err != nil {
		return "transport_error"
	}
	for i := 0; i < 8; i++ {
		res, err := b.orch.WaitAndRespond("", b.cfg.ReadTimeout)
		if err != nil {
			return "prompt_timeout"
		}
		if res.Detection == nil {
			return "no_bank"
		}
		b.countPrompt()
		det := res.Detection
		if det.PromptID == b.cfg.TerminalPromptID {
			b.observe(det.PromptID, res.Snap.Text())
			return "success"
		}
		switch det.Kind {
		case prompt.KindMenu:
			key := "d"
			if a.BankOp == strategy.BankWithdraw {
				key = "w"
			}
			if err := b.orch.SendInput(key, prompt.SingleKey); err != nil {
				return "transport_error"
			}
		case prompt.KindInput:
			if err := b.orch.SendInput(strconv.Itoa(a.Amount), prompt.MultiKey); err != nil {
				return "transport_error"
			}
		case prompt.KindConfirm:
			if err := b.orch.SendInput("Y", prompt.SingleKey); err != nil {
				return "transport_error"
			}
		default:
			if err := b.orch.SendInput("", prompt.MultiKey); err != nil {
				return "transport_error"
			}
		}
	}
	return "dialog_overrun"
}
