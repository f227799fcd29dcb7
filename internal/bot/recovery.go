package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/game"
	"github.com/ehrlich-b/tradewarden/internal/logger"
	"github.com/ehrlich-b/tradewarden/internal/prompt"
)

// recoveryWait is the per-step read budget during recovery; shorter than the
// normal turn timeout because recovery steps escalate quickly.
const recoveryWait = 5 * time.Second

// recover runs the disorientation protocol: Enter, then q, then the rules
// file's safe-anchor keys. Three consecutive failed recoveries abort the
// session with OrientationLost.
func (b *Bot) recover(ctx context.Context) error {
	b.setState(StateRecovering)
	defer b.setState(StateInGame)

	b.mu.Lock()
	b.recoveries++
	attempt := b.recoveries
	b.mu.Unlock()

	if attempt > b.cfg.MaxRecoveries {
		b.rec.Error("orientation_lost", fmt.Sprintf("%d failed recoveries", attempt-1))
		return fmt.Errorf("%w: recovery exhausted", game.ErrOrientationLost)
	}
	logger.Warn("recovering", "bot", b.cfg.ID, "attempt", attempt)

	steps := []struct {
		name string
		send func() error
	}{
		{"enter", func() error { return b.orch.SendInput("", prompt.MultiKey) }},
		{"quit_key", func() error { return b.orch.SendInput("q", prompt.SingleKey) }},
		{"anchor", b.sendAnchor},
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := step.send(); err != nil {
			return err
		}
		res, err := b.orch.WaitAndRespond(b.cfg.TerminalPromptID, recoveryWait)
		if err != nil {
			continue // escalate to the next step
		}
		b.countPrompt()
		b.observe(b.cfg.TerminalPromptID, res.Snap.Text())
		if b.gs.SectorConfirmed {
			logger.Info("recovered", "bot", b.cfg.ID, "via", step.name, "sector", b.gs.CurrentSector)
			b.loop.Reset()
			b.mu.Lock()
			b.recoveries = 0
			b.mu.Unlock()
			return nil
		}
	}
	// all steps failed; the next turn iteration will call recover again
	// until MaxRecoveries trips
	return nil
}

// sendAnchor types the game's safe-anchor key sequence one key at a time.
func (b *Bot) sendAnchor() error {
	keys := b.det.Rules().AnchorKeys
	if keys == "" {
		keys = "\r"
	}
	for i := 0; i < len(keys); i++ {
		if err := b.orch.Session().Send([]byte{keys[i]}); err != nil {
			return err
		}
	}
	return nil
}
