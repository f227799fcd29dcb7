package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/logger"
	"github.com/ehrlich-b/tradewarden/internal/prompt"
)

// maxLoginSteps bounds the login loop; a healthy flow is well under this.
const maxLoginSteps = 24

// login drives the prompt-detection login flow until the sector-command
// prompt appears. Servers sometimes skip the name prompt entirely, so the
// flow answers whatever shows up instead of expecting a fixed sequence.
func (b *Bot) login(ctx context.Context) error {
	deadline := time.Now().Add(b.cfg.LoginTimeout)
	passwordTried := false

	for step := 0; step < maxLoginSteps; step++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rem := time.Until(deadline)
		if rem <= 0 {
			return fmt.Errorf("%w: timed out before sector command", ErrLoginFailed)
		}

		res, err := b.orch.WaitAndRespond("", rem)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLoginFailed, err)
		}
		if res.Detection == nil {
			// stable unknown screen mid-login: nudge with Enter
			if err := b.orch.SendInput("", prompt.MultiKey); err != nil {
				return err
			}
			continue
		}

		det := res.Detection
		b.countPrompt()
		if det.PromptID == b.cfg.TerminalPromptID {
			// landed in game; orient off this screen
			b.observe(det.PromptID, res.Snap.Text())
			logger.Info("login complete", "bot", b.cfg.ID, "sector", b.gs.CurrentSector)
			return nil
		}

		if err := b.answerLoginPrompt(det.Kind, det.MatchedText, &passwordTried, res.Snap.Text()); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: no sector command after %d prompts", ErrLoginFailed, maxLoginSteps)
}

func (b *Bot) answerLoginPrompt(kind prompt.Kind, matched string, passwordTried *bool, screen string) error {
	switch kind {
	case prompt.KindLoginName:
		return b.orch.SendInput(b.cfg.CharacterName, prompt.MultiKey)

	case prompt.KindMenu:
		return b.orch.SendInput(b.cfg.GameSelection, prompt.SingleKey)

	case prompt.KindGamePass:
		// a second password prompt means the first try was rejected
		if *passwordTried || rejectionVisible(screen) {
			return fmt.Errorf("%w: %q", ErrPrivateGameRejected, strings.TrimSpace(matched))
		}
		*passwordTried = true
		return b.sendPassword(b.cfg.GamePassword)

	case prompt.KindLoginPass:
		return b.sendPassword(b.cfg.Password)

	case prompt.KindConfirm:
		return b.orch.SendInput("Y", prompt.SingleKey)

	case prompt.KindPause:
		return b.orch.SendInput("", prompt.AnyKey)

	case prompt.KindInput:
		// new-character creation asks for ship and planet names
		name := b.cfg.ShipName
		if name == "" {
			name = b.cfg.CharacterName
		}
		return b.orch.SendInput(name, prompt.MultiKey)

	default:
		// unknown but matched: a single Enter is the safest answer
		return b.orch.SendInput("", prompt.MultiKey)
	}
}

// sendPassword types the password and CR as two separate writes; the
// server echoes asterisks, not the characters.
func (b *Bot) sendPassword(pw string) error {
	if pw == "" {
		return fmt.Errorf("%w: password prompt but no password configured", ErrLoginFailed)
	}
	if err := b.orch.Session().Send([]byte(pw)); err != nil {
		return err
	}
	return b.orch.Session().Send([]byte("\r"))
}

func rejectionVisible(screen string) bool {
	lower := strings.ToLower(screen)
	return strings.Contains(lower, "invalid password") ||
		strings.Contains(lower, "incorrect password") ||
		strings.Contains(lower, "access denied")
}

func (b *Bot) countPrompt() {
	b.mu.Lock()
	b.promptsSeen++
	b.mu.Unlock()
}
