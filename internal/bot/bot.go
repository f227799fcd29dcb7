// Package bot is the outer state machine for one character: connect, log in,
// run the turn cycle, recover from disorientation, and exit cleanly.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/game"
	"github.com/ehrlich-b/tradewarden/internal/logger"
	"github.com/ehrlich-b/tradewarden/internal/orchestrator"
	"github.com/ehrlich-b/tradewarden/internal/prompt"
	"github.com/ehrlich-b/tradewarden/internal/record"
	"github.com/ehrlich-b/tradewarden/internal/session"
	"github.com/ehrlich-b/tradewarden/internal/strategy"
	"github.com/ehrlich-b/tradewarden/internal/telnet"
)

// State is the bot's lifecycle phase.
type State string

const (
	StateDisconnected State = "disconnected"
	StateLoggingIn    State = "logging_in"
	StateInGame       State = "in_game"
	StateRecovering   State = "recovering"
	StateExiting      State = "exiting"
)

// Lifecycle outcomes. TargetReached is a success, not an error, but it
// travels the same way.
var (
	ErrTargetReached       = errors.New("bot: target credits reached")
	ErrTurnBudget          = errors.New("bot: turn budget exhausted")
	ErrCharacterDied       = errors.New("bot: character died")
	ErrLoginFailed         = errors.New("bot: login failed")
	ErrPrivateGameRejected = errors.New("bot: private game password rejected")
)

// Dialer opens the transport. Tests substitute a pipe.
type Dialer func(ctx context.Context) (session.Transport, error)

// Config is everything one bot needs to run.
type Config struct {
	ID            string
	CharacterName string
	ShipName      string
	Password      string
	GameSelection string // key sent at the game menu
	GamePassword  string // private-game password, if any

	TerminalPromptID string // the sector-command rule id, login's exit condition

	ReadTimeout     time.Duration
	LoginTimeout    time.Duration
	StabilityWindow time.Duration // 0 means the session default
	PageCap         int           // 0 means the orchestrator default
	MaxTurns        int
	TargetCredits   int

	MaxRecoveries     int
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	WarpCommand string // prefix before the sector number, usually empty
}

func (c *Config) withDefaults() {
	if c.GameSelection == "" {
		c.GameSelection = "A"
	}
	if c.TerminalPromptID == "" {
		c.TerminalPromptID = "game.sector_command"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 30 * time.Second
	}
	if c.MaxRecoveries <= 0 {
		c.MaxRecoveries = 3
	}
	if c.ReconnectAttempts < 0 {
		c.ReconnectAttempts = 0
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
}

// Status is the point-in-time view the swarm aggregates.
type Status struct {
	ID            string    `json:"id"`
	Character     string    `json:"character"`
	State         State     `json:"state"`
	Sector        int       `json:"sector"`
	Credits       int       `json:"credits"`
	NetWorth      int       `json:"net_worth"`
	TurnsUsed     int       `json:"turns_used"`
	Trades        int       `json:"trades"`
	TradeFailures int       `json:"trade_failures"`
	PromptsSeen   int       `json:"prompts_seen"`
	LastTradeAt   time.Time `json:"last_trade_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`

	TradeFailureReasons map[string]int `json:"trade_failure_reasons,omitempty"`
}

// Bot drives one character through one session at a time.
type Bot struct {
	cfg  Config
	dial Dialer
	det  *prompt.Detector
	rec  *record.Recorder

	strat strategy.Strategy
	gate  *strategy.TradeGate

	mu    sync.Mutex
	state State
	orch  *orchestrator.Orchestrator
	sess  *session.Session

	gs     *game.GameState
	know   *game.Knowledge
	shared *game.Knowledge
	loop   *game.LoopDetector

	turnsUsed   int
	trades      int
	promptsSeen int
	lastTrade   time.Time
	recoveries  int
}

// Option configures a Bot.
type Option func(*Bot)

// WithSharedKnowledge attaches a swarm-shared graph.
func WithSharedKnowledge(k *game.Knowledge) Option {
	return func(b *Bot) { b.shared = k }
}

// WithDialer replaces the default telnet dialer.
func WithDialer(d Dialer) Option {
	return func(b *Bot) { b.dial = d }
}

// New builds a bot. The recorder, detector, and strategy may not be nil. The
// detector is shared across sessions so rule hot-reload reaches a live bot.
func New(cfg Config, det *prompt.Detector, strat strategy.Strategy, rec *record.Recorder, opts ...Option) *Bot {
	cfg.withDefaults()
	b := &Bot{
		cfg:   cfg,
		det:   det,
		rec:   rec,
		strat: strat,
		gate:  strategy.NewTradeGate(),
		state: StateDisconnected,
		gs:    game.NewGameState(),
		know:  game.NewKnowledge(),
		loop:  game.NewLoopDetector(0, 0),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// TelnetDialer dials host:port with the package telnet client.
func TelnetDialer(host string, port int) Dialer {
	return func(ctx context.Context) (session.Transport, error) {
		return telnet.Dial(ctx, host, port)
	}
}

// State returns the current lifecycle phase.
func (b *Bot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bot) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
	b.rec.Emit(record.KindStatus, map[string]any{"state": string(s)})
}

// Status snapshots the bot for the swarm.
func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	reasons := make(map[string]int, len(b.gate.Rejections))
	var failures int
	for r, n := range b.gate.Rejections {
		reasons[string(r)] = n
		failures += n
	}
	return Status{
		ID:                  b.cfg.ID,
		Character:           b.cfg.CharacterName,
		State:               b.state,
		Sector:              b.gs.CurrentSector,
		Credits:             b.gs.Credits,
		NetWorth:            b.gs.NetWorthEstimate,
		TurnsUsed:           b.turnsUsed,
		Trades:              b.trades,
		TradeFailures:       failures,
		PromptsSeen:         b.promptsSeen,
		LastTradeAt:         b.lastTrade,
		UpdatedAt:           time.Now(),
		TradeFailureReasons: reasons,
	}
}

// Knowledge returns the bot's own graph.
func (b *Bot) Knowledge() *game.Knowledge { return b.know }

// GameState returns the live state. Swarm reads go through Status instead.
func (b *Bot) GameState() *game.GameState { return b.gs }

// Orchestrator exposes the session driver while connected; nil otherwise.
// Hijack read/send goes through here.
func (b *Bot) Orchestrator() *orchestrator.Orchestrator {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.orch
}

// Run executes the full lifecycle: connect, log in, turn cycle, exit. It
// returns one of the lifecycle sentinels, a transport error after reconnects
// are exhausted, or ctx.Err.
func (b *Bot) Run(ctx context.Context) error {
	defer b.setState(StateDisconnected)

	attempts := 0
	for {
		err := b.runSession(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrTargetReached),
			errors.Is(err, ErrTurnBudget),
			errors.Is(err, ErrCharacterDied),
			errors.Is(err, game.ErrOrientationLost),
			errors.Is(err, ErrLoginFailed),
			errors.Is(err, ErrPrivateGameRejected):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}

		// transport-level failure: bounded reconnect
		attempts++
		if attempts > b.cfg.ReconnectAttempts {
			return err
		}
		logger.Warn("session failed, reconnecting",
			"bot", b.cfg.ID, "attempt", attempts, "err", err)
		select {
		case <-time.After(b.cfg.ReconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Bot) runSession(ctx context.Context) error {
	tr, err := b.dialTransport(ctx)
	if err != nil {
		return err
	}

	var sessOpts []session.Option
	if b.cfg.StabilityWindow > 0 {
		sessOpts = append(sessOpts, session.WithStabilityWindow(b.cfg.StabilityWindow))
	}
	sess := session.New(tr, b.rec, sessOpts...)

	var orchOpts []orchestrator.Option
	if b.cfg.PageCap > 0 {
		orchOpts = append(orchOpts, orchestrator.WithPageCap(b.cfg.PageCap))
	}
	orch := orchestrator.New(sess, b.det, b.rec, orchOpts...)
	b.mu.Lock()
	b.sess = sess
	b.orch = orch
	b.mu.Unlock()
	defer func() {
		sess.Close()
		b.mu.Lock()
		b.sess = nil
		b.orch = nil
		b.mu.Unlock()
	}()

	b.setState(StateLoggingIn)
	if err := b.login(ctx); err != nil {
		return err
	}

	b.setState(StateInGame)
	err = b.turnCycle(ctx)

	b.setState(StateExiting)
	b.sendQuit()
	return err
}

func (b *Bot) dialTransport(ctx context.Context) (session.Transport, error) {
	if b.dial == nil {
		return nil, fmt.Errorf("bot %s: no dialer configured", b.cfg.ID)
	}
	return b.dial(ctx)
}

// sendQuit makes a best-effort clean exit; errors are ignored because the
// transport may already be gone.
func (b *Bot) sendQuit() {
	b.mu.Lock()
	orch := b.orch
	b.mu.Unlock()
	if orch == nil {
		return
	}
	orch.SendInput("q", prompt.SingleKey)
	if res, err := orch.WaitAndRespond("", 2*time.Second); err == nil &&
		res.Detection != nil && res.Detection.Kind == prompt.KindConfirm {
		orch.SendInput("y", prompt.SingleKey)
	}
}
