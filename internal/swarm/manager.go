// Package swarm supervises a fleet of bot runtimes: shared sector knowledge,
// hijack leases, telemetry aggregation, and the REST/websocket control plane.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ehrlich-b/tradewarden/internal/bot"
	"github.com/ehrlich-b/tradewarden/internal/game"
	"github.com/ehrlich-b/tradewarden/internal/logger"
	"github.com/ehrlich-b/tradewarden/internal/record"
	"github.com/ehrlich-b/tradewarden/internal/store"
)

var (
	ErrUnknownBot      = errors.New("swarm: unknown bot")
	ErrBotNotConnected = errors.New("swarm: bot not connected")
	ErrAlreadyRunning  = errors.New("swarm: bot already running")
)

// SpawnFunc builds a bot for one slot of a composition. kind selects the
// strategy wiring ("dynamic", "ai", ...); the manager only supervises.
type SpawnFunc func(id, kind string) (*bot.Bot, error)

// Config is the manager's own knobs; bot configs live with the spawner.
type Config struct {
	LeaseSeconds   int
	LeaseCeiling   time.Duration
	StatusInterval time.Duration
}

func (c *Config) withDefaults() {
	if c.LeaseSeconds <= 0 {
		c.LeaseSeconds = 60
	}
	if c.LeaseCeiling <= 0 {
		c.LeaseCeiling = 10 * time.Minute
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = 15 * time.Second
	}
}

type runner struct {
	bot    *bot.Bot
	kind   string
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	running bool
	lastErr error
}

// Manager owns the fleet. All shared-knowledge writes serialize through it;
// reads hand out snapshots.
type Manager struct {
	cfg    Config
	spawn  SpawnFunc
	st     *store.Store // nil means no persistence
	rec    *record.Recorder
	leases *LeaseTable
	tel    *Telemetry

	mu     sync.Mutex
	bots   map[string]*runner
	shared *game.Knowledge

	group *errgroup.Group
	gctx  context.Context

	started   chan struct{}
	startOnce sync.Once
}

// NewManager wires the fleet supervisor. The recorder feeds the websocket
// event stream; the store, when present, persists shared knowledge.
func NewManager(cfg Config, spawn SpawnFunc, st *store.Store, rec *record.Recorder) *Manager {
	cfg.withDefaults()
	return &Manager{
		cfg:    cfg,
		spawn:  spawn,
		st:     st,
		rec:    rec,
		leases:  NewLeaseTable(cfg.LeaseCeiling),
		tel:     NewTelemetry(),
		bots:    make(map[string]*runner),
		shared:  game.NewKnowledge(),
		started: make(chan struct{}),
	}
}

// WaitReady blocks until Run has brought the supervision group up.
func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.started:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recorder returns the swarm-level event recorder.
func (m *Manager) Recorder() *record.Recorder { return m.rec }

// Leases returns the hijack lease table.
func (m *Manager) Leases() *LeaseTable { return m.leases }

// Telemetry returns the series aggregator.
func (m *Manager) Telemetry() *Telemetry { return m.tel }

// Run loads persisted knowledge, then polls status until ctx is cancelled.
// On the way out it stops every bot and flushes the shared graph.
func (m *Manager) Run(ctx context.Context) error {
	if m.st != nil {
		k, err := m.st.LoadGraph()
		if err != nil {
			return fmt.Errorf("swarm: load shared graph: %w", err)
		}
		m.mu.Lock()
		m.shared = k
		m.mu.Unlock()
		logger.Info("shared knowledge loaded", "sectors", len(k.Sectors))
	}

	g, gctx := errgroup.WithContext(ctx)
	m.mu.Lock()
	m.group = g
	m.gctx = gctx
	m.mu.Unlock()
	m.startOnce.Do(func() { close(m.started) })

	g.Go(func() error {
		ticker := time.NewTicker(m.cfg.StatusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				m.pollOnce()
			}
		}
	})

	err := g.Wait()
	m.stopAll()
	if m.st != nil {
		if ferr := m.flushShared(); ferr != nil {
			logger.Warn("shared knowledge flush failed", "err", ferr)
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Spawn builds and starts a composition, e.g. {"dynamic": 19, "ai": 1}.
// Returns the new bot ids.
func (m *Manager) Spawn(composition map[string]int) ([]string, error) {
	if m.spawn == nil {
		return nil, fmt.Errorf("swarm: no spawner configured")
	}
	var ids []string
	for kind, n := range composition {
		for i := 0; i < n; i++ {
			id := kind + "-" + uuid.New().String()[:8]
			b, err := m.spawn(id, kind)
			if err != nil {
				return ids, fmt.Errorf("swarm: spawn %s: %w", kind, err)
			}
			m.register(id, kind, b)
			if err := m.StartBot(id); err != nil {
				return ids, err
			}
			ids = append(ids, id)
		}
	}
	m.rec.Emit(record.KindStatus, map[string]any{"event": "swarm.spawn", "ids": ids})
	return ids, nil
}

func (m *Manager) register(id, kind string, b *bot.Bot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bots[id] = &runner{bot: b, kind: kind}
}

// StartBot launches a registered bot under the supervision group.
func (m *Manager) StartBot(id string) error {
	m.mu.Lock()
	r, ok := m.bots[id]
	group, gctx := m.group, m.gctx
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBot, id)
	}
	if group == nil {
		return fmt.Errorf("swarm: manager not running")
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}
	botCtx, cancel := context.WithCancel(gctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true
	r.mu.Unlock()

	group.Go(func() error {
		err := r.bot.Run(botCtx)
		m.leases.ReleaseAllFor(id)
		m.absorbKnowledge(r.bot)

		r.mu.Lock()
		r.running = false
		r.lastErr = err
		close(r.done)
		r.mu.Unlock()

		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("bot exited", "bot", id, "err", err)
			m.rec.Emit(record.KindStatus, map[string]any{
				"event": "bot.exited", "bot": id, "err": err.Error(),
			})
		}
		// bot outcomes never tear down the fleet
		return nil
	})
	return nil
}

// StopBot cancels a running bot and waits for it to unwind.
func (m *Manager) StopBot(id string) error {
	m.mu.Lock()
	r, ok := m.bots[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBot, id)
	}
	r.mu.Lock()
	cancel, done, running := r.cancel, r.done, r.running
	r.mu.Unlock()
	if !running {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Clear stops every bot, drops the fleet, and resets telemetry. The
// persistent graph survives; wiping it is the store owner's call.
func (m *Manager) Clear() {
	m.stopAll()
	m.mu.Lock()
	m.bots = make(map[string]*runner)
	m.mu.Unlock()
	m.tel.Clear()
	m.rec.Emit(record.KindStatus, map[string]any{"event": "swarm.cleared"})
}

func (m *Manager) stopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.bots))
	for id := range m.bots {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.StopBot(id)
	}
}

// Statuses snapshots every bot, sorted by id.
func (m *Manager) Statuses() []bot.Status {
	m.mu.Lock()
	runners := make(map[string]*runner, len(m.bots))
	for id, r := range m.bots {
		runners[id] = r
	}
	m.mu.Unlock()

	out := make([]bot.Status, 0, len(runners))
	for _, r := range runners {
		out = append(out, r.bot.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) pollOnce() {
	for _, st := range m.Statuses() {
		m.tel.Record(st)
	}
}

// MergeSector serializes one shared-knowledge write; the store write rides
// along when persistence is on.
func (m *Manager) MergeSector(sk *game.SectorKnowledge) error {
	m.mu.Lock()
	err := m.shared.Sector(sk.SectorID).Merge(sk)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if m.st != nil {
		return m.st.SaveSector(sk)
	}
	return nil
}

// SharedKnowledge returns the live shared graph for wiring into bots. Bots
// merge into it through their own observe path; reads elsewhere should use
// SharedSnapshot.
func (m *Manager) SharedKnowledge() *game.Knowledge {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shared
}

// SharedSnapshot deep-copies the shared graph for snapshot-consistent reads.
func (m *Manager) SharedSnapshot() *game.Knowledge {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shared.Clone()
}

func (m *Manager) absorbKnowledge(b *bot.Bot) {
	m.mu.Lock()
	m.shared.MergeFrom(b.Knowledge())
	m.mu.Unlock()
}

func (m *Manager) flushShared() error {
	m.mu.Lock()
	k := m.shared.Clone()
	m.mu.Unlock()
	return m.st.SaveGraph(k)
}

// --- hijack plane ---

// AssumeView is the operator's first look at a bot: status plus the current
// screen. Assuming does not require a lease; sending does.
type AssumeView struct {
	Status bot.Status `json:"status"`
	Screen string     `json:"screen"`
	Lease  *Lease     `json:"lease,omitempty"`
}

func (m *Manager) findBot(id string) (*runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.bots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBot, id)
	}
	return r, nil
}

// Assume returns the operator view of one bot.
func (m *Manager) Assume(id string) (*AssumeView, error) {
	r, err := m.findBot(id)
	if err != nil {
		return nil, err
	}
	view := &AssumeView{Status: r.bot.Status(), Lease: m.leases.Holder(id)}
	if orch := r.bot.Orchestrator(); orch != nil {
		view.Screen = orch.Session().Snapshot().Text()
	}
	return view, nil
}

// HijackBegin grants a lease on the bot.
func (m *Manager) HijackBegin(id, owner string, leaseFor time.Duration) (*Lease, error) {
	if _, err := m.findBot(id); err != nil {
		return nil, err
	}
	if leaseFor <= 0 {
		leaseFor = time.Duration(m.cfg.LeaseSeconds) * time.Second
	}
	return m.leases.Begin(id, owner, leaseFor)
}

// HijackRead returns the bot's current screen to the lease holder.
func (m *Manager) HijackRead(id, owner string) (string, error) {
	if err := m.leases.Check(id, owner); err != nil {
		return "", err
	}
	r, err := m.findBot(id)
	if err != nil {
		return "", err
	}
	orch := r.bot.Orchestrator()
	if orch == nil {
		return "", ErrBotNotConnected
	}
	return orch.Session().Snapshot().Text(), nil
}

// HijackSend forwards raw keys from the lease holder to the bot's session.
func (m *Manager) HijackSend(id, owner, keys string) error {
	if err := m.leases.Check(id, owner); err != nil {
		return err
	}
	r, err := m.findBot(id)
	if err != nil {
		return err
	}
	orch := r.bot.Orchestrator()
	if orch == nil {
		return ErrBotNotConnected
	}
	m.rec.Emit(record.KindStatus, map[string]any{
		"event": "hijack.send", "bot": id, "owner": owner, "len": len(keys),
	})
	return orch.Session().Send([]byte(keys))
}
