package game

import (
	"time"
)

// DefaultCommodityFloors is the configured fallback valuation table used for
// net-worth accounting when no observed or hinted quote exists.
var DefaultCommodityFloors = map[Commodity]int{
	Fuel:      10,
	Organics:  15,
	Equipment: 25,
}

// ActionOutcome is one entry of the bounded recent-actions sequence.
type ActionOutcome struct {
	Action  string    `json:"action"`
	Outcome string    `json:"outcome"`
	At      time.Time `json:"at"`
}

const recentActionsCap = 32

// GameState is the bot's own situation as last extracted from the screen.
// CurrentSector is authoritative only while SectorConfirmed is true; any
// snapshot that fails orientation clears the flag.
type GameState struct {
	CurrentSector   int  `json:"current_sector"`
	SectorConfirmed bool `json:"sector_confirmed"`

	Credits             int       `json:"credits"`
	CreditsVerified     bool      `json:"credits_verified"`
	CreditsLastVerified time.Time `json:"credits_last_verified,omitempty"`

	HoldsUsed      int `json:"holds_used"`
	HoldsTotal     int `json:"holds_total"`
	TurnsRemaining int `json:"turns_remaining"`

	// Cargo tracks what the holds carry, for net-worth valuation.
	Cargo map[Commodity]int `json:"cargo,omitempty"`

	NetWorthEstimate int  `json:"net_worth_estimate"`
	PendingTrade     bool `json:"pending_trade"`

	RecentActions   []ActionOutcome      `json:"recent_actions,omitempty"`
	DangerCooldowns map[int]time.Time    `json:"danger_cooldowns,omitempty"`
	Floors          map[Commodity]int    `json:"-"`
	QuoteHints      map[Commodity]int    `json:"-"`
}

// NewGameState returns a zeroed state with the default floor table.
func NewGameState() *GameState {
	return &GameState{
		Cargo:           make(map[Commodity]int),
		DangerCooldowns: make(map[int]time.Time),
		Floors:          DefaultCommodityFloors,
		QuoteHints:      make(map[Commodity]int),
	}
}

// RecordAction appends to the bounded recent-actions sequence.
func (gs *GameState) RecordAction(action, outcome string) {
	gs.RecentActions = append(gs.RecentActions, ActionOutcome{
		Action:  action,
		Outcome: outcome,
		At:      time.Now(),
	})
	if len(gs.RecentActions) > recentActionsCap {
		gs.RecentActions = gs.RecentActions[len(gs.RecentActions)-recentActionsCap:]
	}
}

// CooldownActive reports whether a sector is still under a danger cooldown.
func (gs *GameState) CooldownActive(sector int, now time.Time) bool {
	exp, ok := gs.DangerCooldowns[sector]
	return ok && now.Before(exp)
}

// SetCooldown marks a sector dangerous until expiry.
func (gs *GameState) SetCooldown(sector int, until time.Time) {
	gs.DangerCooldowns[sector] = until
}

// Valuation returns the per-unit value of a commodity at the sector the bot
// occupies. Precedence: observed port quote, then parsed quote hint, then the
// commodity floor. Never negative.
func (gs *GameState) Valuation(c Commodity, local *SectorKnowledge) int {
	if local != nil {
		if q, ok := local.Quotes[c]; ok && q.Price > 0 {
			return q.Price
		}
	}
	if h, ok := gs.QuoteHints[c]; ok && h > 0 {
		return h
	}
	if f, ok := gs.Floors[c]; ok && f > 0 {
		return f
	}
	return 0
}

// RecomputeNetWorth refreshes the estimate: credits plus cargo valuation.
// Each term is clamped nonnegative.
func (gs *GameState) RecomputeNetWorth(local *SectorKnowledge) {
	total := gs.Credits
	if total < 0 {
		total = 0
	}
	for c, qty := range gs.Cargo {
		if qty <= 0 {
			continue
		}
		total += qty * gs.Valuation(c, local)
	}
	gs.NetWorthEstimate = total
}
