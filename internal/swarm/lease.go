package swarm

import (
	"errors"
	"sync"
	"time"
)

// Lease errors map one-to-one onto the wire error codes.
var (
	ErrLeaseDenied  = errors.New("lease_denied")
	ErrLeaseExpired = errors.New("lease_expired")
	ErrLeaseHeld    = errors.New("lease_held")
)

// Lease is a time-bounded exclusive right to drive one bot's input.
type Lease struct {
	BotID     string        `json:"bot_id"`
	Owner     string        `json:"owner"`
	GrantedAt time.Time     `json:"granted_ts"`
	ExpiresAt time.Time     `json:"expires_ts"`
	Duration  time.Duration `json:"-"`
}

// LeaseTable holds at most one lease per bot. Expired leases are released
// lazily on the next touch; heartbeats extend by the original duration up to
// the ceiling past the grant time.
type LeaseTable struct {
	mu      sync.Mutex
	leases  map[string]*Lease
	ceiling time.Duration
	now     func() time.Time
}

func NewLeaseTable(ceiling time.Duration) *LeaseTable {
	return &LeaseTable{
		leases:  make(map[string]*Lease),
		ceiling: ceiling,
		now:     time.Now,
	}
}

// Begin grants a fresh lease. A live lease by another owner denies the grant;
// an expired one is swept first. Re-begin by the current holder renews.
func (t *LeaseTable) Begin(botID, owner string, leaseFor time.Duration) (*Lease, error) {
	if owner == "" || leaseFor <= 0 {
		return nil, ErrLeaseDenied
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()

	if cur, ok := t.leases[botID]; ok {
		if now.Before(cur.ExpiresAt) && cur.Owner != owner {
			return nil, ErrLeaseHeld
		}
		delete(t.leases, botID)
	}

	l := &Lease{
		BotID:     botID,
		Owner:     owner,
		GrantedAt: now,
		ExpiresAt: now.Add(leaseFor),
		Duration:  leaseFor,
	}
	t.leases[botID] = l
	return l, nil
}

// Check verifies that owner currently holds a live lease on the bot. Holding
// an expired lease is reported distinctly from not holding one at all.
func (t *LeaseTable) Check(botID, owner string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.leases[botID]
	if !ok || cur.Owner != owner {
		return ErrLeaseDenied
	}
	if !t.now().Before(cur.ExpiresAt) {
		delete(t.leases, botID)
		return ErrLeaseExpired
	}
	return nil
}

// Heartbeat extends the holder's lease by its original duration, capped at
// grant time plus the ceiling.
func (t *LeaseTable) Heartbeat(botID, owner string) (*Lease, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.leases[botID]
	if !ok || cur.Owner != owner {
		return nil, ErrLeaseDenied
	}
	now := t.now()
	if !now.Before(cur.ExpiresAt) {
		delete(t.leases, botID)
		return nil, ErrLeaseExpired
	}

	next := now.Add(cur.Duration)
	if cap := cur.GrantedAt.Add(t.ceiling); t.ceiling > 0 && next.After(cap) {
		next = cap
	}
	if next.After(cur.ExpiresAt) {
		cur.ExpiresAt = next
	}
	return cur, nil
}

// Release drops the lease if owner holds it, live or expired.
func (t *LeaseTable) Release(botID, owner string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.leases[botID]
	if !ok || cur.Owner != owner {
		return ErrLeaseDenied
	}
	delete(t.leases, botID)
	return nil
}

// ReleaseAllFor drops every lease on one bot regardless of owner; used when
// the bot's task is cancelled.
func (t *LeaseTable) ReleaseAllFor(botID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.leases, botID)
}

// Holder returns the live lease on a bot, or nil.
func (t *LeaseTable) Holder(botID string) *Lease {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.leases[botID]
	if !ok || !t.now().Before(cur.ExpiresAt) {
		return nil
	}
	cp := *cur
	return &cp
}
