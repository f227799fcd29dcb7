// Package session owns one transport+emulator pair and provides the
// send/read/wait primitives everything above it is built on. A session is
// single-threaded with respect to its transport: all operations serialize
// through one mutex, so a partial send can never interleave with a
// read-triggered negotiation answer.
package session

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/record"
	"github.com/ehrlich-b/tradewarden/internal/term"
)

// DefaultStabilityWindow is how long the byte stream must be quiet before a
// snapshot is considered idle. One knob, used everywhere.
const DefaultStabilityWindow = 120 * time.Millisecond

const pollInterval = 20 * time.Millisecond

// Transport is the byte pipe under a session. *telnet.Conn satisfies it.
type Transport interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// Session couples a transport with a terminal emulator and a recorder.
type Session struct {
	mu sync.Mutex

	tr  Transport
	emu *term.Emulator
	rec *record.Recorder

	stability  time.Duration
	lastChange time.Time
	lastHash   uint64
	hashValid  bool
	repeats    int
}

// Option configures a Session.
type Option func(*Session)

// WithStabilityWindow overrides the idle stability window.
func WithStabilityWindow(d time.Duration) Option {
	return func(s *Session) { s.stability = d }
}

// New creates a session over a transport. The recorder may not be nil.
func New(tr Transport, rec *record.Recorder, opts ...Option) *Session {
	s := &Session{
		tr:         tr,
		emu:        term.NewEmulator(term.DefaultCols, term.DefaultRows),
		rec:        rec,
		stability:  DefaultStabilityWindow,
		lastChange: time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Send writes payload through the transport and records it.
func (s *Session) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.tr.Write(p); err != nil {
		return err
	}
	s.rec.BytesOut(p)
	return nil
}

// Read pulls available bytes for up to timeout, feeds the emulator, and
// returns the latest snapshot. IsIdle reports whether no new bytes arrived
// for at least the stability window. Read returns early once the screen goes
// idle; it never waits out the full timeout on a quiet stream.
func (s *Session) Read(timeout time.Duration) (*term.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 4096)

	for {
		now := time.Now()
		if now.After(deadline) {
			break
		}
		step := pollInterval
		if rem := deadline.Sub(now); rem < step {
			step = rem
		}
		s.tr.SetReadDeadline(now.Add(step))
		n, err := s.tr.Read(buf)
		if n > 0 {
			s.emu.Write(buf[:n])
			s.rec.BytesIn(n)
			s.lastChange = time.Now()
		}
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				// quiet interval; check idleness below
			} else {
				return nil, err
			}
		}
		if time.Since(s.lastChange) >= s.stability {
			break
		}
	}

	snap := s.snapshotLocked()
	return snap, nil
}

// Snapshot returns the current screen without reading the transport.
func (s *Session) Snapshot() *term.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *term.Snapshot {
	snap := s.emu.Snapshot()
	snap.ChangeAge = time.Since(s.lastChange)
	snap.IsIdle = snap.ChangeAge >= s.stability

	if !s.hashValid || snap.Hash != s.lastHash {
		s.rec.ScreenChanged(snap.Hash, snap.Text())
		s.lastHash = snap.Hash
		s.hashValid = true
		s.repeats = 0
	} else {
		s.repeats++
		s.rec.ScreenRepeat(snap.Hash, s.repeats)
	}
	return snap
}

// WaitUntil reads repeatedly until pred holds for a snapshot or the timeout
// elapses, returning the last snapshot either way. The second return reports
// whether the predicate was satisfied.
func (s *Session) WaitUntil(pred func(*term.Snapshot) bool, timeout time.Duration) (*term.Snapshot, bool, error) {
	deadline := time.Now().Add(timeout)
	var last *term.Snapshot
	for {
		rem := time.Until(deadline)
		if rem <= 0 {
			return last, false, nil
		}
		step := 250 * time.Millisecond
		if rem < step {
			step = rem
		}
		snap, err := s.Read(step)
		if err != nil {
			return last, false, err
		}
		last = snap
		if pred(snap) {
			return snap, true, nil
		}
	}
}

// Close closes the transport.
func (s *Session) Close() error {
	return s.tr.Close()
}
