// Package record emits the per-session JSONL event stream: one JSON object
// per line, one sink per session. Events also fan out to in-memory
// subscribers for the swarm dashboard feed.
package record

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/logger"
)

// Event kinds.
const (
	KindBytesIn        = "transport.bytes_in"
	KindBytesOut       = "transport.bytes_out"
	KindScreenChanged  = "screen.changed"
	KindScreenRepeat   = "screen.repeat"
	KindPromptDetected = "prompt.detected"
	KindAction         = "action.executed"
	KindOrientation    = "orientation.updated"
	KindLLMRequest     = "llm.request"
	KindLLMResponse    = "llm.response"
	KindLLMInterven    = "llm.intervention"
	KindError          = "error"
	KindStatus         = "bot.status"
)

// Event is one line of the record stream.
type Event struct {
	T    time.Time      `json:"t"`
	Kind string         `json:"kind"`
	Bot  string         `json:"bot,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// Recorder serializes events to a sink. Safe for concurrent use; events from
// one bot are totally ordered by the write lock.
type Recorder struct {
	mu   sync.Mutex
	w    io.Writer
	bot  string
	subs map[int]chan Event
	next int
}

// New creates a recorder writing JSONL to w. A nil writer drops events but
// still feeds subscribers.
func New(w io.Writer, botID string) *Recorder {
	return &Recorder{w: w, bot: botID, subs: make(map[int]chan Event)}
}

// Emit records one event with the current timestamp.
func (r *Recorder) Emit(kind string, data map[string]any) {
	ev := Event{T: time.Now().UTC(), Kind: kind, Bot: r.bot, Data: data}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w != nil {
		line, err := json.Marshal(ev)
		if err != nil {
			logger.Warn("record: marshal failed", "kind", kind, "err", err)
			return
		}
		line = append(line, '\n')
		if _, err := r.w.Write(line); err != nil {
			logger.Warn("record: write failed", "err", err)
		}
	}
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default: // slow subscriber: drop, never block the session
		}
	}
}

// BytesOut records an outbound payload, base64-encoded.
func (r *Recorder) BytesOut(payload []byte) {
	r.Emit(KindBytesOut, map[string]any{
		"len":         len(payload),
		"payload_b64": base64.StdEncoding.EncodeToString(payload),
	})
}

// BytesIn records an inbound chunk length. Payload capture is optional and
// off by default; screens are recorded separately as text.
func (r *Recorder) BytesIn(n int) {
	r.Emit(KindBytesIn, map[string]any{"len": n})
}

// ScreenChanged records a newly hashed screen.
func (r *Recorder) ScreenChanged(hash uint64, text string) {
	r.Emit(KindScreenChanged, map[string]any{"hash": hash, "text": text})
}

// ScreenRepeat records a deduplicated screen (same hash as last) as a
// count-only event.
func (r *Recorder) ScreenRepeat(hash uint64, count int) {
	r.Emit(KindScreenRepeat, map[string]any{"hash": hash, "count": count})
}

// Error records an error event by kind.
func (r *Recorder) Error(kind string, details string) {
	r.Emit(KindError, map[string]any{"error_kind": kind, "details": details})
}

// Subscribe returns a channel receiving all subsequent events and a cancel
// function. The channel is buffered; slow readers lose events rather than
// stalling the bot.
func (r *Recorder) Subscribe() (<-chan Event, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	ch := make(chan Event, 256)
	r.subs[id] = ch
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(ch)
		}
	}
}

// Close flushes the sink if it is flushable and drops all subscribers.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
	if f, ok := r.w.(interface{ Sync() error }); ok {
		return f.Sync()
	}
	if c, ok := r.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
