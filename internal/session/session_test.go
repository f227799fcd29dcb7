package session

import (
	"bytes"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/record"
	"github.com/ehrlich-b/tradewarden/internal/term"
)

func newTestSession(t *testing.T) (*Session, net.Conn, *bytes.Buffer) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	var out bytes.Buffer
	rec := record.New(&syncBuffer{b: &out}, "test-bot")
	s := New(client, rec, WithStabilityWindow(40*time.Millisecond))
	return s, server, &out
}

// syncBuffer makes bytes.Buffer usable from the recorder goroutine-safely.
type syncBuffer struct{ b *bytes.Buffer }

func (s *syncBuffer) Write(p []byte) (int, error) { return s.b.Write(p) }

func TestReadReturnsIdleSnapshot(t *testing.T) {
	s, server, _ := newTestSession(t)

	go server.Write([]byte("Command [TL=00:00:00]:[42] (?=Help)? : "))

	snap, err := s.Read(time.Second)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !snap.IsIdle {
		t.Error("expected idle snapshot after quiet stream")
	}
	if !strings.Contains(snap.Rows[0], "Command") {
		t.Errorf("row 0 = %q", snap.Rows[0])
	}
}

func TestSendRecordsOutboundEvent(t *testing.T) {
	s, server, out := newTestSession(t)

	go func() {
		buf := make([]byte, 64)
		server.Read(buf)
	}()

	if err := s.Send([]byte("A")); err != nil {
		t.Fatalf("send: %v", err)
	}

	var ev record.Event
	line := strings.SplitN(out.String(), "\n", 2)[0]
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatalf("unmarshal %q: %v", line, err)
	}
	if ev.Kind != record.KindBytesOut {
		t.Errorf("kind = %q, want %q", ev.Kind, record.KindBytesOut)
	}
	if ev.Data["payload_b64"] != "QQ==" {
		t.Errorf("payload_b64 = %v", ev.Data["payload_b64"])
	}
}

func TestScreenDedup(t *testing.T) {
	s, server, out := newTestSession(t)

	go server.Write([]byte("static screen"))

	if _, err := s.Read(300 * time.Millisecond); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if _, err := s.Read(100 * time.Millisecond); err != nil {
		t.Fatalf("second read: %v", err)
	}

	var changed, repeats int
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var ev record.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		switch ev.Kind {
		case record.KindScreenChanged:
			changed++
		case record.KindScreenRepeat:
			repeats++
		}
	}
	if changed != 1 {
		t.Errorf("screen.changed count = %d, want 1", changed)
	}
	if repeats != 1 {
		t.Errorf("screen.repeat count = %d, want 1", repeats)
	}
}

func TestWaitUntil(t *testing.T) {
	s, server, _ := newTestSession(t)

	go func() {
		server.Write([]byte("booting"))
		time.Sleep(80 * time.Millisecond)
		server.Write([]byte("\r\nready? : "))
	}()

	snap, ok, err := s.WaitUntil(func(sn *term.Snapshot) bool {
		return strings.Contains(sn.Text(), "ready")
	}, time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !ok {
		t.Fatal("predicate never satisfied")
	}
	if !strings.Contains(snap.Text(), "ready") {
		t.Errorf("text = %q", snap.Text())
	}
}

func TestWaitUntilTimeout(t *testing.T) {
	s, server, _ := newTestSession(t)
	go server.Write([]byte("nothing useful"))

	_, ok, err := s.WaitUntil(func(sn *term.Snapshot) bool {
		return strings.Contains(sn.Text(), "never appears")
	}, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if ok {
		t.Error("predicate should not have been satisfied")
	}
}
