package telnet

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestEscapeRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("plain text"),
		{IAC},
		{IAC, IAC},
		{0, 1, IAC, 2, IAC, IAC, 3, 255},
		bytes.Repeat([]byte{IAC}, 17),
	}
	for _, p := range cases {
		got := Unescape(Escape(p))
		if !bytes.Equal(got, p) {
			t.Errorf("round trip %v: got %v", p, got)
		}
	}
}

func TestEscapeNoLoneIAC(t *testing.T) {
	p := []byte{1, IAC, 2, IAC, IAC, 3}
	esc := Escape(p)
	for i := 0; i < len(esc); i++ {
		if esc[i] != IAC {
			continue
		}
		if i+1 >= len(esc) || esc[i+1] != IAC {
			t.Fatalf("lone IAC at %d in %v", i, esc)
		}
		i++ // skip the pair
	}
}

// pipeConn returns a telnet Conn over one end of a pipe plus the raw peer end.
func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return NewConn(client), server
}

func readAll(t *testing.T, c *Conn, want int) []byte {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(time.Second))
	var out []byte
	buf := make([]byte, 256)
	for len(out) < want {
		n, err := c.Read(buf)
		if err != nil {
			t.Fatalf("read: %v (got %q)", err, out)
		}
		out = append(out, buf[:n]...)
	}
	return out
}

func TestReadStripsNegotiation(t *testing.T) {
	c, server := pipeConn(t)

	go func() {
		server.Write([]byte{IAC, WILL, OptEcho})
		server.Write([]byte("he"))
		server.Write([]byte{IAC, DO, OptBinary})
		server.Write([]byte("llo"))
	}()

	// Drain the client's negotiation answers so the pipe doesn't block.
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	got := readAll(t, c, 5)
	if string(got) != "hello" {
		t.Errorf("payload = %q, want hello", got)
	}
}

func TestNegotiationAnswers(t *testing.T) {
	c, server := pipeConn(t)

	answers := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		var acc []byte
		deadline := time.After(time.Second)
		for {
			server.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
			n, err := server.Read(buf)
			acc = append(acc, buf[:n]...)
			if err != nil || len(acc) >= 6 {
				answers <- acc
				return
			}
			select {
			case <-deadline:
				answers <- acc
				return
			default:
			}
		}
	}()

	go server.Write([]byte{IAC, DO, OptBinary, IAC, DO, 99})
	buf := make([]byte, 16)
	c.SetReadDeadline(time.Now().Add(time.Second))
	c.Read(buf)

	got := <-answers
	wantWill := []byte{IAC, WILL, OptBinary}
	wantWont := []byte{IAC, WONT, 99}
	if !bytes.Contains(got, wantWill) {
		t.Errorf("expected WILL binary in %v", got)
	}
	if !bytes.Contains(got, wantWont) {
		t.Errorf("expected WONT 99 in %v", got)
	}
}

func TestTermTypeSubnegotiation(t *testing.T) {
	c, server := pipeConn(t)

	answers := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		var acc []byte
		for len(acc) < 10 {
			server.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			n, err := server.Read(buf)
			acc = append(acc, buf[:n]...)
			if err != nil {
				break
			}
		}
		answers <- acc
	}()

	go server.Write([]byte{IAC, SB, OptTermType, termTypeSend, IAC, SE})
	buf := make([]byte, 16)
	c.SetReadDeadline(time.Now().Add(time.Second))
	c.Read(buf)

	got := <-answers
	want := buildTermType("ANSI")
	if !bytes.Contains(got, want) {
		t.Errorf("expected TTYPE IS ANSI (%v) in %v", want, got)
	}
}

func TestEscapedIACSurvivesRead(t *testing.T) {
	c, server := pipeConn(t)

	go server.Write([]byte{1, IAC, IAC, 2})

	got := readAll(t, c, 3)
	want := []byte{1, IAC, 2}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
