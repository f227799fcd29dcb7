package telnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/logger"
)

// negotiation state machine, carried across Read calls.
type parseState int

const (
	stateData parseState = iota
	stateIAC
	stateWill
	stateWont
	stateDo
	stateDont
	stateSB
	stateSBIAC
)

// Conn wraps a net.Conn with telnet protocol awareness. Read strips and
// answers IAC negotiation transparently; Write escapes IAC bytes in payload.
// The connection is binary-clean: no charset decoding happens here.
type Conn struct {
	conn net.Conn

	writeMu sync.Mutex

	termType string
	cols     uint16
	rows     uint16

	// read-side state
	state    parseState
	sbOption byte
	sbData   []byte
	agreed   map[byte]bool // options we answered WILL to

	rbuf []byte
}

// Dial connects to a telnet server. Connect failure, EOF and TCP reset map to
// distinct error kinds.
func Dial(ctx context.Context, host string, port int) (*Conn, error) {
	var d net.Dialer
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: %s: %v", ErrConnectionRefused, addr, err)
		}
		return nil, fmt.Errorf("telnet: dial %s: %w", addr, err)
	}
	return NewConn(nc), nil
}

// NewConn wraps an existing connection. The terminal reports itself as ANSI
// at 80x25 on demand.
func NewConn(nc net.Conn) *Conn {
	return &Conn{
		conn:     nc,
		termType: "ANSI",
		cols:     80,
		rows:     25,
		agreed:   make(map[byte]bool),
	}
}

// Write sends payload with IAC bytes doubled. The escaped payload goes out in
// a single write so an IAC sequence is never split across packets.
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(Escape(p)); err != nil {
		return 0, classifyErr(err)
	}
	return len(p), nil
}

// Read returns decoded payload bytes, answering any option negotiation
// encountered in the stream. A zero-byte read with nil error is possible when
// the stream contained only negotiation.
func (c *Conn) Read(p []byte) (int, error) {
	if len(c.rbuf) == 0 {
		raw := make([]byte, 4096)
		n, err := c.conn.Read(raw)
		if n > 0 {
			c.rbuf = append(c.rbuf, c.process(raw[:n])...)
		}
		if err != nil {
			if len(c.rbuf) == 0 {
				return 0, classifyErr(err)
			}
		}
	}
	n := copy(p, c.rbuf)
	c.rbuf = c.rbuf[n:]
	return n, nil
}

// SetReadDeadline sets the deadline on the underlying connection.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// process runs the IAC state machine over raw bytes, emitting payload and
// writing negotiation answers as a side effect.
func (c *Conn) process(raw []byte) []byte {
	var out []byte
	for _, b := range raw {
		switch c.state {
		case stateData:
			if b == IAC {
				c.state = stateIAC
				continue
			}
			out = append(out, b)
		case stateIAC:
			switch b {
			case IAC:
				out = append(out, IAC) // escaped data byte
				c.state = stateData
			case WILL:
				c.state = stateWill
			case WONT:
				c.state = stateWont
			case DO:
				c.state = stateDo
			case DONT:
				c.state = stateDont
			case SB:
				c.state = stateSB
				c.sbData = c.sbData[:0]
			default:
				// GA, NOP and friends carry no option byte
				c.state = stateData
			}
		case stateWill:
			c.onWill(b)
			c.state = stateData
		case stateWont:
			c.state = stateData
		case stateDo:
			c.onDo(b)
			c.state = stateData
		case stateDont:
			c.state = stateData
		case stateSB:
			if b == IAC {
				c.state = stateSBIAC
				continue
			}
			if len(c.sbData) == 0 {
				c.sbOption = b
			}
			c.sbData = append(c.sbData, b)
		case stateSBIAC:
			if b == SE {
				c.onSubneg()
				c.state = stateData
			} else {
				c.sbData = append(c.sbData, b)
				c.state = stateSB
			}
		}
	}
	return out
}

// onDo answers a server DO: we WILL the options BBS servers need and WONT
// everything else.
func (c *Conn) onDo(opt byte) {
	switch opt {
	case OptBinary, OptSGA, OptTermType, OptNAWS:
		if !c.agreed[opt] {
			c.agreed[opt] = true
			c.sendCmd(WILL, opt)
		}
		if opt == OptNAWS {
			c.sendNAWS()
		}
	default:
		logger.Debug("telnet: declining option", "opt", optName(opt))
		c.sendCmd(WONT, opt)
	}
}

// onWill answers a server WILL: accept binary/SGA/echo, refuse the rest.
func (c *Conn) onWill(opt byte) {
	switch opt {
	case OptBinary, OptSGA, OptEcho:
		c.sendCmd(DO, opt)
	default:
		logger.Debug("telnet: declining option", "opt", optName(opt))
		c.sendCmd(DONT, opt)
	}
}

// onSubneg handles TTYPE SEND by answering IS "ANSI".
func (c *Conn) onSubneg() {
	if len(c.sbData) >= 2 && c.sbOption == OptTermType && c.sbData[1] == termTypeSend {
		c.sendRaw(buildTermType(c.termType))
	}
}

func (c *Conn) sendNAWS() {
	// IAC SB NAWS w-hi w-lo h-hi h-lo IAC SE
	msg := []byte{IAC, SB, OptNAWS,
		byte(c.cols >> 8), byte(c.cols & 0xff),
		byte(c.rows >> 8), byte(c.rows & 0xff),
		IAC, SE}
	c.sendRaw(msg)
}

func (c *Conn) sendCmd(cmd, opt byte) {
	c.sendRaw([]byte{IAC, cmd, opt})
}

func (c *Conn) sendRaw(msg []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(msg); err != nil {
		logger.Debug("telnet: negotiation write failed", "err", err)
	}
}

func buildTermType(name string) []byte {
	msg := []byte{IAC, SB, OptTermType, termTypeIs}
	msg = append(msg, []byte(name)...)
	msg = append(msg, IAC, SE)
	return msg
}

// classifyErr folds transport errors into the package's error kinds. Timeouts
// pass through untouched so pollers can distinguish them.
func classifyErr(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return err
	}
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	case strings.Contains(err.Error(), "connection refused"):
		return fmt.Errorf("%w: %v", ErrConnectionRefused, err)
	}
	return fmt.Errorf("%w: %v", ErrDisconnected, err)
}
