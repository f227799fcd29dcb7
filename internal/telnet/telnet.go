// Package telnet implements the minimal client side of RFC 854 needed to talk
// to TWGS-class BBS servers: binary mode, suppress-go-ahead, terminal-type and
// window-size subnegotiation, and IAC escaping. Everything else is declined.
package telnet

import (
	"errors"
	"fmt"
)

// Telnet protocol bytes.
const (
	IAC  byte = 255 // interpret as command
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250 // subnegotiation begin
	GA   byte = 249 // go ahead
	SE   byte = 240 // subnegotiation end

	OptBinary   byte = 0  // RFC 856
	OptEcho     byte = 1  // RFC 857
	OptSGA      byte = 3  // RFC 858 suppress go-ahead
	OptTermType byte = 24 // RFC 1091
	OptNAWS     byte = 31 // RFC 1073

	termTypeIs   byte = 0
	termTypeSend byte = 1
)

// Distinct transport error kinds. Callers match with errors.Is.
var (
	ErrDisconnected      = errors.New("telnet: disconnected")
	ErrConnectionRefused = errors.New("telnet: connection refused")
	ErrWriteFailed       = errors.New("telnet: write failed")
)

// Escape doubles IAC bytes so arbitrary payload survives the wire.
func Escape(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for _, b := range p {
		if b == IAC {
			out = append(out, IAC, IAC)
			continue
		}
		out = append(out, b)
	}
	return out
}

// Unescape collapses doubled IAC bytes back into single bytes.
// It is the inverse of Escape for any payload.
func Unescape(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for i := 0; i < len(p); i++ {
		if p[i] == IAC && i+1 < len(p) && p[i+1] == IAC {
			out = append(out, IAC)
			i++
			continue
		}
		out = append(out, p[i])
	}
	return out
}

func optName(opt byte) string {
	switch opt {
	case OptBinary:
		return "binary"
	case OptEcho:
		return "echo"
	case OptSGA:
		return "sga"
	case OptTermType:
		return "ttype"
	case OptNAWS:
		return "naws"
	}
	return fmt.Sprintf("opt-%d", opt)
}
