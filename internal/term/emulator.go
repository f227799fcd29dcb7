// Package term maintains the 80x25 character grid an ANSI BBS paints. It
// decodes CP437, interprets the cursor-movement and erase subset of CSI, and
// strips SGR so color never reaches the text grid. The emulator is a pure
// function of its input byte history and never blocks.
package term

import (
	"hash/fnv"
	"strings"
	"time"
)

const (
	DefaultCols = 80
	DefaultRows = 25
)

// Snapshot is a deterministic rendering of the grid: the visible rows with
// trailing spaces stripped, cursor position, and a stable hash of the text.
// IsIdle and ChangeAge are filled in by the session, which owns byte timing.
type Snapshot struct {
	Rows        []string
	CursorX     int
	CursorY     int
	Hash        uint64
	Taken       time.Time
	CursorAtEnd bool
	IsIdle      bool
	ChangeAge   time.Duration
}

// Text joins the visible rows with newlines.
func (s *Snapshot) Text() string {
	return strings.Join(s.Rows, "\n")
}

// LastRows returns the bottom n rows joined with newlines.
func (s *Snapshot) LastRows(n int) string {
	if n >= len(s.Rows) {
		return s.Text()
	}
	return strings.Join(s.Rows[len(s.Rows)-n:], "\n")
}

type csiParser struct {
	active  bool
	private bool
	params  []int
	cur     int
	hasCur  bool
}

// Emulator interprets a byte stream into the grid. Not safe for concurrent
// use; the owning session serializes all access.
type Emulator struct {
	cols, rows int
	grid       [][]rune
	cx, cy     int

	esc bool
	csi csiParser
}

// NewEmulator returns an emulator with a cols x rows grid of spaces.
func NewEmulator(cols, rows int) *Emulator {
	if cols <= 0 {
		cols = DefaultCols
	}
	if rows <= 0 {
		rows = DefaultRows
	}
	e := &Emulator{cols: cols, rows: rows}
	e.grid = make([][]rune, rows)
	for y := range e.grid {
		e.grid[y] = blankRow(cols)
	}
	return e
}

func blankRow(cols int) []rune {
	r := make([]rune, cols)
	for i := range r {
		r[i] = ' '
	}
	return r
}

// Write feeds bytes into the emulator. It always consumes the full input.
func (e *Emulator) Write(p []byte) (int, error) {
	for _, b := range p {
		e.consume(b)
	}
	return len(p), nil
}

func (e *Emulator) consume(b byte) {
	if e.csi.active {
		e.consumeCSI(b)
		return
	}
	if e.esc {
		e.esc = false
		switch b {
		case '[':
			e.csi = csiParser{active: true}
		case 'D': // IND
			e.lineFeed()
		case 'M': // RI
			if e.cy > 0 {
				e.cy--
			}
		case 'c': // RIS
			e.reset()
		}
		// other escape finals ignored
		return
	}

	switch b {
	case 0x1b:
		e.esc = true
	case '\r':
		e.cx = 0
	case '\n':
		e.lineFeed()
	case '\b':
		if e.cx > 0 {
			e.cx--
		}
	case '\t':
		e.cx = (e.cx/8 + 1) * 8
		if e.cx >= e.cols {
			e.cx = e.cols - 1
		}
	case 0x00, 0x07, 0x0e, 0x0f:
		// NUL, BEL, shift-in/out: invisible
	default:
		if b < 0x20 {
			return
		}
		e.put(decodeCP437(b))
	}
}

func (e *Emulator) put(r rune) {
	if e.cx >= e.cols {
		// deferred wrap: column overflow starts a new line
		e.cx = 0
		e.lineFeed()
	}
	e.grid[e.cy][e.cx] = r
	e.cx++
}

// lineFeed advances a row, scrolling the grid up past the last row.
func (e *Emulator) lineFeed() {
	if e.cy < e.rows-1 {
		e.cy++
		return
	}
	copy(e.grid, e.grid[1:])
	e.grid[e.rows-1] = blankRow(e.cols)
}

func (e *Emulator) consumeCSI(b byte) {
	p := &e.csi
	switch {
	case b >= '0' && b <= '9':
		p.cur = p.cur*10 + int(b-'0')
		p.hasCur = true
	case b == ';':
		p.params = append(p.params, p.cur)
		p.cur, p.hasCur = 0, false
	case b == '?':
		p.private = true
	case b >= 0x40 && b <= 0x7e:
		if p.hasCur || len(p.params) > 0 {
			p.params = append(p.params, p.cur)
		}
		if !p.private {
			e.dispatchCSI(b, p.params)
		}
		p.active = false
	default:
		// intermediate bytes ignored
	}
}

func param(params []int, i, def int) int {
	if i < len(params) && params[i] > 0 {
		return params[i]
	}
	return def
}

func (e *Emulator) dispatchCSI(final byte, params []int) {
	switch final {
	case 'A': // CUU
		e.cy = max(0, e.cy-param(params, 0, 1))
	case 'B': // CUD
		e.cy = min(e.rows-1, e.cy+param(params, 0, 1))
	case 'C': // CUF
		e.cx = min(e.cols-1, e.cx+param(params, 0, 1))
	case 'D': // CUB
		e.cx = max(0, e.cx-param(params, 0, 1))
	case 'H', 'f': // CUP / HVP, 1-based
		e.cy = clamp(param(params, 0, 1)-1, 0, e.rows-1)
		e.cx = clamp(param(params, 1, 1)-1, 0, e.cols-1)
	case 'J': // ED
		e.eraseDisplay(paramAt(params, 0))
	case 'K': // EL
		e.eraseLine(paramAt(params, 0))
	case 'm': // SGR: stripped, never rendered
	}
}

// paramAt is like param but treats a missing value as 0 (ED/EL semantics).
func paramAt(params []int, i int) int {
	if i < len(params) {
		return params[i]
	}
	return 0
}

func (e *Emulator) eraseDisplay(mode int) {
	switch mode {
	case 0: // cursor to end
		e.eraseLine(0)
		for y := e.cy + 1; y < e.rows; y++ {
			e.grid[y] = blankRow(e.cols)
		}
	case 1: // start to cursor
		e.eraseLine(1)
		for y := 0; y < e.cy; y++ {
			e.grid[y] = blankRow(e.cols)
		}
	case 2:
		for y := range e.grid {
			e.grid[y] = blankRow(e.cols)
		}
		// TWGS clears then homes via CUP, but some art clears alone;
		// leave the cursor where it is per ECMA-48.
	}
}

func (e *Emulator) eraseLine(mode int) {
	row := e.grid[e.cy]
	switch mode {
	case 0:
		for x := e.cx; x < e.cols; x++ {
			row[x] = ' '
		}
	case 1:
		for x := 0; x <= e.cx && x < e.cols; x++ {
			row[x] = ' '
		}
	case 2:
		e.grid[e.cy] = blankRow(e.cols)
	}
}

func (e *Emulator) reset() {
	for y := range e.grid {
		e.grid[y] = blankRow(e.cols)
	}
	e.cx, e.cy = 0, 0
}

// Snapshot renders the grid. The hash covers only the visible text after
// stripping trailing spaces, so two emulators fed the same bytes agree.
func (e *Emulator) Snapshot() *Snapshot {
	rows := make([]string, e.rows)
	lastNonBlank := -1
	for y, row := range e.grid {
		rows[y] = strings.TrimRight(string(row), " ")
		if rows[y] != "" {
			lastNonBlank = y
		}
	}

	h := fnv.New64a()
	for i, r := range rows {
		if i > 0 {
			h.Write([]byte{'\n'})
		}
		h.Write([]byte(r))
	}

	cx := e.cx
	if cx > e.cols-1 {
		cx = e.cols - 1
	}
	snap := &Snapshot{
		Rows:    rows,
		CursorX: cx,
		CursorY: e.cy,
		Hash:    h.Sum64(),
		Taken:   time.Now(),
	}
	// cursor_at_end: at or past the last rendered character of its row, on
	// the last non-blank row. Prompts often end in a space the render trims,
	// so "at or past" rather than exactly one-past.
	if e.cy == lastNonBlank || (lastNonBlank == -1 && e.cy == 0) {
		rendered := len([]rune(rows[e.cy]))
		snap.CursorAtEnd = e.cx >= rendered
	}
	return snap
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
