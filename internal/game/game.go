// Package game holds the semantic model of a TW2002 session: commodities,
// port classes, per-sector knowledge, and the bot's own state. Everything
// here is derived from screen text; there is no out-of-band truth.
package game

import (
	"errors"
	"fmt"
)

// Orientation error kinds.
var (
	ErrOrientationLost   = errors.New("game: orientation lost")
	ErrLoopDetected      = errors.New("game: prompt loop detected")
	ErrKnowledgePoisoned = errors.New("game: empty mark where data expected")
)

// Commodity is one of the three tradeable goods.
type Commodity string

const (
	Fuel      Commodity = "fuel"
	Organics  Commodity = "organics"
	Equipment Commodity = "equipment"
)

// Commodities in port-class position order.
var Commodities = [3]Commodity{Fuel, Organics, Equipment}

// PortClass is the 3-letter buy/sell code over {B, S}: position 1 fuel,
// 2 organics, 3 equipment. B means the commodity can be bought at this
// port, S that it can be sold to it.
type PortClass string

// The nine recognized classes. Special covers class-0/9 ports (StarDock and
// friends) that trade none of the three commodities.
const (
	ClassBBS     PortClass = "BBS"
	ClassBSB     PortClass = "BSB"
	ClassSBB     PortClass = "SBB"
	ClassSSB     PortClass = "SSB"
	ClassSBS     PortClass = "SBS"
	ClassBSS     PortClass = "BSS"
	ClassSSS     PortClass = "SSS"
	ClassBBB     PortClass = "BBB"
	ClassSpecial PortClass = "special"
)

// Valid reports whether the class is one of the recognized codes.
func (pc PortClass) Valid() bool {
	switch pc {
	case ClassBBS, ClassBSB, ClassSBB, ClassSSB, ClassSBS, ClassBSS, ClassSSS, ClassBBB, ClassSpecial:
		return true
	}
	return false
}

// Buys reports whether the commodity is buyable at a port of this class.
func (pc PortClass) Buys(c Commodity) bool {
	return pc.side(c) == 'B'
}

// Sells reports whether the commodity is sellable at a port of this class.
func (pc PortClass) Sells(c Commodity) bool {
	return pc.side(c) == 'S'
}

func (pc PortClass) side(c Commodity) byte {
	if len(pc) != 3 {
		return 0
	}
	for i, cc := range Commodities {
		if cc == c {
			return pc[i]
		}
	}
	return 0
}

// ClassForNumber maps the numeric class TWGS prints to its letter code.
func ClassForNumber(n int) (PortClass, error) {
	classes := map[int]PortClass{
		1: ClassBBS, 2: ClassBSB, 3: ClassSBB, 4: ClassSSB,
		5: ClassSBS, 6: ClassBSS, 7: ClassSSS, 8: ClassBBB,
		0: ClassSpecial, 9: ClassSpecial,
	}
	pc, ok := classes[n]
	if !ok {
		return "", fmt.Errorf("game: unknown port class %d", n)
	}
	return pc, nil
}

// Quote is an observed per-unit price at a port.
type Quote struct {
	Price    int
	Observed int64 // unix seconds; newer observations replace older
}

// TradeSide distinguishes buying from the port vs selling to it.
type TradeSide string

const (
	Buy  TradeSide = "buy"
	Sell TradeSide = "sell"
)
