package game

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Observation is what one orientation pass extracted from a full snapshot.
// Nil pointer fields mean "not on screen".
type Observation struct {
	Sector    *int
	Warps     []int
	PortClass PortClass
	HasPort   bool
	Credits   *int
	HoldsUsed *int
	HoldsAll  *int
	Turns     *int
	Quotes    map[Commodity]Quote
	Combat    bool
	Died      bool
}

var (
	// Sector header: take the LAST occurrence on screen; earlier ones are
	// scroll-buffer staleness.
	sectorRe = regexp.MustCompile(`Sector\s*[:\[]\s*(\d+)`)
	warpsRe  = regexp.MustCompile(`Warps to Sector\(s\)\s*:\s*([0-9()\s-]+)`)
	warpNum  = regexp.MustCompile(`\d+`)
	portRe   = regexp.MustCompile(`Class\s+(\d)\s+\(([BS]{3})\)`)

	creditsRe = regexp.MustCompile(`(?i)Credits?\s*[:=]?\s*([\d,]+)`)
	holdsRe   = regexp.MustCompile(`(?i)Holds?\s*[:=]?\s*(\d+)\s*(?:/|of)\s*(\d+)`)
	turnsRe   = regexp.MustCompile(`(?i)Turns?\s*(?:left|remaining|to\s+play)?\s*[:=]?\s*([\d,]+)`)

	// Trading screens quote per-unit prices like "at 15 credits per unit".
	quoteRe = regexp.MustCompile(`(?i)(Fuel Ore|Organics|Equipment)[^\n]*?(\d+)\s+credits?\s+(?:per|each)`)

	combatRe = regexp.MustCompile(`(?i)(under attack|fighters (?:attack|destroyed)|shields? (?:down|hit))`)
	deathRe  = regexp.MustCompile(`(?i)(your ship (?:was|has been) destroyed|you have been killed|ship destroyed!)`)
)

// Extract runs the semantic catalog over a full screen text. It never errors;
// absence of a pattern is simply a nil field.
func Extract(text string) *Observation {
	obs := &Observation{Quotes: make(map[Commodity]Quote)}

	if ms := sectorRe.FindAllStringSubmatch(text, -1); len(ms) > 0 {
		last := ms[len(ms)-1]
		if n, err := strconv.Atoi(last[1]); err == nil {
			obs.Sector = &n
		}
	}

	if m := warpsRe.FindStringSubmatch(text); m != nil {
		for _, w := range warpNum.FindAllString(m[1], -1) {
			if n, err := strconv.Atoi(w); err == nil {
				obs.Warps = append(obs.Warps, n)
			}
		}
	}

	if m := portRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		if pc, err := ClassForNumber(n); err == nil {
			// prefer the printed letter code when it is a known class
			if letter := PortClass(m[2]); letter.Valid() {
				pc = letter
			}
			obs.PortClass = pc
			obs.HasPort = true
		}
	}

	if m := creditsRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			obs.Credits = &n
		}
	}
	if m := holdsRe.FindStringSubmatch(text); m != nil {
		used, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil {
			obs.HoldsUsed = &used
			obs.HoldsAll = &total
		}
	}
	if m := turnsRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			obs.Turns = &n
		}
	}

	now := time.Now().Unix()
	for _, m := range quoteRe.FindAllStringSubmatch(text, -1) {
		price, err := strconv.Atoi(m[2])
		if err != nil || price <= 0 {
			continue
		}
		switch strings.ToLower(m[1]) {
		case "fuel ore":
			obs.Quotes[Fuel] = Quote{Price: price, Observed: now}
		case "organics":
			obs.Quotes[Organics] = Quote{Price: price, Observed: now}
		case "equipment":
			obs.Quotes[Equipment] = Quote{Price: price, Observed: now}
		}
	}

	obs.Combat = combatRe.MatchString(text)
	obs.Died = deathRe.MatchString(text)

	return obs
}

// Apply folds an observation into state and knowledge. Returns true if the
// observation confirmed the current sector.
func (gs *GameState) Apply(obs *Observation, know *Knowledge) bool {
	confirmed := false
	if obs.Sector != nil {
		gs.CurrentSector = *obs.Sector
		gs.SectorConfirmed = true
		confirmed = true
		know.MarkVisited(gs.CurrentSector)
	} else {
		gs.SectorConfirmed = false
	}

	if obs.Credits != nil {
		gs.Credits = *obs.Credits
		gs.CreditsVerified = true
		gs.CreditsLastVerified = time.Now()
	}
	if obs.HoldsUsed != nil {
		gs.HoldsUsed = *obs.HoldsUsed
	}
	if obs.HoldsAll != nil {
		gs.HoldsTotal = *obs.HoldsAll
	}
	if obs.Turns != nil {
		gs.TurnsRemaining = *obs.Turns
	}

	if confirmed {
		data := NewSectorKnowledge(gs.CurrentSector)
		for _, w := range obs.Warps {
			data.Warps[w] = true
		}
		if obs.HasPort {
			data.HasPort = true
			data.PortClass = obs.PortClass
		}
		for c, q := range obs.Quotes {
			data.Quotes[c] = q
		}
		if !data.Empty() {
			// never an empty marker; empty marks poison the cache
			know.MarkScanned(gs.CurrentSector, data)
		}
	}

	local := know.Peek(gs.CurrentSector)
	gs.RecomputeNetWorth(local)
	return confirmed
}
