package bot

import (
	"fmt"
	"time"

	"github.com/ehrlich-b/tradewarden/internal/game"
	"github.com/ehrlich-b/tradewarden/internal/logger"
	"github.com/ehrlich-b/tradewarden/internal/names"
	"github.com/ehrlich-b/tradewarden/internal/store"
)

// KnowledgeSharing selects what a successor inherits.
type KnowledgeSharing string

const (
	ShareShared      KnowledgeSharing = "shared"
	ShareIndependent KnowledgeSharing = "independent"
	ShareInherit     KnowledgeSharing = "inherit_on_death"
)

// Lifecycle creates characters and handles succession after death. The name
// generator's used-set is seeded from and persisted to the store.
type Lifecycle struct {
	Store      *store.Store
	Names      *names.Generator
	Complexity names.Complexity
	ShipNames  bool
	ShipNums   bool
	Sharing    KnowledgeSharing
}

// NewLifecycle seeds the generator with every name the store has seen.
func NewLifecycle(st *store.Store, gen *names.Generator, complexity names.Complexity, sharing KnowledgeSharing) (*Lifecycle, error) {
	used, err := st.UsedNames()
	if err != nil {
		return nil, err
	}
	gen.MarkUsed(used...)
	return &Lifecycle{
		Store:      st,
		Names:      gen,
		Complexity: complexity,
		Sharing:    sharing,
	}, nil
}

// CreateCharacter draws a unique name, reserves it, and persists the record.
func (l *Lifecycle) CreateCharacter() (*store.Character, error) {
	for attempt := 0; attempt < 8; attempt++ {
		name, err := l.Names.Character(l.Complexity)
		if err != nil {
			return nil, err
		}
		fresh, err := l.Store.ReserveName(name)
		if err != nil {
			return nil, err
		}
		if !fresh {
			continue // raced with another process; draw again
		}
		c := &store.Character{Name: name, CreatedAt: time.Now().UTC()}
		if l.ShipNames {
			ship := l.Names.Ship(l.ShipNums)
			c.ShipName = &ship
		}
		if err := l.Store.UpsertCharacter(c); err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("bot: could not reserve a fresh character name")
}

// Succeed records the death and builds the successor. The dead character's
// knowledge is carried over only under inherit_on_death; under shared the
// swarm graph already has it, and under independent it dies with them.
func (l *Lifecycle) Succeed(dead *Bot) (*store.Character, *game.Knowledge, error) {
	if err := l.Store.RecordDeath(dead.cfg.CharacterName, true); err != nil {
		return nil, nil, err
	}

	next, err := l.CreateCharacter()
	if err != nil {
		return nil, nil, err
	}

	var inherited *game.Knowledge
	if l.Sharing == ShareInherit {
		inherited = dead.Knowledge().Clone()
	}
	logger.Info("successor created",
		"dead", dead.cfg.CharacterName, "next", next.Name,
		"inherit", l.Sharing == ShareInherit)
	return next, inherited, nil
}
