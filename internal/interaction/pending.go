package interaction

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
	"github.com/tickrpg/server/internal/tile"
)

var (
	ErrNoTarget   = errors.New("interaction target not found")
	ErrSelfTarget = errors.New("interaction targets self")
	ErrBadTarget  = errors.New("interaction target has the wrong kind")
)

// Kind tags a pending interaction.
type Kind uint8

const (
	KindAttack Kind = iota + 1
	KindGather
	KindFollow
	KindDuel
)

func (k Kind) String() string {
	switch k {
	case KindAttack:
		return "attack"
	case KindGather:
		return "gather"
	case KindFollow:
		return "follow"
	case KindDuel:
		return "duel"
	}
	return "unknown"
}

// Pending is a walk-then-act request waiting for its initiator to get in range.
type Pending struct {
	Kind            Kind
	InitiatorID     ecs.EntityID
	TargetID        ecs.EntityID
	LastTargetTile  tile.Coord
	LastTargetLayer int32
	CreatedTick     uint64
	pathed          bool // a movement toward LastTargetTile was issued
}

// World is the registry view the managers need. *world.State satisfies it.
type World interface {
	Position(id ecs.EntityID) (tile.Coord, int32, bool)
	Alive(id ecs.EntityID) bool
	Kind(id ecs.EntityID) (event.EntityKind, bool)
}

// Mover issues player movement. *movement.PlayerEngine satisfies it.
type Mover interface {
	MoveToward(id ecs.EntityID, layer int32, dest tile.Coord, tick uint64, src event.MoveSource) error
	MoveWithin(id ecs.EntityID, layer int32, target tile.Coord, rng int32, tick uint64, src event.MoveSource) (bool, error)
	TickStartTile(id ecs.EntityID) (tile.Coord, int32, bool)
	IsMoving(id ecs.EntityID) bool
}

// table is the per-kind pending store shared by all managers.
type table struct {
	kind    Kind
	pending map[ecs.EntityID]*Pending
	log     *zap.Logger
}

func newTable(kind Kind, log *zap.Logger) table {
	return table{
		kind:    kind,
		pending: make(map[ecs.EntityID]*Pending),
		log:     log,
	}
}

func (t *table) add(initiator, target ecs.EntityID, tick uint64) *Pending {
	p := &Pending{
		Kind:        t.kind,
		InitiatorID: initiator,
		TargetID:    target,
		CreatedTick: tick,
	}
	t.pending[initiator] = p
	return p
}

// Get returns the pending entry of an initiator.
func (t *table) Get(id ecs.EntityID) (*Pending, bool) {
	p, ok := t.pending[id]
	return p, ok
}

func (t *table) Has(id ecs.EntityID) bool {
	_, ok := t.pending[id]
	return ok
}

// Cancel drops the initiator's entry. Cancelling nothing is a no-op.
func (t *table) Cancel(id ecs.EntityID) bool {
	if _, ok := t.pending[id]; !ok {
		return false
	}
	delete(t.pending, id)
	return true
}

func (t *table) Len() int { return len(t.pending) }

// Remove satisfies ecs.Removable: drops entries the entity started and
// entries that target it.
func (t *table) Remove(id ecs.EntityID) {
	delete(t.pending, id)
	for initiator, p := range t.pending {
		if p.TargetID == id {
			delete(t.pending, initiator)
		}
	}
}

// inRange reports whether the initiator stands within rng of the target on
// the same layer, using the combat range rule.
func inRange(w World, initiator ecs.EntityID, layer int32, at tile.Coord, rng int32) bool {
	c, l, ok := w.Position(initiator)
	return ok && l == layer && tile.WithinRange(c, at, rng)
}

// pursue keeps the initiator walking toward the target's tile. A new path
// is requested only when the target moved or the previous path ran out.
// A failed path ends this tick's work only; the entry is retried next tick.
func (t *table) pursue(mv Mover, p *Pending, layer int32, at tile.Coord, rng int32, tick uint64) {
	moved := at != p.LastTargetTile || layer != p.LastTargetLayer
	if !moved && p.pathed && mv.IsMoving(p.InitiatorID) {
		return
	}
	p.LastTargetTile, p.LastTargetLayer = at, layer
	if _, err := mv.MoveWithin(p.InitiatorID, layer, at, rng, tick, event.MoveFromInteraction); err != nil {
		t.log.Debug("互動移動失敗",
			zap.Stringer("kind", t.kind),
			zap.Stringer("entity", p.InitiatorID),
			zap.Error(err),
		)
		p.pathed = false
		return
	}
	p.pathed = true
}

// safeProcess isolates one initiator's processing from the rest of the tick.
func safeProcess(log *zap.Logger, kind Kind, id ecs.EntityID, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("互動處理 panic",
				zap.Stringer("kind", kind),
				zap.Stringer("entity", id),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn()
}
