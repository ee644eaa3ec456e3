package interaction

import (
	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
)

// Engager starts and stops combat engagement. *combat.Engine satisfies it.
type Engager interface {
	Engage(attacker, target ecs.EntityID)
	Disengage(attacker ecs.EntityID)
}

// RangeFunc returns an initiator's attack range in tiles.
type RangeFunc func(id ecs.EntityID) int32

// AttackManager walks players into combat range, then hands them to combat.
// Attack requests never time out.
type AttackManager struct {
	table
	world   World
	mover   Mover
	combat  Engager
	rangeOf RangeFunc
}

func NewAttackManager(w World, mv Mover, combat Engager, rangeOf RangeFunc, log *zap.Logger) *AttackManager {
	return &AttackManager{
		table:   newTable(KindAttack, log),
		world:   w,
		mover:   mv,
		combat:  combat,
		rangeOf: rangeOf,
	}
}

// Subscribe re-pursues a target that walked out of an engaged player's range.
func (m *AttackManager) Subscribe(bus *event.Bus) {
	event.Subscribe(bus, func(e event.TargetOutOfRange) {
		if k, ok := m.world.Kind(e.AttackerID); !ok || k != event.KindPlayer {
			return
		}
		if !m.world.Alive(e.TargetID) {
			return
		}
		m.add(e.AttackerID, e.TargetID, e.Tick)
	})
}

// Request queues an attack on target. Any current engagement ends.
func (m *AttackManager) Request(id, target ecs.EntityID, tick uint64) error {
	if id == target {
		return ErrSelfTarget
	}
	if _, ok := m.world.Kind(target); !ok || !m.world.Alive(target) {
		return ErrNoTarget
	}
	m.combat.Disengage(id)
	m.add(id, target, tick)
	return nil
}

// Cancel drops the pending attack and any engagement.
func (m *AttackManager) Cancel(id ecs.EntityID) bool {
	m.combat.Disengage(id)
	return m.table.Cancel(id)
}

// Process checks one player's pending attack.
func (m *AttackManager) Process(id ecs.EntityID, tick uint64) {
	p, ok := m.pending[id]
	if !ok {
		return
	}
	safeProcess(m.log, KindAttack, id, func() {
		at, layer, ok := m.world.Position(p.TargetID)
		if !ok || !m.world.Alive(p.TargetID) {
			delete(m.pending, id)
			return
		}
		rng := max(m.rangeOf(id), 1)
		if inRange(m.world, id, layer, at, rng) {
			delete(m.pending, id)
			m.combat.Engage(id, p.TargetID)
			return
		}
		m.pursue(m.mover, p, layer, at, rng, tick)
	})
}
