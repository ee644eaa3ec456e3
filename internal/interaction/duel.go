package interaction

import (
	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
	"github.com/tickrpg/server/internal/net/packet"
)

// Outbox delivers a message to one player. *broadcast.Queue satisfies it.
type Outbox interface {
	Direct(to ecs.EntityID, msg packet.Message)
}

// DuelManager walks a challenger to within duel range of another player and
// sends the challenge. Never times out.
type DuelManager struct {
	table
	world World
	mover Mover
	out   Outbox
	bus   *event.Bus
	rng   int32
}

func NewDuelManager(w World, mv Mover, out Outbox, bus *event.Bus, rng int32, log *zap.Logger) *DuelManager {
	return &DuelManager{
		table: newTable(KindDuel, log),
		world: w,
		mover: mv,
		out:   out,
		bus:   bus,
		rng:   max(rng, 1),
	}
}

func (m *DuelManager) Request(id, target ecs.EntityID, tick uint64) error {
	if id == target {
		return ErrSelfTarget
	}
	k, ok := m.world.Kind(target)
	if !ok || !m.world.Alive(target) {
		return ErrNoTarget
	}
	if k != event.KindPlayer {
		return ErrBadTarget
	}
	m.add(id, target, tick)
	return nil
}

// Process checks one player's pending challenge.
func (m *DuelManager) Process(id ecs.EntityID, tick uint64) {
	p, ok := m.pending[id]
	if !ok {
		return
	}
	safeProcess(m.log, KindDuel, id, func() {
		at, layer, ok := m.world.Position(p.TargetID)
		if !ok || !m.world.Alive(p.TargetID) {
			delete(m.pending, id)
			return
		}
		if inRange(m.world, id, layer, at, m.rng) {
			delete(m.pending, id)
			event.Publish(m.bus, event.DuelChallenged{ChallengerID: id, TargetID: p.TargetID, Tick: tick})
			m.out.Direct(p.TargetID, packet.DuelRequest{ChallengerID: uint64(id), TargetID: uint64(p.TargetID)})
			return
		}
		m.pursue(m.mover, p, layer, at, m.rng, tick)
	})
}
