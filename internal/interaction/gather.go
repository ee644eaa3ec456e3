package interaction

import (
	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/core/ecs"
)

// Gatherer starts a gathering session once the player stands at the node.
// The resource system implements it.
type Gatherer interface {
	IsNode(id ecs.EntityID) bool
	StartGathering(player, node ecs.EntityID, tick uint64) bool
}

// GatherManager walks a player to a resource node. Unlike the other kinds
// it gives up after a fixed number of ticks.
type GatherManager struct {
	table
	world    World
	mover    Mover
	gatherer Gatherer
	rng      int32
	timeout  uint64
}

func NewGatherManager(w World, mv Mover, g Gatherer, rng int32, timeoutTicks uint64, log *zap.Logger) *GatherManager {
	return &GatherManager{
		table:    newTable(KindGather, log),
		world:    w,
		mover:    mv,
		gatherer: g,
		rng:      max(rng, 1),
		timeout:  timeoutTicks,
	}
}

func (m *GatherManager) Request(id, node ecs.EntityID, tick uint64) error {
	if !m.gatherer.IsNode(node) {
		return ErrBadTarget
	}
	if !m.world.Alive(node) {
		return ErrNoTarget
	}
	m.add(id, node, tick)
	return nil
}

// Process checks one player's pending gather.
func (m *GatherManager) Process(id ecs.EntityID, tick uint64) {
	p, ok := m.pending[id]
	if !ok {
		return
	}
	safeProcess(m.log, KindGather, id, func() {
		if m.timeout > 0 && tick-p.CreatedTick > m.timeout {
			m.log.Debug("採集請求逾時", zap.Stringer("entity", id), zap.Stringer("node", p.TargetID))
			delete(m.pending, id)
			return
		}
		at, layer, ok := m.world.Position(p.TargetID)
		if !ok || !m.world.Alive(p.TargetID) {
			delete(m.pending, id)
			return
		}
		if inRange(m.world, id, layer, at, m.rng) {
			delete(m.pending, id)
			m.gatherer.StartGathering(id, p.TargetID, tick)
			return
		}
		m.pursue(m.mover, p, layer, at, m.rng, tick)
	})
}
