package interaction

import (
	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
	"github.com/tickrpg/server/internal/tile"
)

// FollowManager keeps a player trailing a leader. It waits one tick after
// the request and always paths to the leader's tick-start tile, never its
// live tile, so the follower ends up one step behind.
type FollowManager struct {
	table
	world World
	mover Mover
}

func NewFollowManager(w World, mv Mover, log *zap.Logger) *FollowManager {
	return &FollowManager{
		table: newTable(KindFollow, log),
		world: w,
		mover: mv,
	}
}

func (m *FollowManager) Request(id, leader ecs.EntityID, tick uint64) error {
	if id == leader {
		return ErrSelfTarget
	}
	if k, ok := m.world.Kind(leader); !ok {
		return ErrNoTarget
	} else if k != event.KindPlayer {
		return ErrBadTarget
	}
	m.add(id, leader, tick)
	return nil
}

// Process steers one follower.
func (m *FollowManager) Process(id ecs.EntityID, tick uint64) {
	p, ok := m.pending[id]
	if !ok || tick <= p.CreatedTick {
		return
	}
	safeProcess(m.log, KindFollow, id, func() {
		if !m.world.Alive(p.TargetID) {
			delete(m.pending, id)
			return
		}
		dest, layer, ok := m.mover.TickStartTile(p.TargetID)
		if !ok {
			// leader has never moved; its tile has not changed this tick
			if dest, layer, ok = m.world.Position(p.TargetID); !ok {
				delete(m.pending, id)
				return
			}
		}
		here, hereLayer, _ := m.world.Position(id)
		if here == dest && hereLayer == layer {
			return
		}
		if p.pathed && dest == p.LastTargetTile && layer == p.LastTargetLayer {
			return
		}
		p.LastTargetTile, p.LastTargetLayer = dest, layer
		var err error
		if live, liveLayer, _ := m.world.Position(p.TargetID); live == dest && liveLayer == layer {
			// leader stood still: stop next to it
			if tile.WithinRange(here, dest, 1) && hereLayer == layer {
				p.pathed = true
				return
			}
			_, err = m.mover.MoveWithin(id, layer, dest, 1, tick, event.MoveFromInteraction)
		} else {
			err = m.mover.MoveToward(id, layer, dest, tick, event.MoveFromInteraction)
		}
		if err != nil {
			m.log.Debug("跟隨移動失敗", zap.Stringer("entity", id), zap.Error(err))
			p.pathed = false
			return
		}
		p.pathed = true
	})
}
