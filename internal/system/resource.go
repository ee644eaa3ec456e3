package system

import (
	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
	coresys "github.com/tickrpg/server/internal/core/system"
	"github.com/tickrpg/server/internal/net/packet"
	"github.com/tickrpg/server/internal/tile"
	"github.com/tickrpg/server/internal/world"
)

type gatherSession struct {
	node     ecs.EntityID
	started  uint64
	nextRoll uint64
}

// ResourceSystem runs gathering sessions and node respawn timers. A session
// starts once the pending gather brings the player next to the node; every
// GatherTicks it yields one item and consumes a charge. Any client
// movement, death or despawn ends it. Phase 6 (Resource).
type ResourceSystem struct {
	o        *Orchestrator
	rng      int32
	sessions map[ecs.EntityID]*gatherSession
}

func NewResourceSystem(o *Orchestrator, rng int32) *ResourceSystem {
	r := &ResourceSystem{
		o:        o,
		rng:      max(rng, 1),
		sessions: make(map[ecs.EntityID]*gatherSession),
	}
	event.Subscribe(o.bus, func(e event.MovementIssued) {
		if e.Source == event.MoveFromClient {
			r.Remove(e.EntityID)
		}
	})
	event.Subscribe(o.bus, func(e event.EntityDied) {
		r.Remove(e.EntityID)
	})
	event.Subscribe(o.bus, func(e event.EntityDespawned) {
		r.Remove(e.EntityID)
	})
	return r
}

func (r *ResourceSystem) Phase() coresys.Phase { return coresys.PhaseResource }

// IsNode satisfies interaction.Gatherer.
func (r *ResourceSystem) IsNode(id ecs.EntityID) bool {
	return r.o.world.Node(id) != nil
}

// StartGathering satisfies interaction.Gatherer. The first yield comes
// GatherTicks after the start.
func (r *ResourceSystem) StartGathering(player, node ecs.EntityID, tick uint64) bool {
	n := r.o.world.Node(node)
	p := r.o.world.Player(player)
	if n == nil || n.Depleted || p == nil || p.Dead {
		return false
	}
	if p.Layer != n.Layer || !tile.WithinRange(p.Tile, n.Tile, r.rng) {
		return false
	}
	r.sessions[player] = &gatherSession{
		node:     node,
		started:  tick,
		nextRoll: tick + uint64(max(n.GatherTicks, 1)),
	}
	if h, ok := tile.HeadingTo(p.Tile, n.Tile); ok {
		p.Heading = h
	}
	event.Publish(r.o.bus, event.GatherStarted{PlayerID: player, NodeID: node, Tick: tick})
	return true
}

// Gathering returns the node a player is gathering from.
func (r *ResourceSystem) Gathering(player ecs.EntityID) (ecs.EntityID, bool) {
	s, ok := r.sessions[player]
	if !ok {
		return 0, false
	}
	return s.node, true
}

// Remove ends the session of a player. Satisfies ecs.Removable.
func (r *ResourceSystem) Remove(id ecs.EntityID) {
	delete(r.sessions, id)
}

func (r *ResourceSystem) Len() int { return len(r.sessions) }

func (r *ResourceSystem) Update(tick uint64) {
	o := r.o
	if len(r.sessions) > 0 {
		for _, pid := range o.order.Players() {
			s, ok := r.sessions[pid]
			if !ok {
				continue
			}
			o.safeEach("resource", pid, func() { r.tickSession(pid, s, tick) })
		}
	}

	for _, n := range o.world.NodesByID() {
		if !n.Depleted {
			continue
		}
		if n.RespawnTicks > 0 {
			n.RespawnTicks--
		}
		if n.RespawnTicks == 0 {
			n.Depleted = false
			n.Charges = n.MaxCharges
			o.out.Nearby(n.Layer, n.Tile, packet.ResourceState{NodeID: uint64(n.ID), Depleted: false})
		}
	}
}

func (r *ResourceSystem) tickSession(pid ecs.EntityID, s *gatherSession, tick uint64) {
	o := r.o
	n := o.world.Node(s.node)
	p := o.world.Player(pid)
	if n == nil || n.Depleted || p == nil || p.Dead || p.Layer != n.Layer || !tile.WithinRange(p.Tile, n.Tile, r.rng) {
		delete(r.sessions, pid)
		return
	}
	if tick < s.nextRoll {
		return
	}
	s.nextRoll = tick + uint64(max(n.GatherTicks, 1))

	n.Charges--
	o.out.Direct(pid, packet.GatherResult{PlayerID: uint64(pid), NodeID: uint64(n.ID), Item: n.Yield, Count: 1})
	if n.Charges > 0 {
		return
	}
	r.deplete(n, tick)
}

func (r *ResourceSystem) deplete(n *world.ResourceNode, tick uint64) {
	o := r.o
	n.Depleted = true
	n.Charges = 0
	n.RespawnTicks = max(n.RespawnDelay, 1)
	for pid, s := range r.sessions {
		if s.node == n.ID {
			delete(r.sessions, pid)
		}
	}
	event.Publish(o.bus, event.ResourceDepleted{NodeID: n.ID, Tick: tick})
	o.out.Nearby(n.Layer, n.Tile, packet.ResourceState{NodeID: uint64(n.ID), Depleted: true})
	o.log.Debug("資源點耗盡", zap.Stringer("node", n.ID), zap.String("name", n.Name))
}
