package system

import (
	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
	"github.com/tickrpg/server/internal/world"
)

// OrderCache holds the per-tick processing order of NPCs (by id) and
// players (by join sequence, then id). Population changes bump a
// generation counter; the order is rebuilt at most once per tick, only
// when the counter moved.
type OrderCache struct {
	generation uint64
	built      uint64
	valid      bool
	npcs       []ecs.EntityID
	players    []ecs.EntityID
	recomputes int
}

func NewOrderCache(bus *event.Bus) *OrderCache {
	c := &OrderCache{}
	event.Subscribe(bus, func(event.EntitySpawned) { c.Invalidate() })
	event.Subscribe(bus, func(event.EntityDespawned) { c.Invalidate() })
	event.Subscribe(bus, func(event.EntityRespawned) { c.Invalidate() })
	event.Subscribe(bus, func(event.PlayerJoined) { c.Invalidate() })
	event.Subscribe(bus, func(event.PlayerDisconnected) { c.Invalidate() })
	return c
}

func (c *OrderCache) Invalidate() {
	c.generation++
}

func (c *OrderCache) Generation() uint64 {
	return c.generation
}

// Refresh rebuilds both orders if the generation moved since the last
// build. Reports whether it rebuilt.
func (c *OrderCache) Refresh(ws *world.State) bool {
	if c.valid && c.built == c.generation {
		return false
	}
	c.npcs = c.npcs[:0]
	for _, n := range ws.NpcsByID() {
		c.npcs = append(c.npcs, n.ID)
	}
	c.players = c.players[:0]
	for _, p := range ws.PlayersByJoinOrder() {
		c.players = append(c.players, p.ID)
	}
	c.built = c.generation
	c.valid = true
	c.recomputes++
	return true
}

// Npcs returns the cached NPC order. Entries may have despawned since the
// last refresh; callers look each one up.
func (c *OrderCache) Npcs() []ecs.EntityID { return c.npcs }

// Players returns the cached player order.
func (c *OrderCache) Players() []ecs.EntityID { return c.players }

// Recomputes counts rebuilds since start.
func (c *OrderCache) Recomputes() int { return c.recomputes }
