package system

import (
	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/core/event"
	coresys "github.com/tickrpg/server/internal/core/system"
	"github.com/tickrpg/server/internal/net/packet"
	"github.com/tickrpg/server/internal/tile"
	"github.com/tickrpg/server/internal/world"
)

// RespawnSystem runs corpse and respawn timers.
// NPC flow: dies → CorpseTicks counts down → despawned from client view →
// RespawnTicks counts down → back at the spawn point with full HP.
// A negative respawn delay removes the NPC for good. Players come back at
// the configured spawn point. Phase 5 (Death), registered before
// DeathSystem so an entity never dies and respawns in the same tick.
type RespawnSystem struct {
	o   *Orchestrator
	log *zap.Logger
}

func NewRespawnSystem(o *Orchestrator, log *zap.Logger) *RespawnSystem {
	return &RespawnSystem{o: o, log: log}
}

func (s *RespawnSystem) Phase() coresys.Phase { return coresys.PhaseDeath }

func (s *RespawnSystem) Update(tick uint64) {
	for _, id := range s.o.order.Npcs() {
		n := s.o.world.Npc(id)
		if n == nil || !n.Dead {
			continue
		}
		s.tickNpc(n, tick)
	}
	for _, id := range s.o.order.Players() {
		p := s.o.world.Player(id)
		if p == nil || !p.Dead {
			continue
		}
		if p.RespawnTicks > 0 {
			p.RespawnTicks--
		}
		if p.RespawnTicks == 0 {
			s.respawnPlayer(p, tick)
		}
	}
}

func (s *RespawnSystem) tickNpc(n *world.Npc, tick uint64) {
	// Phase 1: corpse stays visible
	if n.CorpseTicks > 0 {
		n.CorpseTicks--
		if n.CorpseTicks == 0 {
			s.o.out.Nearby(n.Layer, n.Tile, packet.EntityDespawn{ID: uint64(n.ID)})
		}
		return
	}
	if n.RespawnTicks < 0 {
		if s.o.cfg.Movement.NpcCorpseTicks <= 0 {
			s.o.out.Nearby(n.Layer, n.Tile, packet.EntityDespawn{ID: uint64(n.ID)})
		}
		s.o.world.RemoveNpc(n.ID)
		s.o.ecs.MarkForDestruction(n.ID)
		return
	}
	// Phase 2: respawn timer
	if n.RespawnTicks > 0 {
		n.RespawnTicks--
	}
	if n.RespawnTicks == 0 {
		s.respawnNpc(n, tick)
	}
}

func (s *RespawnSystem) respawnNpc(n *world.Npc, _ uint64) {
	o := s.o
	c := o.freeTileNear(n.SpawnLayer, n.SpawnTile, n.ID)
	if !o.world.Occupancy().Occupy(n.SpawnLayer, c, n.ID) {
		return // spawn area full, retry next tick
	}

	n.Dead = false
	n.HP = n.MaxHP
	n.Target = 0
	n.AttackCooldown = 0
	n.WanderCooldown = 0
	o.world.Relocate(n.ID, n.SpawnLayer, c, tile.South)

	event.Publish(o.bus, event.EntityRespawned{EntityID: n.ID, Kind: event.KindNpc, Tile: c, Layer: n.SpawnLayer})
	o.out.Nearby(n.Layer, n.Tile, npcSpawnMsg(n))
}

func (s *RespawnSystem) respawnPlayer(p *world.Player, _ uint64) {
	o := s.o
	p.Dead = false
	p.HP = p.MaxHP

	x, z := o.cfg.Movement.PlayerSpawnX, o.cfg.Movement.PlayerSpawnZ
	spawn := o.freeTileNear(world.GroundLayer, tile.FromWorld(x, z), p.ID)
	x, z = spawn.World()
	c := o.players.SyncPlayerPosition(p.ID, x, z, world.GroundLayer)

	event.Publish(o.bus, event.EntityRespawned{EntityID: p.ID, Kind: event.KindPlayer, Tile: c, Layer: world.GroundLayer})
	o.out.Nearby(world.GroundLayer, c, spawnMsg(p))
	o.introduce(p)
	s.log.Debug("玩家重生", zap.Stringer("player", p.ID), zap.Stringer("tile", c))
}
