package system

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/core/event"
	coresys "github.com/tickrpg/server/internal/core/system"
	"github.com/tickrpg/server/internal/net/packet"
	"github.com/tickrpg/server/internal/world"
)

// DeathSystem turns every entity whose HP reached zero this tick into a
// corpse: timers start, the tile is freed, loot is rolled.
// Phase 5 (Death).
type DeathSystem struct {
	o   *Orchestrator
	log *zap.Logger
}

func NewDeathSystem(o *Orchestrator, log *zap.Logger) *DeathSystem {
	return &DeathSystem{o: o, log: log}
}

func (s *DeathSystem) Phase() coresys.Phase { return coresys.PhaseDeath }

func (s *DeathSystem) Update(tick uint64) {
	for _, id := range s.o.order.Npcs() {
		if n := s.o.world.Npc(id); n != nil && !n.Dead && n.HP <= 0 {
			s.killNpc(n, tick)
		}
	}
	for _, id := range s.o.order.Players() {
		if p := s.o.world.Player(id); p != nil && !p.Dead && p.HP <= 0 {
			s.killPlayer(p, tick)
		}
	}
}

// ==================== NPC 死亡 ====================

func (s *DeathSystem) killNpc(n *world.Npc, tick uint64) {
	o := s.o
	killer := o.lastHit[n.ID]

	n.Dead = true
	n.HP = 0
	n.Target = 0
	n.AttackCooldown = 0
	n.CorpseTicks = max(o.cfg.Movement.NpcCorpseTicks, 0)
	n.RespawnTicks = n.RespawnDelay

	// 屍體不佔格子
	o.mobs.Stop(n.ID)
	o.world.Occupancy().Vacate(n.ID)
	o.npcScripts.Remove(n.ID)

	event.Publish(o.bus, event.EntityDied{EntityID: n.ID, Kind: event.KindNpc, KillerID: killer, Tick: tick})
	o.out.Nearby(n.Layer, n.Tile, packet.EntityDied{ID: uint64(n.ID), KillerID: uint64(killer)})

	if items := s.rollLoot(n); len(items) > 0 {
		o.out.Nearby(n.Layer, n.Tile, packet.LootDropped{
			NpcID:    uint64(n.ID),
			KillerID: uint64(killer),
			Tile:     n.Tile,
			Items:    items,
		})
	}
	s.log.Debug("NPC 死亡", zap.Stringer("npc", n.ID), zap.String("name", n.Name), zap.Stringer("killer", killer))
}

// rollLoot rolls every loot entry of the NPC's template with the
// simulation RNG, in table order.
func (s *DeathSystem) rollLoot(n *world.Npc) []packet.LootItem {
	if s.o.npcTable == nil {
		return nil
	}
	t := s.o.npcTable.Get(n.TemplateID)
	if t == nil {
		return nil
	}
	var items []packet.LootItem
	for _, e := range t.Loot {
		if s.o.rng.Float64() >= e.Chance {
			continue
		}
		lo, hi := max(e.Min, 1), max(e.Max, e.Min, 1)
		items = append(items, packet.LootItem{Item: e.Item, Count: lo + s.o.rng.Intn(hi-lo+1)})
	}
	return items
}

// ==================== 玩家死亡 ====================

func (s *DeathSystem) killPlayer(p *world.Player, tick uint64) {
	o := s.o
	killer := o.lastHit[p.ID]

	p.Dead = true
	p.HP = 0
	p.RespawnTicks = max(o.cfg.Movement.PlayerRespawnTicks, 1)

	// 死亡玩家不再佔用格子
	o.players.OnDeath(p.ID)
	o.world.Occupancy().Vacate(p.ID)
	o.world.CloseModal(p.ID)
	o.combat.Disengage(p.ID)

	event.Publish(o.bus, event.EntityDied{EntityID: p.ID, Kind: event.KindPlayer, KillerID: killer, Tick: tick})
	o.out.Nearby(p.Layer, p.Tile, packet.EntityDied{ID: uint64(p.ID), KillerID: uint64(killer)})

	s.log.Info(fmt.Sprintf("玩家死亡  角色=%s  tile=%s", p.Name, p.Tile))
}
