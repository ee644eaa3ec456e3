package combat

import (
	"math/rand"

	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/config"
	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
	"github.com/tickrpg/server/internal/scripting"
	"github.com/tickrpg/server/internal/tile"
	"github.com/tickrpg/server/internal/world"
)

// Roller resolves hit and damage. *scripting.Engine satisfies it.
type Roller interface {
	CalcPlayerAttack(ctx scripting.CombatContext) scripting.CombatResult
	CalcNpcAttack(ctx scripting.CombatContext) scripting.CombatResult
}

// Engine tracks which target each player is engaged with and emits their
// swings into the damage queue. NPC swings are emitted from their AI state.
// Game loop only.
type Engine struct {
	cfg      config.CombatConfig
	ws       *world.State
	damage   *DamageQueue
	roller   Roller
	rng      *rand.Rand
	bus      *event.Bus
	engaged  map[ecs.EntityID]ecs.EntityID
	cooldown map[ecs.EntityID]int
	log      *zap.Logger
}

func NewEngine(cfg config.CombatConfig, ws *world.State, damage *DamageQueue, roller Roller, seed int64, bus *event.Bus, log *zap.Logger) *Engine {
	e := &Engine{
		cfg:      cfg,
		ws:       ws,
		damage:   damage,
		roller:   roller,
		rng:      rand.New(rand.NewSource(seed)),
		bus:      bus,
		engaged:  make(map[ecs.EntityID]ecs.EntityID),
		cooldown: make(map[ecs.EntityID]int),
		log:      log,
	}
	event.Subscribe(bus, func(ev event.EntityDied) {
		e.dropTarget(ev.EntityID)
	})
	event.Subscribe(bus, func(ev event.EntityDespawned) {
		e.Disengage(ev.EntityID)
		e.dropTarget(ev.EntityID)
	})
	return e
}

// Engage makes attacker swing at target every cooldown while in range.
func (e *Engine) Engage(attacker, target ecs.EntityID) {
	e.engaged[attacker] = target
}

// Disengage stops attacker swinging. The cooldown keeps running.
func (e *Engine) Disengage(attacker ecs.EntityID) {
	delete(e.engaged, attacker)
}

func (e *Engine) Target(attacker ecs.EntityID) (ecs.EntityID, bool) {
	t, ok := e.engaged[attacker]
	return t, ok
}

// Remove satisfies ecs.Removable.
func (e *Engine) Remove(id ecs.EntityID) {
	e.Disengage(id)
	delete(e.cooldown, id)
	e.dropTarget(id)
}

func (e *Engine) dropTarget(target ecs.EntityID) {
	for a, t := range e.engaged {
		if t == target {
			delete(e.engaged, a)
		}
	}
}

// PlayerHook runs the player's combat emission for this tick: if engaged and
// off cooldown it rolls a swing and queues the damage. A target that walked
// out of range raises TargetOutOfRange and ends the engagement.
func (e *Engine) PlayerHook(p *world.Player, tick uint64) {
	if cd := e.cooldown[p.ID]; cd > 0 {
		if cd == 1 {
			delete(e.cooldown, p.ID)
		} else {
			e.cooldown[p.ID] = cd - 1
		}
	}
	targetID, ok := e.engaged[p.ID]
	if !ok || p.Dead {
		return
	}
	tc, tlayer, ok := e.ws.Position(targetID)
	if !ok || !e.ws.Alive(targetID) {
		delete(e.engaged, p.ID)
		return
	}
	rng := max(p.AttackRange, 1)
	if tlayer != p.Layer || !tile.WithinRange(p.Tile, tc, rng) {
		delete(e.engaged, p.ID)
		event.Publish(e.bus, event.TargetOutOfRange{AttackerID: p.ID, TargetID: targetID, Tick: tick})
		return
	}
	if _, cooling := e.cooldown[p.ID]; cooling {
		return
	}

	kind, _ := e.ws.Kind(targetID)
	ctx := scripting.CombatContext{
		AttackType:     p.AttackType.String(),
		AttackerLevel:  int(p.Level),
		AttackerSTR:    int(p.Str),
		AttackerDEX:    int(p.Dex),
		AttackerWeapon: int(p.WeaponDamage),
		Distance:       int(tile.Chebyshev(p.Tile, tc)),
		Roll:           e.rng.Float64(),
		DamageRoll:     e.rng.Float64(),
	}
	if ctx.AttackerWeapon == 0 {
		ctx.AttackerWeapon = e.cfg.UnarmedDamage
	}
	switch kind {
	case event.KindNpc:
		n := e.ws.Npc(targetID)
		ctx.TargetAC, ctx.TargetLevel = int(n.AC), int(n.Level)
	case event.KindPlayer:
		t := e.ws.Player(targetID)
		ctx.TargetAC, ctx.TargetLevel = int(t.AC), int(t.Level)
	}
	res := e.roller.CalcPlayerAttack(ctx)
	dmg := int32(0)
	if res.IsHit {
		dmg = int32(max(res.Damage, 0))
	}
	if h, ok := tile.HeadingTo(p.Tile, tc); ok {
		p.Heading = h
	}
	e.damage.QueueDamageWithDelay(p.ID, targetID, dmg, event.KindPlayer, kind, p.AttackType, int32(ctx.Distance), tick)
	e.cooldown[p.ID] = max(e.cfg.PlayerAttackTicks, 1)
}

// NpcHook runs the NPC's combat emission: an NPC whose aggro target is in
// range and whose cooldown has elapsed swings once.
func (e *Engine) NpcHook(n *world.Npc, tick uint64) bool {
	if n.Dead || n.Target == 0 || n.AttackCooldown > 0 {
		return false
	}
	tp := e.ws.Player(n.Target)
	if tp == nil || tp.Dead || tp.Layer != n.Layer {
		return false
	}
	rng := max(n.CombatRange, 1)
	if !tile.WithinRange(n.Tile, tp.Tile, rng) {
		return false
	}
	ctx := scripting.CombatContext{
		AttackType:     n.AttackType.String(),
		AttackerLevel:  int(n.Level),
		AttackerSTR:    int(n.Str),
		AttackerDEX:    int(n.Dex),
		AttackerWeapon: int(n.AtkDmg),
		TargetAC:       int(tp.AC),
		TargetLevel:    int(tp.Level),
		Distance:       int(tile.Chebyshev(n.Tile, tp.Tile)),
		Roll:           e.rng.Float64(),
		DamageRoll:     e.rng.Float64(),
	}
	res := e.roller.CalcNpcAttack(ctx)
	dmg := int32(0)
	if res.IsHit {
		dmg = int32(max(res.Damage, 0))
	}
	if h, ok := tile.HeadingTo(n.Tile, tp.Tile); ok {
		n.Heading = h
	}
	e.damage.QueueDamageWithDelay(n.ID, tp.ID, dmg, event.KindNpc, event.KindPlayer, n.AttackType, int32(ctx.Distance), tick)
	n.AttackCooldown = max(n.AttackTicks, 1)
	return true
}
