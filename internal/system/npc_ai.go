package system

import (
	"go.uber.org/zap"

	coresys "github.com/tickrpg/server/internal/core/system"
	"github.com/tickrpg/server/internal/movement"
	"github.com/tickrpg/server/internal/scripting"
	"github.com/tickrpg/server/internal/tile"
	"github.com/tickrpg/server/internal/world"
)

// NpcAISystem runs every NPC once per tick in id order: Go handles target
// detection and command execution, Lua handles the decision. An NPC with no
// npc_ai function falls back to the built-in chase/wander brain.
// Phase 2 (Npc).
type NpcAISystem struct {
	o   *Orchestrator
	log *zap.Logger
}

func NewNpcAISystem(o *Orchestrator, log *zap.Logger) *NpcAISystem {
	return &NpcAISystem{o: o, log: log}
}

func (s *NpcAISystem) Phase() coresys.Phase { return coresys.PhaseNpc }

func (s *NpcAISystem) Update(tick uint64) {
	for _, id := range s.o.order.Npcs() {
		npc := s.o.world.Npc(id)
		if npc == nil || npc.Dead {
			continue
		}
		s.o.safeEach("npc", id, func() { s.tickNpc(npc, tick) })
	}
}

func (s *NpcAISystem) tickNpc(npc *world.Npc, tick uint64) {
	// Decrement timers
	if npc.AttackCooldown > 0 {
		npc.AttackCooldown--
	}
	if npc.WanderCooldown > 0 {
		npc.WanderCooldown--
	}

	target := s.detectTarget(npc)
	cmds := s.o.brain.RunNpcAI(s.aiContext(npc, target))
	if cmds == nil {
		cmds = defaultAI(npc, target)
	}

	// Bookkeeping commands apply before any movement.
	var moves []scripting.AICommand
	for _, cmd := range cmds {
		switch cmd.Type {
		case "lose_aggro":
			npc.Target = 0
			target = nil
			s.o.mobs.Stop(npc.ID)
		case "queue_script":
			if cmd.Script != "" {
				s.o.npcScripts.Queue(npc.ID, cmd.Script, nil, tick, uint64(max(cmd.Delay, 0)))
			}
		default:
			moves = append(moves, cmd)
		}
	}

	if sc := s.o.npcScripts.Drain(npc.ID, tick); sc != nil {
		s.o.handlers.Run(sc, tick)
		if npc.Dead || s.o.world.Npc(npc.ID) == nil {
			return
		}
	}

	for _, cmd := range moves {
		s.execute(npc, target, cmd, tick)
	}

	s.o.combat.NpcHook(npc, tick)
}

// detectTarget validates the current aggro target and, for aggressive NPCs
// without one, picks the nearest living player within aggro range.
func (s *NpcAISystem) detectTarget(npc *world.Npc) *world.Player {
	var target *world.Player
	if npc.Target != 0 {
		target = s.o.world.Player(npc.Target)
		if target == nil || target.Dead || target.Layer != npc.Layer {
			npc.Target = 0
			target = nil
		}
	}
	if target != nil || !npc.Aggressive || npc.AggroRange <= 0 {
		return target
	}

	best := int32(-1)
	for _, p := range s.o.world.NearbyPlayers(npc.Layer, npc.Tile, npc.AggroRange) {
		if p.Dead {
			continue
		}
		d := tile.Chebyshev(npc.Tile, p.Tile)
		if best < 0 || d < best {
			best, target = d, p
		}
	}
	if target != nil {
		npc.Target = target.ID
		npc.WanderCooldown = 0
	}
	return target
}

func (s *NpcAISystem) aiContext(npc *world.Npc, target *world.Player) scripting.AIContext {
	ctx := scripting.AIContext{
		NpcID:        int(npc.ID.Index()),
		TemplateID:   int(npc.TemplateID),
		X:            int(npc.Tile.X),
		Z:            int(npc.Tile.Z),
		HP:           int(npc.HP),
		MaxHP:        int(npc.MaxHP),
		Level:        int(npc.Level),
		CombatRange:  int(max(npc.CombatRange, 1)),
		Aggressive:   npc.Aggressive,
		CanAttack:    npc.AttackCooldown == 0,
		SpawnDist:    int(tile.Chebyshev(npc.Tile, npc.SpawnTile)),
		Leash:        int(npc.Leash),
		WanderRadius: int(npc.WanderRadius),
		CanWander:    npc.WanderCooldown == 0,
		Roll:         s.o.rng.Float64(),
	}
	if target != nil {
		ctx.TargetID = int(target.ID.Index())
		ctx.TargetX = int(target.Tile.X)
		ctx.TargetZ = int(target.Tile.Z)
		ctx.TargetDist = int(tile.Chebyshev(npc.Tile, target.Tile))
	}
	return ctx
}

// defaultAI mirrors scripts/ai/npc_ai.lua for deployments without it.
func defaultAI(npc *world.Npc, target *world.Player) []scripting.AICommand {
	if target != nil {
		if tile.WithinRange(npc.Tile, target.Tile, max(npc.CombatRange, 1)) {
			return []scripting.AICommand{{Type: "attack"}}
		}
		return []scripting.AICommand{{Type: "chase"}}
	}
	if tile.Chebyshev(npc.Tile, npc.SpawnTile) > npc.WanderRadius {
		return []scripting.AICommand{{Type: "return_home"}}
	}
	if npc.WanderRadius > 0 && npc.WanderCooldown == 0 {
		return []scripting.AICommand{{Type: "wander", Dir: -1}}
	}
	return nil
}

func (s *NpcAISystem) execute(npc *world.Npc, target *world.Player, cmd scripting.AICommand, tick uint64) {
	mobs := s.o.mobs
	switch cmd.Type {
	case "chase":
		if target == nil {
			return
		}
		switch mobs.Chase(npc, target.Layer, target.Tile, tick) {
		case movement.ChaseLeashed:
			// hold at the leash edge, still aggro'd
			mobs.Stop(npc.ID)
		case movement.ChaseLost:
			s.dropAggro(npc)
		}
	case "attack":
		mobs.Stop(npc.ID)
	case "wander":
		if npc.WanderCooldown > 0 {
			return
		}
		h := tile.Heading(cmd.Dir)
		if cmd.Dir < 0 || cmd.Dir > 7 {
			h = tile.Heading(s.o.rng.Intn(8))
		}
		mobs.Wander(npc, h, tick)
		npc.WanderCooldown = 2 + s.o.rng.Intn(4)
	case "return_home":
		if npc.Layer != npc.SpawnLayer {
			return
		}
		mobs.StepToward(npc, npc.SpawnTile, tick)
	case "idle", "":
	default:
		s.log.Debug("未知 AI 指令", zap.String("type", cmd.Type), zap.Stringer("npc", npc.ID))
	}
}

func (s *NpcAISystem) dropAggro(npc *world.Npc) {
	npc.Target = 0
	s.o.mobs.Stop(npc.ID)
}
