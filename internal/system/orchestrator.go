package system

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/broadcast"
	"github.com/tickrpg/server/internal/combat"
	"github.com/tickrpg/server/internal/config"
	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
	coresys "github.com/tickrpg/server/internal/core/system"
	"github.com/tickrpg/server/internal/data"
	"github.com/tickrpg/server/internal/input"
	"github.com/tickrpg/server/internal/interaction"
	"github.com/tickrpg/server/internal/journal"
	"github.com/tickrpg/server/internal/movement"
	"github.com/tickrpg/server/internal/net"
	"github.com/tickrpg/server/internal/net/packet"
	"github.com/tickrpg/server/internal/script"
	"github.com/tickrpg/server/internal/scripting"
	"github.com/tickrpg/server/internal/security"
	"github.com/tickrpg/server/internal/tile"
	"github.com/tickrpg/server/internal/world"
)

// Brain is the scripted game logic: hit rolls, NPC decisions, script
// bodies and distance experience. *scripting.Engine satisfies it.
type Brain interface {
	combat.Roller
	RunNpcAI(ctx scripting.AIContext) []scripting.AICommand
	HasScript(name string) bool
	RunScript(name string, entityID uint64, tick uint64, args map[string]any) ([]scripting.ScriptEffect, error)
	CalcDistanceExp(level int, tiles int) int
}

// Sink delivers encoded messages to players. *net.SessionStore satisfies it.
type Sink interface {
	Send(player ecs.EntityID, data []byte) bool
	FlushAll()
}

// Journal receives one record per tick. *journal.Journal satisfies it.
type Journal interface {
	Write(rec journal.Record)
}

// Flusher is an asynchronous writer the checkpoint asks to flush.
// *persist.Recorder and *journal.Journal satisfy it.
type Flusher interface {
	Flush()
}

// Deps are the collaborators the orchestrator does not own. Everything but
// Brain may be nil.
type Deps struct {
	Terrain   movement.Terrain   // nil: open ground
	Buildings movement.Buildings // nil: ground layer only
	Npcs      *data.NpcTable
	Brain     Brain
	Recorder  security.Recorder
	Sink      Sink
	Journal   Journal
	Flushers  []Flusher

	// Server and Sessions connect the tick to the websocket gateway.
	Server   *net.Server
	Sessions *net.SessionStore
}

// Orchestrator owns the simulation and runs one tick through every phase
// in fixed order. Every method except SubmitInput is game loop only.
type Orchestrator struct {
	cfg    *config.Config
	bus    *event.Bus
	ecs    *ecs.World
	world  *world.State
	out    *broadcast.Queue
	input  *input.Buffer
	order  *OrderCache
	runner *coresys.Runner
	rng    *rand.Rand

	states  *movement.Store
	walker  *movement.Walker
	players *movement.PlayerEngine
	mobs    *movement.MobEngine
	scorer  *security.Scorer

	playerScripts *script.PlayerQueues
	npcScripts    *script.NpcQueues
	handlers      *script.Handlers

	damage       *combat.DamageQueue
	combat       *combat.Engine
	interactions *interaction.Managers
	resources    *ResourceSystem

	npcTable   *data.NpcTable
	brain      Brain
	sink       Sink
	journal    Journal
	checkpoint *CheckpointSystem

	lastHit    map[ecs.EntityID]ecs.EntityID // target -> last attacker
	landed     int                           // hits applied this tick
	tick       uint64
	lastDigest [32]byte
	log        *zap.Logger
}

func New(cfg *config.Config, deps Deps, log *zap.Logger) (*Orchestrator, error) {
	if deps.Brain == nil {
		return nil, fmt.Errorf("orchestrator: nil brain")
	}
	validator, err := security.NewValidator(cfg.Movement)
	if err != nil {
		return nil, fmt.Errorf("movement validator: %w", err)
	}

	o := &Orchestrator{
		cfg:      cfg,
		bus:      event.NewBus(),
		ecs:      ecs.NewWorld(),
		out:      broadcast.NewQueue(),
		input:    input.NewBuffer(cfg.Network.CommandBufferSize),
		runner:   coresys.NewRunner(),
		rng:      rand.New(rand.NewSource(cfg.Server.Seed)),
		states:   movement.NewStore(),
		npcTable: deps.Npcs,
		brain:    deps.Brain,
		sink:     deps.Sink,
		journal:  deps.Journal,
		lastHit:  make(map[ecs.EntityID]ecs.EntityID),
		log:      log,
	}
	if o.sink == nil && deps.Sessions != nil {
		o.sink = deps.Sessions
	}
	o.world = world.NewState(o.bus)
	o.order = NewOrderCache(o.bus)

	o.walker = movement.NewWalker(deps.Terrain, deps.Buildings)
	o.scorer = security.NewScorer(cfg.AntiCheat, deps.Recorder, log)
	o.players = movement.NewPlayerEngine(cfg.Movement, o.states, o.walker, o.world, o.world.Occupancy(), o.out, o.bus, validator, o.scorer, log)
	o.players.SetDistanceHook(o.grantDistanceExp)
	o.mobs = movement.NewMobEngine(o.states, o.walker, o.world, o.world.Occupancy(), o.out, cfg.Movement.MobMaxGreedySteps, log)

	o.playerScripts = script.NewPlayerQueues(cfg.Scripts, o.world, log)
	o.playerScripts.Subscribe(o.bus)
	o.npcScripts = script.NewNpcQueues(cfg.Scripts, log)
	o.handlers = script.NewHandlers(log)
	o.registerScripts()

	o.damage = combat.NewDamageQueue(o.world, o.bus)
	o.combat = combat.NewEngine(cfg.Combat, o.world, o.damage, deps.Brain, cfg.Server.Seed, o.bus, log)

	o.resources = NewResourceSystem(o, cfg.Interaction.GatherRange)
	o.interactions = &interaction.Managers{
		Attack: interaction.NewAttackManager(o.world, o.players, o.combat, o.attackRange, log),
		Follow: interaction.NewFollowManager(o.world, o.players, log),
		Gather: interaction.NewGatherManager(o.world, o.players, o.resources, cfg.Interaction.GatherRange, cfg.Interaction.GatherTimeoutTicks, log),
		Duel:   interaction.NewDuelManager(o.world, o.players, o.out, o.bus, cfg.Interaction.DuelRange, log),
	}
	o.interactions.Subscribe(o.bus)

	reg := o.ecs.Registry()
	reg.Register(o.states)
	reg.Register(o.playerScripts)
	reg.Register(o.npcScripts)
	reg.Register(o.interactions)
	reg.Register(o.combat)
	reg.Register(o.resources)

	o.subscribe()

	o.runner.Register(&PrepareSystem{o: o})
	if deps.Server != nil && deps.Sessions != nil {
		o.runner.Register(NewGatewaySystem(o, deps.Server, deps.Sessions, log))
	}
	o.runner.Register(NewInputSystem(o, cfg.Network.MaxCommandsPerTick, log))
	o.runner.Register(NewNpcAISystem(o, log))
	o.runner.Register(&PlayerSystem{o: o})
	o.runner.Register(&DamageSystem{o: o})
	o.runner.Register(NewRespawnSystem(o, log))
	o.runner.Register(NewDeathSystem(o, log))
	o.runner.Register(o.resources)
	o.runner.Register(NewOutputSystem(o, log))
	o.checkpoint = NewCheckpointSystem(o, deps.Flushers, cfg.Server.CheckpointTick, log)
	o.runner.Register(o.checkpoint)
	o.runner.Register(NewCleanupSystem(o.ecs))
	return o, nil
}

// subscribe wires event-driven side effects that belong to no single system.
func (o *Orchestrator) subscribe() {
	event.Subscribe(o.bus, func(e event.DamageApplied) {
		o.lastHit[e.TargetID] = e.AttackerID
		if c, layer, ok := o.world.Position(e.TargetID); ok {
			o.out.Nearby(layer, c, packet.DamageApplied{
				AttackerID: uint64(e.AttackerID),
				TargetID:   uint64(e.TargetID),
				Amount:     e.Amount,
				Remaining:  e.Remaining,
				AttackType: world.AttackType(e.AttackType).String(),
			})
		}
		// retaliate
		if n := o.world.Npc(e.TargetID); n != nil && n.Target == 0 {
			if kind, ok := o.world.Kind(e.AttackerID); ok && kind == event.KindPlayer {
				n.Target = e.AttackerID
			}
		}
	})
	event.Subscribe(o.bus, func(e event.ModalOpened) {
		o.out.Direct(e.PlayerID, packet.ModalState{Kind: e.Kind, Open: true})
	})
	event.Subscribe(o.bus, func(e event.ModalClosed) {
		o.out.Direct(e.PlayerID, packet.ModalState{Kind: e.Kind, Open: false})
	})
	event.Subscribe(o.bus, func(e event.EntityDespawned) {
		delete(o.lastHit, e.EntityID)
	})
}

func (o *Orchestrator) attackRange(id ecs.EntityID) int32 {
	if p := o.world.Player(id); p != nil {
		return max(p.AttackRange, 1)
	}
	return 1
}

func (o *Orchestrator) grantDistanceExp(id ecs.EntityID, tiles int64) {
	p := o.world.Player(id)
	if p == nil {
		return
	}
	p.DistanceTiles += tiles
	exp := int64(o.brain.CalcDistanceExp(int(p.Level), int(tiles)))
	if exp <= 0 {
		return
	}
	p.Exp += exp
	event.Publish(o.bus, event.DistanceExpGranted{PlayerID: id, Amount: exp, Tiles: tiles})
	o.out.Direct(id, packet.ExpGained{PlayerID: uint64(id), Amount: exp, Total: p.Exp})
}

// ---------- tick ----------

// ProcessTick runs every phase once for tick.
func (o *Orchestrator) ProcessTick(tick uint64) {
	o.tick = tick
	o.runner.Tick(tick)
}

// Tick returns the last processed tick number.
func (o *Orchestrator) Tick() uint64 { return o.tick }

// Digest returns the state digest computed at the end of the last tick.
func (o *Orchestrator) Digest() [32]byte { return o.lastDigest }

// Checkpoint flushes the asynchronous writers now. Used on shutdown.
func (o *Orchestrator) Checkpoint() { o.checkpoint.Checkpoint(o.tick) }

// ---------- external operations ----------

// SubmitInput stages a client command for the next tick. Safe to call from
// any goroutine.
func (o *Orchestrator) SubmitInput(cmd input.Command) bool {
	return o.input.Push(cmd)
}

// InputBuffer exposes the staging buffer to the websocket handlers.
func (o *Orchestrator) InputBuffer() *input.Buffer { return o.input }

func (o *Orchestrator) QueueDamage(attacker, target ecs.EntityID, damage int32, attackerKind, targetKind event.EntityKind, tick uint64) combat.QueuedDamage {
	return o.damage.QueueDamage(attacker, target, damage, attackerKind, targetKind, tick)
}

func (o *Orchestrator) QueueDamageWithDelay(attacker, target ecs.EntityID, damage int32, attackerKind, targetKind event.EntityKind, attackType world.AttackType, distance int32, tick uint64) combat.QueuedDamage {
	return o.damage.QueueDamageWithDelay(attacker, target, damage, attackerKind, targetKind, attackType, distance, tick)
}

// QueueBroadcast adds a message to this tick's outbound batch.
func (o *Orchestrator) QueueBroadcast(e broadcast.Entry) {
	o.out.Push(e)
}

// MovePlayerToward paths a player to (layer, dest) on behalf of the server.
func (o *Orchestrator) MovePlayerToward(id ecs.EntityID, layer int32, dest tile.Coord) error {
	return o.players.MoveToward(id, layer, dest, o.tick, event.MoveFromSystem)
}

// SyncPlayerPosition teleports a player and resets its movement.
func (o *Orchestrator) SyncPlayerPosition(id ecs.EntityID, x, z float64, layer int32) tile.Coord {
	return o.players.SyncPlayerPosition(id, x, z, layer)
}

// GetCurrentTile returns a player's live tile.
func (o *Orchestrator) GetCurrentTile(id ecs.EntityID) (tile.Coord, bool) {
	return o.players.GetCurrentTile(id)
}

func (o *Orchestrator) PlayerScripts() *script.PlayerQueues { return o.playerScripts }
func (o *Orchestrator) NpcScripts() *script.NpcQueues       { return o.npcScripts }

// RegisterScript installs a Go handler for a script type. Types without a
// Go handler fall through to the Lua scripts table.
func (o *Orchestrator) RegisterScript(typ string, fn script.Handler) {
	o.handlers.Register(typ, fn)
}

func (o *Orchestrator) OpenModal(id ecs.EntityID, kind string) bool {
	return o.world.OpenModal(id, kind)
}

func (o *Orchestrator) CloseModal(id ecs.EntityID) {
	o.world.CloseModal(id)
}

// World exposes the entity registry (read-mostly: tests and tools).
func (o *Orchestrator) World() *world.State { return o.world }

func (o *Orchestrator) Bus() *event.Bus { return o.bus }

func (o *Orchestrator) Order() *OrderCache { return o.order }

func (o *Orchestrator) Scorer() *security.Scorer { return o.scorer }

// OnPlayerDisconnect removes a player from the world now and queues its
// per-entity state for the cleanup phase.
func (o *Orchestrator) OnPlayerDisconnect(id ecs.EntityID) {
	p := o.world.Player(id)
	if p == nil {
		return
	}
	event.Publish(o.bus, event.PlayerDisconnected{EntityID: id, SessionID: p.SessionID})
	o.players.Remove(id)
	o.world.RemovePlayer(id)
	o.out.Nearby(p.Layer, p.Tile, packet.EntityDespawn{ID: uint64(id)})
	o.ecs.MarkForDestruction(id)
	o.log.Info(fmt.Sprintf("玩家離線  角色=%s  id=%s", p.Name, id))
}

// Cleanup drops every per-entity store entry of id immediately.
func (o *Orchestrator) Cleanup(id ecs.EntityID) {
	o.ecs.Registry().RemoveAll(id)
}

// ---------- spawning ----------

// SpawnPlayer places a new player at the configured spawn point, or the
// nearest free tile around it.
func (o *Orchestrator) SpawnPlayer(sessionID uint64, name string) *world.Player {
	c := tile.FromWorld(o.cfg.Movement.PlayerSpawnX, o.cfg.Movement.PlayerSpawnZ)
	return o.SpawnPlayerAt(sessionID, name, world.GroundLayer, c)
}

func (o *Orchestrator) SpawnPlayerAt(sessionID uint64, name string, layer int32, c tile.Coord) *world.Player {
	id := o.ecs.CreateEntity()
	c = o.freeTileNear(layer, c, id)
	p := &world.Player{
		ID:          id,
		SessionID:   sessionID,
		Name:        name,
		Tile:        c,
		Layer:       layer,
		Heading:     tile.South,
		HP:          defaultPlayerHP,
		MaxHP:       defaultPlayerHP,
		Level:       1,
		Str:         10,
		Dex:         10,
		AttackRange: 1,
		AttackType:  world.AttackMelee,
	}
	o.world.AddPlayer(p)
	x, z := c.World()
	o.players.SyncPlayerPosition(id, x, z, layer)
	event.Publish(o.bus, event.PlayerJoined{EntityID: id, SessionID: sessionID, Name: name})

	o.out.Direct(id, packet.Welcome{EntityID: uint64(id), Tile: c, Layer: layer, Tick: o.tick})
	o.out.Nearby(layer, c, spawnMsg(p))
	o.introduce(p)
	o.log.Info(fmt.Sprintf("玩家進入世界  角色=%s  id=%s  tile=%s", name, id, c))
	return p
}

const defaultPlayerHP = 50

// introduce sends a joining player every entity already in view.
func (o *Orchestrator) introduce(p *world.Player) {
	rng := o.cfg.Network.ViewRange
	for _, other := range o.world.NearbyPlayers(p.Layer, p.Tile, rng) {
		if other.ID != p.ID {
			o.out.Direct(p.ID, spawnMsg(other))
		}
	}
	for _, n := range o.world.NpcsByID() {
		if !n.Dead && n.Layer == p.Layer && tile.Chebyshev(n.Tile, p.Tile) <= rng {
			o.out.Direct(p.ID, npcSpawnMsg(n))
		}
	}
	for _, r := range o.world.NodesByID() {
		if r.Layer == p.Layer && tile.Chebyshev(r.Tile, p.Tile) <= rng {
			o.out.Direct(p.ID, packet.ResourceState{NodeID: uint64(r.ID), Depleted: r.Depleted})
		}
	}
}

func spawnMsg(p *world.Player) packet.EntitySpawn {
	return packet.EntitySpawn{ID: uint64(p.ID), Kind: "player", Name: p.Name, Tile: p.Tile, Layer: p.Layer, HP: p.HP, MaxHP: p.MaxHP}
}

func npcSpawnMsg(n *world.Npc) packet.EntitySpawn {
	return packet.EntitySpawn{ID: uint64(n.ID), Kind: "npc", Name: n.Name, Tile: n.Tile, Layer: n.Layer, HP: n.HP, MaxHP: n.MaxHP}
}

// SpawnNpc creates an NPC from a template at (layer, c).
func (o *Orchestrator) SpawnNpc(t *data.NpcTemplate, layer int32, c tile.Coord) *world.Npc {
	id := o.ecs.CreateEntity()
	c = o.freeTileNear(layer, c, id)
	n := &world.Npc{
		ID:           id,
		TemplateID:   t.NpcID,
		Name:         t.Name,
		Tile:         c,
		Layer:        layer,
		Heading:      tile.South,
		SpawnTile:    c,
		SpawnLayer:   layer,
		HP:           t.HP,
		MaxHP:        t.HP,
		Level:        t.Level,
		Str:          t.STR,
		Dex:          t.DEX,
		AC:           t.AC,
		AtkDmg:       t.AtkDmg,
		CombatRange:  max(t.CombatRange, 1),
		AttackType:   parseAttackType(t.AttackType),
		AttackTicks:  max(t.AttackTicks, 1),
		Leash:        t.Leash,
		AggroRange:   t.AggroRange,
		Aggressive:   t.Aggressive,
		TilesPerTick: max(t.TilesPerTick, 1),
		WanderRadius: t.WanderRadius,
		RespawnDelay: t.RespawnTicks,
	}
	o.world.AddNpc(n)
	o.out.Nearby(layer, c, npcSpawnMsg(n))
	return n
}

func parseAttackType(s string) world.AttackType {
	switch s {
	case "ranged":
		return world.AttackRanged
	case "magic":
		return world.AttackMagic
	}
	return world.AttackMelee
}

// SpawnNode places a gatherable resource node.
func (o *Orchestrator) SpawnNode(r data.ResourceSpawn) *world.ResourceNode {
	n := &world.ResourceNode{
		ID:           o.ecs.CreateEntity(),
		Kind:         r.Kind,
		Name:         r.Name,
		Tile:         tile.Coord{X: r.X, Z: r.Z},
		Layer:        r.Layer,
		Yield:        r.Yield,
		GatherTicks:  max(r.GatherTicks, 1),
		Charges:      max(r.Charges, 1),
		MaxCharges:   max(r.Charges, 1),
		RespawnDelay: r.RespawnTicks,
	}
	if !o.world.AddNode(n) {
		o.log.Warn("資源點格子已被佔用", zap.String("name", r.Name), zap.Stringer("tile", n.Tile))
	}
	return n
}

// LoadSpawns places every NPC spawn entry and resource node. Random
// offsets use the simulation RNG, so a given seed always yields the same
// world.
func (o *Orchestrator) LoadSpawns(spawns []data.SpawnEntry, resources []data.ResourceSpawn) (npcs, nodes int) {
	for _, r := range resources {
		o.SpawnNode(r)
		nodes++
	}
	if o.npcTable == nil {
		return npcs, nodes
	}
	for _, sp := range spawns {
		t := o.npcTable.Get(sp.NpcID)
		if t == nil {
			o.log.Warn("生怪表引用不存在的 NPC", zap.Int32("npc_id", sp.NpcID))
			continue
		}
		for i := 0; i < max(sp.Count, 1); i++ {
			c := tile.Coord{X: sp.X + jitter(o.rng, sp.RandomX), Z: sp.Z + jitter(o.rng, sp.RandomZ)}
			o.SpawnNpc(t, sp.Layer, c)
			npcs++
		}
	}
	return npcs, nodes
}

func jitter(r *rand.Rand, spread int32) int32 {
	if spread <= 0 {
		return 0
	}
	return int32(r.Intn(int(spread)*2+1)) - spread
}

// freeTileNear returns c if free and walkable, else the first free tile in
// rings of radius 1..3 around it, else c.
func (o *Orchestrator) freeTileNear(layer int32, c tile.Coord, id ecs.EntityID) tile.Coord {
	occ := o.world.Occupancy()
	free := func(t tile.Coord) bool {
		return !occ.IsOccupied(layer, t, id) && o.walker.Walkable(layer, t)
	}
	if free(c) {
		return c
	}
	for r := int32(1); r <= 3; r++ {
		for dx := -r; dx <= r; dx++ {
			for dz := -r; dz <= r; dz++ {
				if max(abs32(dx), abs32(dz)) != r {
					continue
				}
				if t := c.Add(dx, dz); free(t) {
					return t
				}
			}
		}
	}
	return c
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// safeEach runs fn for one entity, containing any panic so the rest of the
// phase still runs.
func (o *Orchestrator) safeEach(phase string, id ecs.EntityID, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			o.log.Error("實體處理發生 panic",
				zap.String("phase", phase),
				zap.Stringer("entity", id),
				zap.Any("panic", rec),
			)
		}
	}()
	fn()
}
