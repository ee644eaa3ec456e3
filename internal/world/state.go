package world

import (
	"sort"

	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
	"github.com/tickrpg/server/internal/tile"
)

// GroundLayer is the outdoor navigation layer. Building floors use their own ids.
const GroundLayer int32 = 0

// AttackType selects the hit-delay formula for queued damage.
type AttackType uint8

const (
	AttackMelee AttackType = iota
	AttackRanged
	AttackMagic
)

func (a AttackType) String() string {
	switch a {
	case AttackMelee:
		return "melee"
	case AttackRanged:
		return "ranged"
	case AttackMagic:
		return "magic"
	}
	return "unknown"
}

// Player holds in-memory data for a connected player.
// Accessed only from the game loop goroutine, no locks needed.
type Player struct {
	ID        ecs.EntityID
	SessionID uint64
	Name      string
	JoinSeq   uint64 // connection order, used for processing order
	Tile      tile.Coord
	Layer     int32
	Heading   tile.Heading

	HP           int32
	MaxHP        int32
	Level        int32
	Str          int32
	Dex          int32
	AC           int32
	WeaponDamage int32 // 0 = unarmed
	AttackRange  int32
	AttackType   AttackType

	ModalKind string // "" when no shop/bank/dialogue is open

	Exp           int64
	DistanceTiles int64 // lifetime tiles walked

	Dead         bool
	RespawnTicks int
}

// Npc holds runtime state for a spawned NPC.
type Npc struct {
	ID         ecs.EntityID
	TemplateID int32
	Name       string
	Tile       tile.Coord
	Layer      int32
	Heading    tile.Heading
	SpawnTile  tile.Coord
	SpawnLayer int32

	HP          int32
	MaxHP       int32
	Level       int32
	Str         int32
	Dex         int32
	AC          int32
	AtkDmg      int32
	CombatRange int32
	AttackType  AttackType
	AttackTicks int // ticks between attacks

	Leash        int32 // max Chebyshev distance from SpawnTile
	AggroRange   int32
	Aggressive   bool
	TilesPerTick int
	WanderRadius int32

	// AI state
	Target         ecs.EntityID
	AttackCooldown int
	WanderCooldown int

	Dead         bool
	CorpseTicks  int
	RespawnTicks int
	RespawnDelay int // ticks
}

// ResourceNode is a gatherable world object (tree, rock, fishing spot).
type ResourceNode struct {
	ID           ecs.EntityID
	Kind         string
	Name         string
	Tile         tile.Coord
	Layer        int32
	Yield        string
	GatherTicks  int // ticks per yield roll
	Charges      int
	MaxCharges   int
	Depleted     bool
	RespawnDelay int
	RespawnTicks int
}

// State is the entity registry: every player, NPC and resource node in the
// world, plus the occupancy map and the player AOI index.
// Single-goroutine access only (game loop).
type State struct {
	bus       *event.Bus
	players   map[ecs.EntityID]*Player
	bySession map[uint64]*Player
	npcs      map[ecs.EntityID]*Npc
	nodes     map[ecs.EntityID]*ResourceNode
	aoi       *AOIGrid
	occupancy *Occupancy
	joinSeq   uint64
}

func NewState(bus *event.Bus) *State {
	return &State{
		bus:       bus,
		players:   make(map[ecs.EntityID]*Player, 256),
		bySession: make(map[uint64]*Player, 256),
		npcs:      make(map[ecs.EntityID]*Npc, 1024),
		nodes:     make(map[ecs.EntityID]*ResourceNode, 256),
		aoi:       NewAOIGrid(),
		occupancy: NewOccupancy(),
	}
}

func (s *State) Occupancy() *Occupancy { return s.occupancy }

// ---------- players ----------

// AddPlayer registers a player and claims its tile. Returns false if the
// tile is already held; the player is registered either way.
func (s *State) AddPlayer(p *Player) bool {
	s.joinSeq++
	p.JoinSeq = s.joinSeq
	s.players[p.ID] = p
	s.bySession[p.SessionID] = p
	s.aoi.Add(p.ID, p.Layer, p.Tile)
	placed := s.occupancy.Occupy(p.Layer, p.Tile, p.ID)
	event.Publish(s.bus, event.EntitySpawned{EntityID: p.ID, Kind: event.KindPlayer})
	return placed
}

func (s *State) RemovePlayer(id ecs.EntityID) *Player {
	p := s.players[id]
	if p == nil {
		return nil
	}
	delete(s.players, id)
	delete(s.bySession, p.SessionID)
	s.aoi.Remove(id, p.Layer, p.Tile)
	s.occupancy.Vacate(id)
	event.Publish(s.bus, event.EntityDespawned{EntityID: id, Kind: event.KindPlayer})
	return p
}

func (s *State) Player(id ecs.EntityID) *Player {
	return s.players[id]
}

func (s *State) PlayerBySession(sessionID uint64) *Player {
	return s.bySession[sessionID]
}

func (s *State) PlayerCount() int {
	return len(s.players)
}

// AllPlayers visits players in unspecified order.
func (s *State) AllPlayers(fn func(*Player)) {
	for _, p := range s.players {
		fn(p)
	}
}

// PlayersByJoinOrder returns players sorted by connection order, then id.
func (s *State) PlayersByJoinOrder() []*Player {
	out := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinSeq != out[j].JoinSeq {
			return out[i].JoinSeq < out[j].JoinSeq
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// NearbyPlayers returns players on layer within Chebyshev rng of c, by id.
func (s *State) NearbyPlayers(layer int32, c tile.Coord, rng int32) []*Player {
	var out []*Player
	for _, id := range s.aoi.GetNearby(layer, c) {
		p := s.players[id]
		if p == nil || p.Layer != layer {
			continue
		}
		if tile.Chebyshev(p.Tile, c) <= rng {
			out = append(out, p)
		}
	}
	return out
}

// ---------- NPCs ----------

func (s *State) AddNpc(n *Npc) bool {
	s.npcs[n.ID] = n
	placed := s.occupancy.Occupy(n.Layer, n.Tile, n.ID)
	event.Publish(s.bus, event.EntitySpawned{EntityID: n.ID, Kind: event.KindNpc})
	return placed
}

func (s *State) RemoveNpc(id ecs.EntityID) *Npc {
	n := s.npcs[id]
	if n == nil {
		return nil
	}
	delete(s.npcs, id)
	s.occupancy.Vacate(id)
	event.Publish(s.bus, event.EntityDespawned{EntityID: id, Kind: event.KindNpc})
	return n
}

func (s *State) Npc(id ecs.EntityID) *Npc {
	return s.npcs[id]
}

func (s *State) NpcCount() int {
	return len(s.npcs)
}

// NpcsByID returns all NPCs sorted by id.
func (s *State) NpcsByID() []*Npc {
	out := make([]*Npc, 0, len(s.npcs))
	for _, n := range s.npcs {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---------- resource nodes ----------

func (s *State) AddNode(n *ResourceNode) bool {
	s.nodes[n.ID] = n
	return s.occupancy.Occupy(n.Layer, n.Tile, n.ID)
}

func (s *State) Node(id ecs.EntityID) *ResourceNode {
	return s.nodes[id]
}

func (s *State) NodeCount() int {
	return len(s.nodes)
}

// NodesByID returns all resource nodes sorted by id.
func (s *State) NodesByID() []*ResourceNode {
	out := make([]*ResourceNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---------- generic entity queries ----------

// Kind reports which population id belongs to. Resource nodes report false.
func (s *State) Kind(id ecs.EntityID) (event.EntityKind, bool) {
	if _, ok := s.players[id]; ok {
		return event.KindPlayer, true
	}
	if _, ok := s.npcs[id]; ok {
		return event.KindNpc, true
	}
	return 0, false
}

// Position returns the live tile and layer of any entity.
func (s *State) Position(id ecs.EntityID) (tile.Coord, int32, bool) {
	if p := s.players[id]; p != nil {
		return p.Tile, p.Layer, true
	}
	if n := s.npcs[id]; n != nil {
		return n.Tile, n.Layer, true
	}
	if r := s.nodes[id]; r != nil {
		return r.Tile, r.Layer, true
	}
	return tile.Coord{}, 0, false
}

// Alive reports whether id is a living player/NPC or an undepleted node.
func (s *State) Alive(id ecs.EntityID) bool {
	if p := s.players[id]; p != nil {
		return !p.Dead
	}
	if n := s.npcs[id]; n != nil {
		return !n.Dead
	}
	if r := s.nodes[id]; r != nil {
		return !r.Depleted
	}
	return false
}

// Relocate updates the registry position of a player or NPC. Occupancy is
// the caller's business; movers claim tiles before relocating.
func (s *State) Relocate(id ecs.EntityID, layer int32, c tile.Coord, heading tile.Heading) {
	if p := s.players[id]; p != nil {
		s.aoi.Move(id, p.Layer, p.Tile, layer, c)
		p.Tile, p.Layer, p.Heading = c, layer, heading
		return
	}
	if n := s.npcs[id]; n != nil {
		n.Tile, n.Layer, n.Heading = c, layer, heading
	}
}

// ApplyDamage subtracts amount from the target's HP, floored at zero.
// Dead or unknown targets are left untouched and report ok=false.
func (s *State) ApplyDamage(id ecs.EntityID, amount int32) (remaining int32, ok bool) {
	if p := s.players[id]; p != nil && !p.Dead {
		p.HP = max(p.HP-amount, 0)
		return p.HP, true
	}
	if n := s.npcs[id]; n != nil && !n.Dead {
		n.HP = max(n.HP-amount, 0)
		return n.HP, true
	}
	return 0, false
}

// ---------- modal sessions ----------

func (s *State) IsModalOpen(id ecs.EntityID) bool {
	p := s.players[id]
	return p != nil && p.ModalKind != ""
}

// OpenModal starts a blocking session (shop, bank, dialogue) for a player.
func (s *State) OpenModal(id ecs.EntityID, kind string) bool {
	p := s.players[id]
	if p == nil || kind == "" {
		return false
	}
	p.ModalKind = kind
	event.Publish(s.bus, event.ModalOpened{PlayerID: id, Kind: kind})
	return true
}

// CloseModal ends the open session, if any.
func (s *State) CloseModal(id ecs.EntityID) {
	p := s.players[id]
	if p == nil || p.ModalKind == "" {
		return
	}
	kind := p.ModalKind
	p.ModalKind = ""
	event.Publish(s.bus, event.ModalClosed{PlayerID: id, Kind: kind})
}
