package packet

import (
	"github.com/tickrpg/server/internal/tile"
)

// Message is any server → client payload. Type is the envelope tag.
type Message interface {
	Type() string
}

// Server message tags.
const (
	TypeWelcome           = "welcome"
	TypeTileMovementStart = "tile_movement_start"
	TypeEntityTileUpdate  = "entity_tile_update"
	TypeTileMovementEnd   = "tile_movement_end"
	TypeEntitySpawn       = "entity_spawn"
	TypeEntityDespawn     = "entity_despawn"
	TypeDamageApplied     = "damage_applied"
	TypeEntityDied        = "entity_died"
	TypeLootDropped       = "loot_dropped"
	TypeResourceState     = "resource_state"
	TypeGatherResult      = "gather_result"
	TypeExpGained         = "exp_gained"
	TypeDuelRequest       = "duel_request"
	TypeModalState        = "modal_state"
	TypeScriptEffect      = "script_effect"
)

// Client message tags.
const (
	InMove   = "move"
	InAttack = "attack"
	InGather = "gather"
	InFollow = "follow"
	InDuel   = "duel"
	InScript = "script"
	InModal  = "modal"
)

// WorldPos is x, elevation, z.
type WorldPos [3]float64

// PosOf returns the world position of a tile centre at the given elevation.
func PosOf(c tile.Coord, elevation float64) WorldPos {
	x, z := c.World()
	return WorldPos{x, elevation, z}
}

type Welcome struct {
	EntityID uint64     `msgpack:"id"`
	Tile     tile.Coord `msgpack:"tile"`
	Layer    int32      `msgpack:"layer"`
	Tick     uint64     `msgpack:"tick"`
}

func (Welcome) Type() string { return TypeWelcome }

// TileMovementStart announces a new path.
type TileMovementStart struct {
	ID              uint64       `msgpack:"id"`
	StartTile       tile.Coord   `msgpack:"startTile"`
	Path            []tile.Coord `msgpack:"path"`
	Running         bool         `msgpack:"running"`
	DestinationTile tile.Coord   `msgpack:"destinationTile"`
	MoveSeq         uint32       `msgpack:"moveSeq"`
	Emote           string       `msgpack:"emote"`
	TilesPerTick    int          `msgpack:"tilesPerTick"`
}

func (TileMovementStart) Type() string { return TypeTileMovementStart }

// EntityTileUpdate is sent for every tick an entity changes tile.
type EntityTileUpdate struct {
	ID         uint64     `msgpack:"id"`
	Tile       tile.Coord `msgpack:"tile"`
	WorldPos   WorldPos   `msgpack:"worldPos"`
	Quaternion [4]float64 `msgpack:"quaternion"`
	Emote      string     `msgpack:"emote"`
	TickNumber uint64     `msgpack:"tickNumber"`
	MoveSeq    uint32     `msgpack:"moveSeq"`
}

func (EntityTileUpdate) Type() string { return TypeEntityTileUpdate }

type TileMovementEnd struct {
	ID       uint64     `msgpack:"id"`
	Tile     tile.Coord `msgpack:"tile"`
	WorldPos WorldPos   `msgpack:"worldPos"`
	MoveSeq  uint32     `msgpack:"moveSeq"`
	Emote    string     `msgpack:"emote"`
}

func (TileMovementEnd) Type() string { return TypeTileMovementEnd }

type EntitySpawn struct {
	ID    uint64     `msgpack:"id"`
	Kind  string     `msgpack:"kind"`
	Name  string     `msgpack:"name"`
	Tile  tile.Coord `msgpack:"tile"`
	Layer int32      `msgpack:"layer"`
	HP    int32      `msgpack:"hp"`
	MaxHP int32      `msgpack:"maxHp"`
}

func (EntitySpawn) Type() string { return TypeEntitySpawn }

type EntityDespawn struct {
	ID uint64 `msgpack:"id"`
}

func (EntityDespawn) Type() string { return TypeEntityDespawn }

type DamageApplied struct {
	AttackerID uint64 `msgpack:"attackerId"`
	TargetID   uint64 `msgpack:"targetId"`
	Amount     int32  `msgpack:"amount"`
	Remaining  int32  `msgpack:"remaining"`
	AttackType string `msgpack:"attackType"`
}

func (DamageApplied) Type() string { return TypeDamageApplied }

type EntityDied struct {
	ID       uint64 `msgpack:"id"`
	KillerID uint64 `msgpack:"killerId"`
}

func (EntityDied) Type() string { return TypeEntityDied }

type LootItem struct {
	Item  string `msgpack:"item"`
	Count int    `msgpack:"count"`
}

type LootDropped struct {
	NpcID    uint64     `msgpack:"npcId"`
	KillerID uint64     `msgpack:"killerId"`
	Tile     tile.Coord `msgpack:"tile"`
	Items    []LootItem `msgpack:"items"`
}

func (LootDropped) Type() string { return TypeLootDropped }

type ResourceState struct {
	NodeID   uint64 `msgpack:"nodeId"`
	Depleted bool   `msgpack:"depleted"`
}

func (ResourceState) Type() string { return TypeResourceState }

type GatherResult struct {
	PlayerID uint64 `msgpack:"playerId"`
	NodeID   uint64 `msgpack:"nodeId"`
	Item     string `msgpack:"item"`
	Count    int    `msgpack:"count"`
}

func (GatherResult) Type() string { return TypeGatherResult }

type ExpGained struct {
	PlayerID uint64 `msgpack:"playerId"`
	Amount   int64  `msgpack:"amount"`
	Total    int64  `msgpack:"total"`
}

func (ExpGained) Type() string { return TypeExpGained }

type DuelRequest struct {
	ChallengerID uint64 `msgpack:"challengerId"`
	TargetID     uint64 `msgpack:"targetId"`
}

func (DuelRequest) Type() string { return TypeDuelRequest }

type ModalState struct {
	Kind string `msgpack:"kind"`
	Open bool   `msgpack:"open"`
}

func (ModalState) Type() string { return TypeModalState }

type ScriptEffect struct {
	EntityID uint64 `msgpack:"entityId"`
	Effect   string `msgpack:"effect"`
	Amount   int    `msgpack:"amount,omitempty"`
	Text     string `msgpack:"text,omitempty"`
}

func (ScriptEffect) Type() string { return TypeScriptEffect }
