package event

import (
	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/tile"
)

// EntityKind distinguishes the two simulated populations.
type EntityKind uint8

const (
	KindPlayer EntityKind = iota + 1
	KindNpc
)

func (k EntityKind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindNpc:
		return "npc"
	}
	return "unknown"
}

// Population changes. Any of these invalidates the processing-order caches.

type EntitySpawned struct {
	EntityID ecs.EntityID
	Kind     EntityKind
}

type EntityDespawned struct {
	EntityID ecs.EntityID
	Kind     EntityKind
}

type EntityRespawned struct {
	EntityID ecs.EntityID
	Kind     EntityKind
	Tile     tile.Coord
	Layer    int32
}

type PlayerJoined struct {
	EntityID  ecs.EntityID
	SessionID uint64
	Name      string
}

type PlayerDisconnected struct {
	EntityID  ecs.EntityID
	SessionID uint64
}

// MoveSource tells who asked for a movement.
type MoveSource uint8

const (
	MoveFromClient MoveSource = iota
	MoveFromInteraction
	MoveFromSystem
)

// MovementIssued is published when a player's path is replaced or cancelled.
// Client-sourced movement cancels pending interactions and purges WEAK scripts.
type MovementIssued struct {
	EntityID ecs.EntityID
	Source   MoveSource
	Cancel   bool
	Tick     uint64
}

type DamageApplied struct {
	AttackerID ecs.EntityID
	TargetID   ecs.EntityID
	Amount     int32
	Remaining  int32
	AttackType uint8
	Tick       uint64
}

type EntityDied struct {
	EntityID ecs.EntityID
	Kind     EntityKind
	KillerID ecs.EntityID
	Tick     uint64
}

// TargetOutOfRange is published by combat when an engaged target walked away.
type TargetOutOfRange struct {
	AttackerID ecs.EntityID
	TargetID   ecs.EntityID
	Tick       uint64
}

type ModalOpened struct {
	PlayerID ecs.EntityID
	Kind     string
}

type ModalClosed struct {
	PlayerID ecs.EntityID
	Kind     string
}

type DuelChallenged struct {
	ChallengerID ecs.EntityID
	TargetID     ecs.EntityID
	Tick         uint64
}

type GatherStarted struct {
	PlayerID ecs.EntityID
	NodeID   ecs.EntityID
	Tick     uint64
}

type ResourceDepleted struct {
	NodeID ecs.EntityID
	Tick   uint64
}

type DistanceExpGranted struct {
	PlayerID ecs.EntityID
	Amount   int64
	Tiles    int64
}
