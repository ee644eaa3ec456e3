package movement

import (
	"errors"

	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/data"
	"github.com/tickrpg/server/internal/tile"
)

var (
	ErrUnknownEntity = errors.New("movement: unknown entity")
	ErrNoPath        = errors.New("movement: no path")
	ErrRejected      = errors.New("movement: request rejected")
	ErrNoDoor        = errors.New("movement: no door to destination layer")
)

// State is the per-entity movement component. Created lazily on the first
// movement need, removed on disconnect or despawn.
type State struct {
	Layer        int32
	CurrentTile  tile.Coord
	PreviousTile tile.Coord // tile stepped off most recently
	Heading      tile.Heading

	// snapshot taken before anything moves this tick
	TickStartTile  tile.Coord
	TickStartLayer int32

	Path      []tile.Coord
	PathIndex int
	Running   bool
	MoveSeq   uint32
	Emote     string // rides on movement messages until the walk ends

	// two-stage building navigation
	PendingDestination *tile.Coord
	PendingLayer       int32
	PendingDoor        *data.DoorLink

	DistanceProgress int64
}

// Moving reports whether path steps remain.
func (s *State) Moving() bool {
	return s.PathIndex < len(s.Path)
}

// Remaining returns the unwalked part of the path.
func (s *State) Remaining() []tile.Coord {
	if !s.Moving() {
		return nil
	}
	return s.Path[s.PathIndex:]
}

// Destination returns the final tile of the current path.
func (s *State) Destination() (tile.Coord, bool) {
	if len(s.Path) == 0 {
		return tile.Coord{}, false
	}
	return s.Path[len(s.Path)-1], true
}

func (s *State) clearPath() {
	s.Path = s.Path[:0]
	s.PathIndex = 0
}

func (s *State) clearPending() {
	s.PendingDestination = nil
	s.PendingLayer = 0
	s.PendingDoor = nil
}

// Store holds movement states for players and NPCs.
type Store struct {
	states *ecs.PtrComponentStore[State]
}

func NewStore() *Store {
	return &Store{states: ecs.NewPtrComponentStore[State]()}
}

func (s *Store) Get(id ecs.EntityID) (*State, bool) {
	return s.states.Get(id)
}

// Ensure returns the state for id, creating it at (layer, c) if missing.
func (s *Store) Ensure(id ecs.EntityID, layer int32, c tile.Coord) *State {
	return s.states.GetOrCreate(id, func() *State {
		return &State{
			Layer:          layer,
			CurrentTile:    c,
			PreviousTile:   c,
			TickStartTile:  c,
			TickStartLayer: layer,
		}
	})
}

// Remove satisfies ecs.Removable.
func (s *Store) Remove(id ecs.EntityID) {
	s.states.Remove(id)
}

func (s *Store) Has(id ecs.EntityID) bool {
	return s.states.Has(id)
}

func (s *Store) Len() int {
	return s.states.Len()
}

// Snapshot records every entity's tick-start tile. Runs before any mover.
func (s *Store) Snapshot() {
	s.states.Each(func(_ ecs.EntityID, st *State) {
		st.TickStartTile = st.CurrentTile
		st.TickStartLayer = st.Layer
	})
}
