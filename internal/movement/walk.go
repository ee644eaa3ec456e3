package movement

import (
	"github.com/tickrpg/server/internal/data"
	"github.com/tickrpg/server/internal/tile"
)

// Terrain is the ground-layer walkability oracle. *data.Terrain satisfies it.
type Terrain interface {
	InBounds(c tile.Coord) bool
	Collision(c tile.Coord) bool
	Water(c tile.Coord) bool
	Steep(c tile.Coord) bool
	EdgePassable(c tile.Coord, h tile.Heading) bool
}

// Buildings answers footprint, wall, door and floor queries.
// *data.BuildingTable satisfies it.
type Buildings interface {
	FootprintAt(c tile.Coord) bool
	Inside(layer int32, c tile.Coord) bool
	IsDoorTile(layer int32, c tile.Coord) bool
	DoorAt(layer int32, c tile.Coord) (data.DoorLink, bool)
	DoorsOn(layer int32) []data.DoorLink
	Blocked(layer int32, c tile.Coord) bool
	WallBlocks(layer int32, c tile.Coord, h tile.Heading) bool
	StairBlocks(layer int32, to tile.Coord, h tile.Heading) bool
	Elevation(layer int32) float64
}

// Walker composes terrain and building rules into one walkability predicate.
// Either collaborator may be nil: no terrain means an open, unbounded
// ground; no buildings means ground only.
type Walker struct {
	terrain   Terrain
	buildings Buildings
}

func NewWalker(t Terrain, b Buildings) *Walker {
	return &Walker{terrain: t, buildings: b}
}

func (w *Walker) Buildings() Buildings {
	return w.buildings
}

// Elevation returns the floor height for world positions on layer.
func (w *Walker) Elevation(layer int32) float64 {
	if w.buildings == nil {
		return 0
	}
	return w.buildings.Elevation(layer)
}

// Walkable checks the tile-level rules: static collision, terrain and the
// per-layer footprint test.
func (w *Walker) Walkable(layer int32, c tile.Coord) bool {
	if layer == 0 {
		if w.terrain != nil {
			if !w.terrain.InBounds(c) || w.terrain.Collision(c) {
				return false
			}
			if w.terrain.Water(c) || w.terrain.Steep(c) {
				return false
			}
		}
		// ground tiles under a roof are only reachable through a door
		if w.buildings != nil && w.buildings.FootprintAt(c) && !w.buildings.IsDoorTile(0, c) {
			return false
		}
		return true
	}

	if w.buildings == nil || w.buildings.Blocked(layer, c) {
		return false
	}
	return w.buildings.Inside(layer, c) || w.buildings.IsDoorTile(layer, c)
}

// CanStep reports whether one step from `from` in direction h is legal.
// Diagonal steps may not cut a corner: both orthogonal neighbours must be
// walkable too.
func (w *Walker) CanStep(layer int32, from tile.Coord, h tile.Heading) bool {
	if h < tile.North || h > tile.NorthWest {
		return false
	}
	to := from.Step(h)
	if !w.Walkable(layer, to) {
		return false
	}
	if layer == 0 && w.terrain != nil && !w.terrain.EdgePassable(from, h) {
		return false
	}
	if w.buildings != nil {
		if w.buildings.WallBlocks(layer, from, h) || w.buildings.StairBlocks(layer, to, h) {
			return false
		}
	}
	if h.Diagonal() {
		dx, dz := tile.HeadingDX[h], tile.HeadingDZ[h]
		if !w.Walkable(layer, from.Add(dx, 0)) || !w.Walkable(layer, from.Add(0, dz)) {
			return false
		}
	}
	return true
}
