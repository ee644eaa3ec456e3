package world

import (
	"sort"

	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/tile"
)

// AOIGrid implements a cell-based Area of Interest index.
// Cell size is chosen so that a 3x3 neighbourhood of cells fully covers
// any view range up to cellSize tiles.
// Accessed only from the game loop goroutine, no locks.

const cellSize = 20

type cellKey struct {
	layer int32
	cx    int32
	cz    int32
}

func toCellCoord(v int32) int32 {
	if v < 0 {
		return (v - cellSize + 1) / cellSize
	}
	return v / cellSize
}

// AOIGrid tracks which entities are in which cells.
type AOIGrid struct {
	cells map[cellKey]map[ecs.EntityID]struct{}
}

func NewAOIGrid() *AOIGrid {
	return &AOIGrid{
		cells: make(map[cellKey]map[ecs.EntityID]struct{}),
	}
}

func (g *AOIGrid) key(layer int32, c tile.Coord) cellKey {
	return cellKey{layer: layer, cx: toCellCoord(c.X), cz: toCellCoord(c.Z)}
}

// Add places an entity into the grid.
func (g *AOIGrid) Add(id ecs.EntityID, layer int32, c tile.Coord) {
	k := g.key(layer, c)
	cell := g.cells[k]
	if cell == nil {
		cell = make(map[ecs.EntityID]struct{})
		g.cells[k] = cell
	}
	cell[id] = struct{}{}
}

// Remove takes an entity out of the grid.
func (g *AOIGrid) Remove(id ecs.EntityID, layer int32, c tile.Coord) {
	k := g.key(layer, c)
	cell := g.cells[k]
	if cell != nil {
		delete(cell, id)
		if len(cell) == 0 {
			delete(g.cells, k)
		}
	}
}

// Move updates an entity's cell when its position changes.
func (g *AOIGrid) Move(id ecs.EntityID, oldLayer int32, oldC tile.Coord, newLayer int32, newC tile.Coord) {
	if g.key(oldLayer, oldC) == g.key(newLayer, newC) {
		return
	}
	g.Remove(id, oldLayer, oldC)
	g.Add(id, newLayer, newC)
}

// GetNearby returns entity IDs in a 3x3 neighbourhood of cells around the
// given position, sorted ascending. Caller does fine-grained distance filtering.
func (g *AOIGrid) GetNearby(layer int32, c tile.Coord) []ecs.EntityID {
	cx := toCellCoord(c.X)
	cz := toCellCoord(c.Z)
	var result []ecs.EntityID
	for dx := int32(-1); dx <= 1; dx++ {
		for dz := int32(-1); dz <= 1; dz++ {
			k := cellKey{layer: layer, cx: cx + dx, cz: cz + dz}
			for id := range g.cells[k] {
				result = append(result, id)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
