package world

import (
	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/tile"
)

type occKey struct {
	layer int32
	c     tile.Coord
}

// Occupancy is the tile→entity exclusivity map. One entity per tile per
// vertical layer; an entity holds at most one tile.
// Accessed only from the game loop goroutine, no locks.
type Occupancy struct {
	tiles    map[occKey]ecs.EntityID
	byEntity map[ecs.EntityID]occKey
}

func NewOccupancy() *Occupancy {
	return &Occupancy{
		tiles:    make(map[occKey]ecs.EntityID, 1024),
		byEntity: make(map[ecs.EntityID]occKey, 1024),
	}
}

// Occupy claims (layer, c) for id, releasing whatever tile id held before.
// Returns false, leaving id where it was, if another entity holds the tile.
func (o *Occupancy) Occupy(layer int32, c tile.Coord, id ecs.EntityID) bool {
	k := occKey{layer: layer, c: c}
	if holder, ok := o.tiles[k]; ok {
		return holder == id
	}
	if old, ok := o.byEntity[id]; ok {
		delete(o.tiles, old)
	}
	o.tiles[k] = id
	o.byEntity[id] = k
	return true
}

// Vacate releases the tile held by id, if any.
func (o *Occupancy) Vacate(id ecs.EntityID) {
	if old, ok := o.byEntity[id]; ok {
		delete(o.tiles, old)
		delete(o.byEntity, id)
	}
}

// IsOccupied returns true if any entity other than exclude holds the tile.
func (o *Occupancy) IsOccupied(layer int32, c tile.Coord, exclude ecs.EntityID) bool {
	holder, ok := o.tiles[occKey{layer: layer, c: c}]
	return ok && holder != exclude
}

// OccupantAt returns the holder of the tile, or 0 if empty.
func (o *Occupancy) OccupantAt(layer int32, c tile.Coord) ecs.EntityID {
	return o.tiles[occKey{layer: layer, c: c}]
}

// Where returns the tile held by id.
func (o *Occupancy) Where(id ecs.EntityID) (int32, tile.Coord, bool) {
	k, ok := o.byEntity[id]
	return k.layer, k.c, ok
}

func (o *Occupancy) Len() int {
	return len(o.tiles)
}
