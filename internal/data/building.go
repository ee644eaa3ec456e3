package data

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tickrpg/server/internal/tile"
)

// Rect is an inclusive tile rectangle.
type Rect struct {
	MinX int32 `yaml:"min_x"`
	MinZ int32 `yaml:"min_z"`
	MaxX int32 `yaml:"max_x"`
	MaxZ int32 `yaml:"max_z"`
}

func (r Rect) Contains(c tile.Coord) bool {
	return c.X >= r.MinX && c.X <= r.MaxX && c.Z >= r.MinZ && c.Z <= r.MaxZ
}

// Wall blocks one edge of a tile.
type Wall struct {
	X    int32  `yaml:"x"`
	Z    int32  `yaml:"z"`
	Side string `yaml:"side"` // north, east, south, west
}

// Stair restricts from which directions its tile may be entered.
type Stair struct {
	X    int32    `yaml:"x"`
	Z    int32    `yaml:"z"`
	From []string `yaml:"from"` // side the walker comes from, e.g. "south"
}

// Building is one navigable floor. Floors of the same house share a
// footprint and differ by Layer.
type Building struct {
	ID        int32        `yaml:"id"`
	Name      string       `yaml:"name"`
	Layer     int32        `yaml:"layer"`
	Floor     int          `yaml:"floor"`
	Elevation float64      `yaml:"elevation"`
	Footprint Rect         `yaml:"footprint"`
	Blocked   []tile.Coord `yaml:"blocked"`
	Walls     []Wall       `yaml:"walls"`
	Stairs    []Stair      `yaml:"stairs"`
}

// Endpoint is one side of a door on a given layer.
type Endpoint struct {
	Layer int32      `yaml:"layer"`
	Tile  tile.Coord `yaml:"tile"`
}

// Door links two endpoints; standing on one end transfers to the other.
type Door struct {
	ID int32    `yaml:"id"`
	A  Endpoint `yaml:"a"`
	B  Endpoint `yaml:"b"`
}

// DoorLink is a door seen from one side.
type DoorLink struct {
	DoorID int32
	Near   Endpoint
	Far    Endpoint
}

type layerTile struct {
	layer int32
	c     tile.Coord
}

// edgeKey names a tile's north or east edge.
type edgeKey struct {
	layer int32
	c     tile.Coord
	east  bool
}

// BuildingTable answers footprint, wall, stair and door queries.
type BuildingTable struct {
	byLayer      map[int32]*Building
	list         []*Building
	doors        []Door
	doorAt       map[layerTile]DoorLink
	byLayerDoors map[int32][]DoorLink
	walls        map[edgeKey]bool
	stairs       map[layerTile][]tile.Heading
	blocked      map[layerTile]bool
}

type buildingListFile struct {
	Buildings []Building `yaml:"buildings"`
	Doors     []Door     `yaml:"doors"`
}

// LoadBuildingTable loads buildings and doors from a YAML file.
func LoadBuildingTable(path string) (*BuildingTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read building_list: %w", err)
	}
	var f buildingListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse building_list: %w", err)
	}
	return NewBuildingTable(f.Buildings, f.Doors)
}

// NewBuildingTable indexes buildings and doors.
func NewBuildingTable(buildings []Building, doors []Door) (*BuildingTable, error) {
	t := &BuildingTable{
		byLayer:      make(map[int32]*Building, len(buildings)),
		doorAt:       make(map[layerTile]DoorLink, len(doors)*2),
		byLayerDoors: make(map[int32][]DoorLink),
		walls:        make(map[edgeKey]bool),
		stairs:       make(map[layerTile][]tile.Heading),
		blocked:      make(map[layerTile]bool),
	}
	for i := range buildings {
		b := &buildings[i]
		if b.Layer == 0 {
			return nil, fmt.Errorf("building %d: layer 0 is reserved for ground", b.ID)
		}
		if _, dup := t.byLayer[b.Layer]; dup {
			return nil, fmt.Errorf("building %d: duplicate layer %d", b.ID, b.Layer)
		}
		t.byLayer[b.Layer] = b
		t.list = append(t.list, b)
		for _, c := range b.Blocked {
			t.blocked[layerTile{b.Layer, c}] = true
		}
		for _, w := range b.Walls {
			k, err := wallEdge(b.Layer, w)
			if err != nil {
				return nil, fmt.Errorf("building %d: %w", b.ID, err)
			}
			t.walls[k] = true
		}
		for _, s := range b.Stairs {
			var allowed []tile.Heading
			for _, side := range s.From {
				h, ok := sideHeading[side]
				if !ok {
					return nil, fmt.Errorf("building %d: stair side %q", b.ID, side)
				}
				// entering from the south side means walking north
				allowed = append(allowed, h.Opposite())
			}
			t.stairs[layerTile{b.Layer, tile.Coord{X: s.X, Z: s.Z}}] = allowed
		}
	}
	sort.Slice(t.list, func(i, j int) bool { return t.list[i].Layer < t.list[j].Layer })

	for _, d := range doors {
		for _, end := range []Endpoint{d.A, d.B} {
			if end.Layer != 0 {
				if _, ok := t.byLayer[end.Layer]; !ok {
					return nil, fmt.Errorf("door %d: unknown layer %d", d.ID, end.Layer)
				}
			}
		}
		t.doors = append(t.doors, d)
		ab := DoorLink{DoorID: d.ID, Near: d.A, Far: d.B}
		ba := DoorLink{DoorID: d.ID, Near: d.B, Far: d.A}
		t.doorAt[layerTile{d.A.Layer, d.A.Tile}] = ab
		t.doorAt[layerTile{d.B.Layer, d.B.Tile}] = ba
		t.byLayerDoors[d.A.Layer] = append(t.byLayerDoors[d.A.Layer], ab)
		t.byLayerDoors[d.B.Layer] = append(t.byLayerDoors[d.B.Layer], ba)
	}
	return t, nil
}

var sideHeading = map[string]tile.Heading{
	"north": tile.North,
	"east":  tile.East,
	"south": tile.South,
	"west":  tile.West,
}

// wallEdge normalizes a wall to the north or east edge of some tile.
func wallEdge(layer int32, w Wall) (edgeKey, error) {
	c := tile.Coord{X: w.X, Z: w.Z}
	switch w.Side {
	case "north":
		return edgeKey{layer, c, false}, nil
	case "east":
		return edgeKey{layer, c, true}, nil
	case "south":
		return edgeKey{layer, c.Add(0, 1), false}, nil
	case "west":
		return edgeKey{layer, c.Add(-1, 0), true}, nil
	}
	return edgeKey{}, fmt.Errorf("wall side %q", w.Side)
}

// Count returns the number of building floors.
func (t *BuildingTable) Count() int { return len(t.list) }

// DoorCount returns the number of doors.
func (t *BuildingTable) DoorCount() int { return len(t.doors) }

// Building returns the floor with the given layer.
func (t *BuildingTable) Building(layer int32) (*Building, bool) {
	b, ok := t.byLayer[layer]
	return b, ok
}

// Buildings returns all floors ordered by layer.
func (t *BuildingTable) Buildings() []*Building { return t.list }

// FootprintAt reports whether any building covers the ground tile c.
func (t *BuildingTable) FootprintAt(c tile.Coord) bool {
	for _, b := range t.list {
		if b.Footprint.Contains(c) {
			return true
		}
	}
	return false
}

// Inside reports whether c is within the footprint of the floor on layer.
func (t *BuildingTable) Inside(layer int32, c tile.Coord) bool {
	b, ok := t.byLayer[layer]
	return ok && b.Footprint.Contains(c)
}

func (t *BuildingTable) IsDoorTile(layer int32, c tile.Coord) bool {
	_, ok := t.doorAt[layerTile{layer, c}]
	return ok
}

// DoorAt returns the door whose near end is (layer, c).
func (t *BuildingTable) DoorAt(layer int32, c tile.Coord) (DoorLink, bool) {
	d, ok := t.doorAt[layerTile{layer, c}]
	return d, ok
}

// DoorsOn returns every door with a near end on layer, in load order.
func (t *BuildingTable) DoorsOn(layer int32) []DoorLink {
	return t.byLayerDoors[layer]
}

// Blocked reports static furniture inside a floor.
func (t *BuildingTable) Blocked(layer int32, c tile.Coord) bool {
	return t.blocked[layerTile{layer, c}]
}

// WallBlocks reports whether moving from c toward h crosses a wall edge.
// Diagonal moves are blocked by a wall on any of the four edges around the
// corner they pass.
func (t *BuildingTable) WallBlocks(layer int32, c tile.Coord, h tile.Heading) bool {
	dx, dz := tile.HeadingDX[h], tile.HeadingDZ[h]
	if !h.Diagonal() {
		return t.cardinalWall(layer, c, dx, dz)
	}
	viaX := c.Add(dx, 0)
	viaZ := c.Add(0, dz)
	return t.cardinalWall(layer, c, dx, 0) ||
		t.cardinalWall(layer, c, 0, dz) ||
		t.cardinalWall(layer, viaX, 0, dz) ||
		t.cardinalWall(layer, viaZ, dx, 0)
}

func (t *BuildingTable) cardinalWall(layer int32, c tile.Coord, dx, dz int32) bool {
	switch {
	case dz < 0:
		return t.walls[edgeKey{layer, c, false}]
	case dz > 0:
		return t.walls[edgeKey{layer, c.Add(0, 1), false}]
	case dx > 0:
		return t.walls[edgeKey{layer, c, true}]
	case dx < 0:
		return t.walls[edgeKey{layer, c.Add(-1, 0), true}]
	}
	return false
}

// StairBlocks reports whether entering stair tile `to` while moving in
// direction h is disallowed.
func (t *BuildingTable) StairBlocks(layer int32, to tile.Coord, h tile.Heading) bool {
	allowed, ok := t.stairs[layerTile{layer, to}]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == h {
			return false
		}
	}
	return true
}

// Elevation returns the floor height of layer; ground is 0.
func (t *BuildingTable) Elevation(layer int32) float64 {
	if b, ok := t.byLayer[layer]; ok {
		return b.Elevation
	}
	return 0
}
