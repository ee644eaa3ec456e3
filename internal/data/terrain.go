package data

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tickrpg/server/internal/tile"
)

// Tile flag constants for ground terrain files.
const (
	TilePassableEast  byte = 0x01 // bit 0: east edge open
	TilePassableNorth byte = 0x02 // bit 1: north edge open
	TileWater         byte = 0x04 // bit 2
	TileSlope         byte = 0x08 // bit 3: too steep to stand on
	TileCollision     byte = 0x80 // bit 7: static object
	TileOpen               = TilePassableEast | TilePassableNorth
)

// TerrainInfo is the ground map header, loaded from terrain.yaml.
type TerrainInfo struct {
	Name     string `yaml:"name"`
	MinX     int32  `yaml:"min_x"`
	MinZ     int32  `yaml:"min_z"`
	MaxX     int32  `yaml:"max_x"`
	MaxZ     int32  `yaml:"max_z"`
	TileFile string `yaml:"tile_file"`
	Default  int    `yaml:"default"` // flags for tiles missing from the file
}

// Terrain is the ground-layer walkability oracle.
type Terrain struct {
	info   TerrainInfo
	tiles  []byte // flat array [x * height + z]
	width  int32
	height int32
}

// NewTerrain builds an in-memory terrain with every tile set to fill.
func NewTerrain(minX, minZ, maxX, maxZ int32, fill byte) *Terrain {
	w := maxX - minX + 1
	h := maxZ - minZ + 1
	t := &Terrain{
		info:   TerrainInfo{MinX: minX, MinZ: minZ, MaxX: maxX, MaxZ: maxZ, Default: int(fill)},
		tiles:  make([]byte, int(w)*int(h)),
		width:  w,
		height: h,
	}
	for i := range t.tiles {
		t.tiles[i] = fill
	}
	return t
}

// LoadTerrain loads the header from YAML and tile flags from a CSV text file.
func LoadTerrain(yamlPath, tileDir string) (*Terrain, error) {
	raw, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("read terrain %s: %w", yamlPath, err)
	}
	var info TerrainInfo
	if err := yaml.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("parse terrain: %w", err)
	}
	if info.MaxX < info.MinX || info.MaxZ < info.MinZ {
		return nil, fmt.Errorf("terrain %q: empty bounds", info.Name)
	}
	t := NewTerrain(info.MinX, info.MinZ, info.MaxX, info.MaxZ, byte(info.Default))
	t.info = info
	if info.TileFile == "" {
		return t, nil
	}
	if err := t.loadTileFile(filepath.Join(tileDir, info.TileFile)); err != nil {
		return nil, fmt.Errorf("terrain tiles: %w", err)
	}
	return t, nil
}

// loadTileFile reads a CSV tile file: each line is a row (one Z) of
// comma-separated flag values, one per X.
func (t *Terrain) loadTileFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	z := 0
	for scanner.Scan() && z < int(t.height) {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		x := 0
		for _, tok := range strings.Split(line, ",") {
			if x >= int(t.width) {
				break
			}
			val, err := strconv.ParseUint(strings.TrimSpace(tok), 10, 8)
			if err != nil {
				return fmt.Errorf("%s row %d col %d: %w", path, z, x, err)
			}
			t.tiles[x*int(t.height)+z] = byte(val)
			x++
		}
		z++
	}
	return scanner.Err()
}

func (t *Terrain) Info() TerrainInfo { return t.info }

// Count returns the number of tiles.
func (t *Terrain) Count() int { return len(t.tiles) }

func (t *Terrain) index(c tile.Coord) (int, bool) {
	lx := c.X - t.info.MinX
	lz := c.Z - t.info.MinZ
	if lx < 0 || lx >= t.width || lz < 0 || lz >= t.height {
		return 0, false
	}
	return int(lx)*int(t.height) + int(lz), true
}

// access returns the tile flags, or 0 (closed) if out of bounds.
func (t *Terrain) access(c tile.Coord) byte {
	i, ok := t.index(c)
	if !ok {
		return 0
	}
	return t.tiles[i]
}

// Set overwrites the flags of one tile.
func (t *Terrain) Set(c tile.Coord, flags byte) {
	if i, ok := t.index(c); ok {
		t.tiles[i] = flags
	}
}

// SetFlag sets or clears bits on one tile.
func (t *Terrain) SetFlag(c tile.Coord, flag byte, on bool) {
	i, ok := t.index(c)
	if !ok {
		return
	}
	if on {
		t.tiles[i] |= flag
	} else {
		t.tiles[i] &^= flag
	}
}

func (t *Terrain) InBounds(c tile.Coord) bool {
	_, ok := t.index(c)
	return ok
}

// Collision reports a static object on the tile. Out of bounds counts as solid.
func (t *Terrain) Collision(c tile.Coord) bool {
	i, ok := t.index(c)
	return !ok || t.tiles[i]&TileCollision != 0
}

func (t *Terrain) Water(c tile.Coord) bool {
	return t.access(c)&TileWater != 0
}

func (t *Terrain) Steep(c tile.Coord) bool {
	return t.access(c)&TileSlope != 0
}

// EdgePassable checks whether the edge crossed moving from c toward h is open.
// Each tile stores its own north and east edges; south and west edges are
// read from the neighbour.
func (t *Terrain) EdgePassable(c tile.Coord, h tile.Heading) bool {
	if h < tile.North || h > tile.NorthWest {
		return false
	}
	tile1 := t.access(c)
	dest := c.Step(h)
	tile2 := t.access(dest)

	// Destination must have at least one passability bit
	if tile2&TileOpen == 0 {
		return false
	}

	switch h {
	case tile.North:
		return tile1&TilePassableNorth != 0
	case tile.NorthEast:
		tile3 := t.access(c.Add(0, -1))
		tile4 := t.access(c.Add(1, 0))
		return tile3&TilePassableEast != 0 || tile4&TilePassableNorth != 0
	case tile.East:
		return tile1&TilePassableEast != 0
	case tile.SouthEast:
		tile3 := t.access(c.Add(0, 1))
		return tile3&TilePassableEast != 0
	case tile.South:
		return tile2&TilePassableNorth != 0
	case tile.SouthWest:
		return tile2&TilePassableEast != 0 || tile2&TilePassableNorth != 0
	case tile.West:
		return tile2&TilePassableEast != 0
	case tile.NorthWest:
		tile3 := t.access(c.Add(-1, 0))
		return tile3&TilePassableNorth != 0
	}
	return false
}
