package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickrpg/server/internal/tile"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadTerrain(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "terrain.yaml", `
name: test
min_x: 10
min_z: 20
max_x: 12
max_z: 21
tile_file: ground.txt
default: 3
`)
	writeFile(t, dir, "ground.txt", "# z=20\n3,7,131\n3,11,0\n")

	ter, err := LoadTerrain(yamlPath, dir)
	require.NoError(t, err)
	assert.Equal(t, 6, ter.Count())

	assert.True(t, ter.Water(tile.Coord{X: 11, Z: 20}))
	assert.True(t, ter.Collision(tile.Coord{X: 12, Z: 20}))
	assert.True(t, ter.Steep(tile.Coord{X: 11, Z: 21}))
	assert.True(t, ter.Collision(tile.Coord{X: 9, Z: 20}), "out of bounds is solid")
	assert.False(t, ter.Collision(tile.Coord{X: 10, Z: 21}))
}

func TestTerrainEdges(t *testing.T) {
	ter := NewTerrain(0, 0, 9, 9, TileOpen)
	c := tile.Coord{X: 5, Z: 5}
	assert.True(t, ter.EdgePassable(c, tile.North))

	// closing the north edge of (5,5) blocks both directions across it
	ter.SetFlag(c, TilePassableNorth, false)
	assert.False(t, ter.EdgePassable(c, tile.North))
	assert.False(t, ter.EdgePassable(c.Add(0, -1), tile.South))
	assert.True(t, ter.EdgePassable(c, tile.East))

	// a fully closed tile cannot be entered
	ter.Set(c.Add(1, 0), 0)
	assert.False(t, ter.EdgePassable(c, tile.East))
}

func TestBuildingTable(t *testing.T) {
	buildings := []Building{
		{
			ID: 1, Name: "house", Layer: 1, Elevation: 0.2,
			Footprint: Rect{MinX: 10, MinZ: 10, MaxX: 14, MaxZ: 14},
			Walls:     []Wall{{X: 12, Z: 12, Side: "west"}},
			Stairs:    []Stair{{X: 11, Z: 11, From: []string{"south"}}},
			Blocked:   []tile.Coord{{X: 13, Z: 13}},
		},
		{ID: 1, Name: "house upstairs", Layer: 2, Floor: 1, Elevation: 3.2,
			Footprint: Rect{MinX: 10, MinZ: 10, MaxX: 14, MaxZ: 14}},
	}
	doors := []Door{
		{ID: 1, A: Endpoint{Layer: 0, Tile: tile.Coord{X: 12, Z: 14}}, B: Endpoint{Layer: 1, Tile: tile.Coord{X: 12, Z: 13}}},
		{ID: 2, A: Endpoint{Layer: 1, Tile: tile.Coord{X: 11, Z: 11}}, B: Endpoint{Layer: 2, Tile: tile.Coord{X: 11, Z: 11}}},
	}
	bt, err := NewBuildingTable(buildings, doors)
	require.NoError(t, err)

	assert.Equal(t, 2, bt.Count())
	assert.Equal(t, 2, bt.DoorCount())
	assert.True(t, bt.FootprintAt(tile.Coord{X: 10, Z: 14}))
	assert.False(t, bt.FootprintAt(tile.Coord{X: 15, Z: 14}))
	assert.True(t, bt.IsDoorTile(0, tile.Coord{X: 12, Z: 14}))
	assert.True(t, bt.Blocked(1, tile.Coord{X: 13, Z: 13}))
	assert.InDelta(t, 3.2, bt.Elevation(2), 1e-9)

	link, ok := bt.DoorAt(1, tile.Coord{X: 12, Z: 13})
	require.True(t, ok)
	assert.Equal(t, int32(0), link.Far.Layer)
	assert.Len(t, bt.DoorsOn(1), 2)

	// west wall of (12,12) == east edge of (11,12)
	assert.True(t, bt.WallBlocks(1, tile.Coord{X: 12, Z: 12}, tile.West))
	assert.True(t, bt.WallBlocks(1, tile.Coord{X: 11, Z: 12}, tile.East))
	assert.True(t, bt.WallBlocks(1, tile.Coord{X: 11, Z: 13}, tile.NorthEast), "diagonal around the wall corner")
	assert.False(t, bt.WallBlocks(1, tile.Coord{X: 12, Z: 12}, tile.North))

	// stair may only be entered from the south, i.e. walking north
	assert.False(t, bt.StairBlocks(1, tile.Coord{X: 11, Z: 11}, tile.North))
	assert.True(t, bt.StairBlocks(1, tile.Coord{X: 11, Z: 11}, tile.East))
}

func TestBuildingTableRejectsGroundLayer(t *testing.T) {
	_, err := NewBuildingTable([]Building{{ID: 3, Layer: 0}}, nil)
	require.Error(t, err)
}

func TestLoadNpcAndResources(t *testing.T) {
	dir := t.TempDir()
	npcPath := writeFile(t, dir, "npc_list.yaml", `
npcs:
  - npc_id: 45001
    name: goblin
    hp: 30
    leash: 8
    loot:
      - item: copper_coin
        chance: 0.5
        min: 1
        max: 3
`)
	spawnPath := writeFile(t, dir, "spawn_list.yaml", `
spawns:
  - npc_id: 45001
    x: 50
    z: 60
    count: 2
`)
	resPath := writeFile(t, dir, "resource_list.yaml", `
resources:
  - kind: tree
    name: oak
    x: 5
    z: 6
    yield: oak_log
`)
	npcs, err := LoadNpcTable(npcPath)
	require.NoError(t, err)
	g := npcs.Get(45001)
	require.NotNil(t, g)
	assert.Equal(t, int32(1), g.CombatRange, "defaults to melee")
	assert.Equal(t, "melee", g.AttackType)
	require.Len(t, g.Loot, 1)

	spawns, err := LoadSpawnList(spawnPath)
	require.NoError(t, err)
	require.Len(t, spawns, 1)
	assert.Equal(t, 2, spawns[0].Count)

	res, err := LoadResourceList(resPath)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 4, res[0].GatherTicks)
}
