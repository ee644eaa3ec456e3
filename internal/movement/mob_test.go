package movement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/data"
	"github.com/tickrpg/server/internal/tile"
)

func TestChasingNpcsClaimDistinctMeleeTiles(t *testing.T) {
	f := newFixture(t, NewWalker(nil, nil), nil)
	target := tile.Coord{X: 10, Z: 10}
	f.addPlayer(1, target)
	a := f.addNpc(101, tile.Coord{X: 10, Z: 14}, 0)
	b := f.addNpc(102, tile.Coord{X: 10, Z: 15}, 0)

	f.mob.BeginTick()
	assert.Equal(t, ChaseMoved, f.mob.Chase(a, 0, target, 1))
	assert.Equal(t, ChaseMoved, f.mob.Chase(b, 0, target, 1))

	assert.Equal(t, ecs.EntityID(101), f.mob.ClaimedBy(0, tile.Coord{X: 10, Z: 11}))
	assert.Equal(t, ecs.EntityID(102), f.mob.ClaimedBy(0, tile.Coord{X: 11, Z: 10}))

	endA := f.mob.Remaining(101)
	endB := f.mob.Remaining(102)
	require.NotEmpty(t, endA)
	require.NotEmpty(t, endB)
	assert.NotEqual(t, endA[len(endA)-1], endB[len(endB)-1])

	// next tick the claims are fresh
	f.mob.BeginTick()
	assert.Zero(t, f.mob.ClaimedBy(0, tile.Coord{X: 10, Z: 11}))
}

func TestChaseNeverLeavesLeash(t *testing.T) {
	f := newFixture(t, NewWalker(nil, nil), nil)
	spawn := tile.Coord{X: 0, Z: 0}
	target := tile.Coord{X: 10, Z: 0}
	f.addPlayer(1, target)
	n := f.addNpc(101, spawn, 3)

	var last ChaseResult
	for tick := uint64(1); tick <= 8; tick++ {
		f.mob.BeginTick()
		last = f.mob.Chase(n, 0, target, tick)
		assert.LessOrEqual(t, tile.Chebyshev(n.Tile, spawn), int32(3))
		for _, c := range f.mob.Remaining(n.ID) {
			assert.LessOrEqual(t, tile.Chebyshev(c, spawn), int32(3), "planned tile %s", c)
		}
	}
	assert.Equal(t, tile.Coord{X: 3, Z: 0}, n.Tile, "stops short at the leash edge")
	assert.Equal(t, ChaseLeashed, last)
}

func TestBlockedNpcKeepsPath(t *testing.T) {
	f := newFixture(t, NewWalker(nil, nil), nil)
	target := tile.Coord{X: 5, Z: 0}
	f.addPlayer(1, target)
	n := f.addNpc(101, tile.Coord{X: 0, Z: 0}, 0)
	require.True(t, f.ws.Occupancy().Occupy(0, tile.Coord{X: 1, Z: 0}, 999))

	f.mob.BeginTick()
	assert.Equal(t, ChaseBlocked, f.mob.Chase(n, 0, target, 1))
	assert.Equal(t, tile.Coord{X: 0, Z: 0}, n.Tile)
	kept := f.mob.Remaining(n.ID)
	require.Len(t, kept, 4)
	assert.Equal(t, tile.Coord{X: 1, Z: 0}, kept[0], "no reroute around the blocker")

	f.ws.Occupancy().Vacate(999)
	f.mob.BeginTick()
	assert.Equal(t, ChaseMoved, f.mob.Chase(n, 0, target, 2))
	assert.Equal(t, tile.Coord{X: 1, Z: 0}, n.Tile)
	assert.Len(t, f.mob.Remaining(n.ID), 3)
}

func TestCombatRangeRule(t *testing.T) {
	f := newFixture(t, NewWalker(nil, nil), nil)
	target := tile.Coord{X: 0, Z: 0}
	f.addPlayer(1, target)

	melee := f.addNpc(101, tile.Coord{X: 1, Z: 1}, 0)
	f.mob.BeginTick()
	assert.Equal(t, ChaseMoved, f.mob.Chase(melee, 0, target, 1), "diagonal is not melee range")
	assert.True(t, tile.CardinalAdjacent(melee.Tile, target))

	archer := f.addNpc(102, tile.Coord{X: 2, Z: 2}, 0)
	archer.CombatRange = 2
	assert.Equal(t, ChaseInRange, f.mob.Chase(archer, 0, target, 1))
	assert.Equal(t, tile.Coord{X: 2, Z: 2}, archer.Tile)

	assert.Equal(t, ChaseLost, f.mob.Chase(archer, 3, target, 1))
}

func TestGreedyChaseGetsStuckBehindWall(t *testing.T) {
	f := newFixture(t, NewWalker(wallTerrain(t), nil), nil)
	target := tile.Coord{X: 8, Z: 5}
	f.addPlayer(1, target)
	n := f.addNpc(101, tile.Coord{X: 3, Z: 5}, 0)

	for tick := uint64(1); tick <= 5; tick++ {
		f.mob.BeginTick()
		f.mob.Chase(n, 0, target, tick)
	}
	assert.Equal(t, tile.Coord{X: 4, Z: 5}, n.Tile, "greedy stepping does not route around")

	f.mob.BeginTick()
	assert.Equal(t, ChaseStuck, f.mob.Chase(n, 0, target, 6))
}

func TestWanderAndReturnHome(t *testing.T) {
	ter := data.NewTerrain(0, 0, 19, 19, data.TileOpen)
	f := newFixture(t, NewWalker(ter, nil), nil)
	n := f.addNpc(101, tile.Coord{X: 10, Z: 10}, 0)
	n.WanderRadius = 1

	assert.True(t, f.mob.Wander(n, tile.East, 1))
	assert.Equal(t, tile.Coord{X: 11, Z: 10}, n.Tile)
	assert.False(t, f.mob.Wander(n, tile.East, 2), "outside wander radius")

	n.TilesPerTick = 2
	n.Tile = tile.Coord{X: 14, Z: 10}
	f.ws.Occupancy().Occupy(0, n.Tile, n.ID)
	for tick := uint64(3); tick < 10 && n.Tile != n.SpawnTile; tick++ {
		f.mob.StepToward(n, n.SpawnTile, tick)
	}
	assert.Equal(t, n.SpawnTile, n.Tile)
}
