package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
	"github.com/tickrpg/server/internal/tile"
)

func TestOccupancyIsExclusivePerLayer(t *testing.T) {
	o := NewOccupancy()
	c := tile.Coord{X: 4, Z: 4}

	require.True(t, o.Occupy(GroundLayer, c, 1))
	assert.False(t, o.Occupy(GroundLayer, c, 2), "second entity cannot share a tile")
	assert.True(t, o.Occupy(7, c, 2), "same tile on another layer is free")
	assert.True(t, o.IsOccupied(GroundLayer, c, 2))
	assert.False(t, o.IsOccupied(GroundLayer, c, 1), "own tile never blocks")

	// moving releases the previous tile
	require.True(t, o.Occupy(GroundLayer, c.Add(1, 0), 1))
	assert.False(t, o.IsOccupied(GroundLayer, c, 0))
	layer, at, ok := o.Where(1)
	require.True(t, ok)
	assert.Equal(t, GroundLayer, layer)
	assert.Equal(t, c.Add(1, 0), at)

	o.Vacate(1)
	assert.Equal(t, ecs.EntityID(0), o.OccupantAt(GroundLayer, c.Add(1, 0)))
	assert.Equal(t, 1, o.Len())
}

func TestStatePublishesPopulationEvents(t *testing.T) {
	bus := event.NewBus()
	var spawned, despawned []ecs.EntityID
	event.Subscribe(bus, func(e event.EntitySpawned) { spawned = append(spawned, e.EntityID) })
	event.Subscribe(bus, func(e event.EntityDespawned) { despawned = append(despawned, e.EntityID) })

	s := NewState(bus)
	s.AddPlayer(&Player{ID: 10, SessionID: 1, Tile: tile.Coord{X: 1, Z: 1}})
	s.AddNpc(&Npc{ID: 11, Tile: tile.Coord{X: 2, Z: 2}})
	s.RemovePlayer(10)
	s.RemovePlayer(10)

	assert.Equal(t, []ecs.EntityID{10, 11}, spawned)
	assert.Equal(t, []ecs.EntityID{10}, despawned)
	assert.False(t, s.Occupancy().IsOccupied(GroundLayer, tile.Coord{X: 1, Z: 1}, 0))
}

func TestPlayersByJoinOrder(t *testing.T) {
	s := NewState(event.NewBus())
	s.AddPlayer(&Player{ID: 30, SessionID: 3, Tile: tile.Coord{X: 3}})
	s.AddPlayer(&Player{ID: 20, SessionID: 2, Tile: tile.Coord{X: 2}})
	s.AddPlayer(&Player{ID: 40, SessionID: 4, Tile: tile.Coord{X: 4}})

	var ids []ecs.EntityID
	for _, p := range s.PlayersByJoinOrder() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []ecs.EntityID{30, 20, 40}, ids)
	assert.Same(t, s.Player(20), s.PlayerBySession(2))
}

func TestNearbyPlayersFiltersLayerAndRange(t *testing.T) {
	s := NewState(event.NewBus())
	s.AddPlayer(&Player{ID: 1, SessionID: 1, Tile: tile.Coord{X: 10, Z: 10}})
	s.AddPlayer(&Player{ID: 2, SessionID: 2, Tile: tile.Coord{X: 24, Z: 10}})
	s.AddPlayer(&Player{ID: 3, SessionID: 3, Tile: tile.Coord{X: 11, Z: 10}, Layer: 5})

	near := s.NearbyPlayers(GroundLayer, tile.Coord{X: 10, Z: 10}, 15)
	require.Len(t, near, 2)
	assert.Equal(t, ecs.EntityID(1), near[0].ID)
	assert.Equal(t, ecs.EntityID(2), near[1].ID)

	s.Relocate(2, GroundLayer, tile.Coord{X: 40, Z: 10}, tile.East)
	near = s.NearbyPlayers(GroundLayer, tile.Coord{X: 10, Z: 10}, 15)
	require.Len(t, near, 1)
}

func TestApplyDamageAndModal(t *testing.T) {
	bus := event.NewBus()
	var closed []string
	event.Subscribe(bus, func(e event.ModalClosed) { closed = append(closed, e.Kind) })

	s := NewState(bus)
	s.AddPlayer(&Player{ID: 1, SessionID: 1, HP: 10, MaxHP: 10})

	left, ok := s.ApplyDamage(1, 4)
	require.True(t, ok)
	assert.Equal(t, int32(6), left)
	left, _ = s.ApplyDamage(1, 40)
	assert.Zero(t, left)

	_, ok = s.ApplyDamage(99, 1)
	assert.False(t, ok)

	require.True(t, s.OpenModal(1, "shop"))
	assert.True(t, s.IsModalOpen(1))
	s.CloseModal(1)
	s.CloseModal(1)
	assert.False(t, s.IsModalOpen(1))
	assert.Equal(t, []string{"shop"}, closed)
}
