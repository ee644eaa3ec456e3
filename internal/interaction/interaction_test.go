package interaction

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/broadcast"
	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
	"github.com/tickrpg/server/internal/tile"
	"github.com/tickrpg/server/internal/world"
)

type move struct {
	id     ecs.EntityID
	dest   tile.Coord
	rng    int32 // 0 for MoveToward
	source event.MoveSource
}

type layered struct {
	c     tile.Coord
	layer int32
}

type fakeMover struct {
	starts  map[ecs.EntityID]layered
	moving  map[ecs.EntityID]bool
	moves   []move
	explode bool
	fail    error // returned by MoveWithin when set
}

func newFakeMover() *fakeMover {
	return &fakeMover{starts: map[ecs.EntityID]layered{}, moving: map[ecs.EntityID]bool{}}
}

func (f *fakeMover) MoveToward(id ecs.EntityID, _ int32, dest tile.Coord, _ uint64, src event.MoveSource) error {
	f.moves = append(f.moves, move{id: id, dest: dest, source: src})
	f.moving[id] = true
	return nil
}

func (f *fakeMover) MoveWithin(id ecs.EntityID, _ int32, target tile.Coord, rng int32, _ uint64, src event.MoveSource) (bool, error) {
	if f.explode {
		panic("mover exploded")
	}
	if f.fail != nil {
		return false, f.fail
	}
	f.moves = append(f.moves, move{id: id, dest: target, rng: rng, source: src})
	f.moving[id] = true
	return false, nil
}

func (f *fakeMover) TickStartTile(id ecs.EntityID) (tile.Coord, int32, bool) {
	s, ok := f.starts[id]
	return s.c, s.layer, ok
}

func (f *fakeMover) IsMoving(id ecs.EntityID) bool { return f.moving[id] }

type fakeCombat struct {
	engaged map[ecs.EntityID]ecs.EntityID
}

func (c *fakeCombat) Engage(a, t ecs.EntityID) { c.engaged[a] = t }
func (c *fakeCombat) Disengage(a ecs.EntityID) { delete(c.engaged, a) }

type fakeGatherer struct {
	ws      *world.State
	started []ecs.EntityID
}

func (g *fakeGatherer) IsNode(id ecs.EntityID) bool { return g.ws.Node(id) != nil }
func (g *fakeGatherer) StartGathering(_, node ecs.EntityID, _ uint64) bool {
	g.started = append(g.started, node)
	return true
}

type harness struct {
	bus      *event.Bus
	ws       *world.State
	mover    *fakeMover
	combat   *fakeCombat
	gatherer *fakeGatherer
	out      *broadcast.Queue
	m        *Managers
}

func newHarness(gatherTimeout uint64) *harness {
	h := &harness{
		bus:    event.NewBus(),
		mover:  newFakeMover(),
		combat: &fakeCombat{engaged: map[ecs.EntityID]ecs.EntityID{}},
		out:    broadcast.NewQueue(),
	}
	h.ws = world.NewState(h.bus)
	h.gatherer = &fakeGatherer{ws: h.ws}
	log := zap.NewNop()
	rangeOf := func(id ecs.EntityID) int32 {
		if p := h.ws.Player(id); p != nil {
			return p.AttackRange
		}
		return 1
	}
	h.m = &Managers{
		Attack: NewAttackManager(h.ws, h.mover, h.combat, rangeOf, log),
		Follow: NewFollowManager(h.ws, h.mover, log),
		Gather: NewGatherManager(h.ws, h.mover, h.gatherer, 1, gatherTimeout, log),
		Duel:   NewDuelManager(h.ws, h.mover, h.out, h.bus, 5, log),
	}
	h.m.Subscribe(h.bus)
	return h
}

func (h *harness) player(id ecs.EntityID, x, z int32) *world.Player {
	p := &world.Player{ID: id, SessionID: uint64(id), Tile: tile.Coord{X: x, Z: z}, HP: 10, MaxHP: 10, AttackRange: 1}
	h.ws.AddPlayer(p)
	return p
}

func (h *harness) npc(id ecs.EntityID, x, z int32) *world.Npc {
	n := &world.Npc{ID: id, Tile: tile.Coord{X: x, Z: z}, HP: 10, MaxHP: 10}
	h.ws.AddNpc(n)
	return n
}

func (h *harness) moveTo(id ecs.EntityID, x, z int32) {
	h.ws.Relocate(id, 0, tile.Coord{X: x, Z: z}, tile.North)
}

func TestAttackWalksThenEngages(t *testing.T) {
	h := newHarness(20)
	h.player(1, 0, 0)
	h.npc(100, 4, 0)
	require.NoError(t, h.m.RequestAttack(1, 100, 1))

	h.m.Process(1, 1)
	require.Len(t, h.mover.moves, 1)
	assert.Equal(t, move{id: 1, dest: tile.Coord{X: 4, Z: 0}, rng: 1, source: event.MoveFromInteraction}, h.mover.moves[0])

	h.m.Process(1, 2)
	assert.Len(t, h.mover.moves, 1, "target did not move, keep the path")

	h.moveTo(100, 5, 0)
	h.m.Process(1, 3)
	require.Len(t, h.mover.moves, 2)
	assert.Equal(t, tile.Coord{X: 5, Z: 0}, h.mover.moves[1].dest)

	h.moveTo(1, 4, 0)
	h.m.Process(1, 4)
	assert.Equal(t, ecs.EntityID(100), h.combat.engaged[1])
	_, pending := h.m.Pending(1)
	assert.False(t, pending)
}

func TestAttackRangeUsesCardinalAdjacency(t *testing.T) {
	h := newHarness(20)
	h.player(1, 0, 0)
	h.npc(100, 1, 1)
	require.NoError(t, h.m.RequestAttack(1, 100, 1))
	h.m.Process(1, 1)
	assert.Empty(t, h.combat.engaged, "diagonal is out of melee range")
	assert.Len(t, h.mover.moves, 1)
}

func TestAttackTargetLostEndsSilently(t *testing.T) {
	h := newHarness(20)
	h.player(1, 0, 0)
	h.npc(100, 4, 0)
	require.NoError(t, h.m.RequestAttack(1, 100, 1))
	h.ws.Npc(100).Dead = true

	h.m.Process(1, 1)
	assert.Empty(t, h.mover.moves)
	assert.Empty(t, h.combat.engaged)
	assert.False(t, h.m.Attack.Has(1))

	assert.ErrorIs(t, h.m.RequestAttack(1, 100, 2), ErrNoTarget)
	assert.ErrorIs(t, h.m.RequestAttack(1, 1, 2), ErrSelfTarget)
}

func TestAttackSurvivesPathFailure(t *testing.T) {
	h := newHarness(20)
	h.player(1, 0, 0)
	h.npc(100, 4, 0)
	require.NoError(t, h.m.RequestAttack(1, 100, 1))

	h.mover.fail = errors.New("no path")
	for tick := uint64(1); tick <= 3; tick++ {
		h.m.Process(1, tick)
		require.True(t, h.m.Attack.Has(1), "tick %d", tick)
	}

	h.mover.fail = nil
	h.m.Process(1, 4)
	require.Len(t, h.mover.moves, 1, "path retried once the mover recovers")
	assert.Equal(t, tile.Coord{X: 4, Z: 0}, h.mover.moves[0].dest)
}

func TestDuelSurvivesPathFailure(t *testing.T) {
	h := newHarness(20)
	h.player(1, 0, 0)
	h.player(2, 9, 0)
	require.NoError(t, h.m.RequestDuel(1, 2, 1))

	h.mover.fail = errors.New("no door")
	h.m.Process(1, 1)
	h.m.Process(1, 2)
	assert.True(t, h.m.Duel.Has(1))
}

func TestTargetOutOfRangeRepursues(t *testing.T) {
	h := newHarness(20)
	h.player(1, 0, 0)
	h.npc(100, 3, 0)
	event.Publish(h.bus, event.TargetOutOfRange{AttackerID: 1, TargetID: 100, Tick: 7})
	p, ok := h.m.Attack.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint64(7), p.CreatedTick)
}

func TestFollowWaitsOneTickAndTargetsTickStartTile(t *testing.T) {
	h := newHarness(20)
	h.player(1, 0, 0)
	h.player(2, 11, 10)
	h.mover.starts[2] = layered{c: tile.Coord{X: 10, Z: 10}}
	require.NoError(t, h.m.RequestFollow(1, 2, 5))

	h.m.Process(1, 5)
	assert.Empty(t, h.mover.moves, "no movement on the registration tick")

	h.m.Process(1, 6)
	require.Len(t, h.mover.moves, 1)
	assert.Equal(t, tile.Coord{X: 10, Z: 10}, h.mover.moves[0].dest, "tick-start tile, not live tile")
	assert.Zero(t, h.mover.moves[0].rng)

	h.m.Process(1, 7)
	assert.Len(t, h.mover.moves, 1, "same tick-start tile, no new path")

	h.mover.starts[2] = layered{c: tile.Coord{X: 11, Z: 10}}
	h.moveTo(2, 12, 10)
	h.m.Process(1, 8)
	require.Len(t, h.mover.moves, 2)
	assert.Equal(t, tile.Coord{X: 11, Z: 10}, h.mover.moves[1].dest)
	assert.True(t, h.m.Follow.Has(1), "follow never completes on its own")
}

func TestFollowStandingLeaderStopsAdjacent(t *testing.T) {
	h := newHarness(20)
	h.player(1, 0, 0)
	h.player(2, 5, 0)
	require.NoError(t, h.m.RequestFollow(1, 2, 1))
	h.m.Process(1, 2)
	require.Len(t, h.mover.moves, 1)
	assert.Equal(t, int32(1), h.mover.moves[0].rng)

	assert.ErrorIs(t, h.m.RequestFollow(1, 1, 3), ErrSelfTarget)
	h.npc(100, 9, 9)
	assert.ErrorIs(t, h.m.RequestFollow(1, 100, 3), ErrBadTarget)
}

func TestGatherTimesOut(t *testing.T) {
	h := newHarness(3)
	h.player(1, 0, 0)
	h.ws.AddNode(&world.ResourceNode{ID: 500, Kind: "tree", Tile: tile.Coord{X: 30, Z: 0}, Charges: 3})
	require.NoError(t, h.m.RequestGather(1, 500, 1))

	for tick := uint64(1); tick <= 4; tick++ {
		h.m.Process(1, tick)
		assert.True(t, h.m.Gather.Has(1), "tick %d", tick)
	}
	h.m.Process(1, 5)
	assert.False(t, h.m.Gather.Has(1))
	assert.Empty(t, h.gatherer.started)
}

func TestGatherStartsWhenAdjacent(t *testing.T) {
	h := newHarness(20)
	h.player(1, 0, 0)
	h.ws.AddNode(&world.ResourceNode{ID: 500, Kind: "rock", Tile: tile.Coord{X: 0, Z: 1}, Charges: 1})
	require.NoError(t, h.m.RequestGather(1, 500, 1))
	h.m.Process(1, 1)
	assert.Equal(t, []ecs.EntityID{500}, h.gatherer.started)
	assert.Empty(t, h.mover.moves)

	h.npc(100, 3, 3)
	assert.ErrorIs(t, h.m.RequestGather(1, 100, 2), ErrBadTarget)
}

func TestDuelChallengeSentInRange(t *testing.T) {
	h := newHarness(20)
	h.player(1, 0, 0)
	h.player(2, 9, 0)
	var challenged []event.DuelChallenged
	event.Subscribe(h.bus, func(e event.DuelChallenged) { challenged = append(challenged, e) })

	require.NoError(t, h.m.RequestDuel(1, 2, 1))
	h.m.Process(1, 1)
	assert.Len(t, h.mover.moves, 1)
	assert.Empty(t, challenged)

	h.moveTo(1, 4, 0)
	h.m.Process(1, 2)
	require.Len(t, challenged, 1)
	assert.Equal(t, ecs.EntityID(2), challenged[0].TargetID)
	assert.Equal(t, 1, h.out.Len())

	h.npc(100, 1, 1)
	assert.ErrorIs(t, h.m.RequestDuel(1, 100, 3), ErrBadTarget)
}

func TestOnePendingInteractionPerPlayer(t *testing.T) {
	h := newHarness(20)
	h.player(1, 0, 0)
	h.player(2, 5, 5)
	h.npc(100, 4, 0)
	require.NoError(t, h.m.RequestAttack(1, 100, 1))
	require.NoError(t, h.m.RequestFollow(1, 2, 1))
	kind, ok := h.m.Pending(1)
	require.True(t, ok)
	assert.Equal(t, KindFollow, kind)
	assert.False(t, h.m.Attack.Has(1))
}

func TestCancelMissingIsNoop(t *testing.T) {
	h := newHarness(20)
	assert.NotPanics(t, func() {
		assert.False(t, h.m.CancelAll(42))
		assert.False(t, h.m.Gather.Cancel(42))
		h.m.Process(42, 1)
	})
}

func TestClientMovementCancelsPending(t *testing.T) {
	h := newHarness(20)
	h.player(1, 0, 0)
	h.npc(100, 4, 0)
	require.NoError(t, h.m.RequestAttack(1, 100, 1))

	event.Publish(h.bus, event.MovementIssued{EntityID: 1, Source: event.MoveFromInteraction})
	assert.True(t, h.m.Attack.Has(1))

	h.combat.engaged[1] = 100
	event.Publish(h.bus, event.MovementIssued{EntityID: 1, Source: event.MoveFromClient})
	assert.False(t, h.m.Attack.Has(1))
	assert.Empty(t, h.combat.engaged)
}

func TestTargetDespawnDropsEntries(t *testing.T) {
	h := newHarness(20)
	h.player(1, 0, 0)
	h.player(2, 5, 0)
	require.NoError(t, h.m.RequestDuel(1, 2, 1))
	h.ws.RemovePlayer(2)
	assert.False(t, h.m.Duel.Has(1))
}

func TestProcessRecoversPanics(t *testing.T) {
	h := newHarness(20)
	h.player(1, 0, 0)
	h.npc(100, 4, 0)
	require.NoError(t, h.m.RequestAttack(1, 100, 1))
	h.mover.explode = true
	assert.NotPanics(t, func() { h.m.Process(1, 1) })
}
