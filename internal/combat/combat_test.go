package combat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/config"
	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
	"github.com/tickrpg/server/internal/scripting"
	"github.com/tickrpg/server/internal/tile"
	"github.com/tickrpg/server/internal/world"
)

func TestHitDelay(t *testing.T) {
	cases := []struct {
		name string
		typ  world.AttackType
		dist int32
		want int
	}{
		{"melee", world.AttackMelee, 1, 0},
		{"ranged adjacent", world.AttackRanged, 0, 1},
		{"ranged nine", world.AttackRanged, 9, 3},
		{"magic eight", world.AttackMagic, 8, 4},
		{"magic clamps", world.AttackMagic, 40, 10},
		{"ranged clamps", world.AttackRanged, 100, 10},
		{"negative distance", world.AttackMagic, -5, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HitDelay(tc.typ, tc.dist))
		})
	}
}

type fixture struct {
	bus   *event.Bus
	ws    *world.State
	queue *DamageQueue
	hits  []event.DamageApplied
}

func newFixture() *fixture {
	f := &fixture{bus: event.NewBus()}
	f.ws = world.NewState(f.bus)
	f.queue = NewDamageQueue(f.ws, f.bus)
	event.Subscribe(f.bus, func(e event.DamageApplied) { f.hits = append(f.hits, e) })
	return f
}

func (f *fixture) player(id ecs.EntityID, c tile.Coord) *world.Player {
	p := &world.Player{ID: id, SessionID: uint64(id), Tile: c, HP: 50, MaxHP: 50, Level: 1, AttackRange: 1}
	f.ws.AddPlayer(p)
	return p
}

func (f *fixture) npc(id ecs.EntityID, c tile.Coord) *world.Npc {
	n := &world.Npc{ID: id, Tile: c, SpawnTile: c, HP: 30, MaxHP: 30, CombatRange: 1, AttackTicks: 3, AtkDmg: 5}
	f.ws.AddNpc(n)
	return n
}

func TestAsymmetricMeleeApplication(t *testing.T) {
	f := newFixture()
	f.player(1, tile.Coord{X: 5, Z: 5})
	f.npc(100, tile.Coord{X: 5, Z: 6})

	fromNpc := f.queue.QueueDamage(100, 1, 3, event.KindNpc, event.KindPlayer, 10)
	fromPlayer := f.queue.QueueDamage(1, 100, 4, event.KindPlayer, event.KindNpc, 10)
	assert.Equal(t, uint64(10), fromNpc.ApplyAtTick)
	assert.Equal(t, uint64(11), fromPlayer.ApplyAtTick)

	assert.Equal(t, 1, f.queue.Apply(10))
	require.Len(t, f.hits, 1)
	assert.Equal(t, ecs.EntityID(1), f.hits[0].TargetID)
	assert.Equal(t, int32(47), f.ws.Player(1).HP)
	assert.Equal(t, int32(30), f.ws.Npc(100).HP)

	assert.Equal(t, 1, f.queue.Apply(11))
	assert.Equal(t, int32(26), f.ws.Npc(100).HP)
	assert.Zero(t, f.queue.Len())

	assert.Zero(t, f.queue.Apply(12), "each hit lands once")
	assert.Len(t, f.hits, 2)
}

func TestPlayerVersusPlayerHasNoExtraTick(t *testing.T) {
	f := newFixture()
	d := f.queue.QueueDamageWithDelay(1, 2, 5, event.KindPlayer, event.KindPlayer, world.AttackRanged, 9, 20)
	assert.Equal(t, 3, d.HitDelayTicks)
	assert.Equal(t, uint64(23), d.ApplyAtTick)

	d = f.queue.QueueDamageWithDelay(1, 100, 5, event.KindPlayer, event.KindNpc, world.AttackMagic, 8, 20)
	assert.Equal(t, uint64(25), d.ApplyAtTick)
}

func TestApplyKeepsOrderAndSkipsDead(t *testing.T) {
	f := newFixture()
	f.player(1, tile.Coord{X: 1, Z: 1})
	f.npc(100, tile.Coord{X: 3, Z: 3})
	f.npc(101, tile.Coord{X: 8, Z: 8})
	f.ws.Npc(101).Dead = true

	f.queue.QueueDamageWithDelay(1, 100, 1, event.KindPlayer, event.KindNpc, world.AttackMagic, 5, 1) // 1+3+1 -> 5
	f.queue.QueueDamage(100, 1, 2, event.KindNpc, event.KindPlayer, 1)
	f.queue.QueueDamageWithDelay(1, 100, 3, event.KindPlayer, event.KindNpc, world.AttackRanged, 3, 1) // 1+1+1 -> 4
	f.queue.QueueDamage(100, 101, 9, event.KindNpc, event.KindNpc, 1)

	assert.Equal(t, 1, f.queue.Apply(2), "dead target dropped, not counted")
	pending := f.queue.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, uint64(5), pending[0].ApplyAtTick)
	assert.Equal(t, uint64(4), pending[1].ApplyAtTick)

	// a late tick fires everything due in queue order
	assert.Equal(t, 2, f.queue.Apply(9))
	require.Len(t, f.hits, 3)
	assert.Equal(t, int32(1), f.hits[1].Amount)
	assert.Equal(t, int32(3), f.hits[2].Amount)
}

type fixedRoller struct {
	result scripting.CombatResult
	calls  int
}

func (r *fixedRoller) CalcPlayerAttack(scripting.CombatContext) scripting.CombatResult {
	r.calls++
	return r.result
}

func (r *fixedRoller) CalcNpcAttack(scripting.CombatContext) scripting.CombatResult {
	r.calls++
	return r.result
}

func newEngine(f *fixture, roller Roller) *Engine {
	cfg := config.CombatConfig{PlayerAttackTicks: 2, UnarmedDamage: 4}
	return NewEngine(cfg, f.ws, f.queue, roller, 7, f.bus, zap.NewNop())
}

func TestPlayerHookSwingsOnCooldown(t *testing.T) {
	f := newFixture()
	roller := &fixedRoller{result: scripting.CombatResult{IsHit: true, Damage: 6}}
	e := newEngine(f, roller)
	p := f.player(1, tile.Coord{X: 5, Z: 5})
	f.npc(100, tile.Coord{X: 6, Z: 5})
	e.Engage(1, 100)

	for tick := uint64(1); tick <= 4; tick++ {
		e.PlayerHook(p, tick)
	}
	assert.Equal(t, 2, roller.calls, "swings on ticks 1 and 3")
	pending := f.queue.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, uint64(2), pending[0].ApplyAtTick)
	assert.Equal(t, int32(6), pending[0].Damage)
	assert.Equal(t, tile.East, p.Heading)
}

func TestPlayerHookMissQueuesZero(t *testing.T) {
	f := newFixture()
	e := newEngine(f, &fixedRoller{result: scripting.CombatResult{IsHit: false, Damage: 9}})
	p := f.player(1, tile.Coord{X: 5, Z: 5})
	f.npc(100, tile.Coord{X: 5, Z: 4})
	e.Engage(1, 100)
	e.PlayerHook(p, 1)
	require.Equal(t, 1, f.queue.Len())
	assert.Zero(t, f.queue.Pending()[0].Damage)
}

func TestPlayerHookTargetOutOfRange(t *testing.T) {
	f := newFixture()
	e := newEngine(f, &fixedRoller{})
	var lost []event.TargetOutOfRange
	event.Subscribe(f.bus, func(ev event.TargetOutOfRange) { lost = append(lost, ev) })
	p := f.player(1, tile.Coord{X: 5, Z: 5})
	f.npc(100, tile.Coord{X: 6, Z: 6}) // diagonal is not melee range
	e.Engage(1, 100)

	e.PlayerHook(p, 1)
	require.Len(t, lost, 1)
	assert.Equal(t, ecs.EntityID(100), lost[0].TargetID)
	_, engaged := e.Target(1)
	assert.False(t, engaged)
	assert.Zero(t, f.queue.Len())
}

func TestNpcHookRespectsRangeAndCooldown(t *testing.T) {
	f := newFixture()
	e := newEngine(f, &fixedRoller{result: scripting.CombatResult{IsHit: true, Damage: 2}})
	f.player(1, tile.Coord{X: 5, Z: 5})
	n := f.npc(100, tile.Coord{X: 5, Z: 7})
	n.Target = 1

	assert.False(t, e.NpcHook(n, 1), "two tiles away with range 1")
	n.Tile = tile.Coord{X: 5, Z: 6}
	assert.True(t, e.NpcHook(n, 1))
	assert.Equal(t, 3, n.AttackCooldown)
	assert.False(t, e.NpcHook(n, 2))
	assert.Equal(t, uint64(1), f.queue.Pending()[0].ApplyAtTick)
}

func TestDeathEndsEngagements(t *testing.T) {
	f := newFixture()
	e := newEngine(f, &fixedRoller{})
	e.Engage(1, 100)
	e.Engage(2, 100)
	e.Engage(3, 101)
	event.Publish(f.bus, event.EntityDied{EntityID: 100, Kind: event.KindNpc})
	_, ok := e.Target(1)
	assert.False(t, ok)
	_, ok = e.Target(2)
	assert.False(t, ok)
	_, ok = e.Target(3)
	assert.True(t, ok)
}
