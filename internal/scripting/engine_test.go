package scripting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptsDir is the repository's Lua tree, relative to this package.
const scriptsDir = "../../scripts"

func newEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func commandTypes(cmds []AICommand) []string {
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.Type)
	}
	return out
}

func TestNpcAIDecisions(t *testing.T) {
	e := newEngine(t, scriptsDir)

	base := AIContext{
		NpcID: 7, X: 10, Z: 10, HP: 10, MaxHP: 10, Level: 1,
		CombatRange: 1, Aggressive: true, Leash: 8, WanderRadius: 3,
	}
	withTarget := func(x, z int) AIContext {
		ctx := base
		ctx.TargetID = 1
		ctx.TargetX, ctx.TargetZ = x, z
		ctx.TargetDist = max(abs(x-ctx.X), abs(z-ctx.Z))
		return ctx
	}

	tests := []struct {
		name string
		ctx  AIContext
		want []string
	}{
		{"cardinal neighbour", withTarget(11, 10), []string{"attack"}},
		{"diagonal neighbour is out of melee range", withTarget(11, 11), []string{"chase"}},
		{"far target", withTarget(16, 10), []string{"chase"}},
		{"ranged reaches diagonally", func() AIContext {
			ctx := withTarget(13, 13)
			ctx.CombatRange = 4
			return ctx
		}(), []string{"attack"}},
		{"strayed past wander radius", func() AIContext {
			ctx := base
			ctx.SpawnDist = 5
			return ctx
		}(), []string{"return_home"}},
		{"idle without wander", base, []string{"idle"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, commandTypes(e.RunNpcAI(tt.ctx)))
		})
	}

	ctx := base
	ctx.CanWander = true
	ctx.Roll = 0.99
	cmds := e.RunNpcAI(ctx)
	require.Len(t, cmds, 1)
	assert.Equal(t, "wander", cmds[0].Type)
	assert.Equal(t, 7, cmds[0].Dir)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestCombatRolls(t *testing.T) {
	e := newEngine(t, scriptsDir)
	ctx := CombatContext{
		AttackType: "melee", AttackerLevel: 1, AttackerSTR: 10, AttackerDEX: 10,
		AttackerWeapon: 4, TargetLevel: 1, Distance: 1,
	}

	ctx.Roll, ctx.DamageRoll = 0, 0.999
	hit := e.CalcPlayerAttack(ctx)
	assert.True(t, hit.IsHit)
	assert.Equal(t, 6, hit.Damage, "weapon 4 + str/5")

	ctx.Roll = 0.99
	miss := e.CalcNpcAttack(ctx)
	assert.False(t, miss.IsHit)
	assert.Zero(t, miss.Damage)
}

func TestScriptsAndProgression(t *testing.T) {
	e := newEngine(t, scriptsDir)

	assert.True(t, e.HasScript("bandage"))
	assert.False(t, e.HasScript("fly"))

	fx, err := e.RunScript("bandage", 3, 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, fx)
	assert.Equal(t, ScriptEffect{Type: "heal", Amount: 5}, fx[0])

	fx, err = e.RunScript("eat", 3, 10, map[string]any{"amount": int32(7)})
	require.NoError(t, err)
	assert.Equal(t, []ScriptEffect{{Type: "heal", Amount: 7}}, fx)

	_, err = e.RunScript("fly", 3, 10, nil)
	assert.Error(t, err)

	assert.Equal(t, 20, e.CalcDistanceExp(5, 100))
	assert.Equal(t, 10, e.CalcDistanceExp(10, 100))
}

func TestMissingFunctionsFallBack(t *testing.T) {
	e := newEngine(t, t.TempDir())

	assert.Nil(t, e.RunNpcAI(AIContext{NpcID: 1}))
	assert.Equal(t, CombatResult{IsHit: true, Damage: 1}, e.CalcPlayerAttack(CombatContext{}))
	assert.Equal(t, 10, e.CalcDistanceExp(1, 100))
	assert.False(t, e.HasScript("bandage"))
	_, err := e.RunScript("bandage", 1, 1, nil)
	assert.Error(t, err)
}

func TestLuaErrorsAreContained(t *testing.T) {
	e := newEngine(t, t.TempDir())
	require.NoError(t, e.DoString(`
		function npc_ai(ctx) error("boom") end
		function calc_npc_attack(ctx) return ctx.missing.field end
		scripts = { broken = function(ctx) error("bad script") end }
	`))

	assert.NotPanics(t, func() {
		assert.Nil(t, e.RunNpcAI(AIContext{NpcID: 1}))
	})
	assert.NotPanics(t, func() {
		assert.Equal(t, CombatResult{IsHit: true, Damage: 1}, e.CalcNpcAttack(CombatContext{}))
	})
	_, err := e.RunScript("broken", 1, 1, nil)
	assert.ErrorContains(t, err, "bad script")

	// the VM stays usable after an error
	require.NoError(t, e.DoString(`function npc_ai(ctx) return { { type = "idle" } } end`))
	assert.Equal(t, []string{"idle"}, commandTypes(e.RunNpcAI(AIContext{NpcID: 1})))
}
