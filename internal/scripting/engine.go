package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for game logic execution.
// Single-goroutine access only (game loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(2))

	e := &Engine{vm: vm, log: log}

	// Load core scripts first, then feature scripts
	for _, sub := range []string{"core", "combat", "ai", "script"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}

	return e, nil
}

// loadDir loads all .lua files in a directory, in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// DoString runs a chunk of Lua in the engine VM.
func (e *Engine) DoString(src string) error {
	return e.vm.DoString(src)
}

// --- Combat ---

// CombatContext holds pre-packed data for one attack roll.
// Roll is a uniform value in [0,1) drawn from the simulation RNG so Lua
// stays deterministic.
type CombatContext struct {
	AttackType     string // melee, ranged, magic
	AttackerLevel  int
	AttackerSTR    int
	AttackerDEX    int
	AttackerWeapon int // max weapon damage (0 = fist)
	TargetAC       int
	TargetLevel    int
	Distance       int
	Roll           float64
	DamageRoll     float64
}

// CombatResult is returned by the Lua combat functions.
type CombatResult struct {
	IsHit  bool
	Damage int
}

// CalcPlayerAttack calls the Lua calc_player_attack function.
func (e *Engine) CalcPlayerAttack(ctx CombatContext) CombatResult {
	return e.callCombat("calc_player_attack", ctx)
}

// CalcNpcAttack calls the Lua calc_npc_attack function.
func (e *Engine) CalcNpcAttack(ctx CombatContext) CombatResult {
	return e.callCombat("calc_npc_attack", ctx)
}

func (e *Engine) callCombat(name string, ctx CombatContext) CombatResult {
	fallback := CombatResult{IsHit: true, Damage: 1}
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		e.log.Error("lua function not found", zap.String("name", name))
		return fallback
	}

	t := e.vm.NewTable()
	t.RawSetString("attack_type", lua.LString(ctx.AttackType))
	t.RawSetString("distance", lua.LNumber(ctx.Distance))
	t.RawSetString("roll", lua.LNumber(ctx.Roll))
	t.RawSetString("damage_roll", lua.LNumber(ctx.DamageRoll))

	atk := e.vm.NewTable()
	atk.RawSetString("level", lua.LNumber(ctx.AttackerLevel))
	atk.RawSetString("str", lua.LNumber(ctx.AttackerSTR))
	atk.RawSetString("dex", lua.LNumber(ctx.AttackerDEX))
	atk.RawSetString("weapon_dmg", lua.LNumber(ctx.AttackerWeapon))
	t.RawSetString("attacker", atk)

	tgt := e.vm.NewTable()
	tgt.RawSetString("ac", lua.LNumber(ctx.TargetAC))
	tgt.RawSetString("level", lua.LNumber(ctx.TargetLevel))
	t.RawSetString("target", tgt)

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua combat error", zap.String("func", name), zap.Error(err))
		return fallback
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.log.Error("lua combat returned non-table", zap.String("func", name))
		return fallback
	}

	dmg := lInt(rt, "damage")
	if dmg < 0 {
		dmg = 0
	}
	return CombatResult{
		IsHit:  rt.RawGetString("is_hit") == lua.LTrue,
		Damage: dmg,
	}
}

// --- NPC AI Bridge ---

// AIContext holds pre-packed data for NPC AI decisions.
type AIContext struct {
	NpcID       int
	TemplateID  int
	X, Z        int
	HP, MaxHP   int
	Level       int
	CombatRange int
	Aggressive  bool

	// Target (detected by Go; 0 = no target)
	TargetID   int
	TargetX    int
	TargetZ    int
	TargetDist int // Chebyshev distance

	CanAttack bool

	// Leash / wander state
	SpawnDist    int
	Leash        int
	WanderRadius int
	CanWander    bool
	Roll         float64
}

// AICommand is a single action returned by Lua AI.
type AICommand struct {
	Type   string // "chase", "attack", "wander", "return_home", "lose_aggro", "queue_script", "idle"
	Dir    int    // heading 0-7 for wander
	Script string // script type for queue_script
	Delay  int    // ticks before a queued script may run
}

// RunNpcAI calls Lua npc_ai(ctx) and returns a list of commands.
func (e *Engine) RunNpcAI(ctx AIContext) []AICommand {
	fn := e.vm.GetGlobal("npc_ai")
	if fn == lua.LNil {
		return nil
	}

	t := e.vm.NewTable()
	t.RawSetString("npc_id", lua.LNumber(ctx.NpcID))
	t.RawSetString("template_id", lua.LNumber(ctx.TemplateID))
	t.RawSetString("x", lua.LNumber(ctx.X))
	t.RawSetString("z", lua.LNumber(ctx.Z))
	t.RawSetString("hp", lua.LNumber(ctx.HP))
	t.RawSetString("max_hp", lua.LNumber(ctx.MaxHP))
	t.RawSetString("level", lua.LNumber(ctx.Level))
	t.RawSetString("combat_range", lua.LNumber(ctx.CombatRange))
	t.RawSetString("aggressive", lua.LBool(ctx.Aggressive))

	t.RawSetString("target_id", lua.LNumber(ctx.TargetID))
	t.RawSetString("target_x", lua.LNumber(ctx.TargetX))
	t.RawSetString("target_z", lua.LNumber(ctx.TargetZ))
	t.RawSetString("target_dist", lua.LNumber(ctx.TargetDist))
	t.RawSetString("can_attack", lua.LBool(ctx.CanAttack))

	t.RawSetString("spawn_dist", lua.LNumber(ctx.SpawnDist))
	t.RawSetString("leash", lua.LNumber(ctx.Leash))
	t.RawSetString("wander_radius", lua.LNumber(ctx.WanderRadius))
	t.RawSetString("can_wander", lua.LBool(ctx.CanWander))
	t.RawSetString("roll", lua.LNumber(ctx.Roll))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua npc_ai error", zap.Error(err), zap.Int("npc_id", ctx.NpcID))
		return nil
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return nil
	}

	// Parse commands array in order
	var cmds []AICommand
	for i := 1; i <= rt.Len(); i++ {
		row, ok := rt.RawGetInt(i).(*lua.LTable)
		if !ok {
			continue
		}
		cmds = append(cmds, AICommand{
			Type:   lStr(row, "type"),
			Dir:    lInt(row, "dir"),
			Script: lStr(row, "script"),
			Delay:  lInt(row, "delay"),
		})
	}
	return cmds
}

// --- Queued script bodies ---

// ScriptEffect is one side effect requested by a Lua script body.
type ScriptEffect struct {
	Type   string // "heal", "emote", "message", "open_modal", "close_modal"
	Amount int
	Text   string
}

// HasScript reports whether scripts[name] is defined.
func (e *Engine) HasScript(name string) bool {
	tbl, ok := e.vm.GetGlobal("scripts").(*lua.LTable)
	if !ok {
		return false
	}
	_, ok = tbl.RawGetString(name).(*lua.LFunction)
	return ok
}

// RunScript calls scripts[name](ctx) and returns its effects.
func (e *Engine) RunScript(name string, entityID uint64, tick uint64, args map[string]any) ([]ScriptEffect, error) {
	tbl, ok := e.vm.GetGlobal("scripts").(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("no scripts table")
	}
	fn, ok := tbl.RawGetString(name).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("unknown script %q", name)
	}

	t := e.vm.NewTable()
	t.RawSetString("entity_id", lua.LNumber(entityID))
	t.RawSetString("tick", lua.LNumber(tick))
	argTbl := e.vm.NewTable()
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		argTbl.RawSetString(k, toLValue(args[k]))
	}
	t.RawSetString("args", argTbl)

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		return nil, fmt.Errorf("lua script %s: %w", name, err)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		return nil, nil
	}
	var effects []ScriptEffect
	for i := 1; i <= rt.Len(); i++ {
		row, ok := rt.RawGetInt(i).(*lua.LTable)
		if !ok {
			continue
		}
		effects = append(effects, ScriptEffect{
			Type:   lStr(row, "type"),
			Amount: lInt(row, "amount"),
			Text:   lStr(row, "text"),
		})
	}
	return effects, nil
}

// --- Progression ---

// CalcDistanceExp returns the experience granted for one completed block of
// walked tiles at the given level.
func (e *Engine) CalcDistanceExp(level int, tiles int) int {
	if e.vm.GetGlobal("calc_distance_exp") == lua.LNil {
		return tiles / 10
	}
	return e.callIntFunc("calc_distance_exp", level, tiles)
}

// --- Lua helpers ---

// lInt reads an integer field from a Lua table.
func lInt(t *lua.LTable, key string) int {
	return int(lua.LVAsNumber(t.RawGetString(key)))
}

// lStr reads a string field from a Lua table.
func lStr(t *lua.LTable, key string) string {
	return lua.LVAsString(t.RawGetString(key))
}

func toLValue(v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case int:
		return lua.LNumber(x)
	case int8:
		return lua.LNumber(x)
	case int16:
		return lua.LNumber(x)
	case int32:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint8:
		return lua.LNumber(x)
	case uint16:
		return lua.LNumber(x)
	case uint32:
		return lua.LNumber(x)
	case uint64:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	}
	return lua.LString(fmt.Sprint(v))
}

// callIntFunc calls a Lua function with int args and returns an int result.
func (e *Engine) callIntFunc(name string, args ...int) int {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		e.log.Error("lua function not found", zap.String("name", name))
		return 0
	}

	lArgs := make([]lua.LValue, len(args))
	for i, a := range args {
		lArgs[i] = lua.LNumber(a)
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lArgs...); err != nil {
		e.log.Error("lua call error", zap.String("func", name), zap.Error(err))
		return 0
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return int(lua.LVAsNumber(result))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
