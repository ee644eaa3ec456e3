package system

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/net/packet"
	"github.com/tickrpg/server/internal/script"
	"github.com/tickrpg/server/internal/scripting"
)

// registerScripts installs the Go script handlers. Everything else is
// looked up in the Lua scripts table.
func (o *Orchestrator) registerScripts() {
	o.handlers.Register("teleport", o.teleportScript)
	o.handlers.SetFallback(o.luaScript)
}

// teleportScript moves a player to args x, z and optional layer.
func (o *Orchestrator) teleportScript(s *script.Script, _ uint64) error {
	if o.world.Player(s.EntityID) == nil {
		return fmt.Errorf("teleport: %s is not a player", s.EntityID)
	}
	x, okX := numberArg(s.Data, "x")
	z, okZ := numberArg(s.Data, "z")
	if !okX || !okZ {
		return fmt.Errorf("teleport: missing destination")
	}
	layer, _ := numberArg(s.Data, "layer")
	o.players.SyncPlayerPosition(s.EntityID, x, z, int32(layer))
	return nil
}

func numberArg(data map[string]any, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

func (o *Orchestrator) luaScript(s *script.Script, tick uint64) error {
	effects, err := o.brain.RunScript(s.Type, uint64(s.EntityID), tick, s.Data)
	if err != nil {
		return err
	}
	for _, fx := range effects {
		o.applyEffect(s, fx)
	}
	return nil
}

// applyEffect carries out one side effect a Lua script body asked for.
func (o *Orchestrator) applyEffect(s *script.Script, fx scripting.ScriptEffect) {
	id := s.EntityID
	c, layer, ok := o.world.Position(id)
	if !ok {
		return
	}
	switch fx.Type {
	case "heal":
		if p := o.world.Player(id); p != nil && !p.Dead {
			p.HP = min(p.HP+int32(max(fx.Amount, 0)), p.MaxHP)
		} else if n := o.world.Npc(id); n != nil && !n.Dead {
			n.HP = min(n.HP+int32(max(fx.Amount, 0)), n.MaxHP)
		}
		o.out.Nearby(layer, c, packet.ScriptEffect{EntityID: uint64(id), Effect: fx.Type, Amount: fx.Amount})
	case "emote":
		if o.world.Player(id) != nil {
			if err := o.players.SetEmote(id, fx.Text); err != nil {
				o.log.Debug("設定表情失敗", zap.Stringer("entity", id), zap.Error(err))
			}
		}
		o.out.Nearby(layer, c, packet.ScriptEffect{EntityID: uint64(id), Effect: fx.Type, Text: fx.Text})
	case "message":
		o.out.Nearby(layer, c, packet.ScriptEffect{EntityID: uint64(id), Effect: fx.Type, Text: fx.Text})
	case "open_modal":
		o.world.OpenModal(id, fx.Text)
	case "close_modal":
		o.world.CloseModal(id)
	default:
		o.log.Debug("未知腳本效果", zap.String("effect", fx.Type), zap.String("script", s.Type))
	}
}
