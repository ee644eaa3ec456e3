package system

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	coresys "github.com/tickrpg/server/internal/core/system"
	"github.com/tickrpg/server/internal/input"
	"github.com/tickrpg/server/internal/script"
)

var (
	errStaleSession  = errors.New("session no longer owns player")
	errDeadPlayer    = errors.New("player is dead")
	errUnknownScript = errors.New("unknown script type")
	errBadPriority   = errors.New("unknown script priority")
)

// InputSystem dispatches last tick's deferred events, then drains the
// staged client commands and applies each one to the world. Phase 1 (Input).
type InputSystem struct {
	o          *Orchestrator
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(o *Orchestrator, maxPerTick int, log *zap.Logger) *InputSystem {
	return &InputSystem{o: o, maxPerTick: maxPerTick, log: log}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(tick uint64) {
	s.o.bus.SwapBuffers()
	s.o.bus.DispatchAll()

	for _, cmd := range s.o.input.Drain(s.maxPerTick) {
		s.o.safeEach("input", cmd.PlayerID, func() {
			if err := s.apply(cmd, tick); err != nil {
				s.log.Debug("指令被拒絕",
					zap.Uint64("session", cmd.SessionID),
					zap.Stringer("player", cmd.PlayerID),
					zap.Stringer("kind", cmd.Kind),
					zap.Error(err),
				)
			}
		})
	}
}

func (s *InputSystem) apply(cmd input.Command, tick uint64) error {
	o := s.o
	p := o.world.Player(cmd.PlayerID)
	if p == nil || p.SessionID != cmd.SessionID {
		return errStaleSession
	}
	if p.Dead {
		return errDeadPlayer
	}

	switch cmd.Kind {
	case input.KindMove:
		return o.players.HandleMoveRequest(p.ID, cmd.Payload, tick)
	case input.KindAttack:
		return o.interactions.RequestAttack(p.ID, cmd.TargetID, tick)
	case input.KindGather:
		return o.interactions.RequestGather(p.ID, cmd.TargetID, tick)
	case input.KindFollow:
		return o.interactions.RequestFollow(p.ID, cmd.TargetID, tick)
	case input.KindDuel:
		return o.interactions.RequestDuel(p.ID, cmd.TargetID, tick)
	case input.KindScript:
		pri, ok := script.ParsePriority(cmd.Priority)
		if !ok {
			return fmt.Errorf("%w: %q", errBadPriority, cmd.Priority)
		}
		if !o.handlers.Has(cmd.Script) && !o.brain.HasScript(cmd.Script) {
			return fmt.Errorf("%w: %q", errUnknownScript, cmd.Script)
		}
		o.playerScripts.Queue(p.ID, cmd.Script, pri, nil, tick, cmd.Delay)
		return nil
	case input.KindModal:
		if cmd.Open {
			o.world.OpenModal(p.ID, cmd.Modal)
		} else {
			o.world.CloseModal(p.ID)
		}
		return nil
	}
	return fmt.Errorf("unhandled command kind %s", cmd.Kind)
}
