package system

import (
	coresys "github.com/tickrpg/server/internal/core/system"
	"github.com/tickrpg/server/internal/world"
)

// PlayerSystem runs every player once per tick in join order: queued
// scripts, pending interactions, movement, then the combat swing.
// Phase 3 (Player).
type PlayerSystem struct {
	o *Orchestrator
}

func (s *PlayerSystem) Phase() coresys.Phase { return coresys.PhasePlayer }

func (s *PlayerSystem) Update(tick uint64) {
	for _, id := range s.o.order.Players() {
		p := s.o.world.Player(id)
		if p == nil || p.Dead {
			continue
		}
		s.o.safeEach("player", id, func() { s.tickPlayer(p, tick) })
	}
}

func (s *PlayerSystem) tickPlayer(p *world.Player, tick uint64) {
	o := s.o
	for _, sc := range o.playerScripts.Drain(p.ID, tick) {
		o.handlers.Run(sc, tick)
		if o.world.Player(p.ID) == nil {
			return
		}
	}
	o.interactions.Process(p.ID, tick)
	o.players.Tick(p.ID, tick)
	o.combat.PlayerHook(p, tick)
}
