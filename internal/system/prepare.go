package system

import (
	coresys "github.com/tickrpg/server/internal/core/system"
)

// PrepareSystem refreshes the processing order, snapshots every entity's
// tick-start tile and clears last tick's melee-tile claims. Phase 0.
type PrepareSystem struct {
	o *Orchestrator
}

func (s *PrepareSystem) Phase() coresys.Phase { return coresys.PhasePrepare }

func (s *PrepareSystem) Update(_ uint64) {
	s.o.order.Refresh(s.o.world)
	s.o.states.Snapshot()
	s.o.mobs.BeginTick()
}
