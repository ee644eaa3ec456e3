package system

import (
	coresys "github.com/tickrpg/server/internal/core/system"
)

// DamageSystem applies every queued hit whose apply tick has arrived.
// Phase 4 (Damage).
type DamageSystem struct {
	o *Orchestrator
}

func (s *DamageSystem) Phase() coresys.Phase { return coresys.PhaseDamage }

func (s *DamageSystem) Update(tick uint64) {
	s.o.landed = s.o.damage.Apply(tick)
}
