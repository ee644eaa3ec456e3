package system

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhasePrepare  Phase = iota // 0: order caches + tick-start snapshot
	PhaseInput                 // 1: dispatch last tick's events, drain client commands
	PhaseNpc                   // 2: AI, NPC scripts, mob movement, NPC combat
	PhasePlayer                // 3: player scripts, pending interactions, movement, combat
	PhaseDamage                // 4: apply due damage
	PhaseDeath                 // 5: death, loot, respawn timers
	PhaseResource              // 6: gathering sessions, node respawn
	PhaseOutput                // 7: flush broadcast queue
	PhasePersist               // 8: checkpoints
	PhaseCleanup               // 9: destroy queued entities
)

func (p Phase) String() string {
	switch p {
	case PhasePrepare:
		return "prepare"
	case PhaseInput:
		return "input"
	case PhaseNpc:
		return "npc"
	case PhasePlayer:
		return "player"
	case PhaseDamage:
		return "damage"
	case PhaseDeath:
		return "death"
	case PhaseResource:
		return "resource"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(tick uint64)
}
