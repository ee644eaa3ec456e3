package system

import (
	"github.com/tickrpg/server/internal/core/ecs"
	coresys "github.com/tickrpg/server/internal/core/system"
)

// CleanupSystem flushes the deferred entity destruction queue at tick end,
// dropping every per-entity store entry of disconnected players.
// Phase 9 (Cleanup).
type CleanupSystem struct {
	world *ecs.World
}

func NewCleanupSystem(world *ecs.World) *CleanupSystem {
	return &CleanupSystem{world: world}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ uint64) {
	s.world.FlushDestroyQueue()
}
