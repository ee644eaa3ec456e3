package system

import (
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	coresys "github.com/tickrpg/server/internal/core/system"
)

// CheckpointSystem periodically asks the asynchronous writers (violation
// recorder, tick journal) to flush, and logs a state summary.
// Phase 8 (Persist).
type CheckpointSystem struct {
	o         *Orchestrator
	flushers  []Flusher
	log       *zap.Logger
	tickCount int
	interval  int // checkpoint every N ticks
}

func NewCheckpointSystem(o *Orchestrator, flushers []Flusher, intervalTicks int, log *zap.Logger) *CheckpointSystem {
	return &CheckpointSystem{
		o:        o,
		flushers: flushers,
		log:      log,
		interval: intervalTicks,
	}
}

func (s *CheckpointSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *CheckpointSystem) Update(tick uint64) {
	if s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.Checkpoint(tick)
}

// Checkpoint flushes immediately. Also called on graceful shutdown.
func (s *CheckpointSystem) Checkpoint(tick uint64) {
	for _, f := range s.flushers {
		f.Flush()
	}
	d := s.o.lastDigest
	s.log.Info(fmt.Sprintf("檢查點  tick=%d  玩家=%d  NPC=%d  資源點=%d",
		tick, s.o.world.PlayerCount(), s.o.world.NpcCount(), s.o.world.NodeCount()),
		zap.String("digest", hex.EncodeToString(d[:8])),
		zap.Float64("max_suspicion", s.o.maxSuspicion()),
	)
}

// maxSuspicion returns the highest movement suspicion score online.
func (o *Orchestrator) maxSuspicion() float64 {
	top := 0.0
	for _, id := range o.order.Players() {
		top = max(top, o.scorer.Score(id))
	}
	return top
}
