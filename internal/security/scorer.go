package security

import (
	"time"

	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/config"
	"github.com/tickrpg/server/internal/core/ecs"
)

// Violation is one rejected payload, handed to the Recorder for offline review.
type Violation struct {
	PlayerID ecs.EntityID
	Severity Severity
	Reason   string
	Score    float64
	Tick     uint64
	At       time.Time
}

// Recorder persists violations. Implementations must not block the caller.
type Recorder interface {
	Record(v Violation)
}

type score struct {
	value   float64
	updated time.Time
	warned  bool
	alerted bool
}

// Scorer accumulates a decaying per-player violation score and logs when it
// crosses the warn and alert thresholds. It never blocks gameplay.
type Scorer struct {
	cfg    config.AntiCheatConfig
	scores map[ecs.EntityID]*score
	rec    Recorder
	now    func() time.Time
	log    *zap.Logger
}

func NewScorer(cfg config.AntiCheatConfig, rec Recorder, log *zap.Logger) *Scorer {
	return &Scorer{
		cfg:    cfg,
		scores: make(map[ecs.EntityID]*score),
		rec:    rec,
		now:    time.Now,
		log:    log,
	}
}

// SetClock replaces the wall clock used for decay.
func (s *Scorer) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Scorer) weight(sev Severity) float64 {
	w := s.cfg.Weights
	switch sev {
	case SeverityMinor:
		return w.Minor
	case SeverityModerate:
		return w.Moderate
	case SeverityMajor:
		return w.Major
	case SeverityCritical:
		return w.Critical
	}
	return 0
}

// decay drains the score for the time elapsed since its last update.
func (s *Scorer) decay(sc *score, now time.Time) {
	if elapsed := now.Sub(sc.updated); elapsed > 0 {
		sc.value -= s.cfg.DecayPerMinute * elapsed.Minutes()
		if sc.value < 0 {
			sc.value = 0
		}
	}
	sc.updated = now
	// re-arm the log lines once the player has cooled down
	if sc.value < s.cfg.WarnThreshold {
		sc.warned = false
	}
	if sc.value < s.cfg.AlertThreshold {
		sc.alerted = false
	}
}

// Record adds a violation and returns the new score.
func (s *Scorer) Record(id ecs.EntityID, sev Severity, reason string, tick uint64) float64 {
	now := s.now()
	sc := s.scores[id]
	if sc == nil {
		sc = &score{updated: now}
		s.scores[id] = sc
	}
	s.decay(sc, now)
	sc.value += s.weight(sev)

	switch {
	case sc.value >= s.cfg.AlertThreshold && !sc.alerted:
		sc.alerted, sc.warned = true, true
		s.log.Error("移動異常分數達警報門檻",
			zap.Stringer("player", id),
			zap.Float64("score", sc.value),
			zap.String("severity", sev.String()),
			zap.String("reason", reason),
		)
	case sc.value >= s.cfg.WarnThreshold && !sc.warned:
		sc.warned = true
		s.log.Warn("移動異常分數達警告門檻",
			zap.Stringer("player", id),
			zap.Float64("score", sc.value),
			zap.String("severity", sev.String()),
			zap.String("reason", reason),
		)
	}

	if s.rec != nil {
		s.rec.Record(Violation{
			PlayerID: id,
			Severity: sev,
			Reason:   reason,
			Score:    sc.value,
			Tick:     tick,
			At:       now,
		})
	}
	return sc.value
}

// Score returns the decayed score without recording anything.
func (s *Scorer) Score(id ecs.EntityID) float64 {
	sc := s.scores[id]
	if sc == nil {
		return 0
	}
	s.decay(sc, s.now())
	return sc.value
}

// Forget drops a disconnected player's score.
func (s *Scorer) Forget(id ecs.EntityID) {
	delete(s.scores, id)
}

func (s *Scorer) Len() int {
	return len(s.scores)
}
