package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSystem struct {
	name  string
	phase Phase
	log   *[]string
}

func (s *recordingSystem) Phase() Phase { return s.phase }

func (s *recordingSystem) Update(_ uint64) {
	*s.log = append(*s.log, s.name)
}

func TestRunnerOrdersByPhaseThenRegistration(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(&recordingSystem{name: "output", phase: PhaseOutput, log: &log})
	r.Register(&recordingSystem{name: "player-a", phase: PhasePlayer, log: &log})
	r.Register(&recordingSystem{name: "npc", phase: PhaseNpc, log: &log})
	r.Register(&recordingSystem{name: "player-b", phase: PhasePlayer, log: &log})
	r.Register(&recordingSystem{name: "prepare", phase: PhasePrepare, log: &log})

	r.Tick(1)
	assert.Equal(t, []string{"prepare", "npc", "player-a", "player-b", "output"}, log)

	log = log[:0]
	r.TickPhase(PhasePlayer, 2)
	assert.Equal(t, []string{"player-a", "player-b"}, log)
}
