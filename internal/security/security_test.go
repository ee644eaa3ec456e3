package security

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tickrpg/server/internal/config"
	"github.com/tickrpg/server/internal/tile"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(config.Defaults().Movement)
	require.NoError(t, err)
	return v
}

func TestValidatorSeverities(t *testing.T) {
	v := newValidator(t)
	here := tile.Coord{X: 32, Z: 32}

	tests := []struct {
		name string
		raw  map[string]any
		sev  Severity
	}{
		{"nan", map[string]any{"x": math.NaN(), "z": 1.0}, SeverityCritical},
		{"inf", map[string]any{"x": 1.0, "z": math.Inf(-1)}, SeverityCritical},
		{"nan layer", map[string]any{"x": 32.0, "z": 32.0, "layer": math.NaN()}, SeverityCritical},
		{"inf seq", map[string]any{"x": 32.0, "z": 32.0, "seq": math.Inf(1)}, SeverityCritical},
		{"huge layer", map[string]any{"x": 32.0, "z": 32.0, "layer": int64(1e12)}, SeverityModerate},
		{"huge seq", map[string]any{"x": 32.0, "z": 32.0, "seq": uint64(1) << 40}, SeverityModerate},
		{"missing z", map[string]any{"x": 1.0}, SeverityMinor},
		{"string x", map[string]any{"x": "1", "z": 1.0}, SeverityMinor},
		{"unknown key", map[string]any{"x": 30.0, "z": 30.0, "fly": true}, SeverityMinor},
		{"out of bounds", map[string]any{"x": -5.0, "z": 30.0}, SeverityModerate},
		{"teleport", map[string]any{"x": 500.0, "z": 32.0}, SeverityMajor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.raw, here)
			assert.False(t, res.OK)
			assert.Equal(t, tt.sev, res.Severity, res.Reason)
		})
	}
}

func TestValidatorAccepts(t *testing.T) {
	v := newValidator(t)
	here := tile.Coord{X: 32, Z: 32}

	res := v.Validate(map[string]any{"x": 40.5, "z": int8(30), "run": true, "seq": uint8(3)}, here)
	require.True(t, res.OK, res.Reason)
	assert.Equal(t, tile.Coord{X: 40, Z: 30}, res.Request.Target)
	assert.True(t, res.Request.HasRun)
	assert.True(t, res.Request.Run)
	assert.Equal(t, uint32(3), res.Request.Seq)

	res = v.Validate(map[string]any{"cancel": true}, here)
	require.True(t, res.OK)
	assert.True(t, res.Request.Cancel)

	res = v.Validate(map[string]any{"cancel": false}, here)
	assert.False(t, res.OK, "cancel:false alone is not a move")
}

type memRecorder struct{ got []Violation }

func (m *memRecorder) Record(v Violation) { m.got = append(m.got, v) }

func TestScorerWeightsDecayAndThresholds(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := &memRecorder{}
	cfg := config.Defaults().AntiCheat
	s := NewScorer(cfg, rec, zap.New(core))

	now := time.Unix(1_000_000, 0)
	s.SetClock(func() time.Time { return now })

	assert.InDelta(t, 1, s.Record(1, SeverityMinor, "shape", 1), 1e-9)
	assert.InDelta(t, 16, s.Record(1, SeverityMajor, "teleport", 2), 1e-9)
	assert.Zero(t, logs.Len())

	// 16 + 15 crosses warn (25)
	s.Record(1, SeverityMajor, "teleport", 3)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)

	// critical pushes past alert (75): 31 + 50
	s.Record(1, SeverityCritical, "nan", 4)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)

	// no repeat log while still above the threshold
	s.Record(1, SeverityMinor, "shape", 5)
	assert.Equal(t, 2, logs.Len())

	// two minutes at 5/min
	before := s.Score(1)
	now = now.Add(2 * time.Minute)
	assert.InDelta(t, before-10, s.Score(1), 1e-9)

	now = now.Add(time.Hour)
	assert.Zero(t, s.Score(1), "score floors at zero")

	assert.Len(t, rec.got, 5)
	assert.Equal(t, SeverityCritical, rec.got[3].Severity)

	s.Forget(1)
	assert.Zero(t, s.Len())
}
