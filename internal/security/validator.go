package security

import (
	"fmt"
	"math"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tickrpg/server/internal/config"
	"github.com/tickrpg/server/internal/tile"
)

// Severity ranks a validation failure. Higher is worse.
type Severity uint8

const (
	SeverityNone Severity = iota
	SeverityMinor
	SeverityModerate
	SeverityMajor
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityMinor:
		return "minor"
	case SeverityModerate:
		return "moderate"
	case SeverityMajor:
		return "major"
	case SeverityCritical:
		return "critical"
	}
	return fmt.Sprintf("severity(%d)", uint8(s))
}

// MoveRequest is a move payload that passed validation.
type MoveRequest struct {
	Cancel bool
	X, Z   float64
	Target tile.Coord
	Layer  int32
	HasRun bool
	Run    bool
	Seq    uint32
}

// Result is the outcome of validating one payload.
type Result struct {
	OK       bool
	Severity Severity
	Reason   string
	Request  MoveRequest
}

func reject(sev Severity, format string, args ...any) Result {
	return Result{Severity: sev, Reason: fmt.Sprintf(format, args...)}
}

// numericKeys are the payload fields checked for finiteness.
var numericKeys = []string{"x", "z", "layer", "seq"}

// Validator checks raw client movement payloads before any stateful
// component sees them.
type Validator struct {
	schema  *jsonschema.Schema
	bounds  config.WorldBounds
	maxDist int32
}

func NewValidator(cfg config.MovementConfig) (*Validator, error) {
	s, err := compileMoveSchema()
	if err != nil {
		return nil, err
	}
	return &Validator{
		schema:  s,
		bounds:  cfg.Bounds,
		maxDist: cfg.MaxRequestDistance,
	}, nil
}

// Validate checks, in order: finiteness, shape, world bounds and the
// per-request tile displacement from current.
func (v *Validator) Validate(raw map[string]any, current tile.Coord) Result {
	if raw == nil {
		return reject(SeverityMinor, "empty payload")
	}
	// The schema validator cannot represent NaN or Inf, so they never reach it.
	for _, key := range numericKeys {
		if f, ok := numeric(raw[key]); ok && !finite(f) {
			return reject(SeverityCritical, "non-finite %s", key)
		}
	}

	if err := v.schema.Validate(jsonValue(raw)); err != nil {
		return reject(SeverityMinor, "malformed payload: %v", err)
	}

	req := MoveRequest{}
	if c, ok := raw["cancel"].(bool); ok && c {
		req.Cancel = true
		return Result{OK: true, Request: req}
	}

	req.X, _ = numeric(raw["x"])
	req.Z, _ = numeric(raw["z"])
	if l, ok := numeric(raw["layer"]); ok {
		if l < math.MinInt32 || l > math.MaxInt32 {
			return reject(SeverityModerate, "layer %.0f out of range", l)
		}
		req.Layer = int32(l)
	}
	if r, ok := raw["run"].(bool); ok {
		req.HasRun, req.Run = true, r
	}
	if s, ok := numeric(raw["seq"]); ok {
		if s > math.MaxUint32 {
			return reject(SeverityModerate, "seq %.0f out of range", s)
		}
		req.Seq = uint32(s)
	}

	b := v.bounds
	if req.X < b.MinX || req.X > b.MaxX || req.Z < b.MinZ || req.Z > b.MaxZ {
		return reject(SeverityModerate, "out of bounds (%.2f, %.2f)", req.X, req.Z)
	}

	req.Target = tile.FromWorld(req.X, req.Z)
	if d := tile.Chebyshev(current, req.Target); v.maxDist > 0 && d > v.maxDist {
		return reject(SeverityMajor, "displacement %d exceeds %d", d, v.maxDist)
	}
	return Result{OK: true, Request: req}
}
