package movement

import (
	"github.com/tickrpg/server/internal/tile"
)

// GreedyStep picks the next tile from `from` toward `to`: the diagonal when
// both axes differ, else the cardinal step along the axis with the greater
// remaining distance. If that single candidate is not walkable the walker is
// stuck. Occupancy is not consulted.
func GreedyStep(w *Walker, layer int32, from, to tile.Coord) (tile.Coord, tile.Heading, bool) {
	dx, dz := to.X-from.X, to.Z-from.Z
	if dx == 0 && dz == 0 {
		return from, 0, false
	}
	sx, sz := tile.Sign(dx), tile.Sign(dz)

	if sx != 0 && sz != 0 {
		if h, _ := tile.HeadingOf(sx, sz); w.CanStep(layer, from, h) {
			return from.Step(h), h, true
		}
		// major axis, ties go to X
		if abs(dx) >= abs(dz) {
			sz = 0
		} else {
			sx = 0
		}
	}
	h, _ := tile.HeadingOf(sx, sz)
	if w.CanStep(layer, from, h) {
		return from.Step(h), h, true
	}
	return from, h, false
}

// GreedyPath chains greedy steps until `to` is reached, the walker gets
// stuck, or maxSteps steps have been taken.
func GreedyPath(w *Walker, layer int32, from, to tile.Coord, maxSteps int) []tile.Coord {
	var path []tile.Coord
	cur := from
	for len(path) < maxSteps && cur != to {
		next, _, ok := GreedyStep(w, layer, cur, to)
		if !ok {
			break
		}
		path = append(path, next)
		cur = next
	}
	return path
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
