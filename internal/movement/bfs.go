package movement

import (
	"github.com/tickrpg/server/internal/tile"
)

// Pathfinder runs bounded 8-directional breadth-first searches on one layer.
// The search buffers are reused between calls. Game loop only.
type Pathfinder struct {
	walker   *Walker
	radius   int32
	maxNodes int

	parent map[tile.Coord]tile.Coord
	queue  []tile.Coord
}

func NewPathfinder(w *Walker, radius int32, maxNodes int) *Pathfinder {
	return &Pathfinder{
		walker:   w,
		radius:   radius,
		maxNodes: maxNodes,
		parent:   make(map[tile.Coord]tile.Coord, 1024),
		queue:    make([]tile.Coord, 0, 1024),
	}
}

// cardinals first so straight lines win ties
var searchOrder = [8]tile.Heading{
	tile.North, tile.East, tile.South, tile.West,
	tile.NorthEast, tile.SouthEast, tile.SouthWest, tile.NorthWest,
}

// closer ranks a against b as an end tile for target: Chebyshev distance,
// then Manhattan distance.
func closer(a, b, target tile.Coord) bool {
	ca, cb := tile.Chebyshev(a, target), tile.Chebyshev(b, target)
	if ca != cb {
		return ca < cb
	}
	return tile.Manhattan(a, target) < tile.Manhattan(b, target)
}

// FindPath searches from start until done accepts a tile (nil means
// "equals goal"). The returned path excludes start. When nothing acceptable
// is reachable within the radius and node budget, the path leads to the
// explored tile closest to goal and reached is false.
func (p *Pathfinder) FindPath(layer int32, start, goal tile.Coord, done func(tile.Coord) bool) (path []tile.Coord, reached bool) {
	if done == nil {
		done = func(c tile.Coord) bool { return c == goal }
	}
	if done(start) {
		return nil, true
	}

	clear(p.parent)
	p.queue = p.queue[:0]
	p.parent[start] = start
	p.queue = append(p.queue, start)

	best := start
	found := false
	for head := 0; head < len(p.queue); head++ {
		cur := p.queue[head]
		if done(cur) {
			best, found = cur, true
			break
		}
		if closer(cur, best, goal) {
			best = cur
		}
		if len(p.parent) >= p.maxNodes {
			continue
		}
		for _, h := range searchOrder {
			next := cur.Step(h)
			if _, seen := p.parent[next]; seen {
				continue
			}
			if p.radius > 0 && tile.Chebyshev(start, next) > p.radius {
				continue
			}
			if !p.walker.CanStep(layer, cur, h) {
				continue
			}
			p.parent[next] = cur
			p.queue = append(p.queue, next)
		}
	}

	if best == start {
		return nil, false
	}
	return p.trace(start, best), found
}

func (p *Pathfinder) trace(start, end tile.Coord) []tile.Coord {
	n := 0
	for c := end; c != start; c = p.parent[c] {
		n++
	}
	path := make([]tile.Coord, n)
	for c := end; c != start; c = p.parent[c] {
		n--
		path[n] = c
	}
	return path
}
