package tile

import (
	"fmt"
	"math"
)

// Size is the edge length of one tile in world units.
const Size = 1.0

// Coord is a discrete grid cell. X grows east, Z grows south.
type Coord struct {
	X int32 `msgpack:"x" json:"x"`
	Z int32 `msgpack:"z" json:"z"`
}

// FromWorld quantizes a world position to its tile.
// A non-finite position means upstream state is corrupt, so it panics.
func FromWorld(x, z float64) Coord {
	if math.IsNaN(x) || math.IsNaN(z) || math.IsInf(x, 0) || math.IsInf(z, 0) {
		panic(fmt.Sprintf("tile: non-finite world position (%v, %v)", x, z))
	}
	return Coord{
		X: int32(math.Floor(x / Size)),
		Z: int32(math.Floor(z / Size)),
	}
}

// World returns the world position of the tile centre.
func (c Coord) World() (x, z float64) {
	return (float64(c.X) + 0.5) * Size, (float64(c.Z) + 0.5) * Size
}

func (c Coord) Add(dx, dz int32) Coord {
	return Coord{X: c.X + dx, Z: c.Z + dz}
}

// Step returns the neighbouring tile in direction h.
func (c Coord) Step(h Heading) Coord {
	return Coord{X: c.X + HeadingDX[h], Z: c.Z + HeadingDZ[h]}
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Z)
}

// Chebyshev returns max(|dx|, |dz|).
func Chebyshev(a, b Coord) int32 {
	dx := abs32(a.X - b.X)
	dz := abs32(a.Z - b.Z)
	if dx > dz {
		return dx
	}
	return dz
}

// Manhattan returns |dx| + |dz|.
func Manhattan(a, b Coord) int32 {
	return abs32(a.X-b.X) + abs32(a.Z-b.Z)
}

// CardinalAdjacent reports whether b is exactly one tile N/E/S/W of a.
func CardinalAdjacent(a, b Coord) bool {
	return Manhattan(a, b) == 1
}

// WithinRange is the combat range rule: range 1 (or less) requires cardinal
// adjacency, larger ranges use Chebyshev distance.
func WithinRange(from, to Coord, rng int32) bool {
	if rng <= 1 {
		return CardinalAdjacent(from, to)
	}
	return Chebyshev(from, to) <= rng
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// Sign returns -1, 0 or 1.
func Sign(v int32) int32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
