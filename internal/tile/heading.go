package tile

import "math"

// Heading is one of the eight grid directions.
// 0=N, 1=NE, 2=E, 3=SE, 4=S, 5=SW, 6=W, 7=NW
type Heading int8

const (
	North Heading = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

// heading direction deltas, north is -Z
var HeadingDX = [8]int32{0, 1, 1, 1, 0, -1, -1, -1}
var HeadingDZ = [8]int32{-1, -1, 0, 1, 1, 1, 0, -1}

// Diagonal reports whether h moves along both axes.
func (h Heading) Diagonal() bool {
	return h&1 == 1
}

// Opposite returns the reverse direction.
func (h Heading) Opposite() Heading {
	return (h + 4) % 8
}

// HeadingTo returns the direction of the sign vector from a to b.
// ok is false when a == b.
func HeadingTo(a, b Coord) (Heading, bool) {
	return HeadingOf(Sign(b.X-a.X), Sign(b.Z-a.Z))
}

// HeadingOf maps a unit delta to a heading.
func HeadingOf(dx, dz int32) (Heading, bool) {
	for h := 0; h < 8; h++ {
		if HeadingDX[h] == dx && HeadingDZ[h] == dz {
			return Heading(h), true
		}
	}
	return 0, false
}

// Quaternion returns the rotation (x, y, z, w) for facing h, as a yaw
// around the world up axis. North faces -Z.
func Quaternion(h Heading) [4]float64 {
	yaw := -float64(h) * math.Pi / 4
	half := yaw / 2
	return [4]float64{0, math.Sin(half), 0, math.Cos(half)}
}
