package movement

import (
	"sort"

	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/net/packet"
	"github.com/tickrpg/server/internal/tile"
	"github.com/tickrpg/server/internal/world"
)

// ChaseResult reports what a chase step did.
type ChaseResult uint8

const (
	ChaseMoved    ChaseResult = iota // advanced at least one tile
	ChaseInRange                     // within combat range, no movement
	ChaseBlocked                     // next tile occupied, path kept for retry
	ChaseLeashed                     // next step would leave the leash
	ChaseStuck                       // no free melee tile or greedy step
	ChaseLost                        // target on another layer
)

func (r ChaseResult) String() string {
	switch r {
	case ChaseMoved:
		return "moved"
	case ChaseInRange:
		return "in_range"
	case ChaseBlocked:
		return "blocked"
	case ChaseLeashed:
		return "leashed"
	case ChaseStuck:
		return "stuck"
	case ChaseLost:
		return "lost"
	}
	return "unknown"
}

type claimKey struct {
	layer int32
	c     tile.Coord
}

// MobEngine moves NPCs with greedy stepping. Paths are occupancy-blind;
// occupancy is checked only when a step is taken.
type MobEngine struct {
	states   *Store
	walker   *Walker
	pos      Positions
	occ      Occupancy
	out      Outbox
	maxSteps int
	claims   map[claimKey]ecs.EntityID
	log      *zap.Logger
}

func NewMobEngine(states *Store, walker *Walker, pos Positions, occ Occupancy, out Outbox, maxSteps int, log *zap.Logger) *MobEngine {
	return &MobEngine{
		states:   states,
		walker:   walker,
		pos:      pos,
		occ:      occ,
		out:      out,
		maxSteps: maxSteps,
		claims:   make(map[claimKey]ecs.EntityID, 64),
		log:      log,
	}
}

// BeginTick forgets last tick's melee-tile claims.
func (m *MobEngine) BeginTick() {
	clear(m.claims)
}

// ClaimedBy returns the NPC that claimed (layer, c) this tick.
func (m *MobEngine) ClaimedBy(layer int32, c tile.Coord) ecs.EntityID {
	return m.claims[claimKey{layer, c}]
}

func (m *MobEngine) state(n *world.Npc) *State {
	st := m.states.Ensure(n.ID, n.Layer, n.Tile)
	if st.CurrentTile != n.Tile || st.Layer != n.Layer {
		// respawned or moved by something else
		st.CurrentTile, st.Layer = n.Tile, n.Layer
		st.clearPath()
	}
	return st
}

// meleeTiles lists the tiles around target an attacker with range rng may
// stand on: cardinal neighbours for range 1, all eight otherwise.
func meleeTiles(target tile.Coord, rng int32) []tile.Coord {
	out := make([]tile.Coord, 0, 8)
	for h := tile.North; h <= tile.NorthWest; h++ {
		if rng <= 1 && h.Diagonal() {
			continue
		}
		out = append(out, target.Step(h))
	}
	return out
}

// Chase advances n toward target. Within combat range it stops. Otherwise it
// claims the nearest free melee tile nobody else claimed this tick and
// greedily steps toward it, never beyond the leash.
func (m *MobEngine) Chase(n *world.Npc, targetLayer int32, target tile.Coord, tick uint64) ChaseResult {
	st := m.state(n)
	if targetLayer != n.Layer {
		st.clearPath()
		return ChaseLost
	}
	rng := max(n.CombatRange, 1)
	if tile.WithinRange(n.Tile, target, rng) {
		st.clearPath()
		return ChaseInRange
	}

	dest, ok := m.pickMeleeTile(n, target, rng)
	if !ok {
		return ChaseStuck
	}
	m.claims[claimKey{n.Layer, dest}] = n.ID

	if end, ok := st.Destination(); !ok || end != dest || !st.Moving() {
		path := GreedyPath(m.walker, n.Layer, n.Tile, dest, m.maxSteps)
		st.Path = append(st.Path[:0], LeashPath(path, n.SpawnTile, n.Leash)...)
		st.PathIndex = 0
		if len(st.Path) == 0 {
			if len(path) > 0 {
				return ChaseLeashed
			}
			return ChaseStuck
		}
		st.MoveSeq++
	}

	return m.walk(n, st, tick, func(c tile.Coord) bool {
		return tile.WithinRange(c, target, rng)
	})
}

// pickMeleeTile returns the free, unclaimed, walkable melee tile closest to n.
func (m *MobEngine) pickMeleeTile(n *world.Npc, target tile.Coord, rng int32) (tile.Coord, bool) {
	cands := meleeTiles(target, rng)
	sort.SliceStable(cands, func(i, j int) bool { return closer(cands[i], cands[j], n.Tile) })
	for _, c := range cands {
		if owner, ok := m.claims[claimKey{n.Layer, c}]; ok && owner != n.ID {
			continue
		}
		if m.occ.IsOccupied(n.Layer, c, n.ID) || !m.walker.Walkable(n.Layer, c) {
			continue
		}
		return c, true
	}
	return tile.Coord{}, false
}

// LeashPath cuts path before the first tile farther than leash (Chebyshev)
// from spawn. A leash of zero or less means unbounded.
func LeashPath(path []tile.Coord, spawn tile.Coord, leash int32) []tile.Coord {
	if leash <= 0 {
		return path
	}
	for i, c := range path {
		if tile.Chebyshev(c, spawn) > leash {
			return path[:i]
		}
	}
	return path
}

// StepToward walks n greedily toward dest (wander target, return home). The
// leash is not applied: returning home always shrinks the distance.
func (m *MobEngine) StepToward(n *world.Npc, dest tile.Coord, tick uint64) ChaseResult {
	st := m.state(n)
	if n.Tile == dest {
		st.clearPath()
		return ChaseInRange
	}
	if end, ok := st.Destination(); !ok || end != dest || !st.Moving() {
		path := GreedyPath(m.walker, n.Layer, n.Tile, dest, m.maxSteps)
		if len(path) == 0 {
			st.clearPath()
			return ChaseStuck
		}
		st.Path = append(st.Path[:0], path...)
		st.PathIndex = 0
		st.MoveSeq++
	}
	return m.walk(n, st, tick, nil)
}

// Wander takes one step in direction h if the tile is free.
func (m *MobEngine) Wander(n *world.Npc, h tile.Heading, tick uint64) bool {
	st := m.state(n)
	st.clearPath()
	if !m.walker.CanStep(n.Layer, n.Tile, h) {
		return false
	}
	next := n.Tile.Step(h)
	if n.WanderRadius > 0 && tile.Chebyshev(next, n.SpawnTile) > n.WanderRadius {
		return false
	}
	st.Path = append(st.Path[:0], next)
	st.MoveSeq++
	return m.walk(n, st, tick, nil) == ChaseMoved
}

// walk takes up to TilesPerTick steps along the stored path. A step onto an
// occupied tile ends the walk and keeps the rest of the path.
func (m *MobEngine) walk(n *world.Npc, st *State, tick uint64, arrived func(tile.Coord) bool) ChaseResult {
	budget := max(n.TilesPerTick, 1)
	stepped := 0
	result := ChaseMoved
	for stepped < budget && st.Moving() {
		next := st.Path[st.PathIndex]
		h, ok := tile.HeadingTo(st.CurrentTile, next)
		if !ok || !m.walker.CanStep(n.Layer, st.CurrentTile, h) {
			st.clearPath()
			result = ChaseStuck
			break
		}
		if !m.occ.Occupy(n.Layer, next, n.ID) {
			result = ChaseBlocked
			break
		}
		st.PreviousTile = st.CurrentTile
		st.CurrentTile = next
		st.Heading = h
		st.PathIndex++
		stepped++
		if arrived != nil && arrived(next) {
			st.clearPath()
			break
		}
	}
	if !st.Moving() {
		st.clearPath()
	}
	if stepped == 0 {
		if result == ChaseMoved {
			result = ChaseStuck
		}
		return result
	}

	m.pos.Relocate(n.ID, n.Layer, st.CurrentTile, st.Heading)
	m.out.Nearby(n.Layer, st.CurrentTile, packet.EntityTileUpdate{
		ID:         uint64(n.ID),
		Tile:       st.CurrentTile,
		WorldPos:   packet.PosOf(st.CurrentTile, m.walker.Elevation(n.Layer)),
		Quaternion: tile.Quaternion(st.Heading),
		Emote:      st.Emote,
		TickNumber: tick,
		MoveSeq:    st.MoveSeq,
	})
	return ChaseMoved
}

// Stop drops any remaining NPC path.
func (m *MobEngine) Stop(id ecs.EntityID) {
	if st, ok := m.states.Get(id); ok {
		st.clearPath()
	}
}

// Remaining returns the unwalked path of an NPC.
func (m *MobEngine) Remaining(id ecs.EntityID) []tile.Coord {
	st, ok := m.states.Get(id)
	if !ok {
		return nil
	}
	return st.Remaining()
}
