package movement

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/config"
	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
	"github.com/tickrpg/server/internal/data"
	"github.com/tickrpg/server/internal/net/packet"
	"github.com/tickrpg/server/internal/security"
	"github.com/tickrpg/server/internal/tile"
)

// Positions is the slice of the entity registry movers need.
// *world.State satisfies it.
type Positions interface {
	Position(id ecs.EntityID) (tile.Coord, int32, bool)
	Relocate(id ecs.EntityID, layer int32, c tile.Coord, heading tile.Heading)
}

// Occupancy is the tile exclusivity map. *world.Occupancy satisfies it.
type Occupancy interface {
	Occupy(layer int32, c tile.Coord, id ecs.EntityID) bool
	IsOccupied(layer int32, c tile.Coord, exclude ecs.EntityID) bool
	Vacate(id ecs.EntityID)
	Where(id ecs.EntityID) (int32, tile.Coord, bool)
}

// Outbox queues messages for players near a tile. *broadcast.Queue satisfies it.
type Outbox interface {
	Nearby(layer int32, c tile.Coord, msg packet.Message)
}

// DistanceHook is called once per completed block of walked tiles.
type DistanceHook func(id ecs.EntityID, tiles int64)

// PlayerEngine moves players along BFS paths, one or two tiles per tick,
// with two-stage navigation between building layers.
type PlayerEngine struct {
	cfg       config.MovementConfig
	states    *Store
	walker    *Walker
	pf        *Pathfinder
	pos       Positions
	occ       Occupancy
	out       Outbox
	bus       *event.Bus
	validator *security.Validator
	scorer    *security.Scorer
	onDist    DistanceHook
	log       *zap.Logger
}

func NewPlayerEngine(
	cfg config.MovementConfig,
	states *Store,
	walker *Walker,
	pos Positions,
	occ Occupancy,
	out Outbox,
	bus *event.Bus,
	validator *security.Validator,
	scorer *security.Scorer,
	log *zap.Logger,
) *PlayerEngine {
	return &PlayerEngine{
		cfg:       cfg,
		states:    states,
		walker:    walker,
		pf:        NewPathfinder(walker, cfg.MaxPathRadius, cfg.MaxSearchNodes),
		pos:       pos,
		occ:       occ,
		out:       out,
		bus:       bus,
		validator: validator,
		scorer:    scorer,
		log:       log,
	}
}

// SetDistanceHook installs the distance-experience callback.
func (e *PlayerEngine) SetDistanceHook(fn DistanceHook) {
	e.onDist = fn
}

func (e *PlayerEngine) state(id ecs.EntityID) (*State, error) {
	if st, ok := e.states.Get(id); ok {
		return st, nil
	}
	c, layer, ok := e.pos.Position(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	return e.states.Ensure(id, layer, c), nil
}

// HandleMoveRequest validates a raw client payload and applies it.
// Rejected payloads are scored and dropped; the caller sends no reply.
func (e *PlayerEngine) HandleMoveRequest(id ecs.EntityID, raw map[string]any, tick uint64) error {
	st, err := e.state(id)
	if err != nil {
		return err
	}
	res := e.validator.Validate(raw, st.CurrentTile)
	if !res.OK {
		if e.scorer != nil {
			e.scorer.Record(id, res.Severity, res.Reason, tick)
		}
		return fmt.Errorf("%w: %s (%s)", ErrRejected, res.Reason, res.Severity)
	}
	req := res.Request

	if req.Cancel {
		e.Cancel(id, tick, event.MoveFromClient)
		return nil
	}
	if req.HasRun {
		st.Running = req.Run
	}
	if req.Target == st.CurrentTile && req.Layer == st.Layer {
		// clicking your own tile flips run mode
		if !req.HasRun {
			st.Running = !st.Running
		}
		return nil
	}
	return e.MoveToward(id, req.Layer, req.Target, tick, event.MoveFromClient)
}

// MoveToward replaces the player's path with one toward (layer, dest).
func (e *PlayerEngine) MoveToward(id ecs.EntityID, layer int32, dest tile.Coord, tick uint64, src event.MoveSource) error {
	st, err := e.state(id)
	if err != nil {
		return err
	}
	event.Publish(e.bus, event.MovementIssued{EntityID: id, Source: src, Tick: tick})
	st.clearPending()
	return e.plan(id, st, layer, dest, nil)
}

// MoveWithin paths the player to any tile within rng of target (combat range
// rule), excluding the target tile itself. inRange is true when no movement
// is needed.
func (e *PlayerEngine) MoveWithin(id ecs.EntityID, layer int32, target tile.Coord, rng int32, tick uint64, src event.MoveSource) (inRange bool, err error) {
	st, err := e.state(id)
	if err != nil {
		return false, err
	}
	if st.Layer == layer && tile.WithinRange(st.CurrentTile, target, rng) {
		return true, nil
	}
	event.Publish(e.bus, event.MovementIssued{EntityID: id, Source: src, Tick: tick})
	st.clearPending()
	if st.Layer != layer {
		return false, e.plan(id, st, layer, target, nil)
	}
	done := func(c tile.Coord) bool {
		return c != target && tile.WithinRange(c, target, rng)
	}
	return false, e.plan(id, st, layer, target, done)
}

// plan computes and announces a path. Cross-layer destinations path to the
// nearest door toward the destination layer and park the rest.
func (e *PlayerEngine) plan(id ecs.EntityID, st *State, layer int32, dest tile.Coord, done func(tile.Coord) bool) error {
	goal := dest
	if layer != st.Layer {
		link, ok := e.pickDoor(st.Layer, st.CurrentTile, layer)
		if !ok {
			st.clearPath()
			return fmt.Errorf("%w: %d -> %d", ErrNoDoor, st.Layer, layer)
		}
		d := dest
		st.PendingDestination = &d
		st.PendingLayer = layer
		st.PendingDoor = &link
		goal = link.Near.Tile
		done = nil
	}

	path, reached := e.pf.FindPath(st.Layer, st.CurrentTile, goal, done)
	if len(path) == 0 {
		st.clearPath()
		if reached && st.PendingDoor != nil {
			// already standing on the door; transfer next tick
			return nil
		}
		st.clearPending()
		if reached {
			return nil
		}
		e.log.Debug("找不到路徑",
			zap.Stringer("entity", id),
			zap.Stringer("from", st.CurrentTile),
			zap.Stringer("to", goal),
		)
		return ErrNoPath
	}
	if !reached && st.PendingDoor != nil {
		// the door itself is unreachable; stage 2 would start from the wrong layer
		st.clearPending()
	}

	st.Path = append(st.Path[:0], path...)
	st.PathIndex = 0
	st.MoveSeq++
	e.out.Nearby(st.Layer, st.CurrentTile, packet.TileMovementStart{
		ID:              uint64(id),
		StartTile:       st.CurrentTile,
		Path:            append([]tile.Coord(nil), path...),
		Running:         st.Running,
		DestinationTile: path[len(path)-1],
		MoveSeq:         st.MoveSeq,
		Emote:           st.Emote,
		TilesPerTick:    e.tilesPerTick(st),
	})
	return nil
}

// pickDoor chooses the door on `from` leading one hop closer to layer `to`,
// nearest to c.
func (e *PlayerEngine) pickDoor(from int32, c tile.Coord, to int32) (data.DoorLink, bool) {
	b := e.walker.Buildings()
	if b == nil {
		return data.DoorLink{}, false
	}
	hop, ok := nextHop(b, from, to)
	if !ok {
		return data.DoorLink{}, false
	}
	var best data.DoorLink
	found := false
	for _, d := range b.DoorsOn(from) {
		if d.Far.Layer != hop {
			continue
		}
		if !found || tile.Chebyshev(c, d.Near.Tile) < tile.Chebyshev(c, best.Near.Tile) ||
			(tile.Chebyshev(c, d.Near.Tile) == tile.Chebyshev(c, best.Near.Tile) && d.DoorID < best.DoorID) {
			best, found = d, true
		}
	}
	return best, found
}

// nextHop walks the layer graph formed by doors and returns the first layer
// after `from` on a shortest route to `to`.
func nextHop(b Buildings, from, to int32) (int32, bool) {
	first := map[int32]int32{from: from}
	queue := []int32{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return first[cur], true
		}
		var next []int32
		for _, d := range b.DoorsOn(cur) {
			if _, seen := first[d.Far.Layer]; !seen {
				next = append(next, d.Far.Layer)
				if cur == from {
					first[d.Far.Layer] = d.Far.Layer
				} else {
					first[d.Far.Layer] = first[cur]
				}
			}
		}
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
		queue = append(queue, next...)
	}
	return 0, false
}

func (e *PlayerEngine) tilesPerTick(st *State) int {
	if st.Running {
		return e.cfg.RunTilesPerTick
	}
	return e.cfg.WalkTilesPerTick
}

// Cancel clears the path. Cancelling a player with no movement state is a no-op.
func (e *PlayerEngine) Cancel(id ecs.EntityID, tick uint64, src event.MoveSource) {
	st, ok := e.states.Get(id)
	if !ok {
		return
	}
	event.Publish(e.bus, event.MovementIssued{EntityID: id, Source: src, Cancel: true, Tick: tick})
	wasMoving := st.Moving() || st.PendingDoor != nil
	st.clearPath()
	st.clearPending()
	if wasMoving {
		st.MoveSeq++
		e.sendEnd(id, st)
	}
}

// Tick advances one player: finishes a pending door transfer first, then
// walks 1 (walk) or 2 (run) tiles.
func (e *PlayerEngine) Tick(id ecs.EntityID, tick uint64) {
	st, ok := e.states.Get(id)
	if !ok {
		return
	}
	e.reclaim(id, st)
	if st.PendingDoor != nil && !st.Moving() {
		e.transfer(id, st, tick)
		return
	}
	if !st.Moving() {
		return
	}

	stepped := 0
	budget := e.tilesPerTick(st)
	for stepped < budget && st.Moving() {
		next := st.Path[st.PathIndex]
		h, ok := tile.HeadingTo(st.CurrentTile, next)
		if !ok || tile.Chebyshev(st.CurrentTile, next) != 1 || !e.walker.CanStep(st.Layer, st.CurrentTile, h) {
			// path no longer valid; stop here
			e.log.Debug("路徑失效", zap.Stringer("entity", id), zap.Stringer("at", st.CurrentTile))
			st.clearPath()
			st.clearPending()
			break
		}
		if !e.occ.Occupy(st.Layer, next, id) {
			// wait behind whoever is there, keep the path
			break
		}
		st.PreviousTile = st.CurrentTile
		st.CurrentTile = next
		st.Heading = h
		st.PathIndex++
		stepped++
	}

	if stepped > 0 {
		e.pos.Relocate(id, st.Layer, st.CurrentTile, st.Heading)
		e.sendUpdate(id, st, tick)
		e.addDistance(id, st, int64(stepped))
	}
	if !st.Moving() {
		st.clearPath()
		if st.PendingDoor == nil {
			e.sendEnd(id, st)
		}
	}
}

// reclaim takes back the player's own tile after a sync onto an occupied
// one, once the other holder has left.
func (e *PlayerEngine) reclaim(id ecs.EntityID, st *State) {
	if l, c, ok := e.occ.Where(id); ok && l == st.Layer && c == st.CurrentTile {
		return
	}
	if e.occ.Occupy(st.Layer, st.CurrentTile, id) {
		e.log.Debug("重新佔用格子", zap.Stringer("entity", id), zap.Stringer("tile", st.CurrentTile))
	}
}

// transfer moves a player standing on a door tile to the far side and
// starts the next navigation stage.
func (e *PlayerEngine) transfer(id ecs.EntityID, st *State, tick uint64) {
	door := *st.PendingDoor
	if st.Layer != door.Near.Layer || st.CurrentTile != door.Near.Tile {
		st.clearPending()
		return
	}
	if !e.occ.Occupy(door.Far.Layer, door.Far.Tile, id) {
		return // far side busy, try again next tick
	}
	dest, layer := *st.PendingDestination, st.PendingLayer
	st.clearPending()

	st.PreviousTile = st.CurrentTile
	st.Layer = door.Far.Layer
	st.CurrentTile = door.Far.Tile
	st.MoveSeq++
	e.pos.Relocate(id, st.Layer, st.CurrentTile, st.Heading)
	e.sendUpdate(id, st, tick)

	if st.CurrentTile == dest && st.Layer == layer {
		e.sendEnd(id, st)
		return
	}
	if err := e.plan(id, st, layer, dest, nil); err != nil {
		e.log.Debug("樓層導航第二段失敗", zap.Stringer("entity", id), zap.Error(err))
		e.sendEnd(id, st)
	}
}

func (e *PlayerEngine) addDistance(id ecs.EntityID, st *State, tiles int64) {
	st.DistanceProgress += tiles
	threshold := e.cfg.ExpTileThreshold
	for st.DistanceProgress >= threshold {
		st.DistanceProgress -= threshold
		if e.onDist != nil {
			e.onDist(id, threshold)
		}
	}
}

func (e *PlayerEngine) sendUpdate(id ecs.EntityID, st *State, tick uint64) {
	e.out.Nearby(st.Layer, st.CurrentTile, packet.EntityTileUpdate{
		ID:         uint64(id),
		Tile:       st.CurrentTile,
		WorldPos:   packet.PosOf(st.CurrentTile, e.walker.Elevation(st.Layer)),
		Quaternion: tile.Quaternion(st.Heading),
		Emote:      st.Emote,
		TickNumber: tick,
		MoveSeq:    st.MoveSeq,
	})
}

func (e *PlayerEngine) sendEnd(id ecs.EntityID, st *State) {
	e.out.Nearby(st.Layer, st.CurrentTile, packet.TileMovementEnd{
		ID:       uint64(id),
		Tile:     st.CurrentTile,
		WorldPos: packet.PosOf(st.CurrentTile, e.walker.Elevation(st.Layer)),
		MoveSeq:  st.MoveSeq,
		Emote:    st.Emote,
	})
	st.Emote = ""
}

// SetEmote tags the player's movement messages with emote until the next
// tileMovementEnd has carried it.
func (e *PlayerEngine) SetEmote(id ecs.EntityID, emote string) error {
	st, err := e.state(id)
	if err != nil {
		return err
	}
	st.Emote = emote
	return nil
}

// SyncPlayerPosition resets movement after a teleport or respawn. A
// non-finite position panics: it means upstream state is corrupt.
func (e *PlayerEngine) SyncPlayerPosition(id ecs.EntityID, x, z float64, layer int32) tile.Coord {
	c := tile.FromWorld(x, z)
	st := e.states.Ensure(id, layer, c)
	st.clearPath()
	st.clearPending()
	st.Layer = layer
	st.CurrentTile = c
	st.PreviousTile = c
	st.TickStartTile = c
	st.TickStartLayer = layer
	st.MoveSeq++

	if !e.occ.Occupy(layer, c, id) {
		e.occ.Vacate(id)
		e.log.Warn("同步位置的格子已被佔用", zap.Stringer("entity", id), zap.Stringer("tile", c))
	}
	e.pos.Relocate(id, layer, c, st.Heading)
	e.sendEnd(id, st)
	return c
}

// GetCurrentTile returns the live tile of an entity with movement state.
func (e *PlayerEngine) GetCurrentTile(id ecs.EntityID) (tile.Coord, bool) {
	st, ok := e.states.Get(id)
	if !ok {
		return tile.Coord{}, false
	}
	return st.CurrentTile, true
}

// TickStartTile returns the tile an entity held when the tick began.
func (e *PlayerEngine) TickStartTile(id ecs.EntityID) (tile.Coord, int32, bool) {
	st, ok := e.states.Get(id)
	if !ok {
		return tile.Coord{}, 0, false
	}
	return st.TickStartTile, st.TickStartLayer, true
}

// IsMoving reports whether the player still has path steps or a door stage.
func (e *PlayerEngine) IsMoving(id ecs.EntityID) bool {
	st, ok := e.states.Get(id)
	return ok && (st.Moving() || st.PendingDoor != nil)
}

// OnDeath drops the path and the partial distance-experience progress.
func (e *PlayerEngine) OnDeath(id ecs.EntityID) {
	st, ok := e.states.Get(id)
	if !ok {
		return
	}
	st.clearPath()
	st.clearPending()
	st.DistanceProgress = 0
}

// Remove forgets a disconnected player.
func (e *PlayerEngine) Remove(id ecs.EntityID) {
	e.states.Remove(id)
	if e.scorer != nil {
		e.scorer.Forget(id)
	}
}
