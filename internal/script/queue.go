package script

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/config"
	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
)

// Priority is the player script class. Lower value runs first.
type Priority uint8

const (
	Strong Priority = iota // always runs; purges WEAK and closes modals
	Normal                 // waits while a modal is open
	Weak                   // dropped whenever a STRONG is queued
	Soft                   // always runs
)

func (p Priority) String() string {
	switch p {
	case Strong:
		return "strong"
	case Normal:
		return "normal"
	case Weak:
		return "weak"
	case Soft:
		return "soft"
	}
	return fmt.Sprintf("priority(%d)", uint8(p))
}

// ParsePriority maps a wire name to a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "strong":
		return Strong, true
	case "normal", "":
		return Normal, true
	case "weak":
		return Weak, true
	case "soft":
		return Soft, true
	}
	return Normal, false
}

// protected entries are never evicted under depth pressure.
func (p Priority) protected() bool {
	return p == Strong || p == Soft
}

// Script is one queued action.
type Script struct {
	ID            uint64
	Type          string
	Priority      Priority
	EntityID      ecs.EntityID
	Data          map[string]any
	Timestamp     uint64 // tick queued
	ExecuteOnTick uint64
	DelayedTicks  int // NORMAL deferrals so far
	Executed      bool
}

// Modals is the modal-session view the player queues need.
// *world.State satisfies it.
type Modals interface {
	IsModalOpen(id ecs.EntityID) bool
	CloseModal(id ecs.EntityID)
}

type playerQueue struct {
	items []*Script
}

// PlayerQueues holds the four-class script queue of every player.
// Game loop only.
type PlayerQueues struct {
	cfg    config.ScriptsConfig
	queues *ecs.PtrComponentStore[playerQueue]
	modals Modals
	nextID uint64
	log    *zap.Logger
}

func NewPlayerQueues(cfg config.ScriptsConfig, modals Modals, log *zap.Logger) *PlayerQueues {
	return &PlayerQueues{
		cfg:    cfg,
		queues: ecs.NewPtrComponentStore[playerQueue](),
		modals: modals,
		log:    log,
	}
}

// Subscribe purges WEAK scripts whenever a player issues a movement or
// cancel from the client.
func (q *PlayerQueues) Subscribe(bus *event.Bus) {
	event.Subscribe(bus, func(e event.MovementIssued) {
		if e.Source == event.MoveFromClient {
			q.PurgeWeak(e.EntityID)
		}
	})
}

// Queue adds a script that becomes ready delay ticks from now. A STRONG
// script purges the player's WEAK entries and closes any open modal in the
// same call. Returns nil if the queue is full of protected entries.
func (q *PlayerQueues) Queue(id ecs.EntityID, typ string, pri Priority, data map[string]any, tick, delay uint64) *Script {
	if pri == Strong {
		q.PurgeWeak(id)
		if q.modals != nil && q.modals.IsModalOpen(id) {
			q.modals.CloseModal(id)
		}
	}
	pq := q.queues.GetOrCreate(id, func() *playerQueue { return &playerQueue{} })
	if q.cfg.MaxDepth > 0 && len(pq.items) >= q.cfg.MaxDepth && !q.evictOne(pq) {
		q.log.Debug("腳本佇列已滿", zap.Stringer("entity", id), zap.String("type", typ))
		return nil
	}
	q.nextID++
	s := &Script{
		ID:            q.nextID,
		Type:          typ,
		Priority:      pri,
		EntityID:      id,
		Data:          data,
		Timestamp:     tick,
		ExecuteOnTick: tick + delay,
	}
	pq.items = append(pq.items, s)
	return s
}

// evictOne drops the oldest unprotected entry.
func (q *PlayerQueues) evictOne(pq *playerQueue) bool {
	for i, s := range pq.items {
		if s.Priority.protected() {
			continue
		}
		pq.items = append(pq.items[:i], pq.items[i+1:]...)
		return true
	}
	return false
}

// PurgeWeak removes every WEAK entry of a player and returns how many.
func (q *PlayerQueues) PurgeWeak(id ecs.EntityID) int {
	pq, ok := q.queues.Get(id)
	if !ok {
		return 0
	}
	kept := pq.items[:0]
	n := 0
	for _, s := range pq.items {
		if s.Priority == Weak {
			n++
			continue
		}
		kept = append(kept, s)
	}
	clear(pq.items[len(kept):])
	pq.items = kept
	return n
}

// Drain partitions a player's queue for this tick and returns the scripts
// to execute now, ordered by class and FIFO within a class. Everything else
// is retained or dropped per class rules.
func (q *PlayerQueues) Drain(id ecs.EntityID, tick uint64) []*Script {
	pq, ok := q.queues.Get(id)
	if !ok || len(pq.items) == 0 {
		return nil
	}

	hasStrong, strongReady := false, false
	for _, s := range pq.items {
		if s.Priority == Strong {
			hasStrong = true
			if s.ExecuteOnTick <= tick {
				strongReady = true
			}
		}
	}
	if strongReady && q.modals != nil && q.modals.IsModalOpen(id) {
		q.modals.CloseModal(id)
	}
	modalOpen := q.modals != nil && q.modals.IsModalOpen(id)

	var exec []*Script
	kept := pq.items[:0]
	for _, s := range pq.items {
		if q.cfg.MaxAgeTicks > 0 && tick > s.Timestamp && tick-s.Timestamp > q.cfg.MaxAgeTicks {
			q.log.Debug("腳本逾時丟棄", zap.Stringer("entity", id), zap.String("type", s.Type))
			continue
		}
		if s.Priority == Weak && hasStrong {
			continue
		}
		if s.ExecuteOnTick > tick {
			kept = append(kept, s)
			continue
		}
		switch s.Priority {
		case Strong, Soft, Weak:
			exec = append(exec, s)
		case Normal:
			if !modalOpen {
				exec = append(exec, s)
				break
			}
			s.DelayedTicks++
			if s.DelayedTicks > q.cfg.NormalRetryTicks {
				q.log.Debug("NORMAL 腳本等待對話框逾時", zap.Stringer("entity", id), zap.String("type", s.Type))
				continue
			}
			kept = append(kept, s)
		}
	}
	clear(pq.items[len(kept):])
	pq.items = kept

	sort.SliceStable(exec, func(i, j int) bool { return exec[i].Priority < exec[j].Priority })
	for _, s := range exec {
		s.Executed = true
	}
	return exec
}

// Pending returns a copy of a player's queued scripts.
func (q *PlayerQueues) Pending(id ecs.EntityID) []*Script {
	pq, ok := q.queues.Get(id)
	if !ok {
		return nil
	}
	return append([]*Script(nil), pq.items...)
}

func (q *PlayerQueues) Len(id ecs.EntityID) int {
	pq, ok := q.queues.Get(id)
	if !ok {
		return 0
	}
	return len(pq.items)
}

// Remove satisfies ecs.Removable.
func (q *PlayerQueues) Remove(id ecs.EntityID) {
	q.queues.Remove(id)
}
