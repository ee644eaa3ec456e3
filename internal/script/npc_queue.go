package script

import (
	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/config"
	"github.com/tickrpg/server/internal/core/ecs"
)

type npcQueue struct {
	items []*Script
}

// NpcQueues is one undifferentiated FIFO per NPC. At most one entry runs
// per tick no matter how many are ready.
type NpcQueues struct {
	cfg    config.ScriptsConfig
	queues *ecs.PtrComponentStore[npcQueue]
	nextID uint64
	log    *zap.Logger
}

func NewNpcQueues(cfg config.ScriptsConfig, log *zap.Logger) *NpcQueues {
	return &NpcQueues{
		cfg:    cfg,
		queues: ecs.NewPtrComponentStore[npcQueue](),
		log:    log,
	}
}

// Queue appends a script that becomes ready delay ticks from now. When the
// queue is at depth the oldest entry is evicted.
func (q *NpcQueues) Queue(id ecs.EntityID, typ string, data map[string]any, tick, delay uint64) *Script {
	nq := q.queues.GetOrCreate(id, func() *npcQueue { return &npcQueue{} })
	if q.cfg.MaxDepth > 0 && len(nq.items) >= q.cfg.MaxDepth {
		nq.items[0] = nil
		nq.items = nq.items[1:]
	}
	q.nextID++
	s := &Script{
		ID:            q.nextID,
		Type:          typ,
		EntityID:      id,
		Data:          data,
		Timestamp:     tick,
		ExecuteOnTick: tick + delay,
	}
	nq.items = append(nq.items, s)
	return s
}

// Drain removes and returns the first ready entry, or nil.
func (q *NpcQueues) Drain(id ecs.EntityID, tick uint64) *Script {
	nq, ok := q.queues.Get(id)
	if !ok {
		return nil
	}
	var picked *Script
	kept := nq.items[:0]
	for _, s := range nq.items {
		if q.cfg.MaxAgeTicks > 0 && tick > s.Timestamp && tick-s.Timestamp > q.cfg.MaxAgeTicks {
			q.log.Debug("NPC 腳本逾時丟棄", zap.Stringer("npc", id), zap.String("type", s.Type))
			continue
		}
		if picked == nil && s.ExecuteOnTick <= tick {
			picked = s
			continue
		}
		kept = append(kept, s)
	}
	clear(nq.items[len(kept):])
	nq.items = kept
	if picked != nil {
		picked.Executed = true
	}
	return picked
}

func (q *NpcQueues) Len(id ecs.EntityID) int {
	nq, ok := q.queues.Get(id)
	if !ok {
		return 0
	}
	return len(nq.items)
}

// Remove satisfies ecs.Removable.
func (q *NpcQueues) Remove(id ecs.EntityID) {
	q.queues.Remove(id)
}
