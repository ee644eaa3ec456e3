package broadcast

import (
	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/net/packet"
	"github.com/tickrpg/server/internal/tile"
)

// Scope selects who receives a queued message.
type Scope uint8

const (
	ScopeAll    Scope = iota // every connected player
	ScopeNearby              // players on Layer within view range of Tile
	ScopeDirect              // Recipient only
)

func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "all"
	case ScopeNearby:
		return "nearby"
	case ScopeDirect:
		return "direct"
	}
	return "unknown"
}

// Entry is one queued outbound message.
type Entry struct {
	Scope     Scope
	Layer     int32
	Tile      tile.Coord
	Recipient ecs.EntityID
	Msg       packet.Message
}

// Queue batches every broadcast produced during a tick. Flushed once, in
// FIFO order, at the end of the tick. Game loop only.
type Queue struct {
	entries []Entry
}

func NewQueue() *Queue {
	return &Queue{entries: make([]Entry, 0, 256)}
}

func (q *Queue) Push(e Entry) {
	q.entries = append(q.entries, e)
}

func (q *Queue) All(msg packet.Message) {
	q.Push(Entry{Scope: ScopeAll, Msg: msg})
}

func (q *Queue) Nearby(layer int32, c tile.Coord, msg packet.Message) {
	q.Push(Entry{Scope: ScopeNearby, Layer: layer, Tile: c, Msg: msg})
}

func (q *Queue) Direct(to ecs.EntityID, msg packet.Message) {
	q.Push(Entry{Scope: ScopeDirect, Recipient: to, Msg: msg})
}

func (q *Queue) Len() int {
	return len(q.entries)
}

// Flush hands every entry to fn in queue order and empties the queue.
// Entries pushed by fn itself are delivered in the same flush.
func (q *Queue) Flush(fn func(Entry)) int {
	n := 0
	for n < len(q.entries) {
		fn(q.entries[n])
		n++
	}
	clear(q.entries)
	q.entries = q.entries[:0]
	return n
}
