package input

import (
	"sync"

	"github.com/tickrpg/server/internal/core/ecs"
)

// Kind is the intent a client command carries.
type Kind uint8

const (
	KindMove Kind = iota + 1
	KindAttack
	KindGather
	KindFollow
	KindDuel
	KindScript
	KindModal
)

func (k Kind) String() string {
	switch k {
	case KindMove:
		return "move"
	case KindAttack:
		return "attack"
	case KindGather:
		return "gather"
	case KindFollow:
		return "follow"
	case KindDuel:
		return "duel"
	case KindScript:
		return "script"
	case KindModal:
		return "modal"
	}
	return "unknown"
}

// Command is one client intent, staged until the next tick's input phase.
type Command struct {
	Kind      Kind
	SessionID uint64
	PlayerID  ecs.EntityID
	TargetID  ecs.EntityID
	Payload   map[string]any // raw move payload, validated by the movement layer
	Script    string
	Priority  string
	Delay     uint64
	Modal     string
	Open      bool
}

// Buffer stores staged commands in a fixed-size ring. It is safe for
// concurrent producers and a single consumer.
type Buffer struct {
	mu       sync.Mutex
	data     []Command
	head     int
	tail     int
	count    int
	overflow uint64
}

func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{data: make([]Command, capacity)}
}

func (b *Buffer) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Push stages a command, returning false if the buffer is full.
func (b *Buffer) Push(cmd Command) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == len(b.data) {
		b.overflow++
		return false
	}
	b.data[b.tail] = cmd
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	return true
}

// Drain returns up to limit staged commands in FIFO order (all of them when
// limit <= 0). The rest stay for the next call.
func (b *Buffer) Drain(limit int) []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	n := b.count
	if limit > 0 && n > limit {
		n = limit
	}
	commands := make([]Command, n)
	for i := 0; i < n; i++ {
		idx := (b.head + i) % len(b.data)
		commands[i] = b.data[idx]
		b.data[idx] = Command{}
	}
	b.head = (b.head + n) % len(b.data)
	b.count -= n
	if b.count == 0 {
		b.head, b.tail = 0, 0
	}
	return commands
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Overflow reports how many pushes were rejected since start.
func (b *Buffer) Overflow() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflow
}
