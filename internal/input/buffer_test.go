package input

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickrpg/server/internal/core/ecs"
)

func TestBufferWraparound(t *testing.T) {
	b := NewBuffer(3)
	for _, id := range []ecs.EntityID{1, 2, 3} {
		require.True(t, b.Push(Command{Kind: KindMove, PlayerID: id}))
	}
	assert.False(t, b.Push(Command{PlayerID: 4}), "full")
	assert.Equal(t, uint64(1), b.Overflow())

	got := b.Drain(0)
	require.Len(t, got, 3)
	assert.Equal(t, ecs.EntityID(1), got[0].PlayerID)
	assert.Equal(t, ecs.EntityID(3), got[2].PlayerID)

	require.True(t, b.Push(Command{PlayerID: 5}))
	require.True(t, b.Push(Command{PlayerID: 6}))
	got = b.Drain(0)
	require.Len(t, got, 2)
	assert.Equal(t, ecs.EntityID(5), got[0].PlayerID)
	assert.Equal(t, ecs.EntityID(6), got[1].PlayerID)
	assert.Nil(t, b.Drain(0))
}

func TestBufferPartialDrainKeepsOrder(t *testing.T) {
	b := NewBuffer(4)
	for i := 1; i <= 4; i++ {
		b.Push(Command{PlayerID: ecs.EntityID(i)})
	}
	first := b.Drain(3)
	require.Len(t, first, 3)
	assert.Equal(t, 1, b.Len())

	b.Push(Command{PlayerID: 5})
	rest := b.Drain(0)
	require.Len(t, rest, 2)
	assert.Equal(t, ecs.EntityID(4), rest[0].PlayerID)
	assert.Equal(t, ecs.EntityID(5), rest[1].PlayerID)
}

func TestBufferConcurrentProducers(t *testing.T) {
	b := NewBuffer(1000)
	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Push(Command{Kind: KindAttack})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, b.Drain(0), 1000)
	assert.Zero(t, b.Overflow())
}
