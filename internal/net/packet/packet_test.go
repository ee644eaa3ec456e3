package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/tile"
)

func TestEncodeCarriesTypeTag(t *testing.T) {
	b, err := Encode(TileMovementEnd{ID: 7, Tile: tile.Coord{X: 3, Z: 4}, MoveSeq: 2})
	require.NoError(t, err)

	in, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, TypeTileMovementEnd, in.T)

	var got TileMovementEnd
	require.NoError(t, in.Payload(&got))
	assert.Equal(t, uint64(7), got.ID)
	assert.Equal(t, tile.Coord{X: 3, Z: 4}, got.Tile)
}

func TestMovementMessagesAlwaysCarryEmote(t *testing.T) {
	for _, m := range []Message{
		TileMovementStart{ID: 1},
		EntityTileUpdate{ID: 1},
		TileMovementEnd{ID: 1},
	} {
		b, err := Encode(m)
		require.NoError(t, err)
		in, err := Decode(b)
		require.NoError(t, err)
		fields, err := in.Map()
		require.NoError(t, err)
		assert.Contains(t, fields, "emote", m.Type())
	}
}

func TestInboundMap(t *testing.T) {
	b, err := EncodeClient(InMove, map[string]any{"x": 10.5, "z": 3, "run": true})
	require.NoError(t, err)
	in, err := Decode(b)
	require.NoError(t, err)

	m, err := in.Map()
	require.NoError(t, err)
	assert.Equal(t, 10.5, m["x"])
	assert.Equal(t, true, m["run"])
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(nil)
	require.Error(t, err)
	_, err = Decode([]byte{0xc1})
	require.Error(t, err)
}

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	var calls []string
	reg.Register(InAttack, []SessionState{StateInWorld}, func(_ any, in Inbound) {
		calls = append(calls, in.T)
	})
	reg.Register(InDuel, []SessionState{StateInWorld}, func(_ any, _ Inbound) {
		panic("boom")
	})

	frame := func(tag string) []byte {
		b, err := EncodeClient(tag, map[string]any{"target": 1})
		require.NoError(t, err)
		return b
	}

	require.NoError(t, reg.Dispatch(nil, StateInWorld, frame(InAttack)))
	require.Error(t, reg.Dispatch(nil, StateConnected, frame(InAttack)), "state gate")
	require.NoError(t, reg.Dispatch(nil, StateInWorld, frame("unknown")))
	require.Error(t, reg.Dispatch(nil, StateInWorld, frame(InDuel)), "panic becomes error")
	assert.Equal(t, []string{InAttack}, calls)
}
