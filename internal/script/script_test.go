package script

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/config"
	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
)

type fakeModals struct {
	open   map[ecs.EntityID]bool
	closed int
}

func (m *fakeModals) IsModalOpen(id ecs.EntityID) bool { return m.open[id] }
func (m *fakeModals) CloseModal(id ecs.EntityID) {
	if m.open[id] {
		m.closed++
	}
	delete(m.open, id)
}

func newQueues(retry int) (*PlayerQueues, *fakeModals) {
	cfg := config.Defaults().Scripts
	cfg.NormalRetryTicks = retry
	m := &fakeModals{open: map[ecs.EntityID]bool{}}
	return NewPlayerQueues(cfg, m, zap.NewNop()), m
}

func types(scripts []*Script) []string {
	out := make([]string, 0, len(scripts))
	for _, s := range scripts {
		out = append(out, s.Type)
	}
	return out
}

func TestQueueStrongPurgesWeakInSameCall(t *testing.T) {
	q, m := newQueues(10)
	q.Queue(1, "emote", Weak, nil, 1, 0)
	q.Queue(1, "bury", Normal, nil, 1, 0)
	q.Queue(1, "emote2", Weak, nil, 1, 5)
	q.Queue(2, "other", Weak, nil, 1, 0)
	m.open[1] = true

	q.Queue(1, "teleport", Strong, nil, 1, 0)

	assert.Equal(t, []string{"bury", "teleport"}, types(q.Pending(1)))
	assert.Equal(t, 1, q.Len(2), "other players untouched")
	assert.False(t, m.IsModalOpen(1), "STRONG closes the modal")
	assert.Equal(t, 1, m.closed)
}

func TestDrainOrderAndClasses(t *testing.T) {
	q, _ := newQueues(10)
	q.Queue(1, "soft1", Soft, nil, 1, 0)
	q.Queue(1, "normal1", Normal, nil, 1, 0)
	q.Queue(1, "weak1", Weak, nil, 1, 0)
	q.Queue(1, "normal2", Normal, nil, 1, 0)
	q.Queue(1, "later", Normal, nil, 1, 3)

	got := q.Drain(1, 1)
	assert.Equal(t, []string{"normal1", "normal2", "weak1", "soft1"}, types(got))
	for _, s := range got {
		assert.True(t, s.Executed)
	}
	assert.Equal(t, []string{"later"}, types(q.Pending(1)))

	assert.Empty(t, q.Drain(1, 3))
	assert.Equal(t, []string{"later"}, types(q.Drain(1, 4)))
	assert.Zero(t, q.Len(1))
}

func TestWeakDroppedWhileStrongQueued(t *testing.T) {
	q, _ := newQueues(10)
	q.Queue(1, "strong", Strong, nil, 1, 2) // not ready yet
	q.Queue(1, "weak", Weak, nil, 1, 0)

	assert.Empty(t, q.Drain(1, 1), "weak is dropped, not retained")
	assert.Equal(t, []string{"strong"}, types(q.Pending(1)))
	assert.Equal(t, []string{"strong"}, types(q.Drain(1, 3)))
}

func TestNormalWaitsForModalThenDrops(t *testing.T) {
	q, m := newQueues(2)
	m.open[1] = true
	q.Queue(1, "bank", Normal, nil, 1, 0)
	q.Queue(1, "soft", Soft, nil, 1, 0)

	assert.Equal(t, []string{"soft"}, types(q.Drain(1, 1)))
	assert.Empty(t, q.Drain(1, 2))
	require.Equal(t, 1, q.Len(1))
	assert.Equal(t, 2, q.Pending(1)[0].DelayedTicks)

	assert.Empty(t, q.Drain(1, 3), "third deferral exceeds the retry budget")
	assert.Zero(t, q.Len(1))
}

func TestNormalRunsOnceModalCloses(t *testing.T) {
	q, m := newQueues(5)
	m.open[1] = true
	q.Queue(1, "bank", Normal, nil, 1, 0)
	assert.Empty(t, q.Drain(1, 1))
	m.CloseModal(1)
	assert.Equal(t, []string{"bank"}, types(q.Drain(1, 2)))
}

func TestReadyStrongClosesModalBeforeNormal(t *testing.T) {
	q, m := newQueues(5)
	q.Queue(1, "bank", Normal, nil, 1, 0)
	q.Queue(1, "strong", Strong, nil, 1, 1)
	m.open[1] = true // opened after queueing

	assert.Empty(t, q.Drain(1, 1))
	assert.Equal(t, []string{"strong", "bank"}, types(q.Drain(1, 2)))
	assert.False(t, m.IsModalOpen(1))
}

func TestClientMovementPurgesWeak(t *testing.T) {
	q, _ := newQueues(5)
	bus := event.NewBus()
	q.Subscribe(bus)
	q.Queue(1, "weak", Weak, nil, 1, 0)
	q.Queue(1, "normal", Normal, nil, 1, 0)

	event.Publish(bus, event.MovementIssued{EntityID: 1, Source: event.MoveFromInteraction})
	assert.Equal(t, 2, q.Len(1))
	event.Publish(bus, event.MovementIssued{EntityID: 1, Source: event.MoveFromClient, Cancel: true})
	assert.Equal(t, []string{"normal"}, types(q.Pending(1)))
}

func TestExpiryAndDepth(t *testing.T) {
	cfg := config.ScriptsConfig{NormalRetryTicks: 5, MaxAgeTicks: 10, MaxDepth: 3}
	q := NewPlayerQueues(cfg, nil, zap.NewNop())

	q.Queue(1, "old", Normal, nil, 1, 50)
	assert.Empty(t, q.Drain(1, 12))
	assert.Zero(t, q.Len(1))

	q.Queue(1, "s1", Strong, nil, 20, 0)
	q.Queue(1, "n1", Normal, nil, 20, 0)
	q.Queue(1, "s2", Soft, nil, 20, 0)
	require.NotNil(t, q.Queue(1, "n2", Normal, nil, 20, 0))
	assert.Equal(t, []string{"s1", "s2", "n2"}, types(q.Pending(1)), "oldest unprotected evicted")

	q.Remove(1)
	q.Queue(1, "a", Strong, nil, 20, 0)
	q.Queue(1, "b", Soft, nil, 20, 0)
	q.Queue(1, "c", Strong, nil, 20, 0)
	assert.Nil(t, q.Queue(1, "d", Normal, nil, 20, 0), "all protected")
}

func TestNpcQueueOnePerTick(t *testing.T) {
	q := NewNpcQueues(config.Defaults().Scripts, zap.NewNop())
	q.Queue(7, "a", nil, 1, 0)
	q.Queue(7, "b", nil, 1, 0)
	q.Queue(7, "c", nil, 1, 0)

	var ran []string
	for tick := uint64(1); tick <= 4; tick++ {
		if s := q.Drain(7, tick); s != nil {
			ran = append(ran, s.Type)
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, ran)
	assert.Nil(t, q.Drain(8, 1))
}

func TestNpcQueueSkipsNotReadyHead(t *testing.T) {
	q := NewNpcQueues(config.Defaults().Scripts, zap.NewNop())
	q.Queue(7, "delayed", nil, 1, 5)
	q.Queue(7, "now", nil, 1, 0)

	assert.Equal(t, "now", q.Drain(7, 1).Type)
	assert.Nil(t, q.Drain(7, 2))
	assert.Equal(t, "delayed", q.Drain(7, 6).Type)
}

func TestHandlersContainFailures(t *testing.T) {
	h := NewHandlers(zap.NewNop())
	var ran []string
	h.Register("ok", func(s *Script, _ uint64) error { ran = append(ran, s.Type); return nil })
	h.Register("err", func(*Script, uint64) error { return errors.New("nope") })
	h.Register("panic", func(*Script, uint64) error { panic("boom") })
	h.SetFallback(func(s *Script, _ uint64) error { ran = append(ran, "lua:"+s.Type); return nil })

	for _, typ := range []string{"panic", "err", "ok", "wave"} {
		h.Run(&Script{Type: typ}, 1)
	}
	assert.Equal(t, []string{"ok", "lua:wave"}, ran)
}

func TestParsePriority(t *testing.T) {
	p, ok := ParsePriority("weak")
	assert.True(t, ok)
	assert.Equal(t, Weak, p)
	_, ok = ParsePriority("urgent")
	assert.False(t, ok)
}
