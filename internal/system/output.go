package system

import (
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/tickrpg/server/internal/broadcast"
	coresys "github.com/tickrpg/server/internal/core/system"
	"github.com/tickrpg/server/internal/journal"
	"github.com/tickrpg/server/internal/net/packet"
	"github.com/tickrpg/server/internal/world"
)

// OutputSystem flushes the tick's broadcast queue in FIFO order, resolving
// each entry's scope to concrete recipients, then computes the state digest
// and journals the tick. Phase 7 (Output).
type OutputSystem struct {
	o     *Orchestrator
	types []string
	log   *zap.Logger
}

func NewOutputSystem(o *Orchestrator, log *zap.Logger) *OutputSystem {
	return &OutputSystem{o: o, log: log}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(tick uint64) {
	o := s.o
	s.types = s.types[:0]
	recipients := 0

	o.out.Flush(func(e broadcast.Entry) {
		s.types = append(s.types, e.Msg.Type())
		targets := s.resolve(e)
		if len(targets) == 0 || o.sink == nil {
			return
		}
		data, err := packet.Encode(e.Msg)
		if err != nil {
			s.log.Error("訊息編碼失敗", zap.String("type", e.Msg.Type()), zap.Error(err))
			return
		}
		for _, p := range targets {
			if o.sink.Send(p.ID, data) {
				recipients++
			}
		}
	})
	if o.sink != nil {
		o.sink.FlushAll()
	}

	o.lastDigest = o.computeDigest()
	if o.journal != nil {
		o.journal.Write(journal.Record{
			Tick:       tick,
			Digest:     hex.EncodeToString(o.lastDigest[:]),
			Players:    o.world.PlayerCount(),
			Npcs:       o.world.NpcCount(),
			Damage:     o.landed,
			Recipients: recipients,
			Messages:   append([]string(nil), s.types...),
		})
	}
	o.landed = 0
}

// resolve maps a broadcast scope to its recipients: every player in join
// order, players within view range by id, or the one addressee.
func (s *OutputSystem) resolve(e broadcast.Entry) []*world.Player {
	ws := s.o.world
	switch e.Scope {
	case broadcast.ScopeAll:
		return ws.PlayersByJoinOrder()
	case broadcast.ScopeNearby:
		return ws.NearbyPlayers(e.Layer, e.Tile, s.o.cfg.Network.ViewRange)
	case broadcast.ScopeDirect:
		if p := ws.Player(e.Recipient); p != nil {
			return []*world.Player{p}
		}
	}
	return nil
}
