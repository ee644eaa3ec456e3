package system

import (
	"go.uber.org/zap"

	coresys "github.com/tickrpg/server/internal/core/system"
	"github.com/tickrpg/server/internal/net"
)

// GatewaySystem admits new websocket sessions into the world and tears
// down dead ones. Runs first in the input phase so a disconnect is seen
// before that player's staged commands.
type GatewaySystem struct {
	o      *Orchestrator
	server *net.Server
	store  *net.SessionStore
	log    *zap.Logger
}

func NewGatewaySystem(o *Orchestrator, server *net.Server, store *net.SessionStore, log *zap.Logger) *GatewaySystem {
	return &GatewaySystem{o: o, server: server, store: store, log: log}
}

func (s *GatewaySystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *GatewaySystem) Update(_ uint64) {
	// Accept new sessions
	for {
		select {
		case sess := <-s.server.NewSessions():
			s.store.Add(sess)
			p := s.o.SpawnPlayer(sess.ID, sess.Name)
			s.store.Bind(sess.ID, p.ID)
		default:
			goto doneNew
		}
	}
doneNew:

	// Process dead sessions
	for {
		select {
		case id := <-s.server.DeadSessions():
			sess := s.store.Remove(id)
			if sess == nil {
				continue
			}
			if pid := sess.PlayerID(); pid != 0 {
				s.o.OnPlayerDisconnect(pid)
			}
		default:
			goto doneDead
		}
	}
doneDead:
}
