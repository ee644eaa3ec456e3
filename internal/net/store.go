package net

import (
	"sort"

	"github.com/tickrpg/server/internal/core/ecs"
)

// SessionStore indexes live sessions by id and by bound player.
// Game loop only.
type SessionStore struct {
	byID     map[uint64]*Session
	byPlayer map[ecs.EntityID]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		byID:     make(map[uint64]*Session),
		byPlayer: make(map[ecs.EntityID]*Session),
	}
}

func (st *SessionStore) Add(s *Session) {
	st.byID[s.ID] = s
}

// Bind attaches a spawned player to its session.
func (st *SessionStore) Bind(sessionID uint64, player ecs.EntityID) {
	s := st.byID[sessionID]
	if s == nil {
		return
	}
	s.Bind(player)
	st.byPlayer[player] = s
}

// Remove forgets a session and returns it, or nil.
func (st *SessionStore) Remove(sessionID uint64) *Session {
	s := st.byID[sessionID]
	if s == nil {
		return nil
	}
	delete(st.byID, sessionID)
	if pid := s.PlayerID(); pid != 0 && st.byPlayer[pid] == s {
		delete(st.byPlayer, pid)
	}
	return s
}

func (st *SessionStore) Get(sessionID uint64) *Session {
	return st.byID[sessionID]
}

func (st *SessionStore) ByPlayer(id ecs.EntityID) *Session {
	return st.byPlayer[id]
}

func (st *SessionStore) Count() int {
	return len(st.byID)
}

// Send buffers data for a player's session. Satisfies the output sink.
func (st *SessionStore) Send(player ecs.EntityID, data []byte) bool {
	s := st.byPlayer[player]
	if s == nil || s.IsClosed() {
		return false
	}
	s.Send(data)
	return true
}

// FlushAll pushes every session's buffered output, in session id order.
func (st *SessionStore) FlushAll() {
	ids := make([]uint64, 0, len(st.byID))
	for id := range st.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		st.byID[id].FlushOutput()
	}
}
