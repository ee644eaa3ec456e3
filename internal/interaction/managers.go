package interaction

import (
	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
)

// Managers bundles the four pending-interaction managers. A player has at
// most one pending interaction: starting one cancels the others.
type Managers struct {
	Attack *AttackManager
	Follow *FollowManager
	Gather *GatherManager
	Duel   *DuelManager
}

// Subscribe wires the lifecycle events: client movement cancels everything
// the player has pending, death and despawn drop entries on both ends.
func (m *Managers) Subscribe(bus *event.Bus) {
	m.Attack.Subscribe(bus)
	event.Subscribe(bus, func(e event.MovementIssued) {
		if e.Source == event.MoveFromClient {
			m.CancelAll(e.EntityID)
		}
	})
	event.Subscribe(bus, func(e event.EntityDied) {
		m.Remove(e.EntityID)
	})
	event.Subscribe(bus, func(e event.EntityDespawned) {
		m.Remove(e.EntityID)
	})
}

func (m *Managers) RequestAttack(id, target ecs.EntityID, tick uint64) error {
	m.cancelExcept(id, KindAttack)
	return m.Attack.Request(id, target, tick)
}

func (m *Managers) RequestFollow(id, leader ecs.EntityID, tick uint64) error {
	m.cancelExcept(id, KindFollow)
	return m.Follow.Request(id, leader, tick)
}

func (m *Managers) RequestGather(id, node ecs.EntityID, tick uint64) error {
	m.cancelExcept(id, KindGather)
	return m.Gather.Request(id, node, tick)
}

func (m *Managers) RequestDuel(id, target ecs.EntityID, tick uint64) error {
	m.cancelExcept(id, KindDuel)
	return m.Duel.Request(id, target, tick)
}

func (m *Managers) cancelExcept(id ecs.EntityID, keep Kind) {
	if keep != KindAttack {
		m.Attack.Cancel(id)
	}
	if keep != KindFollow {
		m.Follow.Cancel(id)
	}
	if keep != KindGather {
		m.Gather.Cancel(id)
	}
	if keep != KindDuel {
		m.Duel.Cancel(id)
	}
}

// CancelAll drops every pending interaction of a player. Returns whether
// anything was pending.
func (m *Managers) CancelAll(id ecs.EntityID) bool {
	a := m.Attack.Cancel(id)
	f := m.Follow.Cancel(id)
	g := m.Gather.Cancel(id)
	d := m.Duel.Cancel(id)
	return a || f || g || d
}

// Pending returns the kind of the player's pending interaction, if any.
func (m *Managers) Pending(id ecs.EntityID) (Kind, bool) {
	switch {
	case m.Attack.Has(id):
		return KindAttack, true
	case m.Follow.Has(id):
		return KindFollow, true
	case m.Gather.Has(id):
		return KindGather, true
	case m.Duel.Has(id):
		return KindDuel, true
	}
	return 0, false
}

// Process runs one player's pending checks in fixed order.
func (m *Managers) Process(id ecs.EntityID, tick uint64) {
	m.Attack.Process(id, tick)
	m.Follow.Process(id, tick)
	m.Gather.Process(id, tick)
	m.Duel.Process(id, tick)
}

// Remove satisfies ecs.Removable.
func (m *Managers) Remove(id ecs.EntityID) {
	m.Attack.Remove(id)
	m.Follow.Remove(id)
	m.Gather.Remove(id)
	m.Duel.Remove(id)
}
