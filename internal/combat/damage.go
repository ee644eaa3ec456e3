package combat

import (
	"github.com/tickrpg/server/internal/core/ecs"
	"github.com/tickrpg/server/internal/core/event"
	"github.com/tickrpg/server/internal/world"
)

// MaxHitDelay caps the projectile/spell travel time in ticks.
const MaxHitDelay = 10

// QueuedDamage is one pending hit. Consumed exactly once, at the first tick
// where ApplyAtTick <= tick.
type QueuedDamage struct {
	AttackerID    ecs.EntityID
	TargetID      ecs.EntityID
	Damage        int32
	ApplyAtTick   uint64
	AttackerKind  event.EntityKind
	TargetKind    event.EntityKind
	AttackType    world.AttackType
	Distance      int32
	HitDelayTicks int
	QueuedTick    uint64
}

// HitDelay returns the travel time of an attack in ticks: melee lands
// immediately, arrows and spells take longer with distance.
func HitDelay(t world.AttackType, distance int32) int {
	if distance < 0 {
		distance = 0
	}
	var d int
	switch t {
	case world.AttackRanged:
		d = 1 + int(3+distance)/6
	case world.AttackMagic:
		d = 1 + int(1+distance)/3
	default:
		d = 0
	}
	return min(max(d, 0), MaxHitDelay)
}

// asymmetry is the extra tick a player's hit on an NPC waits. NPCs act
// before players, so their hits resolve the tick they are dealt.
func asymmetry(attacker, target event.EntityKind) uint64 {
	if attacker == event.KindPlayer && target == event.KindNpc {
		return 1
	}
	return 0
}

// Applier subtracts HP. *world.State satisfies it.
type Applier interface {
	ApplyDamage(id ecs.EntityID, amount int32) (remaining int32, ok bool)
}

// DamageQueue holds deferred hits. Game loop only.
type DamageQueue struct {
	entries []QueuedDamage
	target  Applier
	bus     *event.Bus
}

func NewDamageQueue(target Applier, bus *event.Bus) *DamageQueue {
	return &DamageQueue{
		entries: make([]QueuedDamage, 0, 128),
		target:  target,
		bus:     bus,
	}
}

// QueueDamage queues a melee hit dealt this tick.
func (q *DamageQueue) QueueDamage(attacker, target ecs.EntityID, damage int32, attackerKind, targetKind event.EntityKind, tick uint64) QueuedDamage {
	return q.QueueDamageWithDelay(attacker, target, damage, attackerKind, targetKind, world.AttackMelee, 0, tick)
}

// QueueDamageWithDelay queues a hit that lands after the attack type's travel
// time plus the player→NPC asymmetry tick.
func (q *DamageQueue) QueueDamageWithDelay(
	attacker, target ecs.EntityID,
	damage int32,
	attackerKind, targetKind event.EntityKind,
	attackType world.AttackType,
	distance int32,
	tick uint64,
) QueuedDamage {
	delay := HitDelay(attackType, distance)
	d := QueuedDamage{
		AttackerID:    attacker,
		TargetID:      target,
		Damage:        damage,
		ApplyAtTick:   tick + uint64(delay) + asymmetry(attackerKind, targetKind),
		AttackerKind:  attackerKind,
		TargetKind:    targetKind,
		AttackType:    attackType,
		Distance:      distance,
		HitDelayTicks: delay,
		QueuedTick:    tick,
	}
	q.entries = append(q.entries, d)
	return d
}

// Apply fires every due entry in queue order and keeps the rest in their
// original relative order. Hits on dead or missing targets are discarded.
// Returns the number of hits that landed.
func (q *DamageQueue) Apply(tick uint64) int {
	landed := 0
	kept := q.entries[:0]
	for _, d := range q.entries {
		if d.ApplyAtTick > tick {
			kept = append(kept, d)
			continue
		}
		remaining, ok := q.target.ApplyDamage(d.TargetID, d.Damage)
		if !ok {
			continue
		}
		landed++
		event.Publish(q.bus, event.DamageApplied{
			AttackerID: d.AttackerID,
			TargetID:   d.TargetID,
			Amount:     d.Damage,
			Remaining:  remaining,
			AttackType: uint8(d.AttackType),
			Tick:       tick,
		})
	}
	q.entries = kept
	return landed
}

// Pending returns a copy of the queued entries.
func (q *DamageQueue) Pending() []QueuedDamage {
	return append([]QueuedDamage(nil), q.entries...)
}

func (q *DamageQueue) Len() int {
	return len(q.entries)
}
