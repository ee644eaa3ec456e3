package system

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// computeDigest hashes the simulation state: players in join order, NPCs
// and resource nodes by id. Two servers fed the same seed and inputs
// produce the same digest every tick.
func (o *Orchestrator) computeDigest() [32]byte {
	h, _ := blake2b.New256(nil)
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	flag := func(b bool) {
		if b {
			put(1)
		} else {
			put(0)
		}
	}

	for _, p := range o.world.PlayersByJoinOrder() {
		put(uint64(p.ID))
		put(uint64(int64(p.Layer)))
		put(uint64(int64(p.Tile.X)))
		put(uint64(int64(p.Tile.Z)))
		put(uint64(int64(p.HP)))
		flag(p.Dead)
	}
	for _, n := range o.world.NpcsByID() {
		put(uint64(n.ID))
		put(uint64(int64(n.Layer)))
		put(uint64(int64(n.Tile.X)))
		put(uint64(int64(n.Tile.Z)))
		put(uint64(int64(n.HP)))
		flag(n.Dead)
	}
	for _, r := range o.world.NodesByID() {
		put(uint64(r.ID))
		put(uint64(int64(r.Charges)))
		flag(r.Depleted)
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
