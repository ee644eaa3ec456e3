package ecs

import "sort"

// Removable is implemented by all component stores so the Registry can
// bulk-remove an entity's data from every store on destroy.
type Removable interface {
	Remove(id EntityID)
}

// PtrComponentStore is a generic typed map store for per-entity state
// (movement, script queues, pending interactions).
// Map iteration order is random: anything that feeds the simulation must go
// through SortedIDs or the tick order caches, never Each.
type PtrComponentStore[T any] struct {
	data map[EntityID]*T
}

func NewPtrComponentStore[T any]() *PtrComponentStore[T] {
	return &PtrComponentStore[T]{
		data: make(map[EntityID]*T, 256),
	}
}

func (s *PtrComponentStore[T]) Set(id EntityID, c *T) {
	s.data[id] = c
}

func (s *PtrComponentStore[T]) Get(id EntityID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

// GetOrCreate returns the component for id, creating it with mk on first use.
func (s *PtrComponentStore[T]) GetOrCreate(id EntityID, mk func() *T) *T {
	if c, ok := s.data[id]; ok {
		return c
	}
	c := mk()
	s.data[id] = c
	return c
}

func (s *PtrComponentStore[T]) Remove(id EntityID) {
	delete(s.data, id)
}

func (s *PtrComponentStore[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *PtrComponentStore[T]) Len() int {
	return len(s.data)
}

// Each visits components in unspecified order. Only for order-independent work.
func (s *PtrComponentStore[T]) Each(fn func(EntityID, *T)) {
	for id, c := range s.data {
		fn(id, c)
	}
}

// SortedIDs appends every entity id in ascending order to dst.
func (s *PtrComponentStore[T]) SortedIDs(dst []EntityID) []EntityID {
	start := len(dst)
	for id := range s.data {
		dst = append(dst, id)
	}
	ids := dst[start:]
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return dst
}
