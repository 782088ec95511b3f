// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package backyard

// Count returns the number of times k has been inserted. Occurrences of a key may be
// split over several slots and the spill table, so every candidate slot is examined.
// Count takes no slot locks; call it after the inserting goroutines have finished.
func (t *Table) Count(k Key) uint64 {
	p := t.partialHash(k)
	n := uint64(len(t.items))
	stride := t.slotMask + 1
	var c uint64
	for j := uint64(0); j < J; j++ {
		s0 := t.hash(p, j)
		for s := s0; s < n; s += stride {
			x := t.unpack(t.items[s])
			if x.count > 0 && x.hash == j && t.unhash(s0, j, x.value) == k {
				c += x.count
			}
		}
	}
	return c + t.spill.get(k)
}

// At returns the key and count at positional index i. It is not a key lookup.
// Indices below Capacity address main table slots, an empty slot returns a zero count.
// Indices from Capacity on address the spill snapshot built by Index.
func (t *Table) At(i uint32) (Key, uint64) {
	if uint64(i) < uint64(len(t.items)) {
		x := t.unpack(t.items[i])
		return t.unhash(uint64(i)&t.slotMask, x.hash, x.value), x.count
	}
	e := t.spill.index[uint64(i)-uint64(len(t.items))]
	return e.Key, e.Count
}

// Len returns the number of positional indices, main table plus spill snapshot.
func (t *Table) Len() uint64 {
	return uint64(len(t.items)) + uint64(len(t.spill.index))
}
