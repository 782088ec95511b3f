// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package backyard

// Insert adds one occurrence of k. Keys must fit in ItemBits.
//
// Insert is safe for concurrent use. It holds at most one slot lock at a time, so two
// goroutines inserting the same new key can both miss it and create two entries.
// Readers sum the counts of equal keys.
func (t *Table) Insert(k Key) {
	t.InsertN(k, 1)
}

// InsertN adds n occurrences of k, as if Insert had been called n times.
func (t *Table) InsertN(k Key, n uint64) {
	if n == 0 {
		return
	}
	if n > t.countMask {
		if t.spill.add(k, n) {
			t.spills.Add(1)
		}
		return
	}
	t.insert(k, n)
}

func (t *Table) insert(k Key, add uint64) {
	p := t.partialHash(k)
	n := uint64(len(t.items))
	stride := t.slotMask + 1

	// If the item is already present, bump its count. A slot holds k exactly when
	// it was placed by hash j and stores the same high bits, because unhash then
	// reproduces the low bits of k.
	for j := uint64(0); j < J; j++ {
		s0 := t.hash(p, j)
		lk := t.lockNum(s0)
		for s := s0; s < n; s += stride {
			lk.Lock()
			x := t.unpack(t.items[s])
			if x.count > 0 && x.hash == j && x.value == p.value {
				c := x.count + add
				if c <= t.countMask {
					t.items[s] = t.pack(j, c, p.value)
					lk.Unlock()
					return
				}
				// the count field is full, the spill table takes over the whole count
				t.items[s] = Key{}
				lk.Unlock()
				if t.spill.add(k, c) {
					t.spills.Add(1)
				}
				return
			}
			lk.Unlock()
		}
	}

	// Cuckoo insert. Each step swaps the carried item into a slot and picks up the
	// previous occupant. An occupant can move further down its own column without
	// changing its hash function; when the column is full it moves to its next function.
	t.size.Add(1)
	c := add
	v := p.value
	j := t.random.Add(1) % J
	for i := 0; i < S; i++ {
		s0 := t.hash(p, j)
		lk := t.lockNum(s0)
		for s := s0; s < n; s += stride {
			nw := t.pack(j, c, v)
			lk.Lock()
			old := t.items[s]
			t.items[s] = nw
			lk.Unlock()
			x := t.unpack(old)
			if x.count == 0 {
				return
			}
			t.bumps.Add(1)
			j, c, v = x.hash, x.count, x.value
		}
		k = t.unhash(s0, j, v)
		j = (j + 1) % J
		p = t.partialHash(k)
	}

	// Too hard, drop the carried item into the spill table.
	if t.spill.add(k, c) {
		t.panics.Add(1)
	}
}
