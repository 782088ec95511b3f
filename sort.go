// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package backyard

import (
	"math"
	"math/bits"
	"slices"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// number of radix bits used to split a sort into independent partitions
const partitionBits = 8

// below this many entries Sort doesn't bother with goroutines
const parallelSortMin = 1 << 14

// Index rebuilds the spill snapshot, giving spill entries the positional indices
// Capacity, Capacity+1, ... in key order. Call it after inserting has finished and
// before At, Radix64 or Less are used on spill entries.
func (t *Table) Index() {
	t.spill.snapshot()
}

// Radix64 returns the most significant 64 bits of the packed form of the item at i.
// Different radix values imply different keys; equal values need Less to tell them apart.
func (t *Table) Radix64(i uint32) uint64 {
	if uint64(i) < uint64(len(t.items)) {
		return t.items[i].Hi
	}
	e := t.spill.index[uint64(i)-uint64(len(t.items))]
	return t.valueBits(e.Key).Lsh(t.CountBits + hashNumBits).Hi
}

// Radix returns Radix64(i) >> shift.
func (t *Table) Radix(i uint32, shift uint) uint64 {
	return t.Radix64(i) >> shift
}

// Less orders positional indices by key, then by count.
func (t *Table) Less(l, r uint32) bool {
	n := uint64(len(t.items))
	if uint64(l) < n && uint64(r) < n {
		// high bits first, they are stored as is
		x, y := t.unpack(t.items[l]), t.unpack(t.items[r])
		if c := x.value.Cmp(y.value); c != 0 {
			return c < 0
		}
		kl := t.unhash(uint64(l)&t.slotMask, x.hash, x.value)
		kr := t.unhash(uint64(r)&t.slotMask, y.hash, y.value)
		if c := kl.Cmp(kr); c != 0 {
			return c < 0
		}
		return x.count < y.count
	}
	kl, cl := t.At(l)
	kr, cr := t.At(r)
	if c := kl.Cmp(kr); c != 0 {
		return c < 0
	}
	return cl < cr
}

func (t *Table) compare(a, b uint32) int {
	switch {
	case t.Less(a, b):
		return -1
	case t.Less(b, a):
		return 1
	}
	return 0
}

// Sort fills perm, reusing its storage, with the positional index of every occupied
// slot and spill entry, ordered by key. Equal keys, possible after concurrent inserts,
// end up adjacent. Up to numThreads goroutines sort partitions in parallel.
// Sort calls Index. It must not run concurrently with Insert.
func (t *Table) Sort(perm []uint32, numThreads int) ([]uint32, error) {
	t.Index()
	if t.Len() > math.MaxUint32 {
		return nil, errors.Newf("backyard: %d entries are too many for a 32 bit permutation", t.Len())
	}
	perm = perm[:0]
	t.Visit0(func(i uint32) bool {
		perm = append(perm, i)
		return false
	})

	// the radix holds only stored key bits once shifted, count bits fall off the bottom
	vbits := min(t.ItemBits-t.SlotBits, 64)
	shift := 64 - vbits
	radix := func(i uint32) uint64 {
		return t.Radix64(i) >> shift
	}
	cmp := func(a, b uint32) int {
		ra, rb := radix(a), radix(b)
		switch {
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		}
		return t.compare(a, b)
	}

	if numThreads <= 1 || len(perm) < parallelSortMin {
		slices.SortFunc(perm, cmp)
		return perm, nil
	}

	// Split on the top partitionBits of the radix range actually in use, then sort
	// the partitions independently. Partition order is key order.
	lo, hi := uint64(math.MaxUint64), uint64(0)
	for _, i := range perm {
		r := radix(i)
		lo = min(lo, r)
		hi = max(hi, r)
	}
	var psh int
	if span := bits.Len64(hi - lo); span > partitionBits {
		psh = span - partitionBits
	}
	part := func(i uint32) uint64 {
		return (radix(i) - lo) >> psh
	}

	var offs [1<<partitionBits + 1]int
	for _, i := range perm {
		offs[part(i)+1]++
	}
	for b := 1; b < len(offs); b++ {
		offs[b] += offs[b-1]
	}
	pos := offs
	tmp := make([]uint32, len(perm))
	for _, i := range perm {
		b := part(i)
		tmp[pos[b]] = i
		pos[b]++
	}

	var g errgroup.Group
	g.SetLimit(numThreads)
	for b := 0; b < 1<<partitionBits; b++ {
		p := tmp[offs[b]:offs[b+1]]
		if len(p) < 2 {
			continue
		}
		g.Go(func() error {
			slices.SortFunc(p, cmp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	copy(perm, tmp)
	return perm, nil
}

// Visit calls iter with the positional index, key and count of every occupied slot,
// then of every spill entry, in index order. It stops early if iter returns true.
// Visit calls Index. Equal keys may be visited more than once.
func (t *Table) Visit(iter func(i uint32, key Key, count uint64) (stop bool)) {
	t.Index()
	var i uint32
	for ; uint64(i) < uint64(len(t.items)); i++ {
		if t.getCount(uint64(i)) == 0 {
			continue
		}
		x := t.unpack(t.items[i])
		if iter(i, t.unhash(uint64(i)&t.slotMask, x.hash, x.value), x.count) {
			return
		}
	}
	for _, e := range t.spill.index {
		if iter(i, e.Key, e.Count) {
			return
		}
		i++
	}
}

// Visit0 is Visit passing only positional indices.
func (t *Table) Visit0(iter func(i uint32) (stop bool)) {
	t.Index()
	var i uint32
	for ; uint64(i) < uint64(len(t.items)); i++ {
		if t.getCount(uint64(i)) == 0 {
			continue
		}
		if iter(i) {
			return
		}
	}
	for range t.spill.index {
		if iter(i) {
			return
		}
		i++
	}
}
