// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

// Package backyard implements a concurrent, bit-packed cuckoo hash table for counting
// fixed width keys such as k-mers.
//
// Each slot is a single 128 bit word holding the hash function number, the occurrence
// count and the high bits of the key. The low bits of the key are not stored; they are
// recovered by inverting the hash, so a table with 2^SlotBits slots saves SlotBits bits
// per entry.
//
// Inserts may run concurrently. Locks are shared between slots, 2^L of them no matter
// how large the table is. When two goroutines insert the same key, not yet present,
// at the same moment the key may end up in the table twice. The window is very small,
// but anything that reads the table back (Visit, Sort, Drain) must allow for
// duplicates and sum their counts. Drain does this.
//
// Keys that cannot be placed after S cuckoo exchanges, and keys whose count outgrows
// the count field, go to an exact spill table so no occurrence is ever lost.
package backyard

import (
	"math"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"leb.io/backyard/internal/spinlock"
)

const (
	// J is the number of hash functions used for cuckoo hashing.
	J = 4

	// S is the number of cuckoo exchanges attempted before an item goes to the spill table.
	S = 16 * J

	// L governs the number of locks: there are 2^L locks irrespective of the number of slots.
	L = 16

	// bits used to record the hash function number
	hashNumBits = 2
	hashNumMask = 1<<hashNumBits - 1

	// width in bits of a slot word
	wordBits = 128

	// the widest count the packed field is allowed to hold
	maxCountBits = 63

	// positional indices are uint32
	maxSlotBits = 31
)

// Config is the table geometry, fixed at construction. All fields are exported
// so callers can report them but they must not be changed.
type Config struct {
	SlotBits  uint   // log2 of the number of slot columns
	ItemBits  uint   // width of a key in bits
	CountBits uint   // width of the packed count field
	NumSlots  uint64 // number of physical slots, at least 1<<SlotBits
	HashName  string // name of the thorough hash applied to the high bits of a key
}

// The main data structure for the counting table.
type Table struct {
	Config

	slotMask  uint64
	countMask uint64
	h0        thorough

	items []Key
	locks []spinlock.Lock
	spill spillTable

	random atomic.Uint64 // rotates the starting hash function of cuckoo exchanges
	size   atomic.Uint64 // number of fresh entries created in the main table
	spills atomic.Uint64 // keys moved to the spill table because their count overflowed
	panics atomic.Uint64 // keys moved to the spill table because cuckoo exchanges ran out
	bumps  atomic.Uint64 // number of occupants evicted by cuckoo exchanges
}

// New creates a table with 2^slotBits slot columns for keys of itemBits bits.
// numSlots is the number of physical slots; when it exceeds 2^slotBits the extra
// slots extend each column with stride 2^slotBits. Values below 2^slotBits are raised to it.
// numSlots also seeds the rotation used to pick where cuckoo exchanges start.
// hashName selects the thorough hash, "" means "j264".
//
// New panics if the geometry cannot be packed into a 128 bit slot.
func New(slotBits, itemBits uint, numSlots uint64, hashName string) *Table {
	if slotBits > maxSlotBits {
		panic(errors.AssertionFailedf("backyard: slot bits %d exceeds %d", slotBits, maxSlotBits))
	}
	if itemBits > wordBits {
		panic(errors.AssertionFailedf("backyard: item bits %d exceeds %d", itemBits, wordBits))
	}
	if itemBits < slotBits {
		panic(errors.AssertionFailedf("backyard: item bits %d less than slot bits %d", itemBits, slotBits))
	}
	// itemBits >= slotBits, so the stored value is itemBits-slotBits wide
	if wordBits-(itemBits-slotBits) <= hashNumBits {
		panic(errors.AssertionFailedf("backyard: no room for a count with %d item bits and %d slot bits", itemBits, slotBits))
	}
	h0, name := thoroughHash(hashName)
	if h0 == nil {
		panic(errors.AssertionFailedf("backyard: unknown hash function %q", hashName))
	}

	columns := uint64(1) << slotBits
	if numSlots < columns {
		numSlots = columns
	}
	if numSlots > math.MaxUint32 {
		panic(errors.AssertionFailedf("backyard: %d slots cannot be addressed by a uint32", numSlots))
	}

	t := &Table{}
	t.SlotBits = slotBits
	t.ItemBits = itemBits
	t.CountBits = wordBits - (itemBits - slotBits) - hashNumBits
	t.NumSlots = numSlots
	t.HashName = name
	t.slotMask = columns - 1
	t.countMask = 1<<min(t.CountBits, maxCountBits) - 1
	t.h0 = h0
	t.items = make([]Key, numSlots)
	t.locks = make([]spinlock.Lock, 1<<L)
	t.spill.init()
	t.random.Store(numSlots)
	return t
}

// Capacity returns the number of physical slots in the main table.
func (t *Table) Capacity() uint64 {
	return uint64(len(t.items))
}

// Size returns the number of fresh entries Insert has created. Duplicated keys count
// once per copy, so it bounds the number of distinct keys from above.
func (t *Table) Size() uint64 {
	return t.size.Load()
}

// Spills returns the number of distinct keys held by the spill table.
func (t *Table) Spills() uint64 {
	return t.spill.len()
}

// Clear empties the table, keeping its memory and geometry for reuse.
// It must not run concurrently with any other method.
func (t *Table) Clear() {
	clear(t.items)
	t.spill.clear()
	t.size.Store(0)
	t.spills.Store(0)
	t.panics.Store(0)
	t.bumps.Store(0)
	t.random.Store(t.NumSlots)
}

// lockNum maps a slot column to its lock.
func (t *Table) lockNum(s0 uint64) *spinlock.Lock {
	return &t.locks[s0&(1<<L-1)]
}
