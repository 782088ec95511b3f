// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package backyard

import "lukechampine.com/uint128"

// Key is the type of the items counted by a Table. K-mers up to 64 bases fit at 2 bits per base.
// Slot words use the same type.
type Key = uint128.Uint128

// KeyFrom64 returns the Key holding v.
func KeyFrom64(v uint64) Key {
	return uint128.From64(v)
}

// Content is the unpacked contents of a slot.
type Content struct {
	hash  uint64
	count uint64
	value Key
}

// Hash returns the number of the hash function that placed the item.
func (x Content) Hash() uint64 { return x.hash }

// Count returns the frequency of the item.
func (x Content) Count() uint64 { return x.count }

// Value returns the high bits of the item.
func (x Content) Value() Key { return x.value }

// Slot layout, most significant bits first:
//
//	vvv...vvvccc...cccjj
//
// v: the stored high bits of the key, ItemBits-SlotBits of them
// c: the count, CountBits of them
// j: the hash function number
func (t *Table) pack(j, c uint64, v Key) Key {
	return v.Lsh(t.CountBits).Or64(c).Lsh(hashNumBits).Or64(j)
}

func (t *Table) unpack(x Key) Content {
	j := x.Lo & hashNumMask
	x = x.Rsh(hashNumBits)
	c := x.Lo & t.countMask
	return Content{hash: j, count: c, value: x.Rsh(t.CountBits)}
}

// getCount extracts just the count of slot s.
func (t *Table) getCount(s uint64) uint64 {
	if hashNumBits+t.CountBits <= 64 {
		return (t.items[s].Lo >> hashNumBits) & t.countMask
	}
	return t.items[s].Rsh(hashNumBits).Lo & t.countMask
}

func (t *Table) slotBits(k Key) uint64 {
	return k.Lo & t.slotMask
}

func (t *Table) valueBits(k Key) Key {
	return k.Rsh(t.SlotBits)
}

func (t *Table) join(s0 uint64, v Key) Key {
	return v.Lsh(t.SlotBits).Or64(s0)
}
