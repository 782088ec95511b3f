// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

// Package jenkins3 implements Bob Jenkins' lookup3 hashlittle2, which hashes bytes
// into two 32 bit values.
package jenkins3

import (
	"encoding/binary"
	"math/bits"
)

func rot(x uint32, k int) uint32 {
	return bits.RotateLeft32(x, k)
}

func mix(a, b, c uint32) (uint32, uint32, uint32) {
	a -= c
	a ^= rot(c, 4)
	c += b
	b -= a
	b ^= rot(a, 6)
	a += c
	c -= b
	c ^= rot(b, 8)
	b += a
	a -= c
	a ^= rot(c, 16)
	c += b
	b -= a
	b ^= rot(a, 19)
	a += c
	c -= b
	c ^= rot(b, 4)
	b += a
	return a, b, c
}

func final(a, b, c uint32) (uint32, uint32, uint32) {
	c ^= b
	c -= rot(b, 14)
	a ^= c
	a -= rot(c, 11)
	b ^= a
	b -= rot(a, 25)
	c ^= b
	c -= rot(b, 16)
	a ^= c
	a -= rot(c, 4)
	b ^= a
	b -= rot(a, 14)
	c ^= b
	c -= rot(b, 24)
	return a, b, c
}

// Hash2 hashes k and returns two 32 bit values, lookup3's hashlittle2.
// pc is better mixed than pb; use pc first.
func Hash2(k []byte, pc, pb uint32) (rpc, rpb uint32) {
	a := 0xdeadbeef + uint32(len(k)) + pc
	b, c := a, a
	c += pb

	for ; len(k) > 12; k = k[12:] {
		a += binary.LittleEndian.Uint32(k[0:])
		b += binary.LittleEndian.Uint32(k[4:])
		c += binary.LittleEndian.Uint32(k[8:])
		a, b, c = mix(a, b, c)
	}
	if len(k) == 0 {
		return c, b
	}

	// zero padded last block
	var t [12]byte
	copy(t[:], k)
	a += binary.LittleEndian.Uint32(t[0:])
	b += binary.LittleEndian.Uint32(t[4:])
	c += binary.LittleEndian.Uint32(t[8:])
	_, b, c = final(a, b, c)
	return c, b
}

// Sum64 returns both lookup3 values of data as one 64 bit hash.
func Sum64(data []byte, seed uint64) uint64 {
	c, b := Hash2(data, uint32(seed), uint32(seed>>32))
	return uint64(c) | uint64(b)<<32
}
