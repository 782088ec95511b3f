// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package backyard

import (
	"encoding/binary"

	"github.com/dataence/cityhash"
	"github.com/spaolacci/murmur3"
	"leb.io/aeshash"
	"leb.io/backyard/jenkins264"
	"leb.io/backyard/jenkins3"
)

// thorough is the expensive hash applied once per key to its high bits.
// It must be deterministic, nothing else is required for correctness.
type thorough func(v Key) uint64

func j264(v Key) uint64 {
	return jenkins264.Hash2(v.Lo, v.Hi)
}

func keyBytes(b *[16]byte, v Key) []byte {
	binary.LittleEndian.PutUint64(b[0:], v.Lo)
	binary.LittleEndian.PutUint64(b[8:], v.Hi)
	return b[:]
}

func j3(v Key) uint64 {
	var b [16]byte
	return jenkins3.Sum64(keyBytes(&b, v), 0)
}

func m3(v Key) uint64 {
	var b [16]byte
	return murmur3.Sum64(keyBytes(&b, v))
}

func aes(v Key) uint64 {
	var b [16]byte
	return aeshash.Hash(keyBytes(&b, v), 0)
}

func city(v Key) uint64 {
	var b [16]byte
	return cityhash.CityHash64(keyBytes(&b, v), 16)
}

// Select a thorough hash by name, returning nil for unknown names.
func thoroughHash(hashName string) (thorough, string) {
	switch hashName {
	case "", "j264":
		return j264, "j264"
	case "j3":
		return j3, "j3"
	case "murmur3", "m3":
		return m3, "murmur3"
	case "aes":
		return aes, "aes"
	case "city":
		return city, "city"
	default:
		return nil, hashName
	}
}

// HashNames lists the names accepted by New.
func HashNames() []string {
	return []string{"j264", "j3", "murmur3", "aes", "city"}
}

// partial holds the intermediate results of the invertible hash. The key is split into
// low bits, which select a slot column, and high bits, which are stored. The high bits
// get the thorough hash once; the J hash functions are cheap universal hashes of that.
type partial struct {
	slot  uint64
	hash  uint64
	value Key
}

func (t *Table) partialHash(k Key) partial {
	v := t.valueBits(k)
	return partial{slot: t.slotBits(k), hash: t.h0(v), value: v}
}

// hash returns the slot column for hash function j.
func (t *Table) hash(p partial, j uint64) uint64 {
	return p.slot ^ (univ(j, p.hash) & t.slotMask)
}

// unhash recovers a key from its slot column, hash function number and stored value.
func (t *Table) unhash(s0, j uint64, v Key) Key {
	h := univ(j, t.h0(v)) & t.slotMask
	return t.join(s0^h, v)
}

var univA = [...]uint64{
	1<<54 - 33,
	1<<54 - 53,
	1<<54 - 131,
	1<<54 - 165,
	1<<54 - 245,
	1<<54 - 255,
	1<<54 - 257,
	1<<54 - 315,
}

var univB = [...]uint64{
	1<<40 - 87,
	1<<41 - 21,
	1<<42 - 11,
	1<<43 - 57,
	1<<44 - 17,
	1<<45 - 55,
	1<<46 - 21,
	1<<47 - 115,
}

// univ is the j'th universal hash a*x + b.
func univ(j, x uint64) uint64 {
	return univA[j]*x + univB[j]
}
