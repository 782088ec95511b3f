// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

// Package kmer packs DNA words of up to 64 bases into 128 bit keys, 2 bits per base.
// The first base of a word is the most significant.
package kmer

import (
	"strings"

	"github.com/cockroachdb/errors"
	"lukechampine.com/uint128"
)

// MaxK is the longest k-mer that fits in a key.
const MaxK = 64

// Kmer is a packed word. Bases are A=0, C=1, G=2, T=3, so complementing a base is 3-b.
type Kmer = uint128.Uint128

var codes = func() (t [256]int8) {
	for i := range t {
		t[i] = -1
	}
	for i, c := range "ACGT" {
		t[c] = int8(i)
		t[c+'a'-'A'] = int8(i)
	}
	return
}()

// Bits returns the number of key bits used by a k-mer of length k.
func Bits(k int) uint {
	return uint(2 * k)
}

func mask(k int) Kmer {
	if k >= MaxK {
		return uint128.Max
	}
	return uint128.From64(1).Lsh(Bits(k)).Sub64(1)
}

// Encode packs seq, which must hold between 1 and MaxK bases from ACGT in either case.
func Encode(seq string) (Kmer, error) {
	if len(seq) == 0 || len(seq) > MaxK {
		return Kmer{}, errors.Newf("kmer: length %d not in [1, %d]", len(seq), MaxK)
	}
	var x Kmer
	for i := 0; i < len(seq); i++ {
		b := codes[seq[i]]
		if b < 0 {
			return Kmer{}, errors.Newf("kmer: bad base %q at %d", seq[i], i)
		}
		x = x.Lsh(2).Or64(uint64(b))
	}
	return x, nil
}

// String unpacks a k-mer of length k.
func String(x Kmer, k int) string {
	var sb strings.Builder
	sb.Grow(k)
	for i := k - 1; i >= 0; i-- {
		sb.WriteByte("ACGT"[x.Rsh(uint(2*i)).Lo&3])
	}
	return sb.String()
}

// ReverseComplement returns the k-mer read from the opposite strand.
func ReverseComplement(x Kmer, k int) Kmer {
	var y Kmer
	for i := 0; i < k; i++ {
		y = y.Lsh(2).Or64(3 - x.Lo&3)
		x = x.Rsh(2)
	}
	return y
}

// Canonical returns the lesser of x and its reverse complement, so both strands of a
// word count as the same key.
func Canonical(x Kmer, k int) Kmer {
	y := ReverseComplement(x, k)
	if y.Cmp(x) < 0 {
		return y
	}
	return x
}

// Each calls fn with every k-mer of read in order. Windows containing a base other than
// ACGT are skipped. It stops early if fn returns true.
func Each(read []byte, k int, fn func(x Kmer) (stop bool)) {
	if k < 1 || k > MaxK {
		panic(errors.AssertionFailedf("kmer: k=%d not in [1, %d]", k, MaxK))
	}
	m := mask(k)
	var x Kmer
	n := 0 // valid bases at the end of the window
	for _, c := range read {
		b := codes[c]
		if b < 0 {
			n = 0
			continue
		}
		x = x.Lsh(2).Or64(uint64(b)).And(m)
		n++
		if n >= k && fn(x) {
			return
		}
	}
}
