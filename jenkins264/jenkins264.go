// Copyright © 2014 Lawrence E. Bakst. All rights reserved.
// See http://burtleburtle.net/bob/c/lookup8.c and http://burtleburtle.net/bob/hash/evahash.html

// Package jenkins264 implements Bob Jenkins' 64 bit hashes.
// HashWords hashes whole machine words and is what the counting table uses to scatter
// the high bits of a key.
package jenkins264

// initial state for HashWords
const (
	wordsH = 0x6931471805599453
	wordsX = 0x9e3779b97f4a7c13 // the 64-bit golden ratio
	wordsY = 0x1415926535897932
)

// mix is the short three word mix from lookup8.c.
func mix(a, b, c uint64) (uint64, uint64, uint64) {
	a -= b
	a -= c
	a ^= c >> 13
	b -= c
	b -= a
	b ^= a << 8
	c -= a
	c -= b
	c ^= b >> 13
	a -= b
	a -= c
	a ^= c >> 12
	b -= c
	b -= a
	b ^= a << 16
	c -= a
	c -= b
	c ^= b >> 5
	a -= b
	a -= c
	a ^= c >> 3
	b -= c
	b -= a
	b ^= a << 10
	c -= a
	c -= b
	c ^= b >> 15
	return a, b, c
}

// HashWords hashes a sequence of 64 bit words, three at a time.
// A trailing pair or single word gets one more mix, an empty slice returns the initial state.
func HashWords(w []uint64) uint64 {
	h, x, y := uint64(wordsH), uint64(wordsX), uint64(wordsY)
	for len(w) >= 3 {
		h += w[0]
		x += w[1]
		y += w[2]
		x, y, h = mix(x, y, h)
		w = w[3:]
	}
	switch len(w) {
	case 2:
		h += w[0]
		w = w[1:]
		fallthrough
	case 1:
		x += w[0]
		x, y, h = mix(x, y, h)
	}
	return h
}

// Hash2 is HashWords for exactly two words without building a slice.
func Hash2(w0, w1 uint64) uint64 {
	h, x, y := uint64(wordsH)+w0, uint64(wordsX)+w1, uint64(wordsY)
	_, _, h = mix(x, y, h)
	return h
}
