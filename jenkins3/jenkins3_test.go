// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package jenkins3

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// from the lookup3.c driver
func TestHash2(t *testing.T) {
	const q = "Four score and seven years ago"
	tests := []struct {
		s            string
		pc, pb       uint32
		wantC, wantB uint32
	}{
		{"", 0, 0, 0xdeadbeef, 0xdeadbeef},
		{"", 0, 0xdeadbeef, 0xbd5b7dde, 0xdeadbeef},
		{"", 0xdeadbeef, 0xdeadbeef, 0x9c093ccd, 0xbd5b7dde},
		{q, 0, 0, 0x17770551, 0xce7226e6},
		{q, 0, 1, 0xe3607cae, 0xbd371de4},
		{q, 1, 0, 0xcd628161, 0x6cbea4b3},
	}
	for _, tt := range tests {
		c, b := Hash2([]byte(tt.s), tt.pc, tt.pb)
		assert.Equal(t, tt.wantC, c, "%q %#x %#x", tt.s, tt.pc, tt.pb)
		assert.Equal(t, tt.wantB, b, "%q %#x %#x", tt.s, tt.pc, tt.pb)
	}
}

// Every byte of the input reaches both halves, including the zero padded tail.
func TestHash2Lengths(t *testing.T) {
	k := make([]byte, 40)
	for i := range k {
		k[i] = byte(i + 1)
	}
	seen := make(map[uint64]int)
	for n := 0; n <= len(k); n++ {
		h := Sum64(k[:n], 0)
		if m, ok := seen[h]; ok {
			t.Fatalf("length %d collides with length %d", n, m)
		}
		seen[h] = n
	}
	for i := range k {
		c, b := Hash2(k, 0, 0)
		k[i] ^= 0x80
		c2, b2 := Hash2(k, 0, 0)
		k[i] ^= 0x80
		assert.NotEqual(t, c, c2, "byte %d", i)
		assert.NotEqual(t, b, b2, "byte %d", i)
	}
}

func TestSum64(t *testing.T) {
	c, b := Hash2([]byte("abc"), 5, 9)
	assert.Equal(t, uint64(c)|uint64(b)<<32, Sum64([]byte("abc"), 9<<32|5))
	assert.NotEqual(t, Sum64([]byte("abc"), 0), Sum64([]byte("abd"), 0))
}

func BenchmarkSum64(b *testing.B) {
	k := make([]byte, 16)
	b.SetBytes(int64(len(k)))
	for i := 0; i < b.N; i++ {
		Sum64(k, uint64(i))
	}
}
