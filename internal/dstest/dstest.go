// Copyright © 2014-2017 Lawrence E. Bakst. All rights reserved.

// small step towards creating a package that can test counting data structures
package dstest

import (
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/willf/bitset"
	"golang.org/x/sync/errgroup"
	"lukechampine.com/uint128"
)

// Counter is what a data structure must provide to be filled and verified.
type Counter interface {
	Insert(key uint128.Uint128)
	Count(key uint128.Uint128) uint64
	GetCounter(stat string) uint64
}

// return information about what happened during a fill
type FillStats struct {
	Keys     int           // keys in the fill stream, repeats included
	Distinct int           // distinct keys
	Inserts  uint64        // calls to Insert
	Size     uint64        // the "size" counter after the fill
	Spills   uint64        // the "spills" counter after the fill
	Bumps    uint64        // the "bumps" counter after the fill
	Load     float64       // Size over the "capacity" counter
	Duration time.Duration // time spent inserting
}

// Rate returns inserts per second.
func (fs *FillStats) Rate() float64 {
	if fs.Duration <= 0 {
		return 0
	}
	return float64(fs.Inserts) / fs.Duration.Seconds()
}

type DSTest struct {
	Seed    int64                      // seed used to control the fill stream
	I       Counter                    // functions
	R       *rand.Rand                 // random number generator with no lock
	Want    map[uint128.Uint128]uint64 // expected counts of everything filled so far
	Threads int                        // goroutines used by Fill
}

func NewTester(i Counter, threads int, seed int64) *DSTest {
	if threads < 1 {
		threads = 1
	}
	return &DSTest{
		Seed:    seed,
		I:       i,
		R:       rand.New(rand.NewSource(seed)), // no lock
		Want:    make(map[uint128.Uint128]uint64),
		Threads: threads,
	}
}

func (d *DSTest) rbetween(a int, b int) int {
	return a + int(d.R.Float64()*float64(b-a+1))
}

// Sequential returns the keys base, base+1, ... base+n-1.
func Sequential(base uint64, n int) []uint128.Uint128 {
	keys := make([]uint128.Uint128, n)
	for i := range keys {
		keys[i] = uint128.From64(base + uint64(i))
	}
	return keys
}

// Random returns n random keys of at most bits bits. Keys may repeat.
func (d *DSTest) Random(n int, bits uint) []uint128.Uint128 {
	keys := make([]uint128.Uint128, n)
	for i := range keys {
		k := uint128.New(d.R.Uint64(), d.R.Uint64())
		if bits < 128 {
			k = k.And(uint128.From64(1).Lsh(bits).Sub64(1))
		}
		keys[i] = k
	}
	return keys
}

// RandomBase returns a random base for Sequential.
func (d *DSTest) RandomBase() uint64 {
	return uint64(d.rbetween(1, 1<<29))
}

// Fill inserts every key reps times, spreading the keys over d.Threads goroutines.
// Keys are dealt round robin so neighbours land on different goroutines.
func (d *DSTest) Fill(keys []uint128.Uint128, reps int) *FillStats {
	fs := &FillStats{Keys: len(keys)}
	for _, k := range keys {
		d.Want[k] += uint64(reps)
	}

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < d.Threads; w++ {
		g.Go(func() error {
			for i := w; i < len(keys); i += d.Threads {
				for r := 0; r < reps; r++ {
					d.I.Insert(keys[i])
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	fs.Duration = time.Since(start)

	fs.Distinct = len(d.Want)
	fs.Inserts = uint64(len(keys)) * uint64(reps)
	fs.Size = d.I.GetCounter("size")
	fs.Spills = d.I.GetCounter("spills")
	fs.Bumps = d.I.GetCounter("bumps")
	if c := d.I.GetCounter("capacity"); c > 0 {
		fs.Load = float64(fs.Size) / float64(c)
	}
	return fs
}

// Verify checks the count of everything filled so far.
func (d *DSTest) Verify() error {
	for k, want := range d.Want {
		if got := d.I.Count(k); got != want {
			return errors.Newf("verify: key %v count %d, want %d", k, got, want)
		}
	}
	return nil
}

// VerifyPairs checks a drained stream of pairs against everything filled so far.
// Keys must be strictly increasing and every filled key must appear exactly once.
func (d *DSTest) VerifyPairs(keys []uint128.Uint128, counts []uint64) error {
	if len(keys) != len(counts) {
		return errors.Newf("verify: %d keys but %d counts", len(keys), len(counts))
	}
	if len(keys) != len(d.Want) {
		return errors.Newf("verify: %d pairs, want %d", len(keys), len(d.Want))
	}
	for i, k := range keys {
		if i > 0 && keys[i-1].Cmp(k) >= 0 {
			return errors.Newf("verify: key %v at %d out of order", k, i)
		}
		if want := d.Want[k]; counts[i] != want {
			return errors.Newf("verify: pair %d key %v count %d, want %d", i, k, counts[i], want)
		}
	}
	return nil
}

// CheckPerm checks that perm holds each index below n at most once and exactly the
// indices for which present returns true.
func CheckPerm(perm []uint32, n uint64, present func(i uint32) bool) error {
	seen := bitset.New(uint(n))
	for _, i := range perm {
		if uint64(i) >= n {
			return errors.Newf("perm: index %d out of range %d", i, n)
		}
		if seen.Test(uint(i)) {
			return errors.Newf("perm: index %d repeated", i)
		}
		seen.Set(uint(i))
	}
	for i := uint64(0); i < n; i++ {
		if present(uint32(i)) != seen.Test(uint(i)) {
			return errors.Newf("perm: index %d present=%v", i, present(uint32(i)))
		}
	}
	return nil
}

// Reset forgets everything filled so far.
func (d *DSTest) Reset() {
	clear(d.Want)
}
