// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package backyard_test

import (
	"bytes"
	"io"
	"math/rand"
	"runtime"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	. "leb.io/backyard"
	"leb.io/backyard/internal/dstest"
)

type pair struct {
	key   Key
	count uint64
}

func drain(t *testing.T, tb *Table, threads int) []pair {
	t.Helper()
	var ps []pair
	require.NoError(t, tb.Drain(threads, func(k Key, c uint64) error {
		ps = append(ps, pair{k, c})
		return nil
	}))
	return ps
}

func verifyDrain(t *testing.T, tb *Table, d *dstest.DSTest, threads int) {
	t.Helper()
	ps := drain(t, tb, threads)
	keys := make([]Key, len(ps))
	counts := make([]uint64, len(ps))
	for i, p := range ps {
		keys[i], counts[i] = p.key, p.count
	}
	require.NoError(t, d.VerifyPairs(keys, counts))
}

func checkSorted(t *testing.T, tb *Table, perm []uint32) {
	t.Helper()
	require.NoError(t, dstest.CheckPerm(perm, tb.Len(), func(i uint32) bool {
		_, c := tb.At(i)
		return uint64(i) >= tb.Capacity() || c > 0
	}))
	for n := 1; n < len(perm); n++ {
		kp, _ := tb.At(perm[n-1])
		k, _ := tb.At(perm[n])
		require.LessOrEqual(t, kp.Cmp(k), 0, "position %d", n)
		require.False(t, tb.Less(perm[n], perm[n-1]), "position %d", n)
	}
}

// 100000 distinct keys from 4 goroutines into a table with 65536 slots.
func TestFourThreads(t *testing.T) {
	tb := New(16, 40, 0, "")
	d := dstest.NewTester(tb, 4, 1)
	fs := d.Fill(dstest.Sequential(1, 100000), 1)
	require.NoError(t, d.Verify())
	for i := uint64(1); i <= 100000; i++ {
		require.Equal(t, uint64(1), tb.Count(KeyFrom64(i)), "key %d", i)
	}
	assert.Zero(t, tb.Count(KeyFrom64(0)))
	assert.Zero(t, tb.Count(KeyFrom64(100001)))

	s := tb.Stats()
	assert.Equal(t, uint64(1<<16), s.Capacity)
	assert.LessOrEqual(t, s.Size, s.Capacity+s.PanicSpills)
	assert.Positive(t, s.PanicSpills)
	assert.Zero(t, s.CountSpills)
	assert.Equal(t, fs.Size, s.Size)

	verifyDrain(t, tb, d, 4)
}

func TestRepeatedKeys(t *testing.T) {
	tb := New(16, 40, 0, "")
	d := dstest.NewTester(tb, 8, 2)
	d.Fill(d.Random(20000, 40), 3)
	d.Fill(d.Random(20000, 12), 1) // plenty of repeats
	require.NoError(t, d.Verify())
	verifyDrain(t, tb, d, 4)
}

// Every goroutine inserts the same keys, so concurrent first inserts of a key race.
func TestConcurrentDuplicates(t *testing.T) {
	const n, threads = 2000, 8
	tb := New(12, 40, 0, "")
	var g errgroup.Group
	for w := 0; w < threads; w++ {
		g.Go(func() error {
			for i := uint64(0); i < n; i++ {
				tb.Insert(KeyFrom64(i))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for i := uint64(0); i < n; i++ {
		require.Equal(t, uint64(threads), tb.Count(KeyFrom64(i)))
	}
	ps := drain(t, tb, 2)
	require.Len(t, ps, n)
	for i, p := range ps {
		assert.Equal(t, KeyFrom64(uint64(i)), p.key)
		assert.Equal(t, uint64(threads), p.count)
	}
}

func TestSmallTableSpills(t *testing.T) {
	tb := New(8, 40, 0, "")
	d := dstest.NewTester(tb, 2, 3)
	d.Fill(d.Random(1000, 40), 2)
	require.NoError(t, d.Verify())
	assert.Positive(t, tb.GetCounter("panic-spills"))
	assert.Positive(t, tb.Spills())
	assert.Positive(t, tb.GetCounter("bumps"))
	verifyDrain(t, tb, d, 1)
}

// Extra slots extend each column, so more keys fit before anything spills.
func TestStridedColumns(t *testing.T) {
	plain := New(8, 40, 0, "")
	strided := New(8, 40, 1024, "")
	assert.Equal(t, uint64(256), plain.Capacity())
	assert.Equal(t, uint64(1024), strided.Capacity())

	keys := dstest.Sequential(1000, 900)
	dp := dstest.NewTester(plain, 1, 4)
	ds := dstest.NewTester(strided, 1, 4)
	dp.Fill(keys, 1)
	ds.Fill(keys, 1)
	require.NoError(t, dp.Verify())
	require.NoError(t, ds.Verify())
	assert.Less(t, strided.Spills(), plain.Spills())
	verifyDrain(t, strided, ds, 2)
}

// A 6 bit count field overflows at 64.
func TestCountOverflow(t *testing.T) {
	tb := New(8, 128, 0, "")
	require.Equal(t, uint(6), tb.CountBits)

	k := KeyFrom64(12345)
	for i := 0; i < 100; i++ {
		tb.Insert(k)
	}
	assert.Equal(t, uint64(100), tb.Count(k))
	assert.Equal(t, uint64(1), tb.GetCounter("count-spills"))
	assert.Equal(t, uint64(1), tb.Spills())

	for i := 0; i < 200; i++ {
		tb.Insert(k)
	}
	assert.Equal(t, uint64(300), tb.Count(k))
	assert.Equal(t, uint64(1), tb.GetCounter("count-spills"))

	ps := drain(t, tb, 1)
	require.Len(t, ps, 1)
	assert.Equal(t, pair{k, 300}, ps[0])
}

func TestInsertN(t *testing.T) {
	tb := New(8, 128, 0, "")
	a, b := KeyFrom64(1), KeyFrom64(2)
	tb.InsertN(a, 10)
	tb.InsertN(a, 0)
	tb.InsertN(b, 1000)
	tb.InsertN(b, 1)
	assert.Equal(t, uint64(10), tb.Count(a))
	assert.Equal(t, uint64(1001), tb.Count(b))
	assert.Equal(t, []pair{{a, 10}, {b, 1001}}, drain(t, tb, 1))
}

func TestSort(t *testing.T) {
	for _, threads := range []int{1, 4} {
		tb := New(14, 48, 0, "")
		d := dstest.NewTester(tb, 4, 5)
		d.Fill(d.Random(30000, 48), 1)

		perm, err := tb.Sort(nil, threads)
		require.NoError(t, err)
		checkSorted(t, tb, perm)
		assert.Greater(t, len(perm), 1<<14)

		// reuse
		perm2, err := tb.Sort(perm, threads)
		require.NoError(t, err)
		checkSorted(t, tb, perm2)
	}
}

func TestSortWideKeys(t *testing.T) {
	tb := New(10, 128, 0, "murmur3")
	d := dstest.NewTester(tb, 4, 6)
	d.Fill(d.Random(40000, 128), 1)
	perm, err := tb.Sort(nil, 8)
	require.NoError(t, err)
	checkSorted(t, tb, perm)
	verifyDrain(t, tb, d, 8)
}

func TestSortSerialParallelAgree(t *testing.T) {
	tb := New(15, 40, 0, "")
	d := dstest.NewTester(tb, 4, 7)
	d.Fill(d.Random(50000, 40), 1)

	p1, err := tb.Sort(nil, 1)
	require.NoError(t, err)
	p4, err := tb.Sort(nil, 4)
	require.NoError(t, err)
	require.Equal(t, len(p1), len(p4))
	for i := range p1 {
		k1, c1 := tb.At(p1[i])
		k4, c4 := tb.At(p4[i])
		require.Equal(t, k1, k4)
		require.Equal(t, c1, c4)
	}
}

func TestRadix(t *testing.T) {
	tb := New(8, 40, 0, "")
	d := dstest.NewTester(tb, 1, 8)
	d.Fill(d.Random(2000, 40), 1)
	perm, err := tb.Sort(nil, 1)
	require.NoError(t, err)
	for n := 1; n < len(perm); n++ {
		// the top 32 value bits are in key order
		require.LessOrEqual(t, tb.Radix(perm[n-1], 32), tb.Radix(perm[n], 32))
	}
	require.Positive(t, tb.Spills())
	i := perm[len(perm)-1]
	assert.Equal(t, tb.Radix64(i)>>32, tb.Radix(i, 32))
}

func TestMerge(t *testing.T) {
	tb := New(10, 40, 0, "")
	for i := uint64(0); i < 100; i++ {
		for r := uint64(0); r <= i%3; r++ {
			tb.Insert(KeyFrom64(i * 7))
		}
	}
	perm, err := tb.Sort(nil, 1)
	require.NoError(t, err)
	var n uint64
	require.NoError(t, tb.Merge(perm, func(k Key, c uint64) error {
		assert.Equal(t, KeyFrom64(n*7), k)
		assert.Equal(t, n%3+1, c)
		n++
		return nil
	}))
	assert.Equal(t, uint64(100), n)

	assert.NoError(t, tb.Merge(nil, func(Key, uint64) error {
		t.Fatal("emit on empty permutation")
		return nil
	}))
}

func TestDrainEmitError(t *testing.T) {
	tb := New(8, 40, 0, "")
	for i := uint64(0); i < 10; i++ {
		tb.Insert(KeyFrom64(i))
	}
	stop := errors.New("stop")
	n := 0
	err := tb.Drain(1, func(Key, uint64) error {
		n++
		if n == 3 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 3, n)
}

func TestVisit(t *testing.T) {
	tb := New(6, 40, 0, "")
	d := dstest.NewTester(tb, 1, 9)
	d.Fill(dstest.Sequential(0, 200), 1)

	got := map[Key]uint64{}
	last := -1
	tb.Visit(func(i uint32, k Key, c uint64) bool {
		assert.Greater(t, int(i), last)
		last = int(i)
		got[k] += c
		return false
	})
	assert.Equal(t, d.Want, got)

	n := 0
	tb.Visit0(func(i uint32) bool {
		_, c := tb.At(i)
		assert.Positive(t, c)
		n++
		return false
	})
	assert.GreaterOrEqual(t, n, len(got))

	n = 0
	tb.Visit(func(uint32, Key, uint64) bool { n++; return n == 5 })
	assert.Equal(t, 5, n)
	n = 0
	tb.Visit0(func(uint32) bool { n++; return true })
	assert.Equal(t, 1, n)
}

func TestEmpty(t *testing.T) {
	tb := New(8, 40, 0, "")
	perm, err := tb.Sort(nil, 4)
	require.NoError(t, err)
	assert.Empty(t, perm)
	assert.Empty(t, drain(t, tb, 4))
	assert.Equal(t, uint64(256), tb.Len())
	assert.Zero(t, tb.Size())
}

func TestClear(t *testing.T) {
	tb := New(8, 40, 0, "")
	d := dstest.NewTester(tb, 2, 10)
	d.Fill(d.Random(1000, 40), 1)
	require.Positive(t, tb.Spills())

	tb.Clear()
	assert.Zero(t, tb.Size())
	assert.Zero(t, tb.Spills())
	assert.Equal(t, Stats{Capacity: 256}, tb.Stats())
	for k := range d.Want {
		require.Zero(t, tb.Count(k))
	}
	assert.Empty(t, drain(t, tb, 1))

	d.Reset()
	d.Fill(dstest.Sequential(5, 100), 2)
	require.NoError(t, d.Verify())
	verifyDrain(t, tb, d, 1)
}

func TestStats(t *testing.T) {
	tb := New(10, 40, 0, "")
	for i := uint64(0); i < 512; i++ {
		tb.Insert(KeyFrom64(i))
	}
	s := tb.Stats()
	assert.Equal(t, uint64(512), s.Size)
	assert.Equal(t, uint64(1024), s.Capacity)
	assert.InDelta(t, 0.5, s.Load, 1e-9)
	for name, want := range map[string]uint64{
		"size":         s.Size,
		"capacity":     s.Capacity,
		"spills":       s.SpillItems,
		"count-spills": s.CountSpills,
		"panic-spills": s.PanicSpills,
		"bumps":        s.Bumps,
	} {
		assert.Equal(t, want, tb.GetCounter(name), name)
	}
	assert.Panics(t, func() { tb.GetCounter("elements") })
}

func TestNewPanics(t *testing.T) {
	tests := []struct {
		name               string
		slotBits, itemBits uint
		numSlots           uint64
		hash               string
	}{
		{"slot bits", 32, 64, 0, ""},
		{"item bits", 16, 129, 0, ""},
		{"items narrower than slots", 16, 8, 0, ""},
		{"no count", 0, 128, 0, ""},
		{"count too narrow", 0, 127, 0, ""},
		{"hash", 8, 40, 0, "sha1"},
		{"slots", 8, 40, 1 << 33, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() { New(tt.slotBits, tt.itemBits, tt.numSlots, tt.hash) })
		})
	}
	assert.NotPanics(t, func() { New(0, 125, 0, "") })
}

func TestHashNames(t *testing.T) {
	for _, name := range append(HashNames(), "m3", "") {
		t.Run(name, func(t *testing.T) {
			tb := New(10, 40, 0, name)
			d := dstest.NewTester(tb, 4, 11)
			d.Fill(d.Random(3000, 40), 2)
			require.NoError(t, d.Verify())
			verifyDrain(t, tb, d, 2)
		})
	}
}

func TestSizing(t *testing.T) {
	for s := uint(1); s <= 31; s++ {
		b := EstimatedSize(s)
		assert.Equal(t, s, MaxSlotBits(b), "slot bits %d", s)
		assert.Equal(t, s, MaxSlotBits(b+b/2), "slot bits %d", s)
		assert.Equal(t, uint64(1)<<s, SlotsForBudget(b))
	}
	for _, b := range []uint64{1 << 10, 1 << 20, 3 << 30, 2e9} {
		s := MaxSlotBits(b)
		assert.LessOrEqual(t, EstimatedSize(s), b)
		assert.Greater(t, EstimatedSize(s+1), b)
		assert.GreaterOrEqual(t, SlotsForBudget(b), uint64(1)<<s)
	}
	// the bound holds from one slot up, smaller budgets are rejected by SlotsForBudget
	for b := EstimatedSize(0); b < EstimatedSize(3); b++ {
		assert.LessOrEqual(t, EstimatedSize(MaxSlotBits(b)), b, "budget %d", b)
	}
	for b := uint64(0); b < EstimatedSize(0); b++ {
		assert.Zero(t, MaxSlotBits(b), "budget %d", b)
		assert.Zero(t, SlotsForBudget(b), "budget %d", b)
	}
	assert.Equal(t, uint(31), MaxSlotBits(1<<50))
	assert.LessOrEqual(t, SlotsForBudget(1<<50), uint64(1<<32-1))
}

func TestEncoderDecoder(t *testing.T) {
	tb := New(10, 128, 0, "")
	d := dstest.NewTester(tb, 2, 12)
	d.Fill(d.Random(5000, 128), 1)
	d.Fill(dstest.Sequential(0, 50), 100)

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, tb.Drain(2, enc.Encode))
	require.NoError(t, enc.Flush())
	assert.Equal(t, uint64(len(d.Want)), enc.Count())

	dec := NewDecoder(bytes.NewReader(buf.Bytes()))
	var prev Key
	for i := 0; ; i++ {
		k, c, err := dec.Decode()
		if err == io.EOF {
			assert.Equal(t, len(d.Want), i)
			break
		}
		require.NoError(t, err)
		if i > 0 {
			require.Equal(t, 1, k.Cmp(prev))
		}
		require.Equal(t, d.Want[k], c)
		prev = k
	}

	// a fresh table loaded from the stream drains the same
	tb2 := New(10, 128, 0, "")
	n, err := tb2.Load(NewDecoder(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, enc.Count(), n)
	d.I = tb2
	require.NoError(t, d.Verify())
	verifyDrain(t, tb2, d, 1)
}

// A stream cut inside a record must fail, wherever the cut falls.
func TestDecoderTruncated(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(KeyFrom64(7), 3))
	require.NoError(t, enc.Encode(KeyFrom64(9), 1))
	require.NoError(t, enc.Flush())
	b := buf.Bytes()
	const rec = 24
	require.Len(t, b, 2*rec)

	for cut := 0; cut <= len(b); cut++ {
		tb := New(8, 40, 0, "")
		n, err := tb.Load(NewDecoder(bytes.NewReader(b[:cut])))
		assert.Equal(t, uint64(cut/rec), n, "cut %d", cut)
		if cut%rec == 0 {
			assert.NoError(t, err, "cut %d", cut)
			continue
		}
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF, "cut %d", cut)
	}
}

func TestMemoryEfficiency(t *testing.T) {
	const n = 1 << 18
	var msb, msa runtime.MemStats
	r := rand.New(rand.NewSource(13))
	keys := make([]Key, n)
	for i := range keys {
		keys[i] = KeyFrom64(r.Uint64() & (1<<54 - 1))
	}

	runtime.ReadMemStats(&msb)
	tb := New(18, 54, 0, "")
	for _, k := range keys {
		tb.Insert(k)
	}
	runtime.ReadMemStats(&msa)
	tbytes := msa.TotalAlloc - msb.TotalAlloc

	runtime.ReadMemStats(&msb)
	m := make(map[Key]uint64)
	for _, k := range keys {
		m[k]++
	}
	runtime.ReadMemStats(&msa)
	mbytes := msa.TotalAlloc - msb.TotalAlloc

	t.Logf("backyard load factor:     %0.2f", tb.Stats().Load)
	t.Logf("backyard memory allocated: %0.0f MiB", float64(tbytes)/float64(1<<20))
	t.Logf("Go map memory allocated:   %0.0f MiB", float64(mbytes)/float64(1<<20))
	assert.Less(t, tbytes, mbytes)
}

func benchmarkInsert(slotBits, itemBits uint, hash string, threads int, b *testing.B) {
	tb := New(slotBits, itemBits, 0, hash)
	mask := uint64(1)<<itemBits - 1
	b.ResetTimer()
	b.ReportAllocs()
	var g errgroup.Group
	for w := 0; w < threads; w++ {
		g.Go(func() error {
			for i := w; i < b.N; i += threads {
				tb.Insert(KeyFrom64(uint64(i) * 0x9e3779b97f4a7c15 & mask))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func BenchmarkInsertJ264(b *testing.B)     { benchmarkInsert(20, 54, "j264", 1, b) }
func BenchmarkInsertMurmur3(b *testing.B)  { benchmarkInsert(20, 54, "murmur3", 1, b) }
func BenchmarkInsertAes(b *testing.B)      { benchmarkInsert(20, 54, "aes", 1, b) }
func BenchmarkInsertCity(b *testing.B)     { benchmarkInsert(20, 54, "city", 1, b) }
func BenchmarkInsertThreads4(b *testing.B) { benchmarkInsert(20, 54, "j264", 4, b) }

func BenchmarkDrain(b *testing.B) {
	tb := New(16, 40, 0, "")
	for i := uint64(0); i < 60000; i++ {
		tb.Insert(KeyFrom64(i * 0x9e3779b97f4a7c15 & (1<<40 - 1)))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tb.Drain(4, func(Key, uint64) error { return nil })
	}
}
