// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

// kcount counts the canonical k-mers of a set of reads with a backyard table and writes
// the sorted (k-mer, count) pairs. Reads come from line files, one read per line, or are
// generated at random. With --trial it instead fills the table with sequential keys and
// checks every count and the drained output.
package main

import (
	"bufio"
	"io"
	"math/rand"
	"os"
	"runtime"
	"runtime/pprof"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"leb.io/backyard"
	"leb.io/backyard/internal/dstest"
	"leb.io/backyard/internal/siginfo"
	"leb.io/backyard/kmer"
	"leb.io/hrff"
	"lukechampine.com/uint128"
)

var (
	kmerSize   = flag.IntP("kmer-size", "k", 27, "k-mer length in bases")
	bufferSize = flag.StringP("buffer-size", "B", "2GB", "memory budget for the table")
	logSlots   = flag.UintP("log-hash-slots", "S", 0, "log2 of the number of slot columns, overrides the budget")
	numThreads = flag.IntP("num-threads", "T", 4, "worker goroutines")
	hashName   = flag.String("hash", "j264", "thorough hash {j264, j3, murmur3, aes, city}")
	lineIn     = flag.StringArray("line-in", nil, "read file, one read per line, may repeat")
	randReads  = flag.Int("random-reads", 0, "generate this many random reads")
	readLength = flag.Int("read-length", 100, "length of generated reads")
	seed       = flag.Int64("seed", 0, "seed for generated reads and trials")
	trial      = flag.Int("trial", 0, "fill and verify this many sequential keys instead of counting reads")
	out        = flag.StringP("out", "o", "", "write sorted k-mer counts to this file")
	cpuProfile = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile = flag.String("memprofile", "", "write memory profile to this file")
	verbose    = flag.BoolP("verbose", "v", false, "verbose")
)

// reads are handed to workers in batches
const batchSize = 256

func hu(v uint64, u string) hrff.Int64 {
	return hrff.Int64{V: int64(v), U: u}
}

func rate(n uint64, d time.Duration) hrff.Float64 {
	return hrff.Float64{V: float64(n) / d.Seconds(), U: "/sec"}
}

func statFields(t *backyard.Table) logrus.Fields {
	s := t.Stats()
	return logrus.Fields{
		"size":         s.Size,
		"capacity":     s.Capacity,
		"load":         s.Load,
		"spills":       s.SpillItems,
		"count-spills": s.CountSpills,
		"panic-spills": s.PanicSpills,
		"bumps":        s.Bumps,
	}
}

// newTable sizes a table for itemBits bit keys from the flags.
func newTable(itemBits uint) (*backyard.Table, error) {
	budget, err := humanize.ParseBytes(*bufferSize)
	if err != nil {
		return nil, errors.Wrapf(err, "buffer size %q", *bufferSize)
	}
	slotBits, numSlots := *logSlots, uint64(0)
	if slotBits == 0 {
		slotBits = backyard.MaxSlotBits(budget)
		numSlots = backyard.SlotsForBudget(budget)
		if numSlots == 0 {
			return nil, errors.Newf("buffer size %s holds no slots", *bufferSize)
		}
	}
	slotBits = min(slotBits, itemBits)
	t := backyard.New(slotBits, itemBits, numSlots, *hashName)
	logrus.WithFields(logrus.Fields{
		"slot-bits":  t.SlotBits,
		"item-bits":  t.ItemBits,
		"count-bits": t.CountBits,
		"slots":      t.NumSlots,
		"hash":       t.HashName,
	}).Infof("table %h", hu(backyard.EstimatedSize(0)*t.NumSlots, "B"))
	return t, nil
}

// readSource sends batches of reads to ch until the input is exhausted.
func readSource(ch chan<- [][]byte) error {
	defer close(ch)
	batch := make([][]byte, 0, batchSize)
	send := func() {
		if len(batch) > 0 {
			ch <- batch
			batch = make([][]byte, 0, batchSize)
		}
	}
	for _, name := range *lineIn {
		f, err := os.Open(name)
		if err != nil {
			return errors.Wrapf(err, "open %s", name)
		}
		s := bufio.NewScanner(f)
		s.Buffer(make([]byte, 64*1024), 1<<24)
		for s.Scan() {
			batch = append(batch, append([]byte(nil), s.Bytes()...))
			if len(batch) == batchSize {
				send()
			}
		}
		err = s.Err()
		f.Close()
		if err != nil {
			return errors.Wrapf(err, "read %s", name)
		}
	}
	r := rand.New(rand.NewSource(*seed))
	for i := 0; i < *randReads; i++ {
		read := make([]byte, *readLength)
		for j := range read {
			read[j] = "ACGT"[r.Intn(4)]
		}
		batch = append(batch, read)
		if len(batch) == batchSize {
			send()
		}
	}
	send()
	return nil
}

func count(t *backyard.Table) error {
	k := *kmerSize
	var reads, kmers atomic.Uint64
	stop := siginfo.SetHandler(func() {
		logrus.WithFields(statFields(t)).Infof("reads=%d kmers=%d", reads.Load(), kmers.Load())
	})
	defer stop()

	start := time.Now()
	ch := make(chan [][]byte, 2**numThreads)
	var g errgroup.Group
	g.Go(func() error {
		return readSource(ch)
	})
	for w := 0; w < *numThreads; w++ {
		g.Go(func() error {
			var n uint64
			for batch := range ch {
				for _, read := range batch {
					kmer.Each(read, k, func(x kmer.Kmer) bool {
						t.Insert(kmer.Canonical(x, k))
						n++
						return false
					})
				}
				reads.Add(uint64(len(batch)))
				kmers.Add(n)
				n = 0
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	d := time.Since(start)
	logrus.WithFields(statFields(t)).Infof("counted %h reads %h kmers in %v, %h",
		hu(reads.Load(), ""), hu(kmers.Load(), ""), d, rate(kmers.Load(), d))
	return nil
}

// closeFile closes a file that was written, keeping the first error.
func closeFile(f io.Closer, name string, err error) error {
	if cerr := f.Close(); err == nil && cerr != nil {
		return errors.Wrapf(cerr, "close %s", name)
	}
	return err
}

// drain writes the sorted pairs to --out, or just counts them.
func drain(t *backyard.Table) error {
	w := io.Discard
	var f *os.File
	if *out != "" {
		var err error
		f, err = os.Create(*out)
		if err != nil {
			return errors.Wrapf(err, "create %s", *out)
		}
		w = f
	}
	start := time.Now()
	enc := backyard.NewEncoder(w)
	var total uint64
	err := t.Drain(*numThreads, func(key backyard.Key, c uint64) error {
		total += c
		if *verbose && enc.Count() < 10 {
			logrus.Debugf("%s %d", kmer.String(key, *kmerSize), c)
		}
		return enc.Encode(key, c)
	})
	if err == nil {
		err = enc.Flush()
	}
	if err != nil {
		err = errors.Wrap(err, "drain")
	}
	if f != nil {
		err = closeFile(f, *out, err)
	}
	if err != nil {
		return err
	}
	d := time.Since(start)
	logrus.WithFields(logrus.Fields{
		"distinct": enc.Count(),
		"total":    total,
		"out":      *out,
	}).Infof("drained in %v, %h", d, rate(enc.Count(), d))
	return nil
}

// runTrial fills the table with sequential keys, checks them, then drains and checks again.
func runTrial(t *backyard.Table) error {
	d := dstest.NewTester(t, *numThreads, *seed)
	keys := dstest.Sequential(d.RandomBase(), *trial)
	fs := d.Fill(keys, 1)
	logrus.WithFields(statFields(t)).Infof("fill: %d keys in %v, %h", fs.Keys, fs.Duration, rate(fs.Inserts, fs.Duration))

	start := time.Now()
	if err := d.Verify(); err != nil {
		return err
	}
	logrus.Infof("verify: %v", time.Since(start))

	var ks []uint128.Uint128
	var cs []uint64
	err := t.Drain(*numThreads, func(key backyard.Key, c uint64) error {
		ks = append(ks, key)
		cs = append(cs, c)
		return nil
	})
	if err != nil {
		return err
	}
	if err := d.VerifyPairs(ks, cs); err != nil {
		return err
	}
	logrus.Infof("trial: %d keys ok", len(ks))
	return nil
}

func run() error {
	k := *kmerSize
	if k < 1 || k > kmer.MaxK {
		return errors.Newf("kmer size %d not in [1, %d]", k, kmer.MaxK)
	}
	if *numThreads < 1 {
		*numThreads = 1
	}
	itemBits := kmer.Bits(k)
	if *trial > 0 {
		itemBits = 64
	}
	t, err := newTable(itemBits)
	if err != nil {
		return err
	}
	if *trial > 0 {
		return runTrial(t)
	}
	if len(*lineIn) == 0 && *randReads == 0 {
		return errors.New("no input, use --line-in or --random-reads")
	}
	if err := count(t); err != nil {
		return err
	}
	return drain(t)
}

func main() {
	flag.Parse()
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			logrus.Fatal(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			logrus.Fatal(err)
		}
		defer f.Close()
		defer pprof.StopCPUProfile()
	}

	err := run()

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			logrus.Fatal(err)
		}
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			logrus.Fatal(err)
		}
		f.Close()
	}
	if err != nil {
		pprof.StopCPUProfile()
		logrus.Fatalf("kcount: %+v", err)
	}
}
