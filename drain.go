// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package backyard

// Merge walks a permutation produced by Sort and calls emit once per distinct key,
// in increasing key order, with the summed count of all entries for that key.
// It stops at and returns the first error from emit.
func (t *Table) Merge(perm []uint32, emit func(key Key, count uint64) error) error {
	if len(perm) == 0 {
		return nil
	}
	k, c := t.At(perm[0])
	for _, i := range perm[1:] {
		ki, ci := t.At(i)
		if ki == k {
			c += ci
			continue
		}
		if err := emit(k, c); err != nil {
			return err
		}
		k, c = ki, ci
	}
	return emit(k, c)
}

// Drain sorts the table on numThreads goroutines and emits every distinct key with its
// total count in increasing key order. Duplicate entries left by concurrent inserts and
// keys split between the main table and the spill table are merged.
// No Insert may run during Drain.
func (t *Table) Drain(numThreads int, emit func(key Key, count uint64) error) error {
	perm, err := t.Sort(nil, numThreads)
	if err != nil {
		return err
	}
	return t.Merge(perm, emit)
}
