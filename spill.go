// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package backyard

import (
	"slices"

	"leb.io/backyard/internal/spinlock"
)

// Entry is a key and its count.
type Entry struct {
	Key   Key
	Count uint64
}

// spillTable is the exact overflow store. Items land here when cuckoo exchanges
// run out or when a count outgrows its field. It has a single lock; spills are rare.
type spillTable struct {
	mu    spinlock.Lock
	m     map[Key]uint64
	index []Entry // snapshot of m built by Index, sorted by key
}

func (st *spillTable) init() {
	st.m = make(map[Key]uint64)
}

// add adds c to the count of k and reports whether k was new to the table.
func (st *spillTable) add(k Key, c uint64) bool {
	st.mu.Lock()
	old, ok := st.m[k]
	st.m[k] = old + c
	st.mu.Unlock()
	return !ok
}

func (st *spillTable) get(k Key) uint64 {
	st.mu.Lock()
	c := st.m[k]
	st.mu.Unlock()
	return c
}

func (st *spillTable) len() uint64 {
	st.mu.Lock()
	n := len(st.m)
	st.mu.Unlock()
	return uint64(n)
}

func (st *spillTable) clear() {
	st.mu.Lock()
	clear(st.m)
	st.index = st.index[:0]
	st.mu.Unlock()
}

// snapshot rebuilds the positional index. Sorting makes drains reproducible.
func (st *spillTable) snapshot() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.index = st.index[:0]
	for k, c := range st.m {
		st.index = append(st.index, Entry{Key: k, Count: c})
	}
	slices.SortFunc(st.index, func(a, b Entry) int {
		return a.Key.Cmp(b.Key)
	})
}
