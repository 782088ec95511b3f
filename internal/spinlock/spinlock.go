// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

// Package spinlock provides a test-and-set lock for very short critical sections.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

// number of busy polls before yielding the processor
const spinLimit = 64

// Lock is a spinlock. The zero value is unlocked. A Lock must not be copied after first use.
type Lock struct {
	v atomic.Uint32
}

// Lock acquires l, spinning until it is free.
func (l *Lock) Lock() {
	spins := 0
	for !l.v.CompareAndSwap(0, 1) {
		// test before test-and-set keeps the cache line shared while we wait
		for l.v.Load() != 0 {
			delay(&spins)
		}
	}
}

// TryLock acquires l if it is free and reports whether it did.
func (l *Lock) TryLock() bool {
	return l.v.CompareAndSwap(0, 1)
}

// Unlock releases l. Unlocking an unlocked Lock panics.
func (l *Lock) Unlock() {
	if l.v.Swap(0) == 0 {
		panic("spinlock: unlock of unlocked lock")
	}
}

func delay(spins *int) {
	if *spins < spinLimit {
		*spins++
		return
	}
	*spins = 0
	runtime.Gosched()
}
