// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package backyard

// Stats is a snapshot of the table counters.
type Stats struct {
	Size        uint64  // fresh entries created by Insert
	Capacity    uint64  // physical slots in the main table
	Load        float64 // Size / Capacity
	SpillItems  uint64  // distinct keys in the spill table
	CountSpills uint64  // keys moved to the spill table because their count field was full
	PanicSpills uint64  // keys moved to the spill table because cuckoo exchanges ran out
	Bumps       uint64  // occupants evicted by cuckoo exchanges
}

// Stats returns the current counters.
func (t *Table) Stats() Stats {
	s := Stats{
		Size:        t.size.Load(),
		Capacity:    uint64(len(t.items)),
		SpillItems:  t.spill.len(),
		CountSpills: t.spills.Load(),
		PanicSpills: t.panics.Load(),
		Bumps:       t.bumps.Load(),
	}
	s.Load = float64(s.Size) / float64(s.Capacity)
	return s
}

// GetCounter returns a counter by name.
func (t *Table) GetCounter(s string) uint64 {
	switch s {
	case "size":
		return t.size.Load()
	case "capacity":
		return uint64(len(t.items))
	case "spills":
		return t.spill.len()
	case "count-spills":
		return t.spills.Load()
	case "panic-spills":
		return t.panics.Load()
	case "bumps":
		return t.bumps.Load()
	default:
		panic("GetCounter: " + s)
	}
}
