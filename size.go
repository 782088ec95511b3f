// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

package backyard

import (
	"math"
	"math/bits"
	"unsafe"
)

// Bytes per slot: the slot word plus one and a half uint32 permutation entries,
// what a sorted drain needs on top of the table.
const slotBytes = uint64(unsafe.Sizeof(Key{})) + 3*uint64(unsafe.Sizeof(uint32(0)))/2

// EstimatedSize returns the approximate number of bytes needed for a table with
// 2^slotBits slots plus its drain permutations.
func EstimatedSize(slotBits uint) uint64 {
	return (uint64(1) << slotBits) * slotBytes
}

// MaxSlotBits returns the largest number of slot bits whose EstimatedSize does not
// exceed bufferBytes. Budgets below EstimatedSize(0) hold no slot and are invalid;
// they return 0 and SlotsForBudget returns 0 for them.
func MaxSlotBits(bufferBytes uint64) uint {
	slots := SlotsForBudget(bufferBytes)
	if slots == 0 {
		return 0
	}
	return uint(min(bits.Len64(slots)-1, maxSlotBits))
}

// SlotsForBudget returns how many physical slots fit in bufferBytes. It is the
// numSlots to pair with MaxSlotBits(bufferBytes) when calling New.
func SlotsForBudget(bufferBytes uint64) uint64 {
	return min(bufferBytes/slotBytes, math.MaxUint32)
}
