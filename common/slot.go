// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"encoding/binary"
	"fmt"
)

// Slot is the reference ChangeID of a state store: a position in the block
// graph given by a period and the thread within that period. Slots are
// ordered by period first and thread second.
type Slot struct {
	Period uint64
	Thread uint8
}

// SlotSize is the length of a serialized Slot in bytes.
const SlotSize = 9

func (s Slot) Compare(other Slot) int {
	switch {
	case s.Period < other.Period:
		return -1
	case s.Period > other.Period:
		return 1
	case s.Thread < other.Thread:
		return -1
	case s.Thread > other.Thread:
		return 1
	}
	return 0
}

// Next returns the slot following this one, given the number of threads.
func (s Slot) Next(threadCount uint8) Slot {
	if s.Thread+1 >= threadCount {
		return Slot{Period: s.Period + 1}
	}
	return Slot{Period: s.Period, Thread: s.Thread + 1}
}

// DirName returns a representation of the slot usable in file names.
func (s Slot) DirName() string {
	return fmt.Sprintf("%d_%d", s.Period, s.Thread)
}

func (s Slot) String() string {
	return fmt.Sprintf("(period: %d, thread: %d)", s.Period, s.Thread)
}

// SlotSerializer converts slots to and from a fixed-size big-endian
// representation, preserving their order under bytewise comparison.
// Deserialization rejects threads outside of [0, ThreadCount).
type SlotSerializer struct {
	ThreadCount uint8
}

func (s SlotSerializer) ToBytes(slot Slot) []byte {
	res := make([]byte, SlotSize)
	binary.BigEndian.PutUint64(res, slot.Period)
	res[8] = slot.Thread
	return res
}

func (s SlotSerializer) FromBytes(data []byte) (Slot, error) {
	if len(data) != SlotSize {
		return Slot{}, fmt.Errorf("invalid slot encoding length, wanted %d, got %d", SlotSize, len(data))
	}
	slot := Slot{
		Period: binary.BigEndian.Uint64(data),
		Thread: data[8],
	}
	if slot.Thread >= s.ThreadCount {
		return Slot{}, fmt.Errorf("slot thread %d out of range [0,%d)", slot.Thread, s.ThreadCount)
	}
	return slot, nil
}

func (s SlotSerializer) Size() int {
	return SlotSize
}
