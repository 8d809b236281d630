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
	"unsafe"

	"golang.org/x/exp/slices"
)

// SortedMap is a map keeping its entries in a slice ordered by the given
// comparator. Lookups are binary searches, insertions and removals shift the
// tail of the slice. It is intended for small to medium sized maps that need
// ordered traversal, such as per-version change sets.
type SortedMap[K any, V any] struct {
	list       []MapEntry[K, V]
	comparator Comparator[K]
}

func NewSortedMap[K any, V any](capacity int, comparator Comparator[K]) *SortedMap[K, V] {
	return &SortedMap[K, V]{
		list:       make([]MapEntry[K, V], 0, capacity),
		comparator: comparator,
	}
}

// ForEach visits all entries in ascending key order.
func (m *SortedMap[K, V]) ForEach(callback func(K, V)) {
	for _, entry := range m.list {
		callback(entry.Key, entry.Val)
	}
}

// ForEachAfter visits, in ascending order, all entries with a key strictly
// greater than the given key.
func (m *SortedMap[K, V]) ForEachAfter(key K, callback func(K, V)) {
	index, found := m.findItem(key)
	if found {
		index++
	}
	for _, entry := range m.list[index:] {
		callback(entry.Key, entry.Val)
	}
}

// ForEachUpTo visits, in ascending order, all entries with a key less than
// or equal to the given key.
func (m *SortedMap[K, V]) ForEachUpTo(key K, callback func(K, V)) {
	index, found := m.findItem(key)
	if found {
		index++
	}
	for _, entry := range m.list[:index] {
		callback(entry.Key, entry.Val)
	}
}

func (m *SortedMap[K, V]) Get(key K) (val V, exists bool) {
	if index, exists := m.findItem(key); exists {
		return m.list[index].Val, true
	}
	return
}

func (m *SortedMap[K, V]) Put(key K, val V) {
	index, exists := m.findItem(key)
	if exists {
		m.list[index].Val = val
		return
	}
	m.list = slices.Insert(m.list, index, MapEntry[K, V]{Key: key, Val: val})
}

func (m *SortedMap[K, V]) Remove(key K) (exists bool) {
	index, exists := m.findItem(key)
	if !exists {
		return false
	}
	m.list = slices.Delete(m.list, index, index+1)
	return true
}

// First returns the entry with the smallest key.
func (m *SortedMap[K, V]) First() (entry MapEntry[K, V], exists bool) {
	if len(m.list) == 0 {
		return entry, false
	}
	return m.list[0], true
}

// Last returns the entry with the greatest key.
func (m *SortedMap[K, V]) Last() (entry MapEntry[K, V], exists bool) {
	if len(m.list) == 0 {
		return entry, false
	}
	return m.list[len(m.list)-1], true
}

// PopFirst removes and returns the entry with the smallest key.
func (m *SortedMap[K, V]) PopFirst() (entry MapEntry[K, V], exists bool) {
	entry, exists = m.First()
	if exists {
		m.list[0] = MapEntry[K, V]{}
		m.list = m.list[1:]
	}
	return
}

// GetAll returns the entries in ascending key order. The result is a view on
// the internal state and must not be modified.
func (m *SortedMap[K, V]) GetAll() []MapEntry[K, V] {
	return m.list
}

func (m *SortedMap[K, V]) Size() int {
	return len(m.list)
}

func (m *SortedMap[K, V]) Clear() {
	clear(m.list)
	m.list = m.list[:0]
}

// findItem returns the position of the key, or the position it would have to
// be inserted at.
func (m *SortedMap[K, V]) findItem(key K) (index int, exists bool) {
	return slices.BinarySearchFunc(m.list, key, func(entry MapEntry[K, V], key K) int {
		return m.comparator.Compare(&entry.Key, &key)
	})
}

func (m *SortedMap[K, V]) GetMemoryFootprint() *MemoryFootprint {
	selfSize := unsafe.Sizeof(*m)
	entrySize := unsafe.Sizeof(MapEntry[K, V]{})
	return NewMemoryFootprint(selfSize + uintptr(cap(m.list))*entrySize)
}
