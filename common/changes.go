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
	"bytes"
	"unsafe"

	"github.com/google/btree"
)

// btreeDegree is the degree of the B-trees backing change and element sets.
const btreeDegree = 32

// Change is the new state of a single key: either a value or a deletion.
type Change struct {
	Value   []byte
	Deleted bool
}

// Put creates a change setting a key to the given value.
func Put(value []byte) Change {
	return Change{Value: value}
}

// Delete creates a change removing a key.
func Delete() Change {
	return Change{Deleted: true}
}

type changeEntry struct {
	key    string
	change Change
}

func changeEntryLess(a, b changeEntry) bool {
	return a.key < b.key
}

// Changes is a set of key updates ordered by key, using bytewise key order.
// A nil *Changes is a valid empty set for all read operations.
type Changes struct {
	entries *btree.BTreeG[changeEntry]
}

func NewChanges() *Changes {
	return &Changes{entries: btree.NewG[changeEntry](btreeDegree, changeEntryLess)}
}

// Put records that the key is set to the given value.
func (c *Changes) Put(key, value []byte) {
	c.Set(key, Put(value))
}

// Delete records that the key is removed.
func (c *Changes) Delete(key []byte) {
	c.Set(key, Delete())
}

// Set records the given change for the key, replacing an earlier one. The
// value is retained, not copied.
func (c *Changes) Set(key []byte, change Change) {
	c.entries.ReplaceOrInsert(changeEntry{key: string(key), change: change})
}

func (c *Changes) Get(key []byte) (Change, bool) {
	if c == nil {
		return Change{}, false
	}
	entry, found := c.entries.Get(changeEntry{key: string(key)})
	return entry.change, found
}

func (c *Changes) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// ForEach visits all changes in ascending key order.
func (c *Changes) ForEach(callback func(key []byte, change Change)) {
	if c == nil {
		return
	}
	c.entries.Ascend(func(entry changeEntry) bool {
		callback([]byte(entry.key), entry.change)
		return true
	})
}

// Merge copies all changes of other into c; changes in other win.
func (c *Changes) Merge(other *Changes) {
	if other == nil {
		return
	}
	other.entries.Ascend(func(entry changeEntry) bool {
		c.entries.ReplaceOrInsert(entry)
		return true
	})
}

// MergeUpTo copies the changes of other with a key less than or equal to
// maxKey into c; changes in other win.
func (c *Changes) MergeUpTo(other *Changes, maxKey []byte) {
	if other == nil {
		return
	}
	limit := string(maxKey)
	other.entries.Ascend(func(entry changeEntry) bool {
		if entry.key > limit {
			return false
		}
		c.entries.ReplaceOrInsert(entry)
		return true
	})
}

// Clone creates a deep copy of the changes, values included.
func (c *Changes) Clone() *Changes {
	res := NewChanges()
	c.ForEach(func(key []byte, change Change) {
		if !change.Deleted {
			change.Value = bytes.Clone(change.Value)
		}
		res.Set(key, change)
	})
	return res
}

func (c *Changes) GetMemoryFootprint() *MemoryFootprint {
	mf := NewMemoryFootprint(0)
	if c == nil {
		return mf
	}
	mf.AddChild("entries", NewMemoryFootprint(uintptr(c.entries.Len())*unsafe.Sizeof(changeEntry{})))
	var payload uintptr
	c.entries.Ascend(func(entry changeEntry) bool {
		payload += uintptr(len(entry.key) + len(entry.change.Value))
		return true
	})
	mf.AddChild("payload", NewMemoryFootprint(payload))
	return mf
}

type elementEntry struct {
	key   string
	value []byte
}

func elementEntryLess(a, b elementEntry) bool {
	return a.key < b.key
}

// Elements is a set of key/value pairs ordered by key, using bytewise key
// order. A nil *Elements is a valid empty set for all read operations.
type Elements struct {
	entries *btree.BTreeG[elementEntry]
}

func NewElements() *Elements {
	return &Elements{entries: btree.NewG[elementEntry](btreeDegree, elementEntryLess)}
}

func (e *Elements) Put(key, value []byte) {
	e.entries.ReplaceOrInsert(elementEntry{key: string(key), value: value})
}

func (e *Elements) Get(key []byte) ([]byte, bool) {
	if e == nil {
		return nil, false
	}
	entry, found := e.entries.Get(elementEntry{key: string(key)})
	return entry.value, found
}

func (e *Elements) Len() int {
	if e == nil {
		return 0
	}
	return e.entries.Len()
}

// ForEach visits all pairs in ascending key order.
func (e *Elements) ForEach(callback func(key, value []byte)) {
	if e == nil {
		return
	}
	e.entries.Ascend(func(entry elementEntry) bool {
		callback([]byte(entry.key), entry.value)
		return true
	})
}

// LastKey returns the greatest key of the set.
func (e *Elements) LastKey() ([]byte, bool) {
	if e == nil {
		return nil, false
	}
	last, found := e.entries.Max()
	if !found {
		return nil, false
	}
	return []byte(last.key), true
}
