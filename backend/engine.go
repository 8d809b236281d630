// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package backend

import (
	"bytes"
	"io"

	"github.com/lihao628/massa/common"
)

//go:generate mockgen -source engine.go -destination engine_mocks.go -package backend

// Reader provides read access to the spaces of an engine, either to its
// latest state or to a frozen snapshot.
type Reader interface {
	// Get returns the value stored for the key in the given space. A missing
	// key is reported by found == false and is not an error.
	Get(space Space, key []byte) (value []byte, found bool, err error)

	// NewIterator creates an iterator over all keys of the space starting
	// with the given prefix, a nil prefix covering the entire space. Keys
	// produced by the iterator do not include the space prefix. The iterator
	// must be released after use.
	NewIterator(space Space, prefix []byte) (Iterator, error)
}

// Snapshot is a consistent, read-only view on an engine at a point in time.
type Snapshot interface {
	Reader
	// Release frees the resources of the snapshot.
	Release()
}

// Engine is the physical ordered key-value store underlying a state store.
// It provides atomic multi-key writes across spaces, consistent snapshots
// and checkpoints. Implementations are safe for concurrent use.
type Engine interface {
	Reader

	// Write atomically applies all operations of the batch. Either all
	// operations become visible to readers, or none.
	Write(batch *Batch) error

	// GetSnapshot returns a frozen view on the current state.
	GetSnapshot() (Snapshot, error)

	// Checkpoint creates a consistent copy of the full engine content in the
	// given directory, which must not exist yet.
	Checkpoint(directory string) error

	// Flush persists buffered data.
	Flush() error

	io.Closer
	common.MemoryFootprintProvider
}

// Iterator walks over the keys of a space in ascending bytewise order.
// Positioning methods return whether the iterator points to an element.
type Iterator interface {
	First() bool
	Last() bool
	// Seek moves to the first key greater than or equal to the given key.
	Seek(key []byte) bool
	Next() bool
	Prev() bool
	Key() []byte
	Value() []byte
	Error() error
	Release()
}

// RawIterator is an iterator over engine keys, including space prefixes.
// The interface matches the iterators of goleveldb.
type RawIterator interface {
	First() bool
	Last() bool
	Seek(key []byte) bool
	Next() bool
	Prev() bool
	Key() []byte
	Value() []byte
	Error() error
	Release()
}

// WrapIterator converts an iterator over the engine key range of a space
// into an Iterator hiding the space prefix.
func WrapIterator(space Space, raw RawIterator) Iterator {
	return &spaceIterator{space: space, raw: raw}
}

type spaceIterator struct {
	space Space
	raw   RawIterator
}

func (i *spaceIterator) First() bool          { return i.raw.First() }
func (i *spaceIterator) Last() bool           { return i.raw.Last() }
func (i *spaceIterator) Seek(key []byte) bool { return i.raw.Seek(i.space.ToDBKey(key)) }
func (i *spaceIterator) Next() bool           { return i.raw.Next() }
func (i *spaceIterator) Prev() bool           { return i.raw.Prev() }
func (i *spaceIterator) Key() []byte          { return i.space.FromDBKey(i.raw.Key()) }
func (i *spaceIterator) Value() []byte        { return i.raw.Value() }
func (i *spaceIterator) Error() error         { return i.raw.Error() }
func (i *spaceIterator) Release()             { i.raw.Release() }

// SeekForPrev moves the iterator to the greatest key less than or equal to
// the given key.
func SeekForPrev(iter Iterator, key []byte) bool {
	if !iter.Seek(key) {
		return iter.Last()
	}
	if bytes.Equal(iter.Key(), key) {
		return true
	}
	return iter.Prev()
}
