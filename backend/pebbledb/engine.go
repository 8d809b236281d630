// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package pebbledb

import (
	"errors"
	"fmt"
	"io"
	"unsafe"

	"github.com/cockroachdb/pebble"
	"github.com/lihao628/massa/backend"
	"github.com/lihao628/massa/common"
)

// Options configures a Pebble based engine.
type Options struct {
	// Sync requests a WAL sync on every committed batch.
	Sync bool
	// PebbleOptions allows advanced tuning of Pebble. If nil, defaults are used.
	PebbleOptions *pebble.Options
}

// Engine is a backend.Engine storing all spaces in a single Pebble
// instance, using the space as a key prefix.
type Engine struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
}

// Open opens or creates a Pebble based engine in the given directory.
func Open(directory string, options Options) (*Engine, error) {
	po := options.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	db, err := pebble.Open(directory, po)
	if err != nil {
		return nil, fmt.Errorf("failed to open Pebble in %s: %w", directory, err)
	}
	writeOpts := pebble.NoSync
	if options.Sync {
		writeOpts = pebble.Sync
	}
	return &Engine{db: db, writeOpts: writeOpts}, nil
}

func (e *Engine) Get(space backend.Space, key []byte) ([]byte, bool, error) {
	return get(e.db, space, key)
}

func (e *Engine) NewIterator(space backend.Space, prefix []byte) (backend.Iterator, error) {
	return newIterator(e.db, space, prefix)
}

func (e *Engine) Write(batch *backend.Batch) error {
	b := e.db.NewBatch()
	defer b.Close()
	replay := batchReplay{batch: b}
	batch.Replay(&replay)
	if replay.err != nil {
		return replay.err
	}
	return b.Commit(e.writeOpts)
}

func (e *Engine) GetSnapshot() (backend.Snapshot, error) {
	return &Snapshot{snapshot: e.db.NewSnapshot()}, nil
}

// Checkpoint uses Pebble's native checkpoints, hard-linking immutable
// sstables into the target directory.
func (e *Engine) Checkpoint(directory string) error {
	return e.db.Checkpoint(directory, pebble.WithFlushedWAL())
}

func (e *Engine) Flush() error {
	return e.db.Flush()
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) GetMemoryFootprint() *common.MemoryFootprint {
	mf := common.NewMemoryFootprint(unsafe.Sizeof(*e))
	metrics := e.db.Metrics()
	mf.AddChild("blockCache", common.NewMemoryFootprint(uintptr(metrics.BlockCache.Size)))
	mf.AddChild("memTable", common.NewMemoryFootprint(uintptr(metrics.MemTable.Size)))
	return mf
}

// Snapshot is a frozen view on a Pebble engine.
type Snapshot struct {
	snapshot *pebble.Snapshot
}

func (s *Snapshot) Get(space backend.Space, key []byte) ([]byte, bool, error) {
	return get(s.snapshot, space, key)
}

func (s *Snapshot) NewIterator(space backend.Space, prefix []byte) (backend.Iterator, error) {
	return newIterator(s.snapshot, space, prefix)
}

func (s *Snapshot) Release() {
	s.snapshot.Close()
}

// reader is the part of the Pebble API shared by databases and snapshots.
type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

func get(db reader, space backend.Space, key []byte) ([]byte, bool, error) {
	value, closer, err := db.Get(space.ToDBKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return append([]byte{}, value...), true, nil
}

func newIterator(db reader, space backend.Space, prefix []byte) (backend.Iterator, error) {
	start, limit := space.PrefixRange(prefix)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: start, UpperBound: limit})
	if err != nil {
		return nil, err
	}
	return backend.WrapIterator(space, &rawIterator{iter: iter}), nil
}

// rawIterator adapts a Pebble iterator to the goleveldb style expected by
// backend.WrapIterator.
type rawIterator struct {
	iter    *pebble.Iterator
	started bool
}

func (i *rawIterator) First() bool {
	i.started = true
	return i.iter.First()
}

func (i *rawIterator) Last() bool {
	i.started = true
	return i.iter.Last()
}

func (i *rawIterator) Seek(key []byte) bool {
	i.started = true
	return i.iter.SeekGE(key)
}

// Next positions a fresh iterator on its first element, as goleveldb does.
func (i *rawIterator) Next() bool {
	if !i.started {
		return i.First()
	}
	return i.iter.Next()
}

func (i *rawIterator) Prev() bool {
	if !i.started {
		return i.Last()
	}
	return i.iter.Prev()
}

func (i *rawIterator) Key() []byte   { return i.iter.Key() }
func (i *rawIterator) Value() []byte { return i.iter.Value() }
func (i *rawIterator) Error() error  { return i.iter.Error() }
func (i *rawIterator) Release()      { i.iter.Close() }

type batchReplay struct {
	batch *pebble.Batch
	err   error
}

func (r *batchReplay) Put(key, value []byte) {
	if r.err == nil {
		r.err = r.batch.Set(key, value, nil)
	}
}

func (r *batchReplay) Delete(key []byte) {
	if r.err == nil {
		r.err = r.batch.Delete(key, nil)
	}
}
