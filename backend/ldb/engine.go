// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package ldb

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/lihao628/massa/backend"
	"github.com/lihao628/massa/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// checkpointBatchSize is the amount of bytes copied per write while creating
// a checkpoint.
const checkpointBatchSize = 4 << 20

// Engine is a backend.Engine storing all spaces in a single LevelDB
// instance, using the space as a key prefix.
type Engine struct {
	db      *leveldb.DB
	options *opt.Options
}

// Open opens or creates a LevelDB based engine in the given directory.
func Open(directory string, options *opt.Options) (*Engine, error) {
	db, err := leveldb.OpenFile(directory, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB in %s: %w", directory, err)
	}
	return &Engine{db: db, options: options}, nil
}

// OpenInMemory creates an engine backed by volatile memory, for tests.
func OpenInMemory() (*Engine, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Engine{db: db}, nil
}

func (e *Engine) Get(space backend.Space, key []byte) ([]byte, bool, error) {
	return get(e.db, space, key)
}

func (e *Engine) NewIterator(space backend.Space, prefix []byte) (backend.Iterator, error) {
	return newIterator(e.db, space, prefix), nil
}

func (e *Engine) Write(batch *backend.Batch) error {
	var ldbBatch leveldb.Batch
	batch.Replay(&ldbBatch)
	return e.db.Write(&ldbBatch, nil)
}

func (e *Engine) GetSnapshot() (backend.Snapshot, error) {
	snapshot, err := e.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return &Snapshot{snapshot: snapshot}, nil
}

// Checkpoint copies the content of a snapshot of this engine into a new
// LevelDB instance in the given directory. LevelDB offers no hard-link
// checkpoints, so all data is rewritten.
func (e *Engine) Checkpoint(directory string) (err error) {
	if _, err := os.Stat(directory); err == nil {
		return fmt.Errorf("checkpoint directory %s already exists", directory)
	}
	snapshot, err := e.db.GetSnapshot()
	if err != nil {
		return err
	}
	defer snapshot.Release()

	target, err := leveldb.OpenFile(directory, &opt.Options{ErrorIfExist: true})
	if err != nil {
		return fmt.Errorf("failed to create checkpoint in %s: %w", directory, err)
	}
	defer func() {
		err = errors.Join(err, target.Close())
		if err != nil {
			os.RemoveAll(directory)
		}
	}()

	iter := snapshot.NewIterator(nil, nil)
	defer iter.Release()
	var batch leveldb.Batch
	for iter.Next() {
		batch.Put(iter.Key(), iter.Value())
		if len(batch.Dump()) >= checkpointBatchSize {
			if err := target.Write(&batch, nil); err != nil {
				return err
			}
			batch.Reset()
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return target.Write(&batch, &opt.WriteOptions{Sync: true})
}

// Flush is a no-op, LevelDB logs every write before Write returns.
func (e *Engine) Flush() error {
	return nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// GetMemoryFootprint provides the size of the engine's caches in memory.
func (e *Engine) GetMemoryFootprint() *common.MemoryFootprint {
	mf := common.NewMemoryFootprint(unsafe.Sizeof(*e))
	mf.AddChild("writeBuffer", common.NewMemoryFootprint(uintptr(e.options.GetWriteBuffer())))
	var stats leveldb.DBStats
	if err := e.db.Stats(&stats); err == nil {
		mf.AddChild("blockCache", common.NewMemoryFootprint(uintptr(stats.BlockCacheSize)))
	}
	return mf
}

// Snapshot is a frozen view on a LevelDB engine.
type Snapshot struct {
	snapshot *leveldb.Snapshot
}

func (s *Snapshot) Get(space backend.Space, key []byte) ([]byte, bool, error) {
	return get(s.snapshot, space, key)
}

func (s *Snapshot) NewIterator(space backend.Space, prefix []byte) (backend.Iterator, error) {
	return newIterator(s.snapshot, space, prefix), nil
}

func (s *Snapshot) Release() {
	s.snapshot.Release()
}

// reader is the part of the LevelDB API shared by databases and snapshots.
type reader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

func get(db reader, space backend.Space, key []byte) ([]byte, bool, error) {
	value, err := db.Get(space.ToDBKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func newIterator(db reader, space backend.Space, prefix []byte) backend.Iterator {
	start, limit := space.PrefixRange(prefix)
	return backend.WrapIterator(space, db.NewIterator(&util.Range{Start: start, Limit: limit}, nil))
}
