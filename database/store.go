// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package database

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/lihao628/massa/backend"
	"github.com/lihao628/massa/common"
)

var (
	changeIDKey  = []byte("change_id")
	stateHashKey = []byte("state_hash")
)

// Store is a versioned key/value state store. Every write is attributed to
// a change ID, which never decreases. Its state space is covered by an
// integrity hash maintained incrementally on each write, and the changes of
// the most recent change IDs are retained to stream a consistent copy of
// the store to other nodes while it keeps being modified.
//
// A Store may be used concurrently. Writes are serialized.
type Store[C common.ChangeID[C]] struct {
	config     Config
	engine     backend.Engine
	serializer common.ChangeIDSerializer[C]
	metrics    *storeMetrics

	// writeMu makes writers mutually exclusive.
	writeMu sync.Mutex

	// historyMu guards the change logs. Writers hold it exclusively while
	// committing to the engine and updating the logs, so that readers
	// holding it see logs consistent with the engine content.
	historyMu     sync.RWMutex
	stateLog      *changeLog[C]
	versioningLog *changeLog[C]
}

// SlotStore is a store versioned by slots.
type SlotStore = Store[common.Slot]

// OpenSlotStore opens a store versioned by slots. A new store starts at
// slot (0,0).
func OpenSlotStore(config Config) (*SlotStore, error) {
	return Open[common.Slot](config, common.SlotSerializer{ThreadCount: config.ThreadCount}, common.Slot{})
}

// Open opens the store described by the configuration. If the store holds no
// change ID yet, it is seeded with the given initial change ID.
func Open[C common.ChangeID[C]](config Config, serializer common.ChangeIDSerializer[C], initial C) (*Store[C], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	engine, err := engineFactoryRegistry[config.Backend](config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open engine: %v", ErrBackend, err)
	}
	store, err := OpenWithEngine[C](engine, config, serializer, initial)
	if err != nil {
		return nil, errors.Join(err, engine.Close())
	}
	return store, nil
}

// OpenWithEngine creates a store on top of an already opened engine. The
// store takes ownership of the engine only if no error is returned.
func OpenWithEngine[C common.ChangeID[C]](engine backend.Engine, config Config, serializer common.ChangeIDSerializer[C], initial C) (*Store[C], error) {
	if err := config.validateLimits(); err != nil {
		return nil, err
	}
	store := &Store[C]{
		config:        config,
		engine:        engine,
		serializer:    serializer,
		metrics:       newStoreMetrics(config.Registerer),
		stateLog:      newChangeLog[C](config.MaxHistoryLength),
		versioningLog: newChangeLog[C](config.MaxHistoryLength),
	}
	_, found, err := store.readChangeID(engine)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Printf("Seeding state store with initial change ID %v", initial)
		if err := store.SetInitialChangeID(initial); err != nil {
			return nil, err
		}
	}
	if _, err := store.readHash(engine); err != nil {
		return nil, err
	}
	return store, nil
}

// WriteBatch applies the changes produced by executing the block with the
// given change ID.
func (s *Store[C]) WriteBatch(state, versioning *common.Changes, changeID *C) error {
	return s.WriteChanges(state, versioning, changeID, false)
}

// WriteChanges atomically applies the given changes to the state and
// versioning spaces. If changeID is not nil it becomes the store's change ID
// and must not be lower than the current one. The integrity hash is updated
// for every changed state key. Once committed, the changes are recorded in
// the change logs under the resulting change ID, after clearing both logs if
// resetHistory is set.
func (s *Store[C]) WriteChanges(state, versioning *common.Changes, changeID *C, resetHistory bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeChanges(state, versioning, changeID, resetHistory)
}

func (s *Store[C]) writeChanges(state, versioning *common.Changes, changeID *C, resetHistory bool) error {
	current, err := s.getChangeID(s.engine)
	if err != nil {
		return err
	}
	if changeID != nil && (*changeID).Compare(current) < 0 {
		return fmt.Errorf("%w: %v is lower than current change ID %v", ErrInvalidChangeID, *changeID, current)
	}
	hash, err := s.readHash(s.engine)
	if err != nil {
		return err
	}

	batch := backend.NewBatch()
	state.ForEach(func(key []byte, change common.Change) {
		if err != nil {
			return
		}
		prior, found, getErr := s.engine.Get(backend.StateSpace, key)
		if getErr != nil {
			err = fmt.Errorf("%w: failed to read %x: %v", ErrBackend, key, getErr)
			return
		}
		if found {
			digest := common.HashKeyValue(key, prior)
			hash.Xor(&digest)
		}
		if change.Deleted {
			batch.Delete(backend.StateSpace, key)
			return
		}
		digest := common.HashKeyValue(key, change.Value)
		hash.Xor(&digest)
		batch.Put(backend.StateSpace, key, change.Value)
	})
	if err != nil {
		return err
	}
	versioning.ForEach(func(key []byte, change common.Change) {
		if change.Deleted {
			batch.Delete(backend.VersioningSpace, key)
		} else {
			batch.Put(backend.VersioningSpace, key, change.Value)
		}
	})

	resulting := current
	if changeID != nil {
		resulting = *changeID
		batch.Put(backend.MetadataSpace, changeIDKey, s.serializer.ToBytes(resulting))
	}
	batch.Put(backend.MetadataSpace, stateHashKey, hash[:])

	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	if err := s.engine.Write(batch); err != nil {
		return fmt.Errorf("%w: failed to commit changes: %v", ErrBackend, err)
	}
	if resetHistory {
		s.stateLog.clear()
		s.versioningLog.clear()
	}
	s.stateLog.add(resulting, state)
	s.versioningLog.add(resulting, versioning)

	s.metrics.writes.Inc()
	s.metrics.recordWrite(backend.StateSpace, state.Len())
	s.metrics.recordWrite(backend.VersioningSpace, versioning.Len())
	s.metrics.recordHistoryLength(backend.StateSpace, s.stateLog.len())
	s.metrics.recordHistoryLength(backend.VersioningSpace, s.versioningLog.len())
	return nil
}

// GetChangeID returns the change ID of the last write.
func (s *Store[C]) GetChangeID() (C, error) {
	return s.getChangeID(s.engine)
}

func (s *Store[C]) getChangeID(reader backend.Reader) (C, error) {
	id, found, err := s.readChangeID(reader)
	if err == nil && !found {
		err = fmt.Errorf("%w: missing change ID", ErrDeserialization)
	}
	return id, err
}

func (s *Store[C]) readChangeID(reader backend.Reader) (id C, found bool, err error) {
	data, found, err := reader.Get(backend.MetadataSpace, changeIDKey)
	if err != nil {
		return id, false, fmt.Errorf("%w: failed to read change ID: %v", ErrBackend, err)
	}
	if !found {
		return id, false, nil
	}
	id, err = s.serializer.FromBytes(data)
	if err != nil {
		return id, false, fmt.Errorf("%w: invalid change ID: %v", ErrDeserialization, err)
	}
	return id, true, nil
}

// SetInitialChangeID overwrites the change ID of the store, bypassing the
// monotonicity check and the change logs.
func (s *Store[C]) SetInitialChangeID(id C) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.setChangeID(id)
}

func (s *Store[C]) setChangeID(id C) error {
	batch := backend.NewBatch()
	batch.Put(backend.MetadataSpace, changeIDKey, s.serializer.ToBytes(id))
	if err := s.engine.Write(batch); err != nil {
		return fmt.Errorf("%w: failed to write change ID: %v", ErrBackend, err)
	}
	return nil
}

// GetXofHash returns the integrity hash of the state space.
func (s *Store[C]) GetXofHash() (common.HashXof, error) {
	return s.readHash(s.engine)
}

func (s *Store[C]) readHash(reader backend.Reader) (common.HashXof, error) {
	data, found, err := reader.Get(backend.MetadataSpace, stateHashKey)
	if err != nil {
		return common.HashXof{}, fmt.Errorf("%w: failed to read state hash: %v", ErrBackend, err)
	}
	if !found {
		return common.InitialHashXof, nil
	}
	hash, err := common.HashXofFromBytes(data)
	if err != nil {
		return common.HashXof{}, fmt.Errorf("%w: invalid state hash: %v", ErrDeserialization, err)
	}
	return hash, nil
}

// ComputeStateHash computes the integrity hash of the state space from
// scratch without persisting it.
func (s *Store[C]) ComputeStateHash() (common.HashXof, error) {
	snapshot, err := s.engine.GetSnapshot()
	if err != nil {
		return common.HashXof{}, fmt.Errorf("%w: failed to create snapshot: %v", ErrBackend, err)
	}
	defer snapshot.Release()
	return computeStateHash(snapshot)
}

func computeStateHash(reader backend.Reader) (common.HashXof, error) {
	iter, err := reader.NewIterator(backend.StateSpace, nil)
	if err != nil {
		return common.HashXof{}, fmt.Errorf("%w: failed to iterate state: %v", ErrBackend, err)
	}
	defer iter.Release()
	hash := common.InitialHashXof
	for iter.Next() {
		digest := common.HashKeyValue(iter.Key(), iter.Value())
		hash.Xor(&digest)
	}
	if err := iter.Error(); err != nil {
		return common.HashXof{}, fmt.Errorf("%w: failed to iterate state: %v", ErrBackend, err)
	}
	return hash, nil
}

// RecomputeHash recomputes the integrity hash from the full content of the
// state space, persists it, and returns it.
func (s *Store[C]) RecomputeHash() (common.HashXof, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	hash, err := computeStateHash(s.engine)
	if err != nil {
		return common.HashXof{}, err
	}
	batch := backend.NewBatch()
	batch.Put(backend.MetadataSpace, stateHashKey, hash[:])
	if err := s.engine.Write(batch); err != nil {
		return common.HashXof{}, fmt.Errorf("%w: failed to write state hash: %v", ErrBackend, err)
	}
	log.Printf("Recomputed state hash: %v", hash.ShortString())
	return hash, nil
}

func (s *Store[C]) Flush() error {
	if err := s.engine.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *Store[C]) Close() error {
	return errors.Join(s.Flush(), s.engine.Close())
}

func (s *Store[C]) GetMemoryFootprint() *common.MemoryFootprint {
	mf := common.NewMemoryFootprint(0)
	mf.AddChild("engine", s.engine.GetMemoryFootprint())
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()
	mf.AddChild("stateHistory", s.stateLog.GetMemoryFootprint())
	mf.AddChild("versioningHistory", s.versioningLog.GetMemoryFootprint())
	return mf
}
