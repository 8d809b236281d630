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
	"bytes"
	"fmt"

	"github.com/lihao628/massa/backend"
)

// Direction defines the order of an iteration.
type Direction bool

const (
	Forward Direction = false
	Reverse Direction = true
)

// Query addresses a single key of a space.
type Query struct {
	Space backend.Space
	Key   []byte
}

// Result is the outcome of a single query.
type Result struct {
	Value []byte
	Found bool
	Err   error
}

// Get returns the value stored for the key in the given space.
func (s *Store[C]) Get(space backend.Space, key []byte) ([]byte, bool, error) {
	if err := space.Check(); err != nil {
		return nil, false, err
	}
	value, found, err := s.engine.Get(space, key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to read %x: %v", ErrBackend, key, err)
	}
	return value, found, nil
}

// MultiGet resolves a list of queries against a single snapshot of the
// store. Failures are reported per query.
func (s *Store[C]) MultiGet(queries []Query) []Result {
	res := make([]Result, len(queries))
	snapshot, err := s.engine.GetSnapshot()
	if err != nil {
		err = fmt.Errorf("%w: failed to create snapshot: %v", ErrBackend, err)
		for i := range res {
			res[i].Err = err
		}
		return res
	}
	defer snapshot.Release()
	for i, query := range queries {
		if err := query.Space.Check(); err != nil {
			res[i].Err = err
			continue
		}
		value, found, err := snapshot.Get(query.Space, query.Key)
		if err != nil {
			res[i].Err = fmt.Errorf("%w: failed to read %x: %v", ErrBackend, query.Key, err)
			continue
		}
		res[i] = Result{Value: value, Found: found}
	}
	return res
}

// Iterate visits the pairs of a space in key order, starting at the given
// key. A forward iteration starts at the first key greater than or equal to
// from, a reverse iteration at the last key less than or equal to from. A nil
// from starts at the first or last key respectively. The iteration stops
// when the visitor returns false. Keys and values passed to the visitor are
// only valid for the duration of the call.
func (s *Store[C]) Iterate(space backend.Space, from []byte, direction Direction, visit func(key, value []byte) bool) error {
	if err := space.Check(); err != nil {
		return err
	}
	snapshot, err := s.engine.GetSnapshot()
	if err != nil {
		return fmt.Errorf("%w: failed to create snapshot: %v", ErrBackend, err)
	}
	defer snapshot.Release()
	iter, err := snapshot.NewIterator(space, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to iterate %v: %v", ErrBackend, space, err)
	}
	defer iter.Release()

	var ok bool
	switch {
	case direction == Forward && from == nil:
		ok = iter.First()
	case direction == Forward:
		ok = iter.Seek(from)
	case from == nil:
		ok = iter.Last()
	default:
		ok = backend.SeekForPrev(iter, from)
	}
	for ok && visit(iter.Key(), iter.Value()) {
		if direction == Forward {
			ok = iter.Next()
		} else {
			ok = iter.Prev()
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("%w: failed to iterate %v: %v", ErrBackend, space, err)
	}
	return nil
}

// IteratePrefix visits, in ascending key order, all pairs of a space whose
// key starts with the given prefix.
func (s *Store[C]) IteratePrefix(space backend.Space, prefix []byte, visit func(key, value []byte) bool) error {
	if err := space.Check(); err != nil {
		return err
	}
	snapshot, err := s.engine.GetSnapshot()
	if err != nil {
		return fmt.Errorf("%w: failed to create snapshot: %v", ErrBackend, err)
	}
	defer snapshot.Release()
	return iterate(snapshot, space, prefix, visit)
}

func iterate(reader backend.Reader, space backend.Space, prefix []byte, visit func(key, value []byte) bool) error {
	iter, err := reader.NewIterator(space, prefix)
	if err != nil {
		return fmt.Errorf("%w: failed to iterate %v: %v", ErrBackend, space, err)
	}
	defer iter.Release()
	for iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !visit(iter.Key(), iter.Value()) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("%w: failed to iterate %v: %v", ErrBackend, space, err)
	}
	return nil
}
