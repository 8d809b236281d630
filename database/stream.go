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
	"errors"
	"fmt"

	"github.com/lihao628/massa/backend"
	"github.com/lihao628/massa/common"
	"github.com/lihao628/massa/stream"
)

// GetStateBatchToStream produces the next stream batch of the state space.
func (s *Store[C]) GetStateBatchToStream(step stream.Step, lastChangeID *C) (stream.Batch[C], error) {
	return s.GetBatchToStream(backend.StateSpace, step, lastChangeID)
}

// GetVersioningBatchToStream produces the next stream batch of the
// versioning space.
func (s *Store[C]) GetVersioningBatchToStream(step stream.Step, lastChangeID *C) (stream.Batch[C], error) {
	return s.GetBatchToStream(backend.VersioningSpace, step, lastChangeID)
}

// GetBatchToStream produces the next batch for a receiver streaming the given
// space. The step is the receiver's cursor and lastChangeID the change ID of
// the last batch it applied.
//
// The batch carries the updates recorded since lastChangeID for keys the
// receiver already has, and, unless the step is finished, up to
// MaxNewElements pairs following the cursor. Both, as well as the batch's
// change ID, reflect the same state of the store. If the change history does
// not cover lastChangeID, an ErrTime is returned and the receiver has to
// restart from scratch.
func (s *Store[C]) GetBatchToStream(space backend.Space, step stream.Step, lastChangeID *C) (stream.Batch[C], error) {
	var history *changeLog[C]
	switch space {
	case backend.StateSpace:
		history = s.stateLog
	case backend.VersioningSpace:
		history = s.versioningLog
	default:
		return stream.Batch[C]{}, fmt.Errorf("%w: %v can not be streamed", backend.ErrUnknownSpace, space)
	}

	s.historyMu.RLock()
	snapshot, err := s.engine.GetSnapshot()
	if err != nil {
		s.historyMu.RUnlock()
		return stream.Batch[C]{}, fmt.Errorf("%w: failed to create snapshot: %v", ErrBackend, err)
	}
	defer snapshot.Release()
	current, err := s.getChangeID(snapshot)
	if err != nil {
		s.historyMu.RUnlock()
		return stream.Batch[C]{}, err
	}
	updates, err := collectUpdates(history, step, lastChangeID, current)
	s.historyMu.RUnlock()
	if err != nil {
		if errors.Is(err, ErrTime) {
			s.metrics.timeErrors.Inc()
		}
		return stream.Batch[C]{}, err
	}

	elements := common.NewElements()
	if !step.IsFinished() {
		if err := s.scanNewElements(snapshot, space, step, elements); err != nil {
			return stream.Batch[C]{}, err
		}
	}

	s.metrics.streamedBatches.WithLabelValues(space.String()).Inc()
	return stream.Batch[C]{
		NewElements:               elements,
		UpdatesOnPreviousElements: updates,
		ChangeID:                  current,
	}, nil
}

func collectUpdates[C common.ChangeID[C]](history *changeLog[C], step stream.Step, lastChangeID *C, current C) (*common.Changes, error) {
	if step.IsStarted() {
		return common.NewChanges(), nil
	}
	if lastChangeID == nil {
		return nil, fmt.Errorf("%w: missing last change ID for %v stream", ErrTime, step)
	}
	switch cmp := (*lastChangeID).Compare(current); {
	case cmp > 0:
		return nil, fmt.Errorf("%w: %v is ahead of current change ID %v", ErrTime, *lastChangeID, current)
	case cmp == 0:
		return common.NewChanges(), nil
	}
	if step.Kind() == stream.Ongoing {
		cursor, _ := step.Key()
		return history.changesSince(*lastChangeID, &cursor)
	}
	return history.changesSince(*lastChangeID, nil)
}

func (s *Store[C]) scanNewElements(reader backend.Reader, space backend.Space, step stream.Step, elements *common.Elements) error {
	iter, err := reader.NewIterator(space, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to iterate %v: %v", ErrBackend, space, err)
	}
	defer iter.Release()

	var ok bool
	if cursor, found := step.Key(); found {
		ok = iter.Seek(backend.KeySuccessor(cursor))
	} else {
		ok = iter.First()
	}
	for ; ok && elements.Len() < s.config.MaxNewElements; ok = iter.Next() {
		elements.Put(bytes.Clone(iter.Key()), bytes.Clone(iter.Value()))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("%w: failed to iterate %v: %v", ErrBackend, space, err)
	}
	return nil
}
