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
	"fmt"

	"github.com/lihao628/massa/common"
)

// changeLog retains the changes of the most recent change IDs of one space.
// Entries are evicted oldest first once more than maxLength are retained.
// It is not synchronized; the store guards it by its history lock.
type changeLog[C common.ChangeID[C]] struct {
	entries   *common.SortedMap[C, *common.Changes]
	maxLength int
}

func newChangeLog[C common.ChangeID[C]](maxLength int) *changeLog[C] {
	return &changeLog[C]{
		entries:   common.NewSortedMap[C, *common.Changes](maxLength+1, common.ChangeIDComparator[C]{}),
		maxLength: maxLength,
	}
}

// add records a copy of the changes under the given ID, merging them into an
// existing entry of the same ID.
func (l *changeLog[C]) add(id C, changes *common.Changes) {
	changes = changes.Clone()
	if entry, found := l.entries.Get(id); found {
		entry.Merge(changes)
	} else {
		l.entries.Put(id, changes)
	}
	for l.entries.Size() > l.maxLength {
		l.entries.PopFirst()
	}
}

func (l *changeLog[C]) clear() {
	l.entries.Clear()
}

func (l *changeLog[C]) len() int {
	return l.entries.Size()
}

// changesSince aggregates all changes recorded after the given ID, later
// changes overwriting earlier ones. If maxKey is not nil, only changes of
// keys less than or equal to *maxKey are included. The result is an ErrTime
// if changes after the given ID may have been evicted.
func (l *changeLog[C]) changesSince(last C, maxKey *[]byte) (*common.Changes, error) {
	first, found := l.entries.First()
	if !found {
		return nil, fmt.Errorf("%w: change history is empty", ErrTime)
	}
	if first.Key.Compare(last) > 0 {
		return nil, fmt.Errorf("%w: history starts at %v, after %v", ErrTime, first.Key, last)
	}
	res := common.NewChanges()
	l.entries.ForEachAfter(last, func(_ C, changes *common.Changes) {
		if maxKey == nil {
			res.Merge(changes)
		} else {
			res.MergeUpTo(changes, *maxKey)
		}
	})
	return res, nil
}

func (l *changeLog[C]) GetMemoryFootprint() *common.MemoryFootprint {
	mf := common.NewMemoryFootprint(0)
	mf.AddChild("index", l.entries.GetMemoryFootprint())
	l.entries.ForEach(func(id C, changes *common.Changes) {
		mf.AddChild(fmt.Sprintf("%v", id), changes.GetMemoryFootprint())
	})
	return mf
}
