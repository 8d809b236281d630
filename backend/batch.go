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

// Batch collects put and delete operations over multiple spaces to be
// applied atomically by an Engine. A batch is not safe for concurrent use.
type Batch struct {
	ops  []batchOp
	size int
}

type batchOp struct {
	key    []byte // engine key, including the space prefix
	value  []byte
	delete bool
}

func NewBatch() *Batch {
	return &Batch{}
}

// Put records setting the key of the space to the given value.
func (b *Batch) Put(space Space, key, value []byte) {
	b.append(batchOp{key: space.ToDBKey(key), value: value})
}

// Delete records removing the key from the space.
func (b *Batch) Delete(space Space, key []byte) {
	b.append(batchOp{key: space.ToDBKey(key), delete: true})
}

func (b *Batch) append(op batchOp) {
	b.ops = append(b.ops, op)
	b.size += len(op.key) + len(op.value)
}

// Len returns the number of recorded operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Size returns the number of key and value bytes recorded.
func (b *Batch) Size() int {
	return b.size
}

// Reset removes all recorded operations.
func (b *Batch) Reset() {
	clear(b.ops)
	b.ops = b.ops[:0]
	b.size = 0
}

// BatchReplay receives the operations of a batch on Replay. Keys include the
// space prefix.
type BatchReplay interface {
	Put(key, value []byte)
	Delete(key []byte)
}

// Replay feeds all operations in recording order into the given receiver.
func (b *Batch) Replay(r BatchReplay) {
	for _, op := range b.ops {
		if op.delete {
			r.Delete(op.key)
		} else {
			r.Put(op.key, op.value)
		}
	}
}
