// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package stream

import (
	"fmt"

	"github.com/lihao628/massa/common"
)

// Batch is one unit of a streaming session for a single space. It carries
// fresh key/value pairs following the receiver's cursor, the updates to keys
// the receiver already has, and the change ID of the sender's state the
// batch is consistent with.
type Batch[C any] struct {
	NewElements               *common.Elements
	UpdatesOnPreviousElements *common.Changes
	ChangeID                  C
}

// IsEmpty returns true if the batch carries neither new elements nor updates.
func (b *Batch[C]) IsEmpty() bool {
	return b.NewElements.Len() == 0 && b.UpdatesOnPreviousElements.Len() == 0
}

// NextStep returns the cursor a receiver reaches after applying this batch.
func (b *Batch[C]) NextStep() Step {
	if last, found := b.NewElements.LastKey(); found {
		return OngoingStep(last)
	}
	return FinishedStep()
}

func (b *Batch[C]) String() string {
	return fmt.Sprintf("batch(change ID: %v, new: %d, updates: %d)", b.ChangeID, b.NewElements.Len(), b.UpdatesOnPreviousElements.Len())
}

// Request is sent by a joining node to ask for the next batches of both
// streamed spaces. LastChangeID is the change ID of the last batch the node
// applied, nil for a fresh session.
type Request[C any] struct {
	StateStep      Step
	VersioningStep Step
	LastChangeID   *C
}

// Response answers a Request with one batch per streamed space.
type Response[C any] struct {
	State      Batch[C]
	Versioning Batch[C]
}

// IsFinal returns true if both batches carry nothing, meaning that the
// receiver is in sync with the sender.
func (r *Response[C]) IsFinal() bool {
	return r.State.IsEmpty() && r.Versioning.IsEmpty()
}
