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
	"github.com/lihao628/massa/common"
	"github.com/lihao628/massa/stream"
)

// WriteBatchBootstrapClient applies stream batches received from a serving
// node and returns the cursors to request the next batches with. The change
// ID of the state batch becomes the change ID of this store, and the change
// logs are restarted, since they can only cover changes applied locally
// after the bootstrap.
func (s *Store[C]) WriteBatchBootstrapClient(state, versioning stream.Batch[C]) (stream.Step, stream.Step, error) {
	// Only the state batch's change ID is applied; the versioning batch's
	// change ID is ignored.
	stateChanges := toChanges(&state)
	versioningChanges := toChanges(&versioning)
	if err := s.WriteChanges(stateChanges, versioningChanges, &state.ChangeID, true); err != nil {
		return stream.Step{}, stream.Step{}, err
	}
	return state.NextStep(), versioning.NextStep(), nil
}

// toChanges merges the updates and new elements of a batch, new elements
// taking precedence.
func toChanges[C any](batch *stream.Batch[C]) *common.Changes {
	res := batch.UpdatesOnPreviousElements.Clone()
	batch.NewElements.ForEach(res.Put)
	return res
}
