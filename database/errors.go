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

import "github.com/lihao628/massa/common"

const (
	// ErrInvalidChangeID is reported when a write carries a change ID lower
	// than the current change ID of the store.
	ErrInvalidChangeID = common.ConstError("invalid change ID")
	// ErrTime is reported when a stream batch cannot be produced for the
	// given change ID: the ID is ahead of the store, missing, or older than
	// the retained change history. Receivers restart streaming from scratch.
	ErrTime = common.ConstError("change ID not covered by change history")
	// ErrBackend wraps failures of the underlying engine.
	ErrBackend = common.ConstError("backend failure")
	// ErrDeserialization is reported for malformed persisted metadata.
	ErrDeserialization = common.ConstError("deserialization failure")
)
