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

import (
	"fmt"

	"github.com/lihao628/massa/common"
)

// Space divides the key-value storage of one physical engine into logical
// column spaces by adding a one-byte prefix to every key.
type Space byte

const (
	// StateSpace holds the hashed application data.
	StateSpace Space = 'S'
	// MetadataSpace holds infrastructural data such as the current change ID
	// and the integrity hash of the state space.
	MetadataSpace Space = 'M'
	// VersioningSpace holds upgrade-vote data excluded from the state hash.
	VersioningSpace Space = 'V'
)

// ErrUnknownSpace is returned when an operation addresses a space outside
// of the supported set.
const ErrUnknownSpace = common.ConstError("unknown column space")

// AllSpaces lists the spaces of an engine in key order.
var AllSpaces = []Space{MetadataSpace, StateSpace, VersioningSpace}

// Check returns ErrUnknownSpace for values outside of the closed set.
func (s Space) Check() error {
	switch s {
	case StateSpace, MetadataSpace, VersioningSpace:
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnknownSpace, byte(s))
}

func (s Space) String() string {
	switch s {
	case StateSpace:
		return "state"
	case MetadataSpace:
		return "metadata"
	case VersioningSpace:
		return "versioning"
	}
	return fmt.Sprintf("space(%d)", byte(s))
}

// ParseSpace resolves the name produced by String.
func ParseSpace(name string) (Space, error) {
	for _, space := range AllSpaces {
		if space.String() == name {
			return space, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSpace, name)
}

// ToDBKey converts a key of this space into the key used by the engine.
func (s Space) ToDBKey(key []byte) []byte {
	res := make([]byte, len(key)+1)
	res[0] = byte(s)
	copy(res[1:], key)
	return res
}

// FromDBKey strips the space prefix from an engine key.
func (s Space) FromDBKey(dbKey []byte) []byte {
	return dbKey[1:]
}

// PrefixRange returns the engine key range [start, limit) covering all keys
// of this space starting with the given prefix.
func (s Space) PrefixRange(prefix []byte) (start, limit []byte) {
	start = s.ToDBKey(prefix)
	return start, prefixLimit(start)
}

// prefixLimit returns the smallest key greater than all keys with the given
// prefix, or nil if there is none.
func prefixLimit(prefix []byte) []byte {
	limit := make([]byte, len(prefix))
	copy(limit, prefix)
	for i := len(limit) - 1; i >= 0; i-- {
		if limit[i] < 0xff {
			limit[i]++
			return limit[:i+1]
		}
	}
	return nil
}

// KeySuccessor returns the smallest key strictly greater than the given key.
func KeySuccessor(key []byte) []byte {
	res := make([]byte, len(key)+1)
	copy(res, key)
	return res
}
