// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"
)

// HashXofSize is the width of an integrity hash in bytes.
const HashXofSize = 512

// HashXof is an extendable-output digest used as a set hash: the hash of a
// collection of key/value pairs is the XOR of the digests of its pairs.
// Since XOR is commutative and self-inverse, the result does not depend on
// the order pairs are added in, and removing a pair is adding it again.
type HashXof [HashXofSize]byte

// InitialHashXof is the hash of an empty collection.
var InitialHashXof = HashXof{}

var shakeHasherPool = sync.Pool{New: func() any { return sha3.NewShake256() }}

// HashKeyValue computes the digest of a single key/value pair. The key
// length is included to keep (key, value) splits unambiguous.
func HashKeyValue(key, value []byte) HashXof {
	hasher := shakeHasherPool.Get().(sha3.ShakeHash)
	hasher.Reset()
	var length [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(length[:], uint64(len(key)))
	hasher.Write(length[:n])
	hasher.Write(key)
	hasher.Write(value)
	var res HashXof
	hasher.Read(res[:])
	shakeHasherPool.Put(hasher)
	return res
}

// Xor combines the given hash into this one.
func (h *HashXof) Xor(other *HashXof) {
	for i := range h {
		h[i] ^= other[i]
	}
}

// HashXofFromBytes parses a persisted hash.
func HashXofFromBytes(data []byte) (HashXof, error) {
	var res HashXof
	if len(data) != HashXofSize {
		return res, fmt.Errorf("invalid hash length, wanted %d, got %d", HashXofSize, len(data))
	}
	copy(res[:], data)
	return res, nil
}

// ShortString renders the first bytes of the hash in hex, for logs.
func (h HashXof) ShortString() string {
	return hex.EncodeToString(h[:16]) + "..."
}

func (h HashXof) String() string {
	return hex.EncodeToString(h[:])
}
