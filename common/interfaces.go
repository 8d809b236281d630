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

import "fmt"

// Flusher is any type that can be flushed.
type Flusher interface {
	Flush() error
}

type MemoryFootprintProvider interface {
	GetMemoryFootprint() *MemoryFootprint
}

// Comparator defines a total order on values of type K. It returns a negative
// number if a < b, zero if a == b and a positive number otherwise.
type Comparator[K any] interface {
	Compare(a, b *K) int
}

// MapEntry wraps a map key-value par
type MapEntry[K any, V any] struct {
	Key K
	Val V
}

func (e MapEntry[K, V]) String() string {
	return fmt.Sprintf("Entry: %v -> %v", e.Key, e.Val)
}

// ChangeID is a totally ordered version marker attached to every durable
// write of a state store. Values are compared using Compare, which must be
// consistent with ==.
type ChangeID[T any] interface {
	comparable
	Compare(other T) int
}

// ChangeIDSerializer converts change IDs to and from their persisted form.
type ChangeIDSerializer[T any] interface {
	ToBytes(T) []byte
	FromBytes([]byte) (T, error)
}

// ChangeIDComparator orders change IDs using their Compare method.
type ChangeIDComparator[T ChangeID[T]] struct{}

func (ChangeIDComparator[T]) Compare(a, b *T) int {
	return (*a).Compare(*b)
}
